package main

import (
	"fmt"
	"os"

	"github.com/BinJu/train/pkg/client"
	"github.com/BinJu/train/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "train",
	Short: "Train - keeps pools of pipeline-built environments warm",
	Long: `Train keeps a target number of ready instances of each artifact, built by
Tekton pipelines, and reclaims the ones that were used or failed.

Run 'train serve' to start the engine; the other commands talk to it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		log.Init(log.Config{Level: log.ParseLevel(level)})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Train version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("server", "localhost:8080", "Train server address")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(borrowCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(accountCmd)
}

func newClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("server")
	return client.NewClient(addr)
}
