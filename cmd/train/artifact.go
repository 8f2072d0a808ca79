package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BinJu/train/pkg/api"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue ARTIFACT",
	Short: "Ask the scheduler to evaluate an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).Enqueue(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to enqueue artifact: %v", err)
		}
		fmt.Printf("✓ Artifact queued: %s\n", args[0])
		return nil
	},
}

var borrowCmd = &cobra.Command{
	Use:   "borrow ARTIFACT",
	Short: "Claim a ready instance of an artifact",
	Long: `Claim one clean, succeeded instance. The instance is marked dirty and
reclaimed by the clean rollout; its results are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lease, err := newClient(cmd).Borrow(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to borrow instance: %v", err)
		}

		fmt.Printf("✓ Instance borrowed: %s\n", lease.InstanceID)
		for _, k := range sortedKeys(lease.Results) {
			fmt.Printf("  %s: %s\n", k, lease.Results[k])
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [ARTIFACT]",
	Short: "Show artifacts, or one artifact with its instances",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showArtifact(cmd, args[0])
		}
		return listArtifacts(cmd)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ARTIFACT",
	Short: "Tear down an artifact and all of its runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient(cmd).DeleteArtifact(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete artifact: %v", err)
		}
		fmt.Printf("✓ Artifact deleted: %s (%d runs removed)\n", resp.ArtifactID, resp.RunsDeleted)
		return nil
	},
}

func listArtifacts(cmd *cobra.Command) error {
	arts, err := newClient(cmd).ListArtifacts(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %v", err)
	}
	if len(arts) == 0 {
		fmt.Println("No artifacts found")
		return nil
	}

	fmt.Printf("%-24s %-4s %-12s %-16s %-16s %s\n", "ID", "REV", "TARGET/TOTAL", "BUILD", "CLEAN", "RUN/FAIL/CLEAN/DIRTY")
	for _, a := range arts {
		n := a.Numbers
		fmt.Printf("%-24s %-4d %-12s %-16s %-16s %d/%d/%d/%d\n",
			a.ID, a.Revision, fmt.Sprintf("%d/%d", a.Target, a.Total),
			a.Build, a.Clean,
			n.Running, n.Failed, n.DoneClean, n.DoneDirty)
	}
	return nil
}

func showArtifact(cmd *cobra.Command, artID string) error {
	resp, err := newClient(cmd).GetArtifact(context.Background(), artID)
	if err != nil {
		return fmt.Errorf("failed to get artifact: %v", err)
	}
	printArtifact(resp)
	return nil
}

func printArtifact(resp *api.ArtifactResponse) {
	art := resp.Artifact
	fmt.Printf("Artifact:  %s (revision %d)\n", art.ID, art.Revision)
	fmt.Printf("Target:    %d of %d\n", art.Target, art.Total)
	fmt.Printf("Build:     %s (last scheduled %s)\n", art.Build.Status, art.Build.LastScheduled.Format("2006-01-02 15:04:05"))
	fmt.Printf("Clean:     %s (last scheduled %s)\n", art.Clean.Status, art.Clean.LastScheduled.Format("2006-01-02 15:04:05"))
	fmt.Printf("To deploy: %d\n", resp.ToDeploy)

	if len(resp.Instances) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("%-38s %-6s %-5s %-28s %s\n", "INSTANCE", "KIND", "DIRTY", "STATUS", "RUN")
	for _, inst := range resp.Instances {
		status := inst.Status.String()
		if inst.ReclaimOf != "" {
			status += " -> " + shortID(inst.ReclaimOf)
		}
		fmt.Printf("%-38s %-6s %-5t %-28s %s\n", inst.ID, inst.Kind(), inst.Dirty, status, inst.RunHandle)
	}
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
