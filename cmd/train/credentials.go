package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secrets mounted into runs",
}

var secretCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a secret",
	Long: `Create a secret from literal values and/or a YAML map file.

Examples:
  train secret create pivnet --from-literal token=abc123
  train secret create gcp --from-file gcp.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := credentialData(cmd)
		if err != nil {
			return err
		}
		secret, err := newClient(cmd).CreateSecret(context.Background(), args[0], data)
		if err != nil {
			return fmt.Errorf("failed to create secret: %v", err)
		}
		fmt.Printf("✓ Secret created: %s (ID: %s)\n", secret.Name, secret.ID)
		return nil
	},
}

var secretListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := newClient(cmd).ListSecrets(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list secrets: %v", err)
		}
		if len(secrets) == 0 {
			fmt.Println("No secrets found")
			return nil
		}
		fmt.Printf("%-24s %-38s %s\n", "NAME", "ID", "CREATED")
		for _, s := range secrets {
			fmt.Printf("%-24s %-38s %s\n", s.Name, s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage account pools",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an account pool",
	Long: `Create an account pool. Every build run that lists the pool takes one
unit of stock, returned when its instance is reclaimed.

Examples:
  train account create gcp-project --total 3 --from-file project.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		total, _ := cmd.Flags().GetInt("total")
		data, err := credentialData(cmd)
		if err != nil {
			return err
		}
		account, err := newClient(cmd).CreateAccount(context.Background(), args[0], total, data)
		if err != nil {
			return fmt.Errorf("failed to create account: %v", err)
		}
		fmt.Printf("✓ Account created: %s (stock=%d/%d)\n", account.Name, account.InStock, account.Total)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List account pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := newClient(cmd).ListAccounts(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list accounts: %v", err)
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts found")
			return nil
		}
		fmt.Printf("%-24s %-10s %s\n", "NAME", "STOCK", "CREATED")
		for _, a := range accounts {
			fmt.Printf("%-24s %-10s %s\n", a.Name, fmt.Sprintf("%d/%d", a.InStock, a.Total), a.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{secretCreateCmd, accountCreateCmd} {
		c.Flags().StringArray("from-literal", nil, "Key=value pair (repeatable)")
		c.Flags().String("from-file", "", "YAML file holding a flat key/value map")
	}
	accountCreateCmd.Flags().Int("total", 1, "Units of stock in the pool")

	secretCmd.AddCommand(secretCreateCmd, secretListCmd)
	accountCmd.AddCommand(accountCreateCmd, accountListCmd)
}

// credentialData merges --from-file and --from-literal; literals win
func credentialData(cmd *cobra.Command) (map[string]string, error) {
	data := map[string]string{}

	if path, _ := cmd.Flags().GetString("from-file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %v", err)
		}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %v", path, err)
		}
	}

	literals, _ := cmd.Flags().GetStringArray("from-literal")
	for _, kv := range literals {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid literal %q, expected key=value", kv)
		}
		data[k] = v
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("no data given, use --from-literal or --from-file")
	}
	return data, nil
}
