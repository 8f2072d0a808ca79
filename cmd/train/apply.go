package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update artifacts from a YAML file",
	Long: `Apply one or more artifact specifications. Documents in the file are
separated by '---' and applied in order.

Examples:
  # Apply an artifact
  train apply -f opsman.yaml

  # Read from stdin
  cat artifacts.yaml | train apply -f -`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply, or - for stdin (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	var data []byte
	var err error
	if filename == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(filename)
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	docs, err := splitDocuments(data)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no artifact found in %s", filename)
	}

	c := newClient(cmd)
	ctx := context.Background()
	for _, doc := range docs {
		resp, err := c.Apply(ctx, doc)
		if err != nil {
			return fmt.Errorf("failed to apply artifact: %v", err)
		}
		art := resp.Artifact
		fmt.Printf("✓ Artifact applied: %s (revision=%d, total=%d, target=%d)\n",
			art.ID, art.Revision, art.Total, art.Target)
	}
	return nil
}

// splitDocuments re-encodes every non-empty document of a multi-document
// YAML stream on its own
func splitDocuments(data []byte) ([][]byte, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var docs [][]byte
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if len(node.Content) == 0 || node.Content[0].ShortTag() == "!!null" {
			continue
		}

		out, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("failed to encode document: %v", err)
		}
		docs = append(docs, out)
	}
	return docs, nil
}
