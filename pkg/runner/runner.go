package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BinJu/train/pkg/types"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/BinJu/train/pkg/runner Runner

// Runner is the external workflow engine that executes rollouts. Runs are
// started, queried and deleted; they are never modified.
type Runner interface {
	// Apply submits a manifest (workflow definitions, credentials) to namespace
	Apply(ctx context.Context, manifest, namespace string) error

	// Start launches one run of pipeline and returns its run handle
	Start(ctx context.Context, pipeline, namespace string, params map[string]string) (string, error)

	// Status returns the engine's raw status reason for a run
	Status(ctx context.Context, runHandle, namespace string) (string, error)

	// Results returns the run's raw result document
	Results(ctx context.Context, runHandle, namespace string) (string, error)

	DeleteRun(ctx context.Context, runHandle, namespace string) error

	// List returns the pipeline names defined in namespace
	List(ctx context.Context, namespace string) ([]string, error)
}

// ParseStatus translates a run status reason into an instance status.
// Reasons that are neither in progress nor successful are failures.
func ParseStatus(reason string) types.InstanceStatus {
	switch strings.TrimSpace(reason) {
	case "":
		return types.StatusUnknown()
	case "Running", "Started", "Pending", "PipelineRunPending", "ResolvingPipelineRef":
		return types.StatusRunning()
	case "Succeeded", "Completed":
		return types.StatusSucceeded()
	default:
		return types.StatusFailed(strings.TrimSpace(reason))
	}
}

type result struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// ParseResults decodes a `[{"name": ..., "value": ...}]` result document.
// String values are unquoted; array and object values are kept as JSON text.
func ParseResults(doc string) (map[string]string, error) {
	out := map[string]string{}
	doc = strings.TrimSpace(doc)
	if doc == "" || doc == "null" {
		return out, nil
	}

	var results []result
	if err := json.Unmarshal([]byte(doc), &results); err != nil {
		return nil, fmt.Errorf("failed to decode run results: %w", err)
	}
	for _, r := range results {
		var s string
		if err := json.Unmarshal(r.Value, &s); err == nil {
			out[r.Name] = s
			continue
		}
		out[r.Name] = string(r.Value)
	}
	return out, nil
}
