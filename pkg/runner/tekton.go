package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/BinJu/train/pkg/log"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const runStartedPrefix = "PipelineRun started: "

// ExecFunc runs a command with optional stdin and returns its output
type ExecFunc func(ctx context.Context, stdin []byte, name string, args ...string) (stdout, stderr []byte, err error)

// Exec is the default ExecFunc backed by os/exec
func Exec(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// TektonConfig holds the CLI binaries and call budget
type TektonConfig struct {
	TknPath     string
	KubectlPath string
	QPS         float64
	Burst       int
	Exec        ExecFunc
}

// Tekton drives Tekton pipelines through the tkn and kubectl CLIs
type Tekton struct {
	tkn     string
	kubectl string
	exec    ExecFunc
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTekton creates a Tekton runner. A QPS of zero disables rate limiting.
func NewTekton(cfg TektonConfig) *Tekton {
	t := &Tekton{
		tkn:     cfg.TknPath,
		kubectl: cfg.KubectlPath,
		exec:    cfg.Exec,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  log.WithComponent("runner"),
	}
	if t.tkn == "" {
		t.tkn = "tkn"
	}
	if t.kubectl == "" {
		t.kubectl = "kubectl"
	}
	if t.exec == nil {
		t.exec = Exec
	}
	if cfg.QPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	}
	return t
}

func (t *Tekton) run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	stdout, stderr, err := t.exec(ctx, stdin, name, args...)
	t.logger.Debug().
		Str("cmd", name+" "+strings.Join(args, " ")).
		Int("stdout_bytes", len(stdout)).
		Msg("Runner command finished")
	if err != nil {
		return stdout, fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(string(stderr)))
	}
	return stdout, nil
}

// Apply pipes manifest into kubectl apply
func (t *Tekton) Apply(ctx context.Context, manifest, namespace string) error {
	_, err := t.run(ctx, []byte(manifest), t.kubectl, "apply", "-n", namespace, "-f", "-")
	return err
}

// Start launches a pipeline run. Params are passed sorted by name.
func (t *Tekton) Start(ctx context.Context, pipeline, namespace string, params map[string]string) (string, error) {
	args := []string{"-n", namespace, "pipeline", "start", pipeline}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-p", k+"="+params[k])
	}

	out, err := t.run(ctx, nil, t.tkn, args...)
	if err != nil {
		return "", err
	}
	return parseRunStarted(pipeline, string(out))
}

func parseRunStarted(pipeline, stdout string) (string, error) {
	if !strings.HasPrefix(stdout, runStartedPrefix) {
		return "", fmt.Errorf("failed to start pipeline %s: unexpected output %q", pipeline, stdout)
	}
	handle := stdout[len(runStartedPrefix):]
	if i := strings.IndexByte(handle, '\n'); i >= 0 {
		handle = handle[:i]
	}
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", fmt.Errorf("failed to start pipeline %s: empty run name", pipeline)
	}
	return handle, nil
}

type pipelineRun struct {
	Status struct {
		Conditions []struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"conditions"`
		Results         json.RawMessage `json:"results"`
		PipelineResults json.RawMessage `json:"pipelineResults"`
	} `json:"status"`
}

func (t *Tekton) describe(ctx context.Context, runHandle, namespace string) (*pipelineRun, error) {
	out, err := t.run(ctx, nil, t.tkn, "pipelinerun", "describe", runHandle, "-o", "json", "-n", namespace)
	if err != nil {
		return nil, err
	}
	var pr pipelineRun
	if err := json.Unmarshal(out, &pr); err != nil {
		return nil, fmt.Errorf("failed to decode pipelinerun %s: %w", runHandle, err)
	}
	return &pr, nil
}

// Status returns the reason of the run's Succeeded condition
func (t *Tekton) Status(ctx context.Context, runHandle, namespace string) (string, error) {
	pr, err := t.describe(ctx, runHandle, namespace)
	if err != nil {
		return "", err
	}
	reason := ""
	for _, c := range pr.Status.Conditions {
		if c.Type == "Succeeded" {
			return c.Reason, nil
		}
		reason = c.Reason
	}
	return reason, nil
}

// Results returns the run's result list as JSON
func (t *Tekton) Results(ctx context.Context, runHandle, namespace string) (string, error) {
	pr, err := t.describe(ctx, runHandle, namespace)
	if err != nil {
		return "", err
	}
	if len(pr.Status.Results) > 0 {
		return string(pr.Status.Results), nil
	}
	return string(pr.Status.PipelineResults), nil
}

// DeleteRun force-deletes a pipeline run
func (t *Tekton) DeleteRun(ctx context.Context, runHandle, namespace string) error {
	_, err := t.run(ctx, nil, t.tkn, "pipelinerun", "delete", runHandle, "-f", "-n", namespace)
	return err
}

// List returns the names of the pipelines in namespace
func (t *Tekton) List(ctx context.Context, namespace string) ([]string, error) {
	out, err := t.run(ctx, nil, t.tkn, "pipeline", "list", "-o", "json", "-n", namespace)
	if err != nil {
		return nil, err
	}
	var list struct {
		Items []struct {
			Metadata struct {
				Name string `json:"name"`
			} `json:"metadata"`
		} `json:"items"`
	}
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline list: %w", err)
	}
	names := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		names = append(names, item.Metadata.Name)
	}
	return names, nil
}
