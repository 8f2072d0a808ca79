// Package runnertest provides an in-memory runner.Runner for tests.
package runnertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Run is one started run as seen by the fake
type Run struct {
	Handle    string
	Pipeline  string
	Namespace string
	Params    map[string]string
	Reason    string
	Results   string
}

// Runner records every call and lets tests drive run status
type Runner struct {
	mu sync.Mutex

	Applied []string
	runs    map[string]*Run
	order   []string
	deleted []string
	seq     int

	// ApplyErr, StartErr and StatusErr are returned by the matching calls
	ApplyErr  error
	StartErr  error
	StatusErr error
	// StartLimit fails every Start after that many successes when > 0
	StartLimit int
}

// New creates an empty fake runner
func New() *Runner {
	return &Runner{runs: map[string]*Run{}}
}

func (r *Runner) Apply(_ context.Context, manifest, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ApplyErr != nil {
		return r.ApplyErr
	}
	r.Applied = append(r.Applied, manifest)
	return nil
}

func (r *Runner) Start(_ context.Context, pipeline, namespace string, params map[string]string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return "", r.StartErr
	}
	if r.StartLimit > 0 && len(r.order) >= r.StartLimit {
		return "", errors.New("runnertest: start limit reached")
	}

	r.seq++
	handle := fmt.Sprintf("%s-run-%05d", pipeline, r.seq)
	p := make(map[string]string, len(params))
	for k, v := range params {
		p[k] = v
	}
	r.runs[handle] = &Run{Handle: handle, Pipeline: pipeline, Namespace: namespace, Params: p, Reason: "Running"}
	r.order = append(r.order, handle)
	return handle, nil
}

func (r *Runner) Status(_ context.Context, handle, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StatusErr != nil {
		return "", r.StatusErr
	}
	run, ok := r.runs[handle]
	if !ok {
		return "", fmt.Errorf("pipelinerun %s not found", handle)
	}
	return run.Reason, nil
}

func (r *Runner) Results(_ context.Context, handle, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[handle]
	if !ok {
		return "", fmt.Errorf("pipelinerun %s not found", handle)
	}
	return run.Results, nil
}

func (r *Runner) DeleteRun(_ context.Context, handle, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, handle)
	r.deleted = append(r.deleted, handle)
	return nil
}

// List returns the distinct pipelines that have been started
func (r *Runner) List(context.Context, string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	for _, run := range r.runs {
		if !seen[run.Pipeline] {
			seen[run.Pipeline] = true
			names = append(names, run.Pipeline)
		}
	}
	sort.Strings(names)
	return names, nil
}

// SetStatus sets the status reason reported for a run
func (r *Runner) SetStatus(handle, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[handle]; ok {
		run.Reason = reason
	}
}

// SetResults sets the result document reported for a run
func (r *Runner) SetResults(handle, doc string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[handle]; ok {
		run.Results = doc
	}
}

// Runs returns the live runs in start order
func (r *Runner) Runs() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.order))
	for _, h := range r.order {
		if run, ok := r.runs[h]; ok {
			out = append(out, *run)
		}
	}
	return out
}

// Deleted returns the handles passed to DeleteRun
func (r *Runner) Deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}
