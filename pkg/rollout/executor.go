package rollout

import (
	"context"
	"fmt"
	"time"

	"github.com/BinJu/train/pkg/log"
	"github.com/BinJu/train/pkg/runner"
	"github.com/BinJu/train/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Run parameter names passed to every pipeline
const (
	ParamArtifactID = "art_id"
	ParamInstanceID = "inst_id"
)

// Executor runs an artifact's build and clean rollouts on a Runner
type Executor struct {
	runner    runner.Runner
	creds     Credentials
	namespace string
	logger    zerolog.Logger
}

// NewExecutor creates a new rollout executor
func NewExecutor(r runner.Runner, creds Credentials, namespace string) *Executor {
	return &Executor{
		runner:    r,
		creds:     creds,
		namespace: namespace,
		logger:    log.WithComponent("rollout"),
	}
}

// Build starts copies runs of the build rollout. It returns the instances
// started before any error alongside that error; the runs already exist in
// the cluster, so callers must persist them either way.
func (e *Executor) Build(ctx context.Context, art *types.Artifact, copies int) ([]*types.Instance, error) {
	ids := make([]string, copies)
	for i := range ids {
		ids[i] = uuid.New().String()
	}
	return e.run(ctx, art, types.RolloutBuild, ids, false)
}

// Clean starts one clean run per victim, passing the victim's id as the
// run's instance id. Partial results follow the same contract as Build.
func (e *Executor) Clean(ctx context.Context, art *types.Artifact, victims []*types.Instance) ([]*types.Instance, error) {
	ids := make([]string, len(victims))
	for i, v := range victims {
		ids[i] = v.ID
	}
	return e.run(ctx, art, types.RolloutClean, ids, true)
}

func (e *Executor) run(ctx context.Context, art *types.Artifact, kind types.RolloutKind, instIDs []string, reclaim bool) ([]*types.Instance, error) {
	r := art.Rollout(kind)
	if r == nil || r.Manifest == "" {
		return nil, fmt.Errorf("%s rollout of %s has no manifest", kind, art.ID)
	}
	if len(instIDs) == 0 {
		return nil, nil
	}

	if err := e.applySecrets(ctx, art, r); err != nil {
		return nil, err
	}
	if err := e.runner.Apply(ctx, r.Manifest, e.namespace); err != nil {
		return nil, fmt.Errorf("failed to apply %s manifest: %w", r.Name, err)
	}

	started := make([]*types.Instance, 0, len(instIDs))
	for _, instID := range instIDs {
		inst, err := e.startOne(ctx, art, r, instID)
		if err != nil {
			return started, err
		}
		if reclaim {
			inst.ID = uuid.New().String()
			inst.ReclaimOf = instID
		}
		started = append(started, inst)

		e.logger.Debug().
			Str("art_id", art.ID).
			Str("kind", string(kind)).
			Str("run_handle", inst.RunHandle).
			Msg("Run started")
	}
	return started, nil
}

func (e *Executor) applySecrets(ctx context.Context, art *types.Artifact, r *types.Rollout) error {
	b := &bundle{artID: art.ID}
	for _, name := range r.Secrets {
		data, err := e.creds.Secret(ctx, name)
		if err != nil {
			return fmt.Errorf("secret %s: %w", name, err)
		}
		b.add(secretName("sec", art.ID, name), data)
	}
	return e.applyBundle(ctx, b)
}

func (e *Executor) applyBundle(ctx context.Context, b *bundle) error {
	if b.empty() {
		return nil
	}
	doc, err := b.render()
	if err != nil {
		return err
	}
	if err := e.runner.Apply(ctx, doc, e.namespace); err != nil {
		return fmt.Errorf("failed to apply credentials: %w", err)
	}
	return nil
}

// startOne materializes the per-instance credentials and starts one run.
// Account units and artifact-ref claims taken for a run that never started
// are given back.
func (e *Executor) startOne(ctx context.Context, art *types.Artifact, r *types.Rollout, instID string) (_ *types.Instance, err error) {
	var acquired []string
	var claimed [][2]string // art id, instance id
	defer func() {
		if err == nil {
			return
		}
		for _, name := range acquired {
			if rerr := e.creds.ReleaseAccount(ctx, name); rerr != nil {
				e.logger.Error().Err(rerr).Str("account", name).Msg("Failed to release account")
			}
		}
		for _, c := range claimed {
			if rerr := e.creds.ReleaseArtifactRef(ctx, c[0], c[1]); rerr != nil {
				e.logger.Error().Err(rerr).
					Str("art_ref", c[0]).
					Str("ref_inst_id", c[1]).
					Msg("Failed to release artifact ref")
			}
		}
	}()

	b := &bundle{artID: art.ID}
	for _, name := range r.Accounts {
		data, err := e.creds.Account(ctx, name)
		if err != nil {
			return nil, err
		}
		acquired = append(acquired, name)
		b.add(secretName("acnt", art.ID, instID, name), data)
	}
	for _, ref := range r.ArtifactRefs {
		data, err := e.creds.ArtifactRef(ctx, ref)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, [2]string{ref, data[ParamInstanceID]})
		b.add(secretName("ref", art.ID, instID, ref), data)
	}
	if err := e.applyBundle(ctx, b); err != nil {
		return nil, err
	}

	handle, err := e.runner.Start(ctx, r.Name, e.namespace, map[string]string{
		ParamArtifactID: art.ID,
		ParamInstanceID: instID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", r.Name, err)
	}

	now := time.Now()
	return &types.Instance{
		ID:         instID,
		ArtifactID: art.ID,
		RunHandle:  handle,
		Status:     types.StatusRunning(),
		Accounts:   acquired,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
