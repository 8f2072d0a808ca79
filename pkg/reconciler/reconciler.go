package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BinJu/train/pkg/events"
	"github.com/BinJu/train/pkg/log"
	"github.com/BinJu/train/pkg/metrics"
	"github.com/BinJu/train/pkg/runner"
	"github.com/BinJu/train/pkg/scheduler"
	"github.com/BinJu/train/pkg/storage"
	"github.com/BinJu/train/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Enqueuer asks the scheduler to look at an artifact again
type Enqueuer interface {
	Enqueue(ctx context.Context, artID string) error
}

// Config tunes the two reconciliation passes
type Config struct {
	Namespace          string
	SyncInterval       time.Duration
	RescheduleInterval time.Duration
	// MinBackoff is the minimum time between two dispatches of a stalled artifact
	MinBackoff time.Duration
	// MaxFailureRatio halts rescheduling until the artifact is updated
	MaxFailureRatio float64
	// Concurrency bounds how many artifacts the sync pass handles at once
	Concurrency int
}

// DefaultConfig returns the default pass settings
func DefaultConfig() Config {
	return Config{
		Namespace:          "train",
		SyncInterval:       time.Second,
		RescheduleInterval: time.Second,
		MinBackoff:         30 * time.Second,
		MaxFailureRatio:    0.2,
		Concurrency:        4,
	}
}

// Reconciler folds the status of external runs back into the store and puts
// stalled artifacts back on the queue.
type Reconciler struct {
	store  storage.Store
	runner runner.Runner
	queue  Enqueuer
	events events.Publisher
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu           sync.Mutex
	lastRequeued map[string]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewReconciler creates a new reconciler. pub may be nil.
func NewReconciler(store storage.Store, r runner.Runner, q Enqueuer, pub events.Publisher, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = def.SyncInterval
	}
	if cfg.RescheduleInterval <= 0 {
		cfg.RescheduleInterval = def.RescheduleInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	return &Reconciler{
		store:        store,
		runner:       r,
		queue:        q,
		events:       pub,
		cfg:          cfg,
		logger:       log.WithComponent("reconciler"),
		now:          time.Now,
		lastRequeued: map[string]time.Time{},
		stopCh:       make(chan struct{}),
	}
}

// Start begins both reconciliation loops
func (r *Reconciler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	metrics.RegisterComponent("reconciler", true, "reconciliation loops running")

	r.wg.Add(2)
	go r.loop(ctx, "sync", r.cfg.SyncInterval, r.SyncStatus)
	go r.loop(ctx, "reschedule", r.cfg.RescheduleInterval, r.Reschedule)
}

// Stop stops both loops and waits for the running passes to return
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
		metrics.UpdateComponent("reconciler", false, "stopped")
	})
}

func (r *Reconciler) loop(ctx context.Context, pass string, interval time.Duration, fn func(context.Context) error) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			timer := metrics.NewTimer()
			err := fn(ctx)
			timer.ObserveDurationVec(metrics.ReconcileDuration, pass)
			if err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Str("pass", pass).Msg("Reconciliation pass failed")
				metrics.UpdateComponent("reconciler", false, fmt.Sprintf("%s pass failed: %v", pass, err))
				continue
			}
			metrics.UpdateComponent("reconciler", true, "reconciliation loops running")
		case <-r.stopCh:
			return
		}
	}
}

// SyncStatus polls the runner for every instance of every artifact and
// recomputes rollout status. Artifacts are handled in parallel; the work
// for one artifact is serial. Per-artifact failures are logged and do not
// fail the pass.
func (r *Reconciler) SyncStatus(ctx context.Context) error {
	ids, err := r.store.ListArtifactIDs()
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := r.syncArtifact(ctx, id); err != nil {
				r.logger.Error().Err(err).Str("art_id", id).Msg("Failed to sync artifact")
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) syncArtifact(ctx context.Context, artID string) error {
	art, err := r.store.GetArtifact(artID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	insts, err := r.store.ListInstances(artID)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	for _, inst := range insts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.syncInstance(ctx, inst)
	}

	toDeploy := scheduler.ToDeploy(art.Total, art.Target, scheduler.CountInstances(insts))
	for _, kind := range []types.RolloutKind{types.RolloutBuild, types.RolloutClean} {
		status, ok := FoldStatus(partition(insts, kind))
		current := art.Rollout(kind).Status
		if !ok || current == status || pendingStands(current, status, kind, toDeploy) {
			continue
		}
		if err := r.store.UpdateRolloutStatus(artID, kind, status, time.Time{}); err != nil {
			return fmt.Errorf("failed to update %s rollout status: %w", kind, err)
		}
		r.logger.Debug().
			Str("art_id", artID).
			Str("kind", string(kind)).
			Str("status", string(status)).
			Msg("Rollout status changed")
	}

	return r.reclaim(ctx, artID, insts)
}

// syncInstance refreshes one instance from the runner. Errors leave the
// stored status as it was.
func (r *Reconciler) syncInstance(ctx context.Context, inst *types.Instance) {
	logger := log.WithInstanceID(inst.ArtifactID, inst.ID)

	reason, err := r.runner.Status(ctx, inst.RunHandle, r.cfg.Namespace)
	if err != nil {
		logger.Error().Err(err).Str("run_handle", inst.RunHandle).Msg("Failed to get run status")
		return
	}
	status := runner.ParseStatus(reason)
	if status == inst.Status {
		return
	}

	if status.State == types.InstanceSucceeded {
		doc, err := r.runner.Results(ctx, inst.RunHandle, r.cfg.Namespace)
		if err != nil {
			logger.Error().Err(err).Str("run_handle", inst.RunHandle).Msg("Failed to get run results")
			return
		}
		results, err := runner.ParseResults(doc)
		if err != nil {
			logger.Warn().Err(err).Str("run_handle", inst.RunHandle).Msg("Ignoring malformed run results")
		}
		inst.Results = results
	}

	prev := inst.Status
	inst.Status = status
	inst.UpdatedAt = r.now()
	if err := r.store.UpdateInstance(inst); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Error().Err(err).Msg("Failed to update instance")
		}
		inst.Status = prev
		return
	}

	kind := inst.Kind()
	metrics.InstanceTransitions.WithLabelValues(string(kind), string(status.State)).Inc()
	logger.Debug().
		Str("kind", string(kind)).
		Str("from", prev.String()).
		Str("to", status.String()).
		Msg("Instance status changed")

	switch status.State {
	case types.InstanceSucceeded:
		r.publish(events.New(events.EventInstanceSucceeded, inst.ArtifactID, "run succeeded").
			With("inst_id", inst.ID).
			With("kind", string(kind)))
	case types.InstanceFailed:
		r.publish(events.New(events.EventInstanceFailed, inst.ArtifactID, status.Reason).
			With("inst_id", inst.ID).
			With("kind", string(kind)))
	}
}

// reclaim removes the build instances whose clean runs have succeeded,
// together with those clean runs, and enqueues the artifact so the freed
// capacity is used.
func (r *Reconciler) reclaim(ctx context.Context, artID string, insts []*types.Instance) error {
	byID := make(map[string]*types.Instance, len(insts))
	for _, inst := range insts {
		byID[inst.ID] = inst
	}

	reclaimed := 0
	var errs error
	for _, inst := range insts {
		if inst.Kind() != types.RolloutClean || inst.Status.State != types.InstanceSucceeded || byID[inst.ID] == nil {
			continue
		}

		if victim, ok := byID[inst.ReclaimOf]; ok && victim.Kind() == types.RolloutBuild {
			if err := r.remove(ctx, victim); err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			delete(byID, victim.ID)
		}
		// Earlier attempts to clean the same victim are no longer needed
		for _, other := range insts {
			if inst.ReclaimOf == "" || other == inst || byID[other.ID] == nil {
				continue
			}
			if other.Kind() == types.RolloutClean && other.ReclaimOf == inst.ReclaimOf && other.Status.Terminal() {
				if err := r.remove(ctx, other); err != nil {
					errs = errors.Join(errs, err)
					continue
				}
				delete(byID, other.ID)
			}
		}
		if err := r.remove(ctx, inst); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		delete(byID, inst.ID)

		reclaimed++
		metrics.InstancesReclaimed.Inc()
		r.publish(events.New(events.EventInstanceReclaimed, artID, "instance reclaimed").
			With("inst_id", inst.ReclaimOf))
	}

	if reclaimed > 0 {
		r.logger.Info().Str("art_id", artID).Int("reclaimed", reclaimed).Msg("Reclaimed instances")
		if err := r.queue.Enqueue(ctx, artID); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to enqueue: %w", err))
		}
	}
	return errs
}

// remove deletes an instance's run and record and gives back its account
// stock. A run that is already gone is not an error.
func (r *Reconciler) remove(ctx context.Context, inst *types.Instance) error {
	logger := log.WithInstanceID(inst.ArtifactID, inst.ID)
	if err := r.runner.DeleteRun(ctx, inst.RunHandle, r.cfg.Namespace); err != nil {
		logger.Warn().Err(err).Str("run_handle", inst.RunHandle).Msg("Failed to delete run")
	}
	if err := r.store.DeleteInstance(inst.ID, inst.ArtifactID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete instance %s: %w", inst.ID, err)
	}
	for _, name := range inst.Accounts {
		if err := r.store.ReleaseAccount(name); err != nil {
			logger.Error().Err(err).Str("account", name).Msg("Failed to release account")
		}
	}
	return nil
}

// Reschedule enqueues artifacts whose rollouts are failed or pending, unless
// they were dispatched too recently or fail too often.
func (r *Reconciler) Reschedule(ctx context.Context) error {
	arts, err := r.store.ListArtifacts()
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	now := r.now()
	live := make(map[string]bool, len(arts))
	var errs error
	for _, art := range arts {
		live[art.ID] = true
		if !art.Build.Status.NeedsAttention() && !art.Clean.Status.NeedsAttention() {
			continue
		}

		if now.Sub(r.lastAttempt(art)) < r.cfg.MinBackoff {
			metrics.RescheduleSkipped.WithLabelValues("backoff").Inc()
			continue
		}

		insts, err := r.store.ListInstances(art.ID)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("artifact %s: %w", art.ID, err))
			continue
		}
		if ratio := FailureRatio(insts, art.UpdatedAt); ratio > r.cfg.MaxFailureRatio {
			metrics.RescheduleSkipped.WithLabelValues("halted").Inc()
			r.logger.Debug().
				Str("art_id", art.ID).
				Float64("failure_ratio", ratio).
				Msg("Rescheduling halted until the artifact is updated")
			continue
		}

		if err := r.queue.Enqueue(ctx, art.ID); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to enqueue %s: %w", art.ID, err))
			continue
		}
		r.mu.Lock()
		r.lastRequeued[art.ID] = now
		r.mu.Unlock()

		metrics.ArtifactsRequeued.Inc()
		r.logger.Info().
			Str("art_id", art.ID).
			Str("build", string(art.Build.Status)).
			Str("clean", string(art.Clean.Status)).
			Msg("Requeued artifact")
		r.publish(events.New(events.EventArtifactRequeued, art.ID, "artifact requeued").
			With("build", string(art.Build.Status)).
			With("clean", string(art.Clean.Status)))
	}

	r.mu.Lock()
	for id := range r.lastRequeued {
		if !live[id] {
			delete(r.lastRequeued, id)
		}
	}
	r.mu.Unlock()

	return errs
}

// lastAttempt is the latest of the rollouts' dispatch times and the last
// requeue made by this process.
func (r *Reconciler) lastAttempt(art *types.Artifact) time.Time {
	last := art.Build.LastScheduled
	if art.Clean.LastScheduled.After(last) {
		last = art.Clean.LastScheduled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.lastRequeued[art.ID]; ok && t.After(last) {
		last = t
	}
	return last
}

func (r *Reconciler) publish(ev *events.Event) {
	if r.events != nil {
		r.events.Publish(ev)
	}
}
