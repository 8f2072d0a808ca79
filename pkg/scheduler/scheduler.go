package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/BinJu/train/pkg/events"
	"github.com/BinJu/train/pkg/log"
	"github.com/BinJu/train/pkg/metrics"
	"github.com/BinJu/train/pkg/queue"
	"github.com/BinJu/train/pkg/storage"
	"github.com/BinJu/train/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultPollTimeout is how long one BlockDequeue waits before the loop
// checks for shutdown again.
const DefaultPollTimeout = 5 * time.Second

// Dispatcher starts rollout runs. rollout.Executor implements it.
type Dispatcher interface {
	Build(ctx context.Context, art *types.Artifact, copies int) ([]*types.Instance, error)
	Clean(ctx context.Context, art *types.Artifact, victims []*types.Instance) ([]*types.Instance, error)
}

// Decision is the outcome of processing one artifact id
type Decision struct {
	Numbers  types.InstanceNumbers
	ToDeploy int
	// Kind is empty when nothing was dispatched
	Kind    types.RolloutKind
	Started int
	Status  types.RolloutStatus
}

// Scheduler is the single consumer of the artifact queue. For every id it
// pops it recomputes how many instances to build or clean and dispatches.
type Scheduler struct {
	store       storage.Store
	queue       queue.Queue
	dispatcher  Dispatcher
	events      events.Publisher
	pollTimeout time.Duration
	logger      zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	cancel   context.CancelFunc
}

// NewScheduler creates a new scheduler. pub may be nil.
func NewScheduler(store storage.Store, q queue.Queue, d Dispatcher, pub events.Publisher, pollTimeout time.Duration) *Scheduler {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Scheduler{
		store:       store,
		queue:       q,
		dispatcher:  d,
		events:      pub,
		pollTimeout: pollTimeout,
		logger:      log.WithComponent("scheduler"),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the dispatch loop
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	metrics.RegisterComponent("scheduler", true, "dispatch loop running")
	go s.run(ctx)
}

// Stop stops the dispatch loop and waits for the current artifact to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.cancel != nil {
			s.cancel()
			<-s.doneCh
		}
		metrics.UpdateComponent("scheduler", false, "stopped")
	})
}

// run is the main dispatch loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		artID, err := s.queue.BlockDequeue(ctx, s.pollTimeout)
		switch {
		case errors.Is(err, queue.ErrTimeout):
			continue
		case ctx.Err() != nil:
			return
		case err != nil:
			s.logger.Error().Err(err).Msg("Failed to dequeue")
			select {
			case <-time.After(time.Second):
			case <-s.stopCh:
				return
			}
			continue
		}

		s.logger.Debug().Str("art_id", artID).Msg("Dequeued artifact")
		if _, err := s.Process(ctx, artID); err != nil {
			s.logger.Error().Err(err).Str("art_id", artID).Msg("Failed to process artifact")
		}
	}
}

// Process runs one scheduling cycle for an artifact. Dispatch failures are
// recorded in the rollout status and are not returned; the error reports
// only store failures that left the cycle incomplete.
func (s *Scheduler) Process(ctx context.Context, artID string) (*Decision, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchLatency)

	art, err := s.store.GetArtifact(artID)
	if errors.Is(err, storage.ErrNotFound) {
		// Stale entry for an artifact that was torn down
		s.logger.Debug().Str("art_id", artID).Msg("Artifact no longer exists")
		return &Decision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	insts, err := s.store.ListInstances(artID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instances: %w", err)
	}

	d := &Decision{Numbers: CountInstances(insts)}
	d.ToDeploy = ToDeploy(art.Total, art.Target, d.Numbers)

	logger := s.logger.With().Str("art_id", artID).Logger()
	logger.Debug().
		Int("running", d.Numbers.Running).
		Int("failed", d.Numbers.Failed).
		Int("done_clean", d.Numbers.DoneClean).
		Int("done_dirty", d.Numbers.DoneDirty).
		Int("to_deploy", d.ToDeploy).
		Msg("Computed deployment")

	var (
		started     []*types.Instance
		dispatchErr error
	)
	switch {
	case d.ToDeploy > 0:
		d.Kind = types.RolloutBuild
		started, dispatchErr = s.dispatcher.Build(ctx, art, d.ToDeploy)
	case d.ToDeploy < 0:
		victims := SelectVictims(insts, -d.ToDeploy)
		if len(victims) == 0 {
			return d, nil
		}
		d.Kind = types.RolloutClean
		started, dispatchErr = s.dispatcher.Clean(ctx, art, victims)
	default:
		return d, nil
	}

	// Runs that started exist in the cluster whether or not the rest failed
	var persistErr error
	for _, inst := range started {
		if err := s.store.CreateInstance(inst); err != nil {
			logger.Error().Err(err).Str("inst_id", inst.ID).Str("run_handle", inst.RunHandle).Msg("Failed to persist instance")
			persistErr = errors.Join(persistErr, err)
			continue
		}
		d.Started++
	}
	metrics.InstancesStarted.WithLabelValues(string(d.Kind)).Add(float64(d.Started))

	d.Status = types.StatusForError(dispatchErr)
	if err := s.store.UpdateRolloutStatus(artID, d.Kind, d.Status, time.Now()); err != nil {
		return d, errors.Join(persistErr, fmt.Errorf("failed to update %s rollout status: %w", d.Kind, err))
	}
	metrics.RolloutsDispatched.WithLabelValues(string(d.Kind), string(d.Status)).Inc()

	if dispatchErr != nil {
		logger.Warn().Err(dispatchErr).
			Str("kind", string(d.Kind)).
			Str("status", string(d.Status)).
			Int("started", d.Started).
			Msg("Rollout dispatch failed")
		s.publish(events.New(events.EventRolloutFailed, artID, dispatchErr.Error()).
			With("kind", string(d.Kind)).
			With("status", string(d.Status)))
	} else {
		logger.Info().
			Str("kind", string(d.Kind)).
			Int("started", d.Started).
			Msg("Rollout dispatched")
		s.publish(events.New(events.EventRolloutDispatched, artID, "rollout dispatched").
			With("kind", string(d.Kind)).
			With("copies", strconv.Itoa(d.Started)))
	}

	return d, persistErr
}

func (s *Scheduler) publish(ev *events.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}
