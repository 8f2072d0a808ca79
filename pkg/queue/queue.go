package queue

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by BlockDequeue when nothing arrived in time. It is
// the normal empty-queue signal, not a failure.
var ErrTimeout = errors.New("queue: timed out waiting for work")

// Queue is a FIFO of artifact ids. Duplicate ids are allowed; consumers
// recompute everything from current state, so repeats only cost a pass.
type Queue interface {
	// Enqueue appends an artifact id to the tail
	Enqueue(ctx context.Context, artID string) error

	// Dequeue pops the head without blocking. ok is false on an empty queue.
	Dequeue(ctx context.Context) (artID string, ok bool, err error)

	// BlockDequeue waits until an id is available or timeout elapses. A zero
	// timeout waits until ctx is done.
	BlockDequeue(ctx context.Context, timeout time.Duration) (string, error)

	// Reset drops every queued id
	Reset(ctx context.Context) error

	// Depth returns the number of queued ids
	Depth(ctx context.Context) (int, error)

	Close() error
}
