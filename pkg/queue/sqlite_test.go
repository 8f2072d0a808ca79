package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *SQLiteQueue {
	t.Helper()
	q, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, "art-001"))
	require.NoError(t, q.Enqueue(ctx, "art-002"))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	first, err := q.BlockDequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "art-001", first)

	second, err := q.BlockDequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "art-002", second)

	_, err = q.BlockDequeue(ctx, time.Second)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestQueueDequeueEmpty(t *testing.T) {
	q := newTestQueue(t)

	id, ok, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestQueueDuplicatesAllowed(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for _, id := range []string{"a", "b", "a"} {
		require.NoError(t, q.Enqueue(ctx, id))
	}

	var got []string
	for {
		id, ok, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, id)
	}
	assert.Equal(t, []string{"a", "b", "a"}, got)
}

func TestQueueBlockDequeueWakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	q.pollInterval = time.Hour

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = q.Enqueue(ctx, "late")
	}()

	id, err := q.BlockDequeue(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", id)
}

func TestQueueBlockDequeueZeroTimeoutHonorsContext(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := q.BlockDequeue(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueReset(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))
	require.NoError(t, q.Reset(ctx))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, "persisted"))
	require.NoError(t, q.Close())

	q, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer q.Close()

	id, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", id)
}

func TestQueueRejectsEmptyID(t *testing.T) {
	q := newTestQueue(t)
	assert.Error(t, q.Enqueue(context.Background(), ""))
}
