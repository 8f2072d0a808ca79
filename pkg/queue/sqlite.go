package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BinJu/train/pkg/log"

	_ "modernc.org/sqlite"
)

// DefaultPollInterval bounds how long BlockDequeue can miss an id enqueued by
// another process sharing the database file.
const DefaultPollInterval = 500 * time.Millisecond

// SQLiteQueue is a durable Queue kept in a single SQLite table
type SQLiteQueue struct {
	db           *sql.DB
	notify       chan struct{}
	pollInterval time.Duration
}

// OpenSQLite opens (and creates if needed) the queue database at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteQueue, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes the claim in Dequeue within this process
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := bootstrap(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteQueue{
		db:           db,
		notify:       make(chan struct{}, 1),
		pollInterval: DefaultPollInterval,
	}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS artifact_queue (
  seq         INTEGER PRIMARY KEY AUTOINCREMENT,
  art_id      TEXT NOT NULL,
  enqueued_at TEXT NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("bootstrap artifact_queue: %w", err)
	}
	return nil
}

// Enqueue appends artID to the tail of the queue
func (q *SQLiteQueue) Enqueue(ctx context.Context, artID string) error {
	if artID == "" {
		return fmt.Errorf("artifact id is empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO artifact_queue(art_id, enqueued_at) VALUES(?, ?);`, artID, now); err != nil {
		return fmt.Errorf("enqueue %s: %w", artID, err)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue removes and returns the oldest id. ok is false if the queue is empty.
func (q *SQLiteQueue) Dequeue(ctx context.Context) (string, bool, error) {
	var artID string
	err := q.db.QueryRowContext(ctx, `
DELETE FROM artifact_queue
WHERE seq = (SELECT MIN(seq) FROM artifact_queue)
RETURNING art_id;`).Scan(&artID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dequeue: %w", err)
	}
	return artID, true, nil
}

// BlockDequeue waits for an id. It returns ErrTimeout once timeout elapses;
// a zero timeout blocks until ctx is cancelled.
func (q *SQLiteQueue) BlockDequeue(ctx context.Context, timeout time.Duration) (string, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		artID, ok, err := q.Dequeue(ctx)
		if err != nil {
			return "", err
		}
		if ok {
			return artID, nil
		}

		select {
		case <-q.notify:
		case <-ticker.C:
		case <-deadline:
			return "", ErrTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Reset empties the queue
func (q *SQLiteQueue) Reset(ctx context.Context) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM artifact_queue;`)
	if err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Logger.Debug().Str("component", "queue").Int64("dropped", n).Msg("Queue reset")
	}
	return nil
}

// Depth returns how many ids are waiting
func (q *SQLiteQueue) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifact_queue;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// Close closes the underlying database
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
