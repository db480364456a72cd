// Package store is the durable storage engine for signals and
// heartbeats. It owns the SQLite schema, its indices, and the atomic
// insert/update primitives every other component builds on.
//
// Write path: the ingestion pipeline calls InsertSignalIfAbsent (a
// conditional insert keyed by signal_id) and the heartbeat tracker
// calls UpsertHeartbeat (insert-or-replace keyed by agent_id plus the
// agent-reported timestamp). Both are single-statement writes: no
// partial row is ever visible to a concurrent reader.
//
// Read path: QuerySignals composes optional predicates into one
// bounded, ts-descending scan; Stats runs the aggregate scans for the
// operator console; LatestHeartbeatsSince produces the presence
// snapshot. Reads never hold locks across statements.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// TimeFormat is the layout for server-assigned timestamps. The
// fractional part is fixed-width so that lexicographic order on the
// stored text equals chronological order.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// file is created if it does not exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative. SQLite serializes writes regardless of
	// pool size; extra connections serve concurrent readers.
	PoolSize int

	// Logger receives operational messages. Required.
	Logger *slog.Logger

	// Now provides the current time for server-assigned timestamps.
	// Defaults to time.Now. Tests substitute a fixed clock.
	Now func() time.Time
}

// Store is a SQLite-backed storage engine. Safe for concurrent use;
// individual connections are not, so each operation takes its own
// connection from the pool and returns it when done.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	now    func() time.Time
}

// Open creates the connection pool, applies the per-connection
// pragmas, and runs the idempotent schema migration. Safe to call on
// every process start against a database from zero or more prior runs.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("store: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	s := &Store{
		pool:   pool,
		logger: cfg.Logger,
		now:    now,
	}

	if err := s.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrating %s: %w", cfg.Path, err)
	}

	cfg.Logger.Info("store opened", "path", cfg.Path, "pool_size", poolSize)
	return s, nil
}

// Close closes the connection pool. Blocks until all borrowed
// connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// prepareConnection applies the standard pragmas once per pooled
// connection. WAL keeps readers off the writer's lock; busy_timeout
// bounds the wait under writer contention so a contended write fails
// with SQLITE_BUSY instead of blocking indefinitely.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return nil
}

// IsBusy reports whether err is a lock-timeout from a contended write.
// Such failures are transient: the caller (the remote agent) retries
// the delivery, and the idempotent insert absorbs the repeat.
func IsBusy(err error) bool {
	switch sqlite.ErrCode(err) {
	case sqlite.ResultBusy, sqlite.ResultLocked:
		return true
	}
	return false
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(TimeFormat)
}
