package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schema is the current table and index layout. CREATE IF NOT EXISTS
// makes the script idempotent; databases created by an older binary
// are brought up to this shape by the additive steps in migrate.
const schema = `
	CREATE TABLE IF NOT EXISTS signals (
		signal_id        TEXT PRIMARY KEY,
		ts               TEXT NOT NULL,
		host_id          TEXT NOT NULL,
		rule_id          TEXT NOT NULL,
		rule_description TEXT,
		status           TEXT NOT NULL DEFAULT 'open',
		severity         TEXT NOT NULL,
		title            TEXT NOT NULL,
		tags             TEXT,
		context          TEXT,
		received_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_signals_host_id ON signals(host_id);
	CREATE INDEX IF NOT EXISTS idx_signals_severity ON signals(severity);

	CREATE TABLE IF NOT EXISTS heartbeats (
		agent_id       TEXT NOT NULL,
		timestamp      TEXT NOT NULL,
		version        TEXT,
		os_version     TEXT,
		uptime_seconds REAL,
		received_at    TEXT NOT NULL,
		PRIMARY KEY (agent_id, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_heartbeats_agent ON heartbeats(agent_id, received_at DESC);
`

// migrate creates the tables and indices, then applies the additive
// column steps for databases that predate rule_description and status.
// Never destructive: existing rows and columns are left untouched.
func (s *Store) migrate(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	columns, err := tableColumns(conn, "signals")
	if err != nil {
		return err
	}

	if !columns["rule_description"] {
		if err := sqlitex.ExecuteTransient(conn,
			"ALTER TABLE signals ADD COLUMN rule_description TEXT", nil); err != nil {
			return fmt.Errorf("adding rule_description column: %w", err)
		}
		s.logger.Info("migration: added signals.rule_description")
	}

	if !columns["status"] {
		if err := sqlitex.ExecuteTransient(conn,
			"ALTER TABLE signals ADD COLUMN status TEXT DEFAULT 'open'", nil); err != nil {
			return fmt.Errorf("adding status column: %w", err)
		}
		s.logger.Info("migration: added signals.status")
	}

	// Rows written before the status column existed carry NULL or
	// empty status; normalize them to open.
	if err := sqlitex.ExecuteTransient(conn,
		"UPDATE signals SET status = 'open' WHERE status IS NULL OR status = ''", nil); err != nil {
		return fmt.Errorf("backfilling status: %w", err)
	}

	return nil
}

// tableColumns returns the column names of a table as reported by
// PRAGMA table_info.
func tableColumns(conn *sqlite.Conn, table string) (map[string]bool, error) {
	columns := make(map[string]bool)
	err := sqlitex.ExecuteTransient(conn, "PRAGMA table_info("+table+")", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			columns[stmt.ColumnText(1)] = true
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s columns: %w", table, err)
	}
	return columns, nil
}
