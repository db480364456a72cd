package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/halcyonsec/beacon/internal/signal"
)

// UpsertHeartbeat atomically inserts or replaces the heartbeat row
// keyed by (agent_id, timestamp). Re-reporting the same pair is
// last-write-wins: the non-key columns and received_at are replaced.
func (s *Store) UpsertHeartbeat(ctx context.Context, hb *signal.Heartbeat) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert heartbeat: %w", err)
	}
	defer s.pool.Put(conn)

	var uptime any
	if hb.UptimeSeconds != nil {
		uptime = *hb.UptimeSeconds
	}

	err = sqlitex.Execute(conn, `INSERT INTO heartbeats
		(agent_id, timestamp, version, os_version, uptime_seconds, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, timestamp) DO UPDATE SET
			version = excluded.version,
			os_version = excluded.os_version,
			uptime_seconds = excluded.uptime_seconds,
			received_at = excluded.received_at`, &sqlitex.ExecOptions{
		Args: []any{
			hb.AgentID,
			hb.Timestamp,
			hb.Version,
			hb.OSVersion,
			uptime,
			s.timestamp(),
		},
	})
	if err != nil {
		return fmt.Errorf("store: upsert heartbeat %s: %w", hb.AgentID, err)
	}
	return nil
}

// LatestHeartbeatsSince scans heartbeats received after the given
// bound, newest first, and collapses the scan to one row per agent
// keeping the first (most recent) occurrence. The SQL LIMIT bounds the
// scan, so the collapse may return fewer rows than limit.
func (s *Store) LatestHeartbeatsSince(ctx context.Context, since string, limit int) ([]signal.Heartbeat, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: latest heartbeats: %w", err)
	}
	defer s.pool.Put(conn)

	seen := make(map[string]bool)
	heartbeats := []signal.Heartbeat{}

	err = sqlitex.Execute(conn, `SELECT agent_id, timestamp, version, os_version,
		uptime_seconds, received_at FROM heartbeats
		WHERE received_at > ? ORDER BY received_at DESC LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{since, limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			agentID := stmt.ColumnText(0)
			if seen[agentID] {
				return nil
			}
			seen[agentID] = true

			hb := signal.Heartbeat{
				AgentID:    agentID,
				Timestamp:  stmt.ColumnText(1),
				Version:    stmt.ColumnText(2),
				OSVersion:  stmt.ColumnText(3),
				ReceivedAt: stmt.ColumnText(5),
			}
			if !stmt.ColumnIsNull(4) {
				uptime := stmt.ColumnFloat(4)
				hb.UptimeSeconds = &uptime
			}
			heartbeats = append(heartbeats, hb)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: latest heartbeats: %w", err)
	}
	return heartbeats, nil
}
