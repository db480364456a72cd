package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/halcyonsec/beacon/internal/metrics"
	"github.com/halcyonsec/beacon/internal/signal"
)

// InsertSignalIfAbsent atomically inserts a signal unless a row with
// the same signal_id already exists. A duplicate is not an error: the
// method reports inserted=false and the stored row keeps the field
// values from the first successful ingest. ReceivedAt is assigned
// here, at the storage boundary, and is immutable afterwards.
func (s *Store) InsertSignalIfAbsent(ctx context.Context, sig *signal.Signal) (inserted bool, err error) {
	tagsJSON, err := json.Marshal(tagsOrEmpty(sig.Tags))
	if err != nil {
		return false, fmt.Errorf("store: marshal tags: %w", err)
	}

	contextJSON, err := json.Marshal(contextOrEmpty(sig.Context))
	if err != nil {
		return false, fmt.Errorf("store: marshal context: %w", err)
	}
	if len(contextJSON) > signal.MaxContextBytes {
		return false, &signal.PayloadTooLargeError{Size: len(contextJSON)}
	}

	status := sig.Status
	if status == "" {
		status = signal.StatusOpen
	}

	var ruleDescription any
	if sig.RuleDescription != "" {
		ruleDescription = sig.RuleDescription
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("store: insert signal: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO signals
		(signal_id, ts, host_id, rule_id, rule_description, status,
		 severity, title, tags, context, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signal_id) DO NOTHING`, &sqlitex.ExecOptions{
		Args: []any{
			sig.SignalID,
			sig.TS,
			sig.HostID,
			sig.RuleID,
			ruleDescription,
			status,
			sig.Severity,
			sig.Title,
			string(tagsJSON),
			string(contextJSON),
			s.timestamp(),
		},
	})
	if err != nil {
		return false, fmt.Errorf("store: insert signal %s: %w", sig.SignalID, err)
	}

	return conn.Changes() > 0, nil
}

// UpdateSignalStatus atomically sets the status of an existing signal.
// Reports found=false when no row has the given signal_id; the row is
// not created in that case.
func (s *Store) UpdateSignalStatus(ctx context.Context, signalID, status string) (found bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("store: update status: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "UPDATE signals SET status = ? WHERE signal_id = ?",
		&sqlitex.ExecOptions{Args: []any{status, signalID}})
	if err != nil {
		return false, fmt.Errorf("store: update status %s: %w", signalID, err)
	}

	return conn.Changes() > 0, nil
}

// SignalFilter specifies the optional predicates for QuerySignals.
// Zero-valued fields are not applied.
type SignalFilter struct {
	Since    string // exclusive lower bound on ts
	Severity string // exact match
	HostID   string // exact match
	Status   string // exact match; empty means all statuses
	Search   string // case-insensitive substring over title OR rule_id
	Limit    int    // maximum rows (default 100)
}

// QuerySignals returns signals matching the filter, ordered by ts
// descending. Stored tags and context JSON are parsed back into
// structured form; a malformed stored document does not fail the
// listing — the row is returned with an empty container and the
// condition is logged and counted.
func (s *Store) QuerySignals(ctx context.Context, filter SignalFilter) ([]signal.Signal, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: query signals: %w", err)
	}
	defer s.pool.Put(conn)

	var conditions []string
	var args []any

	if filter.Since != "" {
		conditions = append(conditions, "ts > ?")
		args = append(args, filter.Since)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.HostID != "" {
		conditions = append(conditions, "host_id = ?")
		args = append(args, filter.HostID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		conditions = append(conditions, "(LOWER(title) LIKE ? OR LOWER(rule_id) LIKE ?)")
		like := "%" + term + "%"
		args = append(args, like, like)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT signal_id, ts, host_id, rule_id, rule_description, status, " +
		"severity, title, tags, context, received_at FROM signals"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	var signals []signal.Signal
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			signals = append(signals, s.scanSignal(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: query signals: %w", err)
	}
	return signals, nil
}

func (s *Store) scanSignal(stmt *sqlite.Stmt) signal.Signal {
	// Columns: signal_id(0), ts(1), host_id(2), rule_id(3),
	// rule_description(4), status(5), severity(6), title(7), tags(8),
	// context(9), received_at(10)
	sig := signal.Signal{
		SignalID:        stmt.ColumnText(0),
		TS:              stmt.ColumnText(1),
		HostID:          stmt.ColumnText(2),
		RuleID:          stmt.ColumnText(3),
		RuleDescription: stmt.ColumnText(4),
		Status:          stmt.ColumnText(5),
		Severity:        stmt.ColumnText(6),
		Title:           stmt.ColumnText(7),
		Tags:            []string{},
		Context:         map[string]any{},
		ReceivedAt:      stmt.ColumnText(10),
	}

	if sig.Status == "" {
		sig.Status = signal.StatusOpen
	}

	if raw := stmt.ColumnText(8); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sig.Tags); err != nil {
			sig.Tags = []string{}
			s.dataIntegrityWarning(sig.SignalID, "tags", err)
		}
	}
	if raw := stmt.ColumnText(9); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sig.Context); err != nil {
			sig.Context = map[string]any{}
			s.dataIntegrityWarning(sig.SignalID, "context", err)
		}
	}

	return sig
}

// dataIntegrityWarning records a malformed stored JSON document. The
// row is still served with an empty container so one bad row cannot
// take down a whole listing.
func (s *Store) dataIntegrityWarning(signalID, column string, err error) {
	metrics.DataIntegrityWarnings.Inc()
	s.logger.Warn("malformed stored JSON",
		"signal_id", signalID,
		"column", column,
		"error", err,
	)
}

// RuleCount is one entry of the top-rules ranking.
type RuleCount struct {
	RuleID string `json:"rule_id"`
	Count  int64  `json:"count"`
}

// Stats holds the aggregate view over the signals table.
type Stats struct {
	TotalSignals int64            `json:"total_signals"`
	Last24h      int64            `json:"last_24h"`
	BySeverity   map[string]int64 `json:"by_severity"`
	ByHost       map[string]int64 `json:"by_host"`
	TopRules     []RuleCount      `json:"top_rules"`
}

const topRulesLimit = 10

// QueryStats runs the read-only aggregate scans for the operator
// console: total count, event-time activity in the last 24 hours, and
// the by-severity, by-host, and top-rules breakdowns.
func (s *Store) QueryStats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	defer s.pool.Put(conn)

	stats := Stats{
		BySeverity: make(map[string]int64),
		ByHost:     make(map[string]int64),
		TopRules:   []RuleCount{},
	}

	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM signals", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.TotalSignals = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats total: %w", err)
	}

	cutoff := s.now().UTC().Add(-24 * time.Hour).Format(TimeFormat)
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM signals WHERE ts > ?", &sqlitex.ExecOptions{
		Args: []any{cutoff},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.Last24h = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats last 24h: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT severity, COUNT(*) FROM signals GROUP BY severity ORDER BY COUNT(*) DESC",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.BySeverity[stmt.ColumnText(0)] = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats by severity: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT host_id, COUNT(*) FROM signals GROUP BY host_id ORDER BY COUNT(*) DESC",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.ByHost[stmt.ColumnText(0)] = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats by host: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT rule_id, COUNT(*) FROM signals GROUP BY rule_id ORDER BY COUNT(*) DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{topRulesLimit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.TopRules = append(stats.TopRules, RuleCount{
					RuleID: stmt.ColumnText(0),
					Count:  stmt.ColumnInt64(1),
				})
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats top rules: %w", err)
	}

	return stats, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func contextOrEmpty(context map[string]any) map[string]any {
	if context == nil {
		return map[string]any{}
	}
	return context
}
