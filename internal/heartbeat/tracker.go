// Package heartbeat records agent liveness reports and answers the
// "currently live" presence query.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyonsec/beacon/internal/metrics"
	"github.com/halcyonsec/beacon/internal/signal"
	"github.com/halcyonsec/beacon/internal/store"
)

// DefaultWindow is the presence window applied when a listing gives
// no explicit lower bound: an agent counts as live when its latest
// heartbeat was received within the last 10 minutes.
const DefaultWindow = 10 * time.Minute

// Tracker is the heartbeat component. Stateless; all rows live in the
// store.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Tracker over the given store.
func New(st *store.Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: st, logger: logger, now: time.Now}
}

// Record validates and upserts a heartbeat. There is no duplicate
// concept: the same (agent_id, timestamp) pair replaces the prior row.
func (t *Tracker) Record(ctx context.Context, hb *signal.Heartbeat) error {
	if err := hb.Validate(); err != nil {
		return err
	}
	if err := t.store.UpsertHeartbeat(ctx, hb); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	metrics.HeartbeatsRecorded.Inc()
	t.logger.Debug("heartbeat recorded", "agent_id", hb.AgentID, "version", hb.Version)
	return nil
}

// ListAgents returns the presence snapshot: at most one entry per
// agent, the most recent by received_at, newest first, bounded by
// limit. An empty since applies the default window.
func (t *Tracker) ListAgents(ctx context.Context, since string, limit int) ([]signal.Heartbeat, error) {
	if since == "" {
		since = t.now().UTC().Add(-DefaultWindow).Format(store.TimeFormat)
	}
	heartbeats, err := t.store.LatestHeartbeatsSince(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	return heartbeats, nil
}
