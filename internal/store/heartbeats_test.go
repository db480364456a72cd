package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/halcyonsec/beacon/internal/signal"
)

func testHeartbeat(agentID, timestamp string, uptime float64) *signal.Heartbeat {
	return &signal.Heartbeat{
		AgentID:       agentID,
		Timestamp:     timestamp,
		Version:       "1.4.0",
		OSVersion:     "14.2",
		UptimeSeconds: &uptime,
	}
}

func TestUpsertHeartbeatReplacesSameInstant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertHeartbeat(ctx, testHeartbeat("agent-1", "2026-08-20T11:59:00Z", 100)); err != nil {
		t.Fatalf("UpsertHeartbeat: %v", err)
	}
	// Same (agent_id, timestamp), different uptime: replaces the row.
	if err := s.UpsertHeartbeat(ctx, testHeartbeat("agent-1", "2026-08-20T11:59:00Z", 250)); err != nil {
		t.Fatalf("UpsertHeartbeat replace: %v", err)
	}

	since := storeTestEpoch.Add(-time.Hour).Format(TimeFormat)
	rows, err := s.LatestHeartbeatsSince(ctx, since, 100)
	if err != nil {
		t.Fatalf("LatestHeartbeatsSince: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].UptimeSeconds == nil || *rows[0].UptimeSeconds != 250 {
		t.Errorf("uptime = %v, want replaced value 250", rows[0].UptimeSeconds)
	}
}

func TestUpsertHeartbeatNewTimestampAddsRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hb.db")

	// Two opens with different fixed clocks so the two heartbeats get
	// distinct received_at values.
	s := openTestStoreAt(t, path, storeTestEpoch.Add(-time.Minute))
	ctx := context.Background()
	if err := s.UpsertHeartbeat(ctx, testHeartbeat("agent-1", "2026-08-20T11:58:00Z", 100)); err != nil {
		t.Fatalf("UpsertHeartbeat: %v", err)
	}

	s.now = func() time.Time { return storeTestEpoch }
	if err := s.UpsertHeartbeat(ctx, testHeartbeat("agent-1", "2026-08-20T11:59:00Z", 160)); err != nil {
		t.Fatalf("UpsertHeartbeat: %v", err)
	}

	// Both instants are stored; the presence scan collapses to the
	// most recent by received_at.
	since := storeTestEpoch.Add(-time.Hour).Format(TimeFormat)
	rows, err := s.LatestHeartbeatsSince(ctx, since, 100)
	if err != nil {
		t.Fatalf("LatestHeartbeatsSince: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("collapsed scan returned %d rows, want 1", len(rows))
	}
	if rows[0].Timestamp != "2026-08-20T11:59:00Z" {
		t.Errorf("kept timestamp = %q, want most recent", rows[0].Timestamp)
	}
	if rows[0].UptimeSeconds == nil || *rows[0].UptimeSeconds != 160 {
		t.Errorf("uptime = %v, want 160 from the newest row", rows[0].UptimeSeconds)
	}
}

func TestLatestHeartbeatsWindowAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// agent-old last reported an hour ago, agent-a and agent-b just now.
	s.now = func() time.Time { return storeTestEpoch.Add(-time.Hour) }
	if err := s.UpsertHeartbeat(ctx, testHeartbeat("agent-old", "2026-08-20T11:00:00Z", 10)); err != nil {
		t.Fatalf("UpsertHeartbeat: %v", err)
	}

	s.now = func() time.Time { return storeTestEpoch.Add(-2 * time.Minute) }
	if err := s.UpsertHeartbeat(ctx, testHeartbeat("agent-a", "2026-08-20T11:58:00Z", 20)); err != nil {
		t.Fatalf("UpsertHeartbeat: %v", err)
	}

	s.now = func() time.Time { return storeTestEpoch.Add(-1 * time.Minute) }
	if err := s.UpsertHeartbeat(ctx, testHeartbeat("agent-b", "2026-08-20T11:59:00Z", 30)); err != nil {
		t.Fatalf("UpsertHeartbeat: %v", err)
	}

	since := storeTestEpoch.Add(-10 * time.Minute).Format(TimeFormat)
	rows, err := s.LatestHeartbeatsSince(ctx, since, 100)
	if err != nil {
		t.Fatalf("LatestHeartbeatsSince: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d agents, want 2 inside the window", len(rows))
	}
	if rows[0].AgentID != "agent-b" || rows[1].AgentID != "agent-a" {
		t.Errorf("order = %s, %s; want newest first", rows[0].AgentID, rows[1].AgentID)
	}
}
