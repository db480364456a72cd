// Package ingest turns a validated inbound signal into a storage call
// and a caller-facing duplicate flag. Ingestion is idempotent and
// at-least-once safe: retried deliveries of the same signal_id never
// create a second row and never report an error.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/halcyonsec/beacon/internal/metrics"
	"github.com/halcyonsec/beacon/internal/signal"
	"github.com/halcyonsec/beacon/internal/store"
)

// ErrNotFound is returned by UpdateStatus when no signal has the
// given signal_id. A status update never creates a row.
var ErrNotFound = errors.New("signal not found")

// Pipeline is the signal ingestion pipeline. It holds no state of its
// own; every call is a request-scoped transformation over the store.
type Pipeline struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Pipeline over the given store.
func New(st *store.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: st, logger: logger}
}

// Result is the outcome of a successful ingest call.
type Result struct {
	SignalID  string
	Duplicate bool
}

// Ingest validates the signal, enforces the context-size ceiling, and
// performs the conditional insert. All constraint checks run before
// the storage call: a rejected signal causes no write. A duplicate
// signal_id is a normal, flagged outcome, not an error.
func (p *Pipeline) Ingest(ctx context.Context, sig *signal.Signal) (Result, error) {
	if err := sig.Validate(); err != nil {
		metrics.SignalsRejected.WithLabelValues("validation").Inc()
		return Result{}, err
	}
	if sig.Status == "" {
		sig.Status = signal.StatusOpen
	}

	size, err := sig.ContextSize()
	if err != nil {
		metrics.SignalsRejected.WithLabelValues("validation").Inc()
		return Result{}, &signal.ValidationError{Field: "context", Msg: "is not serializable"}
	}
	if size > signal.MaxContextBytes {
		metrics.SignalsRejected.WithLabelValues("payload_too_large").Inc()
		return Result{}, &signal.PayloadTooLargeError{Size: size}
	}

	inserted, err := p.store.InsertSignalIfAbsent(ctx, sig)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: %w", err)
	}

	if inserted {
		metrics.SignalsIngested.Inc()
		p.logger.Info("signal ingested",
			"signal_id", sig.SignalID,
			"host_id", sig.HostID,
			"rule_id", sig.RuleID,
			"severity", sig.Severity,
		)
	} else {
		metrics.SignalsDuplicate.Inc()
		p.logger.Debug("duplicate signal absorbed", "signal_id", sig.SignalID)
	}

	return Result{SignalID: sig.SignalID, Duplicate: !inserted}, nil
}

// UpdateStatus transitions an existing signal to a new status. The
// status value is checked before any storage mutation; an unknown
// signal_id is ErrNotFound, not a creation.
func (p *Pipeline) UpdateStatus(ctx context.Context, signalID, status string) error {
	if !signal.ValidStatus(status) {
		return &signal.ValidationError{Field: "status", Msg: "must be one of open, acknowledged, resolved"}
	}

	found, err := p.store.UpdateSignalStatus(ctx, signalID, status)
	if err != nil {
		return fmt.Errorf("ingest: update status: %w", err)
	}
	if !found {
		return ErrNotFound
	}

	metrics.StatusUpdates.WithLabelValues(status).Inc()
	p.logger.Info("signal status updated", "signal_id", signalID, "status", status)
	return nil
}
