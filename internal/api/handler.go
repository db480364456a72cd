package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halcyonsec/beacon/internal/heartbeat"
	"github.com/halcyonsec/beacon/internal/ingest"
	"github.com/halcyonsec/beacon/internal/signal"
	"github.com/halcyonsec/beacon/internal/store"
)

// Listing bounds. Out-of-range limits are rejected before any storage
// access.
const (
	defaultSignalLimit = 100
	maxSignalLimit     = 1000
	defaultAgentLimit  = 200
	maxAgentLimit      = 2000
)

// maxRequestBody bounds inbound JSON bodies. Comfortably above the
// 100,000-byte context ceiling plus the other fields.
const maxRequestBody = 1 << 20

// Deps holds the handler dependencies.
type Deps struct {
	Pipeline  *ingest.Pipeline
	Tracker   *heartbeat.Tracker
	Store     *store.Store
	APIKey    string
	StaticDir string
	Logger    Logger

	// Now provides the current time for response timestamps. Defaults
	// to time.Now. Tests substitute a fixed clock.
	Now func() time.Time
}

// Logger is the subset of slog used by the handlers.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	pipeline  *ingest.Pipeline
	tracker   *heartbeat.Tracker
	store     *store.Store
	apiKey    string
	staticDir string
	logger    Logger
	now       func() time.Time
	mux       *http.ServeMux
}

// New creates an HTTP handler and registers all routes. Write paths
// (ingest, heartbeat) sit behind the API-key middleware; status
// updates and reads do not.
func New(deps Deps) http.Handler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	h := &Handler{
		pipeline:  deps.Pipeline,
		tracker:   deps.Tracker,
		store:     deps.Store,
		apiKey:    deps.APIKey,
		staticDir: deps.StaticDir,
		logger:    deps.Logger,
		now:       now,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /ingest", h.requireAPIKey(h.ingestSignal))
	h.mux.HandleFunc("POST /agents/heartbeat", h.requireAPIKey(h.recordHeartbeat))
	h.mux.HandleFunc("PATCH /signals/{signal_id}/status", h.updateStatus)
	h.mux.HandleFunc("GET /signals", h.listSignals)
	h.mux.HandleFunc("GET /agents", h.listAgents)
	h.mux.HandleFunc("GET /stats", h.stats)
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("GET /{$}", h.index)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	if deps.StaticDir != "" {
		if info, err := os.Stat(deps.StaticDir); err == nil && info.IsDir() {
			h.mux.Handle("GET /ui/", http.StripPrefix("/ui/", http.FileServer(http.Dir(deps.StaticDir))))
		} else {
			deps.Logger.Warn("static UI directory not found, skipping /ui mount", "dir", deps.StaticDir)
		}
	}

	return h.loggingMiddleware(h.mux)
}

// POST /ingest — idempotent single-signal ingestion.
func (h *Handler) ingestSignal(w http.ResponseWriter, r *http.Request) {
	var sig signal.Signal
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	res, err := h.pipeline.Ingest(r.Context(), &sig)
	if err != nil {
		h.writeComponentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"id":        res.SignalID,
		"duplicate": res.Duplicate,
	})
}

// statusUpdate is the PATCH body for a status transition.
type statusUpdate struct {
	Status string `json:"status"`
}

// PATCH /signals/{signal_id}/status — transition an existing signal.
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	signalID := r.PathValue("signal_id")

	var update statusUpdate
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	if err := h.pipeline.UpdateStatus(r.Context(), signalID, update.Status); err != nil {
		h.writeComponentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"signal_id": signalID,
		"status":    update.Status,
	})
}

// POST /agents/heartbeat — record an agent liveness report.
func (h *Handler) recordHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb signal.Heartbeat
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	if err := h.tracker.Record(r.Context(), &hb); err != nil {
		h.writeComponentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"agent_id": hb.AgentID,
	})
}

// GET /signals — filtered listing in reverse chronological order.
func (h *Handler) listSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Listings show open signals unless the caller asks otherwise;
	// "all" disables the status predicate.
	status := q.Get("status")
	if status == "" {
		status = signal.StatusOpen
	}
	if status == "all" {
		status = ""
	} else if !signal.ValidStatus(status) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid status %q: must be open, acknowledged, resolved, or all", status))
		return
	}

	limit, err := parseLimit(q.Get("limit"), defaultSignalLimit, maxSignalLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	signals, err := h.store.QuerySignals(r.Context(), store.SignalFilter{
		Since:    q.Get("since"),
		Severity: q.Get("severity"),
		HostID:   q.Get("host_id"),
		Status:   status,
		Search:   q.Get("search"),
		Limit:    limit,
	})
	if err != nil {
		h.writeComponentError(w, err)
		return
	}
	if signals == nil {
		signals = []signal.Signal{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(signals),
		"signals": signals,
	})
}

// GET /agents — presence snapshot: latest heartbeat per agent.
func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"), defaultAgentLimit, maxAgentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	heartbeats, err := h.tracker.ListAgents(r.Context(), q.Get("since"), limit)
	if err != nil {
		h.writeComponentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(heartbeats),
		"heartbeats": heartbeats,
	})
}

// GET /stats — aggregate counts for the operator console.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.QueryStats(r.Context())
	if err != nil {
		h.writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /health — liveness indicator.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(store.TimeFormat),
	})
}

// GET / — API index.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name": "beacon",
		"endpoints": map[string]string{
			"POST /ingest":                      "Receive signals from agents",
			"GET /signals":                      "List and filter signals",
			"PATCH /signals/{signal_id}/status": "Update signal status",
			"POST /agents/heartbeat":            "Receive agent heartbeat",
			"GET /agents":                       "List agents with latest heartbeats",
			"GET /stats":                        "Get statistics",
			"GET /health":                       "Health check",
			"GET /metrics":                      "Prometheus metrics",
			"GET /ui":                           "Operator console (if configured)",
		},
	})
}

// parseLimit parses a limit query parameter, applying the default when
// absent and rejecting values outside [1, max].
func parseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q: must be an integer", raw)
	}
	if limit < 1 || limit > max {
		return 0, fmt.Errorf("invalid limit %d: must be between 1 and %d", limit, max)
	}
	return limit, nil
}
