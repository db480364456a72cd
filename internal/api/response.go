package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/halcyonsec/beacon/internal/ingest"
	"github.com/halcyonsec/beacon/internal/signal"
	"github.com/halcyonsec/beacon/internal/store"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeComponentError maps a core-component error to its HTTP
// response. Validation, not-found, oversize, and transient-storage
// conditions carry their message to the caller; anything else is a
// storage-level failure whose detail stays in the server log — the
// remote caller sees only an opaque internal error.
func (h *Handler) writeComponentError(w http.ResponseWriter, err error) {
	var validationErr *signal.ValidationError
	var tooLargeErr *signal.PayloadTooLargeError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &tooLargeErr):
		writeError(w, http.StatusRequestEntityTooLarge, tooLargeErr.Error())
	case errors.Is(err, ingest.ErrNotFound):
		writeError(w, http.StatusNotFound, "signal not found")
	case store.IsBusy(err):
		writeError(w, http.StatusServiceUnavailable, "storage busy, retry")
	default:
		h.logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
