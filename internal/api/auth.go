package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/halcyonsec/beacon/internal/metrics"
)

// apiKeyHeader carries the shared-secret credential on write paths.
const apiKeyHeader = "X-API-Key"

// requireAPIKey rejects write requests whose credential is missing or
// incorrect. Both keys are hashed before comparison so the check runs
// in constant time regardless of length or position of the first
// mismatched byte.
func (h *Handler) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	expected := sha256.Sum256([]byte(h.apiKey))
	return func(w http.ResponseWriter, r *http.Request) {
		supplied := sha256.Sum256([]byte(r.Header.Get(apiKeyHeader)))
		if subtle.ConstantTimeCompare(supplied[:], expected[:]) != 1 {
			metrics.AuthFailures.Inc()
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next(w, r)
	}
}
