package signal

import "unicode/utf8"

// Heartbeat field limits, counted in characters.
const (
	MaxAgentIDLen     = 255
	MaxHBTimestampLen = 64
	MaxVersionLen     = 32
	MaxOSVersionLen   = 32
)

// Heartbeat is a periodic liveness report from an agent. Identity is
// the (agent_id, timestamp) pair: re-reporting the same pair replaces
// the stored row, unlike signals which are insert-once.
type Heartbeat struct {
	AgentID       string   `json:"agent_id"`
	Timestamp     string   `json:"timestamp"` // agent-reported, ISO-8601
	Version       string   `json:"version"`
	OSVersion     string   `json:"os_version"`
	UptimeSeconds *float64 `json:"uptime_seconds,omitempty"`
	ReceivedAt    string   `json:"received_at,omitempty"` // server-assigned
}

// Validate checks field lengths and the non-negative uptime constraint.
func (h *Heartbeat) Validate() error {
	if h.AgentID == "" {
		return &ValidationError{Field: "agent_id", Msg: "is required"}
	}
	if utf8.RuneCountInString(h.AgentID) > MaxAgentIDLen {
		return lengthError("agent_id", MaxAgentIDLen)
	}
	if h.Timestamp == "" {
		return &ValidationError{Field: "timestamp", Msg: "is required"}
	}
	if utf8.RuneCountInString(h.Timestamp) > MaxHBTimestampLen {
		return lengthError("timestamp", MaxHBTimestampLen)
	}
	if h.Version == "" {
		return &ValidationError{Field: "version", Msg: "is required"}
	}
	if utf8.RuneCountInString(h.Version) > MaxVersionLen {
		return lengthError("version", MaxVersionLen)
	}
	if h.OSVersion == "" {
		return &ValidationError{Field: "os_version", Msg: "is required"}
	}
	if utf8.RuneCountInString(h.OSVersion) > MaxOSVersionLen {
		return lengthError("os_version", MaxOSVersionLen)
	}
	if h.UptimeSeconds != nil && *h.UptimeSeconds < 0 {
		return &ValidationError{Field: "uptime_seconds", Msg: "must be non-negative"}
	}
	return nil
}
