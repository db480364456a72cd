package signal

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Field limits enforced before any storage access. Lengths are counted
// in characters, not bytes: multibyte input within the character limit
// is accepted.
const (
	MaxSignalIDLen = 256
	MaxTSLen       = 64
	MaxHostIDLen   = 255
	MaxRuleIDLen   = 64
	MaxRuleDescLen = 2000
	MaxTitleLen    = 512
	MaxTags        = 50
	MaxTagLen      = 64

	// MaxContextBytes is the ceiling on the serialized size of a
	// signal's context document.
	MaxContextBytes = 100_000
)

// Signal status values. A signal is created open and moves between
// states only through an explicit status update.
const (
	StatusOpen         = "open"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Severity values, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Signal is a single detection event reported by a monitoring agent.
// SignalID is caller-supplied and globally unique by contract: it is
// the deduplication key, and a second ingest with the same ID is
// absorbed without overwriting the stored row.
type Signal struct {
	SignalID        string         `json:"signal_id"`
	TS              string         `json:"ts"` // event time, ISO-8601
	HostID          string         `json:"host_id"`
	RuleID          string         `json:"rule_id"`
	RuleDescription string         `json:"rule_description,omitempty"`
	Status          string         `json:"status"`
	Severity        string         `json:"severity"`
	Title           string         `json:"title"`
	Tags            []string       `json:"tags"`
	Context         map[string]any `json:"context"`
	ReceivedAt      string         `json:"received_at,omitempty"` // server-assigned
}

// ValidSeverity reports whether s is one of the four severity values.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the three status values.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

// Validate checks all field-length and enum constraints. An empty
// Status is allowed here; the ingestion pipeline defaults it to open.
func (s *Signal) Validate() error {
	if s.SignalID == "" {
		return &ValidationError{Field: "signal_id", Msg: "is required"}
	}
	if utf8.RuneCountInString(s.SignalID) > MaxSignalIDLen {
		return lengthError("signal_id", MaxSignalIDLen)
	}
	if s.TS == "" {
		return &ValidationError{Field: "ts", Msg: "is required"}
	}
	if utf8.RuneCountInString(s.TS) > MaxTSLen {
		return lengthError("ts", MaxTSLen)
	}
	if s.HostID == "" {
		return &ValidationError{Field: "host_id", Msg: "is required"}
	}
	if utf8.RuneCountInString(s.HostID) > MaxHostIDLen {
		return lengthError("host_id", MaxHostIDLen)
	}
	if s.RuleID == "" {
		return &ValidationError{Field: "rule_id", Msg: "is required"}
	}
	if utf8.RuneCountInString(s.RuleID) > MaxRuleIDLen {
		return lengthError("rule_id", MaxRuleIDLen)
	}
	if utf8.RuneCountInString(s.RuleDescription) > MaxRuleDescLen {
		return lengthError("rule_description", MaxRuleDescLen)
	}
	if !ValidSeverity(s.Severity) {
		return &ValidationError{Field: "severity", Msg: "must be one of low, medium, high, critical"}
	}
	if s.Status != "" && !ValidStatus(s.Status) {
		return &ValidationError{Field: "status", Msg: "must be one of open, acknowledged, resolved"}
	}
	if s.Title == "" {
		return &ValidationError{Field: "title", Msg: "is required"}
	}
	if utf8.RuneCountInString(s.Title) > MaxTitleLen {
		return lengthError("title", MaxTitleLen)
	}
	if len(s.Tags) > MaxTags {
		return &ValidationError{Field: "tags", Msg: fmt.Sprintf("at most %d entries", MaxTags)}
	}
	for i, tag := range s.Tags {
		if utf8.RuneCountInString(tag) > MaxTagLen {
			return &ValidationError{
				Field: fmt.Sprintf("tags[%d]", i),
				Msg:   fmt.Sprintf("exceeds %d characters", MaxTagLen),
			}
		}
	}
	return nil
}

// ContextSize returns the serialized size of the context document in
// bytes. An empty context serializes as {}.
func (s *Signal) ContextSize() (int, error) {
	data, err := json.Marshal(s.contextOrEmpty())
	if err != nil {
		return 0, fmt.Errorf("serializing context: %w", err)
	}
	return len(data), nil
}

func (s *Signal) contextOrEmpty() map[string]any {
	if s.Context == nil {
		return map[string]any{}
	}
	return s.Context
}
