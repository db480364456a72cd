package signal

import "fmt"

// ValidationError reports a malformed or out-of-range field. It is
// detected before any storage interaction; the caller can fix the
// input and retry.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Msg)
}

// PayloadTooLargeError reports a context document whose serialized
// form exceeds MaxContextBytes. No partial write occurs.
type PayloadTooLargeError struct {
	Size int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("context too large: %d bytes (limit %d)", e.Size, MaxContextBytes)
}

func lengthError(field string, max int) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf("exceeds %d characters", max)}
}
