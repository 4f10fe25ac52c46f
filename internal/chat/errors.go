package chat

import "errors"

// Validation errors are rejected before any I/O happens.
var (
	ErrEmptyMessage    = errors.New("message is required")
	ErrEmptyPayload    = errors.New("payload is required")
	ErrInvalidToolType = errors.New("invalid tool type")
)

// UpstreamError is a provider failure surfaced before any streaming began:
// a missing credential or a rejected connection.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "upstream unavailable: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError is a store failure that happened before the provider call.
// Store failures after a successful stream are logged, not returned.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persistence failed: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }
