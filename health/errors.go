package health

import "errors"

// Sentinel errors for circuit breaking.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open and
	// rejecting calls.
	ErrCircuitOpen = errors.New("health: circuit breaker is open")

	// ErrResourceFailed is the outcome recorded for a failure reported
	// without an underlying error.
	ErrResourceFailed = errors.New("health: resource call failed")
)
