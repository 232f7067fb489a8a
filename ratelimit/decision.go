package ratelimit

import (
	"errors"
	"time"
)

// Common errors returned by the limiter.
var (
	// ErrRateLimited is returned when a caller exceeded its bucket.
	ErrRateLimited = errors.New("ratelimit: rate limit exceeded")

	// ErrCircuitOpen is returned when the resource's circuit breaker is
	// rejecting all traffic.
	ErrCircuitOpen = errors.New("ratelimit: resource circuit is open")
)

// Status is the outcome of an admission check.
type Status int

// Admission outcomes.
const (
	// StatusOK admits the request; tokens were deducted.
	StatusOK Status = iota

	// StatusRateLimited rejects the request; the bucket lacked tokens.
	// RetryAfter hints when enough tokens will have refilled.
	StatusRateLimited

	// StatusCircuitOpen rejects the request; the resource itself is
	// deemed unhealthy, independent of this caller's budget.
	StatusCircuitOpen
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRateLimited:
		return "rate_limited"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Decision is the typed result of Acquire and CheckAvailable. Rejection
// is an expected condition under load, so it is a value, not an error;
// Err exists for callers that want to propagate one.
type Decision struct {
	// Status is the admission outcome.
	Status Status

	// RetryAfter hints how long until the bucket can cover the request.
	// Only set for StatusRateLimited.
	RetryAfter time.Duration

	// Remaining is the bucket's token balance after the decision.
	Remaining float64
}

// Allowed reports whether the request was admitted.
func (d Decision) Allowed() bool {
	return d.Status == StatusOK
}

// Err maps the decision to its sentinel error, or nil when admitted.
func (d Decision) Err() error {
	switch d.Status {
	case StatusRateLimited:
		return ErrRateLimited
	case StatusCircuitOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}
