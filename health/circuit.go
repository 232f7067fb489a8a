// Package health provides per-resource circuit breaking for upstream
// providers.
//
// The package implements the classic three-state breaker
// (CLOSED -> OPEN -> HALF-OPEN -> CLOSED) on top of sony/gobreaker:
// failureThreshold consecutive failures open the circuit, the circuit
// stays open for the recovery timeout, then a bounded number of trial
// calls decide between closing again and reopening. Breakers are
// created lazily per resource and live in a sharded registry so
// unrelated resources never contend on a lock.
package health

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// State represents the circuit breaker state.
type State = gobreaker.State

// Circuit breaker state constants.
const (
	StateClosed   = gobreaker.StateClosed
	StateOpen     = gobreaker.StateOpen
	StateHalfOpen = gobreaker.StateHalfOpen
)

// StateChangeFunc observes breaker transitions. Called synchronously
// from the recording goroutine; implementations must not block.
type StateChangeFunc func(resource string, from, to State)

// CircuitBreaker is the per-resource fault-isolation state machine.
type CircuitBreaker struct {
	cb       *gobreaker.TwoStepCircuitBreaker[struct{}]
	resource string
}

func newCircuitBreaker(resource string, cfg Config, logger *zerolog.Logger, onChange StateChangeFunc) *CircuitBreaker {
	failureThreshold := cfg.GetFailureThreshold()
	successThreshold := cfg.GetSuccessThreshold()

	settings := gobreaker.Settings{
		Name:        resource,
		MaxRequests: uint32(successThreshold), //nolint:gosec // getter clamps to positive
		Timeout:     cfg.GetRecoveryTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold) //nolint:gosec // getter clamps to positive
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				event := logger.Info()
				if to == gobreaker.StateOpen {
					event = logger.Warn()
				}
				event.
					Str("resource", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state change")
			}
			if onChange != nil {
				onChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &CircuitBreaker{
		cb:       gobreaker.NewTwoStepCircuitBreaker[struct{}](settings),
		resource: resource,
	}
}

// Allow reports whether a call may proceed. When it may, the returned
// done func must be invoked with the call's outcome; passing a non-nil
// error counts as a failure. Returns ErrCircuitOpen while the circuit
// is open (and, past the recovery timeout, the check itself moves the
// circuit to half-open before deciding).
func (c *CircuitBreaker) Allow() (done func(err error), err error) {
	d, err := c.cb.Allow()
	if err != nil {
		return nil, ErrCircuitOpen
	}
	return d, nil
}

// State returns the current circuit state. Reading the state past the
// recovery timeout transitions an open circuit to half-open.
func (c *CircuitBreaker) State() State {
	return c.cb.State()
}

// Resource returns the resource this breaker guards.
func (c *CircuitBreaker) Resource() string {
	return c.resource
}

// ReportSuccess records a successful call. Returns false when the
// circuit is open and the success could not be counted: open circuits
// only re-admit traffic via the recovery timeout, not via outcomes
// observed elsewhere.
func (c *CircuitBreaker) ReportSuccess() bool {
	done, err := c.Allow()
	if err != nil {
		return false
	}
	done(nil)
	return true
}

// ReportFailure records a failed call. Returns false when the circuit
// is already open and the failure was not counted.
func (c *CircuitBreaker) ReportFailure(err error) bool {
	done, allowErr := c.Allow()
	if allowErr != nil {
		return false
	}
	if err == nil {
		err = ErrResourceFailed
	}
	done(err)
	return true
}
