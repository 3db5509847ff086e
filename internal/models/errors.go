// Package models defines the shared error taxonomy for the plan bot.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across modules.
var (
	// ErrNoActiveSession indicates the user has no live session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionExpired indicates the session timed out; the user must start over.
	ErrSessionExpired = errors.New("session expired, start a new flow")
	// ErrRetryLimitExceeded indicates too many invalid inputs in a row.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")
	// ErrUpstreamUnavailable indicates the plan backend stayed unreachable
	// after all retry attempts.
	ErrUpstreamUnavailable = errors.New("plan backend unavailable")
)

// ValidationError reports a recoverable input problem. The conversation stays
// in the same state and the user is re-prompted.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FlowError reports an illegal operation against the state machine, such as a
// confirm from a non-confirmation state. The session is left unchanged.
type FlowError struct {
	Kind   FlowKind
	State  StateType
	Op     string
	Reason string
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("flow %s: cannot %s in state %s: %s", e.Kind, e.Op, e.State, e.Reason)
}

// UpstreamError reports a failed call to the plan backend. Retryable errors
// (transport failures, 5xx) are re-attempted with backoff; terminal errors
// (4xx) are surfaced immediately.
type UpstreamError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// OutOfToleranceError reports a replacement candidate whose macros deviate
// from the original beyond the allowed tolerance. Not fatal: the user is
// asked for a different candidate.
type OutOfToleranceError struct {
	Tolerance float64
	Deltas    map[string]float64
}

func (e *OutOfToleranceError) Error() string {
	return fmt.Sprintf("replacement outside ±%.0f%% tolerance: %v", e.Tolerance*100, e.Deltas)
}

// RateLimitedError reports that the user exceeded the request budget for the
// current window. No session state is mutated.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}
