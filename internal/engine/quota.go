package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxSteps is the default maximum number of node steps per
// activation.
const DefaultMaxSteps = 1000

// QuotaEnforcer counts node steps within one activation and enforces a
// maximum.
//
// An activation is one external trigger (Start, Tick, Select, HoverIn,
// HoverOut, Fire) together with the custom events it sends. Flow edges
// may form cycles, so without the quota a graph could loop forever
// inside a single call.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
//
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(session string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Session: session,
			Steps:   q.current,
			Limit:   q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when an activation exceeds the quota.
type StepsExceededError struct {
	Session string
	Steps   int
	Limit   int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("session %s exceeded max steps quota: %d steps > %d limit",
		e.Session, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
