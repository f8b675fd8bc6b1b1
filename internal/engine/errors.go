package engine

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// RuntimeError is an error returned to the caller of a session or of Load.
//
// Operational failures inside a graph (a bad pointer, a missing asset) are
// never RuntimeErrors; they travel in-band on the failing node's err flow
// as RuntimeFlowError. RuntimeError covers what the graph itself cannot
// handle:
//   - Load failed: the graph violates the schema
//   - Quota exceeded: one activation ran more than MaxSteps node steps
//   - Unknown event: Fire named a custom event the graph does not declare
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Session identifies the affected session, if any.
	Session string

	// Node is the node being executed, or -1.
	Node int

	// Err is the underlying cause, for example aggregated violations.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeLoadFailed indicates the graph failed load validation.
	ErrCodeLoadFailed RuntimeErrorCode = "LOAD_FAILED"

	// ErrCodeQuotaExceeded indicates an activation exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeUnknownEvent indicates an event id the graph does not declare.
	ErrCodeUnknownEvent RuntimeErrorCode = "UNKNOWN_EVENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Session != "" && e.Node >= 0 {
		msg = fmt.Sprintf("%s (session=%s, node=%d)", msg, e.Session, e.Node)
	} else if e.Session != "" {
		msg = fmt.Sprintf("%s (session=%s)", msg, e.Session)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is a load validation failure.
// Uses errors.As to handle wrapped errors.
func IsLoadError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeLoadFailed
	}
	return false
}

// IsQuotaError reports whether err is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(session string, node int, cause *StepsExceededError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("activation exceeded max steps (%d > %d)", cause.Steps, cause.Limit),
		Session: session,
		Node:    node,
		Err:     cause,
	}
}

// SchemaViolation is one reason a graph failed to load.
type SchemaViolation struct {
	Path   string
	Reason string
}

func (v *SchemaViolation) Error() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Reason)
}

// Violations returns every SchemaViolation carried by a load error.
func Violations(err error) []*SchemaViolation {
	var re *RuntimeError
	if !errors.As(err, &re) || re.Err == nil {
		return nil
	}
	var out []*SchemaViolation
	for _, e := range multierr.Errors(re.Err) {
		var v *SchemaViolation
		if errors.As(e, &v) {
			out = append(out, v)
		}
	}
	return out
}

// RuntimeFlowError is an operational failure of one node. It is traced
// and routed to the node's err flow; callers never see it.
type RuntimeFlowError struct {
	Node int
	Op   string
	Err  error
}

func (e *RuntimeFlowError) Error() string {
	return fmt.Sprintf("node %d (%s): %v", e.Node, e.Op, e.Err)
}

func (e *RuntimeFlowError) Unwrap() error { return e.Err }
