package compiler

import (
	"fmt"

	"go.uber.org/multierr"
)

// Diagnostic codes. Diagnostics are non-fatal: the unit they concern is
// skipped and export continues.
const (
	DiagUnmappedUnit   = "X001" // no exporter for the unit kind or member
	DiagExporterFailed = "X002" // exporter returned an error; its nodes were rolled back
	DiagBadWire        = "X003" // wire or literal that cannot be attached
	DiagBypassCycle    = "X004" // relay or reroute units form a cycle
	DiagUnknownRef     = "X005" // unknown variable or custom event
)

// CompileError codes. These are fatal.
const (
	ErrInvalidGraph   = "C001" // authoring graph failed validation
	ErrUnknownOp      = "C002" // exporter asked for an op the schema registry lacks
	ErrUnresolvedType = "C003" // a socket type could not be resolved
	ErrPhaseMisuse    = "C004" // phase-1 API called during phase 2
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic reports a recoverable export problem.
type Diagnostic struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Unit     string   `json:"unit,omitempty"`
	Message  string   `json:"message"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	if d.Unit != "" {
		return fmt.Sprintf("[%s] unit %s: %s", d.Code, d.Unit, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}

// Diagnostics is the list of diagnostics from one compile run.
type Diagnostics []Diagnostic

// Err combines every diagnostic into a single error, or nil when empty.
func (ds Diagnostics) Err() error {
	var err error
	for _, d := range ds {
		err = multierr.Append(err, d)
	}
	return err
}

// HasCode reports whether any diagnostic carries code.
func (ds Diagnostics) HasCode(code string) bool {
	for _, d := range ds {
		if d.Code == code {
			return true
		}
	}
	return false
}

// ForUnit returns the diagnostics concerning one unit.
func (ds Diagnostics) ForUnit(unit string) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Unit == unit {
			out = append(out, d)
		}
	}
	return out
}

// CompileError is a fatal compile failure. No graph is produced.
type CompileError struct {
	Code    string
	Unit    string
	Message string
}

func (e *CompileError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("[%s] unit %s: %s", e.Code, e.Unit, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}
