package harness

import (
	"fmt"

	"github.com/roach88/ixgraph/internal/engine"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace is the trace of the direct run.
	Trace []engine.TraceEvent `json:"trace"`

	// Logs are the log sink messages in order.
	Logs []string `json:"logs"`

	// Variables holds final variable values, formatted.
	Variables map[string]string `json:"variables"`

	// Digest is the content hash of the canonical trace.
	Digest string `json:"digest"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:      name,
		Pass:      true,
		Trace:     []engine.TraceEvent{},
		Logs:      []string{},
		Variables: map[string]string{},
		Errors:    []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddErrorf is AddError with formatting.
func (r *Result) AddErrorf(format string, args ...any) {
	r.AddError(fmt.Sprintf(format, args...))
}
