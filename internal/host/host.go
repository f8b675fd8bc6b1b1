// Package host defines the collaborators the interpreter reaches outside
// the graph: scene state addressed by pointer paths, animation assets and
// a log sink. In-memory implementations back the CLI, the harness and
// tests.
package host

import (
	"errors"
	"fmt"

	"github.com/roach88/ixgraph/internal/ir"
)

// StateAccessor reads and writes external state by pointer path.
type StateAccessor interface {
	// Get returns the value at path.
	Get(path string) (ir.Value, error)
	// Set writes v to path. The value must match the path's type.
	Set(path string, v ir.Value) error
	// Type returns the signature stored at path.
	Type(path string) (string, error)
}

// AssetLookup resolves animation assets by index.
type AssetLookup interface {
	Animation(index int) (Animation, error)
}

// Animation is a playable asset.
type Animation interface {
	Play(startTime, endTime, speed float64) error
	Stop() error
}

// LogSink receives debug/log output.
type LogSink interface {
	Log(severity int, message string)
}

// LogFunc adapts a function to a LogSink.
type LogFunc func(severity int, message string)

func (f LogFunc) Log(severity int, message string) { f(severity, message) }

// Reasons carried by HostIntegrationError.
const (
	ReasonNoSuchPath   = "no such path"
	ReasonReadOnly     = "read-only"
	ReasonTypeMismatch = "type mismatch"
	ReasonNoSuchAsset  = "no such asset"
)

// HostIntegrationError reports a collaborator failure. The interpreter
// converts it into the failing node's err flow.
type HostIntegrationError struct {
	Op     string
	Target string
	Reason string
	Err    error
}

func (e *HostIntegrationError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Target, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HostIntegrationError) Unwrap() error { return e.Err }

// IsHostError reports whether err carries a HostIntegrationError.
func IsHostError(err error) bool {
	var he *HostIntegrationError
	return errors.As(err, &he)
}
