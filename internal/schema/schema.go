// Package schema holds the static operation catalog: the instruction set
// the interpreter executes and the compiler lowers into.
//
// A Registry is immutable once built. Dynamic socket rules (numbered
// flows, switch cases, template placeholders, event parameters) are
// evaluated against an Instance carrying a node's configuration.
package schema

import (
	"slices"
	"strconv"

	"github.com/roach88/ixgraph/internal/ir"
)

// PolyRule says how a socket's type is derived when it is not fixed.
type PolyRule int

const (
	Fixed PolyRule = iota
	// MirrorInput takes the widest type among the named inputs.
	MirrorInput
	// FromConfigType reads the node's "type" configuration.
	FromConfigType
	// FromVariable uses the type of the configured variable.
	FromVariable
	// FromEvent uses the parameter type of the configured custom event.
	FromEvent
)

// Dynamic flags mark ops whose socket set depends on configuration.
type Dynamic uint8

const (
	// NumericFlowOut allows flow-outs named "0", "1", ...
	NumericFlowOut Dynamic = 1 << iota
	// CaseFlowOut allows one flow-out per entry of the "cases" config.
	CaseFlowOut
	// NumericFlowIn allows flow-ins "0".."inputFlows-1".
	NumericFlowIn
	// DynamicValueIn allows value-ins named by {placeholders} in the template config.
	DynamicValueIn
	// EventValues exposes custom event parameters as value sockets.
	EventValues
)

// Has reports whether all flags in f are set.
func (d Dynamic) Has(f Dynamic) bool {
	return d&f == f
}

// Type signature groups accepted by value-in sockets.
var (
	Numeric  = []string{ir.SigInt, ir.SigFloat, ir.SigFloat2, ir.SigFloat3, ir.SigFloat4, ir.SigFloat2x2, ir.SigFloat3x3, ir.SigFloat4x4}
	Scalar   = []string{ir.SigInt, ir.SigFloat}
	FloatAny = []string{ir.SigFloat, ir.SigFloat2, ir.SigFloat3, ir.SigFloat4, ir.SigFloat2x2, ir.SigFloat3x3, ir.SigFloat4x4}
	Any      []string // nil accepts every signature
)

// ValueSocket describes one value input.
type ValueSocket struct {
	Name     string
	Types    []string // accepted signatures; nil accepts any
	Default  ir.Value
	Required bool
	Poly     PolyRule // expected type when the socket follows a rule
}

// Accepts reports whether the socket accepts sig.
func (s ValueSocket) Accepts(sig string) bool {
	return s.Types == nil || slices.Contains(s.Types, sig)
}

// OutputSocket describes one value output.
type OutputSocket struct {
	Name   string
	Type   string
	Poly   PolyRule
	Mirror []string // inputs consulted by MirrorInput
}

// ConfigParam describes one configuration entry.
type ConfigParam struct {
	Name    string
	Type    string
	Default ir.Value
}

// OpSchema is the static description of one operation.
type OpSchema struct {
	Op        string
	Extension string
	FlowIn    []string
	FlowOut   []string
	ValueIn   []ValueSocket
	ValueOut  []OutputSocket
	Config    []ConfigParam
	Dynamic   Dynamic
	Event     bool
	// Template names the string config whose placeholders become value-ins.
	Template string
	// PlaceholderType is the type of template value-ins; empty accepts any.
	PlaceholderType string
}

// Pure reports whether the op has no flow sockets and is not an event.
// Pure nodes are evaluated lazily on pull.
func (s *OpSchema) Pure() bool {
	return !s.Event && len(s.FlowIn) == 0 && len(s.FlowOut) == 0 &&
		!s.Dynamic.Has(NumericFlowIn) && !s.Dynamic.Has(NumericFlowOut) && !s.Dynamic.Has(CaseFlowOut)
}

// Input returns the static value-in socket with name.
func (s *OpSchema) Input(name string) (ValueSocket, bool) {
	for _, v := range s.ValueIn {
		if v.Name == name {
			return v, true
		}
	}
	return ValueSocket{}, false
}

// Output returns the static value-out socket with name.
func (s *OpSchema) Output(name string) (OutputSocket, bool) {
	for _, v := range s.ValueOut {
		if v.Name == name {
			return v, true
		}
	}
	return OutputSocket{}, false
}

// ConfigParam returns the configuration entry with name.
func (s *OpSchema) ConfigParam(name string) (ConfigParam, bool) {
	for _, c := range s.Config {
		if c.Name == name {
			return c, true
		}
	}
	return ConfigParam{}, false
}

// Instance carries what the dynamic socket rules need from one node.
type Instance struct {
	Config map[string]ir.Value
	Event  *ir.CustomEvent
}

// NewInstance builds the instance view of a node whose custom event, if
// any, is looked up in events.
func (s *OpSchema) NewInstance(config map[string]ir.Value, events []ir.CustomEvent) Instance {
	inst := Instance{Config: config}
	if s.Dynamic.Has(EventValues) {
		if idx, ok := config["event"].(ir.Int); ok && idx >= 0 && int(idx) < len(events) {
			inst.Event = &events[idx]
		}
	}
	return inst
}

// ConfigOr returns the node's configuration value or the schema default.
func (s *OpSchema) ConfigOr(inst Instance, name string) ir.Value {
	if v, ok := inst.Config[name]; ok {
		return v
	}
	if c, ok := s.ConfigParam(name); ok {
		if c.Default != nil {
			return c.Default
		}
		return ir.Default(c.Type)
	}
	return nil
}

// AcceptsFlowIn reports whether name is a valid flow-in for the instance.
func (s *OpSchema) AcceptsFlowIn(inst Instance, name string) bool {
	if slices.Contains(s.FlowIn, name) {
		return true
	}
	if s.Dynamic.Has(NumericFlowIn) {
		n, ok := socketIndex(name)
		limit, _ := s.ConfigOr(inst, "inputFlows").(ir.Int)
		return ok && n < int64(limit)
	}
	return false
}

// AcceptsFlowOut reports whether name is a valid flow-out for the instance.
func (s *OpSchema) AcceptsFlowOut(inst Instance, name string) bool {
	if slices.Contains(s.FlowOut, name) {
		return true
	}
	if s.Dynamic.Has(NumericFlowOut) {
		if _, ok := socketIndex(name); ok {
			return true
		}
	}
	if s.Dynamic.Has(CaseFlowOut) {
		cases, _ := s.ConfigOr(inst, "cases").(ir.IntArray)
		for _, c := range cases {
			if strconv.FormatInt(c, 10) == name {
				return true
			}
		}
	}
	return false
}

// AcceptsValueIn reports whether name is a valid value-in for the instance.
func (s *OpSchema) AcceptsValueIn(inst Instance, name string) bool {
	_, ok := s.InputType(inst, name)
	return ok
}

// AcceptsValueOut reports whether name is a valid value-out for the instance.
func (s *OpSchema) AcceptsValueOut(inst Instance, name string) bool {
	if _, ok := s.Output(name); ok {
		return true
	}
	if s.Dynamic.Has(EventValues) && s.Event && inst.Event != nil {
		_, ok := inst.Event.Param(name)
		return ok
	}
	return false
}

// InputType returns the accepted signatures for a value-in, including
// dynamic sockets. A nil slice with ok=true accepts any signature.
func (s *OpSchema) InputType(inst Instance, name string) ([]string, bool) {
	if in, ok := s.Input(name); ok {
		return in.Types, true
	}
	if s.Dynamic.Has(DynamicValueIn) && s.Template != "" {
		tmpl, _ := s.ConfigOr(inst, s.Template).(ir.String)
		if slices.Contains(Placeholders(string(tmpl)), name) {
			if s.PlaceholderType != "" {
				return []string{s.PlaceholderType}, true
			}
			return Any, true
		}
	}
	if s.Dynamic.Has(EventValues) && !s.Event && inst.Event != nil {
		if p, ok := inst.Event.Param(name); ok {
			return []string{p.Type}, true
		}
	}
	return nil, false
}

// socketIndex parses a non-negative decimal socket name.
func socketIndex(name string) (int64, bool) {
	if name == "" || (len(name) > 1 && name[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseInt(name, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// SocketIndex parses a numbered flow socket name such as "2".
func SocketIndex(name string) (int, bool) {
	n, ok := socketIndex(name)
	return int(n), ok
}
