package compiler

import (
	"fmt"
	"strconv"

	"github.com/roach88/ixgraph/internal/authoring"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

type phase int

const (
	phaseExport phase = iota + 1
	phaseResolve
	phaseDone
)

type pinKey struct {
	unit, pin string
}

func keyOf(p authoring.Pin) pinKey {
	return pinKey{p.Unit, p.Pin}
}

// draftNode is a node under construction. Socket types are resolved after
// phase 2, when the ir.Declaration is interned.
type draftNode struct {
	op     string
	schema *schema.OpSchema
	unit   string
	config map[string]ir.Value
	values map[string]ir.ValueInput
	flows  map[string]ir.SocketRef
}

type deferred struct {
	unit string
	fn   func(*Resolver) error
}

// compilation is the mutable state of one Compile call.
type compilation struct {
	schemas *schema.Registry
	src     *authoring.Graph

	nodes     []*draftNode
	variables []ir.Variable
	events    []ir.CustomEvent

	flowIn   map[pinKey]ir.SocketRef
	flowOut  map[pinKey]ir.SocketRef
	valueIn  map[pinKey][]ir.SocketRef
	valueOut map[pinKey]ir.SocketRef

	// bypassFlow maps a relay's input pin to its output pin.
	// bypassValue maps a reroute's output pin to its input pin.
	bypassFlow    map[pinKey]pinKey
	bypassFlowOut map[pinKey]bool
	bypassValue   map[pinKey]pinKey
	bypassValueIn map[pinKey]bool

	connectedPins map[pinKey]bool // data input pins fed by a wire

	deferred []deferred
	spliced  map[ir.SocketRef]int // flow-out -> sequence node spliced in by Attach
	failed   map[string]bool
	diags    Diagnostics
	phase    phase
	fatal    error
}

func newCompilation(schemas *schema.Registry, src *authoring.Graph) *compilation {
	return &compilation{
		schemas:       schemas,
		src:           src,
		flowIn:        map[pinKey]ir.SocketRef{},
		flowOut:       map[pinKey]ir.SocketRef{},
		valueIn:       map[pinKey][]ir.SocketRef{},
		valueOut:      map[pinKey]ir.SocketRef{},
		bypassFlow:    map[pinKey]pinKey{},
		bypassFlowOut: map[pinKey]bool{},
		bypassValue:   map[pinKey]pinKey{},
		bypassValueIn: map[pinKey]bool{},
		spliced:       map[ir.SocketRef]int{},
		failed:        map[string]bool{},
		phase:         phaseExport,
	}
}

func (c *compilation) diagnose(code string, sev Severity, unit, format string, args ...any) {
	c.diags = append(c.diags, Diagnostic{Code: code, Severity: sev, Unit: unit, Message: fmt.Sprintf(format, args...)})
}

func (c *compilation) createNode(op, unit string) (int, error) {
	s, ok := c.schemas.Lookup(op)
	if !ok {
		return -1, &CompileError{Code: ErrUnknownOp, Unit: unit, Message: fmt.Sprintf("unknown op %q", op)}
	}
	n := &draftNode{
		op:     op,
		schema: s,
		unit:   unit,
		config: make(map[string]ir.Value, len(s.Config)),
		values: map[string]ir.ValueInput{},
		flows:  map[string]ir.SocketRef{},
	}
	for _, p := range s.Config {
		if p.Default != nil {
			n.config[p.Name] = p.Default
		} else {
			n.config[p.Name] = ir.Default(p.Type)
		}
	}
	c.nodes = append(c.nodes, n)
	return len(c.nodes) - 1, nil
}

// rollback removes everything unit registered since the snapshot.
// Nodes are only ever appended, so truncation is exact.
func (c *compilation) rollback(unit string, nodes, deferredCount int) {
	c.nodes = c.nodes[:nodes]
	c.deferred = c.deferred[:deferredCount]
	for k := range c.flowIn {
		if k.unit == unit {
			delete(c.flowIn, k)
		}
	}
	for k := range c.flowOut {
		if k.unit == unit {
			delete(c.flowOut, k)
		}
	}
	for k := range c.valueIn {
		if k.unit == unit {
			delete(c.valueIn, k)
		}
	}
	for k := range c.valueOut {
		if k.unit == unit {
			delete(c.valueOut, k)
		}
	}
	for k, out := range c.bypassFlow {
		if k.unit == unit {
			delete(c.bypassFlow, k)
			delete(c.bypassFlowOut, out)
		}
	}
	for k, in := range c.bypassValue {
		if k.unit == unit {
			delete(c.bypassValue, k)
			delete(c.bypassValueIn, in)
		}
	}
}

func (c *compilation) instance(n *draftNode) schema.Instance {
	return n.schema.NewInstance(n.config, c.events)
}

// Context is the phase-1 API handed to exporters. Node handles are plain
// indices valid for the current compilation.
//
// Errors are sticky: the first failing call is remembered, later calls
// become no-ops, and the compiler treats the export as failed.
type Context struct {
	c    *compilation
	unit *authoring.Unit
	err  error
}

// Err returns the first error recorded by a Context call.
func (x *Context) Err() error {
	return x.err
}

func (x *Context) fail(err error) {
	if x.err == nil {
		x.err = err
	}
}

func (x *Context) usable() bool {
	if x.c.phase != phaseExport {
		err := &CompileError{Code: ErrPhaseMisuse, Unit: x.unit.ID, Message: "phase-1 API called after export phase"}
		if x.c.fatal == nil {
			x.c.fatal = err
		}
		x.fail(err)
		return false
	}
	return x.err == nil
}

func (x *Context) node(i int) (*draftNode, bool) {
	if i < 0 || i >= len(x.c.nodes) || x.c.nodes[i].unit != x.unit.ID {
		x.fail(fmt.Errorf("node %d does not belong to unit %s", i, x.unit.ID))
		return nil, false
	}
	return x.c.nodes[i], true
}

// Unit returns the unit being exported.
func (x *Context) Unit() *authoring.Unit {
	return x.unit
}

// CreateNode creates a node for op with schema configuration defaults.
func (x *Context) CreateNode(op string) int {
	if !x.usable() {
		return -1
	}
	i, err := x.c.createNode(op, x.unit.ID)
	if err != nil {
		x.fail(err)
		if x.c.fatal == nil {
			x.c.fatal = err
		}
	}
	return i
}

// SetConfig sets a configuration entry. The name must be declared by the op.
func (x *Context) SetConfig(node int, name string, v ir.Value) {
	if !x.usable() {
		return
	}
	n, ok := x.node(node)
	if !ok {
		return
	}
	p, ok := n.schema.ConfigParam(name)
	if !ok {
		x.fail(fmt.Errorf("%s has no configuration %q", n.op, name))
		return
	}
	if p.Type == ir.SigType {
		if _, ok := v.(ir.String); !ok {
			x.fail(fmt.Errorf("%s.%s: type configuration must be a signature string", n.op, name))
			return
		}
	} else if v.Signature() != p.Type {
		x.fail(fmt.Errorf("%s.%s: want %s, got %s", n.op, name, p.Type, v.Signature()))
		return
	}
	n.config[name] = v
}

// ConfigFromUnit copies unit configuration key into the node's config
// entry name, converting it to the entry's signature. Absent keys keep the
// schema default.
func (x *Context) ConfigFromUnit(node int, key, name string) {
	if !x.usable() {
		return
	}
	raw, ok := x.unit.Config[key]
	if !ok {
		return
	}
	n, ok := x.node(node)
	if !ok {
		return
	}
	p, ok := n.schema.ConfigParam(name)
	if !ok {
		x.fail(fmt.Errorf("%s has no configuration %q", n.op, name))
		return
	}
	v, err := configValue(raw, p.Type)
	if err != nil {
		x.fail(fmt.Errorf("config %s: %w", key, err))
		return
	}
	n.config[name] = v
}

// SetLiteral sets a literal on a value-in socket.
func (x *Context) SetLiteral(node int, socket string, v ir.Value) {
	if !x.usable() {
		return
	}
	if n, ok := x.node(node); ok {
		n.values[socket] = ir.Lit(v)
	}
}

// Connect links from's output socket to to's input socket.
func (x *Context) Connect(from int, out string, to int, in string) {
	if !x.usable() {
		return
	}
	if _, ok := x.node(from); !ok {
		return
	}
	if n, ok := x.node(to); ok {
		n.values[in] = ir.Link(from, out)
	}
}

// Chain links from's flow-out to to's flow-in.
func (x *Context) Chain(from int, out string, to int, in string) {
	if !x.usable() {
		return
	}
	if _, ok := x.node(to); !ok {
		return
	}
	if n, ok := x.node(from); ok {
		n.flows[out] = ir.SocketRef{Node: to, Socket: in}
	}
}

// MapFlowIn routes control arriving at the unit's pin to node's flow-in.
func (x *Context) MapFlowIn(pin string, node int, socket string) {
	if x.usable() {
		if _, ok := x.node(node); ok {
			x.c.flowIn[pinKey{x.unit.ID, pin}] = ir.SocketRef{Node: node, Socket: socket}
		}
	}
}

// MapFlowOut routes the unit's control output pin from node's flow-out.
func (x *Context) MapFlowOut(pin string, node int, socket string) {
	if x.usable() {
		if _, ok := x.node(node); ok {
			x.c.flowOut[pinKey{x.unit.ID, pin}] = ir.SocketRef{Node: node, Socket: socket}
		}
	}
}

// MapValueIn routes the unit's data input pin into node's value-in. A pin
// may feed several sockets.
func (x *Context) MapValueIn(pin string, node int, socket string) {
	if x.usable() {
		if _, ok := x.node(node); ok {
			k := pinKey{x.unit.ID, pin}
			x.c.valueIn[k] = append(x.c.valueIn[k], ir.SocketRef{Node: node, Socket: socket})
		}
	}
}

// MapValueOut exposes node's output socket as the unit's data output pin.
func (x *Context) MapValueOut(pin string, node int, socket string) {
	if x.usable() {
		if _, ok := x.node(node); ok {
			x.c.valueOut[pinKey{x.unit.ID, pin}] = ir.SocketRef{Node: node, Socket: socket}
		}
	}
}

// BypassFlow elides the unit on the control path: whatever flows into pin
// in continues to whatever pin out is wired to.
func (x *Context) BypassFlow(in, out string) {
	if x.usable() {
		k := pinKey{x.unit.ID, out}
		x.c.bypassFlow[pinKey{x.unit.ID, in}] = k
		x.c.bypassFlowOut[k] = true
	}
}

// BypassValue elides the unit on the data path: consumers of pin out read
// whatever feeds pin in.
func (x *Context) BypassValue(in, out string) {
	if x.usable() {
		k := pinKey{x.unit.ID, in}
		x.c.bypassValue[pinKey{x.unit.ID, out}] = k
		x.c.bypassValueIn[k] = true
	}
}

// Defer registers fn to run in phase 2, after all wires are attached.
// Callbacks run in registration order.
func (x *Context) Defer(fn func(*Resolver) error) {
	if x.usable() {
		x.c.deferred = append(x.c.deferred, deferred{unit: x.unit.ID, fn: fn})
	}
}

// Diagnose records a non-fatal diagnostic against the unit.
func (x *Context) Diagnose(code string, sev Severity, format string, args ...any) {
	x.c.diagnose(code, sev, x.unit.ID, format, args...)
}

// Reject aborts the export with a specific diagnostic instead of X002.
// The unit's nodes are rolled back.
func (x *Context) Reject(code, format string, args ...any) error {
	return Diagnostic{Code: code, Severity: SeverityError, Unit: x.unit.ID, Message: fmt.Sprintf(format, args...)}
}

// VariableIndex returns the index of a declared variable.
func (x *Context) VariableIndex(id string) (int, bool) {
	for i, v := range x.c.variables {
		if v.ID == id {
			return i, true
		}
	}
	return -1, false
}

// EventIndex returns the index of a declared custom event.
func (x *Context) EventIndex(id string) (int, bool) {
	for i, e := range x.c.events {
		if e.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Event returns a declared custom event by index.
func (x *Context) Event(i int) ir.CustomEvent {
	return x.c.events[i]
}

// Resolver is the phase-2 API handed to deferred callbacks.
type Resolver struct {
	c    *compilation
	unit string
}

// FlowOut returns the node flow-out behind a unit's control output pin.
func (r *Resolver) FlowOut(unit, pin string) (ir.SocketRef, bool) {
	ref, ok := r.c.flowOut[pinKey{unit, pin}]
	return ref, ok
}

// Attach wires src to dst. When src already drives a flow-in, a
// flow/sequence is spliced in so the existing target fires first and dst
// second. Further attachments extend the same sequence.
func (r *Resolver) Attach(src, dst ir.SocketRef) error {
	n := r.c.nodes[src.Node]
	existing, wired := n.flows[src.Socket]
	if !wired {
		n.flows[src.Socket] = dst
		return nil
	}
	if seq, ok := r.c.spliced[src]; ok {
		next := len(r.c.nodes[seq].flows)
		r.c.nodes[seq].flows[strconv.Itoa(next)] = dst
		return nil
	}
	seq, err := r.c.createNode(schema.OpSequence, r.unit)
	if err != nil {
		return err
	}
	r.c.nodes[seq].flows["0"] = existing
	r.c.nodes[seq].flows["1"] = dst
	n.flows[src.Socket] = ir.SocketRef{Node: seq, Socket: schema.In}
	r.c.spliced[src] = seq
	return nil
}

// Diagnose records a diagnostic against the deferring unit.
func (r *Resolver) Diagnose(code string, sev Severity, format string, args ...any) {
	r.c.diagnose(code, sev, r.unit, format, args...)
}
