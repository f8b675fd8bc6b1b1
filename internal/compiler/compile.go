package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/ixgraph/internal/authoring"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// Result is the output of a compile run.
type Result struct {
	Graph       *ir.Graph
	Diagnostics Diagnostics
}

// Compiler lowers authoring graphs into interactivity graphs.
// A Compiler is immutable and safe to share; each Compile call is
// independent and single-pass.
type Compiler struct {
	exporters *Registry
	schemas   *schema.Registry
}

// New creates a compiler over the given exporter and schema registries.
func New(exporters *Registry, schemas *schema.Registry) *Compiler {
	return &Compiler{exporters: exporters, schemas: schemas}
}

// Default returns a compiler with the built-in exporters and schema catalog.
func Default() *Compiler {
	return New(DefaultRegistry(), schema.Standard())
}

// Compile exports g.
//
// Phase 1 runs each unit's exporter in unit order. Phase 2 attaches
// control wires, then data wires, then literals of unconnected inputs,
// then deferred callbacks. Types are resolved last.
//
// Diagnostics are non-fatal and returned in the Result. A *CompileError
// is fatal and no graph is returned.
func (c *Compiler) Compile(g *authoring.Graph) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, &CompileError{Code: ErrInvalidGraph, Message: err.Error()}
	}

	comp := newCompilation(c.schemas, g)
	if err := comp.declare(); err != nil {
		return nil, err
	}

	c.exportUnits(comp)
	if comp.fatal != nil {
		return nil, comp.fatal
	}

	comp.phase = phaseResolve
	comp.checkBypassCycles()
	comp.resolveControl()
	comp.resolveData()
	comp.applyLiterals()
	comp.runDeferred()
	comp.phase = phaseDone
	if comp.fatal != nil {
		return nil, comp.fatal
	}

	graph, err := comp.build()
	if err != nil {
		return nil, err
	}

	slog.Debug("compiled graph",
		"name", g.Name,
		"units", len(g.Units),
		"nodes", len(graph.Nodes),
		"declarations", len(graph.Declarations),
		"diagnostics", len(comp.diags),
	)
	return &Result{Graph: graph, Diagnostics: comp.diags}, nil
}

// declare converts variables and custom events. Unknown types are allowed
// (custom types); defaults must convert to the declared type.
func (comp *compilation) declare() error {
	for _, v := range comp.src.Variables {
		def := ir.Default(v.Type)
		if v.Default != nil {
			lit, err := literalValue(v.Default, v.Type)
			if err != nil {
				return &CompileError{Code: ErrUnresolvedType, Message: fmt.Sprintf("variable %s default: %v", v.ID, err)}
			}
			def = lit
		}
		comp.variables = append(comp.variables, ir.Variable{ID: v.ID, Type: v.Type, Default: def})
	}
	for _, e := range comp.src.Events {
		ev := ir.CustomEvent{ID: e.ID}
		for _, p := range e.Params {
			def := ir.Default(p.Type)
			if p.Default != nil {
				lit, err := literalValue(p.Default, p.Type)
				if err != nil {
					return &CompileError{Code: ErrUnresolvedType, Message: fmt.Sprintf("event %s param %s default: %v", e.ID, p.Name, err)}
				}
				def = lit
			}
			ev.Params = append(ev.Params, ir.EventParam{Name: p.Name, Type: p.Type, Default: def})
		}
		// The wire keeps parameters in an object, so name order is canonical.
		sort.Slice(ev.Params, func(i, j int) bool { return ev.Params[i].Name < ev.Params[j].Name })
		comp.events = append(comp.events, ev)
	}
	return nil
}

func (c *Compiler) exportUnits(comp *compilation) {
	for i := range comp.src.Units {
		u := &comp.src.Units[i]
		exp, ok := c.exporters.Lookup(u)
		if !ok {
			comp.failed[u.ID] = true
			what := u.Kind
			if u.Owner != "" || u.Member != "" {
				what = fmt.Sprintf("%s %s.%s", u.Kind, u.Owner, u.Member)
			}
			comp.diagnose(DiagUnmappedUnit, SeverityWarning, u.ID, "no exporter for %s", what)
			slog.Warn("unmapped unit", "unit", u.ID, "kind", u.Kind)
			continue
		}

		nodes, deferredCount := len(comp.nodes), len(comp.deferred)
		ctx := &Context{c: comp, unit: u}
		err := exp.Export(ctx, u)
		if err == nil {
			err = ctx.Err()
		}
		if comp.fatal != nil {
			return
		}
		if err == nil {
			continue
		}

		comp.rollback(u.ID, nodes, deferredCount)
		comp.failed[u.ID] = true
		var d Diagnostic
		if errors.As(err, &d) {
			d.Unit = u.ID
			comp.diags = append(comp.diags, d)
		} else {
			comp.diagnose(DiagExporterFailed, SeverityError, u.ID, "export failed: %v", err)
		}
		slog.Warn("exporter failed", "unit", u.ID, "kind", u.Kind, "error", err)
	}
}

func (comp *compilation) skip(units ...string) bool {
	for _, u := range units {
		if comp.failed[u] {
			return true
		}
	}
	return false
}

// checkBypassCycles reports every relay or reroute chain that loops.
func (comp *compilation) checkBypassCycles() {
	reported := map[string]bool{}
	report := func(start pinKey) {
		if !reported[start.unit] {
			reported[start.unit] = true
			comp.diagnose(DiagBypassCycle, SeverityError, start.unit, "bypass cycle through %s", start.pin)
		}
	}
	for in := range comp.bypassFlow {
		seen := map[pinKey]bool{}
		for p, ok := in, true; ok; {
			if seen[p] {
				report(in)
				break
			}
			seen[p] = true
			wires := comp.controlFrom(comp.bypassFlow[p])
			if len(wires) != 1 {
				break
			}
			p = keyOf(wires[0].To)
			_, ok = comp.bypassFlow[p]
		}
	}
	for out := range comp.bypassValue {
		seen := map[pinKey]bool{}
		for p, ok := out, true; ok; {
			if seen[p] {
				report(out)
				break
			}
			seen[p] = true
			wires := comp.dataTo(comp.bypassValue[p])
			if len(wires) != 1 {
				break
			}
			p = keyOf(wires[0].From)
			_, ok = comp.bypassValue[p]
		}
	}
}

func (comp *compilation) controlFrom(p pinKey) []authoring.Wire {
	var out []authoring.Wire
	for _, w := range comp.src.Control {
		if keyOf(w.From) == p {
			out = append(out, w)
		}
	}
	return out
}

func (comp *compilation) dataTo(p pinKey) []authoring.Wire {
	var out []authoring.Wire
	for _, w := range comp.src.Data {
		if keyOf(w.To) == p {
			out = append(out, w)
		}
	}
	return out
}

// flowTarget follows relays from an input pin to the node flow-in that
// finally receives control.
func (comp *compilation) flowTarget(p pinKey, seen map[pinKey]bool) (ir.SocketRef, bool) {
	if comp.skip(p.unit) {
		return ir.SocketRef{}, false
	}
	if t, ok := comp.flowIn[p]; ok {
		return t, true
	}
	out, ok := comp.bypassFlow[p]
	if !ok {
		comp.diagnose(DiagBadWire, SeverityWarning, p.unit, "no control input pin %q", p.pin)
		return ir.SocketRef{}, false
	}
	if seen[p] {
		return ir.SocketRef{}, false
	}
	seen[p] = true
	wires := comp.controlFrom(out)
	switch len(wires) {
	case 0:
		return ir.SocketRef{}, false
	case 1:
		return comp.flowTarget(keyOf(wires[0].To), seen)
	}
	comp.diagnose(DiagBadWire, SeverityWarning, p.unit, "control pin %q drives %d inputs", out.pin, len(wires))
	return ir.SocketRef{}, false
}

func (comp *compilation) resolveControl() {
	for _, w := range comp.src.Control {
		from := keyOf(w.From)
		if comp.skip(w.From.Unit, w.To.Unit) || comp.bypassFlowOut[from] {
			continue
		}
		src, ok := comp.flowOut[from]
		if !ok {
			comp.diagnose(DiagBadWire, SeverityWarning, w.From.Unit, "no control output pin %q", w.From.Pin)
			continue
		}
		dst, ok := comp.flowTarget(keyOf(w.To), map[pinKey]bool{})
		if !ok {
			continue
		}
		n := comp.nodes[src.Node]
		if _, wired := n.flows[src.Socket]; wired {
			comp.diagnose(DiagBadWire, SeverityWarning, w.From.Unit, "control pin %q drives more than one input", w.From.Pin)
			continue
		}
		n.flows[src.Socket] = dst
	}
}

// valueSource follows reroutes from an output pin to the node socket or
// literal that finally supplies the value.
func (comp *compilation) valueSource(p pinKey, seen map[pinKey]bool) (*ir.SocketRef, any, bool) {
	if comp.skip(p.unit) {
		return nil, nil, false
	}
	if r, ok := comp.valueOut[p]; ok {
		return &r, nil, true
	}
	in, ok := comp.bypassValue[p]
	if !ok {
		comp.diagnose(DiagBadWire, SeverityWarning, p.unit, "no data output pin %q", p.pin)
		return nil, nil, false
	}
	if seen[p] {
		return nil, nil, false
	}
	seen[p] = true
	wires := comp.dataTo(in)
	if len(wires) == 1 {
		return comp.valueSource(keyOf(wires[0].From), seen)
	}
	if u, ok := comp.src.Unit(in.unit); ok {
		if raw, ok := u.Literals[in.pin]; ok {
			return nil, raw, true
		}
	}
	return nil, nil, false
}

func (comp *compilation) resolveData() {
	connected := map[pinKey]bool{}
	for _, w := range comp.src.Data {
		to := keyOf(w.To)
		if comp.skip(w.From.Unit, w.To.Unit) || comp.bypassValueIn[to] {
			continue
		}
		targets, ok := comp.valueIn[to]
		if !ok {
			comp.diagnose(DiagBadWire, SeverityWarning, w.To.Unit, "no data input pin %q", w.To.Pin)
			continue
		}
		if connected[to] {
			comp.diagnose(DiagBadWire, SeverityWarning, w.To.Unit, "data pin %q has more than one source", w.To.Pin)
			continue
		}
		connected[to] = true

		ref, raw, ok := comp.valueSource(keyOf(w.From), map[pinKey]bool{})
		if !ok {
			continue
		}
		for _, t := range targets {
			if ref != nil {
				comp.nodes[t.Node].values[t.Socket] = ir.Link(ref.Node, ref.Socket)
				continue
			}
			comp.setLiteral(w.To.Unit, t, raw)
		}
	}
	comp.connectedPins = connected
}

func (comp *compilation) applyLiterals() {
	for _, u := range comp.src.Units {
		if comp.failed[u.ID] {
			continue
		}
		for _, pin := range ir.SortedKeys(u.Literals) {
			k := pinKey{u.ID, pin}
			if comp.connectedPins[k] || comp.bypassValueIn[k] {
				continue
			}
			targets, ok := comp.valueIn[k]
			if !ok {
				comp.diagnose(DiagBadWire, SeverityWarning, u.ID, "literal for unknown data pin %q", pin)
				continue
			}
			for _, t := range targets {
				comp.setLiteral(u.ID, t, u.Literals[pin])
			}
		}
	}
}

func (comp *compilation) setLiteral(unit string, t ir.SocketRef, raw any) {
	types := newTypeResolver(comp)
	v, err := literalValue(raw, types.expectedType(t.Node, t.Socket))
	if err != nil {
		comp.diagnose(DiagBadWire, SeverityWarning, unit, "literal for %s.%s: %v", comp.nodes[t.Node].op, t.Socket, err)
		return
	}
	comp.nodes[t.Node].values[t.Socket] = ir.Lit(v)
}

func (comp *compilation) runDeferred() {
	for _, d := range comp.deferred {
		if err := d.fn(&Resolver{c: comp, unit: d.unit}); err != nil {
			var diag Diagnostic
			if errors.As(err, &diag) {
				diag.Unit = d.unit
				comp.diags = append(comp.diags, diag)
				continue
			}
			comp.diagnose(DiagExporterFailed, SeverityError, d.unit, "deferred wiring failed: %v", err)
		}
	}
}

// build resolves types and interns declarations in node order.
func (comp *compilation) build() (*ir.Graph, error) {
	types := newTypeResolver(comp)
	g := &ir.Graph{
		Variables:    comp.variables,
		CustomEvents: comp.events,
	}
	for i, n := range comp.nodes {
		d, err := types.declaration(i)
		if err != nil {
			return nil, err
		}
		node := ir.NewNode(g.Declare(d))
		for k, v := range n.config {
			node.Configuration[k] = v
		}
		for k, v := range n.flows {
			node.Flows[k] = v
		}
		for k, v := range n.values {
			node.Values[k] = v
		}
		g.AddNode(node)
	}
	if err := g.Validate(); err != nil {
		return nil, &CompileError{Code: ErrUnresolvedType, Message: err.Error()}
	}
	return g, nil
}
