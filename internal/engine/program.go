package engine

import (
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/multierr"

	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// Program is a loaded, validated graph. It is immutable and shared by
// every session created from it.
type Program struct {
	graph   *ir.Graph
	reg     *schema.Registry
	schemas []*schema.OpSchema
	insts   []schema.Instance

	// entries lists event nodes per op in node order.
	entries map[string][]int
}

// Load validates g against reg and returns a Program. The graph is
// copied, so later changes to g do not affect the program.
//
// Validation failures are fatal: the returned error is a RuntimeError
// with ErrCodeLoadFailed carrying every SchemaViolation found.
func Load(g *ir.Graph, reg *schema.Registry) (*Program, error) {
	p := &Program{
		graph:   g.Clone(),
		reg:     reg,
		schemas: make([]*schema.OpSchema, len(g.Nodes)),
		insts:   make([]schema.Instance, len(g.Nodes)),
		entries: map[string][]int{},
	}
	if err := p.validate(); err != nil {
		n := len(multierr.Errors(err))
		return nil, &RuntimeError{
			Code:    ErrCodeLoadFailed,
			Message: fmt.Sprintf("graph has %d schema violation(s)", n),
			Node:    -1,
			Err:     err,
		}
	}
	for i, s := range p.schemas {
		if s.Event {
			p.entries[s.Op] = append(p.entries[s.Op], i)
		}
	}
	return p, nil
}

// Graph returns the program's graph. Callers must not modify it.
func (p *Program) Graph() *ir.Graph { return p.graph }

// Registry returns the schema registry the program was loaded against.
func (p *Program) Registry() *schema.Registry { return p.reg }

// EventIndex returns the index of the custom event with id, or -1.
func (p *Program) EventIndex(id string) int { return p.graph.EventIndex(id) }

type violations struct{ err error }

func (v *violations) add(path, format string, args ...any) {
	v.err = multierr.Append(v.err, &SchemaViolation{Path: path, Reason: fmt.Sprintf(format, args...)})
}

func (p *Program) validate() error {
	g := p.graph
	var v violations
	if err := g.Validate(); err != nil {
		v.add("graph", "%v", err)
		return v.err
	}

	// Resolve schemas first; socket checks need the schema of both ends.
	for i := range g.Nodes {
		decl := g.Decl(i)
		s, ok := p.reg.Lookup(decl.Op)
		if !ok {
			v.add(fmt.Sprintf("nodes[%d]", i), "unknown op %q", decl.Op)
			continue
		}
		if decl.Extension != "" && decl.Extension != s.Extension {
			v.add(fmt.Sprintf("nodes[%d]", i), "op %s does not belong to extension %q", decl.Op, decl.Extension)
		}
		p.schemas[i] = s
		p.insts[i] = s.NewInstance(g.Nodes[i].Configuration, g.CustomEvents)
	}
	if v.err != nil {
		return v.err
	}

	for i := range g.Nodes {
		p.validateNode(i, &v)
	}
	if v.err != nil {
		return v.err
	}

	for _, c := range p.valueCycles() {
		v.add(fmt.Sprintf("nodes[%d]", c[0]), "value cycle %s", formatCycle(c))
	}
	return v.err
}

func (p *Program) validateNode(i int, v *violations) {
	g := p.graph
	n := g.Nodes[i]
	s := p.schemas[i]
	inst := p.insts[i]
	path := fmt.Sprintf("nodes[%d]", i)

	for _, name := range ir.SortedKeys(n.Configuration) {
		if _, ok := s.ConfigParam(name); !ok {
			v.add(path+".configuration."+name, "not a configuration of %s", s.Op)
		}
	}
	if idx, ok := n.Configuration["variable"].(ir.Int); ok && (idx < 0 || int(idx) >= len(g.Variables)) {
		v.add(path+".configuration.variable", "variable %d out of range", idx)
	}
	if idx, ok := n.Configuration["event"].(ir.Int); ok && (idx < -1 || int(idx) >= len(g.CustomEvents)) {
		v.add(path+".configuration.event", "event %d out of range", idx)
	}

	for _, name := range ir.SortedKeys(n.Flows) {
		ref := n.Flows[name]
		fpath := path + ".flows." + name
		if !s.AcceptsFlowOut(inst, name) {
			v.add(fpath, "%s has no flow output %q", s.Op, name)
			continue
		}
		if !p.schemas[ref.Node].AcceptsFlowIn(p.insts[ref.Node], ref.Socket) {
			v.add(fpath, "node %d (%s) has no flow input %q", ref.Node, p.schemas[ref.Node].Op, ref.Socket)
		}
	}

	for _, name := range sortedInputs(n) {
		in := n.Values[name]
		vpath := path + ".values." + name
		if !s.AcceptsValueIn(inst, name) {
			v.add(vpath, "%s has no value input %q", s.Op, name)
			continue
		}
		want := p.inputType(i, name)
		got := ""
		if in.Ref != nil {
			src := in.Ref.Node
			if !p.schemas[src].AcceptsValueOut(p.insts[src], in.Ref.Socket) {
				v.add(vpath, "node %d (%s) has no value output %q", src, p.schemas[src].Op, in.Ref.Socket)
				continue
			}
			got = p.outputType(src, in.Ref.Socket)
		} else {
			got = in.Literal.Signature()
		}
		if got == "" {
			continue
		}
		if want == "" {
			if types, _ := s.InputType(inst, name); types != nil && !slices.Contains(types, got) {
				v.add(vpath, "type %s not accepted", got)
			}
			continue
		}
		if want != got && !ir.CanConvert(got, want) {
			v.add(vpath, "type %s is not compatible with %s", got, want)
		}
	}

	for _, in := range s.ValueIn {
		if !in.Required || in.Default != nil {
			continue
		}
		if _, ok := n.Values[in.Name]; !ok {
			v.add(path+".values."+in.Name, "required input is not connected")
		}
	}
}

// inputType is the signature a value input is read as, or "" when the
// socket accepts any type.
func (p *Program) inputType(i int, name string) string {
	if t, ok := p.graph.Decl(i).InputType(name); ok {
		return t
	}
	s, inst := p.schemas[i], p.insts[i]
	if in, ok := s.Input(name); ok {
		if t := p.polyType(i, in.Poly); t != "" {
			return t
		}
		if len(in.Types) == 1 {
			return in.Types[0]
		}
		return ""
	}
	if types, ok := s.InputType(inst, name); ok && len(types) == 1 {
		return types[0]
	}
	return ""
}

// outputType is the signature of a value output, or "" if unknown.
func (p *Program) outputType(i int, name string) string {
	if t, ok := p.graph.Decl(i).OutputType(name); ok {
		return t
	}
	s, inst := p.schemas[i], p.insts[i]
	if out, ok := s.Output(name); ok {
		if out.Type != "" {
			return out.Type
		}
		return p.polyType(i, out.Poly)
	}
	if inst.Event != nil {
		if prm, ok := inst.Event.Param(name); ok {
			return prm.Type
		}
	}
	return ""
}

func (p *Program) polyType(i int, rule schema.PolyRule) string {
	switch rule {
	case schema.FromVariable:
		if idx, ok := p.variableIndex(i); ok {
			return p.graph.Variables[idx].Type
		}
	case schema.FromConfigType:
		if t, ok := p.schemas[i].ConfigOr(p.insts[i], "type").(ir.String); ok {
			return string(t)
		}
	}
	return ""
}

// variableIndex returns the node's configured variable.
func (p *Program) variableIndex(i int) (int, bool) {
	idx, ok := p.graph.Nodes[i].Configuration["variable"].(ir.Int)
	if !ok || idx < 0 || int(idx) >= len(p.graph.Variables) {
		return 0, false
	}
	return int(idx), true
}

// eventIndexOf returns the node's configured custom event.
func (p *Program) eventIndexOf(i int) (int, bool) {
	idx, ok := p.graph.Nodes[i].Configuration["event"].(ir.Int)
	if !ok || idx < 0 || int(idx) >= len(p.graph.CustomEvents) {
		return 0, false
	}
	return int(idx), true
}

// numberedFlows returns the node's numeric flow outputs in numeric order.
func (p *Program) numberedFlows(i int) []string {
	var names []string
	for name := range p.graph.Nodes[i].Flows {
		if _, ok := schema.SocketIndex(name); ok {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		x, _ := strconv.Atoi(a)
		y, _ := strconv.Atoi(b)
		return x - y
	})
	return names
}

func sortedInputs(n ir.Node) []string {
	return ir.SortedKeys(n.Values)
}
