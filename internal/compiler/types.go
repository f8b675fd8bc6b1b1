package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// typeResolver computes socket types after phase 2. Results are memoized;
// a socket revisited while being resolved is a value cycle and unresolved.
type typeResolver struct {
	c        *compilation
	outTypes map[ir.SocketRef]string
	inTypes  map[ir.SocketRef]string
	visiting map[ir.SocketRef]bool
}

func newTypeResolver(c *compilation) *typeResolver {
	return &typeResolver{
		c:        c,
		outTypes: map[ir.SocketRef]string{},
		inTypes:  map[ir.SocketRef]string{},
		visiting: map[ir.SocketRef]bool{},
	}
}

func (t *typeResolver) unresolved(node int, socket, reason string) error {
	return &CompileError{
		Code:    ErrUnresolvedType,
		Unit:    t.c.nodes[node].unit,
		Message: fmt.Sprintf("%s socket %q: %s", t.c.nodes[node].op, socket, reason),
	}
}

// ruleType resolves the variable, config-type and event rules.
func (t *typeResolver) ruleType(node int, socket string, rule schema.PolyRule) (string, error) {
	n := t.c.nodes[node]
	switch rule {
	case schema.FromVariable:
		idx, _ := n.config["variable"].(ir.Int)
		if idx < 0 || int(idx) >= len(t.c.variables) {
			return "", t.unresolved(node, socket, fmt.Sprintf("variable index %d out of range", idx))
		}
		return t.c.variables[idx].Type, nil
	case schema.FromConfigType:
		s, _ := n.config["type"].(ir.String)
		if s == "" {
			return "", t.unresolved(node, socket, "no type configured")
		}
		return string(s), nil
	case schema.FromEvent:
		inst := t.c.instance(n)
		if inst.Event == nil {
			return "", t.unresolved(node, socket, "event index out of range")
		}
		p, ok := inst.Event.Param(socket)
		if !ok {
			return "", t.unresolved(node, socket, "not a parameter of event "+inst.Event.ID)
		}
		return p.Type, nil
	}
	return "", t.unresolved(node, socket, "no type rule")
}

func (t *typeResolver) outputType(node int, socket string) (string, error) {
	key := ir.SocketRef{Node: node, Socket: socket}
	if sig, ok := t.outTypes[key]; ok {
		return sig, nil
	}
	if t.visiting[key] {
		return "", t.unresolved(node, socket, "value cycle")
	}
	t.visiting[key] = true
	defer delete(t.visiting, key)

	n := t.c.nodes[node]
	var sig string
	var err error
	if out, ok := n.schema.Output(socket); ok {
		switch out.Poly {
		case schema.Fixed:
			sig = out.Type
		case schema.MirrorInput:
			for _, m := range out.Mirror {
				in, e := t.inputType(node, m)
				if e != nil {
					return "", e
				}
				sig = ir.PreferType(sig, in)
			}
		default:
			sig, err = t.ruleType(node, socket, out.Poly)
		}
	} else if n.schema.Dynamic.Has(schema.EventValues) && n.schema.Event {
		sig, err = t.ruleType(node, socket, schema.FromEvent)
	} else {
		err = t.unresolved(node, socket, "not an output socket")
	}
	if err != nil {
		return "", err
	}
	if sig == "" {
		return "", t.unresolved(node, socket, "no type could be derived")
	}
	t.outTypes[key] = sig
	return sig, nil
}

// expectedType is the type a socket demands of a literal, or "" when the
// socket accepts several types and the literal's own shape decides.
func (t *typeResolver) expectedType(node int, socket string) string {
	n := t.c.nodes[node]
	if in, ok := n.schema.Input(socket); ok {
		switch in.Poly {
		case schema.FromVariable, schema.FromConfigType:
			sig, err := t.ruleType(node, socket, in.Poly)
			if err == nil {
				return sig
			}
			return ""
		}
		if len(in.Types) == 1 {
			return in.Types[0]
		}
		return ""
	}
	types, ok := n.schema.InputType(t.c.instance(n), socket)
	if ok && len(types) == 1 {
		return types[0]
	}
	return ""
}

func (t *typeResolver) inputType(node int, socket string) (string, error) {
	key := ir.SocketRef{Node: node, Socket: socket}
	if sig, ok := t.inTypes[key]; ok {
		return sig, nil
	}
	if t.visiting[key] {
		return "", t.unresolved(node, socket, "value cycle")
	}
	t.visiting[key] = true
	defer delete(t.visiting, key)

	n := t.c.nodes[node]
	var sig string
	switch in, connected := n.values[socket]; {
	case connected && in.Ref != nil:
		src, err := t.outputType(in.Ref.Node, in.Ref.Socket)
		if err != nil {
			return "", err
		}
		sig = src
	case connected:
		sig = in.Literal.Signature()
	default:
		sig = t.unconnectedType(node, socket)
	}
	if sig == "" {
		return "", t.unresolved(node, socket, "no type could be derived")
	}
	t.inTypes[key] = sig
	return sig, nil
}

// unconnectedType types a socket with neither link nor literal: the type
// rule if any, else a mirrored sibling, else the schema default.
func (t *typeResolver) unconnectedType(node int, socket string) string {
	if sig := t.expectedType(node, socket); sig != "" {
		return sig
	}
	n := t.c.nodes[node]
	in, static := n.schema.Input(socket)
	if static && in.Poly == schema.MirrorInput {
		sig := ""
		for _, sib := range n.schema.ValueIn {
			if sib.Poly != schema.MirrorInput || sib.Name == socket {
				continue
			}
			if _, ok := n.values[sib.Name]; !ok {
				continue
			}
			s, err := t.inputType(node, sib.Name)
			if err == nil {
				sig = ir.PreferType(sig, s)
			}
		}
		if sig != "" {
			return sig
		}
	}
	if static && in.Default != nil {
		return in.Default.Signature()
	}
	if static && in.Poly == schema.MirrorInput {
		return ir.SigFloat
	}
	return ""
}

// inputSockets lists the value-in sockets a node's declaration carries:
// static inputs plus dynamic ones (placeholders, event parameters).
func (t *typeResolver) inputSockets(node int) []string {
	n := t.c.nodes[node]
	var names []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			names = append(names, s)
		}
	}
	for _, in := range n.schema.ValueIn {
		add(in.Name)
	}
	if n.schema.Dynamic.Has(schema.DynamicValueIn) && n.schema.Template != "" {
		tmpl, _ := n.config[n.schema.Template].(ir.String)
		for _, p := range schema.Placeholders(string(tmpl)) {
			// Log placeholders without a wire read variables at runtime.
			if n.schema.PlaceholderType == "" {
				if _, ok := n.values[p]; !ok {
					continue
				}
			}
			add(p)
		}
	}
	if n.schema.Dynamic.Has(schema.EventValues) && !n.schema.Event {
		if inst := t.c.instance(n); inst.Event != nil {
			for _, p := range inst.Event.Params {
				add(p.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (t *typeResolver) outputSockets(node int) []string {
	n := t.c.nodes[node]
	var names []string
	for _, out := range n.schema.ValueOut {
		names = append(names, out.Name)
	}
	if n.schema.Dynamic.Has(schema.EventValues) && n.schema.Event {
		if inst := t.c.instance(n); inst.Event != nil {
			for _, p := range inst.Event.Params {
				names = append(names, p.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// declaration builds the typed declaration for a node.
func (t *typeResolver) declaration(node int) (ir.Declaration, error) {
	n := t.c.nodes[node]
	d := ir.Declaration{
		Op:        n.op,
		Extension: n.schema.Extension,
		FlowIn:    n.schema.FlowIn,
		FlowOut:   n.schema.FlowOut,
	}
	for _, name := range t.inputSockets(node) {
		sig, err := t.inputType(node, name)
		if err != nil {
			return ir.Declaration{}, err
		}
		d.ValueIn = append(d.ValueIn, ir.Param{Name: name, Type: sig})
	}
	for _, name := range t.outputSockets(node) {
		sig, err := t.outputType(node, name)
		if err != nil {
			return ir.Declaration{}, err
		}
		d.ValueOut = append(d.ValueOut, ir.Param{Name: name, Type: sig})
	}
	for _, p := range n.schema.Config {
		d.Config = append(d.Config, ir.Param{Name: p.Name, Type: p.Type})
	}
	ir.SortParams(d.Config)
	return d, nil
}
