package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"go.uber.org/multierr"

	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// SchemaViolation is one reason a wire graph was rejected.
type SchemaViolation struct {
	Path   string
	Reason string
}

func (v *SchemaViolation) Error() string {
	if v.Path == "" {
		return v.Reason
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Reason)
}

// Violations returns every SchemaViolation aggregated in err.
func Violations(err error) []*SchemaViolation {
	var out []*SchemaViolation
	for _, e := range multierr.Errors(err) {
		var v *SchemaViolation
		if errors.As(e, &v) {
			out = append(out, v)
		}
	}
	return out
}

// Decode parses a wire graph and checks it against reg. All violations are
// reported together and no graph is returned when there are any.
func Decode(data []byte, reg *schema.Registry) (*ir.Graph, error) {
	tree, err := parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return nil, &SchemaViolation{Reason: "graph must be an object"}
	}
	return decodeGraph(obj, "", reg)
}

// DecodeEnvelope parses an envelope of graphs.
func DecodeEnvelope(data []byte, reg *schema.Registry) (*Envelope, error) {
	tree, err := parse(data)
	if err != nil {
		return nil, err
	}
	d := &decoder{reg: reg}
	obj, ok := d.object("", tree)
	if !ok {
		return nil, d.errs
	}
	env := &Envelope{}
	list, _ := d.array(keyGraphs, obj[keyGraphs])
	for i, raw := range list {
		path := fmt.Sprintf("graphs[%d]", i)
		gobj, ok := d.object(path, raw)
		if !ok {
			continue
		}
		g, err := decodeGraph(gobj, path, reg)
		if err != nil {
			d.errs = multierr.Append(d.errs, err)
			continue
		}
		env.Graphs = append(env.Graphs, g)
	}
	if raw, ok := obj[keyGraph]; ok {
		if idx, ok := d.index(keyGraph, raw, len(list)); ok {
			env.Default = idx
		}
	}
	if d.errs != nil {
		return nil, d.errs
	}
	return env, nil
}

func parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse graph: trailing data")
	}
	return tree, nil
}

// decoder accumulates violations while walking the tree.
type decoder struct {
	reg   *schema.Registry
	base  string
	errs  error
	types []string
	g     *ir.Graph
}

func (d *decoder) violate(path, format string, args ...any) {
	if d.base != "" {
		if path == "" {
			path = d.base
		} else {
			path = d.base + "." + path
		}
	}
	d.errs = multierr.Append(d.errs, &SchemaViolation{Path: path, Reason: fmt.Sprintf(format, args...)})
}

func (d *decoder) object(path string, v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		d.violate(path, "expected an object")
	}
	return m, ok
}

func (d *decoder) array(path string, v any) ([]any, bool) {
	if v == nil {
		return nil, true
	}
	a, ok := v.([]any)
	if !ok {
		d.violate(path, "expected an array")
	}
	return a, ok
}

func (d *decoder) str(path string, v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		d.violate(path, "expected a string")
	}
	return s, ok
}

// index reads a non-negative integer below limit.
func (d *decoder) index(path string, v any, limit int) (int, bool) {
	num, ok := v.(json.Number)
	if !ok {
		d.violate(path, "expected an integer")
		return 0, false
	}
	n, err := num.Int64()
	if err != nil || n > math.MaxInt32 {
		d.violate(path, "expected an integer, got %s", num)
		return 0, false
	}
	if n < 0 || int(n) >= limit {
		d.violate(path, "index %d out of range [0,%d)", n, limit)
		return 0, false
	}
	return int(n), true
}

func (d *decoder) typeRef(path string, v any) (string, bool) {
	idx, ok := d.index(path, v, len(d.types))
	if !ok {
		return "", false
	}
	return d.types[idx], true
}

// literal decodes {type, value}.
func (d *decoder) literal(path string, v any) (ir.Value, bool) {
	obj, ok := d.object(path, v)
	if !ok {
		return nil, false
	}
	sig, ok := d.typeRef(path+".type", obj[keyType])
	if !ok {
		return nil, false
	}
	return d.components(path+".value", sig, obj[keyValue])
}

func (d *decoder) components(path, sig string, v any) (ir.Value, bool) {
	comps, ok := v.([]any)
	if !ok {
		d.violate(path, "expected a component array")
		return nil, false
	}
	val, err := ir.FromComponents(sig, comps)
	if err != nil {
		d.violate(path, "%v", err)
		return nil, false
	}
	return val, true
}

func decodeGraph(obj map[string]any, base string, reg *schema.Registry) (*ir.Graph, error) {
	d := &decoder{reg: reg, base: base, g: &ir.Graph{}}

	types, _ := d.array(keyTypes, obj[keyTypes])
	for i, raw := range types {
		path := fmt.Sprintf("types[%d]", i)
		t, ok := d.object(path, raw)
		if !ok {
			d.types = append(d.types, "")
			continue
		}
		sig, _ := d.str(path+".signature", t[keySignature])
		d.types = append(d.types, sig)
	}

	d.variables(obj[keyVariables])
	d.events(obj[keyCustomEvents])
	schemas := d.declarations(obj[keyDeclarations])
	d.nodes(obj[keyNodes], schemas)

	if d.errs != nil {
		return nil, d.errs
	}
	return d.g, nil
}

func (d *decoder) variables(raw any) {
	list, _ := d.array(keyVariables, raw)
	for i, r := range list {
		path := fmt.Sprintf("variables[%d]", i)
		obj, ok := d.object(path, r)
		if !ok {
			continue
		}
		id, _ := d.str(path+".id", obj[keyID])
		val, ok := d.literal(path, obj)
		if !ok {
			continue
		}
		d.g.Variables = append(d.g.Variables, ir.Variable{ID: id, Type: val.Signature(), Default: val})
	}
}

func (d *decoder) events(raw any) {
	list, _ := d.array(keyCustomEvents, raw)
	for i, r := range list {
		path := fmt.Sprintf("customEvents[%d]", i)
		obj, ok := d.object(path, r)
		if !ok {
			continue
		}
		id, _ := d.str(path+".id", obj[keyID])
		ev := ir.CustomEvent{ID: id}
		if rawParams, ok := obj[keyValues]; ok {
			params, ok := d.object(path+".values", rawParams)
			if !ok {
				continue
			}
			for _, name := range ir.SortedKeys(params) {
				val, ok := d.literal(path+".values."+name, params[name])
				if !ok {
					continue
				}
				ev.Params = append(ev.Params, ir.EventParam{Name: name, Type: val.Signature(), Default: val})
			}
		}
		d.g.CustomEvents = append(d.g.CustomEvents, ev)
	}
}

// declarations decodes the declaration table. The returned slice holds the
// op schema per declaration, nil where the op is unknown.
func (d *decoder) declarations(raw any) []*schema.OpSchema {
	list, _ := d.array(keyDeclarations, raw)
	schemas := make([]*schema.OpSchema, len(list))
	for i, r := range list {
		path := fmt.Sprintf("declarations[%d]", i)
		decl := ir.Declaration{}
		obj, ok := d.object(path, r)
		if !ok {
			d.g.Declarations = append(d.g.Declarations, decl)
			continue
		}
		decl.Op, _ = d.str(path+".op", obj[keyOp])
		s, known := d.reg.Lookup(decl.Op)
		if !known {
			d.violate(path+".op", "unknown op %q", decl.Op)
		}
		if ext, ok := obj[keyExtension]; ok {
			decl.Extension, _ = d.str(path+".extension", ext)
		}
		if known {
			schemas[i] = s
			if decl.Extension != s.Extension {
				d.violate(path+".extension", "op %s requires extension %q, got %q", decl.Op, s.Extension, decl.Extension)
			}
			decl.FlowIn = s.FlowIn
			decl.FlowOut = s.FlowOut
		}

		if rawCfg, ok := obj[keyConfig]; ok {
			if cfg, ok := d.object(path+".configuration", rawCfg); ok {
				for _, name := range ir.SortedKeys(cfg) {
					p := path + ".configuration." + name
					entry, ok := d.object(p, cfg[name])
					if !ok {
						continue
					}
					sig, ok := d.str(p+".type", entry[keyType])
					if !ok {
						continue
					}
					if known {
						c, ok := s.ConfigParam(name)
						switch {
						case !ok:
							d.violate(p, "unknown configuration %q for %s", name, decl.Op)
							continue
						case c.Type != sig:
							d.violate(p, "configuration %q is %s, not %s", name, c.Type, sig)
							continue
						}
					}
					decl.Config = append(decl.Config, ir.Param{Name: name, Type: sig})
				}
			}
		}
		decl.ValueIn = d.params(path+".inputValueSockets", obj[keyInputs])
		decl.ValueOut = d.params(path+".outputValueSockets", obj[keyOutputs])
		d.g.Declarations = append(d.g.Declarations, decl)
	}
	return schemas
}

func (d *decoder) params(path string, raw any) []ir.Param {
	if raw == nil {
		return nil
	}
	obj, ok := d.object(path, raw)
	if !ok {
		return nil
	}
	var out []ir.Param
	for _, name := range ir.SortedKeys(obj) {
		entry, ok := d.object(path+"."+name, obj[name])
		if !ok {
			continue
		}
		sig, ok := d.typeRef(path+"."+name+".type", entry[keyType])
		if !ok {
			continue
		}
		out = append(out, ir.Param{Name: name, Type: sig})
	}
	return out
}

// pendingRef is a link checked once every node exists.
type pendingRef struct {
	path string
	ref  ir.SocketRef
	flow bool
}

func (d *decoder) ref(path string, v any, limit int) (ir.SocketRef, bool) {
	obj, ok := d.object(path, v)
	if !ok {
		return ir.SocketRef{}, false
	}
	node, ok := d.index(path+".node", obj[keyNode], limit)
	if !ok {
		return ir.SocketRef{}, false
	}
	socket, ok := d.str(path+".socket", obj[keySocket])
	return ir.SocketRef{Node: node, Socket: socket}, ok
}

func (d *decoder) nodes(raw any, schemas []*schema.OpSchema) {
	list, _ := d.array(keyNodes, raw)
	var pending []pendingRef
	for i, r := range list {
		path := fmt.Sprintf("nodes[%d]", i)
		obj, ok := d.object(path, r)
		if !ok {
			continue
		}
		di, ok := d.index(path+".declaration", obj[keyDeclaration], len(d.g.Declarations))
		if !ok {
			continue
		}
		decl := d.g.Declarations[di]
		s := schemas[di]
		n := ir.NewNode(di)

		if rawCfg, ok := obj[keyConfig]; ok {
			if cfg, ok := d.object(path+".configuration", rawCfg); ok {
				for _, name := range ir.SortedKeys(cfg) {
					p := path + ".configuration." + name
					sig, declared := decl.ConfigType(name)
					if !declared {
						d.violate(p, "configuration %q not in declaration %d", name, di)
						continue
					}
					entry, ok := d.object(p, cfg[name])
					if !ok {
						continue
					}
					if sig == ir.SigType {
						comps, _ := entry[keyValue].([]any)
						if len(comps) != 1 {
							d.violate(p+".value", "type reference expects 1 component")
							continue
						}
						if t, ok := d.typeRef(p+".value[0]", comps[0]); ok {
							n.Configuration[name] = ir.String(t)
						}
						continue
					}
					if v, ok := d.components(p+".value", sig, entry[keyValue]); ok {
						n.Configuration[name] = v
					}
				}
			}
		}
		// Absent configuration reads the schema default.
		if s != nil {
			for _, c := range decl.Config {
				if _, ok := n.Configuration[c.Name]; !ok {
					n.Configuration[c.Name] = s.ConfigOr(schema.Instance{}, c.Name)
				}
			}
		}
		var inst schema.Instance
		if s != nil {
			inst = s.NewInstance(n.Configuration, d.g.CustomEvents)
			d.checkSockets(path, di, decl, s, inst)
		}

		if rawVals, ok := obj[keyValues]; ok {
			if vals, ok := d.object(path+".values", rawVals); ok {
				for _, name := range ir.SortedKeys(vals) {
					p := path + ".values." + name
					want, declared := decl.InputType(name)
					if !declared {
						d.violate(p, "unknown value socket %q", name)
						continue
					}
					entry, ok := d.object(p, vals[name])
					if !ok {
						continue
					}
					if _, isRef := entry[keyNode]; isRef {
						r, ok := d.ref(p, entry, len(list))
						if ok {
							n.Values[name] = ir.Link(r.Node, r.Socket)
							pending = append(pending, pendingRef{path: p, ref: r})
						}
						continue
					}
					lit, ok := d.literal(p, entry)
					if !ok {
						continue
					}
					if lit.Signature() != want {
						d.violate(p, "literal of type %s on socket of type %s", lit.Signature(), want)
						continue
					}
					n.Values[name] = ir.Lit(lit)
				}
			}
		}

		if rawFlows, ok := obj[keyFlows]; ok {
			if flows, ok := d.object(path+".flows", rawFlows); ok {
				for _, name := range ir.SortedKeys(flows) {
					p := path + ".flows." + name
					if s != nil && !s.AcceptsFlowOut(inst, name) {
						d.violate(p, "unknown flow output %q for %s", name, decl.Op)
						continue
					}
					r, ok := d.ref(p, flows[name], len(list))
					if !ok {
						continue
					}
					n.Flows[name] = r
					pending = append(pending, pendingRef{path: p, ref: r, flow: true})
				}
			}
		}
		d.g.AddNode(n)
	}

	if d.errs != nil {
		return
	}
	for _, p := range pending {
		d.checkRef(p, schemas)
	}
}

// checkSockets verifies the declaration's value sockets against the op
// schema for this node's instance.
func (d *decoder) checkSockets(path string, di int, decl ir.Declaration, s *schema.OpSchema, inst schema.Instance) {
	for _, p := range decl.ValueIn {
		accepted, ok := s.InputType(inst, p.Name)
		if !ok {
			d.violate(path, "declaration %d: %s has no value input %q", di, decl.Op, p.Name)
			continue
		}
		if accepted != nil && !slices.Contains(accepted, p.Type) {
			d.violate(path, "declaration %d: %s input %q does not accept %s", di, decl.Op, p.Name, p.Type)
		}
	}
	for _, p := range decl.ValueOut {
		if !s.AcceptsValueOut(inst, p.Name) {
			d.violate(path, "declaration %d: %s has no value output %q", di, decl.Op, p.Name)
		}
	}
}

func (d *decoder) checkRef(p pendingRef, schemas []*schema.OpSchema) {
	target := d.g.Nodes[p.ref.Node]
	decl := d.g.Declarations[target.Declaration]
	if p.flow {
		s := schemas[target.Declaration]
		if s == nil {
			return
		}
		inst := s.NewInstance(target.Configuration, d.g.CustomEvents)
		if !s.AcceptsFlowIn(inst, p.ref.Socket) {
			d.violate(p.path, "node %d (%s) has no flow input %q", p.ref.Node, decl.Op, p.ref.Socket)
		}
		return
	}
	if _, ok := decl.OutputType(p.ref.Socket); !ok {
		d.violate(p.path, "node %d (%s) declares no value output %q", p.ref.Node, decl.Op, p.ref.Socket)
	}
}
