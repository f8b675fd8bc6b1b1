// Package codec encodes interactivity graphs to their JSON wire format and
// decodes them back.
//
// Encoding is canonical: keys sorted by UTF-16 code units, NFC strings, no
// HTML escaping, shortest round-trip floats. Encoding a decoded encoding
// reproduces it byte for byte.
package codec

import (
	"fmt"

	"github.com/roach88/ixgraph/internal/ir"
)

// Wire keys.
const (
	keyTypes        = "types"
	keySignature    = "signature"
	keyVariables    = "variables"
	keyCustomEvents = "customEvents"
	keyDeclarations = "declarations"
	keyNodes        = "nodes"
	keyID           = "id"
	keyType         = "type"
	keyValue        = "value"
	keyValues       = "values"
	keyOp           = "op"
	keyExtension    = "extension"
	keyConfig       = "configuration"
	keyInputs       = "inputValueSockets"
	keyOutputs      = "outputValueSockets"
	keyDeclaration  = "declaration"
	keyFlows        = "flows"
	keyNode         = "node"
	keySocket       = "socket"
	keyGraphs       = "graphs"
	keyGraph        = "graph"
)

// Encode returns the canonical wire encoding of g.
func Encode(g *ir.Graph) ([]byte, error) {
	tree, err := encodeGraph(g)
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(tree)
}

type encoder struct {
	g       *ir.Graph
	typeIdx map[string]int
	declIdx map[int]int
}

func encodeGraph(g *ir.Graph) (map[string]any, error) {
	e := &encoder{g: g, typeIdx: map[string]int{}, declIdx: map[int]int{}}

	types := []any{}
	for i, sig := range g.Types() {
		e.typeIdx[sig] = i
		types = append(types, map[string]any{keySignature: sig})
	}

	variables := []any{}
	for i, v := range g.Variables {
		val, err := e.literal(v.Type, v.Default)
		if err != nil {
			return nil, fmt.Errorf("variables[%d]: %w", i, err)
		}
		val[keyID] = v.ID
		variables = append(variables, val)
	}

	var events []any
	for i, ev := range g.CustomEvents {
		params := map[string]any{}
		for _, p := range ev.Params {
			val, err := e.literal(p.Type, p.Default)
			if err != nil {
				return nil, fmt.Errorf("customEvents[%d].%s: %w", i, p.Name, err)
			}
			params[p.Name] = val
		}
		events = append(events, map[string]any{keyID: ev.ID, keyValues: params})
	}

	// Declarations are emitted in first-use order over nodes; identical
	// shapes collapse onto one index.
	declarations := []any{}
	byKey := map[string]int{}
	for i := range g.Nodes {
		old := g.Nodes[i].Declaration
		if _, ok := e.declIdx[old]; ok {
			continue
		}
		d := g.Declarations[old]
		if idx, ok := byKey[d.Key()]; ok {
			e.declIdx[old] = idx
			continue
		}
		enc, err := e.declaration(d)
		if err != nil {
			return nil, fmt.Errorf("declarations[%d]: %w", old, err)
		}
		byKey[d.Key()] = len(declarations)
		e.declIdx[old] = len(declarations)
		declarations = append(declarations, enc)
	}

	nodes := []any{}
	for i := range g.Nodes {
		enc, err := e.node(i)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		nodes = append(nodes, enc)
	}

	tree := map[string]any{
		keyTypes:        types,
		keyVariables:    variables,
		keyDeclarations: declarations,
		keyNodes:        nodes,
	}
	if len(events) > 0 {
		tree[keyCustomEvents] = events
	}
	return tree, nil
}

// literal encodes v as {type, value}.
func (e *encoder) literal(sig string, v ir.Value) (map[string]any, error) {
	if v == nil {
		v = ir.Default(sig)
	}
	if v.Signature() != sig {
		return nil, fmt.Errorf("value of type %s where %s is declared", v.Signature(), sig)
	}
	idx, ok := e.typeIdx[sig]
	if !ok {
		return nil, fmt.Errorf("type %q missing from the type table", sig)
	}
	return map[string]any{keyType: idx, keyValue: v.Components()}, nil
}

func (e *encoder) sockets(ps []ir.Param) (map[string]any, error) {
	out := map[string]any{}
	for _, p := range ps {
		idx, ok := e.typeIdx[p.Type]
		if !ok {
			return nil, fmt.Errorf("socket %s: type %q missing from the type table", p.Name, p.Type)
		}
		out[p.Name] = map[string]any{keyType: idx}
	}
	return out, nil
}

func (e *encoder) declaration(d ir.Declaration) (map[string]any, error) {
	out := map[string]any{keyOp: d.Op}
	if d.Extension != "" {
		out[keyExtension] = d.Extension
	}
	if len(d.Config) > 0 {
		cfg := map[string]any{}
		for _, p := range d.Config {
			cfg[p.Name] = map[string]any{keyType: p.Type}
		}
		out[keyConfig] = cfg
	}
	if len(d.ValueIn) > 0 {
		in, err := e.sockets(d.ValueIn)
		if err != nil {
			return nil, err
		}
		out[keyInputs] = in
	}
	if len(d.ValueOut) > 0 {
		o, err := e.sockets(d.ValueOut)
		if err != nil {
			return nil, err
		}
		out[keyOutputs] = o
	}
	return out, nil
}

func ref(r ir.SocketRef) map[string]any {
	return map[string]any{keyNode: r.Node, keySocket: r.Socket}
}

func (e *encoder) node(i int) (map[string]any, error) {
	n := e.g.Nodes[i]
	decl := e.g.Decl(i)
	out := map[string]any{keyDeclaration: e.declIdx[n.Declaration]}

	if len(n.Configuration) > 0 {
		cfg := map[string]any{}
		for name, v := range n.Configuration {
			comps := v.Components()
			if t, ok := decl.ConfigType(name); ok && t == ir.SigType {
				s, _ := v.(ir.String)
				idx, ok := e.typeIdx[string(s)]
				if !ok {
					return nil, fmt.Errorf("configuration %s: type %q missing from the type table", name, s)
				}
				comps = []any{idx}
			}
			cfg[name] = map[string]any{keyValue: comps}
		}
		out[keyConfig] = cfg
	}

	if len(n.Values) > 0 {
		vals := map[string]any{}
		for name, in := range n.Values {
			if in.Ref != nil {
				vals[name] = ref(*in.Ref)
				continue
			}
			lit, err := e.literal(in.Literal.Signature(), in.Literal)
			if err != nil {
				return nil, fmt.Errorf("values.%s: %w", name, err)
			}
			vals[name] = lit
		}
		out[keyValues] = vals
	}

	if len(n.Flows) > 0 {
		flows := map[string]any{}
		for name, r := range n.Flows {
			flows[name] = ref(r)
		}
		out[keyFlows] = flows
	}
	return out, nil
}

// Envelope carries several graphs and the index of the default one.
type Envelope struct {
	Graphs  []*ir.Graph
	Default int
}

// EncodeEnvelope returns the canonical encoding of env.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	if env.Default < 0 || (len(env.Graphs) > 0 && env.Default >= len(env.Graphs)) {
		return nil, fmt.Errorf("default graph %d out of range for %d graphs", env.Default, len(env.Graphs))
	}
	graphs := make([]any, len(env.Graphs))
	for i, g := range env.Graphs {
		tree, err := encodeGraph(g)
		if err != nil {
			return nil, fmt.Errorf("graphs[%d]: %w", i, err)
		}
		graphs[i] = tree
	}
	return ir.MarshalCanonical(map[string]any{keyGraphs: graphs, keyGraph: env.Default})
}
