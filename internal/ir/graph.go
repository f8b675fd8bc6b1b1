package ir

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// SocketRef points at a socket on another node.
type SocketRef struct {
	Node   int
	Socket string
}

// ValueInput feeds one value-in socket: either a literal or a link to
// another node's output socket. Exactly one of Ref and Literal is set.
type ValueInput struct {
	Ref     *SocketRef
	Literal Value
}

// Lit creates a literal value input.
func Lit(v Value) ValueInput {
	return ValueInput{Literal: v}
}

// Link creates a value input linked to node's output socket.
func Link(node int, socket string) ValueInput {
	return ValueInput{Ref: &SocketRef{Node: node, Socket: socket}}
}

// IsRef reports whether the input is linked to another node.
func (in ValueInput) IsRef() bool {
	return in.Ref != nil
}

// Param is a named, typed slot: a value socket or a configuration entry.
type Param struct {
	Name string
	Type string
}

// Declaration is the typed signature of one operation kind.
//
// FlowIn and FlowOut list the op's static flow sockets; ops with dynamic
// flow sockets (sequence, switch, waitAll) validate those per node.
// ValueIn, ValueOut and Config are sorted by name.
type Declaration struct {
	Op        string
	Extension string
	FlowIn    []string
	FlowOut   []string
	ValueIn   []Param
	ValueOut  []Param
	Config    []Param
}

// Key returns the interning identity of a declaration:
// op, extension, configuration shape and typed value sockets.
func (d Declaration) Key() string {
	var b strings.Builder
	b.WriteString(d.Op)
	b.WriteByte('|')
	b.WriteString(d.Extension)
	writeParams(&b, "c", d.Config)
	writeParams(&b, "i", d.ValueIn)
	writeParams(&b, "o", d.ValueOut)
	return b.String()
}

func writeParams(b *strings.Builder, tag string, ps []Param) {
	b.WriteByte('|')
	b.WriteString(tag)
	for _, p := range ps {
		b.WriteByte(';')
		b.WriteString(p.Name)
		b.WriteByte(':')
		b.WriteString(p.Type)
	}
}

// InputType returns the declared type of a value-in socket.
func (d Declaration) InputType(name string) (string, bool) {
	return lookupParam(d.ValueIn, name)
}

// OutputType returns the declared type of a value-out socket.
func (d Declaration) OutputType(name string) (string, bool) {
	return lookupParam(d.ValueOut, name)
}

// ConfigType returns the declared type of a configuration entry.
func (d Declaration) ConfigType(name string) (string, bool) {
	return lookupParam(d.Config, name)
}

func lookupParam(ps []Param, name string) (string, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Type, true
		}
	}
	return "", false
}

// SortParams sorts params by name in place and returns them.
func SortParams(ps []Param) []Param {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps
}

// Node is one operation instance. It holds no runtime state.
type Node struct {
	Declaration   int
	Configuration map[string]Value
	Flows         map[string]SocketRef
	Values        map[string]ValueInput
}

// NewNode creates a node with empty maps.
func NewNode(decl int) Node {
	return Node{
		Declaration:   decl,
		Configuration: map[string]Value{},
		Flows:         map[string]SocketRef{},
		Values:        map[string]ValueInput{},
	}
}

// Variable is a session-scoped storage cell.
type Variable struct {
	ID      string
	Type    string
	Default Value
}

// EventParam is one typed parameter of a custom event.
type EventParam struct {
	Name    string
	Type    string
	Default Value
}

// CustomEvent is a named pub/sub channel with typed parameters.
type CustomEvent struct {
	ID     string
	Params []EventParam
}

// Param returns the named event parameter.
func (e CustomEvent) Param(name string) (EventParam, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p, true
		}
	}
	return EventParam{}, false
}

// Graph is a complete interactivity graph.
type Graph struct {
	Declarations []Declaration
	Nodes        []Node
	Variables    []Variable
	CustomEvents []CustomEvent

	declIndex map[string]int
}

// Declare interns d and returns its index.
func (g *Graph) Declare(d Declaration) int {
	if g.declIndex == nil || len(g.declIndex) != len(g.Declarations) {
		g.reindexDeclarations()
	}
	key := d.Key()
	if idx, ok := g.declIndex[key]; ok {
		return idx
	}
	g.Declarations = append(g.Declarations, d)
	idx := len(g.Declarations) - 1
	g.declIndex[key] = idx
	return idx
}

func (g *Graph) reindexDeclarations() {
	g.declIndex = make(map[string]int, len(g.Declarations))
	for i, d := range g.Declarations {
		if _, exists := g.declIndex[d.Key()]; !exists {
			g.declIndex[d.Key()] = i
		}
	}
}

// AddNode appends n and returns its index. Index order is creation order.
func (g *Graph) AddNode(n Node) int {
	g.Nodes = append(g.Nodes, n)
	return len(g.Nodes) - 1
}

// Decl returns the declaration of node i.
func (g *Graph) Decl(i int) *Declaration {
	return &g.Declarations[g.Nodes[i].Declaration]
}

// Op returns the operation id of node i.
func (g *Graph) Op(i int) string {
	return g.Decl(i).Op
}

// VariableIndex returns the index of the variable with id, or -1.
func (g *Graph) VariableIndex(id string) int {
	for i, v := range g.Variables {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// EventIndex returns the index of the custom event with id, or -1.
func (g *Graph) EventIndex(id string) int {
	for i, e := range g.CustomEvents {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Consumers returns every (node, input socket) whose value input links to
// the given output socket, ordered by node index then socket name.
func (g *Graph) Consumers(node int, socket string) []SocketRef {
	var out []SocketRef
	for i, n := range g.Nodes {
		for _, name := range SortedKeys(n.Values) {
			in := n.Values[name]
			if in.Ref != nil && in.Ref.Node == node && in.Ref.Socket == socket {
				out = append(out, SocketRef{Node: i, Socket: name})
			}
		}
	}
	return out
}

// Redirect rewrites every value link to from so it points at to.
// Returns the number of rewritten inputs.
func (g *Graph) Redirect(from, to SocketRef) int {
	count := 0
	for _, n := range g.Nodes {
		for name, in := range n.Values {
			if in.Ref != nil && *in.Ref == from {
				n.Values[name] = Link(to.Node, to.Socket)
				count++
			}
		}
	}
	return count
}

// RemoveNodes deletes the given nodes and reindexes the rest.
//
// Flow links into removed nodes are dropped. Value links to removed nodes
// are dropped too, leaving the socket unconnected so it reads its default.
// No dangling reference survives.
func (g *Graph) RemoveNodes(remove map[int]bool) {
	if len(remove) == 0 {
		return
	}
	remap := make([]int, len(g.Nodes))
	kept := g.Nodes[:0:0]
	for i, n := range g.Nodes {
		if remove[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, n)
	}

	for _, n := range kept {
		for name, ref := range n.Flows {
			if remap[ref.Node] < 0 {
				delete(n.Flows, name)
				continue
			}
			n.Flows[name] = SocketRef{Node: remap[ref.Node], Socket: ref.Socket}
		}
		for name, in := range n.Values {
			if in.Ref == nil {
				continue
			}
			if remap[in.Ref.Node] < 0 {
				delete(n.Values, name)
				continue
			}
			n.Values[name] = Link(remap[in.Ref.Node], in.Ref.Socket)
		}
	}
	g.Nodes = kept
}

// CompactDeclarations drops unused declarations and renumbers the rest in
// first-use order over the node list.
func (g *Graph) CompactDeclarations() {
	remap := make(map[int]int, len(g.Declarations))
	var decls []Declaration
	for i := range g.Nodes {
		old := g.Nodes[i].Declaration
		idx, ok := remap[old]
		if !ok {
			idx = len(decls)
			remap[old] = idx
			decls = append(decls, g.Declarations[old])
		}
		g.Nodes[i].Declaration = idx
	}
	g.Declarations = decls
	g.reindexDeclarations()
}

// Types returns the signatures referenced by the graph in first-use order:
// variables, then custom event parameters, then declaration value sockets,
// then node literals. Configuration-only signatures are excluded.
func (g *Graph) Types() []string {
	var types []string
	seen := map[string]bool{}
	add := func(sig string) {
		if sig == "" || IsConfigOnly(sig) || seen[sig] {
			return
		}
		seen[sig] = true
		types = append(types, sig)
	}

	for _, v := range g.Variables {
		add(v.Type)
	}
	for _, e := range g.CustomEvents {
		for _, p := range e.Params {
			add(p.Type)
		}
	}
	for _, d := range g.Declarations {
		for _, p := range d.ValueIn {
			add(p.Type)
		}
		for _, p := range d.ValueOut {
			add(p.Type)
		}
	}
	for i, n := range g.Nodes {
		for _, name := range SortedKeys(n.Values) {
			if lit := n.Values[name].Literal; lit != nil {
				add(lit.Signature())
			}
		}
		for _, name := range SortedKeys(n.Configuration) {
			if s, ok := n.Configuration[name].(String); ok && g.Decl(i).configIsType(name) {
				add(string(s))
			}
		}
	}
	return types
}

func (d Declaration) configIsType(name string) bool {
	t, ok := d.ConfigType(name)
	return ok && t == SigType
}

// Validate checks structural invariants: declaration indices exist and
// every flow or value link targets a node in range.
func (g *Graph) Validate() error {
	for i, n := range g.Nodes {
		if n.Declaration < 0 || n.Declaration >= len(g.Declarations) {
			return fmt.Errorf("node %d: declaration %d out of range", i, n.Declaration)
		}
		for name, ref := range n.Flows {
			if ref.Node < 0 || ref.Node >= len(g.Nodes) {
				return fmt.Errorf("node %d: flow %q targets node %d out of range", i, name, ref.Node)
			}
		}
		for name, in := range n.Values {
			if in.Ref == nil && in.Literal == nil {
				return fmt.Errorf("node %d: value %q has neither link nor literal", i, name)
			}
			if in.Ref != nil && (in.Ref.Node < 0 || in.Ref.Node >= len(g.Nodes)) {
				return fmt.Errorf("node %d: value %q links node %d out of range", i, name, in.Ref.Node)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the graph. Values are immutable and shared.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Declarations: make([]Declaration, len(g.Declarations)),
		Nodes:        make([]Node, len(g.Nodes)),
		Variables:    slices.Clone(g.Variables),
		CustomEvents: make([]CustomEvent, len(g.CustomEvents)),
	}
	for i, d := range g.Declarations {
		out.Declarations[i] = Declaration{
			Op:        d.Op,
			Extension: d.Extension,
			FlowIn:    slices.Clone(d.FlowIn),
			FlowOut:   slices.Clone(d.FlowOut),
			ValueIn:   slices.Clone(d.ValueIn),
			ValueOut:  slices.Clone(d.ValueOut),
			Config:    slices.Clone(d.Config),
		}
	}
	for i, n := range g.Nodes {
		c := NewNode(n.Declaration)
		for k, v := range n.Configuration {
			c.Configuration[k] = v
		}
		for k, v := range n.Flows {
			c.Flows[k] = v
		}
		for k, v := range n.Values {
			if v.Ref != nil {
				c.Values[k] = Link(v.Ref.Node, v.Ref.Socket)
			} else {
				c.Values[k] = v
			}
		}
		out.Nodes[i] = c
	}
	for i, e := range g.CustomEvents {
		out.CustomEvents[i] = CustomEvent{ID: e.ID, Params: slices.Clone(e.Params)}
	}
	return out
}

// SortedKeys returns map keys in ascending byte order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
