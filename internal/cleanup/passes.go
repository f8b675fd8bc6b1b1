package cleanup

import (
	"fmt"
	"strings"

	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// timingSubgraph is a NaN-guarded read of an onTick timing output:
//
//	onTick.<socket> -> isNaN.a
//	isNaN.value     -> select.condition
//	onTick.<socket> -> select.b
type timingSubgraph struct {
	socket             string
	tick, isNaN, guard int
}

// TickTimingDedup collapses duplicate timing subgraphs of the same kind
// onto one survivor.
//
// The survivor of each kind is the subgraph whose onTick has the lowest
// node index. Node indices follow creation order, which is unit order in
// the authoring graph, so the survivor is stable across compiles.
type TickTimingDedup struct{}

func (TickTimingDedup) Name() string { return "tick-timing-dedup" }

func (TickTimingDedup) Apply(t *Task) error {
	survivors := map[string]timingSubgraph{}
	for _, sub := range findTimingSubgraphs(t.Graph) {
		first, ok := survivors[sub.socket]
		if !ok {
			survivors[sub.socket] = sub
			continue
		}
		t.Graph.Redirect(
			ir.SocketRef{Node: sub.guard, Socket: schema.Value},
			ir.SocketRef{Node: first.guard, Socket: schema.Value},
		)
		t.Remove(sub.tick)
		t.Remove(sub.isNaN)
		t.Remove(sub.guard)
	}
	return nil
}

func findTimingSubgraphs(g *ir.Graph) []timingSubgraph {
	var out []timingSubgraph
	for i, n := range g.Nodes {
		if g.Op(i) != schema.OpOnTick || len(n.Flows) > 0 {
			continue
		}
		for _, socket := range []string{"timeSinceStart", "timeSinceLastTick"} {
			if sub, ok := matchTiming(g, i, socket); ok {
				out = append(out, sub)
			}
		}
	}
	return out
}

// matchTiming recognizes a timing subgraph rooted at tick. The onTick and
// isNaN nodes must feed nothing outside the subgraph, so removing them is
// safe.
func matchTiming(g *ir.Graph, tick int, socket string) (timingSubgraph, bool) {
	for _, other := range []string{"timeSinceStart", "timeSinceLastTick"} {
		if other != socket && len(g.Consumers(tick, other)) > 0 {
			return timingSubgraph{}, false
		}
	}
	consumers := g.Consumers(tick, socket)
	if len(consumers) != 2 {
		return timingSubgraph{}, false
	}
	sub := timingSubgraph{socket: socket, tick: tick, isNaN: -1, guard: -1}
	for _, c := range consumers {
		switch {
		case g.Op(c.Node) == schema.OpIsNaN && c.Socket == "a":
			sub.isNaN = c.Node
		case g.Op(c.Node) == schema.OpSelect && c.Socket == "b":
			sub.guard = c.Node
		}
	}
	if sub.isNaN < 0 || sub.guard < 0 {
		return timingSubgraph{}, false
	}
	nan := g.Consumers(sub.isNaN, schema.Value)
	if len(nan) != 1 || nan[0] != (ir.SocketRef{Node: sub.guard, Socket: "condition"}) {
		return timingSubgraph{}, false
	}
	if a, ok := g.Nodes[sub.guard].Values["a"]; ok && a.Ref != nil {
		return timingSubgraph{}, false
	}
	return sub, true
}

// PureDedup merges structurally identical pure value nodes: same
// declaration, configuration and inputs. The lowest index survives and
// consumers of the others are redirected to it. Merging can make
// downstream nodes identical, so the pass repeats until nothing changes.
type PureDedup struct{}

func (PureDedup) Name() string { return "pure-dedup" }

func (PureDedup) Apply(t *Task) error {
	for {
		changed := false
		seen := map[string]int{}
		for i := range t.Graph.Nodes {
			if t.Removed(i) || !t.Pure(i) {
				continue
			}
			key := nodeKey(t.Graph, i)
			first, ok := seen[key]
			if !ok {
				seen[key] = i
				continue
			}
			for _, out := range t.Graph.Decl(i).ValueOut {
				t.Graph.Redirect(
					ir.SocketRef{Node: i, Socket: out.Name},
					ir.SocketRef{Node: first, Socket: out.Name},
				)
			}
			t.Remove(i)
			changed = true
		}
		if !changed {
			return nil
		}
	}
}

// nodeKey is a structural identity for node i.
func nodeKey(g *ir.Graph, i int) string {
	n := g.Nodes[i]
	var b strings.Builder
	fmt.Fprintf(&b, "d%d", n.Declaration)
	for _, name := range ir.SortedKeys(n.Configuration) {
		v := n.Configuration[name]
		fmt.Fprintf(&b, "|c:%s=%s%v", name, v.Signature(), v.Components())
	}
	for _, name := range ir.SortedKeys(n.Values) {
		in := n.Values[name]
		if in.Ref != nil {
			fmt.Fprintf(&b, "|v:%s=@%d.%s", name, in.Ref.Node, in.Ref.Socket)
			continue
		}
		fmt.Fprintf(&b, "|v:%s=%s%v", name, in.Literal.Signature(), in.Literal.Components())
	}
	return b.String()
}

// OrphanPrune deletes pure value nodes whose outputs feed nothing. Removing
// one can orphan its sources, so the pass repeats until nothing changes.
type OrphanPrune struct{}

func (OrphanPrune) Name() string { return "orphan-prune" }

func (OrphanPrune) Apply(t *Task) error {
	for {
		counts := t.consumerCounts()
		changed := false
		for i := range t.Graph.Nodes {
			if t.Removed(i) || !t.Pure(i) || counts[i] > 0 {
				continue
			}
			t.Remove(i)
			changed = true
		}
		if !changed {
			return nil
		}
	}
}
