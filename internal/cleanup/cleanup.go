// Package cleanup rewrites a compiled interactivity graph without changing
// its observable behavior.
//
// A Pipeline runs passes in order. Each pass inspects the graph through a
// Task and marks nodes for deletion; the pipeline deletes marked nodes and
// compacts declarations after every pass. Side-effecting nodes and event
// nodes with connected flows are never removed.
package cleanup

import (
	"fmt"
	"log/slog"

	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// Pass is a single graph rewrite.
type Pass interface {
	Name() string
	Apply(t *Task) error
}

// Task is the view of the graph handed to a pass.
type Task struct {
	Graph   *ir.Graph
	Schemas *schema.Registry

	remove map[int]bool
}

// Remove marks node i for deletion after the pass.
func (t *Task) Remove(i int) {
	t.remove[i] = true
}

// Removed reports whether node i is already marked.
func (t *Task) Removed(i int) bool {
	return t.remove[i]
}

// Schema returns the op schema of node i.
func (t *Task) Schema(i int) (*schema.OpSchema, bool) {
	return t.Schemas.Lookup(t.Graph.Op(i))
}

// Pure reports whether node i is a pure value node: known op, no flow
// sockets, not an event.
func (t *Task) Pure(i int) bool {
	s, ok := t.Schema(i)
	return ok && s.Pure()
}

// consumerCounts counts value links into each node from nodes not marked
// for removal.
func (t *Task) consumerCounts() map[int]int {
	counts := map[int]int{}
	for i, n := range t.Graph.Nodes {
		if t.remove[i] {
			continue
		}
		for _, in := range n.Values {
			if in.Ref != nil {
				counts[in.Ref.Node]++
			}
		}
	}
	return counts
}

// PassReport is the outcome of one pass.
type PassReport struct {
	Pass    string `json:"pass"`
	Removed int    `json:"removed"`
}

// Report lists per-pass removal counts in run order.
type Report []PassReport

// Total returns the number of nodes removed across all passes.
func (r Report) Total() int {
	total := 0
	for _, p := range r {
		total += p.Removed
	}
	return total
}

// Pipeline is an immutable ordered list of passes.
type Pipeline struct {
	passes []Pass
}

// NewPipeline creates a pipeline running passes in the given order.
func NewPipeline(passes ...Pass) *Pipeline {
	return &Pipeline{passes: append([]Pass(nil), passes...)}
}

// Default returns the standard pipeline: tick timing dedup, then pure-node
// dedup, then orphan pruning.
func Default() *Pipeline {
	return NewPipeline(TickTimingDedup{}, PureDedup{}, OrphanPrune{})
}

// Passes returns the pass names in run order.
func (p *Pipeline) Passes() []string {
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.Name()
	}
	return names
}

// Run applies every pass to g in place. A pass error stops the pipeline;
// nodes marked by the failing pass are not removed.
func (p *Pipeline) Run(g *ir.Graph, schemas *schema.Registry) (Report, error) {
	var report Report
	for _, pass := range p.passes {
		t := &Task{Graph: g, Schemas: schemas, remove: map[int]bool{}}
		if err := pass.Apply(t); err != nil {
			return report, fmt.Errorf("cleanup pass %s: %w", pass.Name(), err)
		}
		g.RemoveNodes(t.remove)
		g.CompactDeclarations()
		report = append(report, PassReport{Pass: pass.Name(), Removed: len(t.remove)})
		slog.Debug("cleanup pass", "pass", pass.Name(), "removed", len(t.remove), "nodes", len(g.Nodes))
	}
	if err := g.Validate(); err != nil {
		return report, fmt.Errorf("cleanup left an invalid graph: %w", err)
	}
	return report, nil
}
