package engine

import (
	"fmt"
	"slices"
	"strings"
)

// valueGraph maps a pure node to the pure nodes it pulls values from.
// Flow nodes and event nodes hold state rather than computing on pull,
// so links through them never recurse and are left out.
type valueGraph [][]int

func (p *Program) buildValueGraph() valueGraph {
	g := make(valueGraph, len(p.graph.Nodes))
	for i, n := range p.graph.Nodes {
		if !p.schemas[i].Pure() {
			continue
		}
		for _, name := range sortedInputs(n) {
			in := n.Values[name]
			if in.Ref == nil || !p.schemas[in.Ref.Node].Pure() {
				continue
			}
			g[i] = append(g[i], in.Ref.Node)
		}
	}
	return g
}

// valueCycles returns every value cycle among pure nodes as a node path
// that ends where it starts, for example [3 5 3]. Lazy evaluation of a
// cycle would never terminate.
func (p *Program) valueCycles() [][]int {
	g := p.buildValueGraph()
	var cycles [][]int
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || slices.Contains(g[scc[0]], scc[0]) {
			cycles = append(cycles, cyclePath(scc, g))
		}
	}
	return cycles
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in index order so the result is deterministic.
func tarjanSCC(g valueGraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make([]int, len(g))
		lowlink = make([]int, len(g))
		onStack = make([]bool, len(g))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component.
		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for v := range g {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}
	return sccs
}

// cyclePath walks the component from its lowest node back to itself.
func cyclePath(scc []int, g valueGraph) []int {
	start := scc[0]
	if len(scc) == 1 {
		return []int{start, start}
	}
	path := []int{start}
	visited := map[int]bool{}
	current := start
	for {
		visited[current] = true
		next := -1
		for _, w := range g[current] {
			if slices.Contains(scc, w) && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next < 0 {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		current = next
	}
}

func formatCycle(path []int) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, " -> ")
}
