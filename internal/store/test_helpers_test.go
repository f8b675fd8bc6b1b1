package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// createTestStore opens a store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// counterGraph is onStart -> variable/set(count, 5).
func counterGraph() *ir.Graph {
	g := &ir.Graph{
		Variables: []ir.Variable{{ID: "count", Type: ir.SigInt, Default: ir.Int(0)}},
	}
	start := ir.NewNode(g.Declare(ir.Declaration{Op: schema.OpOnStart, FlowOut: []string{schema.Out}}))
	set := ir.NewNode(g.Declare(ir.Declaration{
		Op:      schema.OpVariableSet,
		FlowIn:  []string{schema.In},
		FlowOut: []string{schema.Out},
		ValueIn: []ir.Param{{Name: schema.Value, Type: ir.SigInt}},
		Config:  []ir.Param{{Name: "variable", Type: ir.SigInt}},
	}))
	start.Flows[schema.Out] = ir.SocketRef{Node: 1, Socket: schema.In}
	set.Configuration["variable"] = ir.Int(0)
	set.Values[schema.Value] = ir.Lit(ir.Int(5))
	g.AddNode(start)
	g.AddNode(set)
	return g
}

func testEvent(session string, seq int64, kind engine.TraceKind, message string) engine.TraceEvent {
	return engine.TraceEvent{Seq: seq, Session: session, Kind: kind, Node: 0, Op: schema.OpOnStart, Message: message}
}
