package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/roach88/ixgraph/internal/authoring"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

func parse(t *testing.T, src string) *authoring.Graph {
	t.Helper()
	g, err := authoring.ParseYAML([]byte(src))
	require.NoError(t, err)
	return g
}

func compile(t *testing.T, src string) *Result {
	t.Helper()
	res, err := Default().Compile(parse(t, src))
	require.NoError(t, err)
	return res
}

// nodesByOp returns node indices for op in index order.
func nodesByOp(g *ir.Graph, op string) []int {
	var out []int
	for i := range g.Nodes {
		if g.Op(i) == op {
			out = append(out, i)
		}
	}
	return out
}

const counterGraph = `
name: counter
variables:
  - {id: count, type: int, default: 0}
units:
  - {id: start, kind: OnStart}
  - id: set
    kind: SetVariable
    config: {variable: count}
    literals: {value: 5}
  - id: log
    kind: Log
    config: {message: "{count}"}
control:
  - {from: {unit: start, pin: out}, to: {unit: set, pin: in}}
  - {from: {unit: set, pin: out}, to: {unit: log, pin: in}}
`

func TestCompileCounter(t *testing.T) {
	res := compile(t, counterGraph)
	g := res.Graph
	assert.Empty(t, res.Diagnostics)

	require.Len(t, g.Nodes, 4)
	assert.Equal(t, []string{schema.OpOnStart, schema.OpVariableSet, schema.OpVariableGet, schema.OpLog},
		[]string{g.Op(0), g.Op(1), g.Op(2), g.Op(3)})

	assert.Equal(t, ir.SocketRef{Node: 1, Socket: "in"}, g.Nodes[0].Flows["out"])
	assert.Equal(t, ir.SocketRef{Node: 3, Socket: "in"}, g.Nodes[1].Flows["out"])
	assert.True(t, ir.Equal(ir.Int(5), g.Nodes[1].Values["value"].Literal))
	assert.True(t, ir.Equal(ir.Int(0), g.Nodes[1].Configuration["variable"]))

	// Unwired log placeholders read variables at runtime; no socket is declared.
	assert.Empty(t, g.Nodes[3].Values)
	assert.Empty(t, g.Decl(3).ValueIn)

	typ, ok := g.Decl(2).OutputType("value")
	require.True(t, ok)
	assert.Equal(t, ir.SigInt, typ)
}

func TestCompileUnmappedUnitContinues(t *testing.T) {
	res := compile(t, `
units:
  - {id: start, kind: OnStart}
  - {id: mystery, kind: PlaySound}
  - {id: log, kind: Log, config: {message: hi}}
control:
  - {from: {unit: start, pin: out}, to: {unit: mystery, pin: in}}
  - {from: {unit: mystery, pin: out}, to: {unit: log, pin: in}}
`)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagUnmappedUnit, res.Diagnostics[0].Code)
	assert.Equal(t, "mystery", res.Diagnostics[0].Unit)
	assert.Len(t, res.Graph.Nodes, 2)
	assert.Empty(t, res.Graph.Nodes[0].Flows, "outputs of an unmapped unit stay unconnected")
}

func TestCompileWorldSpaceMemberIsUnmapped(t *testing.T) {
	res := compile(t, `
units:
  - {id: get, kind: GetMember, owner: Transform, member: position}
  - {id: local, kind: GetMember, owner: Transform, member: localPosition, literals: {target: 2}}
`)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagUnmappedUnit, res.Diagnostics[0].Code)
	assert.Equal(t, "get", res.Diagnostics[0].Unit)

	require.Len(t, res.Graph.Nodes, 1)
	n := res.Graph.Nodes[0]
	assert.Equal(t, schema.OpPointerGet, res.Graph.Op(0))
	assert.True(t, ir.Equal(ir.String("/nodes/{nodeIndex}/translation"), n.Configuration["pointer"]))
	assert.True(t, ir.Equal(ir.Int(2), n.Values["nodeIndex"].Literal))
	typ, _ := res.Graph.Decl(0).OutputType("value")
	assert.Equal(t, ir.SigFloat3, typ)
}

func TestCompileExporterFailureRollsBack(t *testing.T) {
	exporters := NewRegistryBuilder().
		Kind("OnStart", single(schema.OpOnStart, pins{flowOut: []string{"out"}}, nil)).
		Kind("Broken", ExporterFunc(func(ctx *Context, u *authoring.Unit) error {
			n := ctx.CreateNode(schema.OpLog)
			ctx.MapFlowIn("in", n, "in")
			ctx.Defer(func(*Resolver) error { return errors.New("must not run") })
			return errors.New("boom")
		})).
		Kind("Log", ExporterFunc(exportLog)).
		Build()

	g := parse(t, `
units:
  - {id: start, kind: OnStart}
  - {id: broken, kind: Broken}
  - {id: log, kind: Log}
control:
  - {from: {unit: start, pin: out}, to: {unit: broken, pin: in}}
`)
	res, err := New(exporters, schema.Standard()).Compile(g)
	require.NoError(t, err)

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagExporterFailed, res.Diagnostics[0].Code)
	assert.Contains(t, res.Diagnostics[0].Message, "boom")
	require.Len(t, res.Graph.Nodes, 2)
	assert.Equal(t, schema.OpLog, res.Graph.Op(1), "the broken unit's node is gone and indices stay dense")
	assert.Empty(t, res.Graph.Nodes[0].Flows)
	require.NoError(t, res.Graph.Validate())
}

func TestCompileRelayChainLeavesNoNode(t *testing.T) {
	res := compile(t, `
units:
  - {id: start, kind: OnStart}
  - {id: r1, kind: Relay}
  - {id: r2, kind: Relay}
  - {id: log, kind: Log, config: {message: hi}}
control:
  - {from: {unit: start, pin: out}, to: {unit: r1, pin: in}}
  - {from: {unit: r1, pin: out}, to: {unit: r2, pin: in}}
  - {from: {unit: r2, pin: out}, to: {unit: log, pin: in}}
`)
	assert.Empty(t, res.Diagnostics)
	require.Len(t, res.Graph.Nodes, 2)
	assert.Equal(t, ir.SocketRef{Node: 1, Socket: "in"}, res.Graph.Nodes[0].Flows["out"])
}

func TestCompileRerouteForwardsValue(t *testing.T) {
	res := compile(t, `
variables:
  - {id: x, type: float, default: 1.5}
units:
  - {id: get, kind: GetVariable, config: {variable: x}}
  - {id: via, kind: Reroute}
  - {id: add, kind: Add, literals: {b: 2}}
data:
  - {from: {unit: get, pin: value}, to: {unit: via, pin: in}}
  - {from: {unit: via, pin: out}, to: {unit: add, pin: a}}
`)
	assert.Empty(t, res.Diagnostics)
	require.Len(t, res.Graph.Nodes, 2)
	add := res.Graph.Nodes[1]
	require.NotNil(t, add.Values["a"].Ref)
	assert.Equal(t, 0, add.Values["a"].Ref.Node)

	typ, _ := res.Graph.Decl(1).OutputType("value")
	assert.Equal(t, ir.SigFloat, typ, "float wins over the int literal")
}

func TestCompileBypassCycle(t *testing.T) {
	res := compile(t, `
units:
  - {id: start, kind: OnStart}
  - {id: a, kind: Relay}
  - {id: b, kind: Relay}
control:
  - {from: {unit: start, pin: out}, to: {unit: a, pin: in}}
  - {from: {unit: a, pin: out}, to: {unit: b, pin: in}}
  - {from: {unit: b, pin: out}, to: {unit: a, pin: in}}
`)
	assert.True(t, res.Diagnostics.HasCode(DiagBypassCycle))
	assert.Empty(t, res.Graph.Nodes[0].Flows)
}

func TestCompileSwitchCaseOrder(t *testing.T) {
	res := compile(t, `
units:
  - {id: sw, kind: SwitchOnInteger, controlOut: ["3", "1", default, "7"], literals: {selection: 1}}
`)
	n := res.Graph.Nodes[0]
	assert.Equal(t, ir.IntArray{3, 1, 7}, n.Configuration["cases"])
}

func TestCompileSwitchRejectsBadCase(t *testing.T) {
	res := compile(t, `
units:
  - {id: sw, kind: SwitchOnInteger, controlOut: ["x"]}
`)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagBadWire, res.Diagnostics[0].Code)
	assert.Empty(t, res.Graph.Nodes)
}

func TestCompileAwaitSplicesSequence(t *testing.T) {
	res := compile(t, `
units:
  - {id: start, kind: OnStart}
  - {id: seq, kind: Sequence, controlOut: ["0", "1"]}
  - {id: w1, kind: WaitForSeconds, literals: {duration: 1}}
  - {id: w2, kind: WaitForSeconds, literals: {duration: 2}}
  - {id: log1, kind: Log, config: {message: first}}
  - {id: all, kind: Await, config: {after: [w1, w2]}}
  - {id: log2, kind: Log, config: {message: all}}
control:
  - {from: {unit: start, pin: out}, to: {unit: seq, pin: in}}
  - {from: {unit: seq, pin: "0"}, to: {unit: w1, pin: in}}
  - {from: {unit: seq, pin: "1"}, to: {unit: w2, pin: in}}
  - {from: {unit: w1, pin: done}, to: {unit: log1, pin: in}}
  - {from: {unit: all, pin: completed}, to: {unit: log2, pin: in}}
`)
	assert.Empty(t, res.Diagnostics)
	g := res.Graph

	wait := nodesByOp(g, schema.OpWaitAll)
	require.Len(t, wait, 1)
	assert.True(t, ir.Equal(ir.Int(2), g.Nodes[wait[0]].Configuration["inputFlows"]))

	delays := nodesByOp(g, schema.OpSetDelay)
	require.Len(t, delays, 2)

	// w2.done was free: attached directly.
	assert.Equal(t, ir.SocketRef{Node: wait[0], Socket: "1"}, g.Nodes[delays[1]].Flows["done"])

	// w1.done already drove log1: a sequence fires log1 first, then the waitAll.
	spliced := g.Nodes[delays[0]].Flows["done"]
	require.Equal(t, schema.OpSequence, g.Op(spliced.Node))
	seq := g.Nodes[spliced.Node]
	assert.Equal(t, schema.OpLog, g.Op(seq.Flows["0"].Node))
	assert.Equal(t, ir.SocketRef{Node: wait[0], Socket: "0"}, seq.Flows["1"])
}

func TestCompileAwaitUnknownUnit(t *testing.T) {
	res := compile(t, `
units:
  - {id: all, kind: Await, config: {after: [ghost]}}
`)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagBadWire, res.Diagnostics[0].Code)
}

func TestCompileUnknownVariable(t *testing.T) {
	res := compile(t, `
units:
  - {id: get, kind: GetVariable, config: {variable: nope}}
`)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagUnknownRef, res.Diagnostics[0].Code)
	assert.Empty(t, res.Graph.Nodes)
}

func TestCompileTimingSubgraph(t *testing.T) {
	res := compile(t, `
units:
  - {id: dt, kind: DeltaTime}
  - {id: mul, kind: Multiply, literals: {b: 2.0}}
data:
  - {from: {unit: dt, pin: value}, to: {unit: mul, pin: a}}
`)
	g := res.Graph
	require.Len(t, g.Nodes, 4)
	assert.Equal(t, schema.OpOnTick, g.Op(0))
	assert.Equal(t, schema.OpIsNaN, g.Op(1))
	assert.Equal(t, schema.OpSelect, g.Op(2))
	assert.Empty(t, g.Nodes[0].Flows)
	assert.Equal(t, ir.SocketRef{Node: 0, Socket: "timeSinceLastTick"}, *g.Nodes[2].Values["b"].Ref)
	assert.Equal(t, 2, g.Nodes[3].Values["a"].Ref.Node)
}

func TestCompileInternsDeclarations(t *testing.T) {
	res := compile(t, `
units:
  - {id: a1, kind: Add, literals: {a: 1.0, b: 2.0}}
  - {id: a2, kind: Add, literals: {a: 3.0, b: 4.0}}
  - {id: a3, kind: Add, literals: {a: 1, b: 2}}
`)
	g := res.Graph
	assert.Equal(t, g.Nodes[0].Declaration, g.Nodes[1].Declaration)
	assert.NotEqual(t, g.Nodes[0].Declaration, g.Nodes[2].Declaration, "int add has a different typed shape")
	assert.Len(t, g.Declarations, 2)
}

func TestCompileCustomEvents(t *testing.T) {
	res := compile(t, `
events:
  - id: hit
    params:
      - {name: force, type: float, default: 1}
units:
  - {id: send, kind: CustomEventSend, config: {event: hit}, literals: {force: 3}}
  - {id: recv, kind: CustomEventReceive, config: {event: hit}}
`)
	assert.Empty(t, res.Diagnostics)
	g := res.Graph
	require.Len(t, g.CustomEvents, 1)
	assert.True(t, ir.Equal(ir.Float(1), g.CustomEvents[0].Params[0].Default))
	assert.True(t, ir.Equal(ir.Float(3), g.Nodes[0].Values["force"].Literal))
	typ, ok := g.Decl(1).OutputType("force")
	require.True(t, ok)
	assert.Equal(t, ir.SigFloat, typ)
}

func TestCompileUnresolvedTypeIsFatal(t *testing.T) {
	exporters := NewRegistryBuilder().
		Kind("Bad", ExporterFunc(func(ctx *Context, u *authoring.Unit) error {
			n := ctx.CreateNode(schema.OpVariableGet)
			ctx.SetConfig(n, "variable", ir.Int(9))
			return nil
		})).
		Build()
	_, err := New(exporters, schema.Standard()).Compile(parse(t, "units: [{id: b, kind: Bad}]"))

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrUnresolvedType, ce.Code)
}

func TestCompilePhaseMisuseIsFatal(t *testing.T) {
	exporters := NewRegistryBuilder().
		Kind("Sneaky", ExporterFunc(func(ctx *Context, u *authoring.Unit) error {
			ctx.Defer(func(*Resolver) error {
				ctx.CreateNode(schema.OpOnStart)
				return nil
			})
			return nil
		})).
		Build()
	_, err := New(exporters, schema.Standard()).Compile(parse(t, "units: [{id: s, kind: Sneaky}]"))

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrPhaseMisuse, ce.Code)
}

func TestCompileInvalidGraph(t *testing.T) {
	g := &authoring.Graph{Units: []authoring.Unit{{ID: "a", Kind: "OnStart"}, {ID: "a", Kind: "OnStart"}}}
	_, err := Default().Compile(g)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrInvalidGraph, ce.Code)
}

func TestDiagnosticsErrAggregates(t *testing.T) {
	ds := Diagnostics{
		{Code: DiagUnmappedUnit, Unit: "a", Message: "x"},
		{Code: DiagBadWire, Unit: "b", Message: "y"},
	}
	err := ds.Err()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Nil(t, Diagnostics(nil).Err())
	assert.Len(t, ds.ForUnit("b"), 1)
}

func TestCompileBadWires(t *testing.T) {
	res := compile(t, `
units:
  - {id: start, kind: OnStart}
  - {id: log, kind: Log, config: {message: hi}}
  - {id: add, kind: Add, literals: {nope: 1}}
control:
  - {from: {unit: start, pin: missing}, to: {unit: log, pin: in}}
  - {from: {unit: start, pin: out}, to: {unit: log, pin: missing}}
`)
	assert.Len(t, res.Diagnostics, 3)
	for _, d := range res.Diagnostics {
		assert.Equal(t, DiagBadWire, d.Code)
	}
}
