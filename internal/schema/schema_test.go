package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ixgraph/internal/ir"
)

func TestStandardCatalog(t *testing.T) {
	r := Standard()
	assert.Same(t, r, Standard(), "built once")

	for _, op := range []string{
		OpOnStart, OpOnTick, OpOnSelect, OpOnHoverIn, OpOnHoverOut, OpReceive, OpSend,
		OpSequence, OpBranch, OpSwitch, OpWaitAll, OpMultiGate, OpDoN, OpSetDelay, OpCancelDelay,
		OpVariableGet, OpVariableSet, OpVariableInterpolate,
		OpPointerGet, OpPointerSet, OpPointerInterpolate,
		OpLog, OpAnimationStart, OpAnimationStop,
		OpAdd, OpSub, OpMul, OpDiv, OpEq, OpLt, OpGt, OpNot, OpSelect, OpIsNaN,
		OpIntToFloat, OpFloatToInt, OpBoolToInt,
	} {
		_, ok := r.Lookup(op)
		assert.True(t, ok, "missing %s", op)
	}
	assert.Equal(t, r.Len(), len(r.Ops()))
	assert.Equal(t, OpOnStart, r.Ops()[0], "registration order")
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(OpSchema{Op: "a"}, OpSchema{Op: "a"})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(OpSchema{})
	assert.Error(t, err)
}

func TestEventExtensions(t *testing.T) {
	sel, _ := Standard().Lookup(OpOnSelect)
	assert.Equal(t, ExtSelectability, sel.Extension)
	out, ok := sel.Output("selectionPoint")
	require.True(t, ok)
	assert.Equal(t, ir.SigFloat3, out.Type)

	hover, _ := Standard().Lookup(OpOnHoverOut)
	assert.Equal(t, ExtHoverability, hover.Extension)
}

func TestDynamicFlowSockets(t *testing.T) {
	r := Standard()
	seq, _ := r.Lookup(OpSequence)
	sw, _ := r.Lookup(OpSwitch)
	wait, _ := r.Lookup(OpWaitAll)

	tests := []struct {
		name string
		ok   bool
		got  bool
	}{
		{"sequence numeric out", true, seq.AcceptsFlowOut(Instance{}, "3")},
		{"sequence leading zero", false, seq.AcceptsFlowOut(Instance{}, "03")},
		{"sequence named out", false, seq.AcceptsFlowOut(Instance{}, "next")},
		{"switch case", true, sw.AcceptsFlowOut(Instance{Config: map[string]ir.Value{"cases": ir.IntArray{1, -4}}}, "-4")},
		{"switch default", true, sw.AcceptsFlowOut(Instance{}, "default")},
		{"switch unknown case", false, sw.AcceptsFlowOut(Instance{Config: map[string]ir.Value{"cases": ir.IntArray{1}}}, "2")},
		{"waitAll in range", true, wait.AcceptsFlowIn(Instance{Config: map[string]ir.Value{"inputFlows": ir.Int(3)}}, "2")},
		{"waitAll out of range", false, wait.AcceptsFlowIn(Instance{Config: map[string]ir.Value{"inputFlows": ir.Int(3)}}, "3")},
		{"waitAll reset", true, wait.AcceptsFlowIn(Instance{}, "reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.got)
		})
	}
}

func TestDynamicValueSockets(t *testing.T) {
	r := Standard()
	get, _ := r.Lookup(OpPointerGet)
	inst := Instance{Config: map[string]ir.Value{"pointer": ir.String("/nodes/{nodeIndex}/translation")}}

	types, ok := get.InputType(inst, "nodeIndex")
	require.True(t, ok)
	assert.Equal(t, []string{ir.SigInt}, types)
	assert.False(t, get.AcceptsValueIn(inst, "other"))

	logOp, _ := r.Lookup(OpLog)
	types, ok = logOp.InputType(Instance{Config: map[string]ir.Value{"message": ir.String("v={v}")}}, "v")
	require.True(t, ok)
	assert.Nil(t, types, "log placeholders accept any type")

	ev := &ir.CustomEvent{ID: "hit", Params: []ir.EventParam{{Name: "force", Type: ir.SigFloat}}}
	send, _ := r.Lookup(OpSend)
	recv, _ := r.Lookup(OpReceive)
	assert.True(t, send.AcceptsValueIn(Instance{Event: ev}, "force"))
	assert.False(t, send.AcceptsValueOut(Instance{Event: ev}, "force"))
	assert.True(t, recv.AcceptsValueOut(Instance{Event: ev}, "force"))
	assert.False(t, recv.AcceptsValueIn(Instance{Event: ev}, "force"))
}

func TestPure(t *testing.T) {
	r := Standard()
	for op, want := range map[string]bool{
		OpAdd: true, OpVariableGet: true, OpPointerGet: true,
		OpOnTick: false, OpSequence: false, OpLog: false, OpWaitAll: false,
	} {
		s, _ := r.Lookup(op)
		assert.Equal(t, want, s.Pure(), op)
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"a", "b_2"}, Placeholders("{a} and {b_2} and {a} {} {1x} {bad name}"))
	assert.Empty(t, Placeholders("no braces"))
	assert.Empty(t, Placeholders("{unterminated"))
}

func TestExpand(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "var" {
			return "5", true
		}
		return "", false
	}
	tests := []struct {
		in, want string
	}{
		{"{var}", "5"},
		{"x={var}, y={missing}", "x=5, y={missing}"},
		{"{not valid}", "{not valid}"},
		{"{{var}}", "{5}"},
		{"open {var", "open {var"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.in, lookup))
		})
	}
}
