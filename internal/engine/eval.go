package engine

import (
	"math"

	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// config returns a node's configuration value or its schema default.
func (s *Session) config(i int, name string) ir.Value {
	return s.prog.schemas[i].ConfigOr(s.prog.insts[i], name)
}

// input evaluates value input name of node i. Linked inputs are pulled
// from their source on every call; nothing is cached across requests.
// An unconnected input yields the schema default, then the type default.
func (s *Session) input(i int, name string) ir.Value {
	want := s.prog.inputType(i, name)

	var v ir.Value
	if in, ok := s.prog.graph.Nodes[i].Values[name]; ok {
		if in.Ref != nil {
			v = s.pull(*in.Ref)
		} else {
			v = in.Literal
		}
	}
	if v == nil {
		v = s.inputDefault(i, name, want)
	}
	if v != nil && want != "" && v.Signature() != want {
		if c, ok := ir.Convert(v, want); ok {
			v = c
		}
	}
	return v
}

func (s *Session) inputDefault(i int, name, want string) ir.Value {
	sch := s.prog.schemas[i]
	if in, ok := sch.Input(name); ok && in.Default != nil {
		return in.Default
	}
	if ev := s.prog.insts[i].Event; ev != nil {
		if p, ok := ev.Param(name); ok && p.Default != nil {
			return p.Default
		}
	}
	if want != "" {
		return ir.Default(want)
	}
	return nil
}

// pull reads an output socket.
func (s *Session) pull(ref ir.SocketRef) ir.Value {
	i := ref.Node
	sch := s.prog.schemas[i]
	var v ir.Value
	switch {
	case sch.Op == schema.OpOnTick:
		v = s.tickOutput(ref.Socket)
	case sch.Event:
		v = s.nodes[i].outputs[ref.Socket]
	case sch.Pure():
		v = s.evalPure(i, ref.Socket)
	default:
		v = s.stateOutput(i, ref.Socket)
	}
	if v == nil {
		if t := s.prog.outputType(i, ref.Socket); t != "" {
			v = ir.Default(t)
		}
	}
	return v
}

// stateOutput serves the value outputs of flow nodes from their runtime
// state.
func (s *Session) stateOutput(i int, socket string) ir.Value {
	st := &s.nodes[i]
	switch s.prog.schemas[i].Op {
	case schema.OpWaitAll:
		if socket == "remainingInputs" {
			n, _ := s.config(i, "inputFlows").(ir.Int)
			return ir.Int(int64(n) - int64(len(st.fired)))
		}
	case schema.OpDoN:
		if socket == "currentCount" {
			return ir.Int(st.count)
		}
	case schema.OpMultiGate:
		if socket == "lastIndex" {
			return ir.Int(st.gate.last)
		}
	case schema.OpSetDelay:
		if socket == "lastDelayIndex" {
			return ir.Int(st.lastDelay)
		}
	}
	return nil
}

// evalPure computes an output of a pure node from its inputs.
func (s *Session) evalPure(i int, socket string) ir.Value {
	op := s.prog.schemas[i].Op
	out := s.prog.outputType(i, socket)
	switch op {
	case schema.OpVariableGet:
		if idx, ok := s.prog.variableIndex(i); ok {
			return s.vars[idx]
		}
		return nil

	case schema.OpPointerGet:
		v, valid := s.pointerGet(i)
		if socket == "isValid" {
			return ir.Bool(valid)
		}
		return v

	case schema.OpAdd, schema.OpSub, schema.OpMul, schema.OpDiv:
		a, b := s.input(i, "a"), s.input(i, "b")
		if out == "" {
			out = ir.PreferType(a.Signature(), b.Signature())
		}
		return arith(op, a, b, out)

	case schema.OpEq:
		return ir.Bool(equalValues(s.input(i, "a"), s.input(i, "b")))

	case schema.OpLt, schema.OpGt:
		a, aok := scalar(s.input(i, "a"))
		b, bok := scalar(s.input(i, "b"))
		if !aok || !bok {
			return ir.Bool(false)
		}
		if op == schema.OpLt {
			return ir.Bool(a < b)
		}
		return ir.Bool(a > b)

	case schema.OpNot:
		b, _ := s.input(i, "a").(ir.Bool)
		return !b

	case schema.OpSelect:
		cond, _ := s.input(i, "condition").(ir.Bool)
		v := s.input(i, "b")
		if cond {
			v = s.input(i, "a")
		}
		if v != nil && out != "" {
			if c, ok := ir.Convert(v, out); ok {
				return c
			}
		}
		return v

	case schema.OpIsNaN:
		f, ok := scalar(s.input(i, "a"))
		return ir.Bool(ok && math.IsNaN(f))

	case schema.OpIntToFloat, schema.OpFloatToInt, schema.OpBoolToInt:
		if c, ok := ir.Convert(s.input(i, "a"), out); ok {
			return c
		}
	}
	return nil
}

// arith applies a binary arithmetic op componentwise in signature sig.
// Integer division by zero yields 0.
func arith(op string, a, b ir.Value, sig string) ir.Value {
	ca, okA := ir.Convert(a, sig)
	cb, okB := ir.Convert(b, sig)
	if !okA || !okB {
		return ir.Default(sig)
	}
	if x, ok := ca.(ir.Int); ok {
		y := cb.(ir.Int)
		switch op {
		case schema.OpAdd:
			return x + y
		case schema.OpSub:
			return x - y
		case schema.OpMul:
			return x * y
		case schema.OpDiv:
			if y == 0 {
				return ir.Int(0)
			}
			return x / y
		}
	}
	fa, okA := ir.Floats(ca)
	fb, okB := ir.Floats(cb)
	if !okA || !okB {
		return ir.Default(sig)
	}
	res := make([]float64, len(fa))
	for k := range fa {
		switch op {
		case schema.OpAdd:
			res[k] = fa[k] + fb[k]
		case schema.OpSub:
			res[k] = fa[k] - fb[k]
		case schema.OpMul:
			res[k] = fa[k] * fb[k]
		case schema.OpDiv:
			res[k] = fa[k] / fb[k]
		}
	}
	v, err := ir.FloatsToValue(sig, res)
	if err != nil {
		return ir.Default(sig)
	}
	return v
}

// equalValues compares after widening both sides to a common type.
// NaN is unequal to everything, itself included.
func equalValues(a, b ir.Value) bool {
	if a == nil || b == nil {
		return false
	}
	sig := ir.PreferType(a.Signature(), b.Signature())
	ca, okA := ir.Convert(a, sig)
	cb, okB := ir.Convert(b, sig)
	if !okA || !okB {
		return false
	}
	if fa, ok := ir.Floats(ca); ok {
		fb, _ := ir.Floats(cb)
		for k := range fa {
			if fa[k] != fb[k] {
				return false
			}
		}
		return true
	}
	return ir.Equal(ca, cb)
}

func scalar(v ir.Value) (float64, bool) {
	switch t := v.(type) {
	case ir.Float:
		return float64(t), true
	case ir.Int:
		return float64(t), true
	}
	return 0, false
}
