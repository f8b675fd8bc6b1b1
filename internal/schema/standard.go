package schema

import "github.com/roach88/ixgraph/internal/ir"

// Operation ids of the built-in catalog.
const (
	OpOnStart    = "event/onStart"
	OpOnTick     = "event/onTick"
	OpOnSelect   = "event/onSelect"
	OpOnHoverIn  = "event/onHoverIn"
	OpOnHoverOut = "event/onHoverOut"
	OpReceive    = "event/receive"
	OpSend       = "event/send"

	OpSequence    = "flow/sequence"
	OpBranch      = "flow/branch"
	OpSwitch      = "flow/switch"
	OpWaitAll     = "flow/waitAll"
	OpMultiGate   = "flow/multiGate"
	OpDoN         = "flow/doN"
	OpSetDelay    = "flow/setDelay"
	OpCancelDelay = "flow/cancelDelay"

	OpVariableGet         = "variable/get"
	OpVariableSet         = "variable/set"
	OpVariableInterpolate = "variable/interpolate"

	OpPointerGet         = "pointer/get"
	OpPointerSet         = "pointer/set"
	OpPointerInterpolate = "pointer/interpolate"

	OpLog = "debug/log"

	OpAnimationStart = "animation/start"
	OpAnimationStop  = "animation/stop"

	OpAdd    = "math/add"
	OpSub    = "math/sub"
	OpMul    = "math/mul"
	OpDiv    = "math/div"
	OpEq     = "math/eq"
	OpLt     = "math/lt"
	OpGt     = "math/gt"
	OpNot    = "math/not"
	OpSelect = "math/select"
	OpIsNaN  = "math/isNaN"

	OpIntToFloat = "type/intToFloat"
	OpFloatToInt = "type/floatToInt"
	OpBoolToInt  = "type/boolToInt"
)

// Extension tags carried by event declarations.
const (
	ExtSelectability = "KHR_node_selectability"
	ExtHoverability  = "KHR_node_hoverability"
)

// Common socket names.
const (
	In        = "in"
	Out       = "out"
	Err       = "err"
	Done      = "done"
	Reset     = "reset"
	Completed = "completed"
	Default   = "default"
	Value     = "value"
)

func standardOps() []OpSchema {
	ops := []OpSchema{
		{Op: OpOnStart, Event: true, FlowOut: []string{Out}},
		{
			Op: OpOnTick, Event: true, FlowOut: []string{Out},
			ValueOut: []OutputSocket{
				{Name: "timeSinceStart", Type: ir.SigFloat},
				{Name: "timeSinceLastTick", Type: ir.SigFloat},
			},
		},
		{
			Op: OpOnSelect, Extension: ExtSelectability, Event: true, FlowOut: []string{Out},
			Config: []ConfigParam{
				{Name: "nodeIndex", Type: ir.SigInt, Default: ir.Int(-1)},
				{Name: "stopPropagation", Type: ir.SigBool, Default: ir.Bool(false)},
			},
			ValueOut: []OutputSocket{
				{Name: "selectedNodeIndex", Type: ir.SigInt},
				{Name: "controllerIndex", Type: ir.SigInt},
				{Name: "selectionPoint", Type: ir.SigFloat3},
				{Name: "selectionRayOrigin", Type: ir.SigFloat3},
			},
		},
		hoverEvent(OpOnHoverIn),
		hoverEvent(OpOnHoverOut),
		{
			Op: OpReceive, Event: true, FlowOut: []string{Out}, Dynamic: EventValues,
			Config: []ConfigParam{{Name: "event", Type: ir.SigInt, Default: ir.Int(-1)}},
		},
		{
			Op: OpSend, FlowIn: []string{In}, FlowOut: []string{Out}, Dynamic: EventValues,
			Config: []ConfigParam{{Name: "event", Type: ir.SigInt, Default: ir.Int(-1)}},
		},

		{Op: OpSequence, FlowIn: []string{In}, Dynamic: NumericFlowOut},
		{
			Op: OpBranch, FlowIn: []string{In}, FlowOut: []string{"true", "false"},
			ValueIn: []ValueSocket{{Name: "condition", Types: []string{ir.SigBool}, Default: ir.Bool(false)}},
		},
		{
			Op: OpSwitch, FlowIn: []string{In}, FlowOut: []string{Default}, Dynamic: CaseFlowOut,
			Config:  []ConfigParam{{Name: "cases", Type: ir.SigIntArray}},
			ValueIn: []ValueSocket{{Name: "selection", Types: []string{ir.SigInt}, Default: ir.Int(0)}},
		},
		{
			Op: OpWaitAll, FlowIn: []string{Reset}, FlowOut: []string{Out, Completed}, Dynamic: NumericFlowIn,
			Config:   []ConfigParam{{Name: "inputFlows", Type: ir.SigInt, Default: ir.Int(0)}},
			ValueOut: []OutputSocket{{Name: "remainingInputs", Type: ir.SigInt}},
		},
		{
			Op: OpMultiGate, FlowIn: []string{In, Reset}, Dynamic: NumericFlowOut,
			Config: []ConfigParam{
				{Name: "isRandom", Type: ir.SigBool, Default: ir.Bool(false)},
				{Name: "isLoop", Type: ir.SigBool, Default: ir.Bool(false)},
			},
			ValueOut: []OutputSocket{{Name: "lastIndex", Type: ir.SigInt}},
		},
		{
			Op: OpDoN, FlowIn: []string{In, Reset}, FlowOut: []string{Out},
			ValueIn:  []ValueSocket{{Name: "n", Types: []string{ir.SigInt}, Default: ir.Int(0)}},
			ValueOut: []OutputSocket{{Name: "currentCount", Type: ir.SigInt}},
		},
		{
			Op: OpSetDelay, FlowIn: []string{In, "cancel"}, FlowOut: []string{Out, Err, Done},
			ValueIn:  []ValueSocket{{Name: "duration", Types: []string{ir.SigFloat}, Default: ir.Float(0)}},
			ValueOut: []OutputSocket{{Name: "lastDelayIndex", Type: ir.SigInt}},
		},
		{
			Op: OpCancelDelay, FlowIn: []string{In}, FlowOut: []string{Out},
			ValueIn: []ValueSocket{{Name: "delayIndex", Types: []string{ir.SigInt}, Default: ir.Int(-1)}},
		},

		{
			Op:       OpVariableGet,
			Config:   []ConfigParam{{Name: "variable", Type: ir.SigInt, Default: ir.Int(-1)}},
			ValueOut: []OutputSocket{{Name: Value, Poly: FromVariable}},
		},
		{
			Op: OpVariableSet, FlowIn: []string{In}, FlowOut: []string{Out},
			Config:  []ConfigParam{{Name: "variable", Type: ir.SigInt, Default: ir.Int(-1)}},
			ValueIn: []ValueSocket{{Name: Value, Poly: FromVariable}},
		},
		{
			Op: OpVariableInterpolate, FlowIn: []string{In}, FlowOut: []string{Out, Err, Done},
			Config: []ConfigParam{
				{Name: "variable", Type: ir.SigInt, Default: ir.Int(-1)},
				{Name: "useSlerp", Type: ir.SigBool, Default: ir.Bool(false)},
			},
			ValueIn: interpolationInputs(FromVariable),
		},

		{
			Op: OpPointerGet, Dynamic: DynamicValueIn, Template: "pointer", PlaceholderType: ir.SigInt,
			Config: pointerConfig(),
			ValueOut: []OutputSocket{
				{Name: Value, Poly: FromConfigType},
				{Name: "isValid", Type: ir.SigBool},
			},
		},
		{
			Op: OpPointerSet, FlowIn: []string{In}, FlowOut: []string{Out, Err},
			Dynamic: DynamicValueIn, Template: "pointer", PlaceholderType: ir.SigInt,
			Config:  pointerConfig(),
			ValueIn: []ValueSocket{{Name: Value, Poly: FromConfigType}},
		},
		{
			Op: OpPointerInterpolate, FlowIn: []string{In}, FlowOut: []string{Out, Err, Done},
			Dynamic: DynamicValueIn, Template: "pointer", PlaceholderType: ir.SigInt,
			Config:  pointerConfig(),
			ValueIn: interpolationInputs(FromConfigType),
		},

		{
			Op: OpLog, FlowIn: []string{In}, FlowOut: []string{Out},
			Dynamic: DynamicValueIn, Template: "message",
			Config: []ConfigParam{
				{Name: "severity", Type: ir.SigInt, Default: ir.Int(0)},
				{Name: "message", Type: ir.SigString, Default: ir.String("")},
			},
		},

		{
			Op: OpAnimationStart, FlowIn: []string{In}, FlowOut: []string{Out, Err, Done},
			ValueIn: []ValueSocket{
				{Name: "animation", Types: []string{ir.SigInt}, Default: ir.Int(-1)},
				{Name: "startTime", Types: []string{ir.SigFloat}, Default: ir.Float(0)},
				{Name: "endTime", Types: []string{ir.SigFloat}, Default: ir.Float(0)},
				{Name: "speed", Types: []string{ir.SigFloat}, Default: ir.Float(1)},
			},
		},
		{
			Op: OpAnimationStop, FlowIn: []string{In}, FlowOut: []string{Out, Err},
			ValueIn: []ValueSocket{{Name: "animation", Types: []string{ir.SigInt}, Default: ir.Int(-1)}},
		},

		binaryMirror(OpAdd),
		binaryMirror(OpSub),
		binaryMirror(OpMul),
		binaryMirror(OpDiv),
		compare(OpEq, append([]string{ir.SigBool}, Numeric...)),
		compare(OpLt, Scalar),
		compare(OpGt, Scalar),
		{
			Op:       OpNot,
			ValueIn:  []ValueSocket{{Name: "a", Types: []string{ir.SigBool}, Default: ir.Bool(false)}},
			ValueOut: []OutputSocket{{Name: Value, Type: ir.SigBool}},
		},
		{
			Op: OpSelect,
			ValueIn: []ValueSocket{
				{Name: "condition", Types: []string{ir.SigBool}, Default: ir.Bool(false)},
				{Name: "a", Types: Any, Poly: MirrorInput},
				{Name: "b", Types: Any, Poly: MirrorInput},
			},
			ValueOut: []OutputSocket{{Name: Value, Poly: MirrorInput, Mirror: []string{"a", "b"}}},
		},
		{
			Op:       OpIsNaN,
			ValueIn:  []ValueSocket{{Name: "a", Types: []string{ir.SigFloat}, Default: ir.Float(0)}},
			ValueOut: []OutputSocket{{Name: Value, Type: ir.SigBool}},
		},

		convert(OpIntToFloat, ir.SigInt, ir.SigFloat),
		convert(OpFloatToInt, ir.SigFloat, ir.SigInt),
		convert(OpBoolToInt, ir.SigBool, ir.SigInt),
	}
	return ops
}

func hoverEvent(op string) OpSchema {
	return OpSchema{
		Op: op, Extension: ExtHoverability, Event: true, FlowOut: []string{Out},
		Config: []ConfigParam{
			{Name: "nodeIndex", Type: ir.SigInt, Default: ir.Int(-1)},
			{Name: "stopPropagation", Type: ir.SigBool, Default: ir.Bool(false)},
		},
		ValueOut: []OutputSocket{
			{Name: "hoverNodeIndex", Type: ir.SigInt},
			{Name: "controllerIndex", Type: ir.SigInt},
		},
	}
}

func pointerConfig() []ConfigParam {
	return []ConfigParam{
		{Name: "pointer", Type: ir.SigString, Default: ir.String("")},
		{Name: "type", Type: ir.SigType, Default: ir.String(ir.SigFloat)},
	}
}

// interpolationInputs uses cubic-bezier control points p1, p2. The
// defaults (0,0) and (1,1) give linear easing.
func interpolationInputs(target PolyRule) []ValueSocket {
	return []ValueSocket{
		{Name: Value, Types: FloatAny, Poly: target},
		{Name: "duration", Types: []string{ir.SigFloat}, Default: ir.Float(0)},
		{Name: "p1", Types: []string{ir.SigFloat2}, Default: ir.Float2{0, 0}},
		{Name: "p2", Types: []string{ir.SigFloat2}, Default: ir.Float2{1, 1}},
	}
}

func binaryMirror(op string) OpSchema {
	return OpSchema{
		Op: op,
		ValueIn: []ValueSocket{
			{Name: "a", Types: Numeric, Default: ir.Float(0), Poly: MirrorInput},
			{Name: "b", Types: Numeric, Default: ir.Float(0), Poly: MirrorInput},
		},
		ValueOut: []OutputSocket{{Name: Value, Poly: MirrorInput, Mirror: []string{"a", "b"}}},
	}
}

func compare(op string, types []string) OpSchema {
	return OpSchema{
		Op: op,
		ValueIn: []ValueSocket{
			{Name: "a", Types: types, Default: ir.Float(0), Poly: MirrorInput},
			{Name: "b", Types: types, Default: ir.Float(0), Poly: MirrorInput},
		},
		ValueOut: []OutputSocket{{Name: Value, Type: ir.SigBool}},
	}
}

func convert(op, from, to string) OpSchema {
	return OpSchema{
		Op:       op,
		ValueIn:  []ValueSocket{{Name: "a", Types: []string{from}, Default: ir.Default(from)}},
		ValueOut: []OutputSocket{{Name: Value, Type: to}},
	}
}
