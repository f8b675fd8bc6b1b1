package compiler

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/roach88/ixgraph/internal/authoring"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// pins maps unit pins one-to-one onto same-named sockets of a single node.
type pins struct {
	flowIn, flowOut, valueIn, valueOut []string
}

func (p pins) mapTo(ctx *Context, node int) {
	for _, s := range p.flowIn {
		ctx.MapFlowIn(s, node, s)
	}
	for _, s := range p.flowOut {
		ctx.MapFlowOut(s, node, s)
	}
	for _, s := range p.valueIn {
		ctx.MapValueIn(s, node, s)
	}
	for _, s := range p.valueOut {
		ctx.MapValueOut(s, node, s)
	}
}

// single exports a unit as one node of op. configure may be nil.
func single(op string, p pins, configure func(*Context, *authoring.Unit, int) error) Exporter {
	return ExporterFunc(func(ctx *Context, u *authoring.Unit) error {
		n := ctx.CreateNode(op)
		if err := ctx.Err(); err != nil {
			return err
		}
		p.mapTo(ctx, n)
		if configure != nil {
			return configure(ctx, u, n)
		}
		return nil
	})
}

var (
	flowThrough = pins{flowIn: []string{schema.In}, flowOut: []string{schema.Out}}
	binaryMath  = pins{valueIn: []string{"a", "b"}, valueOut: []string{schema.Value}}
	unaryMath   = pins{valueIn: []string{"a"}, valueOut: []string{schema.Value}}
)

// DefaultRegistry returns the built-in exporter registry, built once.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	b := NewRegistryBuilder()

	b.Kind("OnStart", single(schema.OpOnStart, pins{flowOut: []string{schema.Out}}, nil))
	b.Kind("OnUpdate", ExporterFunc(exportOnUpdate))
	b.Kind("OnPointerClick", single(schema.OpOnSelect, pins{
		flowOut:  []string{schema.Out},
		valueOut: []string{"selectedNodeIndex", "controllerIndex", "selectionPoint", "selectionRayOrigin"},
	}, configureTargetEvent))
	hover := pins{flowOut: []string{schema.Out}, valueOut: []string{"hoverNodeIndex", "controllerIndex"}}
	b.Kind("OnPointerEnter", single(schema.OpOnHoverIn, hover, configureTargetEvent))
	b.Kind("OnPointerExit", single(schema.OpOnHoverOut, hover, configureTargetEvent))
	b.Kind("CustomEventReceive", ExporterFunc(exportReceive))
	b.Kind("CustomEventSend", ExporterFunc(exportSend))

	b.Kind("Sequence", ExporterFunc(exportSequence))
	b.Kind("If", single(schema.OpBranch, pins{
		flowIn: []string{schema.In}, flowOut: []string{"true", "false"}, valueIn: []string{"condition"},
	}, nil))
	b.Kind("SwitchOnInteger", ExporterFunc(exportSwitch))
	b.Kind("WaitForSeconds", single(schema.OpSetDelay, pins{
		flowIn:   []string{schema.In, "cancel"},
		flowOut:  []string{schema.Out, schema.Done, schema.Err},
		valueIn:  []string{"duration"},
		valueOut: []string{"lastDelayIndex"},
	}, nil))
	b.Kind("CancelDelay", single(schema.OpCancelDelay, pins{
		flowIn: []string{schema.In}, flowOut: []string{schema.Out}, valueIn: []string{"delayIndex"},
	}, nil))
	b.Kind("Await", ExporterFunc(exportAwait))
	b.Kind("DoN", single(schema.OpDoN, pins{
		flowIn:   []string{schema.In, schema.Reset},
		flowOut:  []string{schema.Out},
		valueIn:  []string{"n"},
		valueOut: []string{"currentCount"},
	}, nil))
	b.Kind("MultiGate", ExporterFunc(exportMultiGate))
	b.Kind("Relay", ExporterFunc(func(ctx *Context, u *authoring.Unit) error {
		ctx.BypassFlow(schema.In, schema.Out)
		return nil
	}))
	b.Kind("Reroute", ExporterFunc(func(ctx *Context, u *authoring.Unit) error {
		ctx.BypassValue(schema.In, schema.Out)
		return nil
	}))

	b.Kind("GetVariable", single(schema.OpVariableGet, pins{valueOut: []string{schema.Value}}, configureVariable))
	b.Kind("SetVariable", ExporterFunc(exportSetVariable))
	b.Kind("InterpolateVariable", single(schema.OpVariableInterpolate, pins{
		flowIn:  []string{schema.In},
		flowOut: []string{schema.Out, schema.Done, schema.Err},
		valueIn: []string{schema.Value, "duration", "p1", "p2"},
	}, func(ctx *Context, u *authoring.Unit, n int) error {
		ctx.ConfigFromUnit(n, "useSlerp", "useSlerp")
		return configureVariable(ctx, u, n)
	}))
	b.Kind("Log", ExporterFunc(exportLog))

	for kind, op := range map[string]string{
		"Add": schema.OpAdd, "Subtract": schema.OpSub, "Multiply": schema.OpMul, "Divide": schema.OpDiv,
		"Equal": schema.OpEq, "Less": schema.OpLt, "Greater": schema.OpGt,
	} {
		b.Kind(kind, single(op, binaryMath, nil))
	}
	b.Kind("Not", single(schema.OpNot, unaryMath, nil))
	b.Kind("Select", single(schema.OpSelect, pins{
		valueIn: []string{"condition", "a", "b"}, valueOut: []string{schema.Value},
	}, nil))
	b.Kind("IntToFloat", single(schema.OpIntToFloat, unaryMath, nil))
	b.Kind("FloatToInt", single(schema.OpFloatToInt, unaryMath, nil))
	b.Kind("BoolToInt", single(schema.OpBoolToInt, unaryMath, nil))

	b.Kind("DeltaTime", timingExporter("timeSinceLastTick"))
	b.Kind("ElapsedTime", timingExporter("timeSinceStart"))

	registerMembers(b)
	return b.Build()
})

func exportOnUpdate(ctx *Context, u *authoring.Unit) error {
	n := ctx.CreateNode(schema.OpOnTick)
	ctx.MapFlowOut(schema.Out, n, schema.Out)
	ctx.MapValueOut("deltaTime", n, "timeSinceLastTick")
	ctx.MapValueOut("elapsedTime", n, "timeSinceStart")
	return nil
}

func configureTargetEvent(ctx *Context, u *authoring.Unit, n int) error {
	ctx.ConfigFromUnit(n, "nodeIndex", "nodeIndex")
	ctx.ConfigFromUnit(n, "stopPropagation", "stopPropagation")
	return nil
}

func configureVariable(ctx *Context, u *authoring.Unit, n int) error {
	id, _ := u.Config["variable"].(string)
	idx, ok := ctx.VariableIndex(id)
	if !ok {
		return ctx.Reject(DiagUnknownRef, "unknown variable %q", id)
	}
	ctx.SetConfig(n, "variable", ir.Int(idx))
	return nil
}

func configureEvent(ctx *Context, u *authoring.Unit, n int) (ir.CustomEvent, error) {
	id, _ := u.Config["event"].(string)
	idx, ok := ctx.EventIndex(id)
	if !ok {
		return ir.CustomEvent{}, ctx.Reject(DiagUnknownRef, "unknown custom event %q", id)
	}
	ctx.SetConfig(n, "event", ir.Int(idx))
	return ctx.Event(idx), nil
}

func exportReceive(ctx *Context, u *authoring.Unit) error {
	n := ctx.CreateNode(schema.OpReceive)
	ev, err := configureEvent(ctx, u, n)
	if err != nil {
		return err
	}
	ctx.MapFlowOut(schema.Out, n, schema.Out)
	for _, p := range ev.Params {
		ctx.MapValueOut(p.Name, n, p.Name)
	}
	return nil
}

func exportSend(ctx *Context, u *authoring.Unit) error {
	n := ctx.CreateNode(schema.OpSend)
	ev, err := configureEvent(ctx, u, n)
	if err != nil {
		return err
	}
	flowThrough.mapTo(ctx, n)
	for _, p := range ev.Params {
		ctx.MapValueIn(p.Name, n, p.Name)
	}
	return nil
}

// numberedOutputs returns the unit's control output pins in host order.
// Without an explicit pin list, config "outputs" gives a count of pins
// named "0".."n-1".
func numberedOutputs(u *authoring.Unit) ([]string, error) {
	if len(u.ControlOut) > 0 {
		return u.ControlOut, nil
	}
	raw, ok := u.Config["outputs"]
	if !ok {
		return nil, nil
	}
	v, err := configValue(raw, ir.SigInt)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	count := int(v.(ir.Int))
	if count < 0 {
		return nil, fmt.Errorf("outputs: negative count %d", count)
	}
	names := make([]string, count)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names, nil
}

func exportSequence(ctx *Context, u *authoring.Unit) error {
	outs, err := numberedOutputs(u)
	if err != nil {
		return err
	}
	n := ctx.CreateNode(schema.OpSequence)
	ctx.MapFlowIn(schema.In, n, schema.In)
	for i, pin := range outs {
		ctx.MapFlowOut(pin, n, strconv.Itoa(i))
	}
	return nil
}

func exportMultiGate(ctx *Context, u *authoring.Unit) error {
	outs, err := numberedOutputs(u)
	if err != nil {
		return err
	}
	n := ctx.CreateNode(schema.OpMultiGate)
	ctx.MapFlowIn(schema.In, n, schema.In)
	ctx.MapFlowIn(schema.Reset, n, schema.Reset)
	ctx.ConfigFromUnit(n, "isLoop", "isLoop")
	ctx.ConfigFromUnit(n, "isRandom", "isRandom")
	for i, pin := range outs {
		ctx.MapFlowOut(pin, n, strconv.Itoa(i))
	}
	ctx.MapValueOut("lastIndex", n, "lastIndex")
	return nil
}

// exportSwitch lists cases in host pin order. Each control output pin other
// than "default" names its case value.
func exportSwitch(ctx *Context, u *authoring.Unit) error {
	n := ctx.CreateNode(schema.OpSwitch)
	var cases ir.IntArray
	seen := map[int64]bool{}
	for _, pin := range u.ControlOut {
		if pin == schema.Default {
			continue
		}
		v, err := strconv.ParseInt(pin, 10, 64)
		if err != nil {
			return ctx.Reject(DiagBadWire, "switch output pin %q is not an integer case", pin)
		}
		if seen[v] {
			return ctx.Reject(DiagBadWire, "duplicate switch case %d", v)
		}
		seen[v] = true
		cases = append(cases, v)
		ctx.MapFlowOut(pin, n, strconv.FormatInt(v, 10))
	}
	ctx.SetConfig(n, "cases", cases)
	ctx.MapFlowIn(schema.In, n, schema.In)
	ctx.MapFlowOut(schema.Default, n, schema.Default)
	ctx.MapValueIn("selection", n, "selection")
	return nil
}

// exportAwait waits for the listed units' "done" completions. The links are
// attached in phase 2 so units declared later can be awaited.
func exportAwait(ctx *Context, u *authoring.Unit) error {
	rawAfter, _ := u.Config["after"].([]any)
	var after []string
	for _, r := range rawAfter {
		id, ok := r.(string)
		if !ok {
			return fmt.Errorf("after: unit ids must be strings, got %T", r)
		}
		after = append(after, id)
	}
	if len(after) == 0 {
		return ctx.Reject(DiagBadWire, "await lists no units")
	}

	n := ctx.CreateNode(schema.OpWaitAll)
	ctx.SetConfig(n, "inputFlows", ir.Int(len(after)))
	ctx.MapFlowIn(schema.Reset, n, schema.Reset)
	ctx.MapFlowOut(schema.Out, n, schema.Out)
	ctx.MapFlowOut(schema.Completed, n, schema.Completed)
	ctx.MapValueOut("remainingInputs", n, "remainingInputs")

	ctx.Defer(func(r *Resolver) error {
		for i, id := range after {
			src, ok := r.FlowOut(id, schema.Done)
			if !ok {
				r.Diagnose(DiagBadWire, SeverityWarning, "awaited unit %s has no done output", id)
				continue
			}
			if err := r.Attach(src, ir.SocketRef{Node: n, Socket: strconv.Itoa(i)}); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

func exportSetVariable(ctx *Context, u *authoring.Unit) error {
	set := ctx.CreateNode(schema.OpVariableSet)
	if err := configureVariable(ctx, u, set); err != nil {
		return err
	}
	flowThrough.mapTo(ctx, set)
	ctx.MapValueIn(schema.Value, set, schema.Value)

	// Consumers of the unit's output observe the stored value.
	get := ctx.CreateNode(schema.OpVariableGet)
	if err := configureVariable(ctx, u, get); err != nil {
		return err
	}
	ctx.MapValueOut(schema.Value, get, schema.Value)
	return nil
}

var severityNames = map[string]int64{"debug": -1, "info": 0, "warning": 1, "warn": 1, "error": 2}

func exportLog(ctx *Context, u *authoring.Unit) error {
	n := ctx.CreateNode(schema.OpLog)
	ctx.ConfigFromUnit(n, "message", "message")
	if name, ok := u.Config["severity"].(string); ok {
		sev, known := severityNames[name]
		if !known {
			return fmt.Errorf("unknown severity %q", name)
		}
		ctx.SetConfig(n, "severity", ir.Int(sev))
	} else {
		ctx.ConfigFromUnit(n, "severity", "severity")
	}
	flowThrough.mapTo(ctx, n)

	msg, _ := u.Config["message"].(string)
	for _, p := range schema.Placeholders(msg) {
		ctx.MapValueIn(p, n, p)
	}
	return nil
}

// timingExporter lowers DeltaTime and ElapsedTime to a NaN-guarded read of
// an onTick output: before the first tick the output is NaN and reads 0.
func timingExporter(socket string) Exporter {
	return ExporterFunc(func(ctx *Context, u *authoring.Unit) error {
		tick := ctx.CreateNode(schema.OpOnTick)
		nan := ctx.CreateNode(schema.OpIsNaN)
		sel := ctx.CreateNode(schema.OpSelect)
		ctx.Connect(tick, socket, nan, "a")
		ctx.Connect(nan, schema.Value, sel, "condition")
		ctx.SetLiteral(sel, "a", ir.Float(0))
		ctx.Connect(tick, socket, sel, "b")
		ctx.MapValueOut(schema.Value, sel, schema.Value)
		return nil
	})
}
