package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/ixgraph/internal/host"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// nodeState is the per-session runtime state of one node.
type nodeState struct {
	// outputs holds event parameters during the node's activation.
	outputs map[string]ir.Value

	fired     map[int]bool // waitAll inputs since reset
	completed bool         // waitAll
	count     int64        // doN
	gate      gateState
	lastDelay int64
	delays    []int64 // setDelay indices still pending
}

type gateState struct {
	order []int // permutation of flow positions
	next  int
	last  int64
}

func newNodeState() nodeState {
	return nodeState{
		fired:     map[int]bool{},
		gate:      gateState{last: -1},
		lastDelay: -1,
	}
}

// fire emits flow-out socket of node i and runs the connected node
// depth-first. An unconnected socket is traced and does nothing.
func (s *Session) fire(i int, socket string) error {
	s.trace(TraceFlow, i, socket, "")
	ref, ok := s.prog.graph.Nodes[i].Flows[socket]
	if !ok {
		return nil
	}
	return s.trigger(ref.Node, ref.Socket)
}

// fail reports an operational failure of node i on its err flow. A node
// without an err socket only traces and logs the failure.
func (s *Session) fail(i int, err error) error {
	op := s.prog.schemas[i].Op
	rfe := &RuntimeFlowError{Node: i, Op: op, Err: err}
	if !slices.Contains(s.prog.schemas[i].FlowOut, schema.Err) {
		slog.Warn("node failed without err flow",
			"session", s.id,
			"node", i,
			"op", op,
			"error", err,
		)
		s.trace(TraceErrorFlow, i, "", rfe.Error())
		return nil
	}
	slog.Debug("node failed", "session", s.id, "node", i, "op", op, "error", err)
	s.trace(TraceErrorFlow, i, schema.Err, rfe.Error())
	ref, ok := s.prog.graph.Nodes[i].Flows[schema.Err]
	if !ok {
		return nil
	}
	return s.trigger(ref.Node, ref.Socket)
}

// trigger runs node i in response to flow-in socket. It returns an error
// only when the activation must abort.
func (s *Session) trigger(i int, socket string) error {
	if err := s.quota.Check(s.id); err != nil {
		var se *StepsExceededError
		errors.As(err, &se)
		slog.Error("max steps quota exceeded",
			"session", s.id,
			"node", i,
			"steps", s.quota.Current(),
			"limit", s.quota.MaxSteps(),
		)
		return NewQuotaError(s.id, i, se)
	}

	st := &s.nodes[i]
	switch s.prog.schemas[i].Op {
	case schema.OpSequence:
		for _, name := range s.prog.numberedFlows(i) {
			if err := s.fire(i, name); err != nil {
				return err
			}
		}
		return nil

	case schema.OpBranch:
		cond, _ := s.input(i, "condition").(ir.Bool)
		if cond {
			return s.fire(i, "true")
		}
		return s.fire(i, "false")

	case schema.OpSwitch:
		sel, _ := s.input(i, "selection").(ir.Int)
		cases, _ := s.config(i, "cases").(ir.IntArray)
		if slices.Contains(cases, int64(sel)) {
			return s.fire(i, strconv.FormatInt(int64(sel), 10))
		}
		return s.fire(i, schema.Default)

	case schema.OpWaitAll:
		return s.waitAll(i, st, socket)

	case schema.OpMultiGate:
		return s.multiGate(i, st, socket)

	case schema.OpDoN:
		if socket == schema.Reset {
			st.count = 0
			return nil
		}
		n, _ := s.input(i, "n").(ir.Int)
		if st.count >= int64(n) {
			return nil
		}
		st.count++
		return s.fire(i, schema.Out)

	case schema.OpSetDelay:
		return s.setDelay(i, st, socket)

	case schema.OpCancelDelay:
		idx, _ := s.input(i, "delayIndex").(ir.Int)
		s.cancel(delayKey(int64(idx)))
		return s.fire(i, schema.Out)

	case schema.OpSend:
		return s.send(i)

	case schema.OpVariableSet:
		return s.variableSet(i)

	case schema.OpVariableInterpolate:
		return s.variableInterpolate(i)

	case schema.OpPointerSet:
		return s.pointerSet(i)

	case schema.OpPointerInterpolate:
		return s.pointerInterpolate(i)

	case schema.OpLog:
		return s.log(i)

	case schema.OpAnimationStart:
		return s.animationStart(i)

	case schema.OpAnimationStop:
		return s.animationStop(i)
	}
	return s.fail(i, fmt.Errorf("op %s has no flow behavior", s.prog.schemas[i].Op))
}

func (s *Session) waitAll(i int, st *nodeState, socket string) error {
	if socket == schema.Reset {
		clear(st.fired)
		st.completed = false
		return nil
	}
	k, _ := schema.SocketIndex(socket)
	st.fired[k] = true
	n, _ := s.config(i, "inputFlows").(ir.Int)
	if !st.completed && len(st.fired) >= int(n) {
		st.completed = true
		return s.fire(i, schema.Completed)
	}
	return s.fire(i, schema.Out)
}

func (s *Session) multiGate(i int, st *nodeState, socket string) error {
	flows := s.prog.numberedFlows(i)
	if len(flows) == 0 {
		return nil
	}
	random, _ := s.config(i, "isRandom").(ir.Bool)
	loop, _ := s.config(i, "isLoop").(ir.Bool)
	g := &st.gate
	if g.order == nil {
		g.order = make([]int, len(flows))
		for k := range g.order {
			g.order[k] = k
		}
		if random {
			s.shuffle(g.order)
		}
	}

	if socket == schema.Reset {
		if random {
			s.shuffle(g.order)
		}
		g.last = -1
		g.next = 0
		return nil
	}

	if g.next >= len(g.order) {
		if !loop {
			return nil
		}
		if random {
			s.shuffle(g.order)
		}
		g.next = 0
	}
	pos := g.order[g.next]
	g.next++
	name := flows[pos]
	idx, _ := schema.SocketIndex(name)
	g.last = int64(idx)
	return s.fire(i, name)
}

func (s *Session) shuffle(order []int) {
	s.rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
}

func delayKey(idx int64) string { return "delay:" + strconv.FormatInt(idx, 10) }

func (s *Session) setDelay(i int, st *nodeState, socket string) error {
	if socket == "cancel" {
		for _, idx := range st.delays {
			s.cancel(delayKey(idx))
		}
		st.delays = nil
		return nil
	}
	d, _ := s.input(i, "duration").(ir.Float)
	if !validDuration(float64(d)) {
		return s.fail(i, fmt.Errorf("invalid duration %v", float64(d)))
	}
	idx := s.nextDelay
	s.nextDelay++
	st.lastDelay = idx
	st.delays = append(st.delays, idx)

	start := s.clock.Now()
	s.schedule(i, delayKey(idx), "delay", func(c *continuation) (bool, error) {
		return c.now.Sub(start).Seconds() >= float64(d), nil
	}, func() error {
		st.delays = slices.DeleteFunc(st.delays, func(x int64) bool { return x == idx })
		return s.fire(i, schema.Done)
	})
	return s.fire(i, schema.Out)
}

func (s *Session) send(i int) error {
	idx, ok := s.prog.eventIndexOf(i)
	if !ok {
		return s.fail(i, errors.New("no custom event configured"))
	}
	ev := s.prog.graph.CustomEvents[idx]
	params := make(map[string]ir.Value, len(ev.Params))
	for _, p := range ev.Params {
		params[p.Name] = s.input(i, p.Name)
	}
	s.sends = append(s.sends, pendingSend{event: idx, params: params})
	return s.fire(i, schema.Out)
}

func (s *Session) variableSet(i int) error {
	idx, ok := s.prog.variableIndex(i)
	if !ok {
		return s.fail(i, errors.New("no variable configured"))
	}
	if err := s.setVariable(i, idx, s.input(i, schema.Value)); err != nil {
		return s.fail(i, err)
	}
	return s.fire(i, schema.Out)
}

func (s *Session) setVariable(node, idx int, v ir.Value) error {
	def := s.prog.graph.Variables[idx]
	if v == nil {
		return fmt.Errorf("variable %s: no value", def.ID)
	}
	c, ok := ir.Convert(v, def.Type)
	if !ok {
		return fmt.Errorf("variable %s: %s is not convertible to %s", def.ID, v.Signature(), def.Type)
	}
	s.vars[idx] = c
	s.trace(TraceVariable, node, "", def.ID+"="+ir.Format(c))
	return nil
}

// resolvePointer expands the node's pointer template with its int value
// inputs and returns the path with the configured type.
func (s *Session) resolvePointer(i int) (string, string, error) {
	tmpl, _ := s.config(i, "pointer").(ir.String)
	sig, _ := s.config(i, "type").(ir.String)
	path := schema.Expand(string(tmpl), func(name string) (string, bool) {
		v, ok := s.input(i, name).(ir.Int)
		if !ok {
			return "", false
		}
		return strconv.FormatInt(int64(v), 10), true
	})
	if path == "" || strings.ContainsAny(path, "{}") {
		return "", "", &host.HostIntegrationError{Op: "resolve", Target: string(tmpl), Reason: "invalid pointer"}
	}
	if s.state == nil {
		return "", "", &host.HostIntegrationError{Op: "resolve", Target: path, Reason: host.ReasonNoSuchPath}
	}
	have, err := s.state.Type(path)
	if err != nil {
		return "", "", err
	}
	if have != string(sig) {
		return "", "", &host.HostIntegrationError{
			Op: "resolve", Target: path, Reason: host.ReasonTypeMismatch,
			Err: fmt.Errorf("pointer holds %s, node expects %s", have, sig),
		}
	}
	return path, string(sig), nil
}

// pointerGet reads the node's pointer. An invalid pointer yields the
// type default and false.
func (s *Session) pointerGet(i int) (ir.Value, bool) {
	sig, _ := s.config(i, "type").(ir.String)
	path, _, err := s.resolvePointer(i)
	if err == nil {
		if v, err := s.state.Get(path); err == nil {
			return v, true
		}
	}
	return ir.Default(string(sig)), false
}

func pointerKey(path string) string { return "pointer:" + path }

func (s *Session) pointerSet(i int) error {
	path, sig, err := s.resolvePointer(i)
	if err != nil {
		return s.fail(i, err)
	}
	v, ok := ir.Convert(s.input(i, schema.Value), sig)
	if !ok {
		return s.fail(i, &host.HostIntegrationError{Op: "set", Target: path, Reason: host.ReasonTypeMismatch})
	}
	s.cancel(pointerKey(path))
	if err := s.state.Set(path, v); err != nil {
		return s.fail(i, err)
	}
	return s.fire(i, schema.Out)
}

// log formats the node's message. Placeholders resolve against the
// node's own value inputs first, then variables by id; anything else is
// left verbatim.
func (s *Session) log(i int) error {
	tmpl, _ := s.config(i, "message").(ir.String)
	severity, _ := s.config(i, "severity").(ir.Int)
	n := s.prog.graph.Nodes[i]
	msg := schema.Expand(string(tmpl), func(name string) (string, bool) {
		_, wired := n.Values[name]
		_, declared := s.prog.graph.Decl(i).InputType(name)
		if wired || declared {
			return ir.Format(s.input(i, name)), true
		}
		if idx := s.prog.graph.VariableIndex(name); idx >= 0 {
			return ir.Format(s.vars[idx]), true
		}
		return "", false
	})

	slog.Log(context.Background(), logLevel(int(severity)), msg, "session", s.id, "node", i)
	if s.logs != nil {
		s.logs.Log(int(severity), msg)
	}
	s.trace(TraceLog, i, "", msg)
	return s.fire(i, schema.Out)
}

func (s *Session) animationStart(i int) error {
	idx, _ := s.input(i, "animation").(ir.Int)
	start, _ := s.input(i, "startTime").(ir.Float)
	end, _ := s.input(i, "endTime").(ir.Float)
	speed, _ := s.input(i, "speed").(ir.Float)

	anim, err := s.animation(int(idx))
	if err != nil {
		return s.fail(i, err)
	}
	if err := anim.Play(float64(start), float64(end), float64(speed)); err != nil {
		return s.fail(i, err)
	}

	key := animationKey(int64(idx))
	s.cancel(key)
	if !math.IsInf(float64(end), 0) {
		length := math.Abs(float64(end-start)) / float64(speed)
		begin := s.clock.Now()
		s.schedule(i, key, "animation", func(c *continuation) (bool, error) {
			return c.now.Sub(begin).Seconds() >= length, nil
		}, func() error {
			return s.fire(i, schema.Done)
		})
	}
	return s.fire(i, schema.Out)
}

func (s *Session) animationStop(i int) error {
	idx, _ := s.input(i, "animation").(ir.Int)
	anim, err := s.animation(int(idx))
	if err != nil {
		return s.fail(i, err)
	}
	if err := anim.Stop(); err != nil {
		return s.fail(i, err)
	}
	s.cancel(animationKey(int64(idx)))
	return s.fire(i, schema.Out)
}

func animationKey(idx int64) string { return "animation:" + strconv.FormatInt(idx, 10) }

func (s *Session) animation(idx int) (host.Animation, error) {
	if s.assets == nil {
		return nil, &host.HostIntegrationError{
			Op: "animation", Target: fmt.Sprintf("#%d", idx), Reason: host.ReasonNoSuchAsset,
		}
	}
	return s.assets.Animation(idx)
}

func validDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d >= 0
}

func logLevel(severity int) slog.Level {
	switch severity {
	case 0:
		return slog.LevelInfo
	case 1:
		return slog.LevelWarn
	case 2:
		return slog.LevelError
	}
	return slog.LevelDebug
}
