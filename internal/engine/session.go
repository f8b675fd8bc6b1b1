package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/roach88/ixgraph/internal/host"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// Session is one execution of a Program: variable storage, per-node
// runtime state and the continuation table.
//
// Thread-safety model:
//   - Enqueue() and Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - everything else: only from the goroutine that owns the session,
//     or from inside Run
type Session struct {
	prog *Program
	id   string

	clock     clock.Clock
	seq       *Clock
	state     host.StateAccessor
	assets    host.AssetLookup
	logs      host.LogSink
	observers []Observer
	ids       IDGenerator
	maxSteps  int
	rng       *rand.Rand

	vars  []ir.Value
	nodes []nodeState
	conts map[string]*continuation
	byKey map[string]string // continuation key -> id

	origin   time.Time
	lastTick time.Time
	ticked   bool
	elapsed  float64
	delta    float64

	nextDelay int64
	quota     *QuotaEnforcer
	sends     []pendingSend
	queue     *eventQueue
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithClock sets the time source. Tests pass clock.NewMock().
func WithClock(c clock.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithState sets the external state accessor used by pointer nodes.
func WithState(st host.StateAccessor) SessionOption {
	return func(s *Session) { s.state = st }
}

// WithAssets sets the asset lookup used by animation nodes.
func WithAssets(a host.AssetLookup) SessionOption {
	return func(s *Session) { s.assets = a }
}

// WithLogSink sets the sink receiving debug/log output.
func WithLogSink(l host.LogSink) SessionOption {
	return func(s *Session) { s.logs = l }
}

// WithObserver adds a trace observer. Observers run in the order added.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// WithIDGenerator sets the generator for session and continuation ids.
func WithIDGenerator(g IDGenerator) SessionOption {
	return func(s *Session) { s.ids = g }
}

// WithMaxSteps sets the maximum node steps per activation.
//
// Default: 1000 steps (DefaultMaxSteps)
func WithMaxSteps(maxSteps int) SessionOption {
	return func(s *Session) { s.maxSteps = maxSteps }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

// WithSeed seeds the generator used by random multi-gates.
func WithSeed(seed uint64) SessionOption {
	return func(s *Session) { s.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// NewSession creates a session with fresh variables and node state.
func (p *Program) NewSession(opts ...SessionOption) *Session {
	s := &Session{
		prog:     p,
		clock:    clock.New(),
		seq:      NewClock(),
		ids:      UUIDv7Generator{},
		maxSteps: DefaultMaxSteps,
		rng:      rand.New(rand.NewPCG(1, 1)),
		conts:    map[string]*continuation{},
		byKey:    map[string]string{},
		queue:    newEventQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = s.ids.Generate()
	}

	g := p.graph
	s.vars = make([]ir.Value, len(g.Variables))
	for i, v := range g.Variables {
		s.vars[i] = v.Default
		if s.vars[i] == nil {
			s.vars[i] = ir.Default(v.Type)
		}
	}
	s.nodes = make([]nodeState, len(g.Nodes))
	for i := range s.nodes {
		s.nodes[i] = newNodeState()
	}
	s.origin = s.clock.Now()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Program returns the program the session runs.
func (s *Session) Program() *Program { return s.prog }

// Variable returns the current value of the variable with id.
func (s *Session) Variable(id string) (ir.Value, bool) {
	idx := s.prog.graph.VariableIndex(id)
	if idx < 0 {
		return nil, false
	}
	return s.vars[idx], true
}

// Variables returns a snapshot of all variables by id.
func (s *Session) Variables() map[string]ir.Value {
	out := make(map[string]ir.Value, len(s.vars))
	for i, v := range s.prog.graph.Variables {
		out[v.ID] = s.vars[i]
	}
	return out
}

// Pending returns the number of scheduled continuations.
func (s *Session) Pending() int { return len(s.conts) }

// Start fires every event/onStart node.
func (s *Session) Start() error {
	return s.dispatch(func() error {
		return s.activateAll(schema.OpOnStart, nil)
	})
}

// Tick advances every continuation present at the start of the tick, in
// scheduling order, then fires every event/onTick node.
func (s *Session) Tick() error {
	return s.dispatch(func() error {
		now := s.clock.Now()
		prev := s.lastTick
		if !s.ticked {
			prev = s.origin
		}
		s.elapsed = now.Sub(s.origin).Seconds()
		s.delta = now.Sub(prev).Seconds()
		s.lastTick = now
		s.ticked = true

		if err := s.advance(now); err != nil {
			return err
		}
		return s.activateAll(schema.OpOnTick, nil)
	})
}

// Select fires event/onSelect nodes whose nodeIndex matches args.Node.
// Nodes configured with -1 match any selection; they are skipped when a
// matching node with stopPropagation has fired.
func (s *Session) Select(args SelectArgs) error {
	return s.dispatch(func() error {
		return s.activatePointer(schema.OpOnSelect, args, map[string]ir.Value{
			"selectedNodeIndex":  ir.Int(args.Node),
			"controllerIndex":    ir.Int(args.Controller),
			"selectionPoint":     args.Point,
			"selectionRayOrigin": args.RayOrigin,
		})
	})
}

// HoverIn fires event/onHoverIn nodes whose nodeIndex matches args.Node.
func (s *Session) HoverIn(args SelectArgs) error {
	return s.dispatch(func() error {
		return s.activatePointer(schema.OpOnHoverIn, args, hoverParams(args))
	})
}

// HoverOut fires event/onHoverOut nodes whose nodeIndex matches args.Node.
func (s *Session) HoverOut(args SelectArgs) error {
	return s.dispatch(func() error {
		return s.activatePointer(schema.OpOnHoverOut, args, hoverParams(args))
	})
}

func hoverParams(args SelectArgs) map[string]ir.Value {
	return map[string]ir.Value{
		"hoverNodeIndex":  ir.Int(args.Node),
		"controllerIndex": ir.Int(args.Controller),
	}
}

// Fire fires every event/receive node bound to the custom event id.
// Missing parameters take their declared defaults; parameters are
// converted to their declared types.
func (s *Session) Fire(eventID string, params map[string]ir.Value) error {
	idx := s.prog.graph.EventIndex(eventID)
	if idx < 0 {
		return &RuntimeError{
			Code:    ErrCodeUnknownEvent,
			Message: fmt.Sprintf("custom event %q is not declared", eventID),
			Session: s.id,
			Node:    -1,
		}
	}
	values, err := s.eventValues(idx, params)
	if err != nil {
		return err
	}
	return s.dispatch(func() error {
		return s.activateCustom(pendingSend{event: idx, params: values})
	})
}

func (s *Session) eventValues(idx int, params map[string]ir.Value) (map[string]ir.Value, error) {
	ev := s.prog.graph.CustomEvents[idx]
	out := make(map[string]ir.Value, len(ev.Params))
	for _, p := range ev.Params {
		v, ok := params[p.Name]
		if !ok || v == nil {
			v = p.Default
			if v == nil {
				v = ir.Default(p.Type)
			}
		}
		c, ok := ir.Convert(v, p.Type)
		if !ok {
			return nil, &RuntimeError{
				Code:    ErrCodeUnknownEvent,
				Message: fmt.Sprintf("event %q parameter %s: %s is not convertible to %s", ev.ID, p.Name, v.Signature(), p.Type),
				Session: s.id,
				Node:    -1,
			}
		}
		out[p.Name] = c
	}
	return out, nil
}

// pendingSend is a custom event raised by event/send, dispatched once
// the current activation completes.
type pendingSend struct {
	event  int
	params map[string]ir.Value
}

// dispatch runs one activation under a fresh quota, then drains the
// custom events it sent. Sent events share the activation's quota, so a
// send/receive loop is bounded too.
func (s *Session) dispatch(fn func() error) error {
	s.quota = NewQuotaEnforcer(s.maxSteps)
	defer func() { s.sends = nil }()

	if err := fn(); err != nil {
		return err
	}
	for len(s.sends) > 0 {
		next := s.sends[0]
		s.sends = s.sends[1:]
		if err := s.activateCustom(next); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) activateAll(op string, params map[string]ir.Value) error {
	for _, i := range s.prog.entries[op] {
		if err := s.activate(i, params); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) activatePointer(op string, args SelectArgs, params map[string]ir.Value) error {
	var exact, wildcard []int
	for _, i := range s.prog.entries[op] {
		want, _ := s.config(i, "nodeIndex").(ir.Int)
		switch {
		case int(want) == args.Node:
			exact = append(exact, i)
		case want == -1:
			wildcard = append(wildcard, i)
		}
	}
	stop := false
	for _, i := range exact {
		if err := s.activate(i, params); err != nil {
			return err
		}
		if b, _ := s.config(i, "stopPropagation").(ir.Bool); b {
			stop = true
		}
	}
	if stop {
		return nil
	}
	for _, i := range wildcard {
		if err := s.activate(i, params); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) activateCustom(ev pendingSend) error {
	for _, i := range s.prog.entries[schema.OpReceive] {
		if idx, ok := s.prog.eventIndexOf(i); ok && idx == ev.event {
			if err := s.activate(i, ev.params); err != nil {
				return err
			}
		}
	}
	return nil
}

// activate fires the out flow of event node i. Its parameters are
// readable as the node's outputs until the flow returns.
func (s *Session) activate(i int, params map[string]ir.Value) error {
	op := s.prog.schemas[i].Op
	slog.Debug("activation", "session", s.id, "node", i, "op", op)
	s.trace(TraceActivation, i, "", "")

	s.nodes[i].outputs = params
	defer func() { s.nodes[i].outputs = nil }()
	return s.fire(i, schema.Out)
}

func (s *Session) trace(kind TraceKind, node int, socket, message string) {
	if len(s.observers) == 0 {
		return
	}
	ev := TraceEvent{
		Seq:     s.seq.Next(),
		Session: s.id,
		Kind:    kind,
		Node:    node,
		Socket:  socket,
		Message: message,
	}
	if node >= 0 {
		ev.Op = s.prog.schemas[node].Op
	}
	for _, o := range s.observers {
		o.Observe(ev)
	}
}

// tickOutput serves event/onTick outputs. Both read NaN before the
// first tick.
func (s *Session) tickOutput(socket string) ir.Value {
	if !s.ticked {
		return ir.Float(math.NaN())
	}
	switch socket {
	case "timeSinceStart":
		return ir.Float(s.elapsed)
	case "timeSinceLastTick":
		return ir.Float(s.delta)
	}
	return ir.Float(math.NaN())
}

// Enqueue submits an event for the Run loop.
// Thread-safe: may be called from any goroutine.
// Returns false once the session is stopped.
func (s *Session) Enqueue(ev Event) bool {
	return s.queue.Enqueue(ev)
}

// QueueLen returns the number of events waiting for the Run loop.
func (s *Session) QueueLen() int {
	return s.queue.Len()
}

// Stop closes the event queue. Run drains what is queued and returns.
func (s *Session) Stop() {
	s.queue.Close()
}

// Run is the single-writer loop of the session. It dispatches enqueued
// events in FIFO order and calls Tick every tickInterval of the session
// clock; a non-positive interval disables ticking.
//
// Run blocks until ctx is cancelled (returning ctx.Err()) or Stop is
// called and the queue is drained (returning nil). Errors from
// individual events are logged and the loop continues.
func (s *Session) Run(ctx context.Context, tickInterval time.Duration) error {
	slog.Info("session starting", "session", s.id, "tick_interval", tickInterval)

	var ticks <-chan time.Time
	if tickInterval > 0 {
		t := s.clock.Ticker(tickInterval)
		defer t.Stop()
		ticks = t.C
	}

	for {
		if ev, ok := s.queue.TryDequeue(); ok {
			if err := s.handle(ev); err != nil {
				logEventError(s.id, ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("session stopping: context cancelled", "session", s.id)
			s.queue.Close()
			return ctx.Err()

		case <-ticks:
			if err := s.Tick(); err != nil {
				logEventError(s.id, Event{Kind: EventTick}, err)
			}

		case <-s.queue.Wait():
			// The signal channel closes with the queue.
			if s.queue.Drained() {
				slog.Info("session stopping: queue closed", "session", s.id)
				return nil
			}
		}
	}
}

func (s *Session) handle(ev Event) error {
	switch ev.Kind {
	case EventStart:
		return s.Start()
	case EventTick:
		return s.Tick()
	case EventSelect:
		return s.Select(ev.Select)
	case EventHoverIn:
		return s.HoverIn(ev.Select)
	case EventHoverOut:
		return s.HoverOut(ev.Select)
	case EventFire:
		return s.Fire(ev.CustomEvent, ev.Params)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func logEventError(session string, ev Event, err error) {
	if IsQuotaError(err) {
		slog.Error("max steps quota exceeded",
			"session", session,
			"event", string(ev.Kind),
			"error", err,
		)
		return
	}
	slog.Error("event processing failed",
		"session", session,
		"event", string(ev.Kind),
		"custom_event", ev.CustomEvent,
		"error", err,
	)
}
