package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/ixgraph/internal/authoring"
	"github.com/roach88/ixgraph/internal/cleanup"
	"github.com/roach88/ixgraph/internal/codec"
	"github.com/roach88/ixgraph/internal/compiler"
	"github.com/roach88/ixgraph/internal/config"
	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/host"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
	"github.com/roach88/ixgraph/internal/store"
	"github.com/roach88/ixgraph/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios on a simulated clock with fixed session ids and
// sequential continuation ids.
type Harness struct {
	schemas  *schema.Registry
	compiler *compiler.Compiler
	cleanup  *cleanup.Pipeline
	logger   *slog.Logger
}

// New creates a harness with the standard schema, exporters and cleanup
// passes. Logs are discarded.
func New() *Harness {
	return &Harness{
		schemas:  schema.Standard(),
		compiler: compiler.Default(),
		cleanup:  cleanup.Default(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger returns a copy of h that logs to logger.
func (h *Harness) WithLogger(logger *slog.Logger) *Harness {
	cp := *h
	cp.logger = logger
	return &cp
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a scenario and returns the result.
//
// An error means the scenario could not be executed at all: the graph
// failed to load, compile, clean or encode. Failed expectations are
// reported in the result.
//
// Execution flow:
//  1. Load, compile and clean the authoring graph
//  2. Run the steps on the cleaned graph, recording into a fresh
//     in-memory store
//  3. Run the steps again on the graph after an encode/decode round trip
//  4. Compare the two traces, then check expectations and assertions
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	g, err := h.build(scenario)
	if err != nil {
		return nil, err
	}

	direct, err := h.execute(ctx, scenario, g, true)
	if err != nil {
		return nil, fmt.Errorf("direct run: %w", err)
	}

	data, err := codec.Encode(g)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	decoded, err := codec.Decode(data, h.schemas)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	wire, err := h.execute(ctx, scenario, decoded, false)
	if err != nil {
		return nil, fmt.Errorf("round-trip run: %w", err)
	}

	result := NewResult(scenario.Name)
	result.Trace = direct.events
	result.Logs = direct.logs
	result.Digest = direct.digest
	for id, v := range direct.vars {
		result.Variables[id] = ir.Format(v)
	}

	for _, msg := range direct.failures {
		result.AddError(msg)
	}
	if direct.digest != wire.digest {
		result.AddErrorf("trace after codec round trip differs: %s != %s", wire.digest, direct.digest)
	}
	checkExpect(result, scenario.Expect, direct)
	for _, msg := range EvaluateAssertions(direct.events, direct.state, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace),
		"digest", result.Digest,
	)
	return result, nil
}

// build loads the scenario's graph and runs it through the compiler and
// the cleanup pipeline.
func (h *Harness) build(scenario *Scenario) (*ir.Graph, error) {
	ag, err := authoring.Load(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	res, err := h.compiler.Compile(ag)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if len(res.Diagnostics) > 0 && !scenario.AllowDiagnostics {
		return nil, fmt.Errorf("compile diagnostics: %w", res.Diagnostics.Err())
	}
	report, err := h.cleanup.Run(res.Graph, h.schemas)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("scenario graph built",
		"scenario", scenario.Name,
		"nodes", len(res.Graph.Nodes),
		"removed", report.Total(),
	)
	return res.Graph, nil
}

// run is what one execution of the steps produced.
type run struct {
	events   []engine.TraceEvent
	logs     []string
	vars     map[string]ir.Value
	state    *host.MemoryState
	digest   string
	failures []string
}

type logCollector struct {
	mu    sync.Mutex
	lines []string
}

func (l *logCollector) Log(_ int, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, message)
}

// execute runs the scenario's steps on a fresh session over g. With
// record set, the session is stored and its digest verified.
func (h *Harness) execute(ctx context.Context, scenario *Scenario, g *ir.Graph, record bool) (*run, error) {
	prog, err := engine.Load(g, h.schemas)
	if err != nil {
		return nil, err
	}

	state := host.NewMemoryState()
	for _, e := range scenario.State {
		v, err := e.IRValue()
		if err != nil {
			return nil, fmt.Errorf("state: %w", err)
		}
		state.Define(e.Path, v, e.ReadOnly)
	}

	clk := testutil.NewSimClock()
	rec := &engine.Recorder{}
	logs := &logCollector{}
	opts := []engine.SessionOption{
		engine.WithClock(clk.Mock()),
		engine.WithState(state),
		engine.WithAssets(host.NewMemoryAssets(scenario.Animations...)),
		engine.WithLogSink(logs),
		engine.WithObserver(rec),
		engine.WithSessionID(scenario.sessionID()),
		engine.WithIDGenerator(testutil.NewIDSequence(scenario.sessionID())),
		engine.WithSeed(scenario.seed()),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(scenario.MaxSteps))
	}

	var (
		st     *store.Store
		writer *store.TraceWriter
	)
	if record {
		// Each recorded run gets a fresh in-memory database for isolation.
		if st, err = store.Open(":memory:"); err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
		graphID, err := st.WriteGraph(ctx, scenario.Name, g)
		if err != nil {
			return nil, err
		}
		if err := st.WriteSession(ctx, scenario.sessionID(), graphID); err != nil {
			return nil, err
		}
		writer = store.NewTraceWriter(ctx, st)
		opts = append(opts, engine.WithObserver(writer))
	}

	sess := prog.NewSession(opts...)
	out := &run{state: state}
	for i, step := range scenario.Steps {
		if msg := checkStep(i, step, h.step(sess, clk, step)); msg != "" {
			out.failures = append(out.failures, msg)
		}
	}

	out.events = rec.Events()
	out.logs = logs.lines
	if out.logs == nil {
		out.logs = []string{}
	}
	out.vars = sess.Variables()
	if out.digest, err = engine.Digest(out.events); err != nil {
		return nil, err
	}

	if record {
		if err := writer.Err(); err != nil {
			return nil, fmt.Errorf("recording trace: %w", err)
		}
		stored, err := st.FinishSession(ctx, scenario.sessionID())
		if err != nil {
			return nil, err
		}
		v, err := st.VerifySession(ctx, scenario.sessionID())
		if err != nil {
			return nil, err
		}
		if !v.Match() || stored != out.digest {
			out.failures = append(out.failures, fmt.Sprintf(
				"stored trace digest %s does not match live trace %s", v.Computed, out.digest))
		}
	}
	return out, nil
}

// step delivers one step to the session.
func (h *Harness) step(sess *engine.Session, clk *testutil.SimClock, step Step) error {
	args := engine.SelectArgs{Node: step.Node, Controller: step.Controller}
	switch step.Action {
	case ActionStart:
		return sess.Start()
	case ActionTick:
		clk.Advance(step.DT)
		return sess.Tick()
	case ActionSelect:
		return sess.Select(args)
	case ActionHoverIn:
		return sess.HoverIn(args)
	case ActionHoverOut:
		return sess.HoverOut(args)
	case ActionFire:
		params, err := config.ParamValues(step.Params)
		if err != nil {
			return err
		}
		return sess.Fire(step.Event, params)
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

// checkStep compares a step's outcome with its expect_error.
func checkStep(i int, step Step, err error) string {
	var re *engine.RuntimeError
	switch {
	case step.ExpectError == "" && err != nil:
		return fmt.Sprintf("step %d (%s): unexpected error: %v", i, step.Action, err)
	case step.ExpectError == "":
		return ""
	case err == nil:
		return fmt.Sprintf("step %d (%s): expected error %s, got none", i, step.Action, step.ExpectError)
	case !errors.As(err, &re):
		return fmt.Sprintf("step %d (%s): expected error %s, got %v", i, step.Action, step.ExpectError, err)
	case string(re.Code) != step.ExpectError:
		return fmt.Sprintf("step %d (%s): expected error %s, got %s", i, step.Action, step.ExpectError, re.Code)
	}
	return ""
}

// checkExpect compares logs and variables with the scenario's
// expectations.
func checkExpect(result *Result, want Expect, got *run) {
	if want.Logs != nil && !slices.Equal(want.Logs, got.logs) {
		result.AddErrorf("logs: expected %q, got %q", want.Logs, got.logs)
	}
	for _, id := range ir.SortedKeys(want.Variables) {
		v, ok := got.vars[id]
		switch {
		case !ok:
			result.AddErrorf("variable %s: not declared", id)
		case !valueMatches(v, want.Variables[id]):
			result.AddErrorf("variable %s: expected %v, got %s", id, want.Variables[id], ir.Format(v))
		}
	}
}

