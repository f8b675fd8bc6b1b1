package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/ixgraph/internal/config"
	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/eventsrc"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/store"
	"github.com/roach88/ixgraph/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	Duration   time.Duration
	SessionID  string
}

// RunResult is the JSON payload of a finished run.
type RunResult struct {
	SessionID string            `json:"session_id"`
	GraphID   string            `json:"graph_id,omitempty"`
	Logs      []string          `json:"logs"`
	Variables map[string]string `json:"variables"`
	Events    int               `json:"events"`
	Digest    string            `json:"digest"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <graph>",
		Short: "Run a graph session",
		Long: `Run one session of a wire or authoring graph.

The session starts immediately, ticks at the configured rate and accepts
custom events from the cron schedules and MQTT routes in the config file.
It runs until interrupted or until --duration elapses. With a database,
the graph and the session trace are recorded.

Examples:
  ixgraph run door.json --config ixgraph.yaml
  ixgraph run door.yaml --duration 5s --db ixgraph.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "runtime config file (YAML)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the session in this SQLite database (overrides config)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.SessionID, "session-id", "", "session id (default: UUIDv7)")

	return cmd
}

// logLines is the session log sink. Text mode streams lines as they
// arrive; JSON mode only collects them.
type logLines struct {
	mu     sync.Mutex
	w      io.Writer
	lines  []string
	stream bool
}

func (l *logLines) Log(_ int, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, message)
	if l.stream {
		fmt.Fprintln(l.w, message)
	}
}

func (l *logLines) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.lines...)
}

func runSession(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
	}
	if !opts.Verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	}

	lg, err := LoadGraph(path)
	if err != nil {
		return failLoad(f, err)
	}
	prog, err := loadProgram(lg)
	if err != nil {
		return failLoad(f, err)
	}

	state, err := cfg.MemoryState()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	metrics, err := telemetry.NewGlobalMetricsObserver()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("metrics: %v", err), nil)
	}
	rec := &engine.Recorder{}
	logs := &logLines{w: cmd.OutOrStdout(), stream: !f.JSON()}

	sessOpts := []engine.SessionOption{
		engine.WithState(state),
		engine.WithAssets(cfg.Assets()),
		engine.WithLogSink(logs),
		engine.WithMaxSteps(cfg.MaxSteps),
		engine.WithSeed(cfg.Seed),
		engine.WithObserver(rec),
		engine.WithObserver(metrics),
	}
	if opts.SessionID != "" {
		sessOpts = append(sessOpts, engine.WithSessionID(opts.SessionID))
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}
	// Recording outlives the run context so the tail of the trace lands.
	storeCtx := context.WithoutCancel(ctx)

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Database
	}
	var (
		st      *store.Store
		writer  *store.TraceWriter
		graphID string
	)
	if dbPath != "" {
		if st, err = store.Open(dbPath); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		defer st.Close()
		if graphID, err = st.WriteGraph(storeCtx, lg.Name, lg.Graph); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		writer = store.NewTraceWriter(storeCtx, st)
		sessOpts = append(sessOpts, engine.WithObserver(writer))
	}

	sess := prog.NewSession(sessOpts...)
	if st != nil {
		if err := st.WriteSession(storeCtx, sess.ID(), graphID); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
	}

	sources, err := buildSources(cfg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	sink := eventsrc.SinkFunc(func(ev engine.Event) bool {
		slog.Debug("external event", "session", sess.ID(), "kind", ev.Kind, "event", ev.CustomEvent)
		return sess.Enqueue(ev)
	})
	for _, src := range sources {
		if err := src.Start(ctx, sink); err != nil {
			stopSources(sources)
			return f.Fail(ExitCommandError, ErrCodeRuntime, fmt.Sprintf("starting event source: %v", err), nil)
		}
	}

	f.VerboseLog("session %s running %s at %v Hz", sess.ID(), lg.Name, cfg.TickRateHz)
	sess.Enqueue(engine.Event{Kind: engine.EventStart})
	runErr := sess.Run(ctx, cfg.TickInterval())
	stopSources(sources)
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return f.Fail(ExitFailure, ErrCodeRuntime, runErr.Error(), nil)
	}

	events := rec.Events()
	digest, err := engine.Digest(events)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRuntime, fmt.Sprintf("trace digest: %v", err), nil)
	}
	if st != nil {
		if werr := writer.Err(); werr != nil {
			slog.Warn("trace recording incomplete", "session", sess.ID(), "errors", len(multierr.Errors(werr)), "error", werr)
		}
		if _, err := st.FinishSession(storeCtx, sess.ID()); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
	}

	result := RunResult{
		SessionID: sess.ID(),
		GraphID:   graphID,
		Logs:      logs.all(),
		Variables: map[string]string{},
		Events:    len(events),
		Digest:    digest,
	}
	for id, v := range sess.Variables() {
		result.Variables[id] = ir.Format(v)
	}
	if f.JSON() {
		return f.Success(result)
	}

	f.Printf("\nSession %s finished: %d trace event(s)\n", result.SessionID, result.Events)
	for _, id := range ir.SortedKeys(result.Variables) {
		f.Printf("  %s = %s\n", id, result.Variables[id])
	}
	f.Printf("  digest: %s\n", result.Digest)
	return nil
}

// buildSources creates the event sources the config asks for.
func buildSources(cfg *config.Config) ([]eventsrc.Source, error) {
	var sources []eventsrc.Source
	if len(cfg.Schedules) > 0 {
		scheds, err := cfg.CronSchedules()
		if err != nil {
			return nil, err
		}
		cs, err := eventsrc.NewCronSource(scheds)
		if err != nil {
			return nil, err
		}
		sources = append(sources, cs)
	}
	if mo, ok := cfg.MQTTOptions(); ok {
		ms, err := eventsrc.NewMQTTSource(mo)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ms)
	}
	return sources, nil
}

func stopSources(sources []eventsrc.Source) {
	for _, src := range sources {
		if err := src.Stop(); err != nil {
			slog.Warn("stopping event source", "error", err)
		}
	}
}
