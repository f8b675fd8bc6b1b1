package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/queryir"
	"github.com/roach88/ixgraph/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Graph    string // every session of this graph
	Kind     string
	Op       string // exact op, or a prefix ending in "*"
	Node     int    // -1 means any node
	Limit    int
	Verify   bool
}

// TraceResult holds one stored session trace.
type TraceResult struct {
	Session  store.SessionInfo   `json:"session"`
	Timeline []engine.TraceEvent `json:"timeline"`
	Verified *bool               `json:"verified,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print a recorded session trace",
		Long: `Print the trace of a session recorded by "ixgraph run --db".

Without --session or --graph, list the recorded sessions. --graph prints
the events of every session recorded for a graph. --kind, --op and --node
filter the events; an --op ending in "*" matches by prefix. With --verify,
recompute the trace digest and compare it with the one recorded when the
session finished; a mismatch exits with status 1.

Examples:
  ixgraph trace --db ixgraph.db
  ixgraph trace --db ixgraph.db --session 0190c1a2-... --kind log
  ixgraph trace --db ixgraph.db --graph 3f9a... --op "event/*"
  ixgraph trace --db ixgraph.db --session 0190c1a2-... --verify --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to print")
	cmd.Flags().StringVar(&opts.Graph, "graph", "", "print every session of this graph id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind (activation, flow, error_flow, log, variable, ...)")
	cmd.Flags().StringVar(&opts.Op, "op", "", `only events of this op; a trailing "*" matches a prefix`)
	cmd.Flags().IntVar(&opts.Node, "node", -1, "only events of this node index")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "print at most this many events (0 for all)")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "check the trace against its recorded digest")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	defer st.Close()

	if opts.Graph != "" {
		if opts.Session != "" || opts.Verify {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "--graph cannot be combined with --session or --verify", nil)
		}
		return graphTrace(ctx, f, st, opts)
	}
	if opts.Session == "" {
		return listSessions(ctx, f, st)
	}

	info, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, store.ErrNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no session %q", opts.Session), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	events, err := st.QueryTrace(ctx, queryir.Select{Session: opts.Session, Filter: traceFilter(opts), Limit: opts.Limit})
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	result := TraceResult{Session: info, Timeline: events}
	var verifyErr error
	if opts.Verify {
		v, err := st.VerifySession(ctx, opts.Session)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		ok := v.Match()
		result.Verified = &ok
		if !ok {
			verifyErr = NewExitError(ExitFailure, fmt.Sprintf("session %s: trace digest does not match", opts.Session))
		}
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
		return verifyErr
	}

	f.Printf("Session %s (graph %s, engine %s)\n", info.ID, shortID(info.GraphID), info.EngineVersion)
	f.Printf("  %d event(s), last seq %d\n\n", info.Events, info.LastSeq)
	for _, ev := range result.Timeline {
		f.Printf("%s\n", formatEvent(ev))
	}
	if result.Verified != nil {
		if *result.Verified {
			f.Printf("\n✓ digest verified\n")
		} else {
			f.Printf("\n✗ digest mismatch\n")
		}
	}
	return verifyErr
}

func listSessions(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if f.JSON() {
		return f.Success(sessions)
	}
	if len(sessions) == 0 {
		f.Printf("No sessions recorded.\n")
		return nil
	}
	for _, s := range sessions {
		state := "finished"
		if s.Digest == "" {
			state = "open"
		}
		f.Printf("%s  graph %s  %4d event(s)  %s\n", s.ID, shortID(s.GraphID), s.Events, state)
	}
	return nil
}

// graphTrace prints the filtered events of every session of a graph.
func graphTrace(ctx context.Context, f *OutputFormatter, st *store.Store, opts *TraceOptions) error {
	events, err := st.QueryTrace(ctx, queryir.Select{Graph: opts.Graph, Filter: traceFilter(opts), Limit: opts.Limit})
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if f.JSON() {
		return f.Success(events)
	}
	if len(events) == 0 {
		f.Printf("No events recorded for graph %s.\n", shortID(opts.Graph))
		return nil
	}
	session := ""
	for _, ev := range events {
		if ev.Session != session {
			session = ev.Session
			f.Printf("Session %s\n", session)
		}
		f.Printf("%s\n", formatEvent(ev))
	}
	return nil
}

// traceFilter turns the filter flags into a predicate; nil when no
// filter is set.
func traceFilter(opts *TraceOptions) queryir.Predicate {
	var preds []queryir.Predicate
	if opts.Kind != "" {
		preds = append(preds, queryir.Equals{Field: queryir.FieldKind, Value: opts.Kind})
	}
	if prefix, ok := strings.CutSuffix(opts.Op, "*"); ok {
		preds = append(preds, queryir.Prefix{Field: queryir.FieldOp, Prefix: prefix})
	} else if opts.Op != "" {
		preds = append(preds, queryir.Equals{Field: queryir.FieldOp, Value: opts.Op})
	}
	if opts.Node >= 0 {
		preds = append(preds, queryir.Equals{Field: queryir.FieldNode, Value: opts.Node})
	}
	return queryir.Where(preds...)
}

// formatEvent renders one event as a single timeline line.
func formatEvent(ev engine.TraceEvent) string {
	s := fmt.Sprintf("%6d  %-22s #%-4d %s", ev.Seq, ev.Kind, ev.Node, ev.Op)
	if ev.Socket != "" {
		s += "." + ev.Socket
	}
	if ev.Message != "" {
		s += "  " + ev.Message
	}
	return s
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
