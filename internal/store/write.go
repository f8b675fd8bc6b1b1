package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
)

// WriteGraph stores the canonical encoding of g and returns its id.
// Writing an equal graph again is a no-op.
func (s *Store) WriteGraph(ctx context.Context, name string, g *ir.Graph) (string, error) {
	id, encoded, err := marshalGraph(g)
	if err != nil {
		return "", fmt.Errorf("write graph: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (id, name, encoded, format_version, nodes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, encoded, ir.FormatVersion, len(g.Nodes))
	if err != nil {
		return "", fmt.Errorf("write graph: %w", err)
	}
	return id, nil
}

// WriteSession registers a session of a stored graph. Duplicate ids are
// ignored.
func (s *Store) WriteSession(ctx context.Context, sessionID, graphID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, graph_id, engine_version)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sessionID, graphID, ir.EngineVersion)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteTraceEvent appends one trace event. The session must exist.
// Rewriting the same (session, seq) is a no-op.
func (s *Store) WriteTraceEvent(ctx context.Context, ev engine.TraceEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_events (session_id, seq, kind, node, op, socket, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, ev.Session, ev.Seq, string(ev.Kind), ev.Node, ev.Op, ev.Socket, ev.Message)
	if err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	return nil
}

// WriteTrace appends events in one transaction.
func (s *Store) WriteTrace(ctx context.Context, events []engine.TraceEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write trace: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events (session_id, seq, kind, node, op, socket, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write trace: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.Session, ev.Seq, string(ev.Kind), ev.Node, ev.Op, ev.Socket, ev.Message); err != nil {
			return fmt.Errorf("write trace: seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write trace: commit: %w", err)
	}
	return nil
}

// FinishSession computes the digest of the stored trace and records it
// on the session.
func (s *Store) FinishSession(ctx context.Context, sessionID string) (string, error) {
	events, err := s.ReadTrace(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("finish session: %w", err)
	}
	digest, err := traceDigest(events)
	if err != nil {
		return "", fmt.Errorf("finish session: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET digest = ? WHERE id = ?`, digest, sessionID)
	if err != nil {
		return "", fmt.Errorf("finish session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("finish session %q: %w", sessionID, ErrNotFound)
	}
	return digest, nil
}

// TraceWriter is an engine.Observer that appends every event of a session
// to the store. Observe cannot return an error, so write failures are
// collected and reported by Err.
type TraceWriter struct {
	store *Store
	ctx   context.Context

	mu   sync.Mutex
	errs error
}

// NewTraceWriter returns an observer writing to s. ctx bounds every write.
func NewTraceWriter(ctx context.Context, s *Store) *TraceWriter {
	return &TraceWriter{store: s, ctx: ctx}
}

func (w *TraceWriter) Observe(ev engine.TraceEvent) {
	if err := w.store.WriteTraceEvent(w.ctx, ev); err != nil {
		w.mu.Lock()
		w.errs = multierr.Append(w.errs, err)
		w.mu.Unlock()
	}
}

// Err returns every write failure so far, combined.
func (w *TraceWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errs
}
