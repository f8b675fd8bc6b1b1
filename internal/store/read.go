package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/queryir"
	"github.com/roach88/ixgraph/internal/querysql"
	"github.com/roach88/ixgraph/internal/schema"
)

// GraphInfo summarizes a stored graph.
type GraphInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FormatVersion string `json:"format_version"`
	Nodes         int    `json:"nodes"`
}

// SessionInfo summarizes a stored session.
type SessionInfo struct {
	ID            string `json:"id"`
	GraphID       string `json:"graph_id"`
	EngineVersion string `json:"engine_version"`
	Digest        string `json:"digest,omitempty"`
	Events        int    `json:"events"`
	LastSeq       int64  `json:"last_seq"`
}

// ReadGraph decodes a stored graph against reg.
func (s *Store) ReadGraph(ctx context.Context, id string, reg *schema.Registry) (*ir.Graph, error) {
	data, err := s.ReadEncodedGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	return unmarshalGraph(data, reg)
}

// ReadEncodedGraph returns the stored wire encoding of a graph.
func (s *Store) ReadEncodedGraph(ctx context.Context, id string) (string, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, `SELECT encoded FROM graphs WHERE id = ?`, id).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("graph %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read graph: %w", err)
	}
	return encoded, nil
}

// ListGraphs returns every stored graph ordered by name, then id.
func (s *Store) ListGraphs(ctx context.Context) ([]GraphInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, format_version, nodes
		FROM graphs
		ORDER BY name ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query graphs: %w", err)
	}
	defer rows.Close()

	graphs := []GraphInfo{}
	for rows.Next() {
		var g GraphInfo
		if err := rows.Scan(&g.ID, &g.Name, &g.FormatVersion, &g.Nodes); err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		graphs = append(graphs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graphs: %w", err)
	}
	return graphs, nil
}

const sessionColumns = `
	s.id, s.graph_id, s.engine_version, s.digest,
	COUNT(t.seq), COALESCE(MAX(t.seq), 0)
`

// ReadSession returns one session with its event count.
func (s *Store) ReadSession(ctx context.Context, id string) (SessionInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		LEFT JOIN trace_events t ON t.session_id = s.id
		WHERE s.id = ?
		GROUP BY s.id
	`, id)
	info, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionInfo{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return info, err
}

// ListSessions returns every session ordered by id. Session ids are
// UUIDv7 by default, so this is creation order.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		LEFT JOIN trace_events t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionInfo{}
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionInfo, error) {
	var info SessionInfo
	err := row.Scan(&info.ID, &info.GraphID, &info.EngineVersion, &info.Digest, &info.Events, &info.LastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return info, err
	}
	if err != nil {
		return info, fmt.Errorf("scan session: %w", err)
	}
	return info, nil
}

// ReadTrace returns the events of a session in seq order. Unknown
// sessions give an empty slice.
func (s *Store) ReadTrace(ctx context.Context, sessionID string) ([]engine.TraceEvent, error) {
	return s.readTrace(ctx, sessionID, 0)
}

// ReadTraceSince returns the events of a session with seq > after.
func (s *Store) ReadTraceSince(ctx context.Context, sessionID string, after int64) ([]engine.TraceEvent, error) {
	return s.readTrace(ctx, sessionID, after)
}

func (s *Store) readTrace(ctx context.Context, sessionID string, after int64) ([]engine.TraceEvent, error) {
	return s.QueryTrace(ctx, queryir.Select{Session: sessionID, After: after})
}

// QueryTrace returns the stored events selected by q, ordered by session,
// then seq.
func (s *Store) QueryTrace(ctx context.Context, q queryir.Query) ([]engine.TraceEvent, error) {
	sql, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	events := []engine.TraceEvent{}
	for rows.Next() {
		var (
			ev   engine.TraceEvent
			kind string
		)
		if err := rows.Scan(&ev.Session, &ev.Seq, &kind, &ev.Node, &ev.Op, &ev.Socket, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		ev.Kind = engine.TraceKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return events, nil
}
