package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/queryir"
)

func TestTraceListsAndVerifiesSession(t *testing.T) {
	dbPath := recordSession(t, "trace-me")

	out, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "trace-me")
	assert.Contains(t, out, "finished")

	out, err = execute(NewTraceCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "--session", "trace-me", "--verify")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Data.Verified)
	assert.True(t, *resp.Data.Verified)
	require.NotEmpty(t, resp.Data.Timeline)
	assert.Equal(t, int64(1), resp.Data.Timeline[0].Seq)
	assert.Equal(t, resp.Data.Session.Events, len(resp.Data.Timeline))
}

func TestTraceKindFilter(t *testing.T) {
	dbPath := recordSession(t, "filter-me")

	out, err := execute(NewTraceCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "--session", "filter-me", "--kind", "log")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Timeline, 1)
	assert.Equal(t, engine.TraceLog, resp.Data.Timeline[0].Kind)
	assert.Equal(t, "hello", resp.Data.Timeline[0].Message)
}

func TestTraceUnknownSession(t *testing.T) {
	dbPath := recordSession(t, "known")

	_, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--session", "unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestTraceGraphAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "counter.yaml", counterGraph)
	dbPath := filepath.Join(dir, "ixgraph.db")
	for _, id := range []string{"first", "second"} {
		_, err := execute(NewRunCommand(&RootOptions{Format: "text"}),
			path, "--duration", "50ms", "--db", dbPath, "--session-id", id)
		require.NoError(t, err)
	}

	out, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)
	var compiled struct {
		Data CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &compiled))

	out, err = execute(NewTraceCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "--graph", compiled.Data.GraphID, "--op", "debug/*")
	require.NoError(t, err)

	var resp struct {
		Data []engine.TraceEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	var sessions []string
	for _, ev := range resp.Data {
		assert.Equal(t, "debug/log", ev.Op)
		if len(sessions) == 0 || sessions[len(sessions)-1] != ev.Session {
			sessions = append(sessions, ev.Session)
		}
	}
	assert.Equal(t, []string{"first", "second"}, sessions)
}

func TestTraceFilter(t *testing.T) {
	tests := []struct {
		name string
		opts TraceOptions
		want queryir.Predicate
	}{
		{"none", TraceOptions{Node: -1}, nil},
		{"kind", TraceOptions{Kind: "log", Node: -1}, queryir.Equals{Field: queryir.FieldKind, Value: "log"}},
		{"op prefix", TraceOptions{Op: "event/*", Node: -1}, queryir.Prefix{Field: queryir.FieldOp, Prefix: "event/"}},
		{"op exact and node", TraceOptions{Op: "debug/log", Node: 0}, queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: queryir.FieldOp, Value: "debug/log"},
			queryir.Equals{Field: queryir.FieldNode, Value: 0},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, traceFilter(&tt.opts))
		})
	}
}
