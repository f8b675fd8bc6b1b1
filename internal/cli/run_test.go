package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSession runs the counter graph for a short while into a fresh
// database and returns the database path.
func recordSession(t *testing.T, sessionID string) string {
	t.Helper()
	dir := t.TempDir()
	path := writeFile(t, dir, "counter.yaml", counterGraph)
	dbPath := filepath.Join(dir, "ixgraph.db")

	_, err := execute(NewRunCommand(&RootOptions{Format: "text"}),
		path, "--duration", "100ms", "--db", dbPath, "--session-id", sessionID)
	require.NoError(t, err)
	return dbPath
}

func TestRunJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterGraph)

	out, err := execute(NewRunCommand(&RootOptions{Format: "json"}),
		path, "--duration", "100ms", "--session-id", "run-json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-json", resp.Data.SessionID)
	assert.Equal(t, []string{"hello"}, resp.Data.Logs)
	assert.Equal(t, map[string]string{"count": "0"}, resp.Data.Variables)
	assert.Positive(t, resp.Data.Events)
	assert.NotEmpty(t, resp.Data.Digest)
}

func TestRunStreamsLogs(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterGraph)

	out, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path, "--duration", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "hello\n")
	assert.Contains(t, out, "count = 0")
	assert.Contains(t, out, "digest: ")
}

func TestRunConfigErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "counter.yaml", counterGraph)

	_, err := execute(NewRunCommand(&RootOptions{Format: "text"}),
		path, "--config", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeConfig)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
