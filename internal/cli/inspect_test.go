package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterGraph)

	out, err := execute(NewInspectCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	res := resp.Data
	assert.Equal(t, "counter", res.Name)
	assert.Equal(t, SourceAuthoring, res.Source)
	assert.Equal(t, []string{"count: int = 0"}, res.Variables)
	assert.Equal(t, []string{"bump(amount: int)"}, res.CustomEvents)
	assert.Equal(t, 1, res.Ops["event/onStart"])
	assert.Equal(t, 1, res.Ops["event/receive"])
	assert.Equal(t, 1, res.Ops["debug/log"])
	assert.Len(t, res.Events, 2)
	assert.Equal(t, res.Nodes, sumOps(res.Ops))
}

func TestInspectText(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterGraph)

	out, err := execute(NewInspectCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "counter (authoring)")
	assert.Contains(t, out, "Declarations:")
	assert.Contains(t, out, "event/receive")
	assert.Contains(t, out, "Custom events:\n  bump(amount: int)")
}

func TestInspectNotFound(t *testing.T) {
	_, err := execute(NewInspectCommand(&RootOptions{Format: "text"}), "/nonexistent/graph.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func sumOps(ops map[string]int) int {
	n := 0
	for _, c := range ops {
		n += c
	}
	return n
}
