package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	return resp
}

func TestOutputFormatter_JSONEnvelope(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Success(map[string]int{"nodes": 4}))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Error)
		assert.Equal(t, map[string]any{"nodes": float64(4)}, resp.Data)
	})

	t.Run("error with diagnostics", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		details := []string{"X001 node 3: no exporter for TeleportPlayer"}
		require.NoError(t, f.Error(ErrCodeDiagnostics, "graph compiled with diagnostics", details))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeDiagnostics, resp.Error.Code)
		assert.Equal(t, []any{details[0]}, resp.Error.Details)
	})

	t.Run("no html escaping", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Success("a<b>&c"))
		assert.Contains(t, buf.String(), `"a<b>&c"`)
	})
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		details  any
		contains []string
		excludes []string
	}{
		{
			name:     "message only",
			contains: []string{"Error [E004]: compile failed"},
			excludes: []string{"Details:"},
		},
		{
			name:     "string details always listed",
			details:  []string{"node 2: unknown socket"},
			contains: []string{"Error [E004]", "  node 2: unknown socket"},
		},
		{
			name:     "structured details hidden when quiet",
			details:  map[string]string{"file": "door.yaml"},
			excludes: []string{"Details:"},
		},
		{
			name:     "structured details shown when verbose",
			verbose:  true,
			details:  map[string]string{"file": "door.yaml"},
			contains: []string{"Details:", "door.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, f.Error(ErrCodeCompile, "compile failed", tt.details))
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := f.Fail(ExitCommandError, ErrCodeNotFound, "graph not found: door.yaml", nil)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "E002: graph not found: door.yaml", err.Error())
	resp := decodeResponse(t, buf)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestOutputFormatter_PrintfSilentInJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	f.Printf("✓ %s\n", "scenario")
	assert.Empty(t, buf.String())

	f.Format = "text"
	f.Printf("✓ %s\n", "scenario")
	assert.Equal(t, "✓ scenario\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    string
	}{
		{"verbose", true, "loading door.yaml\n"},
		{"quiet", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: tt.verbose}

			f.VerboseLog("loading %s", "door.yaml")

			assert.Empty(t, out.String(), "verbose output must stay off the response stream")
			assert.Equal(t, tt.want, errOut.String())
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	inner := assert.AnError
	err := WrapExitError(ExitFailure, "verify", inner)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "verify: "+inner.Error(), err.Error())
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
