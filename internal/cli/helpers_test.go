package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const counterGraph = `name: counter
variables:
  - {id: count, type: int, default: 0}
events:
  - id: bump
    params:
      - {name: amount, type: int, default: 1}
units:
  - {id: start, kind: OnStart}
  - id: hello
    kind: Log
    config: {message: "hello"}
  - id: recv
    kind: CustomEventReceive
    config: {event: bump}
  - id: set
    kind: SetVariable
    config: {variable: count}
control:
  - {from: {unit: start, pin: out}, to: {unit: hello, pin: in}}
  - {from: {unit: recv, pin: out}, to: {unit: set, pin: in}}
data:
  - {from: {unit: recv, pin: amount}, to: {unit: set, pin: value}}
`

// unmappedGraph compiles with one diagnostic.
const unmappedGraph = `name: unmapped
units:
  - {id: start, kind: OnStart}
  - id: hello
    kind: Log
    config: {message: "hello"}
  - {id: mystery, kind: TeleportPlayer}
control:
  - {from: {unit: start, pin: out}, to: {unit: hello, pin: in}}
`

// writeFile writes content under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns stdout and the error.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
