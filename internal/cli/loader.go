package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/ixgraph/internal/authoring"
	"github.com/roach88/ixgraph/internal/cleanup"
	"github.com/roach88/ixgraph/internal/codec"
	"github.com/roach88/ixgraph/internal/compiler"
	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// Error codes, unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeAuthoring   = "E003" // Authoring graph failed to load
	ErrCodeCompile     = "E004" // Fatal compile error
	ErrCodeCleanup     = "E005" // Cleanup pass failed
	ErrCodeDecode      = "E006" // Wire graph rejected by the decoder
	ErrCodeLoad        = "E007" // Graph rejected by the engine
	ErrCodeWriteFailed = "E008" // File write error
	ErrCodeStore       = "E009" // Database error
	ErrCodeConfig      = "E010" // Runtime config error
	ErrCodeRuntime     = "E011" // Session failed
	ErrCodeScenario    = "E012" // Scenario failed
	ErrCodeDiagnostics = "E013" // Compile diagnostics under --strict
)

// Graph sources.
const (
	SourceAuthoring = "authoring"
	SourceEncoded   = "encoded"
)

// LoadedGraph is a graph ready for the engine with how it was obtained.
type LoadedGraph struct {
	Path        string
	Name        string
	Source      string
	Graph       *ir.Graph
	Diagnostics compiler.Diagnostics
	Cleanup     cleanup.Report
}

// LoadError reports why an input could not become a graph.
type LoadError struct {
	Code    string
	Message string
	Details []string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadGraph reads path as a wire graph (.json) or as an authoring graph
// (.yaml, .yml, .cue or a CUE directory). Authoring graphs are compiled
// and cleaned up.
func LoadGraph(path string) (*LoadedGraph, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return loadEncoded(path)
	}
	return loadAuthoring(path)
}

func loadAuthoring(path string) (*LoadedGraph, error) {
	ag, err := authoring.Load(path)
	if err != nil {
		var ae *authoring.LoadError
		if errors.As(err, &ae) {
			return nil, &LoadError{Code: ErrCodeAuthoring, Message: ae.Message, Pos: ae.Pos}
		}
		return nil, &LoadError{Code: ErrCodeAuthoring, Message: err.Error()}
	}

	res, err := compiler.Default().Compile(ag)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error()}
	}

	report, err := cleanup.Default().Run(res.Graph, schema.Standard())
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCleanup, Message: err.Error()}
	}

	name := ag.Name
	if name == "" {
		name = baseName(path)
	}
	return &LoadedGraph{
		Path:        path,
		Name:        name,
		Source:      SourceAuthoring,
		Graph:       res.Graph,
		Diagnostics: res.Diagnostics,
		Cleanup:     report,
	}, nil
}

func loadEncoded(path string) (*LoadedGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	var g *ir.Graph
	if isEnvelope(data) {
		env, derr := codec.DecodeEnvelope(data, schema.Standard())
		if derr != nil {
			return nil, decodeError(derr)
		}
		if len(env.Graphs) == 0 {
			return nil, &LoadError{Code: ErrCodeDecode, Message: "envelope holds no graphs"}
		}
		g = env.Graphs[env.Default]
	} else {
		g, err = codec.Decode(data, schema.Standard())
		if err != nil {
			return nil, decodeError(err)
		}
	}
	return &LoadedGraph{Path: path, Name: baseName(path), Source: SourceEncoded, Graph: g}, nil
}

// isEnvelope peeks for a top-level "graphs" key.
func isEnvelope(data []byte) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return false
	}
	_, ok := top["graphs"]
	return ok
}

func decodeError(err error) *LoadError {
	le := &LoadError{Code: ErrCodeDecode, Message: "wire graph rejected"}
	for _, v := range codec.Violations(err) {
		le.Details = append(le.Details, v.Error())
	}
	if len(le.Details) == 0 {
		le.Message = err.Error()
	}
	return le
}

// loadProgram runs engine load validation on a loaded graph.
func loadProgram(lg *LoadedGraph) (*engine.Program, error) {
	p, err := engine.Load(lg.Graph, schema.Standard())
	if err != nil {
		le := &LoadError{Code: ErrCodeLoad, Message: err.Error()}
		for _, v := range engine.Violations(err) {
			le.Details = append(le.Details, v.Error())
		}
		if len(le.Details) > 0 {
			le.Message = fmt.Sprintf("graph has %d schema violation(s)", len(le.Details))
		}
		return nil, le
	}
	return p, nil
}

// failLoad reports a LoadGraph/loadProgram error. Bad input is an
// ExitFailure when it was read but rejected, and an ExitCommandError
// when it could not be read at all.
func failLoad(f *OutputFormatter, err error) error {
	var le *LoadError
	if !errors.As(err, &le) {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	code := ExitFailure
	if le.Code == ErrCodeNotFound {
		code = ExitCommandError
	}
	msg := le.Message
	if le.Pos.IsValid() {
		msg = fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), le.Message)
	}
	var details any
	if len(le.Details) > 0 {
		details = le.Details
	}
	return f.Fail(code, le.Code, msg, details)
}

func baseName(path string) string {
	base := filepath.Base(filepath.Clean(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
