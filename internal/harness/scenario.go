package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ixgraph/internal/config"
)

// Scenario is a conformance test case loaded from YAML.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Graph is the authoring graph (YAML file or CUE directory). Relative
	// paths resolve against the scenario file's directory.
	Graph string `yaml:"graph"`

	// SessionID defaults to "scenario-" + Name.
	SessionID string `yaml:"session_id,omitempty"`

	Seed     uint64 `yaml:"seed,omitempty"`
	MaxSteps int    `yaml:"max_steps,omitempty"`

	// AllowDiagnostics accepts graphs that compile with diagnostics.
	AllowDiagnostics bool `yaml:"allow_diagnostics,omitempty"`

	State      []config.StateEntry `yaml:"state,omitempty"`
	Animations []string            `yaml:"animations,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Expect     Expect      `yaml:"expect,omitempty"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one external trigger delivered to the session.
type Step struct {
	Action string `yaml:"action"`

	// DT is the simulated time in seconds that passes before a tick.
	DT float64 `yaml:"dt,omitempty"`

	// Node and Controller address select and hover steps.
	Node       int `yaml:"node,omitempty"`
	Controller int `yaml:"controller,omitempty"`

	// Event and Params describe a fire step.
	Event  string         `yaml:"event,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`

	// ExpectError is the runtime error code the step must fail with,
	// e.g. QUOTA_EXCEEDED. Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step actions.
const (
	ActionStart    = "start"
	ActionTick     = "tick"
	ActionSelect   = "select"
	ActionHoverIn  = "hover_in"
	ActionHoverOut = "hover_out"
	ActionFire     = "fire"
)

// Expect holds checks on the session's observable output.
type Expect struct {
	// Logs must equal the log sink messages exactly, in order.
	Logs []string `yaml:"logs,omitempty"`

	// Variables are final variable values by id.
	Variables map[string]any `yaml:"variables,omitempty"`
}

// EventMatch selects trace events. Empty fields match anything.
type EventMatch struct {
	Kind    string `yaml:"kind,omitempty"`
	Op      string `yaml:"op,omitempty"`
	Node    *int   `yaml:"node,omitempty"`
	Socket  string `yaml:"socket,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Assertion is a check on the trace or the final host state.
type Assertion struct {
	Type string `yaml:"type"`

	// Event selects events for trace_contains and trace_count.
	Event EventMatch `yaml:",inline"`

	// Sequence lists the events trace_order expects, in order.
	Sequence []EventMatch `yaml:"sequence,omitempty"`

	// Count is the exact number of matches for trace_count.
	Count int `yaml:"count,omitempty"`

	// Path and Value describe final_state.
	Path  string `yaml:"path,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if sc.Graph != "" && !filepath.IsAbs(sc.Graph) {
		sc.Graph = filepath.Join(filepath.Dir(path), sc.Graph)
	}
	if _, err := os.Stat(sc.Graph); err != nil {
		return nil, fmt.Errorf("invalid scenario: graph not found: %s", sc.Graph)
	}
	return sc, nil
}

// ParseScenario parses scenario YAML. Graph paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:"
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// Discover returns the scenario files under path: path itself when it is
// a file, otherwise every .yaml/.yml file in the directory, sorted.
// Subdirectories are not searched.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path not found: %s", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *Scenario) sessionID() string {
	if s.SessionID != "" {
		return s.SessionID
	}
	return "scenario-" + s.Name
}

func (s *Scenario) seed() uint64 {
	if s.Seed == 0 {
		return 1
	}
	return s.Seed
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Action {
	case ActionStart, ActionSelect, ActionHoverIn, ActionHoverOut:
	case ActionTick:
		if st.DT < 0 {
			return fmt.Errorf("steps[%d]: dt must be non-negative", index)
		}
	case ActionFire:
		if st.Event == "" {
			return fmt.Errorf("steps[%d]: event is required for fire", index)
		}
		if _, err := config.ParamValues(st.Params); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event.empty() {
			return fmt.Errorf("assertions[%d]: at least one event field is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Sequence) < 2 {
			return fmt.Errorf("assertions[%d]: sequence needs at least two events for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event.empty() {
			return fmt.Errorf("assertions[%d]: at least one event field is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for final_state", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (m EventMatch) empty() bool {
	return m.Kind == "" && m.Op == "" && m.Node == nil && m.Socket == "" && m.Message == ""
}
