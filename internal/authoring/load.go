package authoring

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Load error codes.
const (
	ErrCodeNotFound    = "A001" // path not found
	ErrCodeNoFiles     = "A002" // no CUE files in directory
	ErrCodeLoadFailed  = "A003" // CUE load failed
	ErrCodeBuildFailed = "A004" // CUE build failed
	ErrCodeDecode      = "A005" // document does not match the graph shape
	ErrCodeInvalid     = "A006" // graph failed validation
)

// LoadError reports a failure to load an authoring graph.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads an authoring graph from a .yaml/.yml file or a CUE directory.
func Load(path string) (*Graph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("authoring graph not found: %s", path)}
	}
	if info.IsDir() {
		return LoadCUE(path)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".cue":
		return LoadCUE(filepath.Dir(path))
	}
	return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("unsupported authoring file: %s", path)}
}

// LoadYAML reads an authoring graph from a YAML file.
func LoadYAML(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return ParseYAML(data)
}

// ParseYAML decodes and validates an authoring graph.
func ParseYAML(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: err.Error()}
	}
	if err := g.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: err.Error()}
	}
	return &g, nil
}

// LoadCUE loads the CUE package in dir and decodes its top-level "graph"
// field. Decode failures carry the CUE source position.
func LoadCUE(dir string) (*Graph, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil || len(matches) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, err)
	}
	return DecodeCUE(value.LookupPath(cue.ParsePath("graph")))
}

// DecodeCUE decodes a CUE value holding a graph.
func DecodeCUE(v cue.Value) (*Graph, error) {
	if !v.Exists() {
		return nil, &LoadError{Code: ErrCodeDecode, Message: "missing top-level field: graph"}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeDecode, err)
	}
	var g Graph
	if err := v.Decode(&g); err != nil {
		return nil, cueLoadError(ErrCodeDecode, err)
	}
	if err := g.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: err.Error(), Pos: v.Pos()}
	}
	return &g, nil
}

func cueLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: cueerrors.Details(err, nil)}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
