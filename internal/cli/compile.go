package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ixgraph/internal/cleanup"
	"github.com/roach88/ixgraph/internal/codec"
	"github.com/roach88/ixgraph/internal/compiler"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output   string // output file path
	Database string // optional store to record the graph in
	Name     string // graph name in the store
	Strict   bool   // diagnostics fail the command
}

// CompilationResult is the JSON payload of a successful compile.
type CompilationResult struct {
	Name         string               `json:"name"`
	GraphID      string               `json:"graph_id"`
	Nodes        int                  `json:"nodes"`
	Declarations int                  `json:"declarations"`
	Variables    int                  `json:"variables"`
	CustomEvents int                  `json:"custom_events"`
	Diagnostics  compiler.Diagnostics `json:"diagnostics"`
	Cleanup      cleanup.Report       `json:"cleanup"`
	Output       string               `json:"output,omitempty"`
	Stored       bool                 `json:"stored,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <authoring-graph>",
		Short: "Compile an authoring graph to the wire format",
		Long: `Compile an authoring graph (YAML file, CUE file or CUE directory) into a
canonical interactivity graph.

Units without an exporter become diagnostics and are skipped. The compiled
graph goes through the cleanup passes before it is encoded.

Examples:
  ixgraph compile door.yaml -o door.json
  ixgraph compile ./graphs/door --db ixgraph.db --name door`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the graph in this SQLite database")
	cmd.Flags().StringVar(&opts.Name, "name", "", "graph name in the database (default: authoring name)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when the compiler reports diagnostics")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	lg, err := LoadGraph(path)
	if err != nil {
		return failLoad(f, err)
	}
	if lg.Source != SourceAuthoring {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "compile expects an authoring graph, got a wire graph", nil)
	}
	for _, d := range lg.Diagnostics {
		f.VerboseLog("diagnostic: %s", d.Error())
	}
	for _, p := range lg.Cleanup {
		f.VerboseLog("cleanup %s: removed %d node(s)", p.Pass, p.Removed)
	}

	if opts.Strict && len(lg.Diagnostics) > 0 {
		details := make([]string, len(lg.Diagnostics))
		for i, d := range lg.Diagnostics {
			details[i] = d.Error()
		}
		return f.Fail(ExitFailure, ErrCodeDiagnostics,
			fmt.Sprintf("compilation reported %d diagnostic(s)", len(lg.Diagnostics)), details)
	}

	data, err := codec.Encode(lg.Graph)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeCompile, fmt.Sprintf("encoding graph: %v", err), nil)
	}

	result := CompilationResult{
		Name:         lg.Name,
		GraphID:      ir.GraphID(data),
		Nodes:        len(lg.Graph.Nodes),
		Declarations: len(lg.Graph.Declarations),
		Variables:    len(lg.Graph.Variables),
		CustomEvents: len(lg.Graph.CustomEvents),
		Diagnostics:  lg.Diagnostics,
		Cleanup:      lg.Cleanup,
		Output:       opts.Output,
	}
	if result.Diagnostics == nil {
		result.Diagnostics = compiler.Diagnostics{}
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	if opts.Database != "" {
		name := opts.Name
		if name == "" {
			name = lg.Name
		}
		if err := storeGraph(cmd.Context(), opts.Database, name, lg.Graph); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		result.Stored = true
	}

	if f.JSON() {
		return f.Success(result)
	}

	f.Printf("✓ Compiled %s: %d node(s), %d declaration(s)\n", result.Name, result.Nodes, result.Declarations)
	f.Printf("  graph id: %s\n", result.GraphID)
	if removed := lg.Cleanup.Total(); removed > 0 {
		f.Printf("  cleanup removed %d node(s)\n", removed)
	}
	if len(result.Diagnostics) > 0 {
		f.Printf("\nDiagnostics:\n")
		for _, d := range result.Diagnostics {
			f.Printf("  %s\n", d.Error())
		}
	}
	if opts.Output != "" {
		f.Printf("\nWrote canonical graph to %s\n", opts.Output)
	} else if opts.Database == "" {
		f.Printf("\n%s\n", data)
	}
	if result.Stored {
		f.Printf("Recorded graph in %s\n", opts.Database)
	}
	return nil
}

func storeGraph(ctx context.Context, dbPath, name string, g *ir.Graph) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	_, err = st.WriteGraph(ctx, name, g)
	return err
}
