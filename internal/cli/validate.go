package cli

import (
	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Source      string   `json:"source"`
	Nodes       int      `json:"nodes"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph>",
		Short: "Check that a graph decodes and loads",
		Long: `Check a wire graph (.json) or an authoring graph without running it.

Wire graphs are decoded against the schema registry; authoring graphs are
compiled and cleaned up. Either way the result must pass engine load
validation. Every violation is reported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	lg, err := LoadGraph(path)
	if err != nil {
		return failLoad(f, err)
	}
	f.VerboseLog("loaded %s graph with %d node(s)", lg.Source, len(lg.Graph.Nodes))

	if _, err := loadProgram(lg); err != nil {
		return failLoad(f, err)
	}

	result := ValidationResult{Valid: true, Source: lg.Source, Nodes: len(lg.Graph.Nodes)}
	for _, d := range lg.Diagnostics {
		result.Diagnostics = append(result.Diagnostics, d.Error())
	}
	if f.JSON() {
		return f.Success(result)
	}

	f.Printf("✓ %s is valid (%d node(s))\n", path, result.Nodes)
	for _, d := range result.Diagnostics {
		f.Printf("  warning: %s\n", d)
	}
	return nil
}
