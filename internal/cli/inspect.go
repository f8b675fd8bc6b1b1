package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ixgraph/internal/ir"
)

// InspectResult summarizes a graph.
type InspectResult struct {
	Name         string         `json:"name"`
	Source       string         `json:"source"`
	Nodes        int            `json:"nodes"`
	Types        []string       `json:"types"`
	Declarations []string       `json:"declarations"`
	Ops          map[string]int `json:"ops"`
	Variables    []string       `json:"variables"`
	CustomEvents []string       `json:"custom_events"`
	Events       []int          `json:"event_nodes"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <graph>",
		Short: "Summarize a graph",
		Long: `Print the type table, declarations, op usage, variables and custom
events of a wire or authoring graph.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	lg, err := LoadGraph(path)
	if err != nil {
		return failLoad(f, err)
	}
	result := inspectGraph(lg)
	if f.JSON() {
		return f.Success(result)
	}

	f.Printf("%s (%s)\n", result.Name, result.Source)
	f.Printf("  nodes: %d\n", result.Nodes)
	f.Printf("  types: %v\n", result.Types)
	f.Printf("\nDeclarations:\n")
	for i, d := range result.Declarations {
		f.Printf("  [%d] %s\n", i, d)
	}
	f.Printf("\nOps:\n")
	for _, op := range ir.SortedKeys(result.Ops) {
		f.Printf("  %-24s %d\n", op, result.Ops[op])
	}
	if len(result.Variables) > 0 {
		f.Printf("\nVariables:\n")
		for _, v := range result.Variables {
			f.Printf("  %s\n", v)
		}
	}
	if len(result.CustomEvents) > 0 {
		f.Printf("\nCustom events:\n")
		for _, e := range result.CustomEvents {
			f.Printf("  %s\n", e)
		}
	}
	return nil
}

func inspectGraph(lg *LoadedGraph) InspectResult {
	g := lg.Graph
	res := InspectResult{
		Name:         lg.Name,
		Source:       lg.Source,
		Nodes:        len(g.Nodes),
		Types:        g.Types(),
		Declarations: []string{},
		Ops:          map[string]int{},
		Variables:    []string{},
		CustomEvents: []string{},
		Events:       []int{},
	}
	for _, d := range g.Declarations {
		res.Declarations = append(res.Declarations, d.Key())
	}
	for i := range g.Nodes {
		op := g.Op(i)
		res.Ops[op]++
		if strings.HasPrefix(op, "event/") {
			res.Events = append(res.Events, i)
		}
	}
	for _, v := range g.Variables {
		res.Variables = append(res.Variables, v.ID+": "+v.Type+" = "+ir.Format(v.Default))
	}
	for _, e := range g.CustomEvents {
		s := e.ID + "("
		params := append([]ir.EventParam(nil), e.Params...)
		sort.Slice(params, func(a, b int) bool { return params[a].Name < params[b].Name })
		for j, p := range params {
			if j > 0 {
				s += ", "
			}
			s += p.Name + ": " + p.Type
		}
		res.CustomEvents = append(res.CustomEvents, s+")")
	}
	return res
}
