package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/arbor/pkg/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [graph]",
	Short: "Export the graph visualization",
	Long:  `Compiles a graph definition and prints it as a Mermaid flowchart, Graphviz DOT or JSON.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		id, err := rt.ResolveGraphID(args)
		if err != nil {
			return err
		}
		eng, err := rt.Engine(id)
		if err != nil {
			return err
		}
		g := eng.Graph()

		out := cmd.OutOrStdout()
		switch format {
		case "mermaid":
			fmt.Fprint(out, graph.Mermaid(g, nil))
		case "dot":
			dot, err := graph.DOT(g)
			if err != nil {
				return err
			}
			fmt.Fprint(out, dot)
		case "json":
			nodes := make([]map[string]any, 0, len(g.Nodes()))
			for _, spec := range g.Nodes() {
				node := map[string]any{"id": spec.ID, "kind": spec.Kind}
				if e, ok := g.Edge(spec.ID); ok {
					node["next"] = e.Targets()
				}
				nodes = append(nodes, node)
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"id":       g.ID(),
				"entry":    g.Entry(),
				"nodes":    nodes,
				"warnings": g.Warnings(),
			})
		default:
			return fmt.Errorf("unknown format %q (mermaid, dot or json)", format)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "f", "mermaid", "Output format: mermaid, dot or json")
}
