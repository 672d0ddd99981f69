package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [graph...]",
	Short: "Check graph definitions for consistency",
	Long: `Builds every named graph (all definitions in --dir when none is named)
and reports unknown node types, dangling edges, unreachable nodes and
routing targets that are never declared.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ids := args
		if len(ids) == 0 {
			if ids, err = rt.Loader.ListGraphs(); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, id := range ids {
			if _, err := rt.Graph(id); err != nil {
				failed++
				fmt.Fprintf(out, "❌ %s: %v\n", id, err)
				continue
			}
			fmt.Fprintf(out, "✅ %s\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d graphs are invalid", failed, len(ids))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
