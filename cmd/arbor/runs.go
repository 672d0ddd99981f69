package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored runs",
	Long:  `List, inspect and remove the checkpoints kept by the configured store.`,
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ids, err := rt.Sessions.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No stored runs found.")
			return nil
		}
		for _, id := range ids {
			cp, err := rt.Sessions.Load(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(out, "- %s\t%s\t%s\tstep %d\n", id, cp.GraphID, cp.Status, cp.Step)
		}
		return nil
	},
}

var runsInspectCmd = &cobra.Command{
	Use:   "inspect <run-id>",
	Short: "Print the checkpoint of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		cp, err := rt.Sessions.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("loading run %q: %w", args[0], err)
		}
		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var runsRmCmd = &cobra.Command{
	Use:   "rm <run-id>...",
	Short: "Remove one or more runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if len(args) == 0 && !all {
			return fmt.Errorf("name the runs to remove or pass --all")
		}

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ids := args
		if all {
			if ids, err = rt.Sessions.List(cmd.Context()); err != nil {
				return err
			}
		}
		failed := 0
		for _, id := range ids {
			if err := rt.Sessions.Delete(cmd.Context(), id); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed run '%s'\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d runs could not be removed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsLsCmd, runsInspectCmd, runsRmCmd)
	runsRmCmd.Flags().Bool("all", false, "Remove every stored run")
}
