package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/runner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [graph]",
	Short: "Run a graph, answering its suspensions interactively",
	Long: `Starts a run of the graph, or continues it when --run-id names a suspended
run. Every suspension prints its payloads and waits for a reply: a JSON object
is merged into the state as is, any other line is stored in --answer-field and
appended to the conversation. "quit" (or end of input) leaves the run
suspended so it can be continued later.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		runID, _ := flags.GetString("run-id")
		rawInput, _ := flags.GetString("input")
		message, _ := flags.GetString("message")
		jsonMode, _ := flags.GetBool("json")
		headless, _ := flags.GetBool("headless")
		answerField, _ := flags.GetString("answer-field")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		id, err := rt.ResolveGraphID(args)
		if err != nil {
			return err
		}
		eng, err := rt.Graph(id)
		if err != nil {
			return err
		}

		input, err := cli.ReadInput(rawInput)
		if err != nil {
			return err
		}
		if message != "" {
			input[domain.FieldMessages] = []domain.Message{domain.UserMessage(message)}
		}
		if runID == "" {
			runID = uuid.NewString()
		}

		var handler runner.IOHandler
		if jsonMode {
			h := runner.NewJSONHandler(cmd.InOrStdin(), cmd.OutOrStdout())
			h.AnswerField = answerField
			handler = h
		} else {
			handler = runner.NewTextHandler(cmd.InOrStdin(), cmd.OutOrStdout(), runner.WithAnswerField(answerField))
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		r := runner.New(eng,
			runner.WithHandler(handler),
			runner.WithHeadless(headless),
			runner.WithLogger(rt.Logger),
		)
		res, err := r.Run(ctx, runID, input)
		if ctx.Signal() != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), ">>> Interrupted (%v). Continue with --run-id %s\n", ctx.Signal(), runID)
			return nil
		}
		if err != nil {
			return err
		}
		if res.Status == domain.StatusFailed {
			return errors.New("run failed")
		}
		if res.Suspended() && !jsonMode {
			fmt.Fprintf(cmd.OutOrStdout(), ">>> Continue with: arbor run %s --run-id %s\n", id, res.RunID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("run-id", "", "Run identifier; continues the run when it is suspended (default: new UUID)")
	runCmd.Flags().StringP("input", "i", "", "Initial state as JSON or YAML, or @file")
	runCmd.Flags().StringP("message", "m", "", "User message starting the conversation")
	runCmd.Flags().Bool("json", false, "NDJSON output and input")
	runCmd.Flags().Bool("headless", false, "Stop at the first suspension instead of prompting")
	runCmd.Flags().String("answer-field", runner.DefaultAnswerField, "State field receiving plain text replies")
}
