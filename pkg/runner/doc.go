/*
Package runner drives a run through its suspensions for a human (or a script)
on the other end of a stream.

The Runner starts or continues a run, shows every suspension through an
IOHandler, reads the reply and resumes until the run finishes or the input
ends. A run left suspended can be picked up later under the same run ID.

# Handlers

  - TextHandler: prompts on a terminal. A line holding a JSON object is used as
    the resume input; any other line is sanitized and stored in the answer
    field and appended to the conversation as a user message.
  - JSONHandler: NDJSON for scripts. Every result is written as one line and
    every input line is a JSON object (or a JSON string, handled like text).

# Usage

	r := runner.New(engine, runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)))
	res, err := r.Run(ctx, "ticket-42", domain.State{"topic": "billing"})
*/
package runner
