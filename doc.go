/*
Package arbor is a state-graph execution engine for LLM agents.

A graph is a closed set of nodes over a shared state. Each node receives a
copy of the state and returns a partial update; per-field reducers merge the
update back (overwrite, append, merge or custom). Edges are fixed, routed by
a function or an expression over the state, or terminal. The engine runs the
graph in super-steps: every node of the frontier runs, the updates merge in
registration order, then the edges resolve the next frontier.

# Key Features

  - Conditional routing and fan-out with declared candidate sets.
  - Tool-invocation loops where failed tool calls become in-band messages.
  - Human-in-the-loop: any node can suspend the run; the checkpoint resumes
    it later, in the same process or another one.
  - Durable runs: checkpoints in memory, on disk or in Redis, optionally encrypted.
  - Multi-agent coordination over a shared mailbox (see package agents).

# Usage

	g, err := graph.NewBuilder("support").
		AddNode("agent", llm.Node(client)).
		AddNode("tools", tools.Node(registry)).
		AddConditionalEdges("agent", tools.Route("tools", graph.End), "tools", graph.End).
		AddEdge("tools", "agent").
		SetEntry("agent").
		Compile()
	if err != nil {
		log.Fatal(err)
	}

	eng, err := arbor.New(g, arbor.WithCheckpointStore(memory.NewStore()))
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Run(ctx, "", domain.State{
		domain.FieldMessages: []domain.Message{domain.UserMessage("Where is my order?")},
	})
	if err != nil {
		log.Fatal(err)
	}

	if res.Suspended() {
		// Ask a human, then continue where the run stopped.
		res, err = eng.ResumeRun(ctx, res.RunID, domain.Update{"approved": true})
	}
*/
package arbor
