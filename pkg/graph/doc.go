/*
Package graph defines the node registry, the edge table and the compiled,
immutable Graph the scheduler walks.

A graph is assembled with a Builder:

	g, err := graph.NewBuilder("chat").
		AddFunc("start", start).
		AddFunc("respond", respond).
		AddEdge("start", "respond").
		SetTerminal("respond").
		SetEntry("start").
		Compile()

Compile validates reachability, dangling edges and routing candidates, and
precomputes which nodes may share a super-step concurrently from their
declared Reads/Writes field sets.
*/
package graph
