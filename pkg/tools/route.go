package tools

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// Route returns the conditional edge of a model node: toolsNode while the
// last message requests tools, next otherwise. Declare both as candidates:
//
//	b.AddConditionalEdges("agent", tools.Route("tools", graph.End), "tools", graph.End)
func Route(toolsNode, next string) graph.Router {
	return graph.Choose(func(state domain.State) string {
		if last, ok := state.LastMessage(); ok && last.HasToolCalls() {
			return toolsNode
		}
		return next
	})
}
