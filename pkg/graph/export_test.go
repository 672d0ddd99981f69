package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/arbor/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolsNode struct{ graph.NodeFunc }

func (toolsNode) Kind() graph.Kind { return graph.KindTools }

func exportGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("agent-loop").
		AddFunc("start", noop).
		AddFunc("call-model", noop, graph.WithKind(graph.KindModel)).
		AddNode("tools", toolsNode{graph.NodeFunc(noop)}).
		AddFunc("fallback", noop).
		AddEdge("start", "call-model").
		AddBranches("call-model", graph.When(`needs_tool == "yes"`, "tools"), graph.Otherwise(graph.End)).
		AddEdge("tools", "call-model").
		OnError("call-model", "fallback").
		SetTerminal("fallback").
		InterruptBefore("tools").
		SetEntry("start").
		Compile()
	require.NoError(t, err)
	return g
}

func TestMermaid(t *testing.T) {
	g := exportGraph(t)
	got := graph.Mermaid(g, &graph.Overlay{VisitedNodes: []string{"start"}, CurrentNodes: []string{"call-model"}})

	for _, want := range []string{
		"graph TD",
		`start(("start"))`,
		`call_model(["call-model"])`,
		`tools[["tools <br/> ⏸ interrupt"]]`,
		`call_model -. "needs_tool == 'yes'" .-> tools`,
		`call_model -. "otherwise" .-> __end__`,
		"call_model -. ⚡ error .-> fallback",
		"class start visited;",
		"class call_model current;",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Mermaid() = \n%v\nWant substring: %v", got, want)
		}
	}
}

func TestDOT(t *testing.T) {
	g := exportGraph(t)
	got, err := graph.DOT(g)
	require.NoError(t, err)

	assert.Contains(t, got, `digraph "agent-loop"`)
	assert.Contains(t, got, `"start"->"call-model"`)
	assert.Contains(t, got, `"tools"->"call-model"`)
	assert.Contains(t, got, `shape=component`)
	assert.Contains(t, got, `"__end__"`)
}
