package tools_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callState(calls ...domain.ToolCall) domain.State {
	return domain.State{domain.FieldMessages: []domain.Message{
		domain.UserMessage("do things"),
		{Role: domain.RoleAssistant, ToolCalls: calls},
	}}
}

func newRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
	reg.Register("fail", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("backend down")
	})
	reg.Register("explode", func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	})
	reg.Register("lookup", func(context.Context, map[string]any) (any, error) {
		return map[string]any{"city": "Lisbon", "temp": 21}, nil
	})
	return reg
}

func messagesOf(t *testing.T, update domain.Update) []domain.Message {
	t.Helper()
	msgs, ok := update[domain.FieldMessages].([]domain.Message)
	require.True(t, ok, "update should carry messages")
	return msgs
}

func TestToolNode_NoCalls(t *testing.T) {
	node := tools.Node(newRegistry())
	update, err := node.Invoke(context.Background(), domain.State{
		domain.FieldMessages: []domain.Message{domain.AssistantMessage("done")},
	})
	require.NoError(t, err)
	assert.Empty(t, update)
}

func TestToolNode_UnregisteredTool(t *testing.T) {
	node := tools.Node(newRegistry())
	update, err := node.Invoke(context.Background(), callState(
		domain.ToolCall{ID: "c1", Name: "teleport", Args: map[string]any{}},
	))
	require.NoError(t, err, "a missing tool must not abort the run")

	msgs := messagesOf(t, update)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleTool, msgs[0].Role)
	assert.Equal(t, "c1", msgs[0].ToolCallID)
	assert.Equal(t, domain.ErrorKindToolNotFound, msgs[0].ErrorKind)
	assert.Contains(t, msgs[0].Content, "teleport")
}

func TestToolNode_OutcomesInCallOrder(t *testing.T) {
	tests := []struct {
		name     string
		parallel int
	}{
		{"sequential", 1},
		{"parallel", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := tools.Node(newRegistry(), tools.WithParallelCalls(tt.parallel))
			update, err := node.Invoke(context.Background(), callState(
				domain.ToolCall{ID: "a", Name: "echo", Args: map[string]any{"text": "hello"}},
				domain.ToolCall{ID: "b", Name: "fail"},
				domain.ToolCall{ID: "c", Name: "explode"},
				domain.ToolCall{ID: "d", Name: "echo", RawArgs: `{"text": "raw"}`},
				domain.ToolCall{ID: "e", Name: "echo", RawArgs: `{not json`},
				domain.ToolCall{ID: "f", Name: "lookup"},
			))
			require.NoError(t, err)

			msgs := messagesOf(t, update)
			require.Len(t, msgs, 6)
			ids := make([]string, len(msgs))
			for i, m := range msgs {
				ids[i] = m.ToolCallID
			}
			assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, ids)

			assert.Equal(t, "hello", msgs[0].Content)
			assert.False(t, msgs[0].IsError())

			assert.Equal(t, domain.ErrorKindToolExecution, msgs[1].ErrorKind)
			assert.Contains(t, msgs[1].Content, "backend down")

			assert.Equal(t, domain.ErrorKindToolExecution, msgs[2].ErrorKind)
			assert.Contains(t, msgs[2].Content, "kaboom")

			assert.Equal(t, "raw", msgs[3].Content)

			assert.Equal(t, domain.ErrorKindToolExecution, msgs[4].ErrorKind)
			assert.Contains(t, msgs[4].Content, "malformed arguments")

			assert.JSONEq(t, `{"city":"Lisbon","temp":21}`, msgs[5].Content)
		})
	}
}

func TestToolNode_AssignsMissingCallIDs(t *testing.T) {
	node := tools.Node(newRegistry())
	update, err := node.Invoke(context.Background(), callState(
		domain.ToolCall{Name: "echo", Args: map[string]any{"text": "x"}},
	))
	require.NoError(t, err)
	msgs := messagesOf(t, update)
	assert.NotEmpty(t, msgs[0].ToolCallID)
}

func TestToolNode_ParallelCallsOverlap(t *testing.T) {
	var running, peak atomic.Int32
	var mu sync.Mutex
	reg := tools.NewRegistry()
	reg.Register("slow", func(context.Context, map[string]any) (any, error) {
		n := running.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return "ok", nil
	})

	node := tools.Node(reg, tools.WithParallelCalls(3))
	_, err := node.Invoke(context.Background(), callState(
		domain.ToolCall{ID: "1", Name: "slow"},
		domain.ToolCall{ID: "2", Name: "slow"},
		domain.ToolCall{ID: "3", Name: "slow"},
	))
	require.NoError(t, err)
	assert.Greater(t, peak.Load(), int32(1))
}

func TestToolNode_CallTimeout(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register("hang", func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	node := tools.Node(reg, tools.WithCallTimeout(10*time.Millisecond))
	update, err := node.Invoke(context.Background(), callState(domain.ToolCall{ID: "h", Name: "hang"}))
	require.NoError(t, err)
	msgs := messagesOf(t, update)
	assert.Equal(t, domain.ErrorKindToolExecution, msgs[0].ErrorKind)
	assert.Contains(t, msgs[0].Content, "deadline exceeded")
}

func TestToolNode_EmitsHooks(t *testing.T) {
	var mu sync.Mutex
	var events []string
	hooks := domain.LifecycleHooks{
		OnToolCall: func(_ context.Context, e *domain.ToolEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "call:"+e.ToolName+":"+e.RunID+":"+e.NodeID)
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			mu.Lock()
			defer mu.Unlock()
			if e.IsError {
				events = append(events, "error:"+e.ToolName)
				return
			}
			events = append(events, "return:"+e.ToolName)
		},
	}
	ctx := domain.WithHooks(domain.WithRunID(context.Background(), "run-7"), hooks)
	ctx = graph.WithNodeID(ctx, "tools")

	node := tools.Node(newRegistry())
	_, err := node.Invoke(ctx, callState(
		domain.ToolCall{ID: "a", Name: "echo", Args: map[string]any{"text": "x"}},
		domain.ToolCall{ID: "b", Name: "nope"},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"call:echo:run-7:tools", "return:echo",
		"call:nope:run-7:tools", "error:nope",
	}, events)
}

func TestRoute(t *testing.T) {
	router := tools.Route("tools", graph.End)

	targets, err := router.Route(context.Background(), callState(domain.ToolCall{Name: "echo"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"tools"}, targets)

	targets, err = router.Route(context.Background(), domain.State{
		domain.FieldMessages: []domain.Message{domain.AssistantMessage("final")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{graph.End}, targets)
}

// A model that asks for a tool on the first turn and answers with the result on the second.
func TestToolLoop_EndToEnd(t *testing.T) {
	model := graph.NodeFunc(func(_ context.Context, s domain.State) (domain.Update, error) {
		last, _ := s.LastMessage()
		if last.Role == domain.RoleTool {
			return domain.Update{domain.FieldMessages: []domain.Message{
				domain.AssistantMessage("the tool said " + last.Content),
			}}, nil
		}
		return domain.Update{domain.FieldMessages: []domain.Message{{
			Role:      domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{{ID: "call-1", Name: "echo", RawArgs: `{"text":"pong"}`}},
		}}}, nil
	})

	g, err := graph.NewBuilder("tool-loop").
		AddNode("agent", model).
		AddNode("tools", tools.Node(newRegistry())).
		AddConditionalEdges("agent", tools.Route("tools", graph.End), "tools", graph.End).
		AddEdge("tools", "agent").
		SetEntry("agent").
		Compile()
	require.NoError(t, err)

	engine, err := runtime.NewEngine(g)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), "loop-1", domain.State{
		domain.FieldMessages: []domain.Message{domain.UserMessage("ping")},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, []string{"agent", "tools", "agent"}, res.Trace.Path())

	last, _ := res.State.LastMessage()
	assert.Equal(t, "the tool said pong", last.Content)

	spec, ok := g.Registry().Lookup("tools")
	require.True(t, ok)
	assert.Equal(t, graph.KindTools, spec.Kind)
}
