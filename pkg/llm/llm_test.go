package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelNode_AppendsResponse(t *testing.T) {
	client := llm.NewScripted(domain.Message{Content: "hello"})
	node := llm.Node(client, llm.WithSystemPrompt("be brief"), llm.WithName("bot"))

	update, err := node.Invoke(context.Background(), domain.State{
		domain.FieldMessages: []domain.Message{domain.UserMessage("hi")},
	})
	require.NoError(t, err)

	msgs := update[domain.FieldMessages].([]domain.Message)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "bot", msgs[0].Name)
	assert.Equal(t, "hello", msgs[0].Content)

	prompts := client.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, []domain.Message{domain.SystemMessage("be brief"), domain.UserMessage("hi")}, prompts[0])
}

func TestModelNode_RetrievedContext(t *testing.T) {
	client := llm.NewScripted(domain.AssistantMessage("42"))
	node := llm.Node(client, llm.WithRetrievedContext())

	_, err := node.Invoke(context.Background(), domain.State{
		domain.FieldMessages: []domain.Message{domain.UserMessage("answer?")},
		domain.FieldContext:  []domain.Passage{{ID: "p1", Text: "The answer is 42."}},
	})
	require.NoError(t, err)

	prompt := client.Prompts()[0]
	require.Len(t, prompt, 2)
	assert.Equal(t, domain.RoleSystem, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "[1] The answer is 42.")
}

func TestModelNode_FailureIsNodeExecutionError(t *testing.T) {
	client := llm.ClientFunc(func(context.Context, []domain.Message) (domain.Message, error) {
		return domain.Message{}, errors.New("rate limited")
	})

	g, err := graph.NewBuilder("model").
		AddNode("agent", llm.Node(client)).
		SetTerminal("agent").
		SetEntry("agent").
		Compile()
	require.NoError(t, err)

	engine, err := runtime.NewEngine(g)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), "r1", domain.State{})
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)

	var nee *domain.NodeExecutionError
	require.True(t, errors.As(err, &nee))
	assert.Equal(t, "agent", nee.NodeID)
	assert.ErrorContains(t, err, "rate limited")

	spec, _ := g.Registry().Lookup("agent")
	assert.Equal(t, graph.KindModel, spec.Kind)
}

func TestScripted_Exhausted(t *testing.T) {
	client := llm.NewScripted()
	_, err := client.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, llm.ErrScriptExhausted)
}
