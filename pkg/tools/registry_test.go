package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Execute(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})

	out, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = reg.Execute(context.Background(), "missing", nil)
	var notFound *domain.ToolNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.Name)
}

func TestRegistry_Tools(t *testing.T) {
	reg := tools.NewRegistry()
	reg.RegisterTool(domain.Tool{Name: "weather", Description: "Current weather"}, nil)
	reg.Register("clock", nil)

	list := reg.Tools()
	require.Len(t, list, 2)
	assert.Equal(t, "clock", list[0].Name)
	assert.Equal(t, "Current weather", list[1].Description)
}

func TestTyped(t *testing.T) {
	type sumArgs struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	sum := tools.Typed(func(_ context.Context, args sumArgs) (any, error) {
		return args.A + args.B, nil
	})

	// JSON numbers arrive as float64; weak decoding handles them.
	out, err := sum(context.Background(), map[string]any{"a": 2.0, "b": "3"})
	require.NoError(t, err)
	assert.Equal(t, 5, out)

	_, err = sum(context.Background(), map[string]any{"a": "two"})
	assert.ErrorContains(t, err, "invalid arguments")
}
