package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	hi, hello := UserMessage("hi"), AssistantMessage("hello")

	tests := []struct {
		name   string
		before State
		after  State
		fields map[string]any
		msgs   []Message
	}{
		{
			name:   "first step reports the whole state",
			after:  State{"topic": "oaks", FieldMessages: []Message{hi}},
			fields: map[string]any{"topic": "oaks"},
			msgs:   []Message{hi},
		},
		{
			name:   "changed and added fields",
			before: State{"attempts": 1, "topic": "oaks"},
			after:  State{"attempts": 2, "topic": "oaks", "done": true},
			fields: map[string]any{"attempts": 2, "done": true},
		},
		{
			name:   "nested map change",
			before: State{"meta": map[string]any{"a": 1}},
			after:  State{"meta": map[string]any{"a": 1, "b": 2}},
			fields: map[string]any{"meta": map[string]any{"a": 1, "b": 2}},
		},
		{
			name:   "appended conversation",
			before: State{FieldMessages: []Message{hi}},
			after:  State{FieldMessages: []Message{hi, hello}},
			msgs:   []Message{hello},
		},
		{
			name:   "rewritten conversation",
			before: State{FieldMessages: []Message{hi}},
			after:  State{FieldMessages: []Message{hello}},
			fields: map[string]any{FieldMessages: []Message{hello}},
		},
		{
			name:   "deleted field",
			before: State{"scratch": "x", "keep": 1},
			after:  State{"keep": 1},
			fields: map[string]any{"scratch": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diff(tt.before, tt.after)
			require.NotNil(t, d)
			assert.Equal(t, tt.fields, d.Fields)
			assert.Equal(t, tt.msgs, d.Messages)
		})
	}
}

func TestDiff_NoChange(t *testing.T) {
	s := State{"a": 1, FieldMessages: []Message{UserMessage("hi")}}
	assert.Nil(t, Diff(s, s.Clone()))
	assert.True(t, (*StateDiff)(nil).IsEmpty())
}

func TestDiff_JSON(t *testing.T) {
	data, err := json.Marshal(Diff(State{"a": 1, "b": 2}, State{"a": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields": {"b": null}}`, string(data))

	data, err = json.Marshal(Diff(State{}, State{FieldMessages: []Message{UserMessage("x")}}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"fields"`)
}
