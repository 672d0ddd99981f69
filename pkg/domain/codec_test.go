package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_JSONKeepsNumberKinds(t *testing.T) {
	original := domain.State{
		"count": 2,
		"ratio": 2.0,
		"pi":    3.25,
		"huge":  1e21,
		"nested": map[string]any{
			"n":    7,
			"list": []any{1, 1.5, 4.0, "x"},
		},
		"name": "oak",
		"nil":  nil,
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ratio":2.0`)

	var decoded domain.State
	require.NoError(t, json.Unmarshal(raw, &decoded))
	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.IsType(t, 0, decoded["count"])
	assert.IsType(t, 0.0, decoded["ratio"])
}

func TestState_JSONEdgeCases(t *testing.T) {
	var s domain.State
	require.NoError(t, json.Unmarshal([]byte("null"), &s))
	assert.Nil(t, s)

	raw, err := json.Marshal(domain.State(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	_, err = json.Marshal(domain.State{"bad": math.NaN()})
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"big": 99999999999999999999}`), &s))
	assert.Equal(t, 1e20, s["big"], "integers beyond int fall back to float64")
}
