package tests

import (
	"sort"
	"testing"

	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GraphLoaderContractTest checks a ports.GraphLoader seeded with graphs,
// keyed by ID with their raw definitions.
func GraphLoaderContractTest(t *testing.T, loader ports.GraphLoader, graphs map[string][]byte) {
	t.Helper()

	want := make([]string, 0, len(graphs))
	for id := range graphs {
		want = append(want, id)
	}
	sort.Strings(want)

	t.Run("GetGraph", func(t *testing.T) {
		for _, id := range want {
			raw, err := loader.GetGraph(id)
			require.NoError(t, err, "graph %s", id)
			assert.Equal(t, string(graphs[id]), string(raw))
		}
	})

	t.Run("GetGraph_Unknown", func(t *testing.T) {
		_, err := loader.GetGraph("no-such-graph")
		assert.Error(t, err)
	})

	t.Run("ListGraphs_Sorted", func(t *testing.T) {
		ids, err := loader.ListGraphs()
		require.NoError(t, err)
		assert.Equal(t, want, ids)
	})
}
