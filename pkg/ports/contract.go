package ports

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	runID := "contract-test-run-" + time.Now().Format("20060102150405")

	newCheckpoint := func(id string) *domain.Checkpoint {
		return &domain.Checkpoint{
			RunID:       id,
			GraphID:     "contract",
			Status:      domain.StatusSuspended,
			Step:        3,
			Frontier:    []string{"approve", "notify"},
			Completed:   []string{"notify"},
			Interrupted: []string{"approve"},
			Payloads:    map[string]any{"approve": "ok?"},
			State: domain.State{
				"foo":                "bar",
				"count":              42,
				"ratio":              0.5,
				"whole":              2.0,
				"nested":             map[string]any{"n": 1},
				domain.FieldMessages: []domain.Message{domain.UserMessage("hi")},
			},
			UpdatedAt: time.Now().UTC().Truncate(time.Second),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		cp := newCheckpoint(runID)

		err := store.Save(ctx, cp)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, cp.RunID, loaded.RunID)
		assert.Equal(t, cp.GraphID, loaded.GraphID)
		assert.Equal(t, cp.Status, loaded.Status)
		assert.Equal(t, cp.Step, loaded.Step)
		assert.Equal(t, cp.Frontier, loaded.Frontier)
		assert.Equal(t, cp.Completed, loaded.Completed)
		assert.Equal(t, cp.Interrupted, loaded.Interrupted)
		assert.True(t, cp.UpdatedAt.Equal(loaded.UpdatedAt))
		assert.Equal(t, "bar", loaded.State["foo"])
		assert.Equal(t, 42, loaded.State["count"], "undeclared ints stay ints")
		assert.Equal(t, 0.5, loaded.State["ratio"])
		assert.Equal(t, 2.0, loaded.State["whole"], "whole floats stay floats")
		assert.Equal(t, map[string]any{"n": 1}, loaded.State["nested"])
		assert.Len(t, loaded.State.Messages(), 1)
	})

	t.Run("Save overwrites", func(t *testing.T) {
		cp := newCheckpoint(runID)
		cp.Status = domain.StatusTerminated
		cp.Frontier = nil
		require.NoError(t, store.Save(ctx, cp))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusTerminated, loaded.Status)
		assert.Empty(t, loaded.Frontier)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, newCheckpoint(runID))
		require.NoError(t, err)

		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Load after Delete should return ErrCheckpointNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		require.NoError(t, store.Save(ctx, newCheckpoint(id1)))
		require.NoError(t, store.Save(ctx, newCheckpoint(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		sort.Strings(runs)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
