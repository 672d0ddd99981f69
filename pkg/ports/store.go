package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// CheckpointStore defines the interface for persisting run checkpoints.
// This allows for durable execution, enabling suspend & resume across processes.
type CheckpointStore interface {
	// Save persists the checkpoint under its RunID.
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Load retrieves the checkpoint of a run.
	// Returns domain.ErrCheckpointNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Checkpoint, error)

	// Delete removes the checkpoint of a run.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of all stored runs.
	List(ctx context.Context) ([]string, error)
}
