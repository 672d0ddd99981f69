package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// Engine is the surface driving adapters (HTTP, MCP, CLI) use to execute a graph.
// It is implemented by arbor.Engine.
type Engine interface {
	// GraphID identifies the compiled graph.
	GraphID() string

	// Graph returns the compiled graph for introspection and export.
	Graph() *graph.Graph

	// Run starts a new run. An empty runID asks the engine to generate one.
	Run(ctx context.Context, runID string, input domain.State) (*domain.Result, error)

	// ResumeRun continues a stored run, merging input into its state first.
	ResumeRun(ctx context.Context, runID string, input domain.Update) (*domain.Result, error)

	// Checkpoint returns the stored checkpoint of a run.
	Checkpoint(ctx context.Context, runID string) (*domain.Checkpoint, error)

	// Runs lists the IDs of stored runs.
	Runs(ctx context.Context) ([]string, error)
}
