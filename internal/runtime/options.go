package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultRecursionLimit bounds the number of super-steps of one run.
const DefaultRecursionLimit = 25

// Checkpointer persists checkpoints at step boundaries.
type Checkpointer func(ctx context.Context, cp *domain.Checkpoint) error

// EngineOption configures the runtime engine.
type EngineOption func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
// Hooks may be called concurrently when a frontier runs in parallel.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithRecursionLimit overrides DefaultRecursionLimit.
func WithRecursionLimit(limit int) EngineOption {
	return func(e *Engine) {
		if limit > 0 {
			e.recursionLimit = limit
		}
	}
}

// WithTimeout bounds the wall-clock duration of one Run or Resume call.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithDefaultErrorNode sets a global fallback node for node failures.
// It overrides the handler declared on the graph.
func WithDefaultErrorNode(nodeID string) EngineOption {
	return func(e *Engine) {
		e.defaultErrorNodeID = nodeID
	}
}

// WithMaxParallel bounds the number of nodes running concurrently in one super-step.
// Values below 1 serialize every frontier.
func WithMaxParallel(n int) EngineOption {
	return func(e *Engine) {
		e.maxParallel = n
	}
}

// WithCheckpointer persists the run after every super-step and when the run stops.
func WithCheckpointer(fn Checkpointer) EngineOption {
	return func(e *Engine) {
		e.checkpointer = fn
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}
