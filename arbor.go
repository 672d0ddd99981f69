package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
	"github.com/google/uuid"
)

// ErrNoCheckpointStore is returned by operations on stored runs when the
// engine was built without a checkpoint store.
var ErrNoCheckpointStore = errors.New("engine has no checkpoint store")

// Engine is the high-level entry point for the library.
// It wraps the internal runtime, persists checkpoints and serializes
// concurrent access to one run through a session manager.
type Engine struct {
	runtime     *runtime.Engine
	sessions    *session.Manager
	store       ports.CheckpointStore
	hooks       []domain.LifecycleHooks
	runtimeOpts []runtime.EngineOption
	logger      *slog.Logger
}

var _ ports.Engine = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. It may be given more
// than once; the hooks are composed in order.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks)
	}
}

// WithMetrics records Prometheus metrics for every run.
func WithMetrics(m *observability.Metrics) Option {
	return WithLifecycleHooks(m.Hooks())
}

// WithCheckpointStore persists a checkpoint after every super-step and at
// the end of every run.
func WithCheckpointStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithSessionManager sets the manager guarding stored runs. Its store is
// used as the checkpoint store.
func WithSessionManager(m *session.Manager) Option {
	return func(e *Engine) {
		e.sessions = m
	}
}

// WithRecursionLimit bounds the number of super-steps of one run.
func WithRecursionLimit(limit int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithRecursionLimit(limit))
	}
}

// WithTimeout bounds the wall-clock duration of one Run or Resume call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithTimeout(d))
	}
}

// WithDefaultErrorNode routes failures of nodes without their own error
// successor to nodeID.
func WithDefaultErrorNode(nodeID string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithDefaultErrorNode(nodeID))
	}
}

// WithMaxParallel bounds how many independent nodes of one frontier run at once.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxParallel(n))
	}
}

// New builds an engine for a compiled graph.
func New(g *graph.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is required")
	}
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.sessions != nil {
		eng.store = eng.sessions.Store()
	} else if eng.store != nil {
		eng.sessions = session.NewManager(eng.store, session.WithLogger(eng.logger))
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(domain.ComposeHooks(eng.hooks...)),
	}
	if eng.store != nil {
		store := eng.store
		runtimeOpts = append(runtimeOpts, runtime.WithCheckpointer(store.Save))
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)

	rt, err := runtime.NewEngine(g, runtimeOpts...)
	if err != nil {
		return nil, err
	}
	eng.runtime = rt
	return eng, nil
}

// GraphID identifies the compiled graph.
func (e *Engine) GraphID() string {
	return e.runtime.Graph().ID()
}

// Graph returns the compiled graph.
func (e *Engine) Graph() *graph.Graph {
	return e.runtime.Graph()
}

// Run starts a new run. An empty runID is replaced by a random UUID.
// With a checkpoint store the run holds the session lock of its ID while it executes.
func (e *Engine) Run(ctx context.Context, runID string, input domain.State) (*domain.Result, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	if e.sessions == nil {
		return e.runtime.Run(ctx, runID, input)
	}

	var res *domain.Result
	err := e.sessions.WithLock(ctx, runID, func(ctx context.Context) error {
		var err error
		res, err = e.runtime.Run(ctx, runID, input)
		return err
	})
	return res, err
}

// Resume continues a run from a checkpoint held by the caller.
func (e *Engine) Resume(ctx context.Context, cp *domain.Checkpoint, input domain.Update) (*domain.Result, error) {
	return e.runtime.Resume(ctx, cp, input)
}

// ResumeRun loads the stored checkpoint of runID and resumes it under the
// session lock, so concurrent resumes of one run never overlap.
// A run that already terminated returns its stored result.
func (e *Engine) ResumeRun(ctx context.Context, runID string, input domain.Update) (*domain.Result, error) {
	if e.sessions == nil {
		return nil, ErrNoCheckpointStore
	}

	var res *domain.Result
	err := e.sessions.WithLock(ctx, runID, func(ctx context.Context) error {
		cp, err := e.store.Load(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load run %q: %w", runID, err)
		}
		res, err = e.runtime.Resume(ctx, cp, input)
		return err
	})
	return res, err
}

// Checkpoint returns the stored checkpoint of a run.
func (e *Engine) Checkpoint(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	if e.store == nil {
		return nil, ErrNoCheckpointStore
	}
	return e.store.Load(ctx, runID)
}

// Runs lists the stored runs.
func (e *Engine) Runs(ctx context.Context) ([]string, error) {
	if e.store == nil {
		return nil, ErrNoCheckpointStore
	}
	return e.store.List(ctx)
}
