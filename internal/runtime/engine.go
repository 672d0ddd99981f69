package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// Engine is the super-step scheduler of a compiled graph.
// It is stateless between calls: everything about a run lives in its Checkpoint.
type Engine struct {
	graph              *graph.Graph
	logger             *slog.Logger
	hooks              domain.LifecycleHooks
	recursionLimit     int
	timeout            time.Duration
	defaultErrorNodeID string
	maxParallel        int
	checkpointer       Checkpointer
	now                func() time.Time
}

// NewEngine creates an engine for g.
func NewEngine(g *graph.Graph, opts ...EngineOption) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is required")
	}
	e := &Engine{
		graph:              g,
		logger:             logging.NewNop(),
		recursionLimit:     DefaultRecursionLimit,
		defaultErrorNodeID: g.DefaultErrorHandler(),
		maxParallel:        4,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultErrorNodeID != "" {
		if _, ok := g.Registry().Lookup(e.defaultErrorNodeID); !ok {
			return nil, &domain.DefinitionError{Problems: []string{fmt.Sprintf("default error node %q is not registered", e.defaultErrorNodeID)}}
		}
	}
	e.logger = e.logger.With("graph", g.ID())
	return e, nil
}

// Graph returns the compiled graph the engine executes.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Start creates the READY checkpoint of a new run.
func (e *Engine) Start(runID string, input domain.State) *domain.Checkpoint {
	state := input.Clone()
	return &domain.Checkpoint{
		RunID:     runID,
		GraphID:   e.graph.ID(),
		Status:    domain.StatusReady,
		Frontier:  []string{e.graph.Entry()},
		State:     state,
		UpdatedAt: e.now(),
	}
}

// Run executes a new run from the entry node until it terminates, suspends or fails.
// A non-nil Result is returned in every case where the run started.
// Typed fields of input decoded from JSON are restored to their declared types.
func (e *Engine) Run(ctx context.Context, runID string, input domain.State) (*domain.Result, error) {
	state, err := e.graph.Schema().Normalize(input)
	if err != nil {
		return nil, fmt.Errorf("invalid input of run %q: %w", runID, err)
	}
	return e.execute(ctx, e.Start(runID, state))
}

// Resume continues a run from its checkpoint, merging input into the state first.
// Resuming a terminated checkpoint returns its stored result without executing anything.
func (e *Engine) Resume(ctx context.Context, cp *domain.Checkpoint, input domain.Update) (*domain.Result, error) {
	if cp == nil {
		return nil, fmt.Errorf("checkpoint is required")
	}
	if cp.GraphID != "" && cp.GraphID != e.graph.ID() {
		return nil, fmt.Errorf("checkpoint of run %q belongs to graph %q, not %q", cp.RunID, cp.GraphID, e.graph.ID())
	}

	switch cp.Status {
	case domain.StatusTerminated:
		return resultOf(cp.Clone()), nil
	case domain.StatusFailed:
		return resultOf(cp.Clone()), fmt.Errorf("%w: %s", domain.ErrRunFailed, cp.Error)
	case domain.StatusReady, domain.StatusRunning, domain.StatusSuspended:
	default:
		return nil, fmt.Errorf("%w: status %q", domain.ErrNotSuspended, cp.Status)
	}

	next := cp.Clone()
	schema := e.graph.Schema()
	state, err := schema.Normalize(next.State)
	if err != nil {
		return nil, fmt.Errorf("failed to restore state of run %q: %w", cp.RunID, err)
	}
	if len(input) > 0 {
		typed, err := schema.Normalize(domain.State(input))
		if err != nil {
			return resultOf(next), fmt.Errorf("invalid input of run %q: %w", cp.RunID, err)
		}
		state, err = schema.Apply(state, domain.Update(typed))
		if err != nil {
			return resultOf(next), err
		}
	}
	next.State = state
	return e.execute(ctx, next)
}

func (e *Engine) execute(ctx context.Context, cp *domain.Checkpoint) (*domain.Result, error) {
	started := e.now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	if cp.State == nil {
		cp.State = domain.State{}
	}

	logger := e.logger.With("run_id", cp.RunID)
	ctx = logging.WithLogger(ctx, logger)
	ctx = domain.WithHooks(ctx, e.hooks)
	ctx = domain.WithRunID(ctx, cp.RunID)

	logger.Debug("run started", "status", cp.Status, "step", cp.Step, "frontier", cp.Frontier)
	cp.Status = domain.StatusRunning

	r := &run{engine: e, cp: cp, logger: logger}
	err := r.loop(ctx)

	cp.UpdatedAt = e.now()
	if saveErr := e.save(ctx, cp); saveErr != nil && err == nil {
		err = fmt.Errorf("failed to persist checkpoint: %w", saveErr)
	}

	res := resultOf(cp.Clone())
	e.emitRunEnd(ctx, res, e.now().Sub(started), err)
	logger.Info("run stopped", "status", res.Status, "steps", res.Steps, "nodes", len(res.Trace))
	return res, err
}

func (e *Engine) save(ctx context.Context, cp *domain.Checkpoint) error {
	if e.checkpointer == nil {
		return nil
	}
	if err := e.checkpointer(context.WithoutCancel(ctx), cp.Clone()); err != nil {
		e.logger.Warn("failed to save checkpoint", "run_id", cp.RunID, "step", cp.Step, "error", err)
		return err
	}
	return nil
}

// errorHandler returns the node failures of id are routed to, or "".
func (e *Engine) errorHandler(id string) string {
	if handler, ok := e.graph.ErrorHandler(id); ok {
		return handler
	}
	if e.defaultErrorNodeID != "" && e.defaultErrorNodeID != id {
		return e.defaultErrorNodeID
	}
	return ""
}

// batches partitions an ordered frontier into groups that may run concurrently.
// Groups preserve registration order, so merging group by group keeps the tie-break.
func (e *Engine) batches(ids []string) [][]string {
	var out [][]string
	for _, id := range ids {
		if n := len(out); n > 0 && e.maxParallel > 1 && e.fits(out[n-1], id) {
			out[n-1] = append(out[n-1], id)
			continue
		}
		out = append(out, []string{id})
	}
	return out
}

func (e *Engine) fits(batch []string, id string) bool {
	for _, other := range batch {
		if !e.graph.CanRunParallel(other, id) {
			return false
		}
	}
	return true
}

func resultOf(cp *domain.Checkpoint) *domain.Result {
	return &domain.Result{
		RunID:      cp.RunID,
		Status:     cp.Status,
		State:      cp.State,
		Trace:      cp.Trace,
		Steps:      cp.Step,
		Checkpoint: cp,
	}
}
