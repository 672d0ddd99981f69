package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// run holds the mutable bookkeeping of one Run or Resume call.
// The trace lives on the checkpoint so it accumulates across resumes.
type run struct {
	engine *Engine
	cp     *domain.Checkpoint
	logger *slog.Logger
}

// outcome is the result of one node invocation, merged after its batch completes.
type outcome struct {
	id        string
	update    domain.Update
	err       error
	interrupt *graph.InterruptError
	started   time.Time
	duration  time.Duration
}

func (r *run) loop(ctx context.Context) error {
	cp := r.cp
	for {
		if len(cp.Frontier) == 0 {
			cp.Status = domain.StatusTerminated
			return nil
		}
		if err := ctx.Err(); err != nil {
			return r.fail(fmt.Errorf("run cancelled: %w", err))
		}

		midStep := len(cp.Completed) > 0 || len(cp.Interrupted) > 0
		if !midStep && cp.Step >= r.engine.recursionLimit {
			return r.fail(&domain.RecursionLimitError{Limit: r.engine.recursionLimit, Trace: append(domain.Trace(nil), cp.Trace...)})
		}

		suspended, err := r.step(ctx)
		if err != nil {
			return r.fail(err)
		}
		if suspended {
			cp.Status = domain.StatusSuspended
			r.logger.Info("run suspended", "step", cp.Step, "interrupted", cp.Interrupted)
			return nil
		}

		if err := r.advance(ctx); err != nil {
			return r.fail(err)
		}
		if err := r.engine.save(ctx, cp); err != nil {
			return r.fail(fmt.Errorf("failed to persist checkpoint at step %d: %w", cp.Step, err))
		}
	}
}

func (r *run) fail(err error) error {
	r.cp.Status = domain.StatusFailed
	r.cp.Error = err.Error()
	r.logger.Error("run failed", "step", r.cp.Step, "error", err)
	return err
}

// step executes the pending nodes of the current frontier.
// It reports true when at least one node asked to suspend.
func (r *run) step(ctx context.Context) (bool, error) {
	cp := r.cp
	g := r.engine.graph

	done := toSet(cp.Completed)
	acknowledged := toSet(cp.Interrupted)
	held := toSet(cp.Held)
	resuming := make(map[string]bool, len(acknowledged))
	for id := range acknowledged {
		resuming[id] = !held[id]
	}

	var pending []string
	for _, id := range cp.Frontier {
		if !done[id] {
			pending = append(pending, id)
		}
	}

	var before []string
	for _, id := range pending {
		if g.InterruptsBefore(id) && !acknowledged[id] {
			before = append(before, id)
		}
	}
	if len(before) > 0 {
		cp.Interrupted = before
		cp.Held = before
		return true, nil
	}

	var interrupted []string
	for _, batch := range r.engine.batches(pending) {
		outcomes, err := r.invokeBatch(ctx, batch, resuming)
		if err != nil {
			return false, err
		}
		for _, o := range outcomes {
			if o.interrupt != nil {
				interrupted = append(interrupted, o.id)
				if cp.Payloads == nil {
					cp.Payloads = make(map[string]any)
				}
				cp.Payloads[o.id] = o.interrupt.Payload
				continue
			}
			if err := r.merge(o); err != nil {
				return false, err
			}
			cp.Completed = append(cp.Completed, o.id)
		}
	}

	cp.Interrupted = interrupted
	cp.Held = nil
	return len(interrupted) > 0, nil
}

// invokeBatch runs a batch against one snapshot. Batches of more than one node
// only contain nodes with disjoint declared fields.
func (r *run) invokeBatch(ctx context.Context, batch []string, resuming map[string]bool) ([]outcome, error) {
	snapshot := r.cp.State
	outcomes := make([]outcome, len(batch))

	if len(batch) == 1 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled: %w", err)
		}
		outcomes[0] = r.invoke(ctx, batch[0], snapshot, resuming[batch[0]])
		return outcomes, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}
	var eg errgroup.Group
	eg.SetLimit(r.engine.maxParallel)
	for i, id := range batch {
		eg.Go(func() error {
			outcomes[i] = r.invoke(ctx, id, snapshot, resuming[id])
			return nil
		})
	}
	_ = eg.Wait()
	return outcomes, nil
}

func (r *run) invoke(ctx context.Context, id string, state domain.State, resuming bool) outcome {
	step := r.cp.Step
	nodeCtx := graph.WithNodeID(logging.WithLogger(ctx, r.logger.With("node", id)), id)
	if resuming {
		nodeCtx = graph.WithResuming(nodeCtx)
	}

	r.engine.emitNodeEnter(nodeCtx, id, step)
	started := r.engine.now()
	update, err := r.engine.graph.Registry().Invoke(nodeCtx, id, state.Clone())
	duration := r.engine.now().Sub(started)
	r.engine.emitNodeLeave(nodeCtx, id, step, duration, err)

	o := outcome{id: id, update: update, started: started, duration: duration}
	var ie *graph.InterruptError
	if errors.As(err, &ie) {
		o.interrupt = ie
	} else {
		o.err = err
	}
	return o
}

// merge folds one outcome into the run state and trace.
func (r *run) merge(o outcome) error {
	cp := r.cp
	entry := domain.TraceEntry{
		Step:      cp.Step,
		NodeID:    o.id,
		Timestamp: o.started,
		Duration:  o.duration,
	}

	if o.err != nil {
		entry.Error = o.err.Error()
		handler := r.engine.errorHandler(o.id)
		if handler == "" {
			cp.Trace = append(cp.Trace, entry)
			return o.err
		}
		r.logger.Warn("node failed, routing to error handler", "node", o.id, "handler", handler, "error", o.err)
		if err := r.recordFailure(o.id, handler, o.err, &entry); err != nil {
			return err
		}
		cp.Trace = append(cp.Trace, entry)
		return nil
	}

	next, err := r.engine.graph.Schema().Apply(cp.State, o.update)
	if err != nil {
		entry.Error = err.Error()
		cp.Trace = append(cp.Trace, entry)
		return err
	}
	entry.Diff = domain.Diff(cp.State, next)
	cp.State = next
	cp.Trace = append(cp.Trace, entry)
	return nil
}

func (r *run) recordFailure(id, handler string, cause error, entry *domain.TraceEntry) error {
	cp := r.cp
	failure := domain.NodeFailure{NodeID: id, Message: cause.Error(), Step: cp.Step}
	next, err := r.engine.graph.Schema().Apply(cp.State, domain.Update{domain.FieldLastError: failure})
	if err != nil {
		return err
	}
	if entry != nil {
		entry.Diff = domain.Diff(cp.State, next)
	}
	cp.State = next
	if cp.Redirects == nil {
		cp.Redirects = make(map[string]string)
	}
	cp.Redirects[id] = handler
	return nil
}

// advance resolves the next frontier once every node of the step has completed.
func (r *run) advance(ctx context.Context) error {
	cp := r.cp
	g := r.engine.graph

	var next []string
	for _, id := range cp.Frontier {
		if handler, ok := cp.Redirects[id]; ok {
			next = append(next, handler)
			continue
		}
		targets, err := g.Resolve(ctx, id, cp.State)
		if err != nil {
			var execErr *domain.NodeExecutionError
			handler := r.engine.errorHandler(id)
			if errors.As(err, &execErr) && handler != "" {
				r.logger.Warn("router failed, routing to error handler", "node", id, "handler", handler, "error", err)
				if err := r.recordFailure(id, handler, err, nil); err != nil {
					return err
				}
				next = append(next, handler)
				continue
			}
			return err
		}
		next = append(next, targets...)
	}

	cp.Frontier = g.Order(next)
	cp.Step++
	cp.Completed = nil
	cp.Interrupted = nil
	cp.Held = nil
	cp.Payloads = nil
	cp.Redirects = nil
	cp.UpdatedAt = r.engine.now()
	return nil
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
