package runtime

import (
	"context"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

func (e *Engine) emitNodeEnter(ctx context.Context, nodeID string, step int) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, e.nodeEvent(ctx, domain.EventNodeEnter, nodeID, step))
}

func (e *Engine) emitNodeLeave(ctx context.Context, nodeID string, step int, d time.Duration, err error) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	ev := e.nodeEvent(ctx, domain.EventNodeLeave, nodeID, step)
	ev.Duration = d
	ev.Err = err
	e.hooks.OnNodeLeave(ctx, ev)
}

func (e *Engine) emitRunEnd(ctx context.Context, res *domain.Result, d time.Duration, err error) {
	if e.hooks.OnRunEnd == nil {
		return
	}
	e.hooks.OnRunEnd(context.WithoutCancel(ctx), &domain.RunEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventRunEnd, RunID: res.RunID},
		GraphID:   e.graph.ID(),
		Status:    res.Status,
		Steps:     res.Steps,
		Duration:  d,
		Err:       err,
	})
}

func (e *Engine) nodeEvent(ctx context.Context, t domain.EventType, nodeID string, step int) *domain.NodeEvent {
	kind := ""
	if spec, ok := e.graph.Registry().Lookup(nodeID); ok {
		kind = string(spec.Kind)
	}
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: t, RunID: domain.RunIDFromContext(ctx)},
		NodeID:    nodeID,
		NodeKind:  kind,
		Step:      step,
	}
}
