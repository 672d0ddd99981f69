package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// LogHooks writes lifecycle events to logger at debug level, failures at warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"run_id", e.RunID,
				"node_id", e.NodeID,
				"kind", e.NodeKind,
				"step", e.Step,
			)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "node_leave",
					"run_id", e.RunID,
					"node_id", e.NodeID,
					"duration", e.Duration,
					"err", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "node_leave",
				"run_id", e.RunID,
				"node_id", e.NodeID,
				"duration", e.Duration,
			)
		},
		OnToolCall: func(ctx context.Context, e *domain.ToolEvent) {
			logger.DebugContext(ctx, "tool_call",
				"run_id", e.RunID,
				"tool_name", e.ToolName,
				"call_id", e.CallID,
			)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			logger.DebugContext(ctx, "tool_return",
				"run_id", e.RunID,
				"tool_name", e.ToolName,
				"call_id", e.CallID,
				"is_error", e.IsError,
			)
		},
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			attrs := []any{
				"run_id", e.RunID,
				"graph", e.GraphID,
				"status", e.Status,
				"steps", e.Steps,
				"duration", e.Duration,
			}
			if e.Err != nil {
				logger.WarnContext(ctx, "run_end", append(attrs, "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, "run_end", attrs...)
		},
	}
}
