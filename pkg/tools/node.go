package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ToolNode executes the tool calls of the last message in the conversation.
type ToolNode struct {
	lookup   Lookup
	parallel int
	timeout  time.Duration
}

// Option configures a ToolNode.
type Option func(*ToolNode)

// WithParallelCalls runs up to n calls of one message concurrently.
// Results are still appended in call order.
func WithParallelCalls(n int) Option {
	return func(t *ToolNode) {
		if n > 0 {
			t.parallel = n
		}
	}
}

// WithCallTimeout bounds each individual tool call.
func WithCallTimeout(d time.Duration) Option {
	return func(t *ToolNode) {
		t.timeout = d
	}
}

// Node builds a tool node resolving calls through lookup.
func Node(lookup Lookup, opts ...Option) *ToolNode {
	t := &ToolNode{lookup: lookup, parallel: 1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kind implements graph.Kinded.
func (t *ToolNode) Kind() graph.Kind { return graph.KindTools }

// Invoke implements graph.Node.
// A state whose last message requests no tools yields an empty update.
func (t *ToolNode) Invoke(ctx context.Context, state domain.State) (domain.Update, error) {
	last, ok := state.LastMessage()
	if !ok || !last.HasToolCalls() {
		return nil, nil
	}

	calls := last.ToolCalls
	results := make([]domain.Message, len(calls))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(t.parallel)
	for i, call := range calls {
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		eg.Go(func() error {
			results[i] = t.call(egCtx, call)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return domain.Update{domain.FieldMessages: results}, nil
}

// call runs one tool call and renders its outcome as a tool message.
func (t *ToolNode) call(ctx context.Context, call domain.ToolCall) domain.Message {
	hooks := domain.HooksFromContext(ctx)
	event := &domain.ToolEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventToolCall,
			RunID:     domain.RunIDFromContext(ctx),
		},
		NodeID:   graph.NodeID(ctx),
		ToolName: call.Name,
		CallID:   call.ID,
		Input:    call.Args,
	}
	if hooks.OnToolCall != nil {
		hooks.OnToolCall(ctx, event)
	}

	output, err := t.execute(ctx, call)

	msg := domain.Message{Role: domain.RoleTool, Name: call.Name, ToolCallID: call.ID}
	var notFound *domain.ToolNotFoundError
	switch {
	case errors.As(err, &notFound):
		msg.Content = err.Error()
		msg.ErrorKind = domain.ErrorKindToolNotFound
	case err != nil:
		msg.Content = err.Error()
		msg.ErrorKind = domain.ErrorKindToolExecution
	default:
		msg.Content = render(output)
	}

	if msg.IsError() {
		logging.FromContext(ctx).Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "err", err)
	}

	if hooks.OnToolReturn != nil {
		ret := *event
		ret.Timestamp = time.Now()
		ret.Type = domain.EventToolReturn
		ret.Output = output
		ret.IsError = msg.IsError()
		if err != nil {
			ret.Output = err.Error()
		}
		hooks.OnToolReturn(ctx, &ret)
	}
	return msg
}

func (t *ToolNode) execute(ctx context.Context, call domain.ToolCall) (out any, err error) {
	fn, ok := t.lookup.Lookup(call.Name)
	if !ok || fn == nil {
		return nil, &domain.ToolNotFoundError{Name: call.Name}
	}

	args, err := arguments(call)
	if err != nil {
		return nil, &domain.ToolExecutionError{Name: call.Name, Cause: err}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &domain.ToolExecutionError{Name: call.Name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err = fn(ctx, args)
	if err != nil {
		return nil, &domain.ToolExecutionError{Name: call.Name, Cause: err}
	}
	return out, nil
}

// arguments returns the decoded arguments, parsing RawArgs when Args is empty.
func arguments(call domain.ToolCall) (map[string]any, error) {
	if call.Args != nil || call.RawArgs == "" {
		return call.Args, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(call.RawArgs), &args); err != nil {
		return nil, fmt.Errorf("malformed arguments: %w", err)
	}
	return args, nil
}

func render(v any) string {
	switch out := v.(type) {
	case nil:
		return ""
	case string:
		return out
	case []byte:
		return string(out)
	case fmt.Stringer:
		return out.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
