package graph

import (
	"context"
	"fmt"
)

// InterruptError is returned by a node to suspend the run.
// The payload is stored in the checkpoint for the caller to inspect.
type InterruptError struct {
	NodeID  string
	Payload any
}

func (e *InterruptError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("interrupt: %v", e.Payload)
	}
	return fmt.Sprintf("node %q interrupted: %v", e.NodeID, e.Payload)
}

// Interrupt suspends the run at the calling node.
// When the run is resumed the node is invoked again with Resuming(ctx) == true.
func Interrupt(payload any) error {
	return &InterruptError{Payload: payload}
}

type resumingKey struct{}

// WithResuming marks ctx as the re-entry of an interrupted node.
func WithResuming(ctx context.Context) context.Context {
	return context.WithValue(ctx, resumingKey{}, true)
}

// Resuming reports whether the node is being re-entered after an interrupt.
func Resuming(ctx context.Context) bool {
	v, _ := ctx.Value(resumingKey{}).(bool)
	return v
}
