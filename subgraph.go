package arbor

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// SubgraphNode runs another engine's graph as a single node of the parent.
//
// The child receives the parent state (or the fields listed with
// WithInputs) and its effects flow back as an update: appended messages plus
// the fields it changed (or only those listed with WithOutputs). Mailbox and
// outbox traffic stays inside the child.
//
// A suspended child suspends the parent. When the parent resumes, the child
// is resumed from its own checkpoint store with the WithResumeFields values
// of the parent state, so the child engine needs a checkpoint store for
// human-in-the-loop graphs.
type SubgraphNode struct {
	child        *Engine
	inputs       []string
	outputs      []string
	resumeFields []string
}

// SubgraphOption configures a SubgraphNode.
type SubgraphOption func(*SubgraphNode)

// WithInputs restricts the fields copied into the child state.
func WithInputs(fields ...string) SubgraphOption {
	return func(n *SubgraphNode) {
		n.inputs = append(n.inputs, fields...)
	}
}

// WithOutputs restricts the fields copied back into the parent.
func WithOutputs(fields ...string) SubgraphOption {
	return func(n *SubgraphNode) {
		n.outputs = append(n.outputs, fields...)
	}
}

// WithResumeFields lists parent fields passed to the child when it resumes.
func WithResumeFields(fields ...string) SubgraphOption {
	return func(n *SubgraphNode) {
		n.resumeFields = append(n.resumeFields, fields...)
	}
}

// Subgraph wraps child as a node.
func Subgraph(child *Engine, opts ...SubgraphOption) *SubgraphNode {
	n := &SubgraphNode{child: child}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Kind implements graph.Kinded.
func (n *SubgraphNode) Kind() graph.Kind { return graph.KindSubgraph }

// Invoke implements graph.Node.
func (n *SubgraphNode) Invoke(ctx context.Context, state domain.State) (domain.Update, error) {
	input := n.input(state)
	runID := n.childRunID(ctx)

	var res *domain.Result
	var err error
	if graph.Resuming(ctx) && n.childWaiting(ctx, runID) {
		res, err = n.child.ResumeRun(ctx, runID, n.resumeInput(state))
	} else {
		res, err = n.child.Run(ctx, runID, input)
	}
	if err != nil {
		return nil, fmt.Errorf("subgraph %q: %w", n.child.GraphID(), err)
	}

	if res.Status == domain.StatusSuspended {
		payloads := map[string]any{}
		if res.Checkpoint != nil {
			for id, p := range res.Checkpoint.Payloads {
				payloads[id] = p
			}
		}
		return nil, graph.Interrupt(map[string]any{
			"subgraph": n.child.GraphID(),
			"run_id":   runID,
			"payloads": payloads,
		})
	}
	return n.output(input, res.State), nil
}

// childWaiting reports whether the child run is suspended and so can be
// resumed. A finished checkpoint left by an earlier visit, or none at all,
// means the child starts over. Without a store ResumeRun reports the error.
func (n *SubgraphNode) childWaiting(ctx context.Context, runID string) bool {
	cp, err := n.child.Checkpoint(ctx, runID)
	if errors.Is(err, ErrNoCheckpointStore) {
		return true
	}
	return err == nil && cp.Status == domain.StatusSuspended
}

func (n *SubgraphNode) childRunID(ctx context.Context) string {
	parent := domain.RunIDFromContext(ctx)
	node := graph.NodeID(ctx)
	if node == "" {
		node = n.child.GraphID()
	}
	if parent == "" {
		return node
	}
	return parent + "/" + node
}

func (n *SubgraphNode) input(state domain.State) domain.State {
	if len(n.inputs) == 0 {
		return state.Clone()
	}
	out := make(domain.State, len(n.inputs))
	for _, f := range n.inputs {
		if v, ok := state[f]; ok {
			out[f] = v
		}
	}
	return out
}

func (n *SubgraphNode) resumeInput(state domain.State) domain.Update {
	if len(n.resumeFields) == 0 {
		return nil
	}
	out := make(domain.Update, len(n.resumeFields))
	for _, f := range n.resumeFields {
		if v, ok := state[f]; ok {
			out[f] = v
		}
	}
	return out
}

func (n *SubgraphNode) output(input, final domain.State) domain.Update {
	diff := domain.Diff(input, final)
	if diff.IsEmpty() {
		return nil
	}

	update := domain.Update{}
	if len(diff.Messages) > 0 && n.wants(domain.FieldMessages) {
		update[domain.FieldMessages] = diff.Messages
	}
	for field, v := range diff.Fields {
		switch field {
		case domain.FieldMessages, domain.FieldMailbox, domain.FieldOutbox:
			continue
		}
		if n.wants(field) {
			update[field] = v
		}
	}
	return update
}

func (n *SubgraphNode) wants(field string) bool {
	if len(n.outputs) == 0 {
		return true
	}
	for _, f := range n.outputs {
		if f == field {
			return true
		}
	}
	return false
}
