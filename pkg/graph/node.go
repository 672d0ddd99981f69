package graph

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Kind classifies a node for validation, export and metrics.
type Kind string

const (
	KindFunction Kind = "function"
	KindTools    Kind = "tools"
	KindModel    Kind = "model"
	KindRetrieve Kind = "retrieve"
	KindSubgraph Kind = "subgraph"
)

// Node is a unit of computation over the shared state.
// It receives a private copy of the state and returns a partial update.
type Node interface {
	Invoke(ctx context.Context, state domain.State) (domain.Update, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc func(ctx context.Context, state domain.State) (domain.Update, error)

// Invoke calls f.
func (f NodeFunc) Invoke(ctx context.Context, state domain.State) (domain.Update, error) {
	return f(ctx, state)
}

// Kinded is implemented by nodes that know their own kind.
type Kinded interface {
	Kind() Kind
}

// Spec is a registered node: its ID, behaviour and declared field access.
type Spec struct {
	ID   string
	Node Node
	Kind Kind
	// Reads and Writes list the state fields the node touches.
	// They are only used for validation and parallel scheduling.
	Reads  []string
	Writes []string
	// Declared is true when Reads/Writes were provided.
	// Undeclared nodes are assumed to conflict with every other node.
	Declared bool
}

// NodeOption configures a node at registration time.
type NodeOption func(*Spec)

// Reads declares the fields a node reads.
func Reads(fields ...string) NodeOption {
	return func(s *Spec) {
		s.Reads = append(s.Reads, fields...)
		s.Declared = true
	}
}

// Writes declares the fields a node writes.
func Writes(fields ...string) NodeOption {
	return func(s *Spec) {
		s.Writes = append(s.Writes, fields...)
		s.Declared = true
	}
}

// WithKind overrides the kind inferred from the node.
func WithKind(k Kind) NodeOption {
	return func(s *Spec) {
		s.Kind = k
	}
}

// NewSpec builds a Spec applying options.
func NewSpec(id string, n Node, opts ...NodeOption) Spec {
	spec := Spec{ID: id, Node: n, Kind: KindFunction}
	if k, ok := n.(Kinded); ok {
		spec.Kind = k.Kind()
	}
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

// Disjoint reports whether two nodes can safely run on the same snapshot.
func (s Spec) Disjoint(other Spec) bool {
	if !s.Declared || !other.Declared {
		return false
	}
	return !intersects(s.Writes, other.Writes) &&
		!intersects(s.Writes, other.Reads) &&
		!intersects(other.Writes, s.Reads)
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

type nodeIDKey struct{}

// WithNodeID records the executing node in ctx.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey{}, id)
}

// NodeID returns the node executing under ctx, or "".
func NodeID(ctx context.Context) string {
	id, _ := ctx.Value(nodeIDKey{}).(string)
	return id
}
