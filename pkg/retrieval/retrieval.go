// Package retrieval provides the RAG node and a small in-memory backend.
//
// Retrieval is stateless from the engine's point of view: the node queries a
// Backend and overwrites the context field with the passages it returns.
// Indexing and caching belong to the backend.
package retrieval

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// DefaultK is the number of passages requested when none is configured.
const DefaultK = 4

// Backend answers similarity queries.
type Backend interface {
	// Query returns at most k passages ordered by decreasing relevance.
	Query(ctx context.Context, text string, k int) ([]domain.Passage, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, text string, k int) ([]domain.Passage, error)

// Query calls f.
func (f BackendFunc) Query(ctx context.Context, text string, k int) ([]domain.Passage, error) {
	return f(ctx, text, k)
}

// RetrieveNode queries a Backend with text taken from the state.
type RetrieveNode struct {
	backend    Backend
	k          int
	queryField string
}

// Option configures a RetrieveNode.
type Option func(*RetrieveNode)

// WithQueryField reads the query from a string field instead of the last message.
func WithQueryField(field string) Option {
	return func(n *RetrieveNode) {
		n.queryField = field
	}
}

// Node builds a retrieval node returning up to k passages.
func Node(backend Backend, k int, opts ...Option) *RetrieveNode {
	if k <= 0 {
		k = DefaultK
	}
	n := &RetrieveNode{backend: backend, k: k}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Kind implements graph.Kinded.
func (n *RetrieveNode) Kind() graph.Kind { return graph.KindRetrieve }

// Invoke implements graph.Node.
func (n *RetrieveNode) Invoke(ctx context.Context, state domain.State) (domain.Update, error) {
	query := n.query(state)
	if query == "" {
		return domain.Update{domain.FieldContext: []domain.Passage{}}, nil
	}

	passages, err := n.backend.Query(ctx, query, n.k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(passages) > n.k {
		passages = passages[:n.k]
	}
	if passages == nil {
		passages = []domain.Passage{}
	}
	return domain.Update{domain.FieldContext: passages}, nil
}

func (n *RetrieveNode) query(state domain.State) string {
	if n.queryField != "" {
		return state.String(n.queryField)
	}
	msgs := state.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
