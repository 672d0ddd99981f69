package graph

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// End is the terminal sentinel. Routing to End finishes the branch.
const End = "__end__"

// Router selects successors of a conditional edge.
type Router interface {
	Route(ctx context.Context, state domain.State) ([]string, error)
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(ctx context.Context, state domain.State) ([]string, error)

// Route calls f.
func (f RouterFunc) Route(ctx context.Context, state domain.State) ([]string, error) {
	return f(ctx, state)
}

// Choose adapts a single-target selector to the Router interface.
func Choose(fn func(state domain.State) string) Router {
	return RouterFunc(func(_ context.Context, state domain.State) ([]string, error) {
		return []string{fn(state)}, nil
	})
}

// EdgeKind distinguishes the three edge shapes.
type EdgeKind string

const (
	EdgeFixed       EdgeKind = "fixed"
	EdgeConditional EdgeKind = "conditional"
	EdgeTerminal    EdgeKind = "terminal"
)

// Edge is the outgoing routing rule of a node.
type Edge struct {
	From string
	Kind EdgeKind
	// To is the target of a fixed edge.
	To string
	// Router and Candidates describe a conditional edge.
	Router     Router
	Candidates []string
	// Labels maps candidate targets to a human readable condition, used by exports.
	Labels map[string]string
}

// Targets returns every node the edge may lead to, excluding End.
func (e Edge) Targets() []string {
	switch e.Kind {
	case EdgeFixed:
		if e.To == End {
			return nil
		}
		return []string{e.To}
	case EdgeConditional:
		out := make([]string, 0, len(e.Candidates))
		for _, c := range e.Candidates {
			if c != End {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}

func (e Edge) allows(target string) bool {
	for _, c := range e.Candidates {
		if c == target {
			return true
		}
	}
	return false
}
