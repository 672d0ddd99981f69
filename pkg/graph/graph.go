package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
)

// Graph is a compiled, immutable state graph.
type Graph struct {
	id              string
	schema          *domain.Schema
	registry        *Registry
	edges           map[string]Edge
	errorEdges      map[string]string
	interruptBefore map[string]bool
	entry           string
	defaultError    string
	warnings        []string
	parallel        map[[2]string]bool
}

// ID returns the graph identifier.
func (g *Graph) ID() string { return g.id }

// Entry returns the entry node ID.
func (g *Graph) Entry() string { return g.entry }

// Schema returns the state schema.
func (g *Graph) Schema() *domain.Schema { return g.schema }

// Registry returns the node registry.
func (g *Graph) Registry() *Registry { return g.registry }

// Warnings returns non-fatal findings of compilation.
func (g *Graph) Warnings() []string { return append([]string(nil), g.warnings...) }

// Nodes returns node specs in registration order.
func (g *Graph) Nodes() []Spec {
	ids := g.registry.IDs()
	out := make([]Spec, 0, len(ids))
	for _, id := range ids {
		s, _ := g.registry.Lookup(id)
		out = append(out, s)
	}
	return out
}

// Edge returns the outgoing edge of a node.
func (g *Graph) Edge(from string) (Edge, bool) {
	e, ok := g.edges[from]
	return e, ok
}

// ErrorHandler returns the node failures of id are routed to.
func (g *Graph) ErrorHandler(id string) (string, bool) {
	h, ok := g.errorEdges[id]
	return h, ok
}

// DefaultErrorHandler returns the graph-wide error handler, if declared.
func (g *Graph) DefaultErrorHandler() string { return g.defaultError }

// InterruptsBefore reports whether the run suspends before id executes.
func (g *Graph) InterruptsBefore(id string) bool {
	return g.interruptBefore[id]
}

// CanRunParallel reports whether two nodes have disjoint declared field sets.
func (g *Graph) CanRunParallel(a, b string) bool {
	return g.parallel[[2]string{a, b}]
}

// Order deduplicates ids and sorts them by registration order.
func (g *Graph) Order(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return g.registry.Position(out[i]) < g.registry.Position(out[j])
	})
	return out
}

// Resolve returns the successors of nodeID for state.
// An empty result means the branch is finished.
func (g *Graph) Resolve(ctx context.Context, nodeID string, state domain.State) ([]string, error) {
	e, ok := g.edges[nodeID]
	if !ok {
		return nil, &domain.DefinitionError{Problems: []string{fmt.Sprintf("node %q has no outgoing edge", nodeID)}}
	}

	switch e.Kind {
	case EdgeTerminal:
		return nil, nil
	case EdgeFixed:
		if e.To == End {
			return nil, nil
		}
		return []string{e.To}, nil
	}

	targets, err := e.Router.Route(ctx, state)
	if err != nil {
		return nil, &domain.NodeExecutionError{NodeID: nodeID, Cause: fmt.Errorf("router: %w", err)}
	}
	if len(targets) == 0 {
		return nil, &domain.InvalidRoutingTargetError{From: nodeID, Target: "", Candidates: e.Candidates}
	}

	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if !e.allows(t) {
			return nil, &domain.InvalidRoutingTargetError{From: nodeID, Target: t, Candidates: e.Candidates}
		}
		if t != End {
			out = append(out, t)
		}
	}
	return g.Order(out), nil
}

func (g *Graph) sortedEdgeSources() []string {
	out := make([]string, 0, len(g.edges))
	for k := range g.edges {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
