package graph

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// Builder manages the graph construction.
// Errors are accumulated and reported by Compile.
type Builder struct {
	id              string
	schema          *domain.Schema
	registry        *Registry
	edges           map[string]Edge
	errorEdges      map[string]string
	interruptBefore map[string]bool
	entry           string
	defaultError    string
	errs            []error
}

// NewBuilder creates a builder for the graph identified by id.
func NewBuilder(id string) *Builder {
	return &Builder{
		id:              id,
		schema:          domain.DefaultSchema(),
		registry:        NewRegistry(),
		edges:           make(map[string]Edge),
		errorEdges:      make(map[string]string),
		interruptBefore: make(map[string]bool),
	}
}

// Schema declares additional state fields. Reserved fields keep their defaults
// unless redeclared.
func (b *Builder) Schema(s *domain.Schema) *Builder {
	b.schema = b.schema.Merge(s)
	return b
}

// AddNode registers a node.
func (b *Builder) AddNode(id string, n Node, opts ...NodeOption) *Builder {
	if err := b.registry.Register(NewSpec(id, n, opts...)); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// AddFunc registers a function as a node.
func (b *Builder) AddFunc(id string, fn NodeFunc, opts ...NodeOption) *Builder {
	return b.AddNode(id, fn, opts...)
}

// AddEdge adds a fixed transition from one node to another (or End).
func (b *Builder) AddEdge(from, to string) *Builder {
	kind := EdgeFixed
	if to == End {
		kind = EdgeTerminal
	}
	return b.setEdge(Edge{From: from, Kind: kind, To: to})
}

// SetTerminal marks a node as the end of the flow.
func (b *Builder) SetTerminal(id string) *Builder {
	return b.AddEdge(id, End)
}

// AddConditionalEdges routes from a node through router.
// The router may only select among candidates (End included if listed).
func (b *Builder) AddConditionalEdges(from string, router Router, candidates ...string) *Builder {
	if router == nil {
		b.errs = append(b.errs, &domain.DefinitionError{Problems: []string{fmt.Sprintf("node %q: router cannot be nil", from)}})
		return b
	}
	if len(candidates) == 0 {
		b.errs = append(b.errs, &domain.DefinitionError{Problems: []string{fmt.Sprintf("node %q: conditional edge declares no candidates", from)}})
		return b
	}
	return b.setEdge(Edge{From: from, Kind: EdgeConditional, Router: router, Candidates: candidates})
}

// AddBranches routes from a node through expression conditions.
func (b *Builder) AddBranches(from string, branches ...Branch) *Builder {
	router, err := Branches(branches...)
	if err != nil {
		b.errs = append(b.errs, &domain.DefinitionError{Problems: []string{fmt.Sprintf("node %q: %v", from, err)}})
		return b
	}
	return b.setEdge(Edge{
		From:       from,
		Kind:       EdgeConditional,
		Router:     router,
		Candidates: router.Candidates(),
		Labels:     router.Labels(),
	})
}

func (b *Builder) setEdge(e Edge) *Builder {
	if _, exists := b.edges[e.From]; exists {
		b.errs = append(b.errs, &domain.DefinitionError{Problems: []string{fmt.Sprintf("node %q already has an outgoing edge", e.From)}})
		return b
	}
	b.edges[e.From] = e
	return b
}

// SetEntry sets the entry node.
func (b *Builder) SetEntry(id string) *Builder {
	b.entry = id
	return b
}

// OnError routes failures of node to handler instead of aborting the run.
func (b *Builder) OnError(node, handler string) *Builder {
	b.errorEdges[node] = handler
	return b
}

// DefaultErrorHandler routes failures of nodes without their own OnError handler
// to id. The handler is validated like any node reachable from the entry.
func (b *Builder) DefaultErrorHandler(id string) *Builder {
	b.defaultError = id
	return b
}

// InterruptBefore suspends the run every time one of the nodes is about to execute.
func (b *Builder) InterruptBefore(ids ...string) *Builder {
	for _, id := range ids {
		b.interruptBefore[id] = true
	}
	return b
}

// Compile validates the definition and returns an immutable graph.
func (b *Builder) Compile(opts ...CompileOption) (*Graph, error) {
	cfg := compileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	g := &Graph{
		id:              b.id,
		schema:          b.schema,
		registry:        b.registry,
		edges:           b.edges,
		errorEdges:      b.errorEdges,
		interruptBefore: b.interruptBefore,
		entry:           b.entry,
		defaultError:    b.defaultError,
	}

	problems, warnings := validate(g)
	if cfg.strictCycles {
		problems = append(problems, warnings...)
		warnings = nil
	}
	if len(problems) > 0 {
		return nil, &domain.DefinitionError{Problems: problems}
	}
	g.warnings = warnings
	g.parallel = parallelMatrix(b.registry)

	// Detach from the builder so later builder calls cannot mutate the graph.
	b.registry = NewRegistry()
	b.edges = make(map[string]Edge)
	b.errorEdges = make(map[string]string)
	b.interruptBefore = make(map[string]bool)

	return g, nil
}

// CompileOption configures compilation.
type CompileOption func(*compileConfig)

type compileConfig struct {
	strictCycles bool
}

// StrictCycles turns unconditional cycles without an escape edge into errors.
func StrictCycles() CompileOption {
	return func(c *compileConfig) {
		c.strictCycles = true
	}
}

func parallelMatrix(r *Registry) map[[2]string]bool {
	out := make(map[[2]string]bool)
	ids := r.IDs()
	for i, a := range ids {
		sa, _ := r.Lookup(a)
		for _, c := range ids[i+1:] {
			sc, _ := r.Lookup(c)
			if sa.Disjoint(sc) {
				out[[2]string{a, c}] = true
				out[[2]string{c, a}] = true
			}
		}
	}
	return out
}
