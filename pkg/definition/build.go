package definition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/tools"
)

var reducers = map[string]domain.Reducer{
	"overwrite": domain.Overwrite,
	"append":    domain.Append,
	"merge":     domain.MergeMap,
}

// Build compiles a document into a graph. Problems of the document itself are
// reported together as a *domain.DefinitionError; the graph builder reports the
// structural ones.
func (c *Catalog) Build(doc *Document, opts ...graph.CompileOption) (*graph.Graph, error) {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if doc.ID == "" {
		fail("definition has no id")
	}
	if _, err := doc.InputSchema(); err != nil {
		fail("inputs: %v", err)
	}

	b := graph.NewBuilder(doc.ID)

	if len(doc.Fields) > 0 {
		s := domain.NewSchema()
		for _, f := range doc.Fields {
			r, ok := reducers[strings.ToLower(f.Reducer)]
			if !ok {
				fail("field %q: unknown reducer %q", f.Name, f.Reducer)
				continue
			}
			s.Field(f.Name, r)
		}
		b.Schema(s)
	}

	for _, spec := range doc.Nodes {
		factory, ok := c.factories[spec.Type]
		if !ok {
			fail("node %q: unknown type %q", spec.ID, spec.Type)
			continue
		}
		n, err := factory(c.env, spec.With)
		if err != nil {
			fail("node %q (%s): %v", spec.ID, spec.Type, err)
			continue
		}
		var nodeOpts []graph.NodeOption
		if len(spec.Reads) > 0 {
			nodeOpts = append(nodeOpts, graph.Reads(spec.Reads...))
		}
		if len(spec.Writes) > 0 {
			nodeOpts = append(nodeOpts, graph.Writes(spec.Writes...))
		}
		b.AddNode(spec.ID, n, nodeOpts...)
		if spec.OnError != "" {
			b.OnError(spec.ID, target(spec.OnError))
		}
	}

	for _, e := range doc.Edges {
		switch {
		case len(e.Branches) > 0:
			if e.To != "" || e.Tools != "" {
				fail("edge from %q: branches cannot be combined with to or tools", e.From)
				continue
			}
			branches := make([]graph.Branch, 0, len(e.Branches))
			for _, br := range e.Branches {
				branches = append(branches, graph.When(br.When, target(br.To)))
			}
			b.AddBranches(e.From, branches...)
		case e.Tools != "":
			next := target(e.To)
			if e.To == "" {
				next = graph.End
			}
			b.AddConditionalEdges(e.From, tools.Route(e.Tools, next), e.Tools, next)
		case e.To != "":
			b.AddEdge(e.From, target(e.To))
		default:
			fail("edge from %q has no target", e.From)
		}
	}

	for _, id := range doc.Terminal {
		b.SetTerminal(id)
	}
	if doc.ErrorHandler != "" {
		b.DefaultErrorHandler(doc.ErrorHandler)
	}
	if len(doc.InterruptBefore) > 0 {
		b.InterruptBefore(doc.InterruptBefore...)
	}
	b.SetEntry(doc.Entry)

	if len(problems) > 0 {
		return nil, &domain.DefinitionError{Problems: problems}
	}
	return b.Compile(opts...)
}

// Load reads the definition id from loader and builds it.
func (c *Catalog) Load(loader ports.GraphLoader, id string, opts ...graph.CompileOption) (*Document, *graph.Graph, error) {
	doc, err := Load(loader, id)
	if err != nil {
		return nil, nil, err
	}
	g, err := c.Build(doc, opts...)
	if err != nil {
		return doc, nil, fmt.Errorf("graph %s: %w", id, err)
	}
	return doc, g, nil
}

// IsDefinitionError reports whether err is a problem of the definition rather
// than of loading it.
func IsDefinitionError(err error) bool {
	var defErr *domain.DefinitionError
	return errors.As(err, &defErr)
}

// target maps the "end" alias to graph.End.
func target(id string) string {
	if strings.EqualFold(id, "end") {
		return graph.End
	}
	return id
}
