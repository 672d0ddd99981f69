package graph

import (
	"fmt"
)

// validate checks the graph for broken links, dead ends and unreachable nodes.
// Unconditional cycles are reported as warnings.
func validate(g *Graph) (problems, warnings []string) {
	if g.entry == "" {
		return []string{"entry node is not set"}, nil
	}
	if _, ok := g.registry.Lookup(g.entry); !ok {
		return []string{fmt.Sprintf("entry node %q is not registered", g.entry)}, nil
	}

	known := func(id string) bool {
		if id == End {
			return true
		}
		_, ok := g.registry.Lookup(id)
		return ok
	}

	// Broken links
	for _, from := range g.sortedEdgeSources() {
		e := g.edges[from]
		if _, ok := g.registry.Lookup(from); !ok {
			problems = append(problems, fmt.Sprintf("edge from unknown node %q", from))
		}
		switch e.Kind {
		case EdgeFixed, EdgeTerminal:
			if !known(e.To) {
				problems = append(problems, fmt.Sprintf("edge %s -> %s: unknown target", from, e.To))
			}
		case EdgeConditional:
			for _, c := range e.Candidates {
				if !known(c) {
					problems = append(problems, fmt.Sprintf("edge %s -> %s: undeclared routing target", from, c))
				}
			}
		}
	}
	for _, node := range g.registry.IDs() {
		if handler, ok := g.errorEdges[node]; ok && (handler == End || !known(handler)) {
			problems = append(problems, fmt.Sprintf("error handler %q of node %q is not registered", handler, node))
		}
	}
	for node, handler := range g.errorEdges {
		if !known(node) {
			problems = append(problems, fmt.Sprintf("error handler %q declared for unknown node %q", handler, node))
		}
	}
	if g.defaultError != "" && (g.defaultError == End || !known(g.defaultError)) {
		problems = append(problems, fmt.Sprintf("default error handler %q is not registered", g.defaultError))
	}
	for id := range g.interruptBefore {
		if !known(id) || id == End {
			problems = append(problems, fmt.Sprintf("interrupt declared for unknown node %q", id))
		}
	}
	if len(problems) > 0 {
		return problems, nil
	}

	// Crawl from the entry
	visited := make(map[string]bool)
	queue := []string{g.entry}
	if g.defaultError != "" {
		queue = append(queue, g.defaultError)
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		e, ok := g.edges[current]
		if !ok {
			problems = append(problems, fmt.Sprintf("node %q has no outgoing edge and is not terminal", current))
		} else {
			for _, t := range e.Targets() {
				if !visited[t] {
					queue = append(queue, t)
				}
			}
		}
		if handler, ok := g.errorEdges[current]; ok && !visited[handler] {
			queue = append(queue, handler)
		}
	}

	for _, id := range g.registry.IDs() {
		if !visited[id] {
			problems = append(problems, fmt.Sprintf("node %q is unreachable from entry %q", id, g.entry))
		}
	}

	warnings = findClosedCycles(g)
	return problems, warnings
}

// findClosedCycles reports loops made only of fixed edges: once entered,
// execution can only stop at the step budget.
func findClosedCycles(g *Graph) []string {
	var warnings []string
	reported := make(map[string]bool)
	for _, start := range g.registry.IDs() {
		if reported[start] {
			continue
		}
		path := []string{start}
		seen := map[string]bool{start: true}
		current := start
		for {
			e, ok := g.edges[current]
			if !ok || e.Kind != EdgeFixed {
				break
			}
			next := e.To
			if next == start {
				for _, id := range path {
					reported[id] = true
				}
				warnings = append(warnings, fmt.Sprintf("unconditional cycle without escape edge: %v", append(path, start)))
				break
			}
			if seen[next] {
				break
			}
			seen[next] = true
			path = append(path, next)
			current = next
		}
	}
	return warnings
}
