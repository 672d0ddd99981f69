package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
)

// Overlay contains run data to highlight on an exported graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNodes []string
}

// Mermaid produces a Mermaid flowchart of the graph.
// Shapes follow the node kind:
// - Entry: ((Circle))
// - Tools: [[Subroutine]]
// - Model: ([Stadium])
// - Retrieve: [(Database)]
// - Subgraph: [/Parallelogram/]
// - Default: [Rectangle]
func Mermaid(g *Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	endUsed := false
	for _, spec := range g.Nodes() {
		safeID := sanitizeMermaidID(spec.ID)

		opener, closer := "[", "]"
		switch {
		case spec.ID == g.entry:
			opener, closer = "((", "))"
		case spec.Kind == KindTools:
			opener, closer = "[[", "]]"
		case spec.Kind == KindModel:
			opener, closer = "([", "])"
		case spec.Kind == KindRetrieve:
			opener, closer = "[(", ")]"
		case spec.Kind == KindSubgraph:
			opener, closer = "[/", "/]"
		}

		label := spec.ID
		if g.interruptBefore[spec.ID] {
			label += " <br/> ⏸ interrupt"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		e, ok := g.edges[spec.ID]
		if !ok {
			continue
		}
		switch e.Kind {
		case EdgeFixed, EdgeTerminal:
			endUsed = endUsed || e.To == End
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", safeID, sanitizeMermaidID(e.To)))
		case EdgeConditional:
			for _, target := range e.Candidates {
				endUsed = endUsed || target == End
				arrow := "-.->"
				if cond, ok := e.Labels[target]; ok {
					safeCondition := strings.ReplaceAll(cond, "\"", "'")
					arrow = fmt.Sprintf("-. \"%s\" .->", safeCondition)
				}
				sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(target)))
			}
		}

		if handler, ok := g.errorEdges[spec.ID]; ok {
			sb.WriteString(fmt.Sprintf("    %s -. ⚡ error .-> %s\n", safeID, sanitizeMermaidID(handler)))
		}
	}

	if endUsed {
		sb.WriteString(fmt.Sprintf("    %s(((\"end\")))\n", sanitizeMermaidID(End)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		for _, id := range overlay.CurrentNodes {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(id)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// DOT renders the graph in Graphviz DOT format.
func DOT(g *Graph) (string, error) {
	name := "G"
	if g.id != "" {
		name = quoteDOT(g.id)
	}

	out := gographviz.NewGraph()
	if err := out.SetName(name); err != nil {
		return "", fmt.Errorf("failed to set graph name: %w", err)
	}
	if err := out.SetDir(true); err != nil {
		return "", fmt.Errorf("failed to set graph direction: %w", err)
	}

	endUsed := false
	for _, spec := range g.Nodes() {
		attrs := map[string]string{
			"label": quoteDOT(spec.ID),
			"shape": dotShape(g, spec),
		}
		if g.interruptBefore[spec.ID] {
			attrs["style"] = "dashed"
		}
		if err := out.AddNode(name, quoteDOT(spec.ID), attrs); err != nil {
			return "", fmt.Errorf("failed to add node %q: %w", spec.ID, err)
		}
	}

	addEdge := func(from, to string, attrs map[string]string) error {
		if to == End {
			endUsed = true
		}
		if err := out.AddEdge(quoteDOT(from), quoteDOT(to), true, attrs); err != nil {
			return fmt.Errorf("failed to add edge %s -> %s: %w", from, to, err)
		}
		return nil
	}

	for _, spec := range g.Nodes() {
		e, ok := g.edges[spec.ID]
		if ok {
			switch e.Kind {
			case EdgeFixed, EdgeTerminal:
				if err := addEdge(spec.ID, e.To, nil); err != nil {
					return "", err
				}
			case EdgeConditional:
				for _, target := range e.Candidates {
					attrs := map[string]string{"style": "dashed"}
					if cond, ok := e.Labels[target]; ok {
						attrs["label"] = quoteDOT(cond)
					}
					if err := addEdge(spec.ID, target, attrs); err != nil {
						return "", err
					}
				}
			}
		}
		if handler, ok := g.errorEdges[spec.ID]; ok {
			if err := addEdge(spec.ID, handler, map[string]string{"color": "red", "label": quoteDOT("error")}); err != nil {
				return "", err
			}
		}
	}

	if endUsed {
		if err := out.AddNode(name, quoteDOT(End), map[string]string{"shape": "doublecircle", "label": quoteDOT("end")}); err != nil {
			return "", fmt.Errorf("failed to add end node: %w", err)
		}
	}

	return out.String(), nil
}

func dotShape(g *Graph, spec Spec) string {
	switch {
	case spec.ID == g.entry:
		return "circle"
	case spec.Kind == KindTools:
		return "component"
	case spec.Kind == KindModel:
		return "ellipse"
	case spec.Kind == KindRetrieve:
		return "cylinder"
	case spec.Kind == KindSubgraph:
		return "box3d"
	default:
		return "box"
	}
}

func quoteDOT(s string) string {
	return strconv.Quote(s)
}
