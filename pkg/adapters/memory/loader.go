package memory

import (
	"fmt"
	"sort"
)

// Loader implements ports.GraphLoader using an in-memory map.
type Loader struct {
	graphs map[string][]byte
}

// NewLoader creates a new Loader with the provided raw definitions (YAML or JSON strings).
func NewLoader(data map[string]string) *Loader {
	graphs := make(map[string][]byte)
	for k, v := range data {
		graphs[k] = []byte(v)
	}
	return &Loader{
		graphs: graphs,
	}
}

// GetGraph retrieves the raw definition of a graph by ID.
func (l *Loader) GetGraph(id string) ([]byte, error) {
	content, ok := l.graphs[id]
	if !ok {
		return nil, fmt.Errorf("graph not found: %s", id)
	}
	return content, nil
}

// ListGraphs returns all available graph IDs.
func (l *Loader) ListGraphs() ([]string, error) {
	keys := make([]string, 0, len(l.graphs))
	for k := range l.graphs {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
