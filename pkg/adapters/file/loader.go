package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// definitionExts lists the file extensions recognised as graph definitions.
var definitionExts = []string{".yaml", ".yml", ".json"}

// Loader implements ports.GraphLoader over a directory of definition files.
// The graph ID is the file name without extension.
type Loader struct {
	Dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// GetGraph reads the definition of a graph by ID.
func (l *Loader) GetGraph(id string) ([]byte, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("invalid graph id %q", id)
	}
	for _, ext := range definitionExts {
		data, err := os.ReadFile(filepath.Join(l.Dir, id+ext))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read graph %s: %w", id, err)
		}
	}
	return nil, fmt.Errorf("graph not found: %s", id)
}

// ListGraphs returns the IDs of all definition files in the directory.
func (l *Loader) ListGraphs() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		for _, known := range definitionExts {
			if ext == known {
				id := strings.TrimSuffix(entry.Name(), ext)
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}
