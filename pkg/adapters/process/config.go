package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ToolConfig describes one allow-listed external command.
type ToolConfig struct {
	Name        string            `yaml:"name"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Environment map[string]string `yaml:"env"`
	Description string            `yaml:"description"`
	// Parameters is the JSON schema of the arguments offered to models.
	Parameters map[string]any `yaml:"parameters"`
	// Timeout bounds one execution; zero means the caller's deadline only.
	Timeout time.Duration `yaml:"timeout"`
}

type toolsDocument struct {
	Tools []ToolConfig `yaml:"tools"`
}

// LoadTools reads a tools file and returns the tools by name. A missing
// file yields an empty set.
func LoadTools(path string) (map[string]ToolConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]ToolConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}
	tools, err := ParseTools(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tools, nil
}

// ParseTools decodes a tools document, YAML or JSON alike. Unknown keys
// are rejected. Entries without a name are skipped; entries without a
// command are an error.
func ParseTools(data []byte) (map[string]ToolConfig, error) {
	var doc toolsDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid tools config: %w", err)
	}

	byName := make(map[string]ToolConfig, len(doc.Tools))
	for _, tool := range doc.Tools {
		switch {
		case tool.Name == "":
			continue
		case tool.Command == "":
			return nil, fmt.Errorf("tool %q has no command", tool.Name)
		}
		if _, dup := byName[tool.Name]; dup {
			return nil, fmt.Errorf("tool %q is declared twice", tool.Name)
		}
		byName[tool.Name] = tool
	}
	return byName, nil
}
