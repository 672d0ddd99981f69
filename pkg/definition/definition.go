package definition

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Document is a declarative graph as written in a YAML or JSON file.
type Document struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Entry       string `yaml:"entry" json:"entry"`
	// Inputs declares the fields a run expects, e.g. {topic: string, attempts: "int?"}.
	Inputs map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	// Fields declares reducers for state fields beyond the reserved ones.
	Fields          []FieldSpec `yaml:"fields,omitempty" json:"fields,omitempty"`
	Nodes           []NodeSpec  `yaml:"nodes" json:"nodes"`
	Edges           []EdgeSpec  `yaml:"edges,omitempty" json:"edges,omitempty"`
	Terminal        []string    `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	ErrorHandler    string      `yaml:"error_handler,omitempty" json:"error_handler,omitempty"`
	InterruptBefore []string    `yaml:"interrupt_before,omitempty" json:"interrupt_before,omitempty"`
}

// FieldSpec declares the reducer of one state field.
type FieldSpec struct {
	Name    string `yaml:"name" json:"name"`
	Reducer string `yaml:"reducer" json:"reducer"`
}

// NodeSpec declares one node. With is decoded by the factory registered for Type.
type NodeSpec struct {
	ID      string         `yaml:"id" json:"id"`
	Type    string         `yaml:"type" json:"type"`
	With    map[string]any `yaml:"with,omitempty" json:"with,omitempty"`
	Reads   []string       `yaml:"reads,omitempty" json:"reads,omitempty"`
	Writes  []string       `yaml:"writes,omitempty" json:"writes,omitempty"`
	OnError string         `yaml:"on_error,omitempty" json:"on_error,omitempty"`
}

// EdgeSpec declares the outgoing edge of a node. Exactly one form is used:
//
//   - to: fixed successor ("end" finishes the branch)
//   - branches: expression conditions evaluated in order
//   - tools + to: the tool loop, to the tools node while the last message
//     requests tools and to the successor otherwise
type EdgeSpec struct {
	From     string       `yaml:"from" json:"from"`
	To       string       `yaml:"to,omitempty" json:"to,omitempty"`
	Tools    string       `yaml:"tools,omitempty" json:"tools,omitempty"`
	Branches []BranchSpec `yaml:"branches,omitempty" json:"branches,omitempty"`
}

// BranchSpec is one conditional branch. An empty When always holds.
type BranchSpec struct {
	When string `yaml:"when,omitempty" json:"when,omitempty"`
	To   string `yaml:"to" json:"to"`
}

// Parse decodes a definition. JSON documents are accepted as YAML.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	return &doc, nil
}

// Load reads and parses the definition id from loader.
// A document without an id takes the one it was loaded under.
func Load(loader ports.GraphLoader, id string) (*Document, error) {
	data, err := loader.GetGraph(id)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", id, err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc, nil
}

// InputSchema returns the declared inputs.
func (d *Document) InputSchema() (schema.Schema, error) {
	return schema.Parse(d.Inputs)
}
