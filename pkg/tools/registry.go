package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Func defines the signature for a tool implementation.
// It receives a context and a map of arguments, and returns a result or error.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Lookup resolves tool implementations by name.
type Lookup interface {
	Lookup(name string) (Func, bool)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(name string) (Func, bool)

// Lookup calls f.
func (f LookupFunc) Lookup(name string) (Func, bool) {
	return f(name)
}

type entry struct {
	tool domain.Tool
	fn   Func
}

// Registry manages the available tools. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Func) {
	r.RegisterTool(domain.Tool{Name: name}, fn)
}

// RegisterTool adds a tool together with the description offered to models.
func (r *Registry) RegisterTool(tool domain.Tool, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = entry{tool: tool, fn: fn}
}

// Lookup returns the implementation of a tool.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.fn, ok
}

// Tools lists the registered tool descriptions, sorted by name.
func (r *Registry) Tools() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tool, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute looks up a tool by name and executes it.
// Returns *domain.ToolNotFoundError if the tool is not registered.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, &domain.ToolNotFoundError{Name: name}
	}
	return fn(ctx, args)
}

// Typed adapts a function taking a struct argument.
// The argument map is decoded into T using its json tags.
func Typed[T any](fn func(ctx context.Context, args T) (any, error)) Func {
	return func(ctx context.Context, raw map[string]any) (any, error) {
		var args T
		if err := domain.Decode(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return fn(ctx, args)
	}
}
