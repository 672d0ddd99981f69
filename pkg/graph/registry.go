package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// ErrNodeNotFound is returned when invoking an unknown node ID.
var ErrNodeNotFound = errors.New("node not found")

// Registry holds node specs in registration order.
type Registry struct {
	specs map[string]Spec
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds a node. IDs must be unique.
func (r *Registry) Register(spec Spec) error {
	if spec.ID == "" {
		return &domain.DefinitionError{Problems: []string{"node ID cannot be empty"}}
	}
	if spec.ID == End {
		return &domain.DefinitionError{Problems: []string{fmt.Sprintf("node ID %q is reserved", End)}}
	}
	if spec.Node == nil {
		return &domain.DefinitionError{Problems: []string{fmt.Sprintf("node %q has no implementation", spec.ID)}}
	}
	if _, exists := r.specs[spec.ID]; exists {
		return &domain.DuplicateNodeError{NodeID: spec.ID}
	}
	r.specs[spec.ID] = spec
	r.order = append(r.order, spec.ID)
	return nil
}

// Lookup returns the spec registered under id.
func (r *Registry) Lookup(id string) (Spec, bool) {
	s, ok := r.specs[id]
	return s, ok
}

// IDs returns node IDs in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Position returns the registration index of id, or -1.
func (r *Registry) Position(id string) int {
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

// Invoke runs a node against state.
// Errors and panics are wrapped in a NodeExecutionError; interrupts pass through untouched.
func (r *Registry) Invoke(ctx context.Context, id string, state domain.State) (update domain.Update, err error) {
	spec, ok := r.specs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	defer func() {
		if rec := recover(); rec != nil {
			update = nil
			err = &domain.NodeExecutionError{NodeID: id, Cause: fmt.Errorf("%v", rec), Panic: true}
		}
	}()

	update, err = spec.Node.Invoke(ctx, state)
	if err != nil {
		var interrupt *InterruptError
		if errors.As(err, &interrupt) {
			if interrupt.NodeID == "" {
				interrupt.NodeID = id
			}
			return nil, interrupt
		}
		return nil, &domain.NodeExecutionError{NodeID: id, Cause: err}
	}
	return update, nil
}
