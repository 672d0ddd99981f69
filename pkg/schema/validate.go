package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Field is one declared input.
type Field struct {
	Type     Type
	Optional bool
}

// Schema maps field names to their declarations.
type Schema map[string]Field

// Parse builds a Schema from field names to type names.
// A trailing "?" on the type name marks the field optional.
func Parse(types map[string]string) (Schema, error) {
	out := make(Schema, len(types))
	for name, typeName := range types {
		optional := strings.HasSuffix(strings.TrimSpace(typeName), "?")
		t, err := ParseType(strings.TrimSuffix(strings.TrimSpace(typeName), "?"))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = Field{Type: t, Optional: optional}
	}
	return out, nil
}

// Names returns the declared fields in lexical order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks data against the schema. Failures are reported in field
// order as an *AggregateError. Undeclared fields are allowed.
func (s Schema) Validate(data map[string]any) error {
	var errs []error
	for _, name := range s.Names() {
		f := s[name]
		value, ok := data[name]
		if !ok || value == nil {
			if !f.Optional {
				errs = append(errs, &ValidationError{Key: name, Reason: "required"})
			}
			continue
		}
		if err := f.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: name, Reason: err.Error(), Value: value})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Key    string
	Reason string
	Value  any
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %T)", e.Key, e.Reason, e.Value)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err)
	}
	return sb.String()
}

// Unwrap exposes the individual failures to errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}
