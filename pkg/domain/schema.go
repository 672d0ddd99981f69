package domain

import (
	"reflect"
	"sort"
)

// Field declares how one state field is merged and, optionally, its Go type.
type Field struct {
	Name    string
	Reducer Reducer
	// Type is used by Normalize to restore values decoded from JSON. Nil means untyped.
	Type reflect.Type
}

// Schema maps field names to reducers. Undeclared fields use Overwrite.
// A nil *Schema behaves as an empty schema.
type Schema struct {
	fields map[string]Field
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{fields: make(map[string]Field)}
}

// DefaultSchema declares the reserved fields used by messages, mailboxes,
// retrieval and error routing.
func DefaultSchema() *Schema {
	return NewSchema().
		Typed(FieldMessages, Append, []Message{}).
		Typed(FieldMailbox, Append, []Envelope{}).
		Typed(FieldOutbox, Append, []Envelope{}).
		Typed(FieldContext, Overwrite, []Passage{}).
		Typed(FieldLastError, Overwrite, NodeFailure{})
}

// Field declares an untyped field with the given reducer.
func (s *Schema) Field(name string, r Reducer) *Schema {
	return s.declare(Field{Name: name, Reducer: r})
}

// Typed declares a field whose values have the type of prototype.
func (s *Schema) Typed(name string, r Reducer, prototype any) *Schema {
	return s.declare(Field{Name: name, Reducer: r, Type: reflect.TypeOf(prototype)})
}

func (s *Schema) declare(f Field) *Schema {
	if s.fields == nil {
		s.fields = make(map[string]Field)
	}
	if f.Reducer == nil {
		f.Reducer = Overwrite
	}
	s.fields[f.Name] = f
	return s
}

// Merge returns a new schema holding the fields of s overridden by other.
func (s *Schema) Merge(other *Schema) *Schema {
	out := NewSchema()
	for _, src := range []*Schema{s, other} {
		if src == nil {
			continue
		}
		for _, f := range src.fields {
			out.fields[f.Name] = f
		}
	}
	return out
}

// Reducer returns the reducer declared for field, or Overwrite.
func (s *Schema) Reducer(field string) Reducer {
	if s != nil {
		if f, ok := s.fields[field]; ok {
			return f.Reducer
		}
	}
	return Overwrite
}

// Fields lists the declared fields sorted by name.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Apply merges update into state and returns the new state.
// The input state is never mutated. Fields absent from update are untouched.
func (s *Schema) Apply(state State, update Update) (State, error) {
	next := state.Clone()
	if len(update) == 0 {
		return next, nil
	}

	// Deterministic order keeps error reporting stable.
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		merged, err := s.Reducer(field).Reduce(field, state[field], update[field])
		if err != nil {
			return nil, err
		}
		if merged == nil {
			delete(next, field)
			continue
		}
		next[field] = merged
	}
	return next, nil
}

// Normalize converts typed fields back to their declared Go types.
// It is used after a checkpoint has been decoded from JSON.
func (s *Schema) Normalize(state State) (State, error) {
	next := state.Clone()
	if s == nil {
		return next, nil
	}
	for name, f := range s.fields {
		v, ok := next[name]
		if !ok || v == nil || f.Type == nil || reflect.TypeOf(v) == f.Type {
			continue
		}
		ptr := reflect.New(f.Type)
		if err := Decode(v, ptr.Interface()); err != nil {
			return nil, &ReducerMismatchError{Field: name, Reducer: f.Reducer.Name(), Value: v, Reason: err.Error()}
		}
		next[name] = ptr.Elem().Interface()
	}
	return next, nil
}
