package domain

import (
	"reflect"
)

// Reducer combines the current value of a field with an incoming update.
// Implementations must be deterministic and must not mutate either argument.
type Reducer interface {
	Name() string
	Reduce(field string, current, update any) (any, error)
}

// Built-in reducers.
var (
	// Overwrite replaces the current value. A nil update deletes the field.
	Overwrite Reducer = overwriteReducer{}
	// Append concatenates sequences. Both sides must be slices.
	Append Reducer = appendReducer{}
	// MergeMap merges string-keyed mappings, update keys win.
	MergeMap Reducer = mergeMapReducer{}
)

type overwriteReducer struct{}

func (overwriteReducer) Name() string { return "overwrite" }

func (overwriteReducer) Reduce(_ string, _, update any) (any, error) {
	return update, nil
}

type appendReducer struct{}

func (appendReducer) Name() string { return "append" }

func (r appendReducer) Reduce(field string, current, update any) (any, error) {
	if update == nil {
		return current, nil
	}
	uv := reflect.ValueOf(update)
	if uv.Kind() != reflect.Slice && uv.Kind() != reflect.Array {
		return nil, &ReducerMismatchError{Field: field, Reducer: r.Name(), Value: update, Reason: "update is not a sequence"}
	}

	if current == nil {
		out := reflect.MakeSlice(reflect.SliceOf(uv.Type().Elem()), 0, uv.Len())
		return reflect.AppendSlice(out, uv.Slice(0, uv.Len())).Interface(), nil
	}

	cv := reflect.ValueOf(current)
	if cv.Kind() != reflect.Slice {
		return nil, &ReducerMismatchError{Field: field, Reducer: r.Name(), Value: current, Reason: "current value is not a sequence"}
	}

	elem := cv.Type().Elem()
	out := reflect.MakeSlice(cv.Type(), 0, cv.Len()+uv.Len())
	out = reflect.AppendSlice(out, cv)

	if uv.Type().Elem() == elem {
		return reflect.AppendSlice(out, uv.Slice(0, uv.Len())).Interface(), nil
	}

	// Element types differ (e.g. []any holding Messages): append one by one.
	for i := 0; i < uv.Len(); i++ {
		item := uv.Index(i)
		if item.Kind() == reflect.Interface && !item.IsNil() {
			item = item.Elem()
		}
		if !item.IsValid() || !item.Type().AssignableTo(elem) {
			return nil, &ReducerMismatchError{Field: field, Reducer: r.Name(), Value: update, Reason: "element type " + typeName(item) + " does not match " + elem.String()}
		}
		out = reflect.Append(out, item)
	}
	return out.Interface(), nil
}

type mergeMapReducer struct{}

func (mergeMapReducer) Name() string { return "merge" }

func (r mergeMapReducer) Reduce(field string, current, update any) (any, error) {
	if update == nil {
		return current, nil
	}
	uv := reflect.ValueOf(update)
	if uv.Kind() != reflect.Map || uv.Type().Key().Kind() != reflect.String {
		return nil, &ReducerMismatchError{Field: field, Reducer: r.Name(), Value: update, Reason: "update is not a string-keyed mapping"}
	}

	merged := make(map[string]any)
	if current != nil {
		cv := reflect.ValueOf(current)
		if cv.Kind() != reflect.Map || cv.Type().Key().Kind() != reflect.String {
			return nil, &ReducerMismatchError{Field: field, Reducer: r.Name(), Value: current, Reason: "current value is not a string-keyed mapping"}
		}
		iter := cv.MapRange()
		for iter.Next() {
			merged[iter.Key().String()] = iter.Value().Interface()
		}
	}
	iter := uv.MapRange()
	for iter.Next() {
		merged[iter.Key().String()] = iter.Value().Interface()
	}
	return merged, nil
}

type customReducer struct {
	name string
	fn   func(current, update any) (any, error)
}

// Custom wraps a function as a named Reducer.
// Errors returned by fn are reported as ReducerMismatchError for the field.
func Custom(name string, fn func(current, update any) (any, error)) Reducer {
	return customReducer{name: name, fn: fn}
}

func (c customReducer) Name() string { return c.name }

func (c customReducer) Reduce(field string, current, update any) (any, error) {
	out, err := c.fn(current, update)
	if err != nil {
		return nil, &ReducerMismatchError{Field: field, Reducer: c.name, Value: update, Reason: err.Error()}
	}
	return out, nil
}

func typeName(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}
