package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MarshalJSON encodes the state so that numbers keep their kind when
// decoded again: whole float64 values are written with a fraction
// ("3.0"), so a later UnmarshalJSON can tell them from ints.
func (s State) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = markFloats(v)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a state written by MarshalJSON. Numbers without a
// fraction or exponent become int, the rest float64. Values nested in
// objects and arrays are restored the same way; declared struct types are
// left to Schema.Normalize.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	for k, v := range raw {
		raw[k] = restoreNumbers(v)
	}
	*s = State(raw)
	return nil
}

func markFloats(v any) any {
	switch x := v.(type) {
	case float64:
		return floatNumber(x)
	case float32:
		return floatNumber(float64(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = markFloats(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = markFloats(e)
		}
		return out
	default:
		return v
	}
}

func floatNumber(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		// Left as is so the encoder reports the unsupported value.
		return f
	}
	text := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(text, ".eE") {
		text += ".0"
	}
	return json.Number(text)
}

func restoreNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		return numberValue(x)
	case map[string]any:
		for k, e := range x {
			x[k] = restoreNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = restoreNumbers(e)
		}
		return x
	default:
		return v
	}
}

func numberValue(n json.Number) any {
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := strconv.ParseInt(n.String(), 10, strconv.IntSize); err == nil {
			return int(i)
		}
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return f
}
