package domain

import (
	"reflect"
)

// StateDiff represents the changes a merge applied to a state.
// It is recorded in the execution trace and serialized as JSON.
type StateDiff struct {
	// Fields contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Fields map[string]any `json:"fields,omitempty"`

	// Messages contains messages appended to the conversation.
	// A rewritten history is reported under Fields instead.
	Messages []Message `json:"messages,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// A nil oldState yields a diff describing the entire newState.
// It returns nil when nothing changed.
func Diff(oldState, newState State) *StateDiff {
	diff := &StateDiff{
		Fields:   diffFields(oldState, newState),
		Messages: diffMessages(oldState, newState),
	}
	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffFields(old, new State) map[string]any {
	delta := make(map[string]any)

	for k, newVal := range new {
		if k == FieldMessages && appendedOnly(old, new) {
			continue
		}
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// appendedOnly reports whether the conversation only grew between the two states.
func appendedOnly(old, new State) bool {
	if _, ok := new[FieldMessages]; !ok {
		return false
	}
	oldMsgs := old.Messages()
	newMsgs := new.Messages()
	if len(oldMsgs) == 0 {
		return true
	}
	if len(newMsgs) < len(oldMsgs) {
		return false
	}
	return reflect.DeepEqual(oldMsgs, newMsgs[:len(oldMsgs)])
}

func diffMessages(old, new State) []Message {
	if !appendedOnly(old, new) {
		return nil
	}
	oldLen := len(old.Messages())
	newMsgs := new.Messages()
	if len(newMsgs) == oldLen {
		return nil
	}
	return newMsgs[oldLen:]
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d == nil || (len(d.Fields) == 0 && len(d.Messages) == 0)
}
