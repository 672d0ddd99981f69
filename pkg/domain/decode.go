package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode converts loosely typed data (as produced by JSON or YAML decoding)
// into out, honouring the json tags of the target types.
func Decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("failed to decode %T: %w", out, err)
	}
	return nil
}

// MessagesOf interprets a field value as a conversation.
// Values that cannot be interpreted yield nil.
func MessagesOf(v any) []Message {
	switch msgs := v.(type) {
	case nil:
		return nil
	case []Message:
		return msgs
	case Message:
		return []Message{msgs}
	}
	var out []Message
	if err := Decode(v, &out); err != nil {
		return nil
	}
	return out
}

// EnvelopesOf interprets a field value as a list of mailbox envelopes.
func EnvelopesOf(v any) []Envelope {
	switch envs := v.(type) {
	case nil:
		return nil
	case []Envelope:
		return envs
	}
	var out []Envelope
	if err := Decode(v, &out); err != nil {
		return nil
	}
	return out
}

// PassagesOf interprets a field value as retrieved passages.
func PassagesOf(v any) []Passage {
	switch ps := v.(type) {
	case nil:
		return nil
	case []Passage:
		return ps
	}
	var out []Passage
	if err := Decode(v, &out); err != nil {
		return nil
	}
	return out
}
