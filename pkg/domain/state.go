package domain

// Reserved field names shared by the engine, the tool loop and the coordinator.
const (
	// FieldMessages holds the conversation history ([]Message, Append).
	FieldMessages = "messages"
	// FieldMailbox holds envelopes addressed to an agent ([]Envelope, Append).
	FieldMailbox = "mailbox"
	// FieldOutbox holds envelopes an agent wants delivered ([]Envelope, Append).
	FieldOutbox = "outbox"
	// FieldContext holds retrieved passages for RAG nodes (Overwrite).
	FieldContext = "context"
	// FieldLastError records the failure routed to an error-handling node (Overwrite).
	FieldLastError = "last_error"
)

// State is the mapping threaded through one execution.
// Nodes receive clones; the engine replaces it wholesale after each merge.
type State map[string]any

// Update is a partial state returned by a node.
type Update map[string]any

// Clone returns a shallow copy of the state.
// Field values are treated as immutable by the reducers, so sharing them is safe.
func (s State) Clone() State {
	next := make(State, len(s))
	for k, v := range s {
		next[k] = v
	}
	return next
}

// Get returns the raw value of a field.
func (s State) Get(field string) (any, bool) {
	v, ok := s[field]
	return v, ok
}

// String returns a string field or "" when absent or of another type.
func (s State) String(field string) string {
	v, _ := s[field].(string)
	return v
}

// Int returns an integer field, accepting the numeric shapes JSON decoding produces.
func (s State) Int(field string) int {
	switch v := s[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return 0
	}
}

// Messages returns the conversation history stored in FieldMessages.
func (s State) Messages() []Message {
	return MessagesOf(s[FieldMessages])
}

// LastMessage returns the most recent message in the conversation, if any.
func (s State) LastMessage() (Message, bool) {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Mailbox returns the envelopes stored in FieldMailbox.
func (s State) Mailbox() []Envelope {
	return EnvelopesOf(s[FieldMailbox])
}

// Outbox returns the envelopes stored in FieldOutbox.
func (s State) Outbox() []Envelope {
	return EnvelopesOf(s[FieldOutbox])
}

// Passages returns the retrieved context stored in FieldContext.
func (s State) Passages() []Passage {
	return PassagesOf(s[FieldContext])
}

// LastError returns the failure recorded by the error-routing policy, if any.
func (s State) LastError() (NodeFailure, bool) {
	switch v := s[FieldLastError].(type) {
	case nil:
		return NodeFailure{}, false
	case NodeFailure:
		return v, true
	case *NodeFailure:
		return *v, v != nil
	default:
		var f NodeFailure
		if err := Decode(v, &f); err != nil {
			return NodeFailure{}, false
		}
		return f, true
	}
}
