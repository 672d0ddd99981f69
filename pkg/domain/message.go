package domain

import "strings"

// Role identifies the author category of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ErrorKind tags a message that carries a failure in-band.
type ErrorKind string

const (
	// ErrorKindToolNotFound marks a tool result for a name absent from the registry.
	ErrorKindToolNotFound ErrorKind = "tool_not_found"
	// ErrorKindToolExecution marks a tool result whose tool failed or panicked.
	ErrorKindToolExecution ErrorKind = "tool_execution"
)

// Message is one entry of the conversation history.
type Message struct {
	Role       Role       `json:"role" yaml:"role"`
	Content    string     `json:"content" yaml:"content"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	ErrorKind  ErrorKind  `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// UserMessage builds a user-authored text message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant-authored text message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// SystemMessage builds a system instruction message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// HasToolCalls reports whether the message requests tool executions.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// IsError reports whether the message carries an in-band failure.
func (m Message) IsError() bool {
	return m.ErrorKind != ""
}

// String renders the message as "role:content", which is handy in logs and tests.
func (m Message) String() string {
	var sb strings.Builder
	sb.WriteString(string(m.Role))
	if m.Name != "" {
		sb.WriteString("(" + m.Name + ")")
	}
	sb.WriteString(":")
	sb.WriteString(m.Content)
	return sb.String()
}

// Envelope is a mailbox entry exchanged between agents.
type Envelope struct {
	From    string  `json:"from" yaml:"from"`
	To      string  `json:"to,omitempty" yaml:"to,omitempty"`
	Message Message `json:"message" yaml:"message"`
	// Final marks the envelope as a final answer for the whole coordination.
	Final bool `json:"final,omitempty" yaml:"final,omitempty"`
}
