// Package llm adapts language-model clients to graph nodes.
//
// The engine never talks to a vendor API: a Client turns a conversation into
// the next assistant message, and Node appends that message to the state.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// ErrScriptExhausted is returned by Scripted once every response was served.
var ErrScriptExhausted = errors.New("scripted client has no responses left")

// Client generates the next assistant message for a conversation.
type Client interface {
	Generate(ctx context.Context, messages []domain.Message) (domain.Message, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, messages []domain.Message) (domain.Message, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, messages []domain.Message) (domain.Message, error) {
	return f(ctx, messages)
}

// ModelNode invokes a Client over the conversation in the state.
type ModelNode struct {
	client      Client
	system      string
	name        string
	withContext bool
}

// Option configures a ModelNode.
type Option func(*ModelNode)

// WithSystemPrompt prepends a system message to every request.
// The prompt is not written to the state.
func WithSystemPrompt(prompt string) Option {
	return func(n *ModelNode) {
		n.system = prompt
	}
}

// WithName stamps generated messages with a sender name.
func WithName(name string) Option {
	return func(n *ModelNode) {
		n.name = name
	}
}

// WithRetrievedContext includes the passages of the context field as a
// system message, after the system prompt.
func WithRetrievedContext() Option {
	return func(n *ModelNode) {
		n.withContext = true
	}
}

// Node builds a model node around client.
func Node(client Client, opts ...Option) *ModelNode {
	n := &ModelNode{client: client}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Kind implements graph.Kinded.
func (n *ModelNode) Kind() graph.Kind { return graph.KindModel }

// Invoke implements graph.Node.
func (n *ModelNode) Invoke(ctx context.Context, state domain.State) (domain.Update, error) {
	prompt := n.prompt(state)
	msg, err := n.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if msg.Role == "" {
		msg.Role = domain.RoleAssistant
	}
	if msg.Name == "" {
		msg.Name = n.name
	}
	return domain.Update{domain.FieldMessages: []domain.Message{msg}}, nil
}

func (n *ModelNode) prompt(state domain.State) []domain.Message {
	history := state.Messages()
	out := make([]domain.Message, 0, len(history)+2)
	if n.system != "" {
		out = append(out, domain.SystemMessage(n.system))
	}
	if n.withContext {
		if passages := state.Passages(); len(passages) > 0 {
			out = append(out, domain.SystemMessage(FormatPassages(passages)))
		}
	}
	return append(out, history...)
}

// FormatPassages renders retrieved passages as a numbered context block.
func FormatPassages(passages []domain.Passage) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, p.Text)
	}
	return sb.String()
}

// Scripted is a deterministic client that replays responses in order.
// It records every prompt it receives. Safe for concurrent use.
type Scripted struct {
	mu        sync.Mutex
	responses []domain.Message
	prompts   [][]domain.Message
}

// NewScripted creates a client replaying responses.
func NewScripted(responses ...domain.Message) *Scripted {
	return &Scripted{responses: responses}
}

// Generate returns the next scripted response.
func (s *Scripted) Generate(ctx context.Context, messages []domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, append([]domain.Message(nil), messages...))
	if len(s.responses) == 0 {
		return domain.Message{}, ErrScriptExhausted
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

// Prompts returns the conversations received so far.
func (s *Scripted) Prompts() [][]domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]domain.Message(nil), s.prompts...)
}
