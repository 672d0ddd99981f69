package agents

import "github.com/aretw0/arbor/pkg/domain"

// Mailbox is the ordered queue of undelivered envelopes.
// It is owned by a single coordination and is not safe for concurrent use.
type Mailbox struct {
	pending []domain.Envelope
}

// Post appends envelopes to the queue.
func (m *Mailbox) Post(envs ...domain.Envelope) {
	m.pending = append(m.pending, envs...)
}

// Drain removes and returns the envelopes addressed to agent, oldest first.
func (m *Mailbox) Drain(agent string) []domain.Envelope {
	var out []domain.Envelope
	kept := m.pending[:0]
	for _, env := range m.pending {
		if env.To == agent {
			out = append(out, env)
			continue
		}
		kept = append(kept, env)
	}
	m.pending = kept
	return out
}

// Pending returns a copy of the undelivered envelopes, oldest first.
func (m *Mailbox) Pending() []domain.Envelope {
	return append([]domain.Envelope(nil), m.pending...)
}

// Has reports whether any envelope is waiting for agent.
func (m *Mailbox) Has(agent string) bool {
	for _, env := range m.pending {
		if env.To == agent {
			return true
		}
	}
	return false
}

// Len returns the number of undelivered envelopes.
func (m *Mailbox) Len() int {
	return len(m.pending)
}
