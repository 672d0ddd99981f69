package agents

import (
	"github.com/aretw0/arbor/pkg/domain"
)

// View is what a TurnPolicy sees when choosing the next speaker.
type View struct {
	// Agents lists the agent names in registration order.
	Agents []string
	// Turn is the zero-based index of the turn being scheduled.
	Turn int
	// Last is the agent that spoke in the previous turn, "" before the first.
	Last string
	// Pending holds the undelivered envelopes, oldest first.
	Pending []domain.Envelope
}

// HasMail reports whether an envelope is waiting for agent.
func (v View) HasMail(agent string) bool {
	for _, env := range v.Pending {
		if env.To == agent {
			return true
		}
	}
	return false
}

func (v View) index(agent string) int {
	for i, a := range v.Agents {
		if a == agent {
			return i
		}
	}
	return -1
}

// TurnPolicy selects the next agent. Returning false ends the coordination.
type TurnPolicy interface {
	Next(v View) (string, bool)
}

// PolicyFunc adapts a function to the TurnPolicy interface.
type PolicyFunc func(v View) (string, bool)

// Next calls f.
func (f PolicyFunc) Next(v View) (string, bool) {
	return f(v)
}

// RoundRobin gives every agent one turn in order, then keeps cycling
// through the agents that have mail waiting. It stops after a full cycle
// in which nobody has mail.
func RoundRobin() TurnPolicy {
	return PolicyFunc(func(v View) (string, bool) {
		n := len(v.Agents)
		if n == 0 {
			return "", false
		}
		if v.Turn < n {
			return v.Agents[v.Turn], true
		}
		start := v.index(v.Last) + 1
		for i := 0; i < n; i++ {
			candidate := v.Agents[(start+i)%n]
			if v.HasMail(candidate) {
				return candidate, true
			}
		}
		return "", false
	})
}

// MailboxOrder schedules the recipient of the oldest pending envelope.
// The first agent opens the coordination when the mailbox starts empty.
func MailboxOrder() TurnPolicy {
	return PolicyFunc(func(v View) (string, bool) {
		if len(v.Pending) > 0 {
			return v.Pending[0].To, true
		}
		if v.Turn == 0 && len(v.Agents) > 0 {
			return v.Agents[0], true
		}
		return "", false
	})
}

// RouterPolicy lets a caller-supplied function pick the next speaker,
// typically by inspecting the pending envelopes.
func RouterPolicy(fn func(v View) (string, bool)) TurnPolicy {
	return PolicyFunc(fn)
}
