package runner

import (
	"context"
	"errors"

	"github.com/aretw0/arbor/pkg/domain"
)

// ErrQuit is returned by Input when the user asks to leave the session.
var ErrQuit = errors.New("quit requested")

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (terminal) and JSON (structured) modes.
type IOHandler interface {
	// Output presents a result: the interrupt payloads of a suspended run or
	// the outcome of a finished one.
	Output(ctx context.Context, res *domain.Result) error

	// Input reads the resume input of a suspended run.
	// io.EOF and ErrQuit end the session, leaving the run suspended.
	Input(ctx context.Context) (domain.Update, error)
}

// textUpdate turns a plain reply into a resume input.
func textUpdate(field, text string) domain.Update {
	update := domain.Update{domain.FieldMessages: []domain.Message{domain.UserMessage(text)}}
	if field != "" {
		update[field] = text
	}
	return update
}
