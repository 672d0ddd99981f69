package runner

import (
	"log/slog"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithHandler configures the IOHandler. The default is a TextHandler on
// Stdin/Stdout.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.handler = handler
	}
}

// WithHeadless stops at the first suspension instead of asking for input.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.headless = headless
	}
}
