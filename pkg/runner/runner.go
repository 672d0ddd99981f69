package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// ErrRunFinished is returned when a stored run can no longer be continued.
var ErrRunFinished = errors.New("run has already finished")

// Runner drives one run of an engine through its suspensions.
type Runner struct {
	engine   ports.Engine
	handler  IOHandler
	logger   *slog.Logger
	headless bool
}

// New creates a Runner for engine.
func New(engine ports.Engine, opts ...Option) *Runner {
	r := &Runner{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = NewTextHandler(nil, nil)
	}
	return r
}

// Run starts runID with input, or continues it when a suspended checkpoint
// is stored under runID. It returns when the run finishes, when the input
// ends (the run stays suspended) or, in headless mode, at the first
// suspension.
func (r *Runner) Run(ctx context.Context, runID string, input domain.State) (*domain.Result, error) {
	res, err := r.start(ctx, runID, input)
	for err == nil && res.Suspended() {
		if err := r.handler.Output(ctx, res); err != nil {
			return res, err
		}
		if r.headless {
			return res, nil
		}

		update, inErr := r.handler.Input(ctx)
		if errors.Is(inErr, io.EOF) || errors.Is(inErr, ErrQuit) {
			r.logger.Info("Session Paused", "run_id", res.RunID)
			return res, nil
		}
		if errors.Is(inErr, ErrInputTooLarge) || errors.Is(inErr, ErrInvalidUTF8) {
			r.logger.Warn("Input Rejected", "run_id", res.RunID, "err", inErr)
			continue
		}
		if inErr != nil {
			return res, inErr
		}
		res, err = r.engine.ResumeRun(ctx, res.RunID, update)
	}

	if res != nil {
		if outErr := r.handler.Output(ctx, res); outErr != nil && err == nil {
			err = outErr
		}
	}
	return res, err
}

func (r *Runner) start(ctx context.Context, runID string, input domain.State) (*domain.Result, error) {
	if runID != "" {
		cp, err := r.engine.Checkpoint(ctx, runID)
		switch {
		case err == nil:
			return r.continueStored(ctx, cp, input)
		case errors.Is(err, domain.ErrCheckpointNotFound), errors.Is(err, arbor.ErrNoCheckpointStore):
		default:
			return nil, err
		}
	}
	r.logger.Info("Session Created", "run_id", runID)
	return r.engine.Run(ctx, runID, input)
}

func (r *Runner) continueStored(ctx context.Context, cp *domain.Checkpoint, input domain.State) (*domain.Result, error) {
	if cp.Status != domain.StatusSuspended {
		return nil, fmt.Errorf("run %s is %s: %w", cp.RunID, cp.Status, ErrRunFinished)
	}
	r.logger.Info("Session Resumed", "run_id", cp.RunID, "step", cp.Step)
	if len(input) > 0 {
		return r.engine.ResumeRun(ctx, cp.RunID, domain.Update(input))
	}
	return &domain.Result{
		RunID:      cp.RunID,
		Status:     cp.Status,
		State:      cp.State,
		Steps:      cp.Step,
		Checkpoint: cp,
	}, nil
}
