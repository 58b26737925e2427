package stepexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/step"
	"github.com/Audiveris/audiveris-sub014/internal/workpool"
)

// Options controls the execution of one step on one sheet.
type Options struct {
	Logger   *slog.Logger
	Pool     *workpool.Pool
	Registry *sheet.Registry
	Timeout  time.Duration
	Step     step.Step
	Sheet    *sheet.Sheet
}

// Run executes a single step body on a pool goroutine and waits for it under
// the configured timeout.
//
// The sheet is marked modified and cleared of what the step and its
// successors produced before the body starts. A timeout or cancelled ctx
// yields an error wrapping step.ErrCancelled; the body is asked to stop but
// may keep running briefly. Any other failure wraps step.ErrStep unless the
// body already tagged it with step.ErrInvalidSheet. Run never records the
// step as done; that is the caller's decision on a nil return.
func Run(ctx context.Context, opts Options) error {
	if opts.Pool == nil {
		return fmt.Errorf("worker pool is required")
	}
	if opts.Registry == nil {
		return fmt.Errorf("step registry is required")
	}
	if opts.Sheet == nil {
		return step.Wrap(step.ErrLoad, opts.Step.String(), "run", "sheet not materialized", nil)
	}

	stepName := opts.Step.String()
	stepCtx := logging.WithStep(ctx, stepName)
	stepLogger := logging.WithContext(stepCtx, opts.Logger)
	runner := opts.Registry.Runner(opts.Step)

	stepLogger.Debug(
		"step started",
		logging.String(logging.FieldEventType, "step_start"),
		logging.Duration("timeout", opts.Timeout),
	)
	started := time.Now()

	opts.Sheet.SetModified(true)
	opts.Sheet.ResetFrom(opts.Step)

	future, err := opts.Pool.Submit(stepCtx, func(taskCtx context.Context) error {
		return runner.Run(taskCtx, opts.Sheet)
	})
	if err != nil {
		return handleFailure(stepLogger, stepName, classify(stepName, err), started)
	}
	if err := future.Wait(stepCtx, opts.Timeout); err != nil {
		return handleFailure(stepLogger, stepName, classify(stepName, err), started)
	}

	stepLogger.Info(
		"step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func classify(stepName string, err error) error {
	switch {
	case errors.Is(err, step.ErrCancelled), errors.Is(err, step.ErrStep), errors.Is(err, step.ErrInvalidSheet):
		return err
	case errors.Is(err, workpool.ErrTimeout):
		return step.Wrap(step.ErrCancelled, stepName, "wait", "timed out", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return step.Wrap(step.ErrCancelled, stepName, "wait", "cancelled", err)
	default:
		return step.Wrap(step.ErrStep, stepName, "run", "", err)
	}
}

func handleFailure(logger *slog.Logger, stepName string, stepErr error, started time.Time) error {
	attrs := []logging.Attr{
		logging.String("resolved_step", stepName),
		logging.Duration("elapsed", time.Since(started)),
		logging.Error(stepErr),
	}
	switch {
	case errors.Is(stepErr, step.ErrCancelled):
		logging.WarnWithContext(logger, "step cancelled", "step_cancelled", append(attrs,
			logging.String(logging.FieldErrorHint, "raise processing.step_timeout_seconds or inspect the page"),
			logging.String(logging.FieldImpact, "remaining steps for this sheet skipped"),
		)...)
	case errors.Is(stepErr, step.ErrInvalidSheet):
		logging.WarnWithContext(logger, "sheet invalid", "sheet_invalid", append(attrs,
			logging.String(logging.FieldErrorHint, "the page holds no music; it will be skipped"),
			logging.String(logging.FieldImpact, "sheet excluded from scores"),
		)...)
	default:
		logging.ErrorWithContext(logger, "step failed", "step_failure", attrs...)
	}
	return stepErr
}
