package book

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"

	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/step"
	"github.com/Audiveris/audiveris-sub014/internal/workpool"
)

// BatchError reports the stubs that failed in a batch, keyed by number.
type BatchError struct {
	Target   step.Step
	Failures map[int]error
}

func (e *BatchError) Error() string {
	numbers := e.Numbers()
	parts := make([]string, 0, len(numbers))
	for _, n := range numbers {
		parts = append(parts, fmt.Sprintf("sheet#%d: %v", n, e.Failures[n]))
	}
	return fmt.Sprintf("%d sheet(s) failed to reach %s: %s", len(numbers), e.Target, strings.Join(parts, "; "))
}

// Unwrap exposes the per-stub errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, n := range e.Numbers() {
		out = append(out, e.Failures[n])
	}
	return out
}

// Numbers lists the failed stub numbers in order.
func (e *BatchError) Numbers() []int {
	out := make([]int, 0, len(e.Failures))
	for n := range e.Failures {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Concerned resolves subset to the valid stubs it names, in page order. A
// nil subset selects every valid stub.
func (b *Book) Concerned(subset *roaring.Bitmap) []*Stub {
	var out []*Stub
	for _, s := range b.ValidStubs() {
		if subset != nil && !subset.Contains(uint32(s.number)) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ReachStep brings every concerned stub to target.
//
// Without force, a batch where every stub already reached target does
// nothing. Stubs run on the worker pool when several are concerned,
// parallel processing is enabled, and the host has spare capacity;
// otherwise they run one after the other. A failing stub never stops its
// siblings. The result is nil only if every stub succeeded, else a
// *BatchError.
func (b *Book) ReachStep(ctx context.Context, target step.Step, force bool, subset *roaring.Bitmap) error {
	if b.closing.Load() {
		return ErrClosed
	}
	stubs := b.Concerned(subset)
	if !force && allReached(stubs, target) {
		return nil
	}

	ctx = logging.WithBook(ctx, b.Radix())
	if _, ok := logging.RequestIDFromContext(ctx); !ok {
		ctx = logging.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, b.logger)
	parallel := len(stubs) > 1 && b.opts.ParallelStubs && b.opts.Pool.Headroom()
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.String("target", target.String()),
		logging.Bool("force", force),
		logging.Int("stubs", len(stubs)),
		logging.Bool("parallel", parallel),
	)
	started := time.Now()

	process := func(ctx context.Context, i int) error {
		s := stubs[i]
		if err := s.ReachStep(ctx, target, force); err != nil {
			return err
		}
		if b.opts.Headless {
			if err := s.Swap(); err != nil {
				logging.WarnWithContext(logger, "sheet swap failed", "stub_swap_failed",
					logging.Sheet(s.number),
					logging.Error(err),
					logging.String(logging.FieldImpact, "sheet stays in memory"),
				)
			}
		}
		return nil
	}

	var errs []error
	if parallel {
		errs = workpool.Each(ctx, len(stubs), b.opts.Pool.Size(), process)
	} else {
		errs = make([]error, len(stubs))
		for i := range stubs {
			errs[i] = process(ctx, i)
		}
	}

	if !b.closing.Load() {
		b.RebuildScores()
	}

	failures := make(map[int]error)
	for i, err := range errs {
		if err != nil {
			failures[stubs[i].number] = err
		}
	}
	elapsed := time.Since(started)
	if len(failures) == 0 {
		logger.Info("batch completed",
			logging.String(logging.FieldEventType, "batch_complete"),
			logging.String("target", target.String()),
			logging.Duration("elapsed", elapsed),
		)
		return nil
	}
	batchErr := &BatchError{Target: target, Failures: failures}
	logging.WarnWithContext(logger, "batch completed with failures", "batch_partial",
		logging.String("target", target.String()),
		logging.Int("failed", len(failures)),
		logging.Int("succeeded", len(stubs)-len(failures)),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldErrorHint, "inspect the failed sheets with omrbook status"),
		logging.String(logging.FieldImpact, "failed sheets stay at their last completed step"),
	)
	return batchErr
}

func allReached(stubs []*Stub, target step.Step) bool {
	for _, s := range stubs {
		if !s.Reached(target) {
			return false
		}
	}
	return true
}
