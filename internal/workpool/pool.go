package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Audiveris/audiveris-sub014/internal/logging"
)

var (
	// ErrTimeout reports a task that did not finish within its wait budget.
	ErrTimeout = errors.New("task timed out")
	// ErrPanic reports a task that panicked.
	ErrPanic = errors.New("task panicked")
)

// Pool runs tasks on goroutines bounded by a weighted semaphore.
//
// A slot stays taken until its task returns or its waiter gives up on it.
// Cancelling a task only asks it to stop, so an abandoned task may keep
// running outside the bound; Abandoned counts those.
type Pool struct {
	size      int64
	sem       *semaphore.Weighted
	inflight  atomic.Int64
	abandoned atomic.Int64
	logger    *slog.Logger
}

// New returns a pool running at most size tasks at once. A size of zero or
// less uses GOMAXPROCS.
func New(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		size:   int64(size),
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logging.NewComponentLogger(logger, "workpool"),
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return int(p.size) }

// InFlight returns the number of tasks currently holding a slot.
func (p *Pool) InFlight() int { return int(p.inflight.Load()) }

// Abandoned returns the number of tasks still running after their waiter
// gave up on them.
func (p *Pool) Abandoned() int { return int(p.abandoned.Load()) }

// Headroom reports whether running tasks side by side can pay off: the host
// has more than one processor and the pool more than one slot.
func (p *Pool) Headroom() bool {
	return p.size > 1 && runtime.GOMAXPROCS(0) > 1
}

// Future is the pending result of a submitted task.
type Future struct {
	pool   *Pool
	done   chan struct{}
	err    error
	cancel context.CancelFunc

	mu        sync.Mutex
	finished  bool
	abandoned bool
}

// Submit waits for a free slot, then starts fn on its own goroutine with a
// context derived from ctx. It fails only if ctx ends before a slot frees.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) (*Future, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire worker slot: %w", err)
	}
	taskCtx, cancel := context.WithCancel(ctx)
	f := &Future{pool: p, done: make(chan struct{}), cancel: cancel}
	p.inflight.Add(1)
	go func() {
		defer func() {
			cancel()
			f.finish()
			close(f.done)
		}()
		f.err = p.call(taskCtx, fn)
	}()
	return f, nil
}

func (p *Pool) release() {
	p.inflight.Add(-1)
	p.sem.Release(1)
}

// finish runs when the task returns. An abandoned task already gave its
// slot back.
func (f *Future) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = true
	if f.abandoned {
		f.pool.abandoned.Add(-1)
		return
	}
	f.pool.release()
}

// abandon cancels the task and frees its slot at once, so a task that
// ignores cancellation cannot starve later submissions.
func (f *Future) abandon() {
	f.cancel()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished || f.abandoned {
		return
	}
	f.abandoned = true
	f.pool.abandoned.Add(1)
	f.pool.release()
	f.pool.logger.Warn("task abandoned while still running",
		logging.String(logging.FieldEventType, "task_abandoned"),
		logging.Int("abandoned", int(f.pool.abandoned.Load())),
	)
}

func (p *Pool) call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				logging.String(logging.FieldEventType, "task_panic"),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx)
}

// Done is closed when the task has returned.
func (f *Future) Done() <-chan struct{} { return f.done }

// Cancel asks the task to stop.
func (f *Future) Cancel() { f.cancel() }

// Err returns the task result once Done is closed.
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// Wait blocks until the task returns, timeout elapses, or ctx ends. On
// timeout or ctx end the task is cancelled, its slot is released, and Wait
// returns without waiting for it. A timeout of zero or less waits without
// limit.
func (f *Future) Wait(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-f.done:
		return f.err
	case <-expired:
		f.abandon()
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		f.abandon()
		return ctx.Err()
	}
}

// Each calls fn for every index in [0, n) with at most limit calls running at
// once, and returns the per-index errors. A failing call does not stop the
// others.
func Each(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			errs[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
