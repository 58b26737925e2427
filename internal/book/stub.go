package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/step"
	"github.com/Audiveris/audiveris-sub014/internal/stepexec"
)

// Stub is the always-resident proxy of one page. It tracks completed steps
// and materializes the heavy Sheet on demand.
//
// Locking: mu serializes step processing, swaps and resets; loadMu
// serializes materialization; stateMu guards the fields below it and is
// never held while taking another lock. A goroutine holding mu may take
// loadMu and then the book lock, never the reverse.
type Stub struct {
	number int
	book   *Book
	source PageSource
	logger *slog.Logger

	mu     sync.Mutex
	loadMu sync.Mutex

	stateMu  sync.Mutex
	done     step.Set
	invalid  bool
	sheet    *sheet.Sheet
	current  step.Step
	running  bool
	modified bool
	upgraded bool
	width    int
	height   int
	pages    []sheet.Page
	digest   string
	// restart is a rollback requested while the sheet was not materialized.
	// The next materialization rebuilds from stored rasters instead of the
	// sheet document.
	restart step.Rollback
	// persisted is the stub summary matching its folder in the archive.
	persisted *stubDocument
}

func newStub(b *Book, number int, source PageSource) *Stub {
	return &Stub{
		number: number,
		book:   b,
		source: source,
		logger: b.logger.With(logging.Sheet(number)),
	}
}

// Number returns the 1-based page number.
func (s *Stub) Number() int { return s.number }

// Source returns where the page image comes from.
func (s *Stub) Source() PageSource { return s.source }

func (s *Stub) String() string { return fmt.Sprintf("stub#%d", s.number) }

// Done returns a copy of the completed steps.
func (s *Stub) Done() step.Set {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.done.Clone()
}

// Latest returns the last completed step.
func (s *Stub) Latest() (step.Step, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.done.Latest()
}

// Reached reports whether every step up to target is done.
func (s *Stub) Reached(target step.Step) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.done.Reached(target)
}

// Invalid reports whether the page was found to hold no usable content.
func (s *Stub) Invalid() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.invalid
}

// Modified reports whether the stub holds changes not yet stored.
func (s *Stub) Modified() bool {
	s.stateMu.Lock()
	sh, modified := s.sheet, s.modified || s.upgraded
	s.stateMu.Unlock()
	return modified || (sh != nil && sh.Modified())
}

// Upgraded reports whether the stored sheet document was migrated on load.
func (s *Stub) Upgraded() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.upgraded
}

// HasSheet reports whether the sheet is materialized.
func (s *Stub) HasSheet() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.sheet != nil
}

// CurrentStep returns the step being processed, if any.
func (s *Stub) CurrentStep() (step.Step, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.current, s.running
}

// Pages returns the logical pages known for the stub.
func (s *Stub) Pages() []sheet.Page {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return append([]sheet.Page(nil), s.pages...)
}

// ReachStep brings the stub to target, running each missing step in order.
//
// With force set and target not beyond the latest completed step, the stub
// first rolls back to the cheapest state from which target can be redone.
// The first failing step aborts the remaining ones. A timeout yields an
// error wrapping step.ErrCancelled; the done set is left as it was before
// the failing step.
func (s *Stub) ReachStep(ctx context.Context, target step.Step, force bool) error {
	if !target.Valid() {
		return fmt.Errorf("reach step: invalid target %d", target)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Invalid() {
		return step.Wrap(step.ErrInvalidSheet, target.String(), "reach", s.String(), nil)
	}
	ctx = logging.WithSheet(ctx, s.number)

	latest, hasLatest := s.Latest()
	if rb := step.RollbackFor(latest, hasLatest, target, force); rb != step.RollbackNone {
		s.rollbackLocked(rb)
	}

	s.stateMu.Lock()
	needed := s.done.Needed(target)
	s.stateMu.Unlock()
	if len(needed) == 0 {
		return nil
	}

	for _, st := range needed {
		if err := ctx.Err(); err != nil {
			return step.Wrap(step.ErrCancelled, st.String(), "reach", "batch cancelled", err)
		}
		if err := s.doOneStep(ctx, st); err != nil {
			if errors.Is(err, step.ErrInvalidSheet) {
				s.Invalidate()
			}
			return err
		}
	}
	return nil
}

func (s *Stub) doOneStep(ctx context.Context, st step.Step) error {
	sh, err := s.Sheet(ctx)
	if err != nil {
		return err
	}

	s.stateMu.Lock()
	s.current, s.running = st, true
	s.modified = true
	s.stateMu.Unlock()
	defer func() {
		s.stateMu.Lock()
		s.running = false
		s.stateMu.Unlock()
	}()

	b := s.book
	if err := stepexec.Run(ctx, stepexec.Options{
		Logger:   b.logger,
		Pool:     b.opts.Pool,
		Registry: b.opts.Registry,
		Timeout:  b.opts.StepTimeout,
		Step:     st,
		Sheet:    sh,
	}); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.done.Add(st)
	s.pages = sh.Pages()
	s.stateMu.Unlock()
	b.markModified()
	sh.Picture().Relax()

	if b.opts.Headless && b.opts.SaveEveryStep {
		if err := b.storeStub(s); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "sheet save after step failed", "stub_save_failed",
				logging.Step(st),
				logging.Error(err),
				logging.String(logging.FieldImpact, "sheet stays modified until the next book save"),
			)
		}
	}
	return nil
}

// Sheet returns the materialized sheet, building it on first use.
//
// Before LOAD the sheet is built from the input image. Afterwards it is
// read from the stored sheet document once its folder matches the recorded
// digest; if either fails the stub falls back to its stored binary image and
// restarts from there. When neither works the
// error wraps step.ErrLoad and the stub stays unmaterialized.
func (s *Stub) Sheet(ctx context.Context) (*sheet.Sheet, error) {
	s.stateMu.Lock()
	sh := s.sheet
	s.stateMu.Unlock()
	if sh != nil {
		return sh, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.stateMu.Lock()
	sh = s.sheet
	loaded := s.done.Has(step.Load)
	s.stateMu.Unlock()
	if sh != nil {
		return sh, nil
	}

	logger := logging.WithContext(ctx, s.logger)
	if !loaded {
		built, err := s.book.buildSheet(s)
		if err != nil {
			return nil, step.Wrap(step.ErrLoad, step.Load.String(), "build sheet", s.source.String(), err)
		}
		s.attach(built, false)
		return built, nil
	}

	s.stateMu.Lock()
	restart := s.restart
	s.stateMu.Unlock()

	var loadErr error
	if restart == step.RollbackNone {
		restored, upgraded, err := s.book.loadSheet(s)
		if err == nil {
			s.attach(restored, upgraded)
			logger.Debug("sheet loaded", logging.Bool("upgraded", upgraded))
			return restored, nil
		}
		logging.WarnWithContext(logger, "sheet document unreadable, restarting from binary", "sheet_load_fallback",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the sheet document may be corrupt"),
			logging.String(logging.FieldImpact, "steps after BINARY will be redone"),
		)
		loadErr = err
		restart = step.RollbackToBinary
	}

	rebuilt, err := s.book.restartSheet(s, restart)
	if err != nil {
		return nil, step.Wrap(step.ErrLoad, "", "load sheet", s.String(), errors.Join(loadErr, err))
	}
	s.stateMu.Lock()
	s.done = restart.Kept()
	s.restart = step.RollbackNone
	s.pages = nil
	s.modified = true
	s.stateMu.Unlock()
	s.attach(rebuilt, false)
	rebuilt.SetModified(true)
	s.book.markModified()
	logger.Debug("sheet rebuilt from stored rasters", logging.String("rollback", restart.String()))
	return rebuilt, nil
}

func (s *Stub) attach(sh *sheet.Sheet, upgraded bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.sheet = sh
	s.width = sh.Picture().Width()
	s.height = sh.Picture().Height()
	if upgraded {
		s.upgraded = true
	}
}

// Swap stores the sheet if it changed, then drops it from memory. On a
// store failure the sheet stays materialized and the error is returned.
func (s *Stub) Swap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked()
}

func (s *Stub) swapLocked() error {
	s.stateMu.Lock()
	sh := s.sheet
	s.stateMu.Unlock()
	if sh == nil {
		return nil
	}
	if s.Modified() {
		if err := s.book.storeStub(s); err != nil {
			return fmt.Errorf("swap %s: %w", s, err)
		}
	}
	s.stateMu.Lock()
	s.sheet = nil
	s.stateMu.Unlock()
	sh.Dispose()
	s.logger.Debug("sheet swapped out")
	runtime.GC()
	return nil
}

// Invalidate flags the page as holding no usable content, clears its
// logical pages, and has the book regroup its scores.
func (s *Stub) Invalidate() {
	s.stateMu.Lock()
	s.invalid = true
	s.modified = true
	s.pages = nil
	sh := s.sheet
	s.stateMu.Unlock()
	if sh != nil {
		sh.Invalidate()
	}
	s.logger.Info("sheet invalidated", logging.String(logging.FieldEventType, "sheet_invalid"))
	s.book.stubInvalidated()
}

// Reset discards everything and restarts the stub from its input image.
func (s *Stub) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbackLocked(step.RollbackFull)
}

// ResetToGray keeps LOAD and restarts from the gray image.
func (s *Stub) ResetToGray() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbackLocked(step.RollbackToGray)
}

// ResetToBinary keeps LOAD and BINARY and restarts from the binary image.
func (s *Stub) ResetToBinary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbackLocked(step.RollbackToBinary)
}

func (s *Stub) rollbackLocked(rb step.Rollback) {
	if rb == step.RollbackToGray && !s.book.grayAvailable(s) {
		rb = step.RollbackFull
	}
	s.stateMu.Lock()
	kept := rb.Kept()
	next := step.NewSet()
	for _, st := range kept.Steps() {
		if s.done.Has(st) {
			next.Add(st)
		}
	}
	s.done = next
	s.invalid = false
	s.modified = true
	s.pages = nil
	sh := s.sheet
	s.restart = step.RollbackNone
	switch {
	case rb == step.RollbackFull:
		s.sheet = nil
		s.width, s.height = 0, 0
	case sh == nil:
		s.restart = rb
	}
	s.stateMu.Unlock()

	if sh != nil {
		switch rb {
		case step.RollbackFull:
			sh.Dispose()
		case step.RollbackToGray:
			sh.ResetFrom(step.Binary)
		case step.RollbackToBinary:
			sh.ResetFrom(step.Scale)
		}
	}
	s.logger.Info("stub rolled back", logging.String("rollback", rb.String()), logging.Int("kept_steps", next.Len()))
	s.book.markModified()
}

func (s *Stub) snapshot() stubDocument {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return stubDocument{
		Number:  s.number,
		Source:  s.source,
		Steps:   s.done.Clone(),
		Invalid: s.invalid,
		Width:   s.width,
		Height:  s.height,
		Pages:   append([]sheet.Page(nil), s.pages...),
		Digest:  s.digest,
	}
}

// summary returns the entry to record in the book document: the live state
// when the stub's folder is being written, else what its folder last held.
func (s *Stub) summary(live bool) stubDocument {
	if live {
		return s.snapshot()
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.persisted != nil {
		return *s.persisted
	}
	return stubDocument{Number: s.number, Source: s.source}
}

func (s *Stub) restore(doc stubDocument) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	kept := doc
	s.persisted = &kept
	s.done = doc.Steps.Clone()
	s.invalid = doc.Invalid
	s.width = doc.Width
	s.height = doc.Height
	s.pages = doc.Pages
	s.digest = doc.Digest
}
