package book

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Audiveris/audiveris-sub014/internal/archive"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/step"
	"github.com/Audiveris/audiveris-sub014/internal/textutil"
)

var (
	// ErrClosed reports use of a closed book.
	ErrClosed = errors.New("book closed")
	// ErrBusy reports a stub that is being processed.
	ErrBusy = errors.New("stub busy")
	// ErrNoStub reports an unknown stub number.
	ErrNoStub = errors.New("no such stub")
	// ErrDigestMismatch reports a sheet folder whose content no longer
	// matches the digest recorded when it was stored.
	ErrDigestMismatch = errors.New("sheet folder digest mismatch")
)

// Book is the persistent collection of stubs for one input work, bound to
// at most one archive file.
//
// b.mu serializes archive I/O and structural changes. It is never held
// while a step body runs.
type Book struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger

	id         string
	radix      string
	alias      string
	inputPath  string
	path       string
	exportPath string
	printPath  string
	stubs      []*Stub
	removed    []int
	scores     []Score
	modified   bool

	closing atomic.Bool
}

// New creates an unsaved book from an image file or a folder of images,
// with one stub per page.
func New(input string, opts Options) (*Book, error) {
	pages, err := DiscoverPages(input)
	if err != nil {
		return nil, err
	}
	radix := textutil.Radix(input)
	if opts.Alias != "" {
		radix = textutil.SanitizeFileName(opts.Alias)
	}
	b := newBook(opts, radix)
	b.id = uuid.NewString()
	b.alias = opts.Alias
	b.inputPath = input
	b.modified = true
	for i, src := range pages {
		b.stubs = append(b.stubs, newStub(b, i+1, src))
	}
	b.logger.Info("book created",
		logging.String(logging.FieldEventType, "book_created"),
		logging.String("input", input),
		logging.Int("stubs", len(b.stubs)),
	)
	return b, nil
}

// Load opens a stored book. Sheets stay on disk until first needed.
func Load(path string, opts Options) (*Book, error) {
	c, err := archive.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	data, err := c.ReadFile(DocumentName)
	closeErr := c.Close()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", DocumentName, err)
	}
	if closeErr != nil {
		return nil, closeErr
	}

	doc, res, err := bookCodec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	radix := doc.Radix
	if radix == "" {
		radix = textutil.Radix(path)
	}
	b := newBook(opts, radix)
	b.id = doc.ID
	b.alias = doc.Alias
	b.inputPath = doc.Input
	b.path = path
	b.exportPath = doc.ExportPath
	b.printPath = doc.PrintPath
	b.modified = res.Upgraded
	for _, sd := range doc.Stubs {
		s := newStub(b, sd.Number, sd.Source)
		s.restore(sd)
		b.stubs = append(b.stubs, s)
	}
	b.scores = doc.Scores

	if res.Version < sheetsCompatibleFrom {
		b.resetStubsToBinary()
	}
	logger := b.logger
	if res.Upgraded {
		logger = logger.With(logging.Int("from_version", res.Version))
	}
	logger.Info("book loaded",
		logging.String(logging.FieldEventType, "book_loaded"),
		logging.String("path", path),
		logging.Int("stubs", len(b.stubs)),
		logging.Bool("upgraded", res.Upgraded),
	)
	return b, nil
}

func newBook(opts Options, radix string) *Book {
	opts = opts.withDefaults()
	b := &Book{
		opts:  opts,
		radix: radix,
	}
	b.logger = logging.NewBookLogger(opts.Logger, radix)
	return b
}

// resetStubsToBinary makes every stub of an outdated book restart from its
// stored binary image the next time it is needed.
func (b *Book) resetStubsToBinary() {
	for _, s := range b.stubs {
		s.stateMu.Lock()
		if s.done.Has(step.Binary) {
			s.done = step.RollbackToBinary.Kept()
			s.restart = step.RollbackToBinary
		} else {
			s.done = step.Set{}
			s.restart = step.RollbackNone
		}
		s.pages = nil
		s.modified = true
		s.stateMu.Unlock()
	}
	b.scores = nil
	b.modified = true
	logging.WarnWithContext(b.logger, "book predates current sheet format", "book_outdated",
		logging.String(logging.FieldErrorHint, "reprocess the book to restore recognition results"),
		logging.String(logging.FieldImpact, "sheets restart from their binary image"),
	)
}

// ID returns the book identifier.
func (b *Book) ID() string { return b.id }

// Radix returns the book name used for file naming.
func (b *Book) Radix() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.radix
}

// Alias returns the user-chosen short name, if any.
func (b *Book) Alias() string { return b.alias }

// InputPath returns the image file or folder the book was created from.
func (b *Book) InputPath() string { return b.inputPath }

// Path returns the archive the book is bound to, or "" before the first
// store.
func (b *Book) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// ExportPath returns the path of the last score export, if any.
func (b *Book) ExportPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exportPath
}

// SetExportPath records where scores are exported.
func (b *Book) SetExportPath(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exportPath = p
	b.modified = true
}

// PrintPath returns the path of the last print output, if any.
func (b *Book) PrintPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.printPath
}

// SetPrintPath records where the book is printed.
func (b *Book) SetPrintPath(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.printPath = p
	b.modified = true
}

// DefaultSavePath returns where the book is stored when no path is given.
func (b *Book) DefaultSavePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.defaultSavePathLocked()
}

func (b *Book) defaultSavePathLocked() string {
	name := b.radix + Extension
	if b.opts.SeparateFolders {
		return filepath.Join(b.opts.BaseDir, b.radix, name)
	}
	return filepath.Join(b.opts.BaseDir, name)
}

// Stubs returns the stubs in page order.
func (b *Book) Stubs() []*Stub {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Stub(nil), b.stubs...)
}

// Stub returns the stub numbered n.
func (b *Book) Stub(n int) (*Stub, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.stubs {
		if s.number == n {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNoStub, n)
}

// ValidStubs returns the stubs not flagged invalid.
func (b *Book) ValidStubs() []*Stub {
	var out []*Stub
	for _, s := range b.Stubs() {
		if !s.Invalid() {
			out = append(out, s)
		}
	}
	return out
}

// Modified reports whether the book or any stub holds unsaved changes.
func (b *Book) Modified() bool {
	b.mu.Lock()
	modified := b.modified
	stubs := append([]*Stub(nil), b.stubs...)
	b.mu.Unlock()
	if modified {
		return true
	}
	for _, s := range stubs {
		if s.Modified() {
			return true
		}
	}
	return false
}

// Scores returns the current grouping of pages into movements.
func (b *Book) Scores() []Score {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Score(nil), b.scores...)
}

// RebuildScores regroups pages into scores from the current stub state.
func (b *Book) RebuildScores() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuildScoresLocked()
}

func (b *Book) rebuildScoresLocked() {
	input := make([]stubPages, 0, len(b.stubs))
	for _, s := range b.stubs {
		s.stateMu.Lock()
		input = append(input, stubPages{number: s.number, invalid: s.invalid, pages: s.pages})
		s.stateMu.Unlock()
	}
	b.scores = groupScores(input)
	b.modified = true
	b.logger.Debug("scores rebuilt", logging.Int("scores", len(b.scores)))
}

// RemoveStub drops stub n. Its archive folder is deleted on the next store.
func (b *Book) RemoveStub(n int) error {
	s, err := b.Stub(n)
	if err != nil {
		return err
	}
	if !s.mu.TryLock() {
		return fmt.Errorf("%w: %s", ErrBusy, s)
	}
	defer s.mu.Unlock()

	b.mu.Lock()
	for i, candidate := range b.stubs {
		if candidate == s {
			b.stubs = append(b.stubs[:i], b.stubs[i+1:]...)
			break
		}
	}
	b.removed = append(b.removed, n)
	b.rebuildScoresLocked()
	b.mu.Unlock()

	s.stateMu.Lock()
	sh := s.sheet
	s.sheet = nil
	s.stateMu.Unlock()
	if sh != nil {
		sh.Dispose()
	}
	b.logger.Info("stub removed", logging.Sheet(n))
	return nil
}

// Close releases every stub without storing. Further stub callbacks no
// longer update the book.
func (b *Book) Close() {
	if b.closing.Swap(true) {
		return
	}
	for _, s := range b.Stubs() {
		s.mu.Lock()
		s.stateMu.Lock()
		sh := s.sheet
		s.sheet = nil
		s.stateMu.Unlock()
		s.mu.Unlock()
		if sh != nil {
			sh.Dispose()
		}
	}
	b.logger.Info("book closed", logging.String(logging.FieldEventType, "book_closed"))
}

// Closing reports whether Close was called.
func (b *Book) Closing() bool { return b.closing.Load() }

func (b *Book) markModified() {
	b.mu.Lock()
	b.modified = true
	b.mu.Unlock()
}

func (b *Book) stubInvalidated() {
	if b.closing.Load() {
		return
	}
	b.RebuildScores()
}
