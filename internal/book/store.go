package book

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Audiveris/audiveris-sub014/internal/archive"
	"github.com/Audiveris/audiveris-sub014/internal/fileutil"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/preflight"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/step"
	"github.com/Audiveris/audiveris-sub014/internal/textutil"
)

// minFreeBytes is the free space required beside a save target.
const minFreeBytes = 1 << 20

// written tracks what a store staged, so flags are only cleared once the
// container commit succeeded.
type written struct {
	stubs []*Stub
	// bare holds stubs whose folder is missing from the container. They are
	// recorded without steps; a true value also resets the stub itself.
	bare      map[*Stub]bool
	book      bool
	committed bool
}

func (w *written) markBare(s *Stub, reset bool) {
	if w.bare == nil {
		w.bare = make(map[*Stub]bool)
	}
	w.bare[s] = reset
}

// Store writes the book to path, or to its current or default path when
// path is empty.
//
// Storing to the bound path rewrites only the book document and the folders
// of modified stubs. Storing elsewhere writes a new container: modified
// stubs are written fresh and every other folder is carried over
// byte-for-byte from the current archive, which is left untouched. The book
// is then bound to the new path. withBackup renames an existing file at a
// new path to the first free "<stem>.<N>.omr" first.
//
// A stub being processed is skipped and stays modified. A failed member
// write is logged, the remaining members are still written, and the
// failures are returned joined.
func (b *Book) Store(path string, withBackup bool) error {
	if b.closing.Load() {
		return ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if path == "" {
		path = b.path
	}
	if path == "" {
		path = b.defaultSavePathLocked()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve save path: %w", err)
	}
	path = abs

	if check := preflight.CheckSaveTarget(path, minFreeBytes); !check.Passed {
		return fmt.Errorf("%s: %s", check.Name, check.Detail)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create book folder: %w", err)
	}

	started := time.Now()
	samePath := b.path != "" && fileutil.SameFile(b.path, path)
	var (
		out      written
		storeErr error
	)
	if samePath {
		out, storeErr = b.storeInPlace(path)
	} else {
		out, storeErr = b.storeAs(path, withBackup)
	}
	if !out.committed {
		return storeErr
	}

	if !samePath {
		b.rebind(path)
	}
	b.removed = nil
	b.logger.Info("book stored",
		logging.String(logging.FieldEventType, "book_stored"),
		logging.String("path", path),
		logging.Int("sheets_written", len(out.stubs)),
		logging.Bool("save_as", !samePath),
		logging.Duration("elapsed", time.Since(started)),
	)
	return storeErr
}

func (b *Book) storeInPlace(path string) (written, error) {
	c, err := archive.Open(path)
	if err != nil {
		return written{}, err
	}
	var errs []error
	for _, n := range b.removed {
		if err := c.RemoveFolder(sheet.Folder(n)); err != nil {
			errs = append(errs, err)
		}
	}

	live := make(map[*Stub]bool, len(b.stubs))
	var out written
	for _, s := range b.stubs {
		if !s.mu.TryLock() {
			b.logBusy(s)
			continue
		}
		live[s] = true
		if s.Modified() {
			if err := b.writeStub(c, s); err != nil {
				errs = append(errs, err)
				live[s] = false
			} else {
				out.stubs = append(out.stubs, s)
			}
		}
		s.mu.Unlock()
	}
	return b.finish(c, out, live, errs)
}

func (b *Book) storeAs(path string, withBackup bool) (written, error) {
	if withBackup {
		backup, err := fileutil.Backup(path)
		if err != nil {
			return written{}, err
		}
		if backup != "" {
			b.logger.Info("previous book backed up", logging.String("backup", backup))
		}
	}

	var old *archive.Container
	if b.path != "" {
		c, err := archive.OpenReadOnly(b.path)
		if err != nil {
			logging.WarnWithContext(b.logger, "current archive unreadable", "book_archive_unreadable",
				logging.String("path", b.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "unmodified sheets are written from memory or dropped"),
			)
		} else {
			old = c
			defer old.Close()
		}
	}

	c, err := archive.Create(path)
	if err != nil {
		return written{}, err
	}
	var errs []error
	live := make(map[*Stub]bool, len(b.stubs))
	var out written
	for _, s := range b.stubs {
		folder := sheet.Folder(s.number)
		if old != nil {
			if err := c.CopyFolder(old, folder); err != nil {
				errs = append(errs, fmt.Errorf("copy %s: %w", folder, err))
			}
		}
		if !s.mu.TryLock() {
			b.logBusy(s)
			if old == nil {
				out.markBare(s, false)
			}
			continue
		}
		live[s] = true
		if old == nil && !s.HasSheet() && !s.Done().Empty() {
			logging.WarnWithContext(b.logger, "sheet data unavailable, not stored", "stub_dropped",
				logging.Sheet(s.number),
				logging.String(logging.FieldErrorHint, "the previous book archive could not be read"),
				logging.String(logging.FieldImpact, "sheet restarts from its input image"),
			)
			out.markBare(s, true)
			s.mu.Unlock()
			continue
		}
		if s.Modified() || old == nil {
			if old == nil {
				s.markRewrite()
			}
			if err := b.writeStub(c, s); err != nil {
				errs = append(errs, err)
				live[s] = false
			} else {
				out.stubs = append(out.stubs, s)
			}
		}
		s.mu.Unlock()
	}
	return b.finish(c, out, live, errs)
}

// finish writes the book document, commits the container, and clears the
// flags of what was written.
func (b *Book) finish(c *archive.Container, out written, live map[*Stub]bool, errs []error) (written, error) {
	data, err := b.encodeLocked(live, out.bare)
	if err == nil {
		err = c.WriteFile(DocumentName, data)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("write %s: %w", DocumentName, err))
	} else {
		out.book = true
	}

	if err := c.Close(); err != nil {
		for _, s := range out.stubs {
			s.markUnsaved()
		}
		logging.ErrorWithContext(b.logger, "book commit failed", "book_commit_failed",
			logging.String("path", c.Path()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions of the book folder"),
		)
		return written{}, errors.Join(append(errs, err)...)
	}

	out.committed = true
	for _, s := range out.stubs {
		s.markSaved()
	}
	for s, reset := range out.bare {
		s.forgetStored(reset)
	}
	if out.book {
		b.modified = false
	}
	for _, err := range errs {
		logging.WarnWithContext(b.logger, "book member not written", "book_member_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "member stays modified and is retried on next save"),
		)
	}
	return out, errors.Join(errs...)
}

func (b *Book) encodeLocked(live, bare map[*Stub]bool) ([]byte, error) {
	doc := bookDocument{
		ID:         b.id,
		Radix:      b.radix,
		Alias:      b.alias,
		Input:      b.inputPath,
		ExportPath: b.exportPath,
		PrintPath:  b.printPath,
		Scores:     b.scores,
	}
	for _, s := range b.stubs {
		if _, ok := bare[s]; ok {
			doc.Stubs = append(doc.Stubs, stubDocument{Number: s.number, Source: s.source})
			continue
		}
		doc.Stubs = append(doc.Stubs, s.summary(live[s]))
	}
	return bookCodec.Encode(&doc)
}

// writeStub stages the folder of s. The caller holds s.mu and b.mu.
func (b *Book) writeStub(c *archive.Container, s *Stub) error {
	folder := sheet.Folder(s.number)
	s.stateMu.Lock()
	sh := s.sheet
	empty := s.done.Empty()
	s.stateMu.Unlock()

	switch {
	case sh != nil:
		if err := sh.Store(c); err != nil {
			return err
		}
	case empty:
		if err := c.RemoveFolder(folder); err != nil {
			return err
		}
	}
	digest, err := c.Digest(folder)
	if err != nil {
		return err
	}
	s.stateMu.Lock()
	s.digest = digest
	s.stateMu.Unlock()
	return nil
}

func (b *Book) logBusy(s *Stub) {
	logging.WarnWithContext(b.logger, "sheet busy, not stored", "stub_busy",
		logging.Sheet(s.number),
		logging.String(logging.FieldErrorHint, "store again once processing ends"),
		logging.String(logging.FieldImpact, "sheet keeps its previous stored state"),
	)
}

// rebind points the book at a new archive. A new radix invalidates paths
// derived from the old one.
func (b *Book) rebind(path string) {
	b.path = path
	radix := textutil.Radix(path)
	if radix == b.radix {
		return
	}
	b.logger.Info("book renamed", logging.String("from", b.radix), logging.String("to", radix))
	b.radix = radix
	b.exportPath = ""
	b.printPath = ""
	b.logger = logging.NewBookLogger(b.opts.Logger, radix)
}

// storeStub writes the folder of s and the book document into the bound
// archive, creating it at the default path when the book was never stored.
// The caller holds s.mu.
func (b *Book) storeStub(s *Stub) error {
	if b.closing.Load() {
		return ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		c   *archive.Container
		err error
	)
	if b.path != "" {
		c, err = archive.Open(b.path)
	} else {
		target := b.defaultSavePathLocked()
		if mkErr := os.MkdirAll(filepath.Dir(target), 0o755); mkErr != nil {
			return fmt.Errorf("create book folder: %w", mkErr)
		}
		c, err = archive.Create(target)
	}
	if err != nil {
		return err
	}

	var out written
	var errs []error
	if err := b.writeStub(c, s); err != nil {
		errs = append(errs, err)
	} else {
		out.stubs = append(out.stubs, s)
	}
	// Other stubs keep their last stored summary.
	live := map[*Stub]bool{s: len(errs) == 0}
	out, err = b.finish(c, out, live, errs)
	if out.committed && b.path == "" {
		b.path = c.Path()
	}
	return err
}

// markRewrite makes the next write store every raster held in memory, for a
// container that does not have them yet.
func (s *Stub) markRewrite() {
	s.stateMu.Lock()
	sh := s.sheet
	s.stateMu.Unlock()
	if sh != nil {
		sh.Picture().MarkDirty()
	}
}

// forgetStored drops the stored summary of a stub whose folder is not in
// the bound container. reset also clears its steps so that it restarts
// from the input image.
func (s *Stub) forgetStored(reset bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.persisted = nil
	s.digest = ""
	if reset {
		s.done = step.Set{}
		s.pages = nil
		s.restart = step.RollbackNone
		s.modified = true
	}
}

func (s *Stub) markSaved() {
	s.stateMu.Lock()
	sh := s.sheet
	s.modified = false
	s.upgraded = false
	doc := stubDocument{
		Number:  s.number,
		Source:  s.source,
		Steps:   s.done.Clone(),
		Invalid: s.invalid,
		Width:   s.width,
		Height:  s.height,
		Pages:   append([]sheet.Page(nil), s.pages...),
		Digest:  s.digest,
	}
	s.persisted = &doc
	s.stateMu.Unlock()
	if sh != nil {
		sh.SetModified(false)
	}
}

func (s *Stub) markUnsaved() {
	s.stateMu.Lock()
	sh := s.sheet
	s.modified = true
	s.stateMu.Unlock()
	if sh != nil {
		sh.SetModified(true)
		sh.Picture().MarkDirty()
	}
}
