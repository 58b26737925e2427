package book

import (
	"bytes"
	"errors"
	"fmt"
	"path"

	"github.com/Audiveris/audiveris-sub014/internal/archive"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/picture"
	"github.com/Audiveris/audiveris-sub014/internal/raster"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/step"
)

// errNoArchive reports a book that was never stored.
var errNoArchive = errors.New("book has no archive yet")

// stubBacking serves the durable rasters of one stub: from the book archive
// first, and for the initial image from the input file as a last resort.
type stubBacking struct {
	book   *Book
	number int
	source PageSource
}

func (sb stubBacking) member(name string) string {
	return path.Join(sheet.Folder(sb.number), name)
}

func (sb stubBacking) Initial() (*raster.Gray, error) {
	data, err := sb.book.readMember(sb.member(picture.InitialMember))
	if err == nil {
		g, decodeErr := raster.DecodePNG(bytes.NewReader(data))
		if decodeErr == nil {
			return g, nil
		}
		err = decodeErr
	}
	sb.book.logger.Debug("initial image not in archive, reading input",
		logging.Sheet(sb.number),
		logging.String("reason", err.Error()),
	)
	g, loadErr := LoadPage(sb.source)
	if loadErr != nil {
		return nil, fmt.Errorf("%w: initial image of sheet#%d: %w", picture.ErrUnavailable, sb.number, loadErr)
	}
	return g, nil
}

func (sb stubBacking) BinaryTable() (*raster.RunTable, error) {
	data, err := sb.book.readMember(sb.member(picture.BinaryMember))
	switch {
	case errors.Is(err, archive.ErrNotFound), errors.Is(err, errNoArchive):
		return nil, fmt.Errorf("%w: %s", picture.ErrUnavailable, sb.member(picture.BinaryMember))
	case err != nil:
		return nil, err
	}
	return raster.DecodeRunTable(bytes.NewReader(data))
}

// readMember reads one member of the book archive under the book lock.
func (b *Book) readMember(name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.path == "" {
		return nil, errNoArchive
	}
	c, err := archive.OpenReadOnly(b.path)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.ReadFile(name)
}

func (b *Book) backing(s *Stub) stubBacking {
	return stubBacking{book: b, number: s.number, source: s.source}
}

func (b *Book) buildSheet(s *Stub) (*sheet.Sheet, error) {
	img, err := LoadPage(s.source)
	if err != nil {
		return nil, err
	}
	pic, err := picture.New(img, b.backing(s), b.opts.Picture)
	if err != nil {
		return nil, err
	}
	return sheet.New(s.number, pic, b.logger), nil
}

// readVerified reads the sheet document of s after checking its folder
// against the recorded digest. Folders stored without a digest are read
// unchecked.
func (b *Book) readVerified(s *Stub) ([]byte, error) {
	s.stateMu.Lock()
	var want string
	if s.persisted != nil {
		want = s.persisted.Digest
	}
	s.stateMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.path == "" {
		return nil, errNoArchive
	}
	c, err := archive.OpenReadOnly(b.path)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if want != "" {
		folder := sheet.Folder(s.number)
		got, err := c.Digest(folder)
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, fmt.Errorf("%w: %s", ErrDigestMismatch, folder)
		}
	}
	return c.ReadFile(sheet.DocumentName(s.number))
}

func (b *Book) loadSheet(s *Stub) (*sheet.Sheet, bool, error) {
	data, err := b.readVerified(s)
	if err != nil {
		return nil, false, err
	}
	sh, res, err := sheet.Decode(s.number, data, b.backing(s), b.opts.Picture, b.logger)
	if err != nil {
		return nil, false, err
	}
	return sh, res.Upgraded, nil
}

// restartSheet rebuilds a bare sheet from stored rasters: the binary image
// for RollbackToBinary, the gray image for RollbackToGray.
func (b *Book) restartSheet(s *Stub, rb step.Rollback) (*sheet.Sheet, error) {
	s.stateMu.Lock()
	w, h := s.width, s.height
	s.stateMu.Unlock()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%s: page size unknown", s)
	}
	if rb != step.RollbackToGray {
		if _, err := b.backing(s).BinaryTable(); err != nil {
			return nil, err
		}
	}
	pic, err := picture.Restore(w, h, b.backing(s), b.opts.Picture)
	if err != nil {
		return nil, err
	}
	if rb == step.RollbackToGray {
		if _, err := pic.Source(picture.Base); err != nil {
			return nil, err
		}
	}
	return sheet.New(s.number, pic, b.logger), nil
}

// grayAvailable reports whether the gray image of s can still be obtained.
func (b *Book) grayAvailable(s *Stub) bool {
	s.stateMu.Lock()
	sh := s.sheet
	s.stateMu.Unlock()
	if sh != nil {
		if _, err := sh.Picture().Source(picture.Base); err == nil {
			return true
		}
	}
	_, err := b.backing(s).Initial()
	return err == nil
}
