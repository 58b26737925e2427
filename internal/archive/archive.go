package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/gofrs/flock"
)

var (
	// ErrLocked reports a container already opened for writing elsewhere.
	ErrLocked = errors.New("archive locked")
	// ErrClosed reports use of a closed container.
	ErrClosed = errors.New("archive closed")
	// ErrNotFound reports a missing member.
	ErrNotFound = errors.New("archive member not found")
	// ErrReadOnly reports a write to a container opened read-only.
	ErrReadOnly = errors.New("archive read-only")
)

// Mode selects how a container is opened.
type Mode uint8

const (
	// ReadOnly containers reject writes and take no lock.
	ReadOnly Mode = iota
	// ReadWrite containers hold an exclusive lock until closed.
	ReadWrite
)

// Container is a zip file viewed as a tree of members. Writes are staged in
// memory and committed atomically on Close: the new content is written to a
// temporary file beside the target, then renamed over it. The file on disk is
// never modified in place.
type Container struct {
	mu   sync.Mutex
	path string
	mode Mode
	lock *flock.Flock

	base    *zip.ReadCloser
	entries map[string]*zip.File

	staged  billy.Filesystem
	written map[string]struct{}
	copied  map[string]rawMember
	removed map[string]struct{}

	dirty  bool
	closed bool
}

// Open opens an existing container for reading and writing.
func Open(filePath string) (*Container, error) {
	return open(filePath, ReadWrite, false)
}

// OpenReadOnly opens an existing container for reading.
func OpenReadOnly(filePath string) (*Container, error) {
	return open(filePath, ReadOnly, false)
}

// Create deletes any file at filePath and starts an empty container there.
// Nothing is written until Close.
func Create(filePath string) (*Container, error) {
	return open(filePath, ReadWrite, true)
}

func open(filePath string, mode Mode, create bool) (*Container, error) {
	c := &Container{
		path:    filePath,
		mode:    mode,
		entries: make(map[string]*zip.File),
		staged:  memfs.New(),
		written: make(map[string]struct{}),
		copied:  make(map[string]rawMember),
		removed: make(map[string]struct{}),
	}

	if mode == ReadWrite {
		c.lock = flock.New(filePath + ".lock")
		ok, err := c.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", filePath, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLocked, filePath)
		}
	}

	if create {
		if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.releaseLock()
			return nil, fmt.Errorf("remove existing %s: %w", filePath, err)
		}
		c.dirty = true
		return c, nil
	}

	rc, err := zip.OpenReader(filePath)
	if err != nil {
		c.releaseLock()
		return nil, fmt.Errorf("open archive %s: %w", filePath, err)
	}
	c.base = rc
	for _, f := range rc.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		c.entries[f.Name] = f
	}
	return c, nil
}

// Path returns the container file path.
func (c *Container) Path() string {
	return c.path
}

// Dirty reports whether Close would rewrite the file.
func (c *Container) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Close commits staged changes, if any, and releases the container. When the
// commit fails the file on disk is left as it was.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var commitErr error
	if c.mode == ReadWrite && c.dirty {
		commitErr = c.commit()
	}
	if c.base != nil {
		if err := c.base.Close(); err != nil && commitErr == nil {
			commitErr = fmt.Errorf("close archive %s: %w", c.path, err)
		}
		c.base = nil
	}
	c.releaseLock()
	return commitErr
}

// Abort releases the container without committing staged changes.
func (c *Container) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.base != nil {
		_ = c.base.Close()
		c.base = nil
	}
	c.releaseLock()
}

func (c *Container) releaseLock() {
	if c.lock == nil {
		return
	}
	_ = c.lock.Unlock()
	_ = os.Remove(c.lock.Path())
	c.lock = nil
}

func (c *Container) checkOpen() error {
	if c.closed {
		return fmt.Errorf("%w: %s", ErrClosed, c.path)
	}
	return nil
}

func (c *Container) checkWritable() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.mode != ReadWrite {
		return fmt.Errorf("%w: %s", ErrReadOnly, c.path)
	}
	return nil
}

// cleanName normalizes a member name to a slash-separated relative path.
func cleanName(name string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid member name %q", name)
	}
	return cleaned, nil
}

// FolderPrefix returns the member-name prefix for a folder.
func FolderPrefix(folder string) string {
	folder = strings.Trim(strings.ReplaceAll(folder, "\\", "/"), "/")
	if folder == "" {
		return ""
	}
	return folder + "/"
}
