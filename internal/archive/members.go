package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
)

// rawMember is a member carried over byte-for-byte from another container.
type rawMember struct {
	header zip.FileHeader
	data   []byte
}

func (r rawMember) open() (io.ReadCloser, error) {
	switch r.header.Method {
	case zip.Store:
		return io.NopCloser(bytes.NewReader(r.data)), nil
	case zip.Deflate:
		return flate.NewReader(bytes.NewReader(r.data)), nil
	default:
		return nil, fmt.Errorf("unsupported compression method %d for %s", r.header.Method, r.header.Name)
	}
}

// ReadFile returns the content of a member.
func (c *Container) ReadFile(name string) ([]byte, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.readLocked(name)
}

func (c *Container) readLocked(name string) ([]byte, error) {
	if _, gone := c.removed[name]; gone {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if _, ok := c.written[name]; ok {
		return util.ReadFile(c.staged, name)
	}
	if raw, ok := c.copied[name]; ok {
		rc, err := raw.open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	if f, ok := c.entries[name]; ok {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Exists reports whether a member is present.
func (c *Container) Exists(name string) bool {
	name, err := cleanName(name)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.existsLocked(name)
}

func (c *Container) existsLocked(name string) bool {
	if _, gone := c.removed[name]; gone {
		return false
	}
	if _, ok := c.written[name]; ok {
		return true
	}
	if _, ok := c.copied[name]; ok {
		return true
	}
	_, ok := c.entries[name]
	return ok
}

// List returns the sorted names of members under folder ("" lists all).
func (c *Container) List(folder string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listLocked(FolderPrefix(folder))
}

func (c *Container) listLocked(prefix string) []string {
	seen := make(map[string]struct{})
	add := func(name string) {
		if !strings.HasPrefix(name, prefix) {
			return
		}
		if _, gone := c.removed[name]; gone {
			return
		}
		seen[name] = struct{}{}
	}
	for name := range c.entries {
		add(name)
	}
	for name := range c.copied {
		add(name)
	}
	for name := range c.written {
		add(name)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Folders returns the sorted top-level folder names.
func (c *Container) Folders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := make(map[string]struct{})
	for _, name := range c.listLocked("") {
		if i := strings.IndexByte(name, '/'); i > 0 {
			set[name[:i]] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WriteFile stages data as the new content of a member.
func (c *Container) WriteFile(name string, data []byte) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritable(); err != nil {
		return err
	}
	return c.writeLocked(name, data)
}

func (c *Container) writeLocked(name string, data []byte) error {
	if dir := path.Dir(name); dir != "." {
		if err := c.staged.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("stage folder %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(c.staged, name, data, 0o644); err != nil {
		return fmt.Errorf("stage member %s: %w", name, err)
	}
	delete(c.removed, name)
	delete(c.copied, name)
	c.written[name] = struct{}{}
	c.dirty = true
	return nil
}

// Remove deletes a member. Removing a missing member is not an error.
func (c *Container) Remove(name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritable(); err != nil {
		return err
	}
	c.removeLocked(name)
	return nil
}

func (c *Container) removeLocked(name string) {
	if !c.existsLocked(name) {
		return
	}
	if _, ok := c.written[name]; ok {
		// An orphaned staged file is never committed once unlisted.
		_ = c.staged.Remove(name)
		delete(c.written, name)
	}
	delete(c.copied, name)
	if _, ok := c.entries[name]; ok {
		c.removed[name] = struct{}{}
	}
	c.dirty = true
}

// RemoveFolder deletes every member under folder.
func (c *Container) RemoveFolder(folder string) error {
	prefix := FolderPrefix(folder)
	if prefix == "" {
		return fmt.Errorf("invalid folder %q", folder)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritable(); err != nil {
		return err
	}
	for _, name := range c.listLocked(prefix) {
		c.removeLocked(name)
	}
	return nil
}

// CopyFolder replaces folder with the same folder of src. Members stored in
// src's file are carried over with their compressed bytes untouched.
func (c *Container) CopyFolder(src *Container, folder string) error {
	prefix := FolderPrefix(folder)
	if prefix == "" {
		return fmt.Errorf("invalid folder %q", folder)
	}
	if src == c {
		return nil
	}

	src.mu.Lock()
	members := make(map[string]rawMember)
	plain := make(map[string][]byte)
	var copyErr error
	if err := src.checkOpen(); err != nil {
		copyErr = err
	} else {
		for _, name := range src.listLocked(prefix) {
			if raw, ok := src.copied[name]; ok {
				members[name] = raw
				continue
			}
			if _, ok := src.written[name]; ok {
				data, err := util.ReadFile(src.staged, name)
				if err != nil {
					copyErr = fmt.Errorf("read staged %s: %w", name, err)
					break
				}
				plain[name] = data
				continue
			}
			raw, err := readRaw(src.entries[name])
			if err != nil {
				copyErr = err
				break
			}
			members[name] = raw
		}
	}
	src.mu.Unlock()
	if copyErr != nil {
		return copyErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritable(); err != nil {
		return err
	}
	for _, name := range c.listLocked(prefix) {
		c.removeLocked(name)
	}
	for name, raw := range members {
		delete(c.removed, name)
		c.copied[name] = raw
	}
	c.dirty = true
	for name, data := range plain {
		if err := c.writeLocked(name, data); err != nil {
			return err
		}
	}
	return nil
}

func readRaw(f *zip.File) (rawMember, error) {
	rc, err := f.OpenRaw()
	if err != nil {
		return rawMember{}, fmt.Errorf("open raw member %s: %w", f.Name, err)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		return rawMember{}, fmt.Errorf("read raw member %s: %w", f.Name, err)
	}
	return rawMember{header: f.FileHeader, data: data}, nil
}

func memberHeader(name string) *zip.FileHeader {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	hdr.Modified = time.Now().UTC().Truncate(time.Second)
	return hdr
}
