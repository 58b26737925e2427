package archive

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/util"
)

// commit writes the merged member set to a temporary file and renames it over
// the container path. Callers hold c.mu.
func (c *Container) commit() (err error) {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive folder %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := zip.NewWriter(tmp)
	for _, name := range c.listLocked("") {
		if err := c.writeMember(w, name); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish archive %s: %w", c.path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync archive %s: %w", c.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("replace archive %s: %w", c.path, err)
	}
	c.dirty = false
	return nil
}

func (c *Container) writeMember(w *zip.Writer, name string) error {
	if _, ok := c.written[name]; ok {
		data, err := util.ReadFile(c.staged, name)
		if err != nil {
			return fmt.Errorf("read staged %s: %w", name, err)
		}
		fw, err := w.CreateHeader(memberHeader(name))
		if err != nil {
			return fmt.Errorf("add member %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("write member %s: %w", name, err)
		}
		return nil
	}
	if raw, ok := c.copied[name]; ok {
		hdr := raw.header
		hdr.Name = name
		fw, err := w.CreateRaw(&hdr)
		if err != nil {
			return fmt.Errorf("add member %s: %w", name, err)
		}
		if _, err := fw.Write(raw.data); err != nil {
			return fmt.Errorf("write member %s: %w", name, err)
		}
		return nil
	}
	f, ok := c.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := w.Copy(f); err != nil {
		return fmt.Errorf("copy member %s: %w", name, err)
	}
	return nil
}
