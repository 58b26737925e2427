package archive

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest hashes the names and contents of every member under folder. Two
// folders with the same digest hold the same data regardless of how each was
// compressed.
func (c *Container) Digest(folder string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	prefix := FolderPrefix(folder)
	h := blake3.New()
	var size [8]byte
	for _, name := range c.listLocked(prefix) {
		data, err := c.readLocked(name)
		if err != nil {
			return "", fmt.Errorf("digest %s: %w", name, err)
		}
		rel := name[len(prefix):]
		binary.LittleEndian.PutUint64(size[:], uint64(len(rel)))
		_, _ = h.Write(size[:])
		_, _ = h.Write([]byte(rel))
		binary.LittleEndian.PutUint64(size[:], uint64(len(data)))
		_, _ = h.Write(size[:])
		_, _ = h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
