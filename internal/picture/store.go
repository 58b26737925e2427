package picture

import (
	"bytes"
	"fmt"
	"path"

	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/raster"
)

// Member names inside a sheet folder.
const (
	InitialMember = "initial.png"
	BinaryMember  = "binary.runs.xz"
)

// legacyMembers are older encodings superseded by BinaryMember.
var legacyMembers = []string{"binary.png", "BINARY.xml"}

// Sink receives the durable rasters of a picture.
type Sink interface {
	WriteFile(name string, data []byte) error
	Remove(name string) error
	Exists(name string) bool
}

// Store writes the durable rasters that changed since the last Store into
// folder and prunes legacy members. Once the binary image is stored, the
// initial image is dropped unless KeepBase is set.
func (p *Picture) Store(sink Sink, folder string) error {
	p.mu.Lock()
	table, tableDirty := p.table, p.tableDirty
	initial, baseDirty := p.initial, p.baseDirty
	p.mu.Unlock()

	if table != nil && tableDirty {
		data, err := table.Bytes()
		if err != nil {
			return fmt.Errorf("encode %s: %w", Binary, err)
		}
		if err := sink.WriteFile(path.Join(folder, BinaryMember), data); err != nil {
			return fmt.Errorf("store %s: %w", Binary, err)
		}
	}

	binaryStored := table != nil || sink.Exists(path.Join(folder, BinaryMember))
	keepBase := p.opts.KeepBase || !binaryStored
	initialName := path.Join(folder, InitialMember)
	switch {
	case keepBase && baseDirty:
		if initial == nil {
			return fmt.Errorf("store %s: %w", Base, ErrUnavailable)
		}
		var buf bytes.Buffer
		if err := raster.EncodePNG(&buf, initial); err != nil {
			return fmt.Errorf("encode %s: %w", Base, err)
		}
		if err := sink.WriteFile(initialName, buf.Bytes()); err != nil {
			return fmt.Errorf("store %s: %w", Base, err)
		}
	case !keepBase:
		if err := sink.Remove(initialName); err != nil {
			return fmt.Errorf("drop %s: %w", Base, err)
		}
	}

	for _, legacy := range legacyMembers {
		name := path.Join(folder, legacy)
		if !sink.Exists(name) {
			continue
		}
		if err := sink.Remove(name); err != nil {
			return fmt.Errorf("prune %s: %w", name, err)
		}
		p.logger.Debug("legacy raster pruned", logging.String("member", name))
	}

	p.mu.Lock()
	if p.table == table {
		p.tableDirty = false
	}
	if p.initial == initial {
		p.baseDirty = false
		if !keepBase {
			p.initial = nil
		}
	}
	p.mu.Unlock()
	return nil
}

// Dirty reports whether Store would write any raster.
func (p *Picture) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tableDirty || (p.baseDirty && p.initial != nil)
}

// MarkDirty makes the next Store rewrite every raster still held in memory.
// The book calls it when a staged write was lost because the container
// commit failed.
func (p *Picture) MarkDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tableDirty = p.table != nil
	p.baseDirty = p.initial != nil
}
