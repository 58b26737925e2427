package raster

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Run is a vertical sequence of foreground pixels in one column.
type Run struct {
	Start  int32
	Length int32
}

// RunTable is the compact form of a binary raster: per column, the ordered
// foreground runs.
type RunTable struct {
	Width   int
	Height  int
	Columns [][]Run
}

var runTableMagic = [4]byte{'O', 'M', 'R', 'T'}

const runTableVersion = 1

// ErrRunTableFormat reports a malformed persisted run table.
var ErrRunTableFormat = errors.New("run table format")

// RunTableFromGray builds a run table from a binary raster. Any level other
// than Background counts as foreground.
func RunTableFromGray(g *Gray) *RunTable {
	rt := &RunTable{Width: g.Width, Height: g.Height, Columns: make([][]Run, g.Width)}
	for x := 0; x < g.Width; x++ {
		var runs []Run
		start := -1
		for y := 0; y < g.Height; y++ {
			fg := g.Pix[y*g.Width+x] != Background
			switch {
			case fg && start < 0:
				start = y
			case !fg && start >= 0:
				runs = append(runs, Run{Start: int32(start), Length: int32(y - start)})
				start = -1
			}
		}
		if start >= 0 {
			runs = append(runs, Run{Start: int32(start), Length: int32(g.Height - start)})
		}
		rt.Columns[x] = runs
	}
	return rt
}

// Gray renders the table back to a binary raster.
func (rt *RunTable) Gray() *Gray {
	g := NewGray(rt.Width, rt.Height)
	for x, runs := range rt.Columns {
		for _, r := range runs {
			for y := int(r.Start); y < int(r.Start+r.Length); y++ {
				g.Pix[y*rt.Width+x] = Foreground
			}
		}
	}
	return g
}

// Foreground counts foreground pixels.
func (rt *RunTable) Foreground() int {
	total := 0
	for _, runs := range rt.Columns {
		for _, r := range runs {
			total += int(r.Length)
		}
	}
	return total
}

// Encode writes the table as an xz-compressed varint stream.
func (rt *RunTable) Encode(w io.Writer) error {
	zw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create xz writer: %w", err)
	}
	bw := bufio.NewWriter(zw)

	var scratch [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) error {
		n := binary.PutUvarint(scratch[:], v)
		_, err := bw.Write(scratch[:n])
		return err
	}

	if _, err := bw.Write(runTableMagic[:]); err != nil {
		return err
	}
	for _, v := range []uint64{runTableVersion, uint64(rt.Width), uint64(rt.Height)} {
		if err := putUvarint(v); err != nil {
			return err
		}
	}
	for _, runs := range rt.Columns {
		if err := putUvarint(uint64(len(runs))); err != nil {
			return err
		}
		prevEnd := int32(0)
		for _, r := range runs {
			// Starts are delta-coded against the previous run end.
			if err := putUvarint(uint64(r.Start - prevEnd)); err != nil {
				return err
			}
			if err := putUvarint(uint64(r.Length)); err != nil {
				return err
			}
			prevEnd = r.Start + r.Length
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush run table: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close xz writer: %w", err)
	}
	return nil
}

// Bytes returns the encoded form.
func (rt *RunTable) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := rt.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRunTable reads a table produced by Encode.
func DecodeRunTable(r io.Reader) (*RunTable, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open xz stream: %w", ErrRunTableFormat, err)
	}
	br := bufio.NewReader(zr)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrRunTableFormat, err)
	}
	if magic != runTableMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrRunTableFormat, magic[:])
	}
	read := func(what string) (uint64, error) {
		v, err := binary.ReadUvarint(br)
		if err != nil {
			return 0, fmt.Errorf("%w: read %s: %w", ErrRunTableFormat, what, err)
		}
		return v, nil
	}
	version, err := read("version")
	if err != nil {
		return nil, err
	}
	if version != runTableVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrRunTableFormat, version)
	}
	width, err := read("width")
	if err != nil {
		return nil, err
	}
	height, err := read("height")
	if err != nil {
		return nil, err
	}
	const maxSide = 1 << 16
	if width == 0 || height == 0 || width > maxSide || height > maxSide {
		return nil, fmt.Errorf("%w: bad dimensions %dx%d", ErrRunTableFormat, width, height)
	}

	rt := &RunTable{Width: int(width), Height: int(height), Columns: make([][]Run, width)}
	for x := range rt.Columns {
		n, err := read("run count")
		if err != nil {
			return nil, err
		}
		if n > height {
			return nil, fmt.Errorf("%w: column %d has %d runs", ErrRunTableFormat, x, n)
		}
		var runs []Run
		if n > 0 {
			runs = make([]Run, 0, n)
		}
		prevEnd := uint64(0)
		for i := uint64(0); i < n; i++ {
			delta, err := read("run start")
			if err != nil {
				return nil, err
			}
			length, err := read("run length")
			if err != nil {
				return nil, err
			}
			start := prevEnd + delta
			if length == 0 || start+length > height {
				return nil, fmt.Errorf("%w: column %d run out of bounds", ErrRunTableFormat, x)
			}
			runs = append(runs, Run{Start: int32(start), Length: int32(length)})
			prevEnd = start + length
		}
		rt.Columns[x] = runs
	}
	return rt, nil
}
