package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
)

// Gray levels used by binary rasters.
const (
	Foreground byte = 0
	Background byte = 255
)

// Gray is an 8-bit raster, row-major, 0 black and 255 white.
type Gray struct {
	Width  int
	Height int
	Pix    []byte
}

// NewGray returns a white raster of the given size.
func NewGray(width, height int) *Gray {
	pix := make([]byte, width*height)
	for i := range pix {
		pix[i] = Background
	}
	return &Gray{Width: width, Height: height, Pix: pix}
}

// At returns the level at (x, y). Out-of-bounds reads are background.
func (g *Gray) At(x, y int) byte {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return Background
	}
	return g.Pix[y*g.Width+x]
}

// Set writes the level at (x, y); out-of-bounds writes are ignored.
func (g *Gray) Set(x, y int, v byte) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}
	g.Pix[y*g.Width+x] = v
}

// Clone returns a deep copy.
func (g *Gray) Clone() *Gray {
	return &Gray{Width: g.Width, Height: g.Height, Pix: append([]byte(nil), g.Pix...)}
}

// Equal reports whether both rasters have identical size and content.
func (g *Gray) Equal(other *Gray) bool {
	if g == nil || other == nil {
		return g == other
	}
	return g.Width == other.Width && g.Height == other.Height && bytes.Equal(g.Pix, other.Pix)
}

// Image exposes the raster as an *image.Gray sharing its pixels.
func (g *Gray) Image() *image.Gray {
	return &image.Gray{Pix: g.Pix, Stride: g.Width, Rect: image.Rect(0, 0, g.Width, g.Height)}
}

// FromImage converts any decoded image to gray.
func FromImage(img image.Image) (*Gray, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image bounds %v", b)
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], src.Pix[off:off+b.Dx()])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}
	return &Gray{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}, nil
}

// DecodePNG reads a PNG stream into a gray raster.
func DecodePNG(r io.Reader) (*Gray, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return FromImage(img)
}

// EncodePNG writes the raster as an 8-bit gray PNG.
func EncodePNG(w io.Writer, g *Gray) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, g.Image()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
