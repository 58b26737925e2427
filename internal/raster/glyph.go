package raster

import "image"

// Glyph is the pixel footprint of a detected shape, such as one staff line.
// Mask holds Width*Height cells, row-major; a non-zero cell belongs to the
// glyph.
type Glyph struct {
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Mask   []byte `json:"mask"`
}

// Bounds returns the glyph box in raster coordinates.
func (gl Glyph) Bounds() image.Rectangle {
	return image.Rect(gl.Left, gl.Top, gl.Left+gl.Width, gl.Top+gl.Height)
}

// HorizontalLine returns a solid glyph, typically a staff line.
func HorizontalLine(left, top, length, thickness int) Glyph {
	mask := make([]byte, length*thickness)
	for i := range mask {
		mask[i] = 1
	}
	return Glyph{Left: left, Top: top, Width: length, Height: thickness, Mask: mask}
}

// EraseGlyphs returns a copy of g with every glyph footprint painted as
// background.
func EraseGlyphs(g *Gray, glyphs []Glyph) *Gray {
	out := g.Clone()
	for _, gl := range glyphs {
		for dy := 0; dy < gl.Height; dy++ {
			for dx := 0; dx < gl.Width; dx++ {
				idx := dy*gl.Width + dx
				if idx >= len(gl.Mask) || gl.Mask[idx] == 0 {
					continue
				}
				out.Set(gl.Left+dx, gl.Top+dy, Background)
			}
		}
	}
	return out
}
