package raster

import (
	"fmt"
	"math"
)

// BinarizationFilter turns a gray raster into a binary one (Foreground or
// Background levels only).
type BinarizationFilter interface {
	Binarize(*Gray) *Gray
	String() string
}

// GlobalFilter marks every pixel at or below Threshold as foreground.
type GlobalFilter struct {
	Threshold int
}

func (f GlobalFilter) String() string { return fmt.Sprintf("global(threshold=%d)", f.Threshold) }

// Binarize implements BinarizationFilter.
func (f GlobalFilter) Binarize(g *Gray) *Gray {
	out := &Gray{Width: g.Width, Height: g.Height, Pix: make([]byte, len(g.Pix))}
	for i, v := range g.Pix {
		if int(v) <= f.Threshold {
			out.Pix[i] = Foreground
		} else {
			out.Pix[i] = Background
		}
	}
	return out
}

// AdaptiveFilter thresholds each pixel against the mean and standard
// deviation of its square neighbourhood:
//
//	threshold = MeanCoeff*mean + StdCoeff*stddev
type AdaptiveFilter struct {
	Window    int
	MeanCoeff float64
	StdCoeff  float64
}

func (f AdaptiveFilter) String() string {
	return fmt.Sprintf("adaptive(window=%d mean=%.2f std=%.2f)", f.Window, f.MeanCoeff, f.StdCoeff)
}

// Binarize implements BinarizationFilter.
func (f AdaptiveFilter) Binarize(g *Gray) *Gray {
	half := f.Window / 2
	if half < 1 {
		half = 1
	}
	w, h := g.Width, g.Height
	stride := w + 1
	sum := make([]int64, stride*(h+1))
	sq := make([]int64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rowSum, rowSq int64
		for x := 0; x < w; x++ {
			v := int64(g.Pix[y*w+x])
			rowSum += v
			rowSq += v * v
			sum[(y+1)*stride+x+1] = sum[y*stride+x+1] + rowSum
			sq[(y+1)*stride+x+1] = sq[y*stride+x+1] + rowSq
		}
	}

	out := &Gray{Width: w, Height: h, Pix: make([]byte, len(g.Pix))}
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h, y+half+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w, x+half+1)
			n := float64((x1 - x0) * (y1 - y0))
			s := float64(sum[y1*stride+x1] - sum[y0*stride+x1] - sum[y1*stride+x0] + sum[y0*stride+x0])
			s2 := float64(sq[y1*stride+x1] - sq[y0*stride+x1] - sq[y1*stride+x0] + sq[y0*stride+x0])
			mean := s / n
			variance := math.Max(0, s2/n-mean*mean)
			threshold := f.MeanCoeff*mean + f.StdCoeff*math.Sqrt(variance)
			if float64(g.Pix[y*w+x]) <= threshold {
				out.Pix[y*w+x] = Foreground
			} else {
				out.Pix[y*w+x] = Background
			}
		}
	}
	return out
}

// Gaussian smooths g with a separable binomial kernel of the given radius.
// Integer arithmetic keeps the result bit-identical across runs.
func Gaussian(g *Gray, radius int) *Gray {
	if radius <= 0 {
		return g.Clone()
	}
	kernel := binomialKernel(2*radius + 1)
	var total int64
	for _, k := range kernel {
		total += k
	}

	w, h := g.Width, g.Height
	tmp := make([]byte, len(g.Pix))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc int64
			for i, k := range kernel {
				xx := clamp(x+i-radius, 0, w-1)
				acc += k * int64(g.Pix[y*w+xx])
			}
			tmp[y*w+x] = byte((acc + total/2) / total)
		}
	}
	out := &Gray{Width: w, Height: h, Pix: make([]byte, len(g.Pix))}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc int64
			for i, k := range kernel {
				yy := clamp(y+i-radius, 0, h-1)
				acc += k * int64(tmp[yy*w+x])
			}
			out.Pix[y*w+x] = byte((acc + total/2) / total)
		}
	}
	return out
}

// Median replaces each pixel by the median of its square neighbourhood.
func Median(g *Gray, radius int) *Gray {
	if radius <= 0 {
		return g.Clone()
	}
	w, h := g.Width, g.Height
	out := &Gray{Width: w, Height: h, Pix: make([]byte, len(g.Pix))}
	var hist [256]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hist = [256]int{}
			n := 0
			for dy := -radius; dy <= radius; dy++ {
				yy := clamp(y+dy, 0, h-1)
				for dx := -radius; dx <= radius; dx++ {
					xx := clamp(x+dx, 0, w-1)
					hist[g.Pix[yy*w+xx]]++
					n++
				}
			}
			mid := n / 2
			acc := 0
			for level, c := range hist {
				acc += c
				if acc > mid {
					out.Pix[y*w+x] = byte(level)
					break
				}
			}
		}
	}
	return out
}

func binomialKernel(size int) []int64 {
	row := []int64{1}
	for len(row) < size {
		next := make([]int64, len(row)+1)
		next[0], next[len(row)] = 1, 1
		for i := 1; i < len(row); i++ {
			next[i] = row[i-1] + row[i]
		}
		row = next
	}
	return row
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
