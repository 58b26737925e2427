package testsupport

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteGrayPNG writes a white page of the given size with five dark staff
// lines and a note head whose position depends on seed, so distinct seeds
// yield distinct pages.
func WriteGrayPNG(t testing.TB, path string, width, height, seed int) {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	spacing := height / 8
	if spacing < 2 {
		spacing = 2
	}
	for line := 0; line < 5; line++ {
		y := spacing * (line + 2)
		if y >= height {
			break
		}
		for x := width / 10; x < width-width/10; x++ {
			img.SetGray(x, y, color.Gray{Y: 0x10})
		}
	}
	headX := (width/4 + seed*7) % (width - 4)
	headY := spacing * 3
	for y := headY; y < headY+spacing && y < height; y++ {
		for x := headX; x < headX+4; x++ {
			img.SetGray(x, y, color.Gray{Y: 0x20})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// WritePages writes n distinct page images named page-01.png onward into
// dir and returns dir.
func WritePages(t testing.TB, dir string, n int) string {
	t.Helper()
	for i := 1; i <= n; i++ {
		WriteGrayPNG(t, filepath.Join(dir, pageName(i)), 64, 48, i)
	}
	return dir
}

func pageName(i int) string {
	return fmt.Sprintf("page-%02d.png", i)
}

// WriteBlankPNG writes an all-white page.
func WriteBlankPNG(t testing.TB, path string, width, height int) {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
