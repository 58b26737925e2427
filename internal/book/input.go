package book

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Audiveris/audiveris-sub014/internal/raster"
)

// ErrNoImages reports an input that holds no readable page image.
var ErrNoImages = errors.New("no page images")

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// PageSource locates the image of one page: a file, and the frame within it
// for multi-frame images.
type PageSource struct {
	Path  string `json:"path"`
	Frame int    `json:"frame,omitempty"`
}

func (p PageSource) String() string {
	if p.Frame == 0 {
		return p.Path
	}
	return fmt.Sprintf("%s[%d]", p.Path, p.Frame)
}

// DiscoverPages lists the pages of an input: every frame of an image file,
// or every image file of a directory in name order.
func DiscoverPages(input string) ([]PageSource, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return filePages(input)
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, fmt.Errorf("read input folder: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var pages []PageSource
	for _, name := range names {
		found, err := filePages(filepath.Join(input, name))
		if err != nil {
			return nil, err
		}
		pages = append(pages, found...)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, input)
	}
	return pages, nil
}

func filePages(path string) ([]PageSource, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !imageExtensions[ext] {
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrNoImages, ext)
	}
	if ext != ".gif" {
		return []PageSource{{Path: path}}, nil
	}
	anim, err := decodeGIF(path)
	if err != nil {
		return nil, err
	}
	pages := make([]PageSource, len(anim.Image))
	for i := range anim.Image {
		pages[i] = PageSource{Path: path, Frame: i}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, path)
	}
	return pages, nil
}

func decodeGIF(path string) (*gif.GIF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return anim, nil
}

// LoadPage decodes the gray image of one page.
func LoadPage(src PageSource) (*raster.Gray, error) {
	if strings.EqualFold(filepath.Ext(src.Path), ".gif") {
		anim, err := decodeGIF(src.Path)
		if err != nil {
			return nil, err
		}
		if src.Frame < 0 || src.Frame >= len(anim.Image) {
			return nil, fmt.Errorf("%s: frame %d out of %d", src.Path, src.Frame, len(anim.Image))
		}
		return raster.FromImage(anim.Image[src.Frame])
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", src.Path, err)
	}
	return raster.FromImage(img)
}
