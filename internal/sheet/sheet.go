package sheet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/picture"
	"github.com/Audiveris/audiveris-sub014/internal/raster"
	"github.com/Audiveris/audiveris-sub014/internal/step"
)

// Scale holds the main lengths measured on a page, in pixels.
type Scale struct {
	Interline     int `json:"interline"`
	LineThickness int `json:"line_thickness"`
	BeamThickness int `json:"beam_thickness,omitempty"`
}

// Page is one logical page detected on a sheet. A sheet may hold several
// movements, each starting a new page.
type Page struct {
	ID          int  `json:"id"`
	FirstSystem int  `json:"first_system"`
	LastSystem  int  `json:"last_system"`
	MovementEnd bool `json:"movement_end,omitempty"`
}

// Sheet is the materialized state of one page: its picture, measured
// geometry, and the results recorded by each step. Recognition results are
// opaque JSON owned by the step that produced them.
type Sheet struct {
	number  int
	picture *picture.Picture
	logger  *slog.Logger

	mu       sync.Mutex
	scale    *Scale
	skew     float64
	pages    []Page
	staff    []raster.Glyph
	results  map[step.Step]json.RawMessage
	modified bool
}

// New wraps a picture as the sheet for page number.
func New(number int, pic *picture.Picture, logger *slog.Logger) *Sheet {
	return &Sheet{
		number:  number,
		picture: pic,
		logger:  logging.NewComponentLogger(logger, "sheet").With(logging.Sheet(number)),
		results: make(map[step.Step]json.RawMessage),
	}
}

// Number returns the 1-based page number.
func (s *Sheet) Number() int { return s.number }

// Picture returns the raster cache of the page.
func (s *Sheet) Picture() *picture.Picture { return s.picture }

// Logger returns the sheet-scoped logger.
func (s *Sheet) Logger() *slog.Logger { return s.logger }

func (s *Sheet) String() string { return fmt.Sprintf("sheet#%d", s.number) }

// Scale returns the measured scale, or nil before SCALE ran.
func (s *Sheet) Scale() *Scale {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scale == nil {
		return nil
	}
	sc := *s.scale
	return &sc
}

// SetScale records the measured scale.
func (s *Sheet) SetScale(sc Scale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scale = &sc
	s.modified = true
}

// Skew returns the page skew slope.
func (s *Sheet) Skew() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skew
}

// SetSkew records the page skew slope.
func (s *Sheet) SetSkew(slope float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skew = slope
	s.modified = true
}

// Pages returns the logical pages found so far.
func (s *Sheet) Pages() []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Page(nil), s.pages...)
}

// AddPage appends a logical page.
func (s *Sheet) AddPage(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, p)
	s.modified = true
}

// SetStaffLines records the staff-line footprints and hands them to the
// picture for staff removal.
func (s *Sheet) SetStaffLines(glyphs []raster.Glyph) {
	s.mu.Lock()
	s.staff = append([]raster.Glyph(nil), glyphs...)
	s.modified = true
	s.mu.Unlock()
	s.picture.SetStaffGlyphs(glyphs)
}

// StaffLines returns the recorded staff-line footprints.
func (s *Sheet) StaffLines() []raster.Glyph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]raster.Glyph(nil), s.staff...)
}

// SetResult records the output of st as JSON.
func (s *Sheet) SetResult(st step.Step, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("record %s result: %w", st, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[st] = raw
	s.modified = true
	return nil
}

// Result decodes the output recorded by st into out and reports whether one
// exists.
func (s *Sheet) Result(st step.Step, out any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.results[st]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s result: %w", st, err)
	}
	return true, nil
}

// HasResult reports whether st recorded an output.
func (s *Sheet) HasResult(st step.Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.results[st]
	return ok
}

// ResetFrom discards what st and every later step produced, so st can run
// again on a clean state.
func (s *Sheet) ResetFrom(st step.Step) {
	s.mu.Lock()
	for recorded := range s.results {
		if recorded >= st {
			delete(s.results, recorded)
		}
	}
	if st <= step.Scale {
		s.scale = nil
	}
	if st <= step.Grid {
		s.skew = 0
		s.staff = nil
	}
	s.pages = nil
	s.modified = true
	s.mu.Unlock()

	if st <= step.Binary {
		s.picture.ResetToGray()
	} else if st <= step.Grid {
		s.picture.SetStaffGlyphs(nil)
	}
}

// Invalidate drops the logical pages and every recorded result of a sheet
// found to hold no usable content.
func (s *Sheet) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = nil
	s.results = make(map[step.Step]json.RawMessage)
	s.modified = true
}

// Modified reports whether the sheet changed since it was last stored or
// loaded.
func (s *Sheet) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified || s.picture.Dirty()
}

// SetModified forces the modified flag.
func (s *Sheet) SetModified(modified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modified = modified
}

// Dispose releases the cached rasters.
func (s *Sheet) Dispose() {
	s.picture.Dispose()
}
