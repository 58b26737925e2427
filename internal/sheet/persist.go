package sheet

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/Audiveris/audiveris-sub014/internal/document"
	"github.com/Audiveris/audiveris-sub014/internal/picture"
	"github.com/Audiveris/audiveris-sub014/internal/raster"
	"github.com/Audiveris/audiveris-sub014/internal/step"
)

// Folder returns the archive folder of page number.
func Folder(number int) string {
	return fmt.Sprintf("sheet#%d", number)
}

// DocumentName returns the archive member holding the sheet document.
func DocumentName(number int) string {
	folder := Folder(number)
	return path.Join(folder, folder+".json")
}

type sheetDocument struct {
	Number  int                        `json:"number"`
	Width   int                        `json:"width"`
	Height  int                        `json:"height"`
	Scale   *Scale                     `json:"scale,omitempty"`
	Skew    float64                    `json:"skew,omitempty"`
	Pages   []Page                     `json:"pages,omitempty"`
	Staff   []raster.Glyph             `json:"staff_lines,omitempty"`
	Results map[string]json.RawMessage `json:"results,omitempty"`
}

// Version 1 documents kept the scale lengths at the top level and named the
// staff lines "staves".
var codec = document.MustCodec[sheetDocument]("sheet", 2, 1,
	document.Migration{From: 1, Name: "nest scale and rename staves", Apply: func(f document.Fields) error {
		if err := f.Nest("scale", "interline", "line_thickness", "beam_thickness"); err != nil {
			return err
		}
		f.Rename("staves", "staff_lines")
		return nil
	}},
)

// Encode renders the sheet document.
func (s *Sheet) Encode() ([]byte, error) {
	s.mu.Lock()
	doc := sheetDocument{
		Number:  s.number,
		Width:   s.picture.Width(),
		Height:  s.picture.Height(),
		Scale:   s.scale,
		Skew:    s.skew,
		Pages:   s.pages,
		Staff:   s.staff,
		Results: make(map[string]json.RawMessage, len(s.results)),
	}
	for st, raw := range s.results {
		doc.Results[st.String()] = raw
	}
	s.mu.Unlock()
	return codec.Encode(&doc)
}

// Decode rebuilds a sheet from its stored document. The picture is restored
// lazily through backing. The returned result tells whether the document was
// upgraded from an older version.
func Decode(number int, data []byte, backing picture.Backing, opts picture.Options, logger *slog.Logger) (*Sheet, document.Result, error) {
	doc, res, err := codec.Decode(data)
	if err != nil {
		return nil, res, err
	}
	if doc.Number != number {
		return nil, res, fmt.Errorf("%w: sheet document numbered %d, expected %d", document.ErrCorrupt, doc.Number, number)
	}
	pic, err := picture.Restore(doc.Width, doc.Height, backing, opts)
	if err != nil {
		return nil, res, fmt.Errorf("%w: %v", document.ErrCorrupt, err)
	}
	s := New(number, pic, logger)
	s.scale = doc.Scale
	s.skew = doc.Skew
	s.pages = doc.Pages
	for name, raw := range doc.Results {
		st, err := step.Parse(name)
		if err != nil {
			return nil, res, fmt.Errorf("%w: results: %v", document.ErrCorrupt, err)
		}
		s.results[st] = raw
	}
	if len(doc.Staff) > 0 {
		s.staff = doc.Staff
		pic.SetStaffGlyphs(doc.Staff)
	}
	s.modified = res.Upgraded
	return s, res, nil
}

// Store writes the sheet document and its durable rasters into the sheet
// folder. Both parts are attempted; failures are joined.
func (s *Sheet) Store(sink picture.Sink) error {
	folder := Folder(s.number)
	var errs []error
	if err := s.picture.Store(sink, folder); err != nil {
		errs = append(errs, fmt.Errorf("%s rasters: %w", s, err))
	}
	data, err := s.Encode()
	if err == nil {
		err = sink.WriteFile(DocumentName(s.number), data)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("%s document: %w", s, err))
	} else {
		s.SetModified(false)
	}
	return errors.Join(errs...)
}
