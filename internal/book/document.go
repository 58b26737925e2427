package book

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Audiveris/audiveris-sub014/internal/document"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/step"
)

// DocumentName is the archive member holding the book document.
const DocumentName = "book.json"

// sheetsCompatibleFrom is the oldest book version whose sheet documents are
// still trusted. Stubs of older books restart from their binary image.
const sheetsCompatibleFrom = 2

type bookDocument struct {
	ID         string         `json:"id"`
	Radix      string         `json:"radix"`
	Alias      string         `json:"alias,omitempty"`
	Input      string         `json:"input"`
	ExportPath string         `json:"export_path,omitempty"`
	PrintPath  string         `json:"print_path,omitempty"`
	Stubs      []stubDocument `json:"stubs"`
	Scores     []Score        `json:"scores,omitempty"`
}

type stubDocument struct {
	Number  int          `json:"number"`
	Source  PageSource   `json:"source"`
	Steps   step.Set     `json:"steps"`
	Invalid bool         `json:"invalid,omitempty"`
	Width   int          `json:"width,omitempty"`
	Height  int          `json:"height,omitempty"`
	Pages   []sheet.Page `json:"pages,omitempty"`
	Digest  string       `json:"digest,omitempty"`
}

var bookCodec = document.MustCodec[bookDocument]("book", 3, 1,
	document.Migration{From: 1, Name: "rename sheets to stubs", Apply: func(f document.Fields) error {
		f.Rename("sheets", "stubs")
		return nil
	}},
	document.Migration{From: 2, Name: "assign book id", Apply: func(f document.Fields) error {
		if _, ok := f["id"]; ok {
			return nil
		}
		raw, err := json.Marshal(uuid.NewString())
		if err != nil {
			return err
		}
		f["id"] = raw
		return nil
	}},
)
