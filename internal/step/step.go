package step

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Step identifies one stage of the recognition pipeline by its position in
// the fixed processing order.
type Step uint8

// Pipeline steps in processing order.
const (
	Load Step = iota
	Binary
	Scale
	Grid
	Headers
	StemSeeds
	Beams
	Ledgers
	Heads
	Stems
	Reduction
	CueBeams
	Texts
	Measures
	Chords
	Curves
	Symbols
	Links
	Rhythms
	Page

	count
)

// First and Last bound the pipeline.
const (
	First = Load
	Last  = Page
)

var names = [count]string{
	"LOAD", "BINARY", "SCALE", "GRID", "HEADERS", "STEM_SEEDS", "BEAMS",
	"LEDGERS", "HEADS", "STEMS", "REDUCTION", "CUE_BEAMS", "TEXTS",
	"MEASURES", "CHORDS", "CURVES", "SYMBOLS", "LINKS", "RHYTHMS", "PAGE",
}

var titler = cases.Title(language.Und)

// All returns every step in processing order.
func All() []Step {
	out := make([]Step, 0, count)
	for s := First; s <= Last; s++ {
		out = append(out, s)
	}
	return out
}

// Count is the number of pipeline steps.
func Count() int { return int(count) }

// Valid reports whether s is a known step.
func (s Step) Valid() bool { return s < count }

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("STEP(%d)", uint8(s))
	}
	return names[s]
}

// Label returns a human-readable name such as "Stem Seeds".
func (s Step) Label() string {
	if !s.Valid() {
		return s.String()
	}
	return titler.String(strings.ReplaceAll(strings.ToLower(names[s]), "_", " "))
}

// Parse resolves a step name, case-insensitively. Hyphens and spaces are
// accepted in place of underscores.
func Parse(value string) (Step, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for i, name := range names {
		if name == normalized {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", value)
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid step %d", uint8(s))
	}
	return []byte(names[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
