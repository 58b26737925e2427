package book

import "github.com/Audiveris/audiveris-sub014/internal/step"

// StubStatus summarizes one stub for reporting.
type StubStatus struct {
	Number   int
	Source   string
	Latest   step.Step
	HasSteps bool
	Current  step.Step
	Running  bool
	Invalid  bool
	Resident bool
	Modified bool
	Pages    int
}

// Status summarizes the book for reporting.
type Status struct {
	Radix    string
	Path     string
	Modified bool
	Stubs    []StubStatus
	Scores   int
}

// Status reports the state of every stub without materializing any sheet.
func (b *Book) Status() Status {
	stubs := b.Stubs()
	st := Status{
		Radix:    b.Radix(),
		Path:     b.Path(),
		Modified: b.Modified(),
		Scores:   len(b.Scores()),
		Stubs:    make([]StubStatus, 0, len(stubs)),
	}
	for _, s := range stubs {
		latest, has := s.Latest()
		current, running := s.CurrentStep()
		st.Stubs = append(st.Stubs, StubStatus{
			Number:   s.number,
			Source:   s.source.String(),
			Latest:   latest,
			HasSteps: has,
			Current:  current,
			Running:  running,
			Invalid:  s.Invalid(),
			Resident: s.HasSheet(),
			Modified: s.Modified(),
			Pages:    len(s.Pages()),
		})
	}
	return st
}

// Env exposes the stub fields a selection expression may refer to.
func (s StubStatus) Env() map[string]any {
	latest := ""
	if s.HasSteps {
		latest = s.Latest.String()
	}
	return map[string]any{
		"number":   s.Number,
		"invalid":  s.Invalid,
		"resident": s.Resident,
		"modified": s.Modified,
		"pages":    s.Pages,
		"latest":   latest,
		"steps":    stepsDone(s),
	}
}

func stepsDone(s StubStatus) int {
	if !s.HasSteps {
		return 0
	}
	return int(s.Latest) + 1
}
