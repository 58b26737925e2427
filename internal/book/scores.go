package book

import "github.com/Audiveris/audiveris-sub014/internal/sheet"

// PageRef points at one logical page of one sheet.
type PageRef struct {
	Sheet int `json:"sheet"`
	Page  int `json:"page"`
}

// Score is a run of consecutive logical pages forming one movement.
type Score struct {
	ID    int       `json:"id"`
	Pages []PageRef `json:"pages"`
}

// FirstSheet returns the number of the sheet the score starts on.
func (sc Score) FirstSheet() int {
	if len(sc.Pages) == 0 {
		return 0
	}
	return sc.Pages[0].Sheet
}

// LastSheet returns the number of the sheet the score ends on.
func (sc Score) LastSheet() int {
	if len(sc.Pages) == 0 {
		return 0
	}
	return sc.Pages[len(sc.Pages)-1].Sheet
}

type stubPages struct {
	number  int
	invalid bool
	pages   []sheet.Page
}

// groupScores chains the pages of consecutive valid stubs into scores. A
// score ends at an invalid stub, at a stub with no pages, and after a page
// closing a movement.
func groupScores(stubs []stubPages) []Score {
	var (
		scores  []Score
		current []PageRef
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		scores = append(scores, Score{ID: len(scores) + 1, Pages: current})
		current = nil
	}
	for _, st := range stubs {
		if st.invalid || len(st.pages) == 0 {
			flush()
			continue
		}
		for _, p := range st.pages {
			current = append(current, PageRef{Sheet: st.number, Page: p.ID})
			if p.MovementEnd {
				flush()
			}
		}
	}
	flush()
	return scores
}
