package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/step"
)

func TestNoteLine(t *testing.T) {
	plain := noteLine("sheet 2", noteWarn, "unsaved changes", false)
	if plain != "warn sheet 2: unsaved changes" {
		t.Fatalf("plain line = %q", plain)
	}
	if got := noteLine("books folder", notePass, "", false); got != "ok   books folder" {
		t.Fatalf("bare line = %q", got)
	}

	text.EnableColors()
	colored := noteLine("sheet 3", noteFail, "timed out", true)
	if !strings.HasPrefix(colored, "\x1b[") {
		t.Fatalf("expected escape codes, got %q", colored)
	}
	if !strings.HasSuffix(colored, " sheet 3: timed out") {
		t.Fatalf("subject and message must stay uncoloured: %q", colored)
	}
}

func TestWantsColorIgnoresBuffers(t *testing.T) {
	if wantsColor(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}

func TestStubNoteAndLabel(t *testing.T) {
	cases := []struct {
		name  string
		stub  book.StubStatus
		level noteLevel
		label string
	}{
		{"fresh", book.StubStatus{}, notePass, "-"},
		{"invalid", book.StubStatus{Invalid: true, HasSteps: true, Latest: step.Binary}, noteWarn, "Binary"},
		{"running", book.StubStatus{Running: true, Current: step.StemSeeds, HasSteps: true, Latest: step.Headers}, noteInfo, "Stem Seeds (running)"},
		{"modified", book.StubStatus{Modified: true, HasSteps: true, Latest: step.Grid}, noteWarn, "Grid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level, _ := stubNote(tc.stub)
			if level != tc.level {
				t.Fatalf("level = %d, want %d", level, tc.level)
			}
			if got := stepLabel(tc.stub); got != tc.label {
				t.Fatalf("label = %q, want %q", got, tc.label)
			}
		})
	}
}

func TestRenderStubTableKeepsHeaderCase(t *testing.T) {
	out := renderStubTable(book.Status{Stubs: []book.StubStatus{{Number: 1, Source: "p1.png", Pages: 2}}})
	for _, header := range []string{"Sheet", "Source", "Step", "Pages", "Invalid", "Modified"} {
		requireContains(t, out, header)
	}
	if strings.Contains(out, "SHEET") {
		t.Fatalf("headers were upper-cased:\n%s", out)
	}
	requireContains(t, out, "p1.png")
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3", "extra"}}, []columnAlignment{alignRight})
	requireContains(t, out, "A")
	if strings.Contains(out, "extra") {
		t.Fatalf("extra cell rendered: %s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
