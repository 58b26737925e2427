package book_test

import (
	"context"
	"testing"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/step"
)

func TestParseSheets(t *testing.T) {
	cases := []struct {
		in   string
		want []uint32
		err  bool
	}{
		{in: "", want: nil},
		{in: "2", want: []uint32{2}},
		{in: "1-3,5", want: []uint32{1, 2, 3, 5}},
		{in: "4-", want: []uint32{4, 5, 6}},
		{in: "3-1", err: true},
		{in: "0", err: true},
		{in: "x", err: true},
	}
	for _, tc := range cases {
		got, err := book.ParseSheets(tc.in, 6)
		if tc.err {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if tc.want == nil {
			if got != nil {
				t.Fatalf("%q: expected nil selection", tc.in)
			}
			continue
		}
		values := got.ToArray()
		if len(values) != len(tc.want) {
			t.Fatalf("%q: got %v, want %v", tc.in, values, tc.want)
		}
		for i := range values {
			if values[i] != tc.want[i] {
				t.Fatalf("%q: got %v, want %v", tc.in, values, tc.want)
			}
		}
	}
}

func TestSelectFiltersByExpression(t *testing.T) {
	f := newFixture(t, 3)
	b := f.newBook(t)
	if err := mustStub(t, b, 2).ReachStep(context.Background(), step.Binary, false); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}

	got, err := b.Select(`latest == "BINARY"`, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.GetCardinality() != 1 || !got.Contains(2) {
		t.Fatalf("unexpected selection %v", got.ToArray())
	}

	got, err = b.Select(`steps == 0 && number > 1`, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.GetCardinality() != 1 || !got.Contains(3) {
		t.Fatalf("unexpected selection %v", got.ToArray())
	}

	if _, err := b.Select(`number +`, nil); err == nil {
		t.Fatal("expected compile error")
	}
}
