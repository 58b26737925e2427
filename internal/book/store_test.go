package book_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/step"
	"github.com/Audiveris/audiveris-sub014/internal/testsupport"
)

func TestFailedMemberWriteKeepsSiblings(t *testing.T) {
	f := newFixture(t, 3)
	// A NaN skew cannot be encoded, so only sheet#2's document fails.
	scale := sheet.RunnerFunc(func(_ context.Context, s *sheet.Sheet) error {
		s.SetScale(sheet.Scale{Interline: 6, LineThickness: 1})
		if s.Number() == 2 {
			s.SetSkew(math.NaN())
		}
		return nil
	})
	if err := f.opts.Registry.Register(step.Scale, scale); err != nil {
		t.Fatalf("Register: %v", err)
	}
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}

	err := b.Store("", false)
	if err == nil || !strings.Contains(err.Error(), "sheet#2") {
		t.Fatalf("expected sheet#2 write failure, got %v", err)
	}
	path := b.Path()
	if path == "" {
		t.Fatal("book not bound after a partial store")
	}
	members := listMembers(t, path)
	for _, n := range []int{1, 3} {
		if !contains(members, sheet.DocumentName(n)) {
			t.Fatalf("sheet#%d document missing: %v", n, members)
		}
		if mustStub(t, b, n).Modified() {
			t.Fatalf("sheet#%d still modified after commit", n)
		}
	}
	if contains(members, sheet.DocumentName(2)) {
		t.Fatalf("failed sheet document was committed: %v", members)
	}
	if !mustStub(t, b, 2).Modified() {
		t.Fatal("failed sheet must stay modified")
	}

	loaded, err := book.Load(path, f.opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	if !mustStub(t, loaded, 1).Reached(step.Grid) || !mustStub(t, loaded, 3).Reached(step.Grid) {
		t.Fatal("committed siblings lost their steps")
	}
	if got := mustStub(t, loaded, 2).Done(); !got.Empty() {
		t.Fatalf("failed sheet recorded steps %v", got.Steps())
	}
}

func TestStoreSkipsBusyStub(t *testing.T) {
	f := newFixture(t, 2)
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Scale, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	path := b.Path()
	before := rawFolder(t, path, "sheet#1/")
	storedDone := mustStub(t, b, 1).Done()

	entered := make(chan struct{})
	release := make(chan struct{})
	grid := sheet.RunnerFunc(func(_ context.Context, s *sheet.Sheet) error {
		if s.Number() == 1 {
			close(entered)
			<-release
		}
		s.SetSkew(0.01)
		return nil
	})
	if err := f.opts.Registry.Register(step.Grid, grid); err != nil {
		t.Fatalf("Register: %v", err)
	}
	first := mustStub(t, b, 1)
	busy := make(chan error, 1)
	go func() { busy <- first.ReachStep(ctx, step.Grid, false) }()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("GRID never started on sheet#1")
	}
	if err := mustStub(t, b, 2).ReachStep(ctx, step.Grid, false); err != nil {
		close(release)
		t.Fatalf("ReachStep sheet#2: %v", err)
	}

	storeErr := b.Store("", false)
	close(release)
	if storeErr != nil {
		t.Fatalf("Store with a busy sheet: %v", storeErr)
	}
	if err := <-busy; err != nil {
		t.Fatalf("busy sheet: %v", err)
	}

	after := rawFolder(t, path, "sheet#1/")
	if len(before) != len(after) {
		t.Fatalf("busy folder changed: %d members before, %d after", len(before), len(after))
	}
	for name, data := range before {
		if string(after[name]) != string(data) {
			t.Fatalf("busy folder member %s changed", name)
		}
	}
	if !first.Modified() {
		t.Fatal("busy sheet must stay modified")
	}

	loaded, err := book.Load(path, f.opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	if got := mustStub(t, loaded, 1).Done(); !got.Equal(storedDone) {
		t.Fatalf("busy sheet summary = %v, want %v", got.Steps(), storedDone.Steps())
	}
	if !mustStub(t, loaded, 2).Reached(step.Grid) {
		t.Fatal("idle sheet was not stored")
	}
}

func TestSaveAsWithUnreadableArchive(t *testing.T) {
	f := newFixture(t, 2)
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := mustStub(t, b, 1).Swap(); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	residentDone := mustStub(t, b, 2).Done()
	if err := os.WriteFile(b.Path(), []byte("not a zip archive"), 0o644); err != nil {
		t.Fatalf("clobber archive: %v", err)
	}

	newPath := filepath.Join(testsupport.BaseDir(f.cfg), "rescued", "rescued.omr")
	if err := b.Store(newPath, false); err != nil {
		t.Fatalf("save as: %v", err)
	}
	members := listMembers(t, newPath)
	if !contains(members, "sheet#2/binary.runs.xz") || !contains(members, sheet.DocumentName(2)) {
		t.Fatalf("resident sheet not fully written: %v", members)
	}
	if contains(members, sheet.DocumentName(1)) {
		t.Fatalf("swapped-out sheet claimed a folder: %v", members)
	}
	dropped := mustStub(t, b, 1)
	if !dropped.Done().Empty() || !dropped.Modified() {
		t.Fatalf("unwritable sheet: done %v, modified %v", dropped.Done().Steps(), dropped.Modified())
	}

	loaded, err := book.Load(newPath, f.opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	if got := mustStub(t, loaded, 1).Done(); !got.Empty() {
		t.Fatalf("book document claims steps for sheet#1: %v", got.Steps())
	}
	if got := mustStub(t, loaded, 2).Done(); !got.Equal(residentDone) {
		t.Fatalf("sheet#2 done = %v, want %v", got.Steps(), residentDone.Steps())
	}
	if _, err := mustStub(t, loaded, 2).Sheet(ctx); err != nil {
		t.Fatalf("resident sheet unreadable after save as: %v", err)
	}
	if err := loaded.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("reprocess after save as: %v", err)
	}
}
