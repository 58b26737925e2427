package book_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/Audiveris/audiveris-sub014/internal/archive"
	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/picture"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/step"
	"github.com/Audiveris/audiveris-sub014/internal/testsupport"
	"github.com/Audiveris/audiveris-sub014/internal/workpool"
)

func TestNewBookDiscoversPages(t *testing.T) {
	f := newFixture(t, 3)
	b := f.newBook(t)

	stubs := b.Stubs()
	if len(stubs) != 3 {
		t.Fatalf("expected 3 stubs, got %d", len(stubs))
	}
	for i, s := range stubs {
		if s.Number() != i+1 {
			t.Fatalf("stub %d numbered %d", i, s.Number())
		}
		if !s.Done().Empty() {
			t.Fatalf("new stub %d has steps done", s.Number())
		}
	}
	if b.Radix() != "input" {
		t.Fatalf("unexpected radix %q", b.Radix())
	}
	want := filepath.Join(f.cfg.Paths.BaseDir, "input", "input.omr")
	if got := b.DefaultSavePath(); got != want {
		t.Fatalf("default save path = %q, want %q", got, want)
	}
}

func TestReachStepIsIdempotent(t *testing.T) {
	f := newFixture(t, 2)
	b := f.newBook(t)
	ctx := context.Background()

	if err := b.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("first ReachStep: %v", err)
	}
	if err := b.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("second ReachStep: %v", err)
	}
	for _, n := range []int{1, 2} {
		for _, st := range []step.Step{step.Load, step.Binary, step.Scale, step.Grid} {
			if got := f.counter.count(st, n); got != 1 {
				t.Fatalf("sheet#%d ran %s %d times", n, st, got)
			}
		}
	}

	s := mustStub(t, b, 1)
	if err := s.ReachStep(ctx, step.Scale, false); err != nil {
		t.Fatalf("stub ReachStep: %v", err)
	}
	if got := f.counter.count(step.Scale, 1); got != 1 {
		t.Fatalf("reaching an earlier step reran SCALE (%d runs)", got)
	}
}

func TestDoneSetNeverShrinksWithoutReset(t *testing.T) {
	f := newFixture(t, 1)
	b := f.newBook(t)
	s := mustStub(t, b, 1)
	ctx := context.Background()

	if err := s.ReachStep(ctx, step.Grid, false); err != nil {
		t.Fatalf("ReachStep GRID: %v", err)
	}
	before := s.Done()
	if err := s.ReachStep(ctx, step.Binary, false); err != nil {
		t.Fatalf("ReachStep BINARY: %v", err)
	}
	if !s.Done().Equal(before) {
		t.Fatalf("done set changed from %v to %v", before.Steps(), s.Done().Steps())
	}
	if err := s.ReachStep(ctx, step.Headers, false); err != nil {
		t.Fatalf("ReachStep HEADERS: %v", err)
	}
	for _, st := range before.Steps() {
		if !s.Done().Has(st) {
			t.Fatalf("step %s lost", st)
		}
	}
}

func TestForceRollsBackToBinary(t *testing.T) {
	f := newFixture(t, 1)
	b := f.newBook(t)
	s := mustStub(t, b, 1)
	ctx := context.Background()

	if err := s.ReachStep(ctx, step.Grid, false); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := s.ReachStep(ctx, step.Scale, true); err != nil {
		t.Fatalf("forced ReachStep: %v", err)
	}
	want := step.NewSet(step.Load, step.Binary, step.Scale)
	if !s.Done().Equal(want) {
		t.Fatalf("done = %v, want %v", s.Done().Steps(), want.Steps())
	}
	if got := f.counter.count(step.Scale, 1); got != 2 {
		t.Fatalf("expected SCALE to rerun, ran %d times", got)
	}
	if got := f.counter.count(step.Binary, 1); got != 1 {
		t.Fatalf("expected BINARY kept, ran %d times", got)
	}
}

func TestForceToBinaryRestartsFromGray(t *testing.T) {
	f := newFixture(t, 1)
	b := f.newBook(t)
	s := mustStub(t, b, 1)
	ctx := context.Background()

	if err := s.ReachStep(ctx, step.Scale, false); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := s.ReachStep(ctx, step.Binary, true); err != nil {
		t.Fatalf("forced ReachStep: %v", err)
	}
	if !s.Done().Equal(step.NewSet(step.Load, step.Binary)) {
		t.Fatalf("done = %v", s.Done().Steps())
	}
	if got := f.counter.count(step.Binary, 1); got != 2 {
		t.Fatalf("expected BINARY to rerun, ran %d times", got)
	}
	if got := f.counter.count(step.Load, 1); got != 1 {
		t.Fatalf("expected LOAD kept, ran %d times", got)
	}
}

func TestSwapRoundTrip(t *testing.T) {
	f := newFixture(t, 2)
	b := f.newBook(t)
	s := mustStub(t, b, 1)
	ctx := context.Background()

	if err := s.ReachStep(ctx, step.Page, false); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	sh, err := s.Sheet(ctx)
	if err != nil {
		t.Fatalf("Sheet: %v", err)
	}
	sh.SetSkew(0.25)
	beforeDone := s.Done()
	beforeDoc, err := sh.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if err := s.Swap(); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if s.HasSheet() {
		t.Fatal("expected sheet dropped after swap")
	}
	if s.Modified() {
		t.Fatal("expected stub clean after swap")
	}
	if b.Path() == "" {
		t.Fatal("expected swap to bind the book to its default path")
	}

	again, err := s.Sheet(ctx)
	if err != nil {
		t.Fatalf("Sheet after swap: %v", err)
	}
	if again == sh {
		t.Fatal("expected a fresh sheet instance")
	}
	if !s.Done().Equal(beforeDone) {
		t.Fatalf("done = %v, want %v", s.Done().Steps(), beforeDone.Steps())
	}
	afterDoc, err := again.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(beforeDoc, afterDoc) {
		t.Fatalf("sheet document changed across swap:\n%s\n---\n%s", beforeDoc, afterDoc)
	}
	if len(again.StaffLines()) != 1 {
		t.Fatalf("expected staff lines restored, got %d", len(again.StaffLines()))
	}
	if !again.Picture().HasBinary() {
		t.Fatal("expected binary image restored from archive")
	}
}

func TestStepTimeoutIsolatesStub(t *testing.T) {
	f := newFixture(t, 2, testsupport.WithStepTimeout(1))
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := sheet.RunnerFunc(func(_ context.Context, s *sheet.Sheet) error {
		if s.Number() == 1 {
			<-release
		}
		return nil
	})
	if err := f.opts.Registry.Register(step.Scale, stuck); err != nil {
		t.Fatalf("Register: %v", err)
	}
	b := f.newBook(t)

	start := time.Now()
	err := b.ReachStep(context.Background(), step.Grid, false, nil)
	elapsed := time.Since(start)

	var batchErr *book.BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if len(batchErr.Failures) != 1 || !errors.Is(batchErr.Failures[1], step.ErrCancelled) {
		t.Fatalf("unexpected failures: %v", batchErr.Failures)
	}
	if elapsed > 10*time.Second {
		t.Fatalf("batch took %s", elapsed)
	}
	if got := mustStub(t, b, 1).Done(); !got.Equal(step.NewSet(step.Load, step.Binary)) {
		t.Fatalf("stuck stub done = %v", got.Steps())
	}
	if !mustStub(t, b, 2).Reached(step.Grid) {
		t.Fatal("sibling stub did not reach GRID")
	}
}

func TestStuckStepDoesNotStarveSinglePool(t *testing.T) {
	f := newFixture(t, 2, testsupport.WithStepTimeout(1), testsupport.WithSequentialStubs())
	f.opts.Pool = workpool.New(1, nil)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := sheet.RunnerFunc(func(_ context.Context, s *sheet.Sheet) error {
		if s.Number() == 1 {
			<-release
		}
		return nil
	})
	if err := f.opts.Registry.Register(step.Scale, stuck); err != nil {
		t.Fatalf("Register: %v", err)
	}
	b := f.newBook(t)

	done := make(chan error, 1)
	go func() { done <- b.ReachStep(context.Background(), step.Grid, false, nil) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("batch blocked behind the stuck sheet")
	}
	var batchErr *book.BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if len(batchErr.Failures) != 1 || !errors.Is(batchErr.Failures[1], step.ErrCancelled) {
		t.Fatalf("unexpected failures: %v", batchErr.Failures)
	}
	if !mustStub(t, b, 2).Reached(step.Grid) {
		t.Fatal("second sheet did not reach GRID")
	}
	if got := f.opts.Pool.Abandoned(); got != 1 {
		t.Fatalf("abandoned = %d, want 1", got)
	}
}

func TestPartialFailureBatch(t *testing.T) {
	f := newFixture(t, 3)
	failing := sheet.RunnerFunc(func(_ context.Context, s *sheet.Sheet) error {
		if s.Number() == 2 {
			return step.Failure("no staff found")
		}
		return nil
	})
	if err := f.opts.Registry.Register(step.Scale, failing); err != nil {
		t.Fatalf("Register: %v", err)
	}
	b := f.newBook(t)

	err := b.ReachStep(context.Background(), step.Headers, false, nil)
	if err == nil {
		t.Fatal("expected batch failure")
	}
	if !errors.Is(err, step.ErrStep) {
		t.Fatalf("expected ErrStep in %v", err)
	}
	var batchErr *book.BatchError
	if !errors.As(err, &batchErr) || len(batchErr.Numbers()) != 1 || batchErr.Numbers()[0] != 2 {
		t.Fatalf("unexpected batch error %v", err)
	}
	for _, n := range []int{1, 3} {
		if !mustStub(t, b, n).Reached(step.Headers) {
			t.Fatalf("sheet#%d did not reach HEADERS", n)
		}
	}
	latest, _ := mustStub(t, b, 2).Latest()
	if latest != step.Binary {
		t.Fatalf("failed stub latest = %s", latest)
	}
	if f.counter.count(step.Grid, 2) != 0 {
		t.Fatal("failed stub kept running steps")
	}
}

func TestSubsetLimitsBatch(t *testing.T) {
	f := newFixture(t, 3)
	b := f.newBook(t)
	subset := roaring.BitmapOf(2)
	if err := b.ReachStep(context.Background(), step.Binary, false, subset); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if !mustStub(t, b, 2).Reached(step.Binary) {
		t.Fatal("selected stub not processed")
	}
	if !mustStub(t, b, 1).Done().Empty() || !mustStub(t, b, 3).Done().Empty() {
		t.Fatal("unselected stubs processed")
	}
}

func TestInvalidSheetLeavesScores(t *testing.T) {
	f := newFixture(t, 3)
	testsupport.WriteBlankPNG(t, filepath.Join(f.input, "page-02.png"), 64, 48)
	b := f.newBook(t)

	err := b.ReachStep(context.Background(), step.Page, false, nil)
	if !errors.Is(err, step.ErrInvalidSheet) {
		t.Fatalf("expected ErrInvalidSheet, got %v", err)
	}
	if !mustStub(t, b, 2).Invalid() {
		t.Fatal("blank page not invalidated")
	}
	if got := len(b.ValidStubs()); got != 2 {
		t.Fatalf("expected 2 valid stubs, got %d", got)
	}

	scores := b.Scores()
	if len(scores) != 2 {
		t.Fatalf("expected the invalid sheet to split scores, got %+v", scores)
	}
	if scores[0].FirstSheet() != 1 || scores[1].FirstSheet() != 3 {
		t.Fatalf("unexpected scores %+v", scores)
	}

	if err := b.ReachStep(context.Background(), step.Page, false, nil); err != nil {
		t.Fatalf("invalid stubs should be skipped: %v", err)
	}
}

func TestStepsRelaxRasterCache(t *testing.T) {
	f := newFixture(t, 1)
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	sh, err := mustStub(t, b, 1).Sheet(ctx)
	if err != nil {
		t.Fatalf("Sheet: %v", err)
	}
	pic := sh.Picture()
	cached := 0
	for _, key := range picture.Keys() {
		if pic.Cached(key) {
			cached++
		}
	}
	if cached > f.cfg.Picture.RetainedSources {
		t.Fatalf("%d variants cached after GRID, want at most %d", cached, f.cfg.Picture.RetainedSources)
	}

	bin, err := pic.Source(picture.Binary)
	if err != nil {
		t.Fatalf("Source(BINARY): %v", err)
	}
	want := bin.Clone()
	for _, key := range picture.Keys() {
		pic.Evict(key)
	}
	again, err := pic.Source(picture.Binary)
	if err != nil {
		t.Fatalf("Source(BINARY) after eviction: %v", err)
	}
	if !want.Equal(again) {
		t.Fatal("binary image changed after eviction")
	}
}

func TestStoreAndLoad(t *testing.T) {
	f := newFixture(t, 2)
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if b.Modified() {
		t.Fatal("book still modified after store")
	}
	path := b.Path()
	if _, err := os.Stat(path + ".lock"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file left behind: %v", err)
	}

	loaded, err := book.Load(path, f.opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	if loaded.ID() != b.ID() {
		t.Fatalf("id %q, want %q", loaded.ID(), b.ID())
	}
	for _, n := range []int{1, 2} {
		s := mustStub(t, loaded, n)
		if !s.Done().Equal(mustStub(t, b, n).Done()) {
			t.Fatalf("sheet#%d done = %v", n, s.Done().Steps())
		}
		if s.HasSheet() {
			t.Fatal("load should not materialize sheets")
		}
	}

	sh, err := mustStub(t, loaded, 1).Sheet(ctx)
	if err != nil {
		t.Fatalf("Sheet: %v", err)
	}
	if sc := sh.Scale(); sc == nil || sc.Interline != 6 {
		t.Fatalf("scale not restored: %+v", sc)
	}

	if err := loaded.ReachStep(ctx, step.Headers, false, nil); err != nil {
		t.Fatalf("continue after load: %v", err)
	}
	if got := f.counter.count(step.Grid, 1); got != 1 {
		t.Fatalf("GRID rerun after load (%d runs)", got)
	}
}

func TestStoreDropsInitialImageOnceBinarized(t *testing.T) {
	f := newFixture(t, 1)
	b := f.newBook(t)
	if err := b.ReachStep(context.Background(), step.Binary, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	members := listMembers(t, b.Path())
	if !contains(members, "sheet#1/binary.runs.xz") {
		t.Fatalf("binary image missing: %v", members)
	}
	if contains(members, "sheet#1/initial.png") {
		t.Fatalf("initial image kept: %v", members)
	}
}

func TestCorruptSheetDocumentFallsBackToBinary(t *testing.T) {
	f := newFixture(t, 1)
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	path := b.Path()
	b.Close()

	c, err := archive.Open(path)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	if err := c.WriteFile(sheet.DocumentName(1), []byte("{not json")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	loaded, err := book.Load(path, f.opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	s := mustStub(t, loaded, 1)
	if _, err := s.Sheet(ctx); err != nil {
		t.Fatalf("Sheet: %v", err)
	}
	if !s.Done().Equal(step.NewSet(step.Load, step.Binary)) {
		t.Fatalf("done = %v, want LOAD and BINARY", s.Done().Steps())
	}
	if err := s.ReachStep(ctx, step.Grid, false); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
}

func TestAlteredSheetFolderFailsDigestCheck(t *testing.T) {
	f := newFixture(t, 2)
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Grid, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	path := b.Path()
	b.Close()

	// Trailing whitespace keeps the document decodable; only the digest
	// can tell it changed.
	c, err := archive.Open(path)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	data, err := c.ReadFile(sheet.DocumentName(1))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := c.WriteFile(sheet.DocumentName(1), append(data, '\n')); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	loaded, err := book.Load(path, f.opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()

	altered := mustStub(t, loaded, 1)
	if _, err := altered.Sheet(ctx); err != nil {
		t.Fatalf("Sheet: %v", err)
	}
	if !altered.Done().Equal(step.NewSet(step.Load, step.Binary)) {
		t.Fatalf("done = %v, want LOAD and BINARY", altered.Done().Steps())
	}
	if !altered.Modified() {
		t.Fatal("stub rebuilt after digest mismatch should be modified")
	}

	intact := mustStub(t, loaded, 2)
	if _, err := intact.Sheet(ctx); err != nil {
		t.Fatalf("Sheet: %v", err)
	}
	if !intact.Done().Equal(mustStub(t, b, 2).Done()) {
		t.Fatalf("intact sheet done = %v", intact.Done().Steps())
	}
	if intact.Modified() {
		t.Fatal("intact sheet should load unmodified")
	}
}

func TestMissingRastersReportLoadFailure(t *testing.T) {
	f := newFixture(t, 1)
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Scale, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	path := b.Path()
	b.Close()

	c, err := archive.Open(path)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	if err := c.RemoveFolder(sheet.Folder(1)); err != nil {
		t.Fatalf("RemoveFolder: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	loaded, err := book.Load(path, f.opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	s := mustStub(t, loaded, 1)
	if _, err := s.Sheet(ctx); !errors.Is(err, step.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if s.HasSheet() {
		t.Fatal("failed load left a sheet behind")
	}
}

func TestSaveAsKeepsUntouchedFoldersVerbatim(t *testing.T) {
	f := newFixture(t, 3)
	b := f.newBook(t)
	ctx := context.Background()
	if err := b.ReachStep(ctx, step.Scale, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	oldPath := b.Path()
	original, err := os.ReadFile(oldPath)
	if err != nil {
		t.Fatalf("read original: %v", err)
	}

	if err := mustStub(t, b, 2).ReachStep(ctx, step.Grid, false); err != nil {
		t.Fatalf("ReachStep sheet#2: %v", err)
	}
	newPath := filepath.Join(testsupport.BaseDir(f.cfg), "copies", "renamed.omr")
	if err := b.Store(newPath, false); err != nil {
		t.Fatalf("save as: %v", err)
	}

	after, err := os.ReadFile(oldPath)
	if err != nil {
		t.Fatalf("read original after save-as: %v", err)
	}
	if !bytes.Equal(original, after) {
		t.Fatal("original container was modified")
	}
	for _, folder := range []string{"sheet#1/", "sheet#3/"} {
		oldRaw := rawFolder(t, oldPath, folder)
		newRaw := rawFolder(t, newPath, folder)
		if len(oldRaw) == 0 || len(oldRaw) != len(newRaw) {
			t.Fatalf("%s: %d members before, %d after", folder, len(oldRaw), len(newRaw))
		}
		for name, data := range oldRaw {
			if !bytes.Equal(data, newRaw[name]) {
				t.Fatalf("member %s not carried over verbatim", name)
			}
		}
	}
	if b.Path() != newPath {
		t.Fatalf("book bound to %q", b.Path())
	}
	if b.Radix() != "renamed" {
		t.Fatalf("radix = %q", b.Radix())
	}

	loaded, err := book.Load(newPath, f.opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	if !mustStub(t, loaded, 2).Reached(step.Grid) {
		t.Fatal("modified stub not saved in new container")
	}
}

func TestStoreBacksUpExistingFile(t *testing.T) {
	f := newFixture(t, 1)
	target := filepath.Join(testsupport.BaseDir(f.cfg), "out", "work.omr")

	for i := 0; i < 2; i++ {
		b := f.newBook(t)
		if err := b.Store(target, true); err != nil {
			t.Fatalf("Store %d: %v", i, err)
		}
		b.Close()
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(target), "work.1.omr")); err != nil {
		t.Fatalf("expected backup: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected new file: %v", err)
	}
}

func TestRemoveStubDropsFolder(t *testing.T) {
	f := newFixture(t, 3)
	b := f.newBook(t)
	if err := b.ReachStep(context.Background(), step.Binary, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := b.RemoveStub(2); err != nil {
		t.Fatalf("RemoveStub: %v", err)
	}
	if _, err := b.Stub(2); !errors.Is(err, book.ErrNoStub) {
		t.Fatalf("expected ErrNoStub, got %v", err)
	}
	if err := b.Store("", false); err != nil {
		t.Fatalf("Store: %v", err)
	}
	for _, name := range listMembers(t, b.Path()) {
		if strings.HasPrefix(name, "sheet#2/") {
			t.Fatalf("removed stub folder still stored: %s", name)
		}
	}
}

func TestHeadlessSavesEveryStep(t *testing.T) {
	f := newFixture(t, 2, testsupport.WithHeadless(true))
	b := f.newBook(t)
	if err := b.ReachStep(context.Background(), step.Scale, false, nil); err != nil {
		t.Fatalf("ReachStep: %v", err)
	}
	for _, s := range b.Stubs() {
		if s.HasSheet() {
			t.Fatalf("%s still resident in headless mode", s)
		}
		if s.Modified() {
			t.Fatalf("%s not saved", s)
		}
	}
	members := listMembers(t, b.Path())
	for _, want := range []string{book.DocumentName, sheet.DocumentName(1), sheet.DocumentName(2)} {
		if !contains(members, want) {
			t.Fatalf("missing %s in %v", want, members)
		}
	}
}

func rawFolder(t *testing.T, path, folder string) map[string][]byte {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer r.Close()
	out := make(map[string][]byte)
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, folder) {
			continue
		}
		rc, err := f.OpenRaw()
		if err != nil {
			t.Fatalf("open raw %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read raw %s: %v", f.Name, err)
		}
		out[f.Name] = data
	}
	return out
}

func listMembers(t *testing.T, path string) []string {
	t.Helper()
	c, err := archive.OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer c.Close()
	return c.List("")
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
