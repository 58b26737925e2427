package book_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/config"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/raster"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/step"
	"github.com/Audiveris/audiveris-sub014/internal/testsupport"
)

// counter records how many times each sheet ran each step.
type counter struct {
	mu    sync.Mutex
	calls map[step.Step]map[int]int
}

func newCounter() *counter {
	return &counter{calls: make(map[step.Step]map[int]int)}
}

func (c *counter) wrap(st step.Step, runner sheet.Runner) sheet.Runner {
	return sheet.RunnerFunc(func(ctx context.Context, s *sheet.Sheet) error {
		c.mu.Lock()
		if c.calls[st] == nil {
			c.calls[st] = make(map[int]int)
		}
		c.calls[st][s.Number()]++
		c.mu.Unlock()
		return runner.Run(ctx, s)
	})
}

func (c *counter) count(st step.Step, number int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[st][number]
}

// pipeline registers simple runners for SCALE, GRID and PAGE so that sheets
// carry state worth persisting. Every step is counted.
func pipeline(t *testing.T, reg *sheet.Registry, c *counter) {
	t.Helper()
	runners := map[step.Step]sheet.Runner{
		step.Scale: sheet.RunnerFunc(func(_ context.Context, s *sheet.Sheet) error {
			s.SetScale(sheet.Scale{Interline: 6, LineThickness: 1})
			return s.SetResult(step.Scale, map[string]int{"interline": 6})
		}),
		step.Grid: sheet.RunnerFunc(func(_ context.Context, s *sheet.Sheet) error {
			s.SetStaffLines([]raster.Glyph{raster.HorizontalLine(6, 12, 50, 1)})
			return nil
		}),
		step.Page: sheet.RunnerFunc(func(_ context.Context, s *sheet.Sheet) error {
			s.AddPage(sheet.Page{ID: 1, FirstSystem: 1, LastSystem: 1})
			return nil
		}),
	}
	for _, st := range step.All() {
		runner, ok := runners[st]
		if !ok {
			runner = reg.Runner(st)
		}
		if err := reg.Register(st, c.wrap(st, runner)); err != nil {
			t.Fatalf("Register %s: %v", st, err)
		}
	}
}

type fixture struct {
	cfg     *config.Config
	opts    book.Options
	input   string
	counter *counter
}

func newFixture(t *testing.T, pages int, cfgOpts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	input := testsupport.WritePages(t, filepath.Join(testsupport.BaseDir(cfg), "input"), pages)
	opts := book.OptionsFromConfig(cfg, logging.NewNop())
	c := newCounter()
	pipeline(t, opts.Registry, c)
	return &fixture{cfg: cfg, opts: opts, input: input, counter: c}
}

func (f *fixture) newBook(t *testing.T) *book.Book {
	t.Helper()
	b, err := book.New(f.input, f.opts)
	if err != nil {
		t.Fatalf("book.New: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func mustStub(t *testing.T, b *book.Book, n int) *book.Stub {
	t.Helper()
	s, err := b.Stub(n)
	if err != nil {
		t.Fatalf("Stub(%d): %v", n, err)
	}
	return s
}
