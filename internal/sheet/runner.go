package sheet

import (
	"context"
	"fmt"
	"sync"

	"github.com/Audiveris/audiveris-sub014/internal/picture"
	"github.com/Audiveris/audiveris-sub014/internal/raster"
	"github.com/Audiveris/audiveris-sub014/internal/step"
)

// Runner executes the body of one pipeline step on a sheet. A runner should
// return an error wrapping step.ErrStep for a page-level failure, or
// step.ErrInvalidSheet when the page holds nothing usable. Long runners
// should watch ctx and return once it is done.
type Runner interface {
	Run(ctx context.Context, s *Sheet) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, s *Sheet) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, s *Sheet) error { return f(ctx, s) }

// Noop is the runner of steps with no recognition engine attached.
var Noop Runner = RunnerFunc(func(ctx context.Context, _ *Sheet) error { return ctx.Err() })

// Registry maps steps to runners. LOAD and BINARY have built-in runners;
// other steps run Noop until replaced.
type Registry struct {
	mu      sync.RWMutex
	runners map[step.Step]Runner
}

// NewRegistry returns a registry with the built-in runners.
func NewRegistry() *Registry {
	r := &Registry{runners: make(map[step.Step]Runner, step.Count())}
	r.runners[step.Load] = RunnerFunc(runLoad)
	r.runners[step.Binary] = RunnerFunc(runBinary)
	return r
}

// Register installs runner for st, replacing any previous one.
func (r *Registry) Register(st step.Step, runner Runner) error {
	if !st.Valid() {
		return fmt.Errorf("register runner: invalid step %d", st)
	}
	if runner == nil {
		return fmt.Errorf("register runner for %s: nil runner", st)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[st] = runner
	return nil
}

// Runner returns the runner for st.
func (r *Registry) Runner(st step.Step) Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if runner, ok := r.runners[st]; ok {
		return runner
	}
	return Noop
}

// blankRatio is the foreground share under which a page counts as blank.
const blankRatio = 0.0005

// loadInfo is the result recorded by LOAD.
type loadInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func runLoad(ctx context.Context, s *Sheet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base, err := s.Picture().Source(picture.Base)
	if err != nil {
		return step.Wrap(step.ErrStep, step.Load.String(), "read image", "", err)
	}
	return s.SetResult(step.Load, loadInfo{Width: base.Width, Height: base.Height})
}

// binaryInfo is the result recorded by BINARY.
type binaryInfo struct {
	Filter     string  `json:"filter"`
	Foreground int     `json:"foreground"`
	Ratio      float64 `json:"ratio"`
}

func runBinary(ctx context.Context, s *Sheet) error {
	pic := s.Picture()
	if err := pic.Binarize(); err != nil {
		return step.Wrap(step.ErrStep, step.Binary.String(), "binarize", "", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bin, err := pic.Source(picture.Binary)
	if err != nil {
		return step.Wrap(step.ErrStep, step.Binary.String(), "read binary", "", err)
	}
	fg := raster.RunTableFromGray(bin).Foreground()
	ratio := float64(fg) / float64(bin.Width*bin.Height)
	if err := s.SetResult(step.Binary, binaryInfo{Filter: pic.FilterName(), Foreground: fg, Ratio: ratio}); err != nil {
		return err
	}
	if ratio < blankRatio {
		return step.Wrap(step.ErrInvalidSheet, step.Binary.String(), "", fmt.Sprintf("blank page (%.4f%% foreground)", ratio*100), nil)
	}
	return nil
}
