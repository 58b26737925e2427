package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/Audiveris/audiveris-sub014/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BaseDir = filepath.Join(base, "books")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "history.db")
	cfgVal.Processing.StepTimeoutSeconds = 5
	cfgVal.Processing.Parallelism = 4
	cfgVal.Picture.Binarization = config.BinarizationGlobal
	cfgVal.Picture.GlobalThreshold = 128

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStepTimeout overrides the per-step timeout in seconds.
func WithStepTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.StepTimeoutSeconds = seconds
	}
}

// WithSequentialStubs disables parallel processing across stubs.
func WithSequentialStubs() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.ParallelStubs = false
	}
}

// WithHeadless enables headless mode, optionally saving after every step.
func WithHeadless(saveEveryStep bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.Headless = true
		b.cfg.Processing.SaveEveryStep = saveEveryStep
	}
}

// WithKeepBase keeps the initial image in the archive after binarization.
func WithKeepBase() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Picture.KeepBaseRaster = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.BaseDir)
}
