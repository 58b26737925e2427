package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/Audiveris/audiveris-sub014/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_STATE_HOME", "")
	prevWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prevWD) })

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Paths.BaseDir != filepath.Join(tempHome, "omr") {
		t.Fatalf("unexpected base dir: %q", cfg.Paths.BaseDir)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, ".local", "share", "omrbook", "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Processing.StepTimeoutSeconds != 120 {
		t.Fatalf("unexpected step timeout: %d", cfg.Processing.StepTimeoutSeconds)
	}
	if !cfg.Processing.ParallelStubs {
		t.Fatal("expected parallel stubs enabled by default")
	}
	if cfg.Picture.KeepBaseRaster {
		t.Fatal("expected base raster to be dropped by default")
	}
	if cfg.Picture.GaussianRadius != 1 || cfg.Picture.MedianRadius != 1 {
		t.Fatalf("unexpected radii: gaussian=%d median=%d", cfg.Picture.GaussianRadius, cfg.Picture.MedianRadius)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
base_dir = "~/scores"

[processing]
step_timeout_seconds = 5
parallelism = 3
headless = true
save_every_step = true
target_step = "grid"

[picture]
binarization = "GLOBAL"
global_threshold = 128
keep_base_raster = true

[book]
alias_patterns = ["^(.*)-scan$", "^(.*)-scan$", "  "]

[logging]
format = "json"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.BaseDir != filepath.Join(tempHome, "scores") {
		t.Fatalf("unexpected base dir: %q", cfg.Paths.BaseDir)
	}
	if got := cfg.StepTimeout().Seconds(); got != 5 {
		t.Fatalf("unexpected step timeout: %v", got)
	}
	if cfg.Processing.TargetStep != "GRID" {
		t.Fatalf("expected target step upper-cased, got %q", cfg.Processing.TargetStep)
	}
	if !cfg.Processing.Headless || !cfg.Processing.SaveEveryStep {
		t.Fatal("expected headless save-every-step")
	}
	if cfg.Picture.Binarization != config.BinarizationGlobal {
		t.Fatalf("unexpected binarization: %q", cfg.Picture.Binarization)
	}
	if len(cfg.Book.AliasPatterns) != 1 {
		t.Fatalf("expected deduplicated alias patterns, got %v", cfg.Book.AliasPatterns)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"timeout", func(c *config.Config) { c.Processing.StepTimeoutSeconds = 0 }, "step_timeout_seconds"},
		{"binarization", func(c *config.Config) { c.Picture.Binarization = "otsu" }, "picture.binarization"},
		{"threshold", func(c *config.Config) {
			c.Picture.Binarization = config.BinarizationGlobal
			c.Picture.GlobalThreshold = 300
		}, "global_threshold"},
		{"retained sources", func(c *config.Config) { c.Picture.RetainedSources = 100 }, "retained_sources"},
		{"alias regexp", func(c *config.Config) { c.Book.AliasPatterns = []string{"("} }, "invalid pattern"},
		{"alias group", func(c *config.Config) { c.Book.AliasPatterns = []string{"^abc$"} }, "capture group"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if decoded.Processing.StepTimeoutSeconds != 120 {
		t.Fatalf("unexpected sample timeout: %d", decoded.Processing.StepTimeoutSeconds)
	}
	if decoded.Picture.Binarization != config.BinarizationAdaptive {
		t.Fatalf("unexpected sample binarization: %q", decoded.Picture.Binarization)
	}
}
