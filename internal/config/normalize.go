package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizePicture()
	c.normalizeBook()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDirectory()
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = defaultHistoryDB
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	c.Processing.TargetStep = strings.ToUpper(strings.TrimSpace(c.Processing.TargetStep))
	if c.Processing.TargetStep == "" {
		c.Processing.TargetStep = defaultTargetStep
	}
	if c.Processing.Parallelism < 0 {
		c.Processing.Parallelism = 0
	}
}

func (c *Config) normalizePicture() {
	c.Picture.Binarization = strings.ToLower(strings.TrimSpace(c.Picture.Binarization))
	if c.Picture.Binarization == "" {
		c.Picture.Binarization = defaultBinarization
	}
	if c.Picture.GaussianRadius <= 0 {
		c.Picture.GaussianRadius = defaultGaussianRadius
	}
	if c.Picture.MedianRadius <= 0 {
		c.Picture.MedianRadius = defaultMedianRadius
	}
	if c.Picture.AdaptiveWindow <= 0 {
		c.Picture.AdaptiveWindow = defaultAdaptiveWindow
	}
	if c.Picture.MaxCachedSources <= 0 {
		c.Picture.MaxCachedSources = defaultMaxCachedSources
	}
	if c.Picture.RetainedSources < 0 {
		c.Picture.RetainedSources = defaultRetainedSources
	}
}

func (c *Config) normalizeBook() {
	if len(c.Book.AliasPatterns) == 0 {
		return
	}
	patterns := make([]string, 0, len(c.Book.AliasPatterns))
	seen := make(map[string]struct{}, len(c.Book.AliasPatterns))
	for _, pattern := range c.Book.AliasPatterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		patterns = append(patterns, trimmed)
	}
	c.Book.AliasPatterns = patterns
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
