package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validatePicture(); err != nil {
		return err
	}
	if err := c.validateBook(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.StepTimeoutSeconds <= 0 {
		return errors.New("processing.step_timeout_seconds must be positive")
	}
	if c.Processing.Parallelism < 0 {
		return errors.New("processing.parallelism must be >= 0")
	}
	return nil
}

func (c *Config) validatePicture() error {
	switch c.Picture.Binarization {
	case BinarizationGlobal:
		if c.Picture.GlobalThreshold < 0 || c.Picture.GlobalThreshold > 255 {
			return errors.New("picture.global_threshold must be between 0 and 255")
		}
	case BinarizationAdaptive:
		if c.Picture.AdaptiveMeanCoeff <= 0 {
			return errors.New("picture.adaptive_mean_coeff must be positive")
		}
		if c.Picture.AdaptiveStdCoeff < 0 {
			return errors.New("picture.adaptive_std_coeff must be >= 0")
		}
	default:
		return fmt.Errorf("picture.binarization: unsupported value %q (use %q or %q)",
			c.Picture.Binarization, BinarizationGlobal, BinarizationAdaptive)
	}
	if err := ensurePositiveMap(map[string]int{
		"picture.gaussian_radius":    c.Picture.GaussianRadius,
		"picture.median_radius":      c.Picture.MedianRadius,
		"picture.adaptive_window":    c.Picture.AdaptiveWindow,
		"picture.max_cached_sources": c.Picture.MaxCachedSources,
	}); err != nil {
		return err
	}
	if c.Picture.RetainedSources > c.Picture.MaxCachedSources {
		return fmt.Errorf("picture.retained_sources (%d) exceeds picture.max_cached_sources (%d)",
			c.Picture.RetainedSources, c.Picture.MaxCachedSources)
	}
	return nil
}

func (c *Config) validateBook() error {
	for _, pattern := range c.Book.AliasPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("book.alias_patterns: invalid pattern %q: %w", pattern, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("book.alias_patterns: pattern %q must contain a capture group", strings.TrimSpace(pattern))
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
