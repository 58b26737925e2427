package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/config"
	"github.com/Audiveris/audiveris-sub014/internal/library"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
)

type commandContext struct {
	configFlag *string
	levelFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	libraryOnce sync.Once
	library     *library.Library
	history     *library.History
	libraryErr  error
}

func newCommandContext(configFlag, levelFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		levelFlag:  levelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.levelFlag != nil && strings.TrimSpace(*c.levelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.levelFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("create logger: %w", err)
			return
		}
		if cfg.Paths.LogDir != "" {
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: "*.log",
				Exclude: []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
			})
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) ensureLibrary() (*library.Library, error) {
	c.libraryOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.libraryErr = err
			return
		}
		logger, err := c.ensureLogger()
		if err != nil {
			c.libraryErr = err
			return
		}
		var history *library.History
		if cfg.Paths.HistoryDB != "" {
			history, err = library.OpenHistory(cfg.Paths.HistoryDB)
			if err != nil {
				logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "recent books are not recorded"),
				)
				history = nil
			}
		}
		lib, err := library.New(cfg, logger, history)
		if err != nil {
			if history != nil {
				_ = history.Close()
			}
			c.libraryErr = err
			return
		}
		c.library = lib
		c.history = history
	})
	return c.library, c.libraryErr
}

// openBook returns the book for target: a stored book when target ends in
// the book extension, a fresh book over the images otherwise.
func (c *commandContext) openBook(ctx context.Context, target string) (*library.Library, *book.Book, error) {
	lib, err := c.ensureLibrary()
	if err != nil {
		return nil, nil, err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, nil, fmt.Errorf("book path required")
	}
	var b *book.Book
	if strings.EqualFold(filepath.Ext(target), book.Extension) {
		b, err = lib.Open(ctx, target)
	} else {
		b, err = lib.Create(ctx, target)
	}
	if err != nil {
		return nil, nil, err
	}
	return lib, b, nil
}

// withBook opens target, runs fn, and closes every book and the history
// afterwards.
func (c *commandContext) withBook(ctx context.Context, target string, fn func(*library.Library, *book.Book) error) error {
	defer c.close()
	lib, b, err := c.openBook(ctx, target)
	if err != nil {
		return err
	}
	return fn(lib, b)
}

func (c *commandContext) withHistory(fn func(*library.History) error) error {
	defer c.close()
	lib, err := c.ensureLibrary()
	if err != nil {
		return err
	}
	h := lib.History()
	if h == nil {
		return errHistoryDisabled
	}
	return fn(h)
}

func (c *commandContext) close() {
	if c.library != nil {
		c.library.CloseAll()
	}
	if c.history != nil {
		_ = c.history.Close()
		c.history = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
