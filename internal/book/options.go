package book

import (
	"log/slog"
	"time"

	"github.com/Audiveris/audiveris-sub014/internal/config"
	"github.com/Audiveris/audiveris-sub014/internal/picture"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/workpool"
)

// Extension is the file extension of book containers.
const Extension = ".omr"

// Options carries the collaborators and settings a book runs with.
type Options struct {
	Logger   *slog.Logger
	Pool     *workpool.Pool
	Registry *sheet.Registry
	Picture  picture.Options

	StepTimeout     time.Duration
	ParallelStubs   bool
	Headless        bool
	SaveEveryStep   bool
	BaseDir         string
	SeparateFolders bool
	// Alias, when set, names the book instead of the input file radix.
	Alias string
}

// OptionsFromConfig maps the configuration onto book options. The pool and
// registry are created fresh; callers sharing them across books override
// the fields.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	pic := picture.OptionsFromConfig(cfg.Picture)
	pic.Logger = logger
	return Options{
		Logger:          logger,
		Pool:            workpool.New(cfg.Processing.Parallelism, logger),
		Registry:        sheet.NewRegistry(),
		Picture:         pic,
		StepTimeout:     cfg.StepTimeout(),
		ParallelStubs:   cfg.Processing.ParallelStubs,
		Headless:        cfg.Processing.Headless,
		SaveEveryStep:   cfg.Processing.SaveEveryStep,
		BaseDir:         cfg.Paths.BaseDir,
		SeparateFolders: cfg.Book.SeparateBookFolders,
	}
}

func (o Options) withDefaults() Options {
	if o.Pool == nil {
		o.Pool = workpool.New(0, o.Logger)
	}
	if o.Registry == nil {
		o.Registry = sheet.NewRegistry()
	}
	if o.Picture.Logger == nil {
		o.Picture.Logger = o.Logger
	}
	return o
}
