package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/config"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/sheet"
	"github.com/Audiveris/audiveris-sub014/internal/workpool"
)

// ErrNotOpen reports a book that is not held by the library.
var ErrNotOpen = errors.New("book not open")

// Library holds the books open in this process. Books share one worker
// pool and one step registry. Closing a book removes it from the library.
type Library struct {
	mu      sync.Mutex
	cfg     *config.Config
	logger  *slog.Logger
	history *History
	aliases *Aliases
	pool    *workpool.Pool
	steps   *sheet.Registry
	books   map[string]*book.Book
}

// New builds a library. history may be nil to disable the recent-book
// record.
func New(cfg *config.Config, logger *slog.Logger, history *History) (*Library, error) {
	aliases, err := CompileAliases(cfg.Book.AliasPatterns)
	if err != nil {
		return nil, err
	}
	logger = logging.NewComponentLogger(logger, "library")
	return &Library{
		cfg:     cfg,
		logger:  logger,
		history: history,
		aliases: aliases,
		pool:    workpool.New(cfg.Processing.Parallelism, logger),
		steps:   sheet.NewRegistry(),
		books:   make(map[string]*book.Book),
	}, nil
}

// Registry returns the step registry shared by every book.
func (l *Library) Registry() *sheet.Registry { return l.steps }

// History returns the recent-book record, or nil.
func (l *Library) History() *History { return l.history }

func (l *Library) options(alias string) book.Options {
	opts := book.OptionsFromConfig(l.cfg, l.logger)
	opts.Pool = l.pool
	opts.Registry = l.steps
	opts.Alias = alias
	return opts
}

// Create starts a book from an image file or folder.
func (l *Library) Create(ctx context.Context, input string) (*book.Book, error) {
	alias, _ := l.aliases.Resolve(input)
	b, err := book.New(input, l.options(alias))
	if err != nil {
		return nil, err
	}
	l.add(b)
	return b, nil
}

// Open loads the book stored at path, or returns it if already open.
func (l *Library) Open(ctx context.Context, path string) (*book.Book, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	l.mu.Lock()
	for _, b := range l.books {
		if b.Path() == abs {
			l.mu.Unlock()
			return b, nil
		}
	}
	l.mu.Unlock()

	b, err := book.Load(abs, l.options(""))
	if err != nil {
		return nil, err
	}
	l.add(b)
	if l.history != nil {
		if err := l.history.RecordOpened(ctx, abs, b.Radix(), b.ID(), len(b.Stubs())); err != nil {
			logging.WarnWithContext(l.logger, "history update failed", "history_update_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "book missing from recent list"),
			)
		}
	}
	return b, nil
}

// Save stores b at path, or at its bound or default path when path is
// empty. A new target is backed up first when the configuration asks for
// it.
func (l *Library) Save(ctx context.Context, b *book.Book, path string) error {
	if err := b.Store(path, l.cfg.Book.BackupOnSave); err != nil {
		return err
	}
	if l.history != nil {
		if err := l.history.RecordSaved(ctx, b.Path(), b.Radix(), b.ID(), len(b.Stubs())); err != nil {
			logging.WarnWithContext(l.logger, "history update failed", "history_update_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "book missing from recent list"),
			)
		}
	}
	return nil
}

func (l *Library) add(b *book.Book) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.books[b.ID()] = b
}

// Get returns the open book with the given id.
func (l *Library) Get(id string) (*book.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, id)
	}
	return b, nil
}

// Books lists the open books by radix.
func (l *Library) Books() []*book.Book {
	l.mu.Lock()
	out := make([]*book.Book, 0, len(l.books))
	for _, b := range l.books {
		out = append(out, b)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Radix() < out[j].Radix() })
	return out
}

// Close closes b and removes it from the library.
func (l *Library) Close(b *book.Book) error {
	l.mu.Lock()
	if _, ok := l.books[b.ID()]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOpen, b.Radix())
	}
	delete(l.books, b.ID())
	l.mu.Unlock()
	b.Close()
	return nil
}

// CloseAll closes every open book.
func (l *Library) CloseAll() {
	for _, b := range l.Books() {
		_ = l.Close(b)
	}
}
