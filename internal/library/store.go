package library

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to delete their history database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is one book remembered by the history.
type Entry struct {
	Path      string
	Radix     string
	BookID    string
	Sheets    int
	OpenCount int
	OpenedAt  time.Time
	SavedAt   time.Time
}

// LastUsed returns the most recent of the open and save times.
func (e Entry) LastUsed() time.Time {
	if e.SavedAt.After(e.OpenedAt) {
		return e.SavedAt
	}
	return e.OpenedAt
}

// History records recently opened and saved books in SQLite.
type History struct {
	db   *sql.DB
	path string
}

// OpenHistory initializes or connects to the history database at dbPath.
func OpenHistory(dbPath string) (*History, error) {
	if dbPath == "" {
		return nil, errors.New("history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	h := &History{db: db, path: dbPath}
	if err := h.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// Path returns the database file path.
func (h *History) Path() string { return h.path }

// Close closes the underlying database connection.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *History) initSchema(ctx context.Context) error {
	var tableExists int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return h.createSchema(ctx)
	}

	var version int
	if err := h.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, h.path)
	}
	return nil
}

func (h *History) createSchema(ctx context.Context) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (h *History) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = h.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// RecordOpened notes that the book at path was opened.
func (h *History) RecordOpened(ctx context.Context, path, radix, bookID string, sheets int) error {
	_, err := h.exec(ctx, `
		INSERT INTO books (path, radix, book_id, sheets, open_count, opened_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(path) DO UPDATE SET
			radix = excluded.radix,
			book_id = excluded.book_id,
			sheets = excluded.sheets,
			open_count = books.open_count + 1,
			opened_at = excluded.opened_at`,
		path, radix, bookID, sheets, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record opened %s: %w", path, err)
	}
	return nil
}

// RecordSaved notes that the book was saved at path.
func (h *History) RecordSaved(ctx context.Context, path, radix, bookID string, sheets int) error {
	_, err := h.exec(ctx, `
		INSERT INTO books (path, radix, book_id, sheets, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			radix = excluded.radix,
			book_id = excluded.book_id,
			sheets = excluded.sheets,
			saved_at = excluded.saved_at`,
		path, radix, bookID, sheets, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record saved %s: %w", path, err)
	}
	return nil
}

// Recent lists remembered books, most recently used first. A limit <= 0
// lists them all.
func (h *History) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT path, radix, book_id, sheets, open_count, opened_at, saved_at
		FROM books ORDER BY MAX(COALESCE(saved_at, ''), COALESCE(opened_at, '')) DESC, path`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			openedAt sql.NullTime
			savedAt  sql.NullTime
		)
		if err := rows.Scan(&e.Path, &e.Radix, &e.BookID, &e.Sheets, &e.OpenCount, &openedAt, &savedAt); err != nil {
			return nil, err
		}
		if openedAt.Valid {
			e.OpenedAt = openedAt.Time
		}
		if savedAt.Valid {
			e.SavedAt = savedAt.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Forget removes path from the history and reports whether it was known.
func (h *History) Forget(ctx context.Context, path string) (bool, error) {
	res, err := h.exec(ctx, `DELETE FROM books WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("forget %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PruneMissing forgets books whose file no longer exists and returns how
// many were removed.
func (h *History) PruneMissing(ctx context.Context) (int, error) {
	entries, err := h.Recent(ctx, 0)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if _, statErr := os.Stat(e.Path); !errors.Is(statErr, os.ErrNotExist) {
			continue
		}
		ok, err := h.Forget(ctx, e.Path)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}
