package testsupport

import (
	"testing"

	"github.com/Audiveris/audiveris-sub014/internal/config"
	"github.com/Audiveris/audiveris-sub014/internal/library"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
)

// MustOpenHistory opens the history database of cfg and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *library.History {
	t.Helper()

	history, err := library.OpenHistory(cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("library.OpenHistory: %v", err)
	}
	t.Cleanup(func() {
		_ = history.Close()
	})
	return history
}

// MustOpenLibrary builds a library backed by the history database of cfg.
// Open books are closed on cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *library.Library {
	t.Helper()

	lib, err := library.New(cfg, logging.NewNop(), MustOpenHistory(t, cfg))
	if err != nil {
		t.Fatalf("library.New: %v", err)
	}
	t.Cleanup(lib.CloseAll)
	return lib
}
