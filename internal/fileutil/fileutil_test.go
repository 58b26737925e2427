package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBackupPicksFirstFreeNumber(t *testing.T) {
	dir := t.TempDir()
	book := filepath.Join(dir, "etude.omr")
	if err := os.WriteFile(book, []byte("v3"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "etude.1.omr"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Backup(book)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "etude.2.omr")
	if got != want {
		t.Fatalf("backup = %q, want %q", got, want)
	}
	if _, err := os.Stat(book); !os.IsNotExist(err) {
		t.Fatalf("original should be moved away, stat err = %v", err)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v3" {
		t.Fatalf("backup content = %q", data)
	}
}

func TestBackupMissingFile(t *testing.T) {
	got, err := Backup(filepath.Join(t.TempDir(), "none.omr"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("expected no backup, got %q", got)
	}
}

func TestSplitExt(t *testing.T) {
	stem, ext := SplitExt("/books/chopin.omr")
	if stem != "/books/chopin" || ext != ".omr" {
		t.Fatalf("SplitExt = %q %q", stem, ext)
	}
}

func TestSameFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.omr")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !SameFile(path, filepath.Join(dir, ".", "a.omr")) {
		t.Fatal("expected same file")
	}
	if SameFile(path, filepath.Join(dir, "b.omr")) {
		t.Fatal("expected different files")
	}
}
