package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func decodeStatus(t *testing.T, out string) statusJSON {
	t.Helper()
	var st statusJSON
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	return st
}

func TestProcessSaveAndStatus(t *testing.T) {
	env := setupCLITestEnv(t, 3)
	bookPath := filepath.Join(env.baseDir, "out", "scan.omr")

	out, _, err := runCLI(t, []string{"process", env.inputDir, "--step", "binary", "--output", bookPath}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "Binary")
	requireContains(t, out, "Book: "+bookPath)
	if _, err := os.Stat(bookPath); err != nil {
		t.Fatalf("expected book at %s: %v", bookPath, err)
	}

	out, _, err = runCLI(t, []string{"status", bookPath, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	st := decodeStatus(t, out)
	if len(st.Sheets) != 3 {
		t.Fatalf("expected 3 sheets, got %d", len(st.Sheets))
	}
	for _, s := range st.Sheets {
		if s.Latest != "BINARY" {
			t.Fatalf("sheet %d latest = %q, want BINARY", s.Number, s.Latest)
		}
		if s.Resident || s.Modified {
			t.Fatalf("sheet %d should be neither resident nor modified after load", s.Number)
		}
	}

	out, _, err = runCLI(t, []string{"status", bookPath}, env.configPath)
	if err != nil {
		t.Fatalf("status table: %v", err)
	}
	requireContains(t, out, "Book: scan")
	requireContains(t, out, "Sheet")
}

func TestProcessSubsetOfStoredBook(t *testing.T) {
	env := setupCLITestEnv(t, 3)
	bookPath := filepath.Join(env.baseDir, "subset.omr")

	if _, _, err := runCLI(t, []string{"process", env.inputDir, "--step", "BINARY", "-o", bookPath}, env.configPath); err != nil {
		t.Fatalf("initial process: %v", err)
	}
	if _, _, err := runCLI(t, []string{"process", bookPath, "--step", "grid", "--sheets", "2-", "--where", "number != 3", "--save"}, env.configPath); err != nil {
		t.Fatalf("subset process: %v", err)
	}

	out, _, err := runCLI(t, []string{"status", bookPath, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	st := decodeStatus(t, out)
	want := map[int]string{1: "BINARY", 2: "GRID", 3: "BINARY"}
	for _, s := range st.Sheets {
		if s.Latest != want[s.Number] {
			t.Fatalf("sheet %d latest = %q, want %q", s.Number, s.Latest, want[s.Number])
		}
	}
}

func TestProcessEmptySelection(t *testing.T) {
	env := setupCLITestEnv(t, 2)
	out, _, err := runCLI(t, []string{"process", env.inputDir, "--where", "number > 10"}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "No sheet selected")
}

func TestProcessRejectsBadArguments(t *testing.T) {
	env := setupCLITestEnv(t, 1)

	if _, _, err := runCLI(t, []string{"process", env.inputDir, "--step", "NOPE"}, env.configPath); err == nil {
		t.Fatal("expected unknown step to fail")
	}
	if _, _, err := runCLI(t, []string{"process", env.inputDir, "--sheets", "3-1"}, env.configPath); err == nil {
		t.Fatal("expected empty range to fail")
	}
	if _, _, err := runCLI(t, []string{"process", env.inputDir, "--where", "number +"}, env.configPath); err == nil {
		t.Fatal("expected malformed expression to fail")
	}
	if _, _, err := runCLI(t, []string{"status", filepath.Join(env.baseDir, "missing.omr")}, env.configPath); err == nil {
		t.Fatal("expected missing book to fail")
	}
}

func TestSaveAsRemoveAndHistory(t *testing.T) {
	env := setupCLITestEnv(t, 3)
	bookPath := filepath.Join(env.baseDir, "first.omr")
	copyPath := filepath.Join(env.baseDir, "copies", "second.omr")

	if _, _, err := runCLI(t, []string{"process", env.inputDir, "--step", "binary", "-o", bookPath}, env.configPath); err != nil {
		t.Fatalf("process: %v", err)
	}

	out, _, err := runCLI(t, []string{"save-as", bookPath, copyPath}, env.configPath)
	if err != nil {
		t.Fatalf("save-as: %v", err)
	}
	requireContains(t, out, "Saved")
	requireContains(t, out, copyPath)

	out, _, err = runCLI(t, []string{"remove", copyPath, "2"}, env.configPath)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	requireContains(t, out, "Removed sheet(s) 2")

	out, _, err = runCLI(t, []string{"status", copyPath, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status copy: %v", err)
	}
	if st := decodeStatus(t, out); len(st.Sheets) != 2 {
		t.Fatalf("expected 2 sheets in copy, got %d", len(st.Sheets))
	}
	out, _, err = runCLI(t, []string{"status", bookPath, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status original: %v", err)
	}
	if st := decodeStatus(t, out); len(st.Sheets) != 3 {
		t.Fatalf("expected original untouched, got %d sheets", len(st.Sheets))
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, bookPath)
	requireContains(t, out, copyPath)

	if err := os.Remove(copyPath); err != nil {
		t.Fatalf("remove copy: %v", err)
	}
	out, _, err = runCLI(t, []string{"history", "prune"}, env.configPath)
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	requireContains(t, out, "Pruned 1 missing book(s)")

	if _, _, err := runCLI(t, []string{"history", "forget", bookPath}, env.configPath); err != nil {
		t.Fatalf("history forget: %v", err)
	}
	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history after forget: %v", err)
	}
	requireContains(t, out, "No books recorded")
}

func TestScoresWithoutPages(t *testing.T) {
	env := setupCLITestEnv(t, 2)
	bookPath := filepath.Join(env.baseDir, "plain.omr")
	if _, _, err := runCLI(t, []string{"process", env.inputDir, "--step", "binary", "-o", bookPath}, env.configPath); err != nil {
		t.Fatalf("process: %v", err)
	}
	out, _, err := runCLI(t, []string{"scores", bookPath}, env.configPath)
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	requireContains(t, out, "No scores")
}
