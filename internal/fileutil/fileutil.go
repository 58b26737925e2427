package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxBackups bounds the search for a free backup name.
const maxBackups = 10000

// SplitExt splits a path into the part before its extension and the
// extension itself, dot included.
func SplitExt(path string) (string, string) {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext), ext
}

// BackupPath returns the first "<stem>.<N><ext>" beside path that does not
// exist yet, starting at N=1.
func BackupPath(path string) (string, error) {
	stem, ext := SplitExt(path)
	for n := 1; n < maxBackups; n++ {
		candidate := fmt.Sprintf("%s.%d%s", stem, n, ext)
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat backup candidate: %w", err)
		}
	}
	return "", fmt.Errorf("no free backup name for %s", path)
}

// Backup renames an existing file at path to its next backup name and
// returns that name. A missing file is not an error and yields "".
func Backup(path string) (string, error) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	target, err := BackupPath(path)
	if err != nil {
		return "", err
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	return target, nil
}

// SameFile reports whether a and b name the same file. Paths that do not
// exist compare by their cleaned absolute form.
func SameFile(a, b string) bool {
	ai, errA := os.Stat(a)
	bi, errB := os.Stat(b)
	if errA == nil && errB == nil {
		return os.SameFile(ai, bi)
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
