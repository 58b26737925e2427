package textutil

import (
	"path/filepath"
	"strings"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"#", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, asterisks, and hashes become dashes; other
// unsafe characters are removed. The result is trimmed of whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// Radix derives a book radix from a file path: the base name without its
// extension, made safe for use as a file name. It returns "book" when
// nothing usable remains.
func Radix(path string) string {
	base := filepath.Base(strings.TrimSpace(path))
	if base == "." || base == string(filepath.Separator) {
		return "book"
	}
	radix := SanitizeFileName(strings.TrimSuffix(base, filepath.Ext(base)))
	radix = strings.Trim(radix, ".-")
	if radix == "" {
		return "book"
	}
	return radix
}
