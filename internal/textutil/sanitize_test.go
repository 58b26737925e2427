package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"  Sonata: No. 2  ": "Sonata- No. 2",
		"a/b\\c":            "a-b-c",
		"what?<>|\"":        "what",
		"op#27":             "op-27",
		"":                  "",
	}
	for input, want := range cases {
		if got := SanitizeFileName(input); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRadix(t *testing.T) {
	cases := map[string]string{
		"/scans/Chopin Etude.png": "Chopin Etude",
		"book.omr":                "book",
		"/scans/archive.tar.gz":   "archive.tar",
		"/scans/.png":             "book",
		"":                        "book",
		"/":                       "book",
		"relative/dir":            "dir",
	}
	for input, want := range cases {
		if got := Radix(input); got != want {
			t.Fatalf("Radix(%q) = %q, want %q", input, got, want)
		}
	}
}
