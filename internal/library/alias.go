package library

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Aliases derives short book names from long input names. Each pattern
// must hold one capture group; the first pattern that matches the input
// base name, without extension, gives the alias.
type Aliases struct {
	patterns []*regexp.Regexp
}

// CompileAliases compiles the alias patterns.
func CompileAliases(patterns []string) (*Aliases, error) {
	a := &Aliases{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("alias pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("alias pattern %q: needs a capture group", p)
		}
		a.patterns = append(a.patterns, re)
	}
	return a, nil
}

// Resolve returns the alias for input, if a pattern matches.
func (a *Aliases) Resolve(input string) (string, bool) {
	if a == nil {
		return "", false
	}
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	for _, re := range a.patterns {
		m := re.FindStringSubmatch(base)
		if len(m) < 2 {
			continue
		}
		if alias := strings.TrimSpace(m[1]); alias != "" {
			return alias, true
		}
	}
	return "", false
}
