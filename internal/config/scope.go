package config

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/jward/understory/internal/finding"
)

// pathScope restricts a rule to a subset of files using gitignore-style
// globs. An empty include list admits every path. Excludes win over
// includes.
type pathScope struct {
	includes []gitignore.Pattern
	excludes []gitignore.Pattern
}

func newPathScope(includes, excludes []string) pathScope {
	return pathScope{
		includes: compile(includes),
		excludes: compile(excludes),
	}
}

func compile(globs []string) []gitignore.Pattern {
	var out []gitignore.Pattern
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" || strings.HasPrefix(g, "#") {
			continue
		}
		out = append(out, gitignore.ParsePattern(g, nil))
	}
	return out
}

func (s pathScope) empty() bool {
	return len(s.includes) == 0 && len(s.excludes) == 0
}

func (s pathScope) allows(path string) bool {
	parts := splitPath(path)
	if matches(s.excludes, parts) {
		return false
	}
	if len(s.includes) == 0 {
		return true
	}
	return matches(s.includes, parts)
}

// matches applies patterns in order; the last pattern that matches decides,
// so "!" negations can carve out exceptions.
func matches(patterns []gitignore.Pattern, parts []string) bool {
	hit := false
	for _, p := range patterns {
		switch p.Match(parts, false) {
		case gitignore.Exclude:
			hit = true
		case gitignore.Include:
			hit = false
		}
	}
	return hit
}

func splitPath(p string) []string {
	p = strings.TrimPrefix(finding.NormalizePath(p), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}
