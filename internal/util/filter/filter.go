// Package filter builds name and path predicates for tree reads from
// --include, --exclude and --path patterns.
package filter

import (
	"context"
	"path"
	"strings"

	"github.com/neptunelabs/fsi-client/internal/models"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns (glob-style) tested against file names. Empty means
	// include all. Example: []string{"*.jpg", "*.tif"}
	Include []string

	// Exclude patterns (glob-style). They take precedence over Include and
	// also prune directories by name.
	Exclude []string

	// PathInclude patterns match the path relative to Base. Supports ** for
	// any number of directories: "**/thumbs/*.png" matches "a/b/thumbs/x.png".
	PathInclude []string

	// Base is the directory the read starts at.
	Base string
}

// Empty reports whether c filters nothing.
func (c Config) Empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 && len(c.PathInclude) == 0
}

// NamePredicate returns a file filter for the tree reader, or nil when c
// accepts everything.
func (c Config) NamePredicate() func(context.Context, *models.Entry) (bool, error) {
	if c.Empty() {
		return nil
	}
	return func(_ context.Context, e *models.Entry) (bool, error) {
		if len(c.PathInclude) > 0 {
			rel, ok := e.RelativeTo(c.Base)
			if !ok {
				rel = e.FullPath()
			}
			if !MatchesAnyPath(rel, c.PathInclude) {
				return false, nil
			}
		}
		return MatchesName(e.Name, c), nil
	}
}

// DirPredicate returns a directory filter that prunes directories whose name
// matches an exclude pattern, or nil when there are none.
func (c Config) DirPredicate() func(context.Context, *models.Entry) (bool, error) {
	if len(c.Exclude) == 0 {
		return nil
	}
	return func(_ context.Context, e *models.Entry) (bool, error) {
		for _, pattern := range c.Exclude {
			if matched, _ := path.Match(pattern, e.Name); matched {
				return false, nil
			}
		}
		return true, nil
	}
}

// MatchesName applies the exclude and include patterns to a file name.
func MatchesName(name string, c Config) bool {
	for _, pattern := range c.Exclude {
		if matched, _ := path.Match(pattern, name); matched {
			return false
		}
	}
	if len(c.Include) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, pattern := range c.Include {
		if matched, _ := path.Match(pattern, name); matched {
			return true
		}
		// Image extensions come in either case.
		if matched, _ := path.Match(strings.ToLower(pattern), lower); matched {
			return true
		}
	}
	return false
}

// MatchesAnyPath reports whether p matches one of patterns.
func MatchesAnyPath(p string, patterns []string) bool {
	p = strings.TrimSuffix(strings.ReplaceAll(p, "\\", "/"), "/")
	for _, pattern := range patterns {
		if matchPathPattern(p, strings.ReplaceAll(pattern, "\\", "/")) {
			return true
		}
	}
	return false
}

// matchPathPattern matches segment by segment; a "**" segment swallows zero
// or more path segments.
func matchPathPattern(p, pattern string) bool {
	if pattern == "**" {
		return true
	}
	return matchSegments(strings.Split(p, "/"), strings.Split(pattern, "/"))
}

func matchSegments(parts, pats []string) bool {
	for len(pats) > 0 {
		if pats[0] == "**" {
			rest := pats[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(parts[i:], rest) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if matched, err := path.Match(pats[0], parts[0]); err != nil || !matched {
			return false
		}
		parts, pats = parts[1:], pats[1:]
	}
	return len(parts) == 0
}

// ParsePatternList parses a comma-separated list of patterns into a slice.
// Example: "*.jpg,*.png" -> []string{"*.jpg", "*.png"}
func ParsePatternList(patternStr string) []string {
	if patternStr == "" {
		return nil
	}
	parts := strings.Split(patternStr, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
