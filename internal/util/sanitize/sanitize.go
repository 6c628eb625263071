// Package sanitize cleans names and metadata values typed or pasted on the
// command line before they are sent to the server.
//
// It removes:
//   - CR and CRLF line endings (converted to LF)
//   - invisible Unicode characters (zero-width spaces, BOM, soft hyphen)
//   - runs of blanks, which collapse to one space
package sanitize

import (
	"regexp"
	"strings"
)

var (
	invisible = strings.NewReplacer(
		"\u200B", "", // zero-width space
		"\u200C", "", // zero-width non-joiner
		"\u200D", "", // zero-width joiner
		"\uFEFF", "", // BOM
		"\u00AD", "", // soft hyphen
		"\u2060", "", // word joiner
		"\u180E", "", // Mongolian vowel separator
	)
	blanks   = regexp.MustCompile(`[ \t]+`)
	newlines = regexp.MustCompile(`\n+`)
)

// Name cleans a file or directory name. Line breaks are not allowed in names
// and become spaces.
func Name(s string) string {
	if s == "" {
		return s
	}
	s = invisible.Replace(s)
	s = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
	return strings.TrimSpace(blanks.ReplaceAllString(s, " "))
}

// Value cleans a metadata value. Line breaks survive as single LFs.
func Value(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = invisible.Replace(s)
	s = blanks.ReplaceAllString(s, " ")
	s = newlines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
