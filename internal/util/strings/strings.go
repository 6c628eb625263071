// Package strings holds small formatting helpers for CLI output.
package strings

import (
	"fmt"
	"strings"
)

// Pluralize returns word for a count of one and its plural otherwise.
// A trailing consonant+y becomes "ies".
func Pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	if n := len(word); n > 1 && word[n-1] == 'y' && !strings.ContainsRune("aeiou", rune(word[n-2])) {
		return word[:n-1] + "ies"
	}
	return word + "s"
}

// Count formats count followed by the matching form of word: "1 file", "3 files".
func Count(count int, word string) string {
	return fmt.Sprintf("%d %s", count, Pluralize(word, count))
}

// Bytes formats n with a binary unit.
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
