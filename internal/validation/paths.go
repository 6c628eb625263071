// Package validation checks names and paths that come from the server or
// the command line before they touch the filesystem or a request URL.
package validation

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is wrapped by every rejection below.
var ErrUnsafePath = errors.New("unsafe path")

// ValidateName checks a single file or directory name, as used for renames
// and for entries read from a server listing.
//
// Rejected: empty names, "." and "..", path separators and NUL bytes.
// Names like "foo..bar.jpg" are fine.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrUnsafePath)
	case name == "." || name == "..":
		return fmt.Errorf("%w: name %q", ErrUnsafePath, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: name contains null byte", ErrUnsafePath)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: name %q contains a path separator", ErrUnsafePath, name)
	}
	return nil
}

// ValidateRemotePath checks a server path: slash separated, no NUL bytes and
// no ".." segments. The empty string is the server root and is valid.
func ValidateRemotePath(p string) error {
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("%w: path contains null byte", ErrUnsafePath)
	}
	if strings.Contains(p, `\`) {
		return fmt.Errorf("%w: %q contains a backslash", ErrUnsafePath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q contains '..'", ErrUnsafePath, p)
		}
	}
	return nil
}

// SafeJoin joins the slash separated rel onto baseDir and returns the result
// only if it stays inside baseDir.
//
//	SafeJoin("/tmp/dl", "shop/a.jpg")  // "/tmp/dl/shop/a.jpg"
//	SafeJoin("/tmp/dl", "../etc/passwd") // error
func SafeJoin(baseDir, rel string) (string, error) {
	if baseDir == "" {
		return "", fmt.Errorf("%w: base directory cannot be empty", ErrUnsafePath)
	}
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: path contains null byte", ErrUnsafePath)
	}
	rel = strings.ReplaceAll(rel, `\`, "/")
	if path.IsAbs(rel) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, rel)
	}

	base, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	joined := filepath.Join(base, filepath.FromSlash(rel))

	r, err := filepath.Rel(base, joined)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes %s", ErrUnsafePath, rel, baseDir)
	}
	return joined, nil
}
