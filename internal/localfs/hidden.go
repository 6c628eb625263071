// Package localfs lists directories of the local filesystem as model entries
// so local trees can be read and uploaded like server trees.
package localfs

import (
	"path/filepath"
	"strings"
)

// IsHidden reports whether the file or directory at path is hidden, that is
// whether its base name starts with a dot.
func IsHidden(path string) bool {
	return IsHiddenName(filepath.Base(path))
}

// IsHiddenName reports whether name is hidden. "." and ".." are not.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
