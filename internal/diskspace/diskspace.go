// Package diskspace checks free space on the filesystem a download lands on.
package diskspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, float64(e.RequiredBytes)/(1<<20), float64(e.AvailableBytes)/(1<<20))
}

// CheckAvailableSpace returns an *InsufficientSpaceError when the filesystem
// holding targetPath has less than requiredBytes*safetyMargin free. targetPath
// need not exist; the nearest existing ancestor is checked. Filesystems that
// cannot be queried pass.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	if requiredBytes <= 0 {
		return nil
	}
	avail, err := available(existingAncestor(targetPath))
	if err != nil {
		return nil
	}
	need := int64(float64(requiredBytes) * safetyMargin)
	if avail < need {
		return &InsufficientSpaceError{Path: targetPath, RequiredBytes: need, AvailableBytes: avail}
	}
	return nil
}

// GetAvailableSpace returns the free bytes for path, or 0 if unknown.
func GetAvailableSpace(path string) int64 {
	avail, err := available(existingAncestor(path))
	if err != nil {
		return 0
	}
	return avail
}

// IsInsufficientSpaceError reports whether err wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}

func existingAncestor(path string) string {
	dir := filepath.Clean(path)
	for {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
