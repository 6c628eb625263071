package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/neptunelabs/fsi-client/internal/models"
)

// ListDirectory returns the children of dir as entries in directory order.
// The entries' Path is dir in slash form. A missing dir is reported as
// models.ErrNotFound.
func ListDirectory(ctx context.Context, dir string, opts ListOptions) ([]*models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, mapError(dir, err)
	}

	parent := filepath.ToSlash(dir)
	result := make([]*models.Entry, 0, len(children))
	for _, child := range children {
		name := child.Name()
		if !opts.IncludeHidden && IsHiddenName(name) {
			continue
		}

		info, err := child.Info()
		if err == nil && info.Mode()&fs.ModeSymlink != 0 {
			if !opts.FollowSymlinks {
				log.Debug().Str("path", filepath.Join(dir, name)).Msg("skipping symlink")
				continue
			}
			info, err = os.Stat(filepath.Join(dir, name))
		}
		if err != nil {
			// Vanished or unreadable entries (permissions) are left out.
			log.Debug().Err(err).Str("path", filepath.Join(dir, name)).Msg("skipping entry")
			continue
		}

		result = append(result, toEntry(parent, info))
	}
	return result, nil
}

// Stat returns the entry for a single local file or directory.
func Stat(path string) (*models.Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, mapError(path, err)
	}
	parent := filepath.ToSlash(filepath.Dir(filepath.Clean(path)))
	return toEntry(parent, info), nil
}

func toEntry(parent string, info fs.FileInfo) *models.Entry {
	var e *models.Entry
	if info.IsDir() {
		e = models.NewDirectory(parent, info.Name(), info.ModTime())
	} else {
		e = models.NewFile(parent, info.Name(), info.Size(), info.ModTime())
	}
	e.ConnectorType = models.ConnectorLocal
	return e
}

func mapError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, models.ErrNotFound)
	}
	return fmt.Errorf("read %s: %w", path, err)
}

// OSPath converts an entry's full path back to the platform's form.
func OSPath(e *models.Entry) string {
	return filepath.FromSlash(e.FullPath())
}
