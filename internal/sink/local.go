package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/neptunelabs/fsi-client/internal/constants"
	"github.com/neptunelabs/fsi-client/internal/diskspace"
	"github.com/neptunelabs/fsi-client/internal/validation"
)

// Local writes into a directory of the local filesystem.
type Local struct {
	dir string
}

// NewLocal creates the sink, creating dir if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create target directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) String() string { return l.dir }

// Dir returns the root directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) resolve(rel string) (string, error) {
	if rel == "" {
		return filepath.Abs(l.dir)
	}
	return validation.SafeJoin(l.dir, rel)
}

// Exists implements Sink.
func (l *Local) Exists(_ context.Context, rel string) (bool, error) {
	p, err := l.resolve(rel)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// MkdirAll implements Sink.
func (l *Local) MkdirAll(_ context.Context, rel string) error {
	p, err := l.resolve(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0o755)
}

// Create implements Sink. Data goes to a hidden temp file next to the
// target that is renamed over it on Close.
func (l *Local) Create(_ context.Context, rel string, _ int64, modTime time.Time, overwrite bool) (io.WriteCloser, error) {
	p, err := l.resolve(rel)
	if err != nil {
		return nil, err
	}
	if !overwrite {
		if _, err := os.Stat(p); err == nil {
			return nil, fmt.Errorf("%s: %w", p, ErrExists)
		}
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*.part")
	if err != nil {
		return nil, err
	}
	return &localWriter{f: f, target: p, modTime: modTime}, nil
}

// CheckSpace implements SpaceChecker.
func (l *Local) CheckSpace(required int64) error {
	return diskspace.CheckAvailableSpace(l.dir, required, constants.DiskSpaceSafetyMargin)
}

type localWriter struct {
	f       *os.File
	target  string
	modTime time.Time
	done    bool
}

func (w *localWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *localWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return err
	}
	if err := os.Rename(w.f.Name(), w.target); err != nil {
		os.Remove(w.f.Name())
		return err
	}
	if !w.modTime.IsZero() {
		_ = os.Chtimes(w.target, w.modTime, w.modTime)
	}
	return nil
}

func (w *localWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.f.Close()
	return os.Remove(w.f.Name())
}
