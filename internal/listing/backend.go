package listing

import (
	"context"
	"path/filepath"

	"github.com/neptunelabs/fsi-client/internal/api"
	"github.com/neptunelabs/fsi-client/internal/localfs"
	"github.com/neptunelabs/fsi-client/internal/models"
)

// Level is one directory level as returned by a backend.
type Level struct {
	Dir           string
	ConnectorType models.ConnectorType
	Entries       []*models.Entry
}

// Backend fetches the immediate children of a directory. Implementations
// must return fresh entries on every call.
type Backend interface {
	// Name labels the backend in logs and metrics.
	Name() string
	ReadDir(ctx context.Context, dir string) (*Level, error)
}

// DirectoryLister is the part of api.Client the remote backend needs.
type DirectoryLister interface {
	ListDirectory(ctx context.Context, dir string) (*api.DirectoryListing, error)
}

// RemoteBackend reads directories from an FSI server.
type RemoteBackend struct {
	lister DirectoryLister
}

// NewRemoteBackend creates a backend over l, usually an *api.Client.
func NewRemoteBackend(l DirectoryLister) *RemoteBackend {
	return &RemoteBackend{lister: l}
}

// Name implements Backend.
func (b *RemoteBackend) Name() string { return "remote" }

// ReadDir implements Backend.
func (b *RemoteBackend) ReadDir(ctx context.Context, dir string) (*Level, error) {
	dl, err := b.lister.ListDirectory(ctx, dir)
	if err != nil {
		return nil, err
	}
	return &Level{Dir: dl.Dir, ConnectorType: dl.ConnectorType, Entries: dl.Entries}, nil
}

// LocalBackend reads directories of the local filesystem.
type LocalBackend struct {
	opts localfs.ListOptions
}

// NewLocalBackend creates a backend listing with opts.
func NewLocalBackend(opts localfs.ListOptions) *LocalBackend {
	return &LocalBackend{opts: opts}
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return "local" }

// ReadDir implements Backend. dir may use either separator.
func (b *LocalBackend) ReadDir(ctx context.Context, dir string) (*Level, error) {
	entries, err := localfs.ListDirectory(ctx, filepath.FromSlash(dir), b.opts)
	if err != nil {
		return nil, err
	}
	return &Level{
		Dir:           models.NormalizeDir(filepath.ToSlash(dir)),
		ConnectorType: models.ConnectorLocal,
		Entries:       entries,
	}, nil
}
