package queue

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/neptunelabs/fsi-client/internal/listing"
	"github.com/neptunelabs/fsi-client/internal/localfs"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/progress"
)

// Login adds a login item. The password never appears in progress or logs.
func (q *Queue) Login(user, password string) {
	q.Add(&Item{
		Name: "login",
		Task: progress.NewTask(messages.TaskLogin, user),
		run: func(r *run) (any, error) {
			return nil, r.call(func(ctx context.Context) error {
				return q.client.Login(ctx, user, password)
			})
		},
	})
}

// Logout adds a logout item.
func (q *Queue) Logout() {
	q.Add(&Item{
		Name: "logout",
		Task: progress.NewTask(messages.TaskLogout),
		run: func(r *run) (any, error) {
			return nil, r.call(q.client.Logout)
		},
	})
}

// ListServer adds an item reading the server tree at dir into the batch
// content. The item result is the *models.Listing.
func (q *Queue) ListServer(dir string, opts listing.Options) {
	q.Add(&Item{
		Name: "list",
		Task: progress.NewTask(messages.TaskListServer, dir),
		run: func(r *run) (any, error) {
			l, err := r.read(q.remote, dir, opts)
			if err != nil {
				return nil, err
			}
			q.batch.AddListing(l)
			return l, nil
		},
	})
}

// ListLocal adds an item reading the local tree at dir into the batch
// content.
func (q *Queue) ListLocal(dir string, opts listing.Options) {
	q.Add(&Item{
		Name: "list-local",
		Task: progress.NewTask(messages.TaskListLocal, dir),
		run: func(r *run) (any, error) {
			l, err := r.read(q.local, dir, opts)
			if err != nil {
				return nil, err
			}
			q.batch.AddListing(l)
			return l, nil
		},
	})
}

// UnlimitedDepth asks a listing item for an unlimited depth regardless of
// Options.MaxRecursiveDepth. A MaxRecursiveDepth of 0 takes the queue default.
const UnlimitedDepth = -1

// read runs a tree read with the queue's defaults filled in.
func (r *run) read(reader *listing.Reader, dir string, opts listing.Options) (*models.Listing, error) {
	switch {
	case opts.MaxRecursiveDepth == 0:
		opts.MaxRecursiveDepth = r.q.opts.MaxRecursiveDepth
	case opts.MaxRecursiveDepth < 0:
		opts.MaxRecursiveDepth = 0
	}
	opts.ContinueOnError = opts.ContinueOnError || r.q.opts.ContinueOnError

	onProgress, onError := opts.Progress, opts.OnError
	opts.Progress = func(p *progress.TaskProgress) {
		r.reportTask(p)
		if onProgress != nil {
			onProgress(p)
		}
	}
	opts.OnError = func(err error) {
		r.record(err)
		if onError != nil {
			onError(err)
		}
	}
	return reader.Read(r.ctx, r.tok, dir, opts)
}

// AddEntries adds an item appending entries collected below base to the
// batch content.
func (q *Queue) AddEntries(base string, entries ...*models.Entry) {
	q.Add(&Item{
		Name: "add",
		Task: progress.NewTask(messages.TaskAddEntries, len(entries)),
		run: func(*run) (any, error) {
			q.batch.Add(base, entries...)
			return len(entries), nil
		},
	})
}

// AddEntry adds e below its own parent directory.
func (q *Queue) AddEntry(e *models.Entry) {
	q.AddEntries(e.Path, e)
}

// AddServerPath adds an item that resolves p on the server and appends it
// to the batch content. A directory is added together with its tree when
// expand is set, keeping paths relative to the directory's parent so that
// transfers recreate it below the target.
func (q *Queue) AddServerPath(p string, expand bool, opts listing.Options) {
	q.Add(&Item{
		Name: "add",
		Task: progress.NewTask(messages.TaskReadDir, p),
		run: func(r *run) (any, error) {
			e, err := r.resolveServer(p)
			if err != nil {
				return nil, err
			}
			return r.addResolved(q.remote, e, expand, opts)
		},
	})
}

// AddLocalPath is AddServerPath for the local filesystem.
func (q *Queue) AddLocalPath(p string, expand bool, opts listing.Options) {
	q.Add(&Item{
		Name: "add-local",
		Task: progress.NewTask(messages.TaskReadDir, p),
		run: func(r *run) (any, error) {
			e, err := localfs.Stat(filepath.Clean(p))
			if err != nil {
				return nil, err
			}
			models.NewListing(e.Path, models.ConnectorLocal).Add(e, false)
			return r.addResolved(r.q.local, e, expand, opts)
		},
	})
}

func (r *run) resolveServer(p string) (*models.Entry, error) {
	trimmed := strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%q: %w", p, models.ErrNotFound)
	}
	parent, name := path.Split(trimmed)

	var found *models.Entry
	err := r.call(func(ctx context.Context) error {
		dl, err := r.q.client.ListDirectory(ctx, parent)
		if err != nil {
			return err
		}
		l := models.NewListing(dl.Dir, dl.ConnectorType)
		for _, e := range dl.Entries {
			if e.Name == name {
				l.Add(e, false)
				found = e
				return nil
			}
		}
		return fmt.Errorf("%s: %w", trimmed, models.ErrNotFound)
	})
	return found, err
}

func (r *run) addResolved(reader *listing.Reader, e *models.Entry, expand bool, opts listing.Options) (any, error) {
	r.q.batch.Add(e.Path, e)
	if !e.IsDir() || !expand {
		return e, nil
	}
	opts.Recursive = true
	l, err := r.read(reader, e.FullPath(), opts)
	if err != nil {
		return nil, err
	}
	r.q.batch.Add(e.Path, l.Entries...)
	return l, nil
}

// ClearBatchContent adds an item emptying the batch content.
func (q *Queue) ClearBatchContent() {
	q.Add(&Item{
		Name: "clear",
		Task: progress.NewTask(messages.TaskClear),
		run: func(*run) (any, error) {
			q.batch.Clear()
			return nil, nil
		},
	})
}

// LogBatchContent adds an item logging the batch summary per connector
// type. The result is the models.Summary.
func (q *Queue) LogBatchContent() {
	q.Add(&Item{
		Name: "log",
		Task: progress.NewTask(messages.TaskLogContent),
		run: func(r *run) (any, error) {
			m := q.opts.Messages
			s := q.batch.Summary()
			r.log.Info().Msg(m.Text(messages.LogBatchContent, s.EntryCount.Directories, s.EntryCount.Files, s.ClientInfo.Bytes))
			for _, g := range q.batch.Groups() {
				r.log.Info().Msg(m.Text(messages.LogBatchGroup, g.Type, len(g.Entries)))
			}
			return s, nil
		},
	})
}

// CreateDirectory adds an item creating dir on the server.
func (q *Queue) CreateDirectory(dir string) {
	q.Add(&Item{
		Name: "mkdir",
		Task: progress.NewTask(messages.TaskCreateDir, dir),
		run: func(r *run) (any, error) {
			return nil, r.call(func(ctx context.Context) error {
				return q.client.CreateDirectory(ctx, dir)
			})
		},
	})
}

// Custom adds an item running fn. name labels it in progress and logs.
func (q *Queue) Custom(name string, fn CustomFunc, args ...any) {
	q.Add(&Item{
		Name: name,
		Task: progress.NewTask(messages.TaskCustom, name),
		run: func(r *run) (any, error) {
			var res any
			err := r.call(func(ctx context.Context) error {
				var err error
				res, err = fn(ctx, q.client, q, r.reportTask, args)
				return err
			})
			return res, err
		},
	})
}
