package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/neptunelabs/fsi-client/internal/diskspace"
	"github.com/neptunelabs/fsi-client/internal/localfs"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/metrics"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/progress"
	"github.com/neptunelabs/fsi-client/internal/sink"
)

// DownloadOptions configure BatchDownload.
type DownloadOptions struct {
	Overwrite bool
}

// UploadOptions configure BatchUpload.
type UploadOptions struct {
	Overwrite bool
}

// transferState tracks the bytes of one transfer item.
type transferState struct {
	r     *run
	done  int64
	total int64
}

func newTransferState(r *run, items []batchItem) *transferState {
	t := &transferState{r: r}
	for _, it := range items {
		if !it.entry.IsDir() {
			t.total += it.entry.Size
		}
	}
	r.prog.SetBytes(0, t.total)
	return t
}

// onBytes reports the current file's counters next to the batch counters.
func (t *transferState) onBytes(done, total int64) {
	p := t.r.prog
	p.SetBytes(t.done+done, t.total)
	p.Sub.SetBytes(done, total)
	if total > 0 {
		p.Sub.SetPosition(p.Sub.Pos, p.Sub.Length, float64(done)*100/float64(total))
	}
	t.r.report()
}

func (t *transferState) finish(direction string, e *models.Entry) {
	if e.IsDir() {
		return
	}
	t.done += e.Size
	t.r.prog.SetBytes(t.done, t.total)
	t.r.q.opts.Metrics.TransferBytes(direction, e.Size)
}

func entryBytes(it batchItem) int64 {
	if it.entry.IsDir() {
		return 0
	}
	return it.entry.Size
}

// BatchDownload downloads the batch content to target: a local directory
// or an s3:// or azblob:// URL. Paths below the collected directories are
// recreated in the target.
func (q *Queue) BatchDownload(target string, opts DownloadOptions) {
	var (
		s  sink.Sink
		ts *transferState
	)
	q.addBatch(progress.NewTask(messages.TaskDownload, target), &batchOp{
		name:         OpDownload,
		requires:     messages.ErrRequiresRemote,
		canOverwrite: true,
		overwrite:    opts.Overwrite,
		before: func(r *run, items []batchItem) error {
			var err error
			if s, err = q.opts.OpenSink(r.ctx, target); err != nil {
				return fmt.Errorf("open %s: %w", target, err)
			}
			ts = newTransferState(r, items)
			if sc, ok := s.(sink.SpaceChecker); ok {
				return sc.CheckSpace(ts.total)
			}
			return nil
		},
		do: func(ctx context.Context, it batchItem, overwrite bool) error {
			rel := it.relative()
			if it.entry.IsDir() {
				return s.MkdirAll(ctx, rel)
			}
			w, err := s.Create(ctx, rel, it.entry.Size, it.entry.LastModified, overwrite)
			if err != nil {
				return err
			}
			if _, err := q.client.Download(ctx, it.entry, w, ts.onBytes); err != nil {
				return errors.Join(err, sink.Abort(w))
			}
			if err := w.Close(); err != nil {
				return err
			}
			ts.finish(metrics.DirectionDownload, it.entry)
			return nil
		},
		bytes: entryBytes,
	})
}

// BatchUpload uploads the local batch content into targetDir on the
// server, recreating collected directories.
func (q *Queue) BatchUpload(targetDir string, opts UploadOptions) {
	targetDir = models.NormalizeDir(targetDir)
	var ts *transferState
	q.addBatch(progress.NewTask(messages.TaskUpload, targetDir), &batchOp{
		name:         OpUpload,
		requires:     messages.ErrRequiresLocal,
		canOverwrite: true,
		overwrite:    opts.Overwrite,
		before: func(r *run, items []batchItem) error {
			ts = newTransferState(r, items)
			return nil
		},
		do: func(ctx context.Context, it batchItem, overwrite bool) error {
			rel := it.relative()
			if it.entry.IsDir() {
				return q.client.CreateDirectory(ctx, targetDir+rel+"/")
			}
			f, err := os.Open(localfs.OSPath(it.entry))
			if err != nil {
				return err
			}
			defer f.Close()

			dir := targetDir
			if parent := path.Dir(rel); parent != "." {
				dir += parent + "/"
			}
			if err := q.client.Upload(ctx, dir, it.entry.Name, f, it.entry.Size, overwrite, ts.onBytes); err != nil {
				return err
			}
			ts.finish(metrics.DirectionUpload, it.entry)
			return nil
		},
		bytes: entryBytes,
	})
}

// IsInsufficientSpace reports whether err is a failed free space check of
// a download target.
func IsInsufficientSpace(err error) bool {
	return diskspace.IsInsufficientSpaceError(err)
}
