package queue

import (
	"context"
	"errors"
	"maps"

	"github.com/neptunelabs/fsi-client/internal/abort"
	"github.com/neptunelabs/fsi-client/internal/api"
	"github.com/neptunelabs/fsi-client/internal/events"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/progress"
	"github.com/neptunelabs/fsi-client/internal/util/sanitize"
	"github.com/neptunelabs/fsi-client/internal/validation"
)

// Operation names used in errors, events and metrics.
const (
	OpCopy           = "copy"
	OpMove           = "move"
	OpRename         = "rename"
	OpDelete         = "delete"
	OpReimport       = "reimport"
	OpGetMetaData    = "get-metadata"
	OpSetMetaData    = "set-metadata"
	OpDeleteMetaData = "delete-metadata"
	OpServiceCommand = "service-command"
	OpDownload       = "download"
	OpUpload         = "upload"
)

// CopyOptions configure BatchCopy and BatchMove.
type CopyOptions struct {
	// Overwrite replaces existing targets without asking.
	Overwrite bool
}

// RenameFunc returns the new name of e. An empty name or the current name
// leaves the entry alone.
type RenameFunc func(e *models.Entry) string

// batchLabel stands in for the target of operations without one.
const batchLabel = "batch content"

// batchOp describes one operation applied to every batch entry.
type batchOp struct {
	name string
	// requires is messages.ErrRequiresRemote or ErrRequiresLocal.
	requires string
	reverse  bool
	// skipCovered skips entries inside a directory that is itself part of
	// the batch.
	skipCovered  bool
	canOverwrite bool
	overwrite    bool

	// before runs once after validation, with the items to process.
	before func(r *run, items []batchItem) error
	// skip returns a note key and arguments when the entry is left out.
	skip func(it batchItem) (string, []any)
	do   func(ctx context.Context, it batchItem, overwrite bool) error
	// bytes returns the bytes moved for it, for events.
	bytes func(it batchItem) int64
}

// batchResult is the result of a batch item.
type batchResult struct {
	Processed int
	Skipped   int
	Failed    int
}

func (q *Queue) addBatch(task *progress.TaskDescription, op *batchOp) {
	q.Add(&Item{
		Name: op.name,
		Task: task,
		run: func(r *run) (any, error) {
			return r.forEach(op)
		},
	})
}

func (r *run) validate(op *batchOp) error {
	switch op.requires {
	case messages.ErrRequiresRemote:
		if !r.q.batch.AllRemote() {
			return &ValidationError{Op: op.name, Key: op.requires}
		}
	case messages.ErrRequiresLocal:
		if !r.q.batch.AllLocal() {
			return &ValidationError{Op: op.name, Key: op.requires}
		}
	}
	return nil
}

// forEach applies op to the batch content. Entry failures are resolved by
// resolve; only aborts and cancellations end the item early.
func (r *run) forEach(op *batchOp) (any, error) {
	if err := r.validate(op); err != nil {
		return nil, err
	}
	items := r.q.batch.snapshot(op.reverse)
	if op.before != nil {
		if err := op.before(r, items); err != nil {
			return nil, err
		}
	}

	var dirs map[string]bool
	if op.skipCovered {
		dirs = map[string]bool{}
		for _, it := range items {
			if it.entry.IsDir() {
				dirs[it.entry.FullPath()] = true
			}
		}
	}

	var res batchResult
	n := len(items)
	for i, it := range items {
		if r.aborted() {
			return res, abort.ErrAborted
		}
		full := it.entry.FullPath()
		r.prog.Sub.Task = progress.NewTask(full)
		r.prog.Sub.SetPosition(i+1, n, 0)
		r.report()

		if dirs != nil {
			if parent := coveredBy(it.entry, dirs); parent != "" {
				r.skipEntry(op, it, &res, messages.NoteEntryCovered, full, parent)
				continue
			}
		}
		if op.skip != nil {
			if key, args := op.skip(it); key != "" {
				r.skipEntry(op, it, &res, key, args...)
				continue
			}
		}

		overwrite := op.overwrite || r.memo[api.KeyConflict] == ChoiceOverwriteAll
		for {
			err := r.call(func(ctx context.Context) error {
				return op.do(ctx, it, overwrite)
			})
			if err == nil {
				res.Processed++
				var b int64
				if op.bytes != nil {
					b = op.bytes(it)
				}
				r.publishEntry(op.name, full, events.OutcomeSuccess, b, nil)
				break
			}
			outcome, stop := r.resolve(op.name, it.entry, err, op.canOverwrite && !overwrite)
			if stop != nil {
				r.publishEntry(op.name, full, events.OutcomeFailed, 0, stop)
				return res, stop
			}
			if outcome == resolveRetry && !overwrite {
				overwrite = true
				continue
			}
			if outcome == resolveSkipped {
				res.Skipped++
				r.publishEntry(op.name, full, events.OutcomeSkipped, 0, nil)
			} else {
				res.Failed++
				r.publishEntry(op.name, full, events.OutcomeFailed, 0, err)
			}
			break
		}
	}
	r.prog.Sub.SetPosition(n, n, 100)
	r.report()
	return res, nil
}

func (r *run) skipEntry(op *batchOp, it batchItem, res *batchResult, key string, args ...any) {
	res.Skipped++
	r.log.Debug().Str("op", op.name).Msg(r.q.opts.Messages.Text(key, args...))
	r.publishEntry(op.name, it.entry.FullPath(), events.OutcomeSkipped, 0, nil)
}

type resolution int

const (
	resolveRetry resolution = iota
	resolveSkipped
	resolveRecorded
)

// resolve decides how a batch operation goes on after an entry failed. A
// non-nil error stops the item.
func (r *run) resolve(op string, e *models.Entry, err error, canOverwrite bool) (resolution, error) {
	if abort.IsAborted(err) {
		return 0, err
	}
	ee := newEntryError(op, e.FullPath(), err)
	q := Question{Kind: QuestionError, Op: op, Path: e.FullPath(), Err: ee, Choices: errorChoices}
	if canOverwrite && ee.Key == api.KeyConflict {
		q.Kind = QuestionConflict
		q.Choices = conflictChoices
	}

	_, memoized := r.remembered(q)
	asked := memoized || (r.q.opts.Prompt != nil && !(q.Kind == QuestionError && r.q.opts.ContinueOnError))
	c, perr := r.decide(q, true)
	if perr != nil {
		if abort.IsAborted(perr) {
			return 0, perr
		}
		return 0, &cancelled{perr}
	}

	switch c {
	case ChoiceOverwrite, ChoiceOverwriteAll:
		if q.Kind == QuestionConflict {
			return resolveRetry, nil
		}
		// Only a conflict question offers overwrite.
		return 0, &cancelled{ee}
	case ChoiceSkip, ChoiceSkipAll:
		if q.Kind == QuestionConflict && asked {
			r.log.Info().Msg(r.q.opts.Messages.Text(messages.NoteEntrySkipped, e.FullPath()))
			return resolveSkipped, nil
		}
		r.record(ee)
		r.log.Warn().Err(err).Msg(r.q.opts.Messages.Text(messages.LogErrorRecorded, ErrorText(ee, r.q.opts.Messages)))
		return resolveRecorded, nil
	default:
		if asked {
			return 0, &cancelled{ee}
		}
		return 0, ee
	}
}

// BatchCopy copies every batch entry into targetDir on the server.
// Entries inside a directory of the batch are copied with it.
func (q *Queue) BatchCopy(targetDir string, opts CopyOptions) {
	q.addBatch(progress.NewTask(messages.TaskCopy, targetDir), &batchOp{
		name:         OpCopy,
		requires:     messages.ErrRequiresRemote,
		skipCovered:  true,
		canOverwrite: true,
		overwrite:    opts.Overwrite,
		do: func(ctx context.Context, it batchItem, overwrite bool) error {
			return q.client.Copy(ctx, it.entry, targetDir, overwrite)
		},
	})
}

// BatchMove moves every batch entry into targetDir on the server, deepest
// entries first.
func (q *Queue) BatchMove(targetDir string, opts CopyOptions) {
	q.addBatch(progress.NewTask(messages.TaskMove, targetDir), &batchOp{
		name:         OpMove,
		requires:     messages.ErrRequiresRemote,
		reverse:      true,
		skipCovered:  true,
		canOverwrite: true,
		overwrite:    opts.Overwrite,
		do: func(ctx context.Context, it batchItem, overwrite bool) error {
			return q.client.Move(ctx, it.entry, targetDir, overwrite)
		},
	})
}

// BatchRename renames batch entries to the names fn returns, deepest
// entries first so parent paths stay valid.
func (q *Queue) BatchRename(fn RenameFunc) {
	names := map[*models.Entry]string{}
	q.addBatch(progress.NewTask(messages.TaskRename, batchLabel), &batchOp{
		name:     OpRename,
		requires: messages.ErrRequiresRemote,
		reverse:  true,
		skip: func(it batchItem) (string, []any) {
			name := sanitize.Name(fn(it.entry))
			if name == "" || name == it.entry.Name {
				return messages.NoteEntrySkipped, []any{it.entry.FullPath()}
			}
			names[it.entry] = name
			return "", nil
		},
		do: func(ctx context.Context, it batchItem, _ bool) error {
			name := names[it.entry]
			if err := validation.ValidateName(name); err != nil {
				return errors.Join(api.ErrInvalidPath, err)
			}
			return q.client.Rename(ctx, it.entry, name)
		},
	})
}

// BatchDelete deletes every batch entry, deepest entries first.
func (q *Queue) BatchDelete() {
	q.addBatch(progress.NewTask(messages.TaskDelete, batchLabel), &batchOp{
		name:     OpDelete,
		requires: messages.ErrRequiresRemote,
		reverse:  true,
		do: func(ctx context.Context, it batchItem, _ bool) error {
			return q.client.Delete(ctx, it.entry)
		},
	})
}

// BatchReimport asks the server to re-import every batch entry.
func (q *Queue) BatchReimport() {
	q.addBatch(progress.NewTask(messages.TaskReimport, batchLabel), &batchOp{
		name:     OpReimport,
		requires: messages.ErrRequiresRemote,
		do: func(ctx context.Context, it batchItem, _ bool) error {
			return q.client.Reimport(ctx, it.entry)
		},
	})
}

// BatchGetMetaData reads the metadata of every batch entry into
// Entry.MetaData.
func (q *Queue) BatchGetMetaData() {
	q.addBatch(progress.NewTask(messages.TaskGetMeta, batchLabel), &batchOp{
		name:     OpGetMetaData,
		requires: messages.ErrRequiresRemote,
		do: func(ctx context.Context, it batchItem, _ bool) error {
			meta, err := q.client.GetMetaData(ctx, it.entry)
			if err != nil {
				return err
			}
			it.entry.MetaData = meta
			return nil
		},
	})
}

// BatchSetMetaData writes meta to every batch entry.
func (q *Queue) BatchSetMetaData(meta map[string]string) {
	clean := make(map[string]string, len(meta))
	for k, v := range meta {
		clean[sanitize.Name(k)] = sanitize.Value(v)
	}
	q.addBatch(progress.NewTask(messages.TaskSetMeta, batchLabel), &batchOp{
		name:     OpSetMetaData,
		requires: messages.ErrRequiresRemote,
		do: func(ctx context.Context, it batchItem, _ bool) error {
			if err := q.client.SetMetaData(ctx, it.entry, clean); err != nil {
				return err
			}
			if it.entry.MetaData == nil {
				it.entry.MetaData = map[string]string{}
			}
			maps.Copy(it.entry.MetaData, clean)
			return nil
		},
	})
}

// BatchDeleteMetaData removes the given metadata keys from every batch entry.
func (q *Queue) BatchDeleteMetaData(keys []string) {
	q.addBatch(progress.NewTask(messages.TaskDeleteMeta, batchLabel), &batchOp{
		name:     OpDeleteMetaData,
		requires: messages.ErrRequiresRemote,
		do: func(ctx context.Context, it batchItem, _ bool) error {
			if err := q.client.DeleteMetaData(ctx, it.entry, keys); err != nil {
				return err
			}
			for _, k := range keys {
				delete(it.entry.MetaData, k)
			}
			return nil
		},
	})
}

// BatchServiceCommand sends command to the server for every batch entry.
func (q *Queue) BatchServiceCommand(command string) {
	q.addBatch(progress.NewTask(messages.TaskServiceCommand, batchLabel, command), &batchOp{
		name:     OpServiceCommand,
		requires: messages.ErrRequiresRemote,
		do: func(ctx context.Context, it batchItem, _ bool) error {
			return q.client.ServiceCommand(ctx, it.entry, command)
		},
	})
}
