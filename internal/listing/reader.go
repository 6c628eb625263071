// Package listing reads directory trees, remote or local, into flat
// listings with aggregated counters.
package listing

import (
	"context"
	"path"
	"slices"
	"strings"

	"github.com/neptunelabs/fsi-client/internal/abort"
	"github.com/neptunelabs/fsi-client/internal/logging"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/metrics"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/progress"
)

// EntryFilter decides whether an entry is kept. An error aborts the read
// like a failed directory fetch.
type EntryFilter func(ctx context.Context, e *models.Entry) (bool, error)

// Note is an informational event of a read, such as a depth-limit hit.
type Note struct {
	Key  string
	Args []any
}

// Text renders the note.
func (n Note) Text(m messages.Supplier) string {
	return m.Text(n.Key, n.Args...)
}

// Options control one Read.
type Options struct {
	Recursive bool
	// MaxRecursiveDepth limits the entry depth below the start directory;
	// the start directory's children are at depth 1. 0 means unlimited.
	MaxRecursiveDepth int

	TypeFilter  models.TypeFilter
	DropEntries bool

	// ValidConnectorTypes and Blacklist only make sense for server trees.
	ValidConnectorTypes []models.ConnectorType
	// Blacklist holds directory paths or path.Match patterns that are
	// never descended.
	Blacklist []string

	DirFilter  EntryFilter
	FileFilter EntryFilter

	// ContinueOnError reports failed subdirectories to OnError and goes on
	// with the next sibling. The start directory always fails the read.
	ContinueOnError bool

	Progress progress.TaskFunc
	OnError  func(error)
	OnNote   func(Note)
}

// Reader reads trees from one backend. It keeps no state between reads.
type Reader struct {
	backend  Backend
	log      *logging.Logger
	messages messages.Supplier
	metrics  *metrics.Recorder
}

// NewReader creates a reader over backend. log, m and rec may be nil.
func NewReader(backend Backend, log *logging.Logger, m messages.Supplier, rec *metrics.Recorder) *Reader {
	if log == nil {
		log = logging.NewNop()
	}
	if m == nil {
		m = messages.Default()
	}
	return &Reader{backend: backend, log: log, messages: m, metrics: rec}
}

// Backend returns the backend the reader was created with.
func (r *Reader) Backend() Backend {
	return r.backend
}

type readState struct {
	r    *Reader
	tok  *abort.Token
	opts Options
	prog *progress.TaskProgress

	skipped  int
	limitDir string
}

// Read reads dir and, if opts.Recursive, its subtree. Cancelling ctx or
// tripping tok makes Read return abort.ErrAborted. tok may be nil.
func (r *Reader) Read(ctx context.Context, tok *abort.Token, dir string, opts Options) (*models.Listing, error) {
	if ctx.Err() != nil {
		return nil, abort.ErrAborted
	}
	if tok == nil {
		tok = abort.New(ctx)
		defer tok.Close()
	} else {
		stop := context.AfterFunc(ctx, tok.Trip)
		defer stop()
	}

	dir = models.NormalizeDir(dir)
	s := &readState{
		r:    r,
		tok:  tok,
		opts: opts,
		prog: progress.NewTaskProgress(progress.NewTask(messages.TaskReadDir, dir)),
	}

	l, err := s.read(dir, 0, 0, 100)
	if err != nil {
		return nil, err
	}

	if s.skipped > 0 {
		s.note(messages.NoteDepthLimit, opts.MaxRecursiveDepth, s.limitDir)
	}
	s.prog.Task = progress.NewTask(messages.TaskReadDir, dir)
	s.report(100)

	r.log.Info().
		Str("backend", r.backend.Name()).
		Int("directories", l.Summary.EntryCount.Directories).
		Int("files", l.Summary.EntryCount.Files).
		Msg(r.messages.Text(messages.LogListingDone, dir, l.Summary.EntryCount.Directories, l.Summary.EntryCount.Files))
	return l, nil
}

func (s *readState) read(dir string, depth int, lo, hi float64) (*models.Listing, error) {
	if s.tok.Tripped() {
		return nil, abort.ErrAborted
	}

	ctx := s.tok.Arm()
	level, err := s.r.backend.ReadDir(ctx, dir)
	if !s.tok.Release() {
		return nil, abort.ErrAborted
	}
	if err != nil {
		return nil, s.tok.Wrap(err)
	}
	s.r.metrics.DirectoryRead(s.r.backend.Name())

	s.prog.Task = progress.NewTask(messages.TaskReadDir, level.Dir)
	s.prog.Pos++
	s.report(lo)

	l := models.NewListing(level.Dir, level.ConnectorType)
	var subdirs []*models.Entry
	for _, e := range level.Entries {
		if !e.IsDir() {
			ok, err := s.accept(ctx, s.opts.FileFilter, e)
			if err != nil {
				return nil, err
			}
			if ok && s.opts.TypeFilter.Accept(models.KindFile) {
				l.Add(e, s.opts.DropEntries)
			}
			continue
		}

		ok, err := s.acceptDir(ctx, e, level.ConnectorType)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if s.opts.TypeFilter.Accept(models.KindDirectory) {
			l.Add(e, s.opts.DropEntries)
		}
		if !s.opts.Recursive {
			continue
		}
		if s.opts.MaxRecursiveDepth > 0 && depth+1 >= s.opts.MaxRecursiveDepth {
			l.Summary.SkippedDirectories++
			s.skipped++
			if s.limitDir == "" {
				s.limitDir = level.Dir
			}
			continue
		}
		subdirs = append(subdirs, e)
	}
	s.r.log.Debug().Str("dir", level.Dir).Int("entries", len(level.Entries)).Int("subdirs", len(subdirs)).Msg("read directory")

	if len(subdirs) == 0 {
		return l, nil
	}

	share := (hi - lo) / float64(len(subdirs))
	for i, sub := range subdirs {
		start := lo + float64(i)*share
		child, err := s.read(sub.FullPath(), depth+1, start, start+share)
		if err != nil {
			if abort.IsAborted(err) || !s.opts.ContinueOnError {
				return nil, err
			}
			s.r.log.Warn().Err(err).Str("dir", sub.FullPath()).Msg(s.r.messages.Text(messages.LogErrorRecorded, err))
			if s.opts.OnError != nil {
				s.opts.OnError(err)
			}
			continue
		}
		l.Merge(child, s.opts.DropEntries)
	}
	return l, nil
}

func (s *readState) accept(ctx context.Context, f EntryFilter, e *models.Entry) (bool, error) {
	if f == nil {
		return true, nil
	}
	ok, err := f(ctx, e)
	if err != nil {
		return false, s.tok.Wrap(err)
	}
	return ok, nil
}

func (s *readState) acceptDir(ctx context.Context, e *models.Entry, levelType models.ConnectorType) (bool, error) {
	if s.blacklisted(e) {
		s.note(messages.NoteBlacklisted, e.FullPath())
		return false, nil
	}

	ct := e.ConnectorType
	if !ct.Known() {
		ct = levelType
	}
	if len(s.opts.ValidConnectorTypes) > 0 && ct.Known() && !slices.Contains(s.opts.ValidConnectorTypes, ct) {
		s.note(messages.NoteConnectorType, e.FullPath(), ct)
		return false, nil
	}

	return s.accept(ctx, s.opts.DirFilter, e)
}

func (s *readState) blacklisted(e *models.Entry) bool {
	full := e.FullPath()
	trimmed := strings.TrimSuffix(full, "/")
	for _, pattern := range s.opts.Blacklist {
		if models.NormalizeDir(pattern) == full {
			return true
		}
		if ok, _ := path.Match(strings.TrimSuffix(pattern, "/"), trimmed); ok {
			return true
		}
	}
	return false
}

func (s *readState) note(key string, args ...any) {
	n := Note{Key: key, Args: args}
	text := n.Text(s.r.messages)
	s.prog.Note = text
	s.r.log.Info().Msg(text)
	if s.opts.OnNote != nil {
		s.opts.OnNote(n)
	}
}

func (s *readState) report(percent float64) {
	s.prog.SetPercent(percent)
	if s.opts.Progress != nil {
		s.opts.Progress(s.prog)
	}
}
