// Package queue runs a sequence of FSI operations as one cancellable batch:
// login, listings that fill the batch content, operations over that content
// and logout. Errors are resolved per run by a static policy or a prompt.
package queue

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neptunelabs/fsi-client/internal/abort"
	"github.com/neptunelabs/fsi-client/internal/api"
	"github.com/neptunelabs/fsi-client/internal/events"
	"github.com/neptunelabs/fsi-client/internal/listing"
	"github.com/neptunelabs/fsi-client/internal/localfs"
	"github.com/neptunelabs/fsi-client/internal/logging"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/metrics"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/progress"
	"github.com/neptunelabs/fsi-client/internal/sink"
)

// Client is the part of api.Client the queue drives.
type Client interface {
	Login(ctx context.Context, user, password string) error
	Logout(ctx context.Context) error
	ListDirectory(ctx context.Context, dir string) (*api.DirectoryListing, error)
	CreateDirectory(ctx context.Context, dir string) error
	Delete(ctx context.Context, e *models.Entry) error
	Rename(ctx context.Context, e *models.Entry, newName string) error
	Move(ctx context.Context, e *models.Entry, targetDir string, overwrite bool) error
	Copy(ctx context.Context, e *models.Entry, targetDir string, overwrite bool) error
	Reimport(ctx context.Context, e *models.Entry) error
	ServiceCommand(ctx context.Context, e *models.Entry, command string) error
	GetMetaData(ctx context.Context, e *models.Entry) (map[string]string, error)
	SetMetaData(ctx context.Context, e *models.Entry, meta map[string]string) error
	DeleteMetaData(ctx context.Context, e *models.Entry, keys []string) error
	Download(ctx context.Context, e *models.Entry, w io.Writer, onBytes api.ByteFunc) (api.DownloadInfo, error)
	Upload(ctx context.Context, targetDir, name string, r io.Reader, size int64, overwrite bool, onBytes api.ByteFunc) error
}

var _ Client = (*api.Client)(nil)

// Options configure a queue. Only ContinueOnError and Prompt affect
// results; everything else is observation.
type Options struct {
	ContinueOnError bool
	// MaxRecursiveDepth is the default depth of recursive listings whose
	// own MaxRecursiveDepth is 0. 0 here means unlimited.
	MaxRecursiveDepth int
	Prompt            PromptFunc

	Progress progress.Func
	Log      *logging.Logger
	Messages messages.Supplier
	Metrics  *metrics.Recorder
	Events   *events.Bus

	// OpenSink resolves download targets. The default only knows cloud
	// targets configured through the environment.
	OpenSink func(ctx context.Context, target string) (sink.Sink, error)
	// LocalList configures local listings.
	LocalList localfs.ListOptions
}

// Item is one step of a queue.
type Item struct {
	// Name labels the item in logs, metrics and prompts.
	Name string
	Task *progress.TaskDescription
	run  func(r *run) (any, error)
}

// CustomFunc is the body of a Custom item. report publishes the item's
// progress.
type CustomFunc func(ctx context.Context, c Client, q *Queue, report progress.TaskFunc, args []any) (any, error)

// Result summarizes a finished run.
type Result struct {
	Success bool
	Results []any
	Errors  []error
}

// Queue executes its items strictly in order. It can be run repeatedly but
// not concurrently.
type Queue struct {
	client Client
	opts   Options
	remote *listing.Reader
	local  *listing.Reader

	mu      sync.Mutex
	items   []*Item
	running bool
	tok     *abort.Token
	runID   string
	batch   BatchContent
	results []any
	errs    []error
}

// New creates an empty queue driving c.
func New(c Client, opts Options) *Queue {
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	if opts.Messages == nil {
		opts.Messages = messages.Default()
	}
	if opts.OpenSink == nil {
		opts.OpenSink = func(ctx context.Context, target string) (sink.Sink, error) {
			return sink.Open(ctx, target, nil, nil)
		}
	}
	return &Queue{
		client: c,
		opts:   opts,
		remote: listing.NewReader(listing.NewRemoteBackend(c), opts.Log, opts.Messages, opts.Metrics),
		local:  listing.NewReader(listing.NewLocalBackend(opts.LocalList), opts.Log, opts.Messages, opts.Metrics),
	}
}

// Add appends items.
func (q *Queue) Add(items ...*Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// Len returns the number of items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Reset removes all items. The batch content is kept.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Running reports whether a run is in progress.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Abort trips the token of the current run. It is a no-op when idle.
func (q *Queue) Abort() {
	q.mu.Lock()
	tok := q.tok
	running := q.running
	q.mu.Unlock()
	if running && tok != nil {
		tok.Trip()
	}
}

// RunID returns the ID of the current or last run.
func (q *Queue) RunID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runID
}

// Results returns the item results of the last run by item index.
func (q *Queue) Results() []any {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.results)
}

// Errors returns the errors collected in the last run.
func (q *Queue) Errors() []error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.errs)
}

// BatchContent returns the batch working set.
func (q *Queue) BatchContent() *BatchContent {
	return &q.batch
}

// Client returns the client the queue drives.
func (q *Queue) Client() Client {
	return q.client
}

// RunWithResult runs the queue and summarizes the outcome.
func (q *Queue) RunWithResult(ctx context.Context) Result {
	err := q.Run(ctx)
	errs := q.Errors()
	if errors.Is(err, ErrAlreadyRunning) {
		errs = []error{err}
	}
	return Result{
		Success: len(errs) == 0,
		Results: q.Results(),
		Errors:  errs,
	}
}

// Run executes all items. It returns nil when the last item finished, even
// if errors were skipped on the way (see Errors), and a *StoppedError when
// the run ended early.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	items := slices.Clone(q.items)
	tok := abort.New(ctx)
	q.running = true
	q.tok = tok
	q.runID = uuid.NewString()
	q.results = make([]any, len(items))
	q.errs = nil
	runID := q.runID
	q.mu.Unlock()

	defer func() {
		tok.Close()
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	r := &run{
		q:    q,
		ctx:  ctx,
		tok:  tok,
		id:   runID,
		log:  q.opts.Log.Child(q.opts.Log.With().Str("run", runID[:8])),
		prog: progress.NewQueueProgress(runID, len(items)),
		memo: map[string]Choice{},
	}

	started := time.Now()
	q.opts.Events.Publish(&events.RunEvent{BaseEvent: events.NewBase(events.EventRunStarted, runID), Items: len(items)})

	err := r.execute(items)

	elapsed := time.Since(started)
	q.opts.Metrics.RunDuration(elapsed)
	errCount := len(q.Errors())

	outcome := events.OutcomeSuccess
	var stopped *StoppedError
	switch {
	case errors.As(err, &stopped) && stopped.Aborted():
		outcome = events.OutcomeAborted
		r.log.Warn().Msg(q.opts.Messages.Text(messages.LogRunStopped, stopped.Completed, len(items), errCount))
	case err != nil:
		outcome = events.OutcomeFailed
		r.log.Error().Msg(q.opts.Messages.Text(messages.LogRunStopped, stopped.Completed, len(items), errCount))
	default:
		r.log.Info().Msg(q.opts.Messages.Text(messages.LogRunFinished, len(items), elapsed.Round(time.Millisecond), errCount))
	}
	q.opts.Events.Publish(&events.RunEvent{
		BaseEvent: events.NewBase(events.EventRunFinished, runID),
		Items:     len(items),
		Errors:    errCount,
		Duration:  elapsed,
		Outcome:   outcome,
	})
	return err
}

// run is the state of one Run.
type run struct {
	q    *Queue
	ctx  context.Context
	tok  *abort.Token
	id   string
	log  *logging.Logger
	prog *progress.QueueProgress
	memo map[string]Choice
}

func (r *run) execute(items []*Item) error {
	for i, item := range items {
		r.aborted()
		if err := r.tok.Check(); err != nil {
			return r.stop(i, len(items), err)
		}

		r.prog.BeginItem(i+1, item.Task)
		r.report()
		r.publishItem(events.EventItemStarted, i, item, "", nil)

		res, err := item.run(r)
		if err == nil {
			r.q.mu.Lock()
			r.q.results[i] = res
			r.q.mu.Unlock()
			r.prog.Sub.SetPercent(100)
			r.report()
			r.finishItem(i, item, events.OutcomeSuccess, nil)
			continue
		}

		err = r.tok.Wrap(err)
		if abort.IsAborted(err) {
			r.finishItem(i, item, events.OutcomeAborted, err)
			return r.stop(i, len(items), err)
		}
		r.finishItem(i, item, events.OutcomeFailed, err)
		r.log.Error().Err(err).Str("item", item.Name).Msg(r.q.opts.Messages.Text(messages.LogItemFailed, item.Task.Render(r.q.opts.Messages), ErrorText(err, r.q.opts.Messages)))

		var c *cancelled
		var ve *ValidationError
		if errors.As(err, &c) || errors.As(err, &ve) {
			r.record(err)
			return r.stop(i, len(items), nil)
		}

		choice, perr := r.decide(Question{Kind: QuestionError, Op: item.Name, Err: err, Choices: errorChoices}, false)
		r.record(err)
		if perr != nil {
			if abort.IsAborted(perr) {
				return r.stop(i, len(items), perr)
			}
			r.record(perr)
			return r.stop(i, len(items), nil)
		}
		if choice != ChoiceSkip && choice != ChoiceSkipAll {
			return r.stop(i, len(items), nil)
		}
	}
	return nil
}

func (r *run) finishItem(i int, item *Item, outcome events.Outcome, err error) {
	r.q.opts.Metrics.QueueItem(string(outcome))
	r.publishItem(events.EventItemFinished, i, item, outcome, err)
}

func (r *run) publishItem(t events.EventType, i int, item *Item, outcome events.Outcome, err error) {
	if r.q.opts.Events == nil {
		return
	}
	r.q.opts.Events.Publish(&events.ItemEvent{
		BaseEvent: events.NewBase(t, r.id),
		Index:     i + 1,
		Count:     r.prog.ItemCount,
		Task:      item.Task.Render(r.q.opts.Messages),
		Outcome:   outcome,
		Err:       err,
	})
}

func (r *run) publishEntry(op, path string, outcome events.Outcome, bytes int64, err error) {
	r.q.opts.Metrics.BatchEntry(op, string(outcome))
	if r.q.opts.Events == nil {
		return
	}
	r.q.opts.Events.Publish(&events.EntryEvent{
		BaseEvent: events.NewBase(events.EventEntryProcessed, r.id),
		Op:        op,
		Path:      path,
		Outcome:   outcome,
		Bytes:     bytes,
		Err:       err,
	})
}

// record adds err to the run's error list.
func (r *run) record(err error) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	r.q.errs = append(r.q.errs, err)
}

func (r *run) stop(completed, count int, extra error) error {
	if extra != nil {
		r.record(extra)
	}
	return &StoppedError{Errors: r.q.Errors(), Completed: completed, Count: count}
}

// report publishes the progress record. Only called on the run goroutine.
func (r *run) report() {
	r.prog.Update()
	if r.q.opts.Progress != nil {
		r.q.opts.Progress(r.prog)
	}
}

// reportTask copies the progress of a nested operation into the item.
func (r *run) reportTask(p *progress.TaskProgress) {
	*r.prog.Sub = *p
	r.report()
}

// aborted reports whether the run's token is tripped. A cancelled run
// context trips it right away.
func (r *run) aborted() bool {
	if r.ctx.Err() != nil {
		r.tok.Trip()
	}
	return r.tok.Tripped()
}

// call runs fn with the token's signal handle.
func (r *run) call(fn func(ctx context.Context) error) error {
	if r.aborted() {
		return abort.ErrAborted
	}
	ctx := r.tok.Arm()
	err := fn(ctx)
	if r.aborted() || !r.tok.Release() {
		return abort.ErrAborted
	}
	return r.tok.Wrap(err)
}

// decide answers q from the per-run memo, the static policy or the prompt.
// static reports conflicts resolved without the user; such skips are
// recorded as errors.
func (r *run) decide(q Question, allowStatic bool) (Choice, error) {
	if c, ok := r.remembered(q); ok {
		return c, nil
	}
	opts := r.q.opts
	if q.Kind == QuestionError && opts.ContinueOnError {
		return ChoiceSkip, nil
	}
	if opts.Prompt == nil {
		if allowStatic && opts.ContinueOnError {
			return ChoiceSkip, nil
		}
		return ChoiceCancel, nil
	}

	var c Choice
	err := r.call(func(ctx context.Context) error {
		var err error
		c, err = opts.Prompt(ctx, q)
		return err
	})
	if err != nil {
		return ChoiceCancel, err
	}
	if !slices.Contains(q.Choices, c) {
		c = ChoiceCancel
	}
	if c.applyToAll() {
		r.memo[q.memoKey()] = c
	}
	return c, nil
}

// remembered returns the earlier "-all" answer for q when it is one of
// q's choices.
func (r *run) remembered(q Question) (Choice, bool) {
	c, ok := r.memo[q.memoKey()]
	if !ok || !slices.Contains(q.Choices, c) {
		return 0, false
	}
	return c, true
}
