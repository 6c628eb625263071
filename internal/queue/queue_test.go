package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neptunelabs/fsi-client/internal/abort"
	"github.com/neptunelabs/fsi-client/internal/api"
	"github.com/neptunelabs/fsi-client/internal/events"
	"github.com/neptunelabs/fsi-client/internal/listing"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/progress"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeClient is an in-memory server. Files hold their content, directories
// have a nil value.
type fakeClient struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	fail     map[string]error
	calls    []string
	uploaded map[string]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		files: map[string][]byte{
			"images/a.jpg":     []byte("aaa"),
			"images/b.jpg":     []byte("bbbb"),
			"images/sub/c.jpg": []byte("cc"),
		},
		dirs:     map[string]bool{"images/": true, "images/sub/": true},
		fail:     map[string]error{},
		uploaded: map[string]string{},
	}
}

func (c *fakeClient) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if err, ok := c.fail[call]; ok {
		delete(c.fail, call)
		return err
	}
	if err, ok := c.fail["*"]; ok {
		return err
	}
	return nil
}

func (c *fakeClient) called() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeClient) Login(ctx context.Context, user, _ string) error {
	return c.record("login " + user)
}

func (c *fakeClient) Logout(context.Context) error { return c.record("logout") }

func (c *fakeClient) ListDirectory(ctx context.Context, dir string) (*api.DirectoryListing, error) {
	dir = models.NormalizeDir(dir)
	if err := c.record("list " + dir); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dl := &api.DirectoryListing{Dir: dir, ConnectorType: models.ConnectorStorage}
	if dir == "" {
		dl.ConnectorType = models.ConnectorUnknown
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for d := range c.dirs {
		if parent, name, ok := child(dir, strings.TrimSuffix(d, "/")); ok {
			e := models.NewDirectory(parent, name, epoch)
			if dir == "" {
				e.ConnectorType = models.ConnectorStorage
			}
			dl.Entries = append(dl.Entries, e)
		}
	}
	for f, data := range c.files {
		if parent, name, ok := child(dir, f); ok {
			dl.Entries = append(dl.Entries, models.NewFile(parent, name, int64(len(data)), epoch))
		}
	}
	sortEntries(dl.Entries)
	return dl, nil
}

func child(dir, p string) (string, string, bool) {
	rest, ok := strings.CutPrefix(p, dir)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", "", false
	}
	return dir, rest, true
}

func sortEntries(es []*models.Entry) {
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && es[j].FullPath() < es[j-1].FullPath(); j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}

func (c *fakeClient) CreateDirectory(_ context.Context, dir string) error {
	return c.record("mkdir " + dir)
}

func (c *fakeClient) Delete(_ context.Context, e *models.Entry) error {
	return c.record("delete " + e.FullPath())
}

func (c *fakeClient) Rename(_ context.Context, e *models.Entry, name string) error {
	return c.record("rename " + e.FullPath() + " " + name)
}

func (c *fakeClient) Move(_ context.Context, e *models.Entry, target string, overwrite bool) error {
	return c.record(fmt.Sprintf("move %s %s %v", e.FullPath(), target, overwrite))
}

func (c *fakeClient) Copy(_ context.Context, e *models.Entry, target string, overwrite bool) error {
	return c.record(fmt.Sprintf("copy %s %s %v", e.FullPath(), target, overwrite))
}

func (c *fakeClient) Reimport(_ context.Context, e *models.Entry) error {
	return c.record("reimport " + e.FullPath())
}

func (c *fakeClient) ServiceCommand(_ context.Context, e *models.Entry, cmd string) error {
	return c.record("service " + e.FullPath() + " " + cmd)
}

func (c *fakeClient) GetMetaData(_ context.Context, e *models.Entry) (map[string]string, error) {
	if err := c.record("getmeta " + e.FullPath()); err != nil {
		return nil, err
	}
	return map[string]string{"iptc.Caption": e.Name}, nil
}

func (c *fakeClient) SetMetaData(_ context.Context, e *models.Entry, _ map[string]string) error {
	return c.record("setmeta " + e.FullPath())
}

func (c *fakeClient) DeleteMetaData(_ context.Context, e *models.Entry, keys []string) error {
	return c.record("deletemeta " + e.FullPath() + " " + strings.Join(keys, ","))
}

func (c *fakeClient) Download(ctx context.Context, e *models.Entry, w io.Writer, onBytes api.ByteFunc) (api.DownloadInfo, error) {
	if err := c.record("download " + e.FullPath()); err != nil {
		return api.DownloadInfo{}, err
	}
	c.mu.Lock()
	data := c.files[e.FullPath()]
	c.mu.Unlock()
	n, err := w.Write(data)
	if onBytes != nil {
		onBytes(int64(n), int64(len(data)))
	}
	return api.DownloadInfo{Size: int64(n), LastModified: epoch}, err
}

func (c *fakeClient) Upload(_ context.Context, dir, name string, r io.Reader, _ int64, overwrite bool, onBytes api.ByteFunc) error {
	if err := c.record(fmt.Sprintf("upload %s%s %v", dir, name, overwrite)); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if onBytes != nil {
		onBytes(int64(len(data)), int64(len(data)))
	}
	c.mu.Lock()
	c.uploaded[dir+name] = string(data)
	c.mu.Unlock()
	return nil
}

// sample returns the entries of images/ in collection order.
func sample() []*models.Entry {
	l := models.NewListing("images/", models.ConnectorStorage)
	for _, e := range []*models.Entry{
		models.NewFile("images/", "a.jpg", 3, epoch),
		models.NewFile("images/", "b.jpg", 4, epoch),
		models.NewDirectory("images/", "sub", epoch),
		models.NewFile("images/sub/", "c.jpg", 2, epoch),
	} {
		l.Add(e, false)
	}
	return l.Entries
}

func failing(status int) error {
	return &api.Error{Key: api.KeyHTTPStatus, Status: status, Method: "delete"}
}

func TestRunListAndDownload(t *testing.T) {
	c := newFakeClient()
	var percents []float64
	var last *progress.QueueProgress
	q := New(c, Options{Progress: func(p *progress.QueueProgress) {
		percents = append(percents, p.Percent)
		last = p.Clone()
	}})

	target := t.TempDir()
	q.Login("admin", "secret")
	q.ListServer("images/", listing.Options{Recursive: true})
	q.BatchDownload(target, DownloadOptions{})
	q.Logout()

	res := q.RunWithResult(context.Background())
	if !res.Success {
		t.Fatalf("RunWithResult() errors = %v", res.Errors)
	}
	if l, ok := res.Results[1].(*models.Listing); !ok || l.Summary.EntryCount.Files != 3 {
		t.Errorf("list result = %#v, want listing with 3 files", res.Results[1])
	}
	if br, ok := res.Results[2].(batchResult); !ok || br.Processed != 4 {
		t.Errorf("download result = %#v, want 4 processed", res.Results[2])
	}

	for rel, want := range map[string]string{"a.jpg": "aaa", "b.jpg": "bbbb", "sub/c.jpg": "cc"} {
		got, err := os.ReadFile(filepath.Join(target, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("ReadFile(%s) error = %v", rel, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}

	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress went back from %v to %v", percents[i-1], percents[i])
		}
	}
	if last == nil || last.Percent != 100 || last.ItemIndex != 4 {
		t.Errorf("last progress = %+v, want item 4 at 100%%", last)
	}
	if calls := c.called(); calls[0] != "login admin" || calls[len(calls)-1] != "logout" {
		t.Errorf("calls = %v", calls)
	}
}

func TestRunAlreadyRunning(t *testing.T) {
	q := New(newFakeClient(), Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	q.Custom("block", func(ctx context.Context, _ Client, _ *Queue, _ progress.TaskFunc, _ []any) (any, error) {
		close(started)
		<-release
		return "done", nil
	})

	done := make(chan error, 1)
	go func() { done <- q.Run(context.Background()) }()
	<-started

	if err := q.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
	if !q.Running() {
		t.Error("Running() = false during run")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := q.Results(); !reflect.DeepEqual(got, []any{"done"}) {
		t.Errorf("Results() = %v, want [done]", got)
	}
}

func TestAbortFreezesPosition(t *testing.T) {
	c := newFakeClient()
	var last *progress.QueueProgress
	q := New(c, Options{Progress: func(p *progress.QueueProgress) { last = p.Clone() }})
	q.Login("admin", "pw")
	q.Custom("abort", func(ctx context.Context, _ Client, q *Queue, _ progress.TaskFunc, _ []any) (any, error) {
		q.Abort()
		return nil, nil
	})
	q.Logout()

	err := q.Run(context.Background())
	var stopped *StoppedError
	if !errors.As(err, &stopped) || !stopped.Aborted() {
		t.Fatalf("Run() error = %v, want aborted StoppedError", err)
	}
	if stopped.Completed != 1 || stopped.Count != 3 {
		t.Errorf("Completed/Count = %d/%d, want 1/3", stopped.Completed, stopped.Count)
	}
	if last.ItemIndex != 2 {
		t.Errorf("last ItemIndex = %d, want 2", last.ItemIndex)
	}
	for _, call := range c.called() {
		if call == "logout" {
			t.Error("logout ran after abort")
		}
	}
	if !abort.IsAborted(err) {
		t.Errorf("IsAborted(%v) = false", err)
	}
}

func TestRunContextCancelled(t *testing.T) {
	c := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	q := New(c, Options{})
	q.Custom("cancel", func(context.Context, Client, *Queue, progress.TaskFunc, []any) (any, error) {
		cancel()
		return nil, nil
	})
	q.Logout()

	var stopped *StoppedError
	if err := q.Run(ctx); !errors.As(err, &stopped) || !stopped.Aborted() {
		t.Fatalf("Run() error = %v, want aborted StoppedError", err)
	}
	if len(c.called()) != 0 {
		t.Errorf("calls = %v, want none", c.called())
	}
}

func TestErrorPolicy(t *testing.T) {
	tests := []struct {
		name            string
		continueOnError bool
		prompt          func(*int) PromptFunc
		wantStopped     bool
		wantErrors      int
		wantPrompts     int
		wantLogout      bool
	}{
		{
			name:        "stop without prompt",
			wantStopped: true,
			wantErrors:  1,
		},
		{
			name:            "continue on error",
			continueOnError: true,
			wantErrors:      4,
			wantLogout:      true,
		},
		{
			name: "skip all asks once",
			prompt: func(n *int) PromptFunc {
				return func(context.Context, Question) (Choice, error) {
					*n++
					return ChoiceSkipAll, nil
				}
			},
			wantErrors:  4,
			wantPrompts: 1,
			wantLogout:  true,
		},
		{
			name: "skip asks every time",
			prompt: func(n *int) PromptFunc {
				return func(context.Context, Question) (Choice, error) {
					*n++
					return ChoiceSkip, nil
				}
			},
			wantErrors:  4,
			wantPrompts: 4,
			wantLogout:  true,
		},
		{
			name: "cancel stops without asking again",
			prompt: func(n *int) PromptFunc {
				return func(context.Context, Question) (Choice, error) {
					*n++
					return ChoiceCancel, nil
				}
			},
			wantStopped: true,
			wantErrors:  1,
			wantPrompts: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClient()
			c.fail["*"] = failing(500)
			prompts := 0
			opts := Options{ContinueOnError: tt.continueOnError}
			if tt.prompt != nil {
				opts.Prompt = tt.prompt(&prompts)
			}
			q := New(c, opts)
			q.AddEntries("images/", sample()...)
			q.BatchDelete()
			q.Custom("logout", func(context.Context, Client, *Queue, progress.TaskFunc, []any) (any, error) {
				return "logout", nil
			})

			err := q.Run(context.Background())
			var stopped *StoppedError
			if got := errors.As(err, &stopped); got != tt.wantStopped {
				t.Fatalf("Run() error = %v, want stopped %v", err, tt.wantStopped)
			}
			if got := len(q.Errors()); got != tt.wantErrors {
				t.Errorf("len(Errors()) = %d, want %d: %v", got, tt.wantErrors, q.Errors())
			}
			if prompts != tt.wantPrompts {
				t.Errorf("prompts = %d, want %d", prompts, tt.wantPrompts)
			}
			if got := q.Results()[2] == "logout"; got != tt.wantLogout {
				t.Errorf("last item ran = %v, want %v", got, tt.wantLogout)
			}
			var ee *EntryError
			if tt.wantErrors > 0 && !errors.As(q.Errors()[0], &ee) {
				t.Errorf("Errors()[0] = %T, want *EntryError", q.Errors()[0])
			}
		})
	}
}

func TestBatchOrder(t *testing.T) {
	tests := []struct {
		name string
		add  func(q *Queue)
		want []string
	}{
		{
			name: "delete deepest first",
			add:  func(q *Queue) { q.BatchDelete() },
			want: []string{"delete images/sub/c.jpg", "delete images/sub/", "delete images/b.jpg", "delete images/a.jpg"},
		},
		{
			name: "copy skips covered entries",
			add:  func(q *Queue) { q.BatchCopy("backup/", CopyOptions{}) },
			want: []string{"copy images/a.jpg backup/ false", "copy images/b.jpg backup/ false", "copy images/sub/ backup/ false"},
		},
		{
			name: "move reversed and covered",
			add:  func(q *Queue) { q.BatchMove("backup/", CopyOptions{Overwrite: true}) },
			want: []string{"move images/sub/ backup/ true", "move images/b.jpg backup/ true", "move images/a.jpg backup/ true"},
		},
		{
			name: "reimport in order",
			add:  func(q *Queue) { q.BatchReimport() },
			want: []string{"reimport images/a.jpg", "reimport images/b.jpg", "reimport images/sub/", "reimport images/sub/c.jpg"},
		},
		{
			name: "rename skips unchanged names",
			add: func(q *Queue) {
				q.BatchRename(func(e *models.Entry) string {
					if e.IsDir() {
						return e.Name
					}
					return "new_" + e.Name
				})
			},
			want: []string{"rename images/sub/c.jpg new_c.jpg", "rename images/b.jpg new_b.jpg", "rename images/a.jpg new_a.jpg"},
		},
		{
			name: "service command",
			add:  func(q *Queue) { q.BatchServiceCommand("clearcache") },
			want: []string{"service images/a.jpg clearcache", "service images/b.jpg clearcache", "service images/sub/ clearcache", "service images/sub/c.jpg clearcache"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClient()
			q := New(c, Options{})
			q.AddEntries("images/", sample()...)
			tt.add(q)
			if err := q.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := c.called(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("calls = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetaData(t *testing.T) {
	c := newFakeClient()
	q := New(c, Options{})
	entries := sample()[:2]
	q.AddEntries("images/", entries...)
	q.BatchGetMetaData()
	q.BatchSetMetaData(map[string]string{"iptc.Keywords": "sea"})
	q.BatchDeleteMetaData([]string{"iptc.Caption"})
	if err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := map[string]string{"iptc.Keywords": "sea"}
	for _, e := range entries {
		if !reflect.DeepEqual(e.MetaData, want) {
			t.Errorf("%s MetaData = %v, want %v", e.Name, e.MetaData, want)
		}
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		local   bool
		add     func(q *Queue)
		wantKey string
	}{
		{"upload of server entries", false, func(q *Queue) { q.BatchUpload("target/", UploadOptions{}) }, messages.ErrRequiresLocal},
		{"delete of local entries", true, func(q *Queue) { q.BatchDelete() }, messages.ErrRequiresRemote},
		{"download of local entries", true, func(q *Queue) { q.BatchDownload(t.TempDir(), DownloadOptions{}) }, messages.ErrRequiresRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClient()
			q := New(c, Options{ContinueOnError: true})
			e := models.NewFile("photos/", "x.jpg", 1, epoch)
			if tt.local {
				models.NewListing("photos/", models.ConnectorLocal).Add(e, false)
			}
			q.AddEntry(e)
			tt.add(q)
			q.Logout()

			err := q.Run(context.Background())
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Run() error = %v, want ValidationError", err)
			}
			if ve.Key != tt.wantKey {
				t.Errorf("Key = %s, want %s", ve.Key, tt.wantKey)
			}
			if calls := c.called(); len(calls) != 0 {
				t.Errorf("calls = %v, want none", calls)
			}
		})
	}
}

func TestConflictOverwrite(t *testing.T) {
	c := newFakeClient()
	conflict := &api.Error{Key: api.KeyConflict, Status: 409, Method: "copy"}
	c.fail["copy images/a.jpg backup/ false"] = conflict
	c.fail["copy images/b.jpg backup/ false"] = conflict

	var questions []Question
	q := New(c, Options{Prompt: func(_ context.Context, qu Question) (Choice, error) {
		questions = append(questions, qu)
		return ChoiceOverwriteAll, nil
	}})
	q.AddEntries("images/", sample()[:2]...)
	q.BatchCopy("backup/", CopyOptions{})
	if err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"copy images/a.jpg backup/ false",
		"copy images/a.jpg backup/ true",
		"copy images/b.jpg backup/ true",
	}
	if got := c.called(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if len(questions) != 1 || questions[0].Kind != QuestionConflict || questions[0].Path != "images/a.jpg" {
		t.Errorf("questions = %+v, want one conflict for images/a.jpg", questions)
	}
}

func TestConflictPersistsAfterOverwrite(t *testing.T) {
	tests := []struct {
		name   string
		prompt func(*[]Question) PromptFunc
	}{
		{
			name: "prompt answers overwrite all",
			prompt: func(qs *[]Question) PromptFunc {
				return func(_ context.Context, qu Question) (Choice, error) {
					*qs = append(*qs, qu)
					return ChoiceOverwriteAll, nil
				}
			},
		},
		{
			name: "yes flag",
			prompt: func(qs *[]Question) PromptFunc {
				always := Always(ChoiceOverwriteAll)
				return func(ctx context.Context, qu Question) (Choice, error) {
					*qs = append(*qs, qu)
					return always(ctx, qu)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClient()
			c.fail["*"] = &api.Error{Key: api.KeyConflict, Status: 409, Method: "copy"}

			var questions []Question
			q := New(c, Options{Prompt: tt.prompt(&questions)})
			q.AddEntries("images/", sample()[:1]...)
			q.BatchCopy("backup/", CopyOptions{})

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := q.Run(ctx)
			var stopped *StoppedError
			if !errors.As(err, &stopped) || stopped.Aborted() {
				t.Fatalf("Run() error = %v, want StoppedError that is not aborted", err)
			}

			want := []string{
				"copy images/a.jpg backup/ false",
				"copy images/a.jpg backup/ true",
			}
			if got := c.called(); !reflect.DeepEqual(got, want) {
				t.Errorf("calls = %v, want %v", got, want)
			}
			if len(questions) != 2 || questions[0].Kind != QuestionConflict || questions[1].Kind != QuestionError {
				t.Errorf("questions = %+v, want a conflict then an error question", questions)
			}
			if n := len(q.Errors()); n != 1 {
				t.Errorf("errors = %d, want 1", n)
			}
		})
	}
}

func TestRememberedChoiceKeepsItsKind(t *testing.T) {
	c := newFakeClient()
	conflict := &api.Error{Key: api.KeyConflict, Status: 409, Method: "copy"}
	c.fail["copy images/a.jpg backup/ false"] = conflict
	c.fail["rename images/a.jpg x.jpg"] = conflict

	var questions []Question
	q := New(c, Options{Prompt: func(_ context.Context, qu Question) (Choice, error) {
		questions = append(questions, qu)
		if qu.Kind == QuestionConflict {
			return ChoiceOverwriteAll, nil
		}
		return ChoiceSkip, nil
	}})
	q.AddEntries("images/", sample()[:1]...)
	q.BatchCopy("backup/", CopyOptions{})
	q.BatchRename(func(*models.Entry) string { return "x.jpg" })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"copy images/a.jpg backup/ false",
		"copy images/a.jpg backup/ true",
		"rename images/a.jpg x.jpg",
	}
	if got := c.called(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if len(questions) != 2 || questions[1].Kind != QuestionError || questions[1].Op != OpRename {
		t.Errorf("questions = %+v, want the rename conflict asked as an error", questions)
	}
	if n := len(q.Errors()); n != 1 {
		t.Errorf("errors = %d, want 1", n)
	}
}

func TestItemFailureStopsQueue(t *testing.T) {
	c := newFakeClient()
	ranThird := false
	q := New(c, Options{})
	q.Custom("one", func(context.Context, Client, *Queue, progress.TaskFunc, []any) (any, error) {
		return "one", nil
	})
	q.Custom("two", func(context.Context, Client, *Queue, progress.TaskFunc, []any) (any, error) {
		return nil, failing(500)
	})
	q.Custom("three", func(context.Context, Client, *Queue, progress.TaskFunc, []any) (any, error) {
		ranThird = true
		return "three", nil
	})

	err := q.Run(context.Background())
	var stopped *StoppedError
	if !errors.As(err, &stopped) || stopped.Aborted() {
		t.Fatalf("Run() error = %v, want StoppedError", err)
	}
	if stopped.Completed != 1 || stopped.Count != 3 {
		t.Errorf("Completed, Count = %d, %d, want 1, 3", stopped.Completed, stopped.Count)
	}
	res := q.Results()
	if len(res) != 3 || res[0] != "one" || res[1] != nil || res[2] != nil {
		t.Errorf("Results() = %v, want [one <nil> <nil>]", res)
	}
	if ranThird {
		t.Error("third item ran after the second failed")
	}
	if n := len(q.Errors()); n != 1 {
		t.Errorf("errors = %d, want 1", n)
	}
}

func TestListDepthOverride(t *testing.T) {
	tests := []struct {
		name      string
		depth     int
		wantFiles int
	}{
		{"queue default", 0, 2},
		{"unlimited", UnlimitedDepth, 3},
		{"explicit", 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(newFakeClient(), Options{MaxRecursiveDepth: 1})
			q.ListServer("images/", listing.Options{Recursive: true, MaxRecursiveDepth: tt.depth})

			res := q.RunWithResult(context.Background())
			if !res.Success {
				t.Fatalf("RunWithResult() errors = %v", res.Errors)
			}
			l, ok := res.Results[0].(*models.Listing)
			if !ok {
				t.Fatalf("result = %#v, want listing", res.Results[0])
			}
			if got := l.Summary.EntryCount.Files; got != tt.wantFiles {
				t.Errorf("files = %d, want %d", got, tt.wantFiles)
			}
		})
	}
}

func TestDownloadConflict(t *testing.T) {
	tests := []struct {
		name            string
		prompt          PromptFunc
		continueOnError bool
		wantContent     string
		wantErrors      int
		wantStopped     bool
	}{
		{"skip existing", Always(ChoiceSkip), false, "old", 0, false},
		{"overwrite", Always(ChoiceOverwrite), false, "aaa", 0, false},
		{"continue on error records", nil, true, "old", 1, false},
		{"stop", nil, false, "old", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := t.TempDir()
			existing := filepath.Join(target, "a.jpg")
			if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
				t.Fatal(err)
			}
			c := newFakeClient()
			q := New(c, Options{Prompt: tt.prompt, ContinueOnError: tt.continueOnError})
			q.AddEntries("images/", sample()[:2]...)
			q.BatchDownload(target, DownloadOptions{})

			err := q.Run(context.Background())
			if (err != nil) != tt.wantStopped {
				t.Fatalf("Run() error = %v, want stopped %v", err, tt.wantStopped)
			}
			got, _ := os.ReadFile(existing)
			if string(got) != tt.wantContent {
				t.Errorf("a.jpg = %q, want %q", got, tt.wantContent)
			}
			if n := len(q.Errors()); n != tt.wantErrors {
				t.Errorf("len(Errors()) = %d, want %d", n, tt.wantErrors)
			}
			if tt.wantErrors > 0 {
				var ee *EntryError
				if !errors.As(q.Errors()[0], &ee) || ee.Key != api.KeyConflict {
					t.Errorf("Errors()[0] = %v, want conflict EntryError", q.Errors()[0])
				}
			}
		})
	}
}

func TestListLocalAndUpload(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{"x.txt": "hello", "sub/y.txt": "world"} {
		if err := os.WriteFile(filepath.Join(src, filepath.FromSlash(name)), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c := newFakeClient()
	var last *progress.QueueProgress
	q := New(c, Options{Progress: func(p *progress.QueueProgress) { last = p.Clone() }})
	q.ListLocal(src, listing.Options{Recursive: true})
	q.BatchUpload("target", UploadOptions{})
	if err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[string]string{"target/x.txt": "hello", "target/sub/y.txt": "world"}
	if !reflect.DeepEqual(c.uploaded, want) {
		t.Errorf("uploaded = %v, want %v", c.uploaded, want)
	}
	var mkdir bool
	for _, call := range c.called() {
		if call == "mkdir target/sub/" {
			mkdir = true
		}
	}
	if !mkdir {
		t.Errorf("calls = %v, want mkdir target/sub/", c.called())
	}
	if last.BytesDone != 10 || last.BytesTotal != 10 {
		t.Errorf("bytes = %d/%d, want 10/10", last.BytesDone, last.BytesTotal)
	}
}

func TestAddServerPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		expand  bool
		wantRel []string
		wantErr bool
	}{
		{"file", "images/a.jpg", false, []string{"a.jpg"}, false},
		{"directory only", "images/sub", false, []string{"sub"}, false},
		{"directory tree", "images/sub/", true, []string{"sub", "sub/c.jpg"}, false},
		{"missing", "images/nope.jpg", false, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(newFakeClient(), Options{})
			q.AddServerPath(tt.path, tt.expand, listing.Options{})
			err := q.Run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var ee *EntryError
				if errors.As(err, &ee) {
					t.Errorf("error = %v, want item error", err)
				}
				return
			}
			var rel []string
			for _, it := range q.BatchContent().snapshot(false) {
				rel = append(rel, it.relative())
			}
			if !reflect.DeepEqual(rel, tt.wantRel) {
				t.Errorf("relative paths = %v, want %v", rel, tt.wantRel)
			}
		})
	}
}

func TestBatchContentManagement(t *testing.T) {
	q := New(newFakeClient(), Options{})
	q.AddEntries("images/", sample()...)
	q.LogBatchContent()
	q.ClearBatchContent()
	if err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	s, ok := q.Results()[1].(models.Summary)
	if !ok || s.EntryCount.Files != 3 || s.EntryCount.Directories != 1 || s.ClientInfo.Bytes != 9 {
		t.Errorf("summary = %+v, want 1 dir, 3 files, 9 bytes", q.Results()[1])
	}
	if q.BatchContent().Len() != 0 {
		t.Errorf("Len() = %d after clear", q.BatchContent().Len())
	}
}

func TestEvents(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()
	ch := bus.SubscribeAll()

	q := New(newFakeClient(), Options{Events: bus})
	q.AddEntries("images/", sample()[:2]...)
	q.BatchDelete()
	if err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	counts := map[events.EventType]int{}
	var final *events.RunEvent
	timeout := time.After(2 * time.Second)
	for final == nil {
		select {
		case ev := <-ch:
			counts[ev.Type()]++
			if re, ok := ev.(*events.RunEvent); ok && re.Type() == events.EventRunFinished {
				final = re
			}
		case <-timeout:
			t.Fatalf("no run finished event, got %v", counts)
		}
	}
	if counts[events.EventItemFinished] != 2 || counts[events.EventEntryProcessed] != 2 {
		t.Errorf("event counts = %v, want 2 items and 2 entries", counts)
	}
	if final.Outcome != events.OutcomeSuccess || final.RunID != q.RunID() {
		t.Errorf("run event = %+v, want success for %s", final, q.RunID())
	}
}
