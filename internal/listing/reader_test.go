package listing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/neptunelabs/fsi-client/internal/abort"
	"github.com/neptunelabs/fsi-client/internal/localfs"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/progress"
)

type node struct {
	name string
	dir  bool
	size int64
	ct   models.ConnectorType
}

// fakeBackend serves an in-memory tree.
type fakeBackend struct {
	mu     sync.Mutex
	tree   map[string][]node
	types  map[string]models.ConnectorType
	fail   map[string]error
	calls  []string
	onRead func(dir string)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tree: map[string][]node{
			"": {
				{name: "images", dir: true, ct: models.ConnectorStorage},
				{name: "static", dir: true, ct: models.ConnectorStatic},
			},
			"images/": {
				{name: "a.jpg", size: 100},
				{name: "b.jpg", size: 200},
				{name: "sub", dir: true},
				{name: "deep", dir: true},
			},
			"images/sub/":     {{name: "c.jpg", size: 50}},
			"images/deep/":    {{name: "d1", dir: true}},
			"images/deep/d1/": {{name: "e.jpg", size: 10}},
			"static/":         {{name: "s.css", size: 5}},
		},
		types: map[string]models.ConnectorType{
			"":        models.ConnectorUnknown,
			"images/": models.ConnectorStorage,
			"static/": models.ConnectorStatic,
		},
		fail: map[string]error{},
	}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) ReadDir(ctx context.Context, dir string) (*Level, error) {
	b.mu.Lock()
	b.calls = append(b.calls, dir)
	onRead := b.onRead
	b.mu.Unlock()

	if onRead != nil {
		onRead(dir)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.fail[dir]; err != nil {
		return nil, err
	}
	children, ok := b.tree[dir]
	if !ok {
		return nil, models.ErrNotFound
	}

	ct, ok := b.types[dir]
	if !ok {
		ct = models.ConnectorStorage
	}
	level := &Level{Dir: dir, ConnectorType: ct}
	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, n := range children {
		var e *models.Entry
		if n.dir {
			e = models.NewDirectory(dir, n.name, mod)
			e.ConnectorType = n.ct
		} else {
			e = models.NewFile(dir, n.name, n.size, mod)
		}
		level.Entries = append(level.Entries, e)
	}
	return level, nil
}

func (b *fakeBackend) called(dir string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Contains(b.calls, dir)
}

func paths(l *models.Listing) []string {
	var out []string
	for _, e := range l.Entries {
		out = append(out, e.FullPath())
	}
	return out
}

func TestReadFullTree(t *testing.T) {
	b := newFakeBackend()
	r := NewReader(b, nil, nil, nil)

	var percents []float64
	opts := Options{
		Recursive: true,
		Progress:  func(p *progress.TaskProgress) { percents = append(percents, p.Percent) },
	}
	l, err := r.Read(context.Background(), nil, "images", opts)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := models.EntryCount{Directories: 3, Files: 4}
	if l.Summary.EntryCount != want {
		t.Errorf("EntryCount = %+v, want %+v", l.Summary.EntryCount, want)
	}
	if l.Summary.ClientInfo.Bytes != 360 {
		t.Errorf("Bytes = %d, want 360", l.Summary.ClientInfo.Bytes)
	}
	if l.Summary.Dir != "images/" {
		t.Errorf("Dir = %q, want images/", l.Summary.Dir)
	}

	wantPaths := []string{
		"images/a.jpg", "images/b.jpg", "images/sub/", "images/deep/",
		"images/sub/c.jpg", "images/deep/d1/", "images/deep/d1/e.jpg",
	}
	if got := paths(l); !reflect.DeepEqual(got, wantPaths) {
		t.Errorf("entries = %v, want %v", got, wantPaths)
	}

	for _, e := range l.Entries {
		if e.Listing == nil || e.Listing.Dir != e.Path {
			t.Errorf("%s: Listing back-reference = %+v, want dir %q", e.FullPath(), e.Listing, e.Path)
		}
	}

	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("final progress = %v, want 100", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress went backwards: %v", percents)
			break
		}
	}
}

func TestReadIsIdempotent(t *testing.T) {
	r := NewReader(newFakeBackend(), nil, nil, nil)
	opts := Options{Recursive: true}

	first, err := r.Read(context.Background(), nil, "images/", opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Read(context.Background(), nil, "images/", opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Summary, second.Summary) {
		t.Errorf("summaries differ: %+v vs %+v", first.Summary, second.Summary)
	}
	if !reflect.DeepEqual(paths(first), paths(second)) {
		t.Errorf("entries differ: %v vs %v", paths(first), paths(second))
	}
}

func TestReadNonRecursive(t *testing.T) {
	b := newFakeBackend()
	l, err := NewReader(b, nil, nil, nil).Read(context.Background(), nil, "images/", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := l.Summary.EntryCount; got != (models.EntryCount{Directories: 2, Files: 2}) {
		t.Errorf("EntryCount = %+v, want 2 dirs 2 files", got)
	}
	if b.called("images/sub/") {
		t.Error("non-recursive read descended into images/sub/")
	}
	if l.Summary.SkippedDirectories != 0 {
		t.Errorf("SkippedDirectories = %d, want 0", l.Summary.SkippedDirectories)
	}
}

func TestReadDepthLimit(t *testing.T) {
	tests := []struct {
		name        string
		depth       int
		wantCount   models.EntryCount
		wantSkipped int
		wantNoteDir string
	}{
		{"depth 1", 1, models.EntryCount{Directories: 2, Files: 2}, 2, "images/"},
		{"depth 2", 2, models.EntryCount{Directories: 3, Files: 3}, 1, "images/deep/"},
		{"depth 3 reaches everything", 3, models.EntryCount{Directories: 3, Files: 4}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var notes []Note
			opts := Options{
				Recursive:         true,
				MaxRecursiveDepth: tt.depth,
				OnNote:            func(n Note) { notes = append(notes, n) },
			}
			l, err := NewReader(newFakeBackend(), nil, nil, nil).Read(context.Background(), nil, "images/", opts)
			if err != nil {
				t.Fatal(err)
			}
			if l.Summary.EntryCount != tt.wantCount {
				t.Errorf("EntryCount = %+v, want %+v", l.Summary.EntryCount, tt.wantCount)
			}
			if l.Summary.SkippedDirectories != tt.wantSkipped {
				t.Errorf("SkippedDirectories = %d, want %d", l.Summary.SkippedDirectories, tt.wantSkipped)
			}

			if tt.wantSkipped == 0 {
				if len(notes) != 0 {
					t.Errorf("notes = %v, want none", notes)
				}
				return
			}
			if len(notes) != 1 || notes[0].Key != messages.NoteDepthLimit {
				t.Fatalf("notes = %v, want exactly one depth-limit note", notes)
			}
			if got := notes[0].Args; got[0] != tt.depth || got[1] != tt.wantNoteDir {
				t.Errorf("note args = %v, want [%d %s]", got, tt.depth, tt.wantNoteDir)
			}
		})
	}
}

func TestReadContinueOnError(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("stops by default", func(t *testing.T) {
		b := newFakeBackend()
		b.fail["images/sub/"] = boom
		_, err := NewReader(b, nil, nil, nil).Read(context.Background(), nil, "images/", Options{Recursive: true})
		if !errors.Is(err, boom) {
			t.Errorf("Read() error = %v, want %v", err, boom)
		}
		if b.called("images/deep/") {
			t.Error("read went on after a failed sibling")
		}
	})

	t.Run("continues with next sibling", func(t *testing.T) {
		b := newFakeBackend()
		b.fail["images/sub/"] = boom
		var reported []error
		opts := Options{
			Recursive:       true,
			ContinueOnError: true,
			OnError:         func(err error) { reported = append(reported, err) },
		}
		l, err := NewReader(b, nil, nil, nil).Read(context.Background(), nil, "images/", opts)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(reported) != 1 || !errors.Is(reported[0], boom) {
			t.Errorf("OnError got %v, want [%v]", reported, boom)
		}
		if got := l.Summary.EntryCount; got != (models.EntryCount{Directories: 3, Files: 3}) {
			t.Errorf("EntryCount = %+v, want 3 dirs 3 files", got)
		}
	})

	t.Run("start directory always fails", func(t *testing.T) {
		b := newFakeBackend()
		b.fail["images/"] = boom
		_, err := NewReader(b, nil, nil, nil).Read(context.Background(), nil, "images/", Options{Recursive: true, ContinueOnError: true})
		if !errors.Is(err, boom) {
			t.Errorf("Read() error = %v, want %v", err, boom)
		}
	})

	t.Run("missing start directory", func(t *testing.T) {
		_, err := NewReader(newFakeBackend(), nil, nil, nil).Read(context.Background(), nil, "nope/", Options{})
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("Read() error = %v, want models.ErrNotFound", err)
		}
	})
}

func TestReadAbort(t *testing.T) {
	t.Run("trip during read", func(t *testing.T) {
		b := newFakeBackend()
		tok := abort.New(context.Background())
		defer tok.Close()
		b.onRead = func(dir string) {
			if dir == "images/sub/" {
				tok.Trip()
			}
		}
		var reported []error
		opts := Options{Recursive: true, ContinueOnError: true, OnError: func(err error) { reported = append(reported, err) }}
		_, err := NewReader(b, nil, nil, nil).Read(context.Background(), tok, "images/", opts)
		if !abort.IsAborted(err) {
			t.Errorf("Read() error = %v, want aborted", err)
		}
		if len(reported) != 0 {
			t.Errorf("abort was reported to OnError: %v", reported)
		}
		if b.called("images/deep/") {
			t.Error("read went on after abort")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewReader(newFakeBackend(), nil, nil, nil).Read(ctx, nil, "images/", Options{Recursive: true})
		if !abort.IsAborted(err) {
			t.Errorf("Read() error = %v, want aborted", err)
		}
	})
}

func TestReadFilters(t *testing.T) {
	b := newFakeBackend()
	opts := Options{
		Recursive: true,
		FileFilter: func(_ context.Context, e *models.Entry) (bool, error) {
			return e.Name != "b.jpg", nil
		},
		DirFilter: func(_ context.Context, e *models.Entry) (bool, error) {
			return e.Name != "deep", nil
		},
	}
	l, err := NewReader(b, nil, nil, nil).Read(context.Background(), nil, "images/", opts)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"images/a.jpg", "images/sub/", "images/sub/c.jpg"}
	if got := paths(l); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
	if b.called("images/deep/") {
		t.Error("rejected directory was read")
	}

	filterErr := errors.New("bad pattern")
	opts.FileFilter = func(context.Context, *models.Entry) (bool, error) { return false, filterErr }
	if _, err := NewReader(newFakeBackend(), nil, nil, nil).Read(context.Background(), nil, "images/", opts); !errors.Is(err, filterErr) {
		t.Errorf("Read() error = %v, want %v", err, filterErr)
	}
}

func TestReadTypeFilterAndDrop(t *testing.T) {
	l, err := NewReader(newFakeBackend(), nil, nil, nil).Read(context.Background(), nil, "images/",
		Options{Recursive: true, TypeFilter: models.TypeFiles})
	if err != nil {
		t.Fatal(err)
	}
	if got := l.Summary.EntryCount; got != (models.EntryCount{Files: 4}) {
		t.Errorf("EntryCount = %+v, want 4 files only", got)
	}

	l, err = NewReader(newFakeBackend(), nil, nil, nil).Read(context.Background(), nil, "images/",
		Options{Recursive: true, DropEntries: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0 with DropEntries", len(l.Entries))
	}
	if got := l.Summary.EntryCount; got != (models.EntryCount{Directories: 3, Files: 4}) {
		t.Errorf("EntryCount = %+v, want 3 dirs 4 files", got)
	}
}

func TestReadConnectorTypesAndBlacklist(t *testing.T) {
	b := newFakeBackend()
	var notes []Note
	opts := Options{
		Recursive:           true,
		ValidConnectorTypes: []models.ConnectorType{models.ConnectorStorage},
		Blacklist:           []string{"images/sub"},
		OnNote:              func(n Note) { notes = append(notes, n) },
	}
	l, err := NewReader(b, nil, nil, nil).Read(context.Background(), nil, "", opts)
	if err != nil {
		t.Fatal(err)
	}
	if b.called("static/") || b.called("images/sub/") {
		t.Errorf("excluded directories were read: %v", b.calls)
	}
	want := []string{"images/", "images/a.jpg", "images/b.jpg", "images/deep/", "images/deep/d1/", "images/deep/d1/e.jpg"}
	if got := paths(l); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}

	var keys []string
	for _, n := range notes {
		keys = append(keys, n.Key)
	}
	if !reflect.DeepEqual(keys, []string{messages.NoteConnectorType, messages.NoteBlacklisted}) {
		t.Errorf("note keys = %v, want connector type then blacklist", keys)
	}
}

func TestLocalBackend(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"a/b", "c"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"x.jpg", "a/y.jpg", "a/b/z.jpg"} {
		if err := os.WriteFile(filepath.Join(root, f), []byte("12345"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(NewLocalBackend(localfs.ListOptions{}), nil, nil, nil)
	l, err := r.Read(context.Background(), nil, root, Options{Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := l.Summary.EntryCount; got != (models.EntryCount{Directories: 3, Files: 3}) {
		t.Errorf("EntryCount = %+v, want 3 dirs 3 files", got)
	}
	if l.Summary.ClientInfo.Bytes != 15 {
		t.Errorf("Bytes = %d, want 15", l.Summary.ClientInfo.Bytes)
	}
	for _, e := range l.Entries {
		if !e.IsLocal() {
			t.Errorf("%s: IsLocal() = false", e.FullPath())
		}
	}

	_, err = r.Read(context.Background(), nil, filepath.Join(root, "missing"), Options{})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Read(missing) error = %v, want models.ErrNotFound", err)
	}
}
