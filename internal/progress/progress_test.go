package progress

import (
	"math"
	"testing"
	"time"

	"github.com/neptunelabs/fsi-client/internal/messages"
)

func TestWeighted(t *testing.T) {
	tests := []struct {
		name        string
		pos, length int
		item        float64
		want        float64
	}{
		{"first of four at start", 1, 4, 0, 0},
		{"first of four half done", 1, 4, 50, 12.5},
		{"third of four done", 3, 4, 100, 75},
		{"last item done", 4, 4, 100, 100},
		{"single item", 1, 1, 42, 42},
		{"zero length uses item percent", 0, 0, 30, 30},
		{"item percent clamped", 2, 2, 150, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Weighted(tt.pos, tt.length, tt.item)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Weighted(%d, %d, %v) = %v, want %v", tt.pos, tt.length, tt.item, got, tt.want)
			}
		})
	}
}

func TestETA(t *testing.T) {
	tests := []struct {
		percent float64
		elapsed time.Duration
		want    time.Duration
	}{
		{0, time.Second, Unknown},
		{50, 0, Unknown},
		{50, 10 * time.Second, 10 * time.Second},
		{25, 3 * time.Second, 9 * time.Second},
		{100, 5 * time.Second, 0},
	}
	for _, tt := range tests {
		if got := eta(tt.percent, tt.elapsed); got != tt.want {
			t.Errorf("eta(%v, %v) = %v, want %v", tt.percent, tt.elapsed, got, tt.want)
		}
	}
}

func TestQueueProgressUpdate(t *testing.T) {
	q := NewQueueProgress("run", 4)
	q.Started = time.Now().Add(-time.Second)
	q.BeginItem(2, NewTask(messages.TaskDownload, "x"))
	q.Sub.SetPercent(50)
	q.Update()

	if want := 37.5; math.Abs(q.Percent-want) > 1e-9 {
		t.Errorf("Percent = %v, want %v", q.Percent, want)
	}

	q.BeginItem(4, NewTask(messages.TaskLogout))
	q.Sub.SetPercent(100)
	q.Update()
	if q.Percent != 100 {
		t.Errorf("Percent after last item = %v, want 100", q.Percent)
	}
	if q.Remaining != 0 {
		t.Errorf("Remaining at 100%% = %v, want 0", q.Remaining)
	}
}

func TestTaskProgressStartResets(t *testing.T) {
	task := NewTask(messages.TaskUpload, "a.jpg")
	p := NewTaskProgress(task)
	p.SetPosition(3, 5, 50)
	p.SetBytes(10, 20)
	p.Start()

	if p.Percent != 0 || p.Pos != 0 || p.BytesDone != 0 {
		t.Errorf("Start() left state %+v", p)
	}
	if p.Task != task {
		t.Error("Start() dropped the task description")
	}
	if p.Remaining != Unknown {
		t.Errorf("Remaining = %v, want Unknown", p.Remaining)
	}
}

func TestTaskDescriptionRender(t *testing.T) {
	m := messages.New("en")

	main := NewTask(messages.TaskListServer, "images/")
	chained := main.WithSub(NewTask(messages.TaskReadDir, "images/a/")).WithSub(NewTask(messages.TaskReadDir, "images/a/b/"))

	want := "Listing server directory images/: Reading images/a/: Reading images/a/b/"
	if got := chained.Render(m); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
	if main.Sub != nil {
		t.Error("WithSub modified the receiver")
	}

	var nilTask *TaskDescription
	if got := nilTask.Render(m); got != "" {
		t.Errorf("nil Render() = %q, want empty", got)
	}
}

func TestQueueProgressDescribe(t *testing.T) {
	m := messages.New("en")
	q := NewQueueProgress("run", 1)
	item := NewTask(messages.TaskDownload, "batch")
	q.BeginItem(1, item)

	if got, want := q.Describe(m), "Downloading batch"; got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}

	q.Sub.Task = NewTask(messages.TaskDownload, "a.jpg")
	if got, want := q.Describe(m), "Downloading batch: Downloading a.jpg"; got != want {
		t.Errorf("Describe() with sub = %q, want %q", got, want)
	}

	c := q.Clone()
	c.Sub.Percent = 99
	if q.Sub.Percent == 99 {
		t.Error("Clone shares the nested record")
	}
}
