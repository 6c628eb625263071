package progress

import (
	"time"

	"github.com/neptunelabs/fsi-client/internal/messages"
)

// Func observes queue progress. It is called on the run goroutine, in the
// order progress happens, and must not retain or modify the record.
type Func func(*QueueProgress)

// TaskFunc observes the progress of a single operation such as a tree read.
type TaskFunc func(*TaskProgress)

// QueueProgress is the progress of a whole queue run. Sub is the progress of
// the active item; its percent is scaled into the item's slot.
type QueueProgress struct {
	RunID string
	Task  *TaskDescription

	ItemIndex int
	ItemCount int

	Percent float64

	// Cumulative bytes of the batch operation in progress. The bytes of the
	// current file are in Sub.
	BytesDone      int64
	BytesTotal     int64
	BytesPerSecond float64

	Started   time.Time
	Elapsed   time.Duration
	Remaining time.Duration

	Sub *TaskProgress
}

// NewQueueProgress creates the record for a run of count items.
func NewQueueProgress(runID string, count int) *QueueProgress {
	return &QueueProgress{
		RunID:     runID,
		ItemCount: count,
		Started:   time.Now(),
		Remaining: Unknown,
		Sub:       NewTaskProgress(nil),
	}
}

// BeginItem moves to item index (1-based) and resets the nested record.
func (q *QueueProgress) BeginItem(index int, task *TaskDescription) {
	q.ItemIndex = index
	q.Task = task
	q.BytesDone = 0
	q.BytesTotal = 0
	q.BytesPerSecond = 0
	q.Sub = NewTaskProgress(task)
	q.Update()
}

// SetBytes updates the cumulative batch byte counters.
func (q *QueueProgress) SetBytes(done, total int64) {
	q.BytesDone = done
	q.BytesTotal = total
}

// Update recomputes percent, ETA and transfer rate from the nested record.
func (q *QueueProgress) Update() {
	sub := 0.0
	if q.Sub != nil {
		sub = q.Sub.Percent
	}
	q.Percent = Weighted(q.ItemIndex, q.ItemCount, sub)
	q.Elapsed = time.Since(q.Started)
	q.Remaining = eta(q.Percent, q.Elapsed)
	q.BytesPerSecond = rate(q.BytesDone, q.Elapsed)
}

// Describe renders the active item and, when it differs, its current sub task.
func (q *QueueProgress) Describe(m messages.Supplier) string {
	text := q.Task.Render(m)
	if q.Sub == nil || q.Sub.Task == nil || q.Sub.Task == q.Task {
		return text
	}
	if text == "" {
		return q.Sub.Task.Render(m)
	}
	return text + ": " + q.Sub.Task.Render(m)
}

// Clone returns a copy that is safe to hand to another goroutine.
func (q *QueueProgress) Clone() *QueueProgress {
	c := *q
	if q.Sub != nil {
		sub := *q.Sub
		c.Sub = &sub
	}
	return &c
}
