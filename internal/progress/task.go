// Package progress holds the progress records reported by the tree reader and
// the batch queue, plus terminal renderers for them.
package progress

import (
	"math"
	"time"

	"github.com/neptunelabs/fsi-client/internal/messages"
)

// Unknown is reported as Remaining while no rate can be extrapolated.
const Unknown time.Duration = -1

// TaskDescription names the task a progress record belongs to. Sub describes
// the nested step currently running inside it.
type TaskDescription struct {
	Key  string
	Args []any
	Sub  *TaskDescription
}

// NewTask creates a description for key.
func NewTask(key string, args ...any) *TaskDescription {
	return &TaskDescription{Key: key, Args: args}
}

// WithSub returns a copy of d whose innermost sub task is sub.
func (d *TaskDescription) WithSub(sub *TaskDescription) *TaskDescription {
	if d == nil {
		return sub
	}
	out := *d
	if out.Sub == nil {
		out.Sub = sub
	} else {
		out.Sub = out.Sub.WithSub(sub)
	}
	return &out
}

// Render folds the description chain into one line.
func (d *TaskDescription) Render(m messages.Supplier) string {
	if d == nil {
		return ""
	}
	text := m.Text(d.Key, d.Args...)
	if d.Sub == nil {
		return text
	}
	sub := d.Sub.Render(m)
	if text == "" {
		return sub
	}
	return text + ": " + sub
}

// TaskProgress is the progress of one operation: a tree read, a queue item or
// a single file transfer inside a batch operation.
type TaskProgress struct {
	Task *TaskDescription

	Pos    int
	Length int

	Percent float64

	BytesDone      int64
	BytesTotal     int64
	BytesPerSecond float64

	Started   time.Time
	Elapsed   time.Duration
	Remaining time.Duration

	// Note carries informational text such as a depth-limit hit.
	Note string
}

// NewTaskProgress creates a started record for task.
func NewTaskProgress(task *TaskDescription) *TaskProgress {
	p := &TaskProgress{Task: task}
	p.Start()
	return p
}

// Start resets the record and restarts its clock.
func (p *TaskProgress) Start() {
	task := p.Task
	*p = TaskProgress{Task: task, Started: time.Now(), Remaining: Unknown}
}

// SetPercent sets percent and recomputes elapsed time and ETA.
func (p *TaskProgress) SetPercent(percent float64) {
	p.Percent = clamp(percent)
	p.Elapsed = time.Since(p.Started)
	p.Remaining = eta(p.Percent, p.Elapsed)
}

// SetPosition derives percent from pos of length, adding the fraction of the
// item at pos that is already done.
func (p *TaskProgress) SetPosition(pos, length int, itemPercent float64) {
	p.Pos = pos
	p.Length = length
	p.SetPercent(Weighted(pos, length, itemPercent))
}

// SetBytes updates the byte counters and the transfer rate.
func (p *TaskProgress) SetBytes(done, total int64) {
	p.BytesDone = done
	p.BytesTotal = total
	p.BytesPerSecond = rate(done, time.Since(p.Started))
}

// Weighted maps the percent of item pos (1-based) into its slot of length
// equal slots.
func Weighted(pos, length int, itemPercent float64) float64 {
	if length <= 0 {
		return clamp(itemPercent)
	}
	if pos < 1 {
		pos = 1
	}
	return clamp(100*float64(pos-1)/float64(length) + clamp(itemPercent)/float64(length))
}

func eta(percent float64, elapsed time.Duration) time.Duration {
	ms := float64(elapsed.Milliseconds())
	if percent <= 0 || ms <= 0 {
		return Unknown
	}
	return time.Duration(math.Round((100-percent)/(percent/ms))) * time.Millisecond
}

func rate(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
