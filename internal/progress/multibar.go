package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/neptunelabs/fsi-client/internal/messages"
)

// Reporter renders queue progress.
type Reporter interface {
	Report(p *QueueProgress)
	// Writer returns a writer that prints above the progress display.
	Writer() io.Writer
	Finish()
}

// MultiBar shows one bar for the whole queue and one for the file being
// transferred. On a non-terminal it prints one line per started step instead.
type MultiBar struct {
	progress   *mpb.Progress
	overall    *mpb.Bar
	file       *mpb.Bar
	isTerminal bool
	messages   messages.Supplier

	mu       sync.Mutex
	label    string
	fileName string
	lastItem int
	lastTask *TaskDescription
}

// NewMultiBar creates the display on stderr.
func NewMultiBar(m messages.Supplier) *MultiBar {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSI(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	u := &MultiBar{
		progress:   p,
		isTerminal: isTerminal,
		messages:   m,
	}
	if isTerminal {
		u.overall = p.New(1000,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(decor.Statistics) string { return u.currentLabel() }, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("%6.2f%%", float64(s.Current)/10)
				}, decor.WCSyncSpace),
			),
		)
	}
	return u
}

func (u *MultiBar) currentLabel() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.label
}

func (u *MultiBar) currentFile() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fileName
}

// Report updates the bars from p.
func (u *MultiBar) Report(p *QueueProgress) {
	desc := p.Describe(u.messages)

	u.mu.Lock()
	u.label = fmt.Sprintf("[%d/%d] %s", p.ItemIndex, p.ItemCount, truncate(p.Task.Render(u.messages), 50))
	newItem := p.ItemIndex != u.lastItem
	newTask := p.Sub != nil && p.Sub.Task != u.lastTask
	u.lastItem = p.ItemIndex
	if p.Sub != nil {
		u.lastTask = p.Sub.Task
	}
	u.mu.Unlock()

	if !u.isTerminal {
		if newItem || newTask {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", p.ItemIndex, p.ItemCount, desc)
		}
		return
	}

	u.overall.SetCurrent(int64(p.Percent * 10))

	if p.Sub == nil || p.Sub.BytesTotal <= 0 {
		return
	}
	if newTask || u.file == nil {
		u.completeFile()
		u.mu.Lock()
		u.fileName = truncate(p.Sub.Task.Render(u.messages), 60)
		u.mu.Unlock()
		u.file = u.progress.New(p.Sub.BytesTotal,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(decor.Statistics) string { return u.currentFile() }, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.AverageSpeed(decor.SizeB1024(0), "% .1f", decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	}
	u.file.SetCurrent(p.Sub.BytesDone)
	if p.Sub.BytesDone >= p.Sub.BytesTotal {
		u.completeFile()
	}
}

func (u *MultiBar) completeFile() {
	if u.file == nil {
		return
	}
	if !u.file.Completed() {
		u.file.SetTotal(-1, true)
	}
	u.file = nil
}

// Writer returns a writer that prints above the bars.
func (u *MultiBar) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

// Finish completes all bars and waits for the final render.
func (u *MultiBar) Finish() {
	u.completeFile()
	if u.overall != nil && !u.overall.Completed() {
		u.overall.SetTotal(-1, true)
	}
	u.progress.Wait()
}

func truncate(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	r := []rune(s)
	return "…" + strings.TrimSpace(string(r[len(r)-max+1:]))
}
