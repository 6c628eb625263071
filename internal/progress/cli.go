package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/neptunelabs/fsi-client/internal/messages"
)

// CLIProgress renders queue progress as a single percentage bar. It is used
// when the multi-bar display is disabled.
type CLIProgress struct {
	bar      *progressbar.ProgressBar
	out      io.Writer
	messages messages.Supplier
}

// NewCLIProgress creates a bar writing to out, or stderr when out is nil.
func NewCLIProgress(out io.Writer, m messages.Supplier) *CLIProgress {
	if out == nil {
		out = os.Stderr
	}
	return &CLIProgress{out: out, messages: m}
}

func (p *CLIProgress) start() {
	p.bar = progressbar.NewOptions(1000,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Report moves the bar to the run's percent.
func (p *CLIProgress) Report(q *QueueProgress) {
	if p.bar == nil {
		p.start()
	}
	desc := fmt.Sprintf("[%d/%d] %s", q.ItemIndex, q.ItemCount, truncate(q.Describe(p.messages), 60))
	if q.Remaining > 0 {
		desc += " ETA " + q.Remaining.Round(time.Second).String()
	}
	p.bar.Describe(desc)
	_ = p.bar.Set(int(q.Percent * 10))
}

// Writer returns the bar's output.
func (p *CLIProgress) Writer() io.Writer {
	return p.out
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// NoOpProgress discards all progress.
type NoOpProgress struct{}

// Report does nothing.
func (NoOpProgress) Report(*QueueProgress) {}

// Writer returns stderr.
func (NoOpProgress) Writer() io.Writer { return os.Stderr }

// Finish does nothing.
func (NoOpProgress) Finish() {}
