package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Infof("listed %d entries", 3)

	if !strings.Contains(buf.String(), "listed 3 entries") {
		t.Errorf("output = %q, want it to contain the message", buf.String())
	}
}

func TestSetOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := NewLogger(&first)
	l.SetOutput(&second)
	l.Warn().Str("dir", "images/").Msg("skipped")

	if first.Len() != 0 {
		t.Errorf("old output received %q", first.String())
	}
	if !strings.Contains(second.String(), "skipped") || !strings.Contains(second.String(), "images/") {
		t.Errorf("new output = %q, want message and field", second.String())
	}
	if l.Output() != &second {
		t.Error("Output() does not return the new writer")
	}
}

func TestChildCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf).Child(NewLogger(&buf).With().Str("run", "r1"))
	l.Info().Msg("started")

	if !strings.Contains(buf.String(), "r1") {
		t.Errorf("output = %q, want run field", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Errorf("ignored %s", "x")
	l.Info().Msg("ignored")
}
