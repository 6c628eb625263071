package queue

import (
	"errors"
	"fmt"

	"github.com/neptunelabs/fsi-client/internal/abort"
	"github.com/neptunelabs/fsi-client/internal/api"
	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/sink"
	"github.com/neptunelabs/fsi-client/internal/validation"
)

// ErrAlreadyRunning is returned by Run while a run is in progress.
var ErrAlreadyRunning = errors.New("queue is already running")

// StoppedError is returned when a run ends before its last item. Errors
// holds every error collected during the run; an aborted run contains
// abort.ErrAborted.
type StoppedError struct {
	Errors []error
	// Completed is the number of items that finished before the stop.
	Completed int
	Count     int
}

func (e *StoppedError) Error() string {
	if e.Aborted() {
		return fmt.Sprintf("queue aborted after %d of %d items", e.Completed, e.Count)
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("queue stopped: %v", e.Errors[0])
	}
	return fmt.Sprintf("queue stopped with %d errors", len(e.Errors))
}

func (e *StoppedError) Unwrap() []error { return e.Errors }

// Aborted reports whether the run was stopped by cancellation.
func (e *StoppedError) Aborted() bool {
	return errors.Is(e, abort.ErrAborted)
}

// ClassKey implements the classification used by prompts.
func (e *StoppedError) ClassKey() string {
	if e.Aborted() {
		return api.KeyAborted
	}
	return "stopped"
}

// Text renders the error for users.
func (e *StoppedError) Text(m messages.Supplier) string {
	if e.Aborted() {
		return m.Text(messages.ErrAborted)
	}
	return m.Text(messages.ErrStopped, len(e.Errors))
}

// ValidationError rejects a batch operation before any I/O.
type ValidationError struct {
	Op  string
	Key string
}

func (e *ValidationError) Error() string {
	switch e.Key {
	case messages.ErrRequiresLocal:
		return fmt.Sprintf("%s requires a batch of local entries only", e.Op)
	case messages.ErrRequiresRemote:
		return fmt.Sprintf("%s requires a batch of server entries only", e.Op)
	default:
		return fmt.Sprintf("%s: invalid batch", e.Op)
	}
}

// Text renders the error for users.
func (e *ValidationError) Text(m messages.Supplier) string {
	return m.Text(e.Key, e.Op)
}

// EntryError is the failure of one batch entry.
type EntryError struct {
	Op   string
	Path string
	Key  string
	Err  error
}

func newEntryError(op, path string, err error) *EntryError {
	return &EntryError{Op: op, Path: path, Key: classify(err), Err: err}
}

// classify returns the classification key of err. Errors without one are
// local I/O failures.
func classify(err error) string {
	if key := api.ClassKey(err); key != "" {
		return key
	}
	switch {
	case errors.Is(err, abort.ErrAborted):
		return api.KeyAborted
	case errors.Is(err, sink.ErrExists):
		return api.KeyConflict
	case errors.Is(err, models.ErrNotFound):
		return api.KeyNotFound
	case errors.Is(err, api.ErrInvalidPath), errors.Is(err, validation.ErrUnsafePath):
		return api.KeyInvalidPath
	default:
		return api.KeyLocalIO
	}
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// ClassKey returns the classification key of the underlying failure.
func (e *EntryError) ClassKey() string { return e.Key }

// Text renders the error for users.
func (e *EntryError) Text(m messages.Supplier) string {
	var ae *api.Error
	if errors.As(e.Err, &ae) {
		return ae.Text(m)
	}
	if e.Key == api.KeyConflict {
		return m.Text(messages.ErrConflict, e.Path)
	}
	return m.Text(messages.ErrLocalIO, e.Path, e.Err)
}

// cancelled marks an error the user chose to stop on; the run stops without
// asking again.
type cancelled struct{ err error }

func (c *cancelled) Error() string { return c.err.Error() }
func (c *cancelled) Unwrap() error { return c.err }

// ErrorText renders err with its own Text method when it has one.
func ErrorText(err error, m messages.Supplier) string {
	var t interface {
		Text(messages.Supplier) string
	}
	if errors.As(err, &t) {
		return t.Text(m)
	}
	return err.Error()
}
