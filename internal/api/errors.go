package api

import (
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/neptunelabs/fsi-client/internal/messages"
	"github.com/neptunelabs/fsi-client/internal/models"
)

// Classification keys of *Error. The queue caches "apply to all" decisions
// per key.
const (
	KeyInvalidPath     = "invalidPath"
	KeyHTTPStatus      = "httpStatus"
	KeyConflict        = "conflict"
	KeyNotFound        = "notFound"
	KeyInvalidResponse = "invalidResponse"
	KeyRequestFailed   = "requestFailed"
	KeyLocalIO         = "localIO"
	KeyAborted         = "aborted"
)

var (
	// ErrNotLoggedIn is returned for calls that need a session when none
	// was established.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrInvalidPath is returned before any request is sent when a path or
	// name cannot be used with the server.
	ErrInvalidPath = errors.New("invalid path")
)

// Error is a failed server call.
type Error struct {
	Key    string
	Status int
	Method string
	// Subject is the entry or endpoint the call was about.
	Subject string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status > 0:
		return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.Subject, e.Key, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Subject, e.Key, e.Err)
	default:
		return fmt.Sprintf("%s %s: %s", e.Method, e.Subject, e.Key)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus makes the error classifiable by the retry helpers.
func (e *Error) HTTPStatus() int { return e.Status }

// ClassKey returns the classification key.
func (e *Error) ClassKey() string { return e.Key }

// Text renders the error for users.
func (e *Error) Text(m messages.Supplier) string {
	switch e.Key {
	case KeyConflict:
		return m.Text(messages.ErrConflict, e.Subject)
	case KeyNotFound:
		return m.Text(messages.ErrNotFound, e.Subject)
	case KeyInvalidResponse:
		return m.Text(messages.ErrInvalidResponse, e.Subject)
	case KeyRequestFailed:
		return m.Text(messages.ErrRequestFailed, e.Subject, e.Err)
	case KeyInvalidPath:
		return m.Text(messages.ErrInvalidPath, e.Subject)
	case KeyLocalIO:
		return m.Text(messages.ErrLocalIO, e.Subject, e.Err)
	case KeyAborted:
		return m.Text(messages.ErrAborted)
	default:
		return m.Text(messages.ErrHTTPStatus, e.Subject, e.Status)
	}
}

// keyForStatus maps a failing HTTP status onto a classification key.
func keyForStatus(status int) string {
	switch status {
	case nethttp.StatusConflict, nethttp.StatusPreconditionFailed:
		return KeyConflict
	case nethttp.StatusNotFound, nethttp.StatusGone:
		return KeyNotFound
	default:
		return KeyHTTPStatus
	}
}

func statusError(method, subject string, status int) *Error {
	e := &Error{Key: keyForStatus(status), Status: status, Method: method, Subject: subject}
	if e.Key == KeyNotFound {
		e.Err = models.ErrNotFound
	}
	return e
}

func invalidPath(subject string, err error) *Error {
	return &Error{Key: KeyInvalidPath, Subject: subject, Err: errors.Join(ErrInvalidPath, err)}
}

// ClassKey returns the classification key of err, "" if it has none.
func ClassKey(err error) string {
	var k interface{ ClassKey() string }
	if errors.As(err, &k) {
		return k.ClassKey()
	}
	return ""
}

// Status returns the HTTP status carried by err, 0 if none.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsConflict reports whether err is a name conflict on the server.
func IsConflict(err error) bool {
	return ClassKey(err) == KeyConflict
}

// IsNotFound reports whether err is a missing entry on the server.
func IsNotFound(err error) bool {
	return ClassKey(err) == KeyNotFound
}
