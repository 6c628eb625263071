// Package abort provides the cooperative cancellation token shared by the
// operations of one queue run or one tree read.
package abort

import (
	"context"
	"errors"
	"sync"
)

// ErrAborted is returned once the user requested cancellation.
var ErrAborted = errors.New("aborted by user")

// State is the lifecycle state of a Token.
type State int

const (
	// Idle means the token has not been used yet.
	Idle State = iota
	// Armed means a signal handle was handed to an in-flight call.
	Armed
	// Released means the last call finished cleanly; the token is reusable.
	Released
	// Tripped means abort was requested. This state is permanent.
	Tripped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Released:
		return "released"
	case Tripped:
		return "tripped"
	default:
		return "unknown"
	}
}

// Token is a renewable cancellation flag. Every blocking call of a run borrows
// the context returned by Arm, so Trip cancels whatever is outstanding. After a
// trip the token hands out a fresh context; callers must poll Tripped or Check
// to learn that the run is over.
type Token struct {
	mu       sync.Mutex
	base     context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	state    State
	reported bool
	stop     func() bool
}

// New creates a token. Cancelling parent trips the token.
func New(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	t := &Token{base: context.WithoutCancel(parent)}
	t.stop = context.AfterFunc(parent, t.Trip)
	return t
}

// renew must be called with mu held.
func (t *Token) renew() {
	t.ctx, t.cancel = context.WithCancel(t.base)
}

// Arm returns the signal handle for the next in-flight call.
func (t *Token) Arm() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx == nil {
		t.renew()
	}
	if t.state != Tripped {
		t.state = Armed
	}
	return t.ctx
}

// Release marks the current call as finished. It returns false if the token
// was tripped in the meantime.
func (t *Token) Release() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Tripped {
		return false
	}
	t.state = Released
	return true
}

// Trip aborts the run: the outstanding handle is cancelled and a new one is
// armed in its place.
func (t *Token) Trip() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx == nil {
		t.renew()
	}
	t.state = Tripped
	t.cancel()
	t.renew()
}

// Tripped reports whether abort was requested.
func (t *Token) Tripped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Tripped
}

// State returns the current lifecycle state.
func (t *Token) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Check returns ErrAborted the first time it is called on a tripped token and
// nil on every other call.
func (t *Token) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Tripped || t.reported {
		return nil
	}
	t.reported = true
	return ErrAborted
}

// Wrap maps a context cancellation caused by Trip onto ErrAborted. Other
// errors are returned unchanged.
func (t *Token) Wrap(err error) error {
	if err == nil || errors.Is(err, ErrAborted) {
		return err
	}
	if errors.Is(err, context.Canceled) && t.Tripped() {
		return ErrAborted
	}
	return err
}

// Close detaches the token from its parent context and cancels the current
// handle.
func (t *Token) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		t.stop()
	}
	if t.cancel != nil {
		t.cancel()
	}
}

// IsAborted reports whether err is or wraps ErrAborted.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
