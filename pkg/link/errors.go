package link

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every failure of a link is one of these kinds; all of
// them are routine and drive status display and reconnects.
var (
	// ErrConnectFailure is returned when the peer cannot be reached at dial time.
	ErrConnectFailure = errors.New("link: connect failure")

	// ErrTransport is a mid-session I/O fault.
	ErrTransport = errors.New("link: transport error")

	// ErrPeerClosed is a graceful or abrupt close from the other end.
	ErrPeerClosed = errors.New("link: peer closed")

	// ErrNotConnected is returned by Send when the session is not open.
	ErrNotConnected = errors.New("link: not connected")

	// ErrTornDown is returned by Connect after Teardown.
	ErrTornDown = errors.New("link: session torn down")
)

// Error carries the failing operation and peer alongside the kind.
// errors.Is matches both the kind sentinel and the underlying cause.
type Error struct {
	Op   string // "dial", "read", "write", "send"
	Peer string
	Kind error
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%v [%s %s]", e.Kind, e.Peer, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classify turns a channel failure into a typed link error.
func classify(peer, op string, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	kind := ErrTransport
	if errors.Is(err, ErrPeerClosed) {
		kind = ErrPeerClosed
	}
	return &Error{Op: op, Peer: peer, Kind: kind, Err: err}
}
