// Package link maintains best-effort control channels to embedded peers.
//
// A Session owns one connection to one peer and moves through an explicit
// state machine. A Supervisor reconnects a session after it closes and a
// Heartbeat keeps an open session alive. Nothing here acknowledges, retries,
// or orders delivery beyond writing frames in send order.
package link

import "time"

// State is the connection state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transition describes one state change of a Session.
type Transition struct {
	Peer string
	From State
	To   State

	// Err is the reason for entering Closed. Nil for a locally requested close.
	Err error

	At time.Time

	// ConnID identifies the connect attempt, Gen the underlying channel.
	ConnID string
	Gen    uint64

	// Terminal is set once the session has been torn down. No reconnect
	// should follow a terminal transition.
	Terminal bool
}

// Observer receives transitions synchronously and in order. Observers run
// inside the session's transition and must not block or call back into the
// session.
type Observer func(Transition)

// Inbound is one text frame received from a peer.
type Inbound struct {
	Peer   string    `json:"peer"`
	ConnID string    `json:"conn_id"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}
