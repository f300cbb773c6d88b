package control

import "errors"

var (
	// ErrUnknownPeer is returned for a peer id that is not configured.
	ErrUnknownPeer = errors.New("control: unknown peer")

	// ErrShutdown is returned once the manager has been shut down.
	ErrShutdown = errors.New("control: manager shut down")

	// ErrDuplicatePeer is returned when two peers share an id.
	ErrDuplicatePeer = errors.New("control: duplicate peer id")
)
