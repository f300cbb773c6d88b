package link

import (
	"context"
	"fmt"
	"time"
)

// Channel is one established, exclusively owned connection to a peer.
// ReadMessage is called from a single reader goroutine and WriteMessage
// from a single writer goroutine. Close may be called concurrently with
// both and must unblock ReadMessage.
type Channel interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens channels. Implementations must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (Channel, error)
}

// Default transport settings.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultKeepAlive    = 15 * time.Second
	DefaultWriteTimeout = 2 * time.Second
	DefaultReadLimit    = 64 * 1024
)

// NetDialer dials real peers over TCP or websocket.
type NetDialer struct {
	DialTimeout  time.Duration
	KeepAlive    time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

// NewNetDialer returns a NetDialer with defaults suited to a phone hotspot.
func NewNetDialer() *NetDialer {
	return &NetDialer{
		DialTimeout:  DefaultDialTimeout,
		KeepAlive:    DefaultKeepAlive,
		WriteTimeout: DefaultWriteTimeout,
		ReadLimit:    DefaultReadLimit,
	}
}

// Dial opens a channel using the endpoint's transport.
func (d *NetDialer) Dial(ctx context.Context, ep Endpoint) (Channel, error) {
	switch ep.Transport {
	case TransportWS:
		return d.dialWS(ctx, ep)
	case TransportTCP:
		return d.dialTCP(ctx, ep)
	default:
		return nil, fmt.Errorf("unsupported transport %q", ep.Transport)
	}
}
