package link

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// MockDialer implements Dialer for testing.
// Every successful dial returns a fresh MockChannel.
type MockDialer struct {
	// FailFunc decides whether dial number attempt (1-based) fails.
	// If nil, every dial succeeds.
	FailFunc func(attempt int) error

	// Hold, if non-nil, blocks each dial until it is closed or the dial
	// context ends.
	Hold chan struct{}

	// Tracking
	mu       sync.Mutex
	dials    []Endpoint
	channels []*MockChannel
	byPeer   map[string][]*MockChannel
}

// NewMockDialer creates a dialer that always succeeds.
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// Dial records the call and returns a MockChannel or the FailFunc error.
func (d *MockDialer) Dial(ctx context.Context, ep Endpoint) (Channel, error) {
	d.mu.Lock()
	d.dials = append(d.dials, ep)
	attempt := len(d.dials)
	d.mu.Unlock()

	if d.Hold != nil {
		select {
		case <-d.Hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.FailFunc != nil {
		if err := d.FailFunc(attempt); err != nil {
			return nil, err
		}
	}

	ch := NewMockChannel()
	d.mu.Lock()
	d.channels = append(d.channels, ch)
	if d.byPeer == nil {
		d.byPeer = make(map[string][]*MockChannel)
	}
	d.byPeer[ep.Name] = append(d.byPeer[ep.Name], ch)
	d.mu.Unlock()
	return ch, nil
}

// Dials returns the number of dial attempts.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// Channels returns every channel handed out, oldest first.
func (d *MockDialer) Channels() []*MockChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockChannel(nil), d.channels...)
}

// Last returns the most recent channel, or nil.
func (d *MockDialer) Last() *MockChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

// DialsTo returns the endpoints dialed so far, oldest first.
func (d *MockDialer) DialsTo() []Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Endpoint(nil), d.dials...)
}

// LastFor returns the most recent channel dialed for peer name, or nil.
func (d *MockDialer) LastFor(name string) *MockChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	chs := d.byPeer[name]
	if len(chs) == 0 {
		return nil
	}
	return chs[len(chs)-1]
}

// MockChannel implements Channel for testing. Inbound traffic and failures
// are injected with Deliver, PeerClose and Fail.
type MockChannel struct {
	// WriteErr, if set, is returned by every write.
	WriteErr error

	inbound chan []byte
	fail    chan error
	closed  chan struct{}

	// Tracking
	mu     sync.Mutex
	writes [][]byte
	closes int
}

// NewMockChannel creates an open channel.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		inbound: make(chan []byte, 16),
		fail:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

// ReadMessage returns injected frames until a failure is injected or the
// channel is closed.
func (c *MockChannel) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.fail:
		return nil, err
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

// WriteMessage records data unless the channel is closed or WriteErr is set.
func (c *MockChannel) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return net.ErrClosed
	}
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

// Close records the call. Only the first close unblocks readers.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closes == 1 {
		close(c.closed)
	}
	return nil
}

// Deliver injects an inbound text frame.
func (c *MockChannel) Deliver(text string) {
	c.inbound <- []byte(text)
}

// PeerClose simulates the peer closing the connection.
func (c *MockChannel) PeerClose() {
	c.Fail(fmt.Errorf("%w: mock peer went away", ErrPeerClosed))
}

// Fail makes the pending or next read return err.
func (c *MockChannel) Fail(err error) {
	select {
	case c.fail <- err:
	default:
	}
}

// Writes returns every written frame as text.
func (c *MockChannel) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// WriteCount returns the number of recorded writes.
func (c *MockChannel) WriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// CloseCount returns how many times Close was called.
func (c *MockChannel) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// WaitForWrites polls until at least n frames were written or timeout
// elapses. It reports whether the count was reached.
func (c *MockChannel) WaitForWrites(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.WriteCount() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return c.WriteCount() >= n
}
