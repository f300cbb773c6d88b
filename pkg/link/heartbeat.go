package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// Heartbeat sends a keepalive while its session is open. Each run is tied
// to one channel generation, so a tick that races a close is rejected by the
// session instead of reaching the next channel.
type Heartbeat struct {
	session *Session
	period  time.Duration
	clock   clockwork.Clock

	mu   sync.Mutex
	stop chan struct{}

	sent     atomic.Uint64
	rejected atomic.Uint64
}

// NewHeartbeat attaches a heartbeat to s. A zero period disables it.
func NewHeartbeat(s *Session, period time.Duration) *Heartbeat {
	h := &Heartbeat{
		session: s,
		period:  period,
		clock:   s.cfg.Clock,
	}
	if period > 0 {
		s.Observe(h.observe)
	}
	return h
}

func (h *Heartbeat) observe(t Transition) {
	switch {
	case t.To == StateOpen:
		h.start(t.Gen)
	case t.From == StateOpen:
		h.halt()
	}
}

func (h *Heartbeat) start(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.haltLocked()

	stop := make(chan struct{})
	h.stop = stop
	ticker := h.clock.NewTicker(h.period)
	go h.run(gen, ticker, stop)
}

func (h *Heartbeat) halt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.haltLocked()
}

func (h *Heartbeat) haltLocked() {
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
}

func (h *Heartbeat) run(gen uint64, ticker clockwork.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
		}

		select {
		case <-stop:
			return
		default:
		}

		if err := h.session.send(gen, protocol.Heartbeat()); err != nil {
			h.rejected.Add(1)
			continue
		}
		h.sent.Add(1)
	}
}

// Running reports whether a ticker is active.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop != nil
}

// Sent returns the number of heartbeats queued.
func (h *Heartbeat) Sent() uint64 {
	return h.sent.Load()
}

// Rejected returns the number of ticks refused by the session.
func (h *Heartbeat) Rejected() uint64 {
	return h.rejected.Load()
}
