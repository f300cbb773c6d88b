package link

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Supervisor reconnects a session a fixed delay after every close, forever,
// until disabled. At most one reconnect is pending at any time.
type Supervisor struct {
	session *Session
	delay   time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger

	mu       sync.Mutex
	pending  clockwork.Timer
	disabled bool
	attempts int
}

// NewSupervisor attaches a supervisor to s. A non-positive delay means
// DefaultReconnectDelay.
func NewSupervisor(s *Session, delay time.Duration) *Supervisor {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	sv := &Supervisor{
		session: s,
		delay:   delay,
		clock:   s.cfg.Clock,
		logger:  s.logger.With("component", "reconnect"),
	}
	s.Observe(sv.observe)
	return sv
}

// observe runs under the session lock and must not call into the session.
func (sv *Supervisor) observe(t Transition) {
	if t.To != StateClosed || t.Terminal {
		return
	}

	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.disabled || sv.pending != nil {
		return
	}
	sv.pending = sv.clock.AfterFunc(sv.delay, sv.fire)
	sv.logger.Debug("reconnect scheduled", "delay", sv.delay)
}

func (sv *Supervisor) fire() {
	sv.mu.Lock()
	sv.pending = nil
	if sv.disabled {
		sv.mu.Unlock()
		return
	}
	sv.attempts++
	attempt := sv.attempts
	sv.mu.Unlock()

	sv.logger.Info("reconnecting", "attempt", attempt)
	if err := sv.session.Connect(); err != nil {
		sv.logger.Debug("reconnect skipped", "error", err)
	}
}

// Disable cancels the pending reconnect, if any, and stops the supervisor
// for good.
func (sv *Supervisor) Disable() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.disabled = true
	if sv.pending != nil {
		sv.pending.Stop()
		sv.pending = nil
	}
}

// Attempts returns how many reconnects have been started.
func (sv *Supervisor) Attempts() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.attempts
}

// Pending reports whether a reconnect is scheduled.
func (sv *Supervisor) Pending() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.pending != nil
}

// Delay returns the fixed reconnect delay.
func (sv *Supervisor) Delay() time.Duration {
	return sv.delay
}
