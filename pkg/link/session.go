package link

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// Stats counts traffic over the lifetime of a session.
type Stats struct {
	Sent      uint64 `json:"sent"`
	Coalesced uint64 `json:"coalesced"`
	Rejected  uint64 `json:"rejected"`
	Received  uint64 `json:"received"`
}

// Session is a best-effort control link to one peer.
//
// All state changes go through transition while mu is held. Dial, read and
// write goroutines only report results back; results that belong to a
// previous channel are dropped.
type Session struct {
	ep     Endpoint
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	lastErr    error
	gen        uint64
	connID     string
	cur        *conn
	cancelDial context.CancelFunc
	tornDown   bool
	observers  []Observer
	done       chan struct{}

	inbox *inbox

	sent      atomic.Uint64
	coalesced atomic.Uint64
	rejected  atomic.Uint64
	received  atomic.Uint64
}

// conn is one underlying channel and its writer queue.
type conn struct {
	gen  uint64
	id   string
	ch   Channel
	out  *outbox
	quit chan struct{}
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.quit)
		c.ch.Close()
	})
}

// NewSession builds an idle session for ep.
func NewSession(ep Endpoint, opts ...Option) (*Session, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Session{
		ep:        ep,
		cfg:       cfg,
		logger:    cfg.Logger.With("peer", ep.Name),
		observers: append([]Observer(nil), cfg.Observers...),
		done:      make(chan struct{}),
		inbox:     newInbox(cfg.InboxSize),
	}, nil
}

// Endpoint returns the peer address.
func (s *Session) Endpoint() Endpoint {
	return s.ep
}

// Observe registers an observer for all future transitions.
func (s *Session) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the reason of the most recent close, nil when the close
// was requested locally or the session never closed.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ConnID returns the id of the current or most recent connect attempt.
func (s *Session) ConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Inbox returns the retained inbound frames, oldest first.
func (s *Session) Inbox() []Inbound {
	return s.inbox.snapshot()
}

// Stats returns traffic counters.
func (s *Session) Stats() Stats {
	return Stats{
		Sent:      s.sent.Load(),
		Coalesced: s.coalesced.Load(),
		Rejected:  s.rejected.Load(),
		Received:  s.received.Load(),
	}
}

// Done is closed once the session has been torn down and is idle.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until teardown completes or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect starts an asynchronous dial. It is a no-op unless the session is
// Idle or Closed, and fails with ErrTornDown after Teardown.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tornDown {
		return ErrTornDown
	}
	if s.state != StateIdle && s.state != StateClosed {
		return nil
	}

	s.gen++
	s.connID = uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	s.transition(StateConnecting, nil)

	go s.dial(ctx, s.gen, s.connID)
	return nil
}

// Send queues cmd for the current channel. It never blocks on the network.
func (s *Session) Send(cmd protocol.Command) error {
	return s.send(0, cmd)
}

// send queues cmd if the session is open and, when gen is non-zero, still
// on channel generation gen.
func (s *Session) send(gen uint64, cmd protocol.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cur
	if s.state != StateOpen || c == nil || (gen != 0 && gen != c.gen) {
		s.rejected.Add(1)
		s.logger.Debug("send rejected", "command", cmd.String(), "state", s.state.String())
		return &Error{
			Op:   "send",
			Peer: s.ep.Name,
			Kind: ErrNotConnected,
			Err:  fmt.Errorf("state %s", s.state),
		}
	}

	if c.out.push(frame{data: s.cfg.Encoder.Encode(cmd), motion: cmd.IsMotion()}) {
		s.coalesced.Add(1)
	}
	return nil
}

// ForceClose closes the active channel or abandons the dial in progress.
// The session ends up Closed.
func (s *Session) ForceClose() {
	s.mu.Lock()
	c, cancel := s.beginClose()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		c.close()
	}
}

// Teardown closes the session for good. Done is closed once it is idle.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true

	var (
		c      *conn
		cancel context.CancelFunc
	)
	switch s.state {
	case StateIdle:
		close(s.done)
	case StateClosed:
		s.transition(StateIdle, nil)
	default:
		c, cancel = s.beginClose()
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		c.close()
	}
}

// beginClose moves an active session to Closing. The caller must hold mu
// and, after releasing it, run the returned cancel and close the conn.
func (s *Session) beginClose() (*conn, context.CancelFunc) {
	switch s.state {
	case StateConnecting:
		s.transition(StateClosing, nil)
		return nil, s.cancelDial
	case StateOpen:
		s.transition(StateClosing, nil)
		return s.cur, nil
	}
	return nil, nil
}

// transition is the only place state changes. The caller must hold mu.
func (s *Session) transition(to State, err error) {
	from := s.state
	s.state = to
	if to == StateClosed {
		s.lastErr = err
	}

	t := Transition{
		Peer:     s.ep.Name,
		From:     from,
		To:       to,
		Err:      err,
		At:       s.cfg.Clock.Now(),
		ConnID:   s.connID,
		Gen:      s.gen,
		Terminal: s.tornDown,
	}

	switch {
	case to == StateConnecting:
		s.logger.Info("connecting", "url", s.ep.URL(), "conn", s.connID)
	case to == StateOpen:
		s.logger.Info("link open", "conn", s.connID)
	case to == StateClosed && err != nil:
		s.logger.Warn("link closed", "conn", s.connID, "error", err)
	case to == StateClosed:
		s.logger.Info("link closed", "conn", s.connID)
	}

	for _, o := range s.observers {
		o(t)
	}

	switch {
	case to == StateClosed && s.tornDown:
		s.transition(StateIdle, nil)
	case to == StateIdle && s.tornDown:
		close(s.done)
	}
}

func (s *Session) dial(ctx context.Context, gen uint64, id string) {
	ch, err := s.cfg.Dialer.Dial(ctx, s.ep)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || (s.state != StateConnecting && s.state != StateClosing) {
		if ch != nil {
			ch.Close()
		}
		return
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}

	if s.state == StateClosing {
		if ch != nil {
			ch.Close()
		}
		s.transition(StateClosed, nil)
		return
	}
	if err != nil {
		s.transition(StateClosed, &Error{Op: "dial", Peer: s.ep.Name, Kind: ErrConnectFailure, Err: err})
		return
	}

	c := &conn{
		gen:  gen,
		id:   id,
		ch:   ch,
		out:  newOutbox(),
		quit: make(chan struct{}),
	}
	s.cur = c
	s.transition(StateOpen, nil)

	go s.readLoop(c)
	go s.writeLoop(c)
}

func (s *Session) readLoop(c *conn) {
	for {
		data, err := c.ch.ReadMessage()
		if err != nil {
			s.channelFailed(c, "read", err)
			return
		}

		s.mu.Lock()
		live := s.cur == c && s.state == StateOpen
		s.mu.Unlock()
		if !live {
			continue
		}

		s.received.Add(1)
		m := Inbound{
			Peer:   s.ep.Name,
			ConnID: c.id,
			Text:   string(data),
			At:     s.cfg.Clock.Now(),
		}
		s.inbox.add(m)
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(m)
		}
	}
}

func (s *Session) writeLoop(c *conn) {
	for {
		select {
		case <-c.quit:
			return
		case <-c.out.ready:
		}

		for {
			select {
			case <-c.quit:
				return
			default:
			}

			f, ok := c.out.pop()
			if !ok {
				break
			}
			if err := c.ch.WriteMessage(f.data); err != nil {
				s.channelFailed(c, "write", err)
				return
			}
			s.sent.Add(1)
		}
	}
}

// channelFailed ends channel c. Only the first report for the current
// channel moves the session to Closed.
func (s *Session) channelFailed(c *conn, op string, err error) {
	c.close()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != c {
		return
	}
	s.cur = nil

	switch s.state {
	case StateOpen:
		s.transition(StateClosed, classify(s.ep.Name, op, err))
	case StateClosing:
		s.transition(StateClosed, nil)
	}
}
