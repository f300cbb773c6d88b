// Package control owns the links to every peer and exposes one command API
// over them.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/teslashibe/go-petpal/pkg/link"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// peer is the session, supervisor and heartbeat of one peer id.
type peer struct {
	cfg        PeerConfig
	session    *link.Session
	supervisor *link.Supervisor
	heartbeat  *link.Heartbeat
}

// Manager is the connection manager. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	peers    map[string]*peer
	order    []string
	started  bool
	shutdown bool
}

// New builds an idle manager for peers. Call Start to connect.
func New(peers []PeerConfig, opts ...Option) (*Manager, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		peers:  make(map[string]*peer, len(peers)),
	}
	for _, pc := range peers {
		if _, ok := m.peers[pc.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePeer, pc.ID)
		}
		p, err := m.build(pc)
		if err != nil {
			return nil, err
		}
		m.peers[pc.ID] = p
		m.order = append(m.order, pc.ID)
	}
	return m, nil
}

// build wires a session with its supervisor and heartbeat.
func (m *Manager) build(pc PeerConfig) (*peer, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	pc = pc.normalized()

	p := &peer{cfg: pc}
	opts := []link.Option{
		link.WithEncoder(pc.Encoder),
		link.WithClock(m.cfg.Clock),
		link.WithLogger(m.logger),
		link.WithInboxSize(m.cfg.InboxSize),
		link.WithObserver(func(t link.Transition) { m.publish(p, t) }),
	}
	if m.cfg.Dialer != nil {
		opts = append(opts, link.WithDialer(m.cfg.Dialer))
	}
	if m.cfg.OnMessage != nil {
		opts = append(opts, link.WithMessageHandler(m.cfg.OnMessage))
	}

	s, err := link.NewSession(pc.Endpoint, opts...)
	if err != nil {
		return nil, err
	}
	p.session = s
	p.supervisor = link.NewSupervisor(s, pc.ReconnectDelay)
	p.heartbeat = link.NewHeartbeat(s, pc.HeartbeatPeriod)
	return p, nil
}

// publish runs inside a session transition, so it must not call back into
// the session.
func (m *Manager) publish(p *peer, t link.Transition) {
	if m.cfg.OnStatus == nil || t.Terminal {
		return
	}
	st := PeerStatus{
		ID:     p.cfg.ID,
		Label:  StatusLabel(p.cfg.Label, t.To, t.Err),
		State:  t.To.String(),
		URL:    p.cfg.Endpoint.URL(),
		ConnID: t.ConnID,
		At:     t.At,
	}
	if t.Err != nil {
		st.LastError = t.Err.Error()
	}
	if p.supervisor != nil {
		st.Attempts = p.supervisor.Attempts()
	}
	m.cfg.OnStatus(st)
}

func (m *Manager) peer(id string) (*peer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.shutdown {
		return nil, ErrShutdown
	}
	p, ok := m.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	return p, nil
}

// Start connects every peer. Supervisors keep them connected afterwards.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrShutdown
	}
	m.started = true
	peers := m.snapshot()
	m.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.session.Connect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// snapshot returns peers in configuration order. The caller must hold mu.
func (m *Manager) snapshot() []*peer {
	out := make([]*peer, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.peers[id])
	}
	return out
}

// IDs returns the configured peer ids in order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Send queues cmd for peer id. A peer that is not open rejects the command
// with link.ErrNotConnected.
func (m *Manager) Send(id string, cmd protocol.Command) error {
	p, err := m.peer(id)
	if err != nil {
		return err
	}
	if err := p.session.Send(cmd); err != nil {
		m.logger.Debug("command dropped", "peer", id, "command", cmd.String(), "error", err)
		return err
	}
	return nil
}

// SendMove drives the robot in direction at speed.
func (m *Manager) SendMove(id string, direction protocol.Direction, speed int) error {
	return m.Send(id, protocol.Move(direction, speed))
}

// SendStop halts motion.
func (m *Manager) SendStop(id string) error {
	return m.Send(id, protocol.Stop())
}

// SendMode selects a driving mode.
func (m *Manager) SendMode(id string, mode protocol.Mode) error {
	return m.Send(id, protocol.SetMode(mode))
}

// SendAccessory drives an accessory subsystem.
func (m *Manager) SendAccessory(id string, sub protocol.Subsystem, value int) error {
	return m.Send(id, protocol.Actuate(sub, value))
}

// Status returns the link state of peer id.
func (m *Manager) Status(id string) (link.State, error) {
	p, err := m.peer(id)
	if err != nil {
		return link.StateIdle, err
	}
	return p.session.State(), nil
}

// Peer returns the full status of peer id.
func (m *Manager) Peer(id string) (PeerStatus, error) {
	p, err := m.peer(id)
	if err != nil {
		return PeerStatus{}, err
	}
	return m.status(p), nil
}

// Statuses returns the status of every peer in configuration order.
func (m *Manager) Statuses() []PeerStatus {
	m.mu.RLock()
	peers := m.snapshot()
	m.mu.RUnlock()

	out := make([]PeerStatus, 0, len(peers))
	for _, p := range peers {
		out = append(out, m.status(p))
	}
	return out
}

func (m *Manager) status(p *peer) PeerStatus {
	state := p.session.State()
	lastErr := p.session.LastError()
	st := PeerStatus{
		ID:       p.cfg.ID,
		Label:    StatusLabel(p.cfg.Label, state, lastErr),
		State:    state.String(),
		URL:      p.cfg.Endpoint.URL(),
		Attempts: p.supervisor.Attempts(),
		ConnID:   p.session.ConnID(),
		Stats:    p.session.Stats(),
		At:       m.cfg.Clock.Now(),
	}
	if lastErr != nil && state == link.StateClosed {
		st.LastError = lastErr.Error()
	}
	return st
}

// Inbox returns the retained inbound frames of peer id.
func (m *Manager) Inbox(id string) ([]link.Inbound, error) {
	p, err := m.peer(id)
	if err != nil {
		return nil, err
	}
	return p.session.Inbox(), nil
}

// Reconfigure replaces peer id with pc. An unchanged config is a no-op and
// an unknown id adds a peer. The old session is torn down before the new one
// connects.
func (m *Manager) Reconfigure(ctx context.Context, id string, pc PeerConfig) error {
	if pc.ID == "" {
		pc.ID = id
	}
	if pc.ID != id {
		return fmt.Errorf("control: reconfigure %s: config is for peer %s", id, pc.ID)
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrShutdown
	}
	old, exists := m.peers[pc.ID]
	if exists && reflect.DeepEqual(old.cfg, pc.normalized()) {
		m.mu.Unlock()
		return nil
	}

	p, err := m.build(pc)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.peers[pc.ID] = p
	if !exists {
		m.order = append(m.order, pc.ID)
	}
	started := m.started
	m.mu.Unlock()

	if exists {
		m.logger.Info("peer reconfigured", "peer", pc.ID, "url", p.cfg.Endpoint.URL())
		if err := stop(ctx, old); err != nil {
			return err
		}
	}
	if started {
		return p.session.Connect()
	}
	return nil
}

// Shutdown stops every peer. All supervisors are disabled before any
// session closes, so no reconnect can start during shutdown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	peers := m.snapshot()
	m.mu.Unlock()

	for _, p := range peers {
		p.supervisor.Disable()
	}
	for _, p := range peers {
		p.session.Teardown()
	}

	var errs []error
	for _, p := range peers {
		if err := p.session.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", p.cfg.ID, err))
		}
	}
	m.logger.Info("connection manager stopped", "peers", len(peers))
	return errors.Join(errs...)
}

func stop(ctx context.Context, p *peer) error {
	p.supervisor.Disable()
	p.session.Teardown()
	return p.session.Wait(ctx)
}
