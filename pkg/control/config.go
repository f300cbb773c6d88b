package control

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-petpal/internal/log"
	"github.com/teslashibe/go-petpal/pkg/link"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// Well-known peer ids.
const (
	PeerRobot     = "robot"
	PeerAccessory = "accessory"
)

// PeerConfig describes one managed peer.
type PeerConfig struct {
	// ID keys the peer table and names the endpoint.
	ID string

	// Label is the display name used in status text, e.g. "Robot".
	// Defaults to the capitalized id.
	Label string

	Endpoint link.Endpoint
	Encoder  protocol.Encoder

	// ReconnectDelay is the fixed wait after every close.
	// Zero means link.DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// HeartbeatPeriod is the keepalive interval. Zero disables heartbeats.
	HeartbeatPeriod time.Duration
}

func (pc PeerConfig) normalized() PeerConfig {
	if pc.Endpoint.Name == "" {
		pc.Endpoint.Name = pc.ID
	}
	if pc.Label == "" && pc.ID != "" {
		pc.Label = strings.ToUpper(pc.ID[:1]) + pc.ID[1:]
	}
	return pc
}

// Validate checks that the peer can be built.
func (pc PeerConfig) Validate() error {
	if pc.ID == "" {
		return errors.New("control: peer id is required")
	}
	if pc.Endpoint.Name != "" && pc.Endpoint.Name != pc.ID {
		return fmt.Errorf("control: peer %s: endpoint name %q must match id", pc.ID, pc.Endpoint.Name)
	}
	if pc.ReconnectDelay < 0 {
		return fmt.Errorf("control: peer %s: reconnect delay must not be negative", pc.ID)
	}
	if pc.HeartbeatPeriod < 0 {
		return fmt.Errorf("control: peer %s: heartbeat period must not be negative", pc.ID)
	}
	return pc.normalized().Endpoint.Validate()
}

// Config holds Manager settings shared by all peers.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Dialer overrides the network dialer, mainly for tests.
	Dialer link.Dialer

	Clock  clockwork.Clock
	Logger *slog.Logger

	// InboxSize bounds each peer's inbound log.
	InboxSize int

	// OnStatus receives every status change. It is called synchronously
	// from the session and must not block.
	OnStatus func(PeerStatus)

	// OnMessage receives every inbound frame.
	OnMessage func(link.Inbound)
}

// Option is a functional option for configuring a Manager.
type Option func(*Config)

// WithDialer overrides the dialer used by every peer.
func WithDialer(d link.Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}

// WithClock overrides the time source.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithInboxSize sets the per-peer inbox capacity.
func WithInboxSize(n int) Option {
	return func(c *Config) {
		c.InboxSize = n
	}
}

// WithStatusListener registers a status change callback.
func WithStatusListener(fn func(PeerStatus)) Option {
	return func(c *Config) {
		c.OnStatus = fn
	}
}

// WithMessageListener registers an inbound frame callback.
func WithMessageListener(fn func(link.Inbound)) Option {
	return func(c *Config) {
		c.OnMessage = fn
	}
}

// DefaultConfig returns the default manager config.
func DefaultConfig() Config {
	return Config{
		Clock:     clockwork.NewRealClock(),
		Logger:    log.Component("control"),
		InboxSize: link.DefaultInboxSize,
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Clock == nil {
		return errors.New("control: clock required")
	}
	if c.Logger == nil {
		return errors.New("control: logger required")
	}
	if c.InboxSize <= 0 {
		return errors.New("control: inbox size must be positive")
	}
	return nil
}
