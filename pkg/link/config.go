package link

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-petpal/internal/log"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// Defaults for a session and its helpers.
const (
	DefaultInboxSize       = 64
	DefaultReconnectDelay  = 3 * time.Second
	DefaultHeartbeatPeriod = time.Second
)

// Config holds Session settings.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Dialer opens channels. Defaults to a NetDialer.
	Dialer Dialer

	// Encoder turns commands into frames for this peer.
	Encoder protocol.Encoder

	// Clock stamps transitions and inbound frames.
	Clock clockwork.Clock

	Logger *slog.Logger

	// InboxSize bounds the number of retained inbound frames.
	InboxSize int

	// OnMessage is called from the reader goroutine for every inbound frame.
	OnMessage func(Inbound)

	// Observers receive every transition.
	Observers []Observer
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithDialer overrides the transport dialer.
func WithDialer(d Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}

// WithEncoder sets the wire encoder.
func WithEncoder(e protocol.Encoder) Option {
	return func(c *Config) {
		c.Encoder = e
	}
}

// WithClock overrides the time source.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithInboxSize sets the inbox capacity.
func WithInboxSize(n int) Option {
	return func(c *Config) {
		c.InboxSize = n
	}
}

// WithMessageHandler registers an inbound frame callback.
func WithMessageHandler(fn func(Inbound)) Option {
	return func(c *Config) {
		c.OnMessage = fn
	}
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		c.Observers = append(c.Observers, o)
	}
}

// DefaultConfig returns a config for a real network peer.
func DefaultConfig() Config {
	return Config{
		Dialer:    NewNetDialer(),
		Encoder:   protocol.Encoder{},
		Clock:     clockwork.NewRealClock(),
		Logger:    log.Component("link"),
		InboxSize: DefaultInboxSize,
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
	if c.Dialer == nil {
		return errors.New("link: dialer required")
	}
	if c.Clock == nil {
		return errors.New("link: clock required")
	}
	if c.Logger == nil {
		return errors.New("link: logger required")
	}
	if c.InboxSize <= 0 {
		return errors.New("link: inbox size must be positive")
	}
	return nil
}
