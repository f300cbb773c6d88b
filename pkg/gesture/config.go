package gesture

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// Config holds GestureSampler parameters.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// DeadZone is the displacement at or below which motion is ignored.
	DeadZone float64

	// MaxRadius is the displacement that maps to full speed. Larger
	// displacements are clamped to it.
	MaxRadius float64

	// Interval is the minimum time between two emitted samples.
	Interval time.Duration

	// SpeedCap is the speed emitted at MaxRadius. It decouples UI
	// sensitivity from the wire range and must not exceed protocol.MaxSpeed.
	SpeedCap int

	// Clock is the time source for throttling.
	Clock clockwork.Clock
}

// Option is a functional option for configuring a Sampler.
type Option func(*Config)

// WithDeadZone sets the dead-zone radius.
func WithDeadZone(d float64) Option {
	return func(c *Config) {
		c.DeadZone = d
	}
}

// WithMaxRadius sets the full-speed radius.
func WithMaxRadius(r float64) Option {
	return func(c *Config) {
		c.MaxRadius = r
	}
}

// WithInterval sets the minimum inter-emission interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

// WithSpeedCap sets the top emitted speed.
func WithSpeedCap(speedCap int) Option {
	return func(c *Config) {
		c.SpeedCap = speedCap
	}
}

// WithClock overrides the time source.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// DefaultConfig matches the on-screen joystick: 60 unit radius thumb,
// 10 unit dead zone, at most one command every 60ms.
func DefaultConfig() Config {
	return Config{
		DeadZone:  10,
		MaxRadius: 60,
		Interval:  60 * time.Millisecond,
		SpeedCap:  protocol.MaxSpeed,
		Clock:     clockwork.NewRealClock(),
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
	if c.MaxRadius <= 0 {
		return errors.New("gesture: max radius must be positive")
	}
	if c.DeadZone < 0 || c.DeadZone >= c.MaxRadius {
		return fmt.Errorf("gesture: dead zone %.1f must be in [0, %.1f)", c.DeadZone, c.MaxRadius)
	}
	if c.SpeedCap < 0 || c.SpeedCap > protocol.MaxSpeed {
		return fmt.Errorf("gesture: speed cap %d must be in [0, %d]", c.SpeedCap, protocol.MaxSpeed)
	}
	if c.Interval < 0 {
		return errors.New("gesture: interval must not be negative")
	}
	if c.Clock == nil {
		return errors.New("gesture: clock required")
	}
	return nil
}
