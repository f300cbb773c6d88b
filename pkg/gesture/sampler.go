// Package gesture turns continuous joystick displacement into discrete
// (direction, speed) samples for the robot.
package gesture

import (
	"math"
	"time"

	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// octants maps 45° bins, counted from 0° in screen coordinates (+y down),
// to robot direction codes.
var octants = [8]protocol.Direction{
	protocol.DirRight,         // 0°
	protocol.DirRightBackward, // 45°
	protocol.DirBackward,      // 90°
	protocol.DirLeftBackward,  // 135°
	protocol.DirLeft,          // 180°
	protocol.DirLeftForward,   // 225° (-135°)
	protocol.DirForward,       // 270° (-90°)
	protocol.DirRightForward,  // 315° (-45°)
}

// Sample is one emitted joystick reading.
type Sample struct {
	Direction protocol.Direction
	Speed     int
}

// Command converts the sample into the motion command it stands for.
func (s Sample) Command() protocol.Command {
	if s.Direction == protocol.DirStop {
		return protocol.Stop()
	}
	return protocol.Move(s.Direction, s.Speed)
}

// Octant maps an angle in degrees to a direction code. Every bin is
// half-open [c-22.5, c+22.5), so boundaries resolve to the bin that
// starts there.
func Octant(deg float64) protocol.Direction {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	bin := int(math.Floor((deg+22.5)/45)) % 8
	return octants[bin]
}

// Sampler converts the displacement stream of one gesture into samples.
// It is owned by the active gesture and is not safe for concurrent use.
type Sampler struct {
	cfg      Config
	lastEmit time.Time
	emitted  bool
}

// NewSampler creates a sampler with defaults overridden by opts.
func NewSampler(opts ...Option) (*Sampler, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{cfg: cfg}, nil
}

// Config returns the sampler configuration.
func (s *Sampler) Config() Config {
	return s.cfg
}

// Speed maps a displacement magnitude to the speed range. It is monotonic
// non-decreasing and saturates at MaxRadius.
func (s *Sampler) Speed(distance float64) int {
	distance = math.Min(math.Max(distance, 0), s.cfg.MaxRadius)
	return int(math.Floor(distance / s.cfg.MaxRadius * float64(s.cfg.SpeedCap)))
}

// Move consumes one pointer-move event. It reports false when the event is
// inside the dead zone or arrives before the throttle window has elapsed.
// Dropped events are not queued.
func (s *Sampler) Move(dx, dy float64) (Sample, bool) {
	distance := math.Min(math.Hypot(dx, dy), s.cfg.MaxRadius)
	if distance <= s.cfg.DeadZone {
		return Sample{}, false
	}

	now := s.cfg.Clock.Now()
	if s.emitted && now.Sub(s.lastEmit) < s.cfg.Interval {
		return Sample{}, false
	}
	s.lastEmit = now
	s.emitted = true

	deg := math.Atan2(dy, dx) * 180 / math.Pi
	return Sample{Direction: Octant(deg), Speed: s.Speed(distance)}, true
}

// Release ends the gesture. It always returns the stop sample, bypassing
// dead zone and throttle, and starts the next gesture with a fresh window.
func (s *Sampler) Release() Sample {
	s.emitted = false
	s.lastEmit = time.Time{}
	return Sample{Direction: protocol.DirStop, Speed: 0}
}
