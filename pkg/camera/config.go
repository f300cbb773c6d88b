// Package camera publishes the robot's camera feed location and checks that
// the feed is reachable. Frames themselves go straight from the robot to the
// UI and never pass through this service.
package camera

import (
	"net/url"
	"time"
)

// DefaultStreamURL is the MJPEG endpoint of the robot's camera board.
const DefaultStreamURL = "http://192.168.4.1:81/stream"

// DefaultProbeTimeout bounds one reachability probe.
const DefaultProbeTimeout = 3 * time.Second

// Valid display rotations in degrees.
var validRotations = map[int]bool{0: true, 90: true, 180: true, 270: true}

// Config holds the camera feed settings.
type Config struct {
	// StreamURL is the MJPEG stream the UI renders.
	StreamURL string `json:"stream_url" yaml:"stream_url"`

	// Rotation is applied by the UI. The camera is mounted upside down,
	// hence the 180 default.
	Rotation int `json:"rotation" yaml:"rotation"`

	// ProbeTimeout bounds Probe.
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
}

// DefaultConfig returns the settings of the stock robot.
func DefaultConfig() Config {
	return Config{
		StreamURL:    DefaultStreamURL,
		Rotation:     180,
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	u, err := url.Parse(c.StreamURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, "stream_url must be an absolute http(s) URL")
	}
	if !validRotations[c.Rotation] {
		errors = append(errors, "rotation must be 0, 90, 180 or 270")
	}
	if c.ProbeTimeout < 0 {
		errors = append(errors, "probe_timeout must not be negative")
	}

	return errors
}
