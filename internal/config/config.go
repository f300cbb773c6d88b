// Package config loads go-petpal settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-petpal/pkg/camera"
	"github.com/teslashibe/go-petpal/pkg/control"
	"github.com/teslashibe/go-petpal/pkg/gesture"
	"github.com/teslashibe/go-petpal/pkg/link"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// Default device addresses on the robot's access point.
const (
	DefaultRobotHost     = "192.168.4.1"
	DefaultRobotPort     = 100
	DefaultRobotPath     = "/ws"
	DefaultAccessoryHost = "192.168.4.2"
	DefaultAccessoryPort = 81
	DefaultServerPort    = "8080"
)

// Environment overrides.
const (
	EnvRobotHost     = "PETPAL_ROBOT_HOST"
	EnvAccessoryHost = "PETPAL_ACCESSORY_HOST"
	EnvPort          = "PORT"
	EnvLogLevel      = "LOG_LEVEL"
)

// Config is the whole service configuration.
type Config struct {
	Server   Server        `yaml:"server"`
	Log      Log           `yaml:"log"`
	Peers    []Peer        `yaml:"peers"`
	Camera   camera.Config `yaml:"camera"`
	Joystick Joystick      `yaml:"joystick"`
}

// Server configures the HTTP control surface.
type Server struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Peer is one embedded device as written in the config file.
type Peer struct {
	ID              string         `yaml:"id"`
	Label           string         `yaml:"label"`
	Host            string         `yaml:"host"`
	Port            int            `yaml:"port"`
	Path            string         `yaml:"path"`
	Transport       string         `yaml:"transport"`
	Dialect         string         `yaml:"dialect"`
	Heartbeat       string         `yaml:"heartbeat"`
	HeartbeatToken  string         `yaml:"heartbeat_token"`
	HeartbeatPeriod *Period        `yaml:"heartbeat_period"`
	ReconnectDelay  time.Duration  `yaml:"reconnect_delay"`
	ModeCodes       map[string]int `yaml:"mode_codes"`
	AccessoryCodes  map[string]int `yaml:"accessory_codes"`
}

// Joystick tunes the gesture sampler.
type Joystick struct {
	DeadZone  float64       `yaml:"dead_zone"`
	MaxRadius float64       `yaml:"max_radius"`
	Interval  time.Duration `yaml:"interval"`
	SpeedCap  int           `yaml:"speed_cap"`
}

// Period is a duration that may also be written as "off". An omitted
// period is nil and falls back to a default.
type Period time.Duration

// UnmarshalYAML accepts a Go duration string or one of off, disabled, false.
func (p *Period) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(value.Value)) {
	case "off", "disabled", "false":
		*p = 0
		return nil
	}
	d, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: line %d: %w", value.Line, err)
	}
	*p = Period(d)
	return nil
}

// Or returns the period, or def when it was not set.
func (p *Period) Or(def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return time.Duration(*p)
}

// Default returns the configuration of the stock robot and accessory board.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:            DefaultServerPort,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: Log{Level: "info"},
		Peers: []Peer{
			{
				ID:             control.PeerRobot,
				Label:          "Robot",
				Host:           DefaultRobotHost,
				Port:           DefaultRobotPort,
				Path:           DefaultRobotPath,
				Transport:      string(link.TransportWS),
				Heartbeat:      protocol.HeartbeatToken.String(),
				ReconnectDelay: link.DefaultReconnectDelay,
			},
			{
				ID:             control.PeerAccessory,
				Label:          "Accessory",
				Host:           DefaultAccessoryHost,
				Port:           DefaultAccessoryPort,
				Transport:      string(link.TransportTCP),
				ReconnectDelay: link.DefaultReconnectDelay,
			},
		},
		Camera: camera.DefaultConfig(),
		Joystick: Joystick{
			DeadZone:  10,
			MaxRadius: 60,
			Interval:  60 * time.Millisecond,
			SpeedCap:  protocol.MaxSpeed,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRobotHost); v != "" {
		if p := c.Peer(control.PeerRobot); p != nil {
			p.Host = v
		}
	}
	if v := os.Getenv(EnvAccessoryHost); v != "" {
		if p := c.Peer(control.PeerAccessory); p != nil {
			p.Host = v
		}
	}
	if v := os.Getenv(EnvPort); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Peer returns the peer with id, or nil.
func (c *Config) Peer(id string) *Peer {
	for i := range c.Peers {
		if c.Peers[i].ID == id {
			return &c.Peers[i]
		}
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("config: server.port %q is not a valid port", c.Server.Port))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("config: server.shutdown_timeout must not be negative"))
	}

	if len(c.Peers) == 0 {
		errs = append(errs, errors.New("config: at least one peer is required"))
	}
	seen := make(map[string]bool)
	for _, p := range c.Peers {
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("config: duplicate peer id %q", p.ID))
		}
		seen[p.ID] = true
		pc, err := p.PeerConfig()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := pc.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if msgs := c.Camera.Validate(); len(msgs) > 0 {
		errs = append(errs, fmt.Errorf("config: camera: %s", strings.Join(msgs, "; ")))
	}

	gc := gesture.DefaultConfig()
	gc.Apply(c.SamplerOptions()...)
	if err := gc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: joystick: %w", err))
	}

	return errors.Join(errs...)
}

// PeerConfig converts a file entry into a manager peer.
func (p Peer) PeerConfig() (control.PeerConfig, error) {
	dialect, err := protocol.ParseDialect(p.Dialect)
	if err != nil {
		return control.PeerConfig{}, fmt.Errorf("config: peer %s: %w", p.ID, err)
	}
	style, err := protocol.ParseHeartbeatStyle(p.Heartbeat)
	if err != nil {
		return control.PeerConfig{}, fmt.Errorf("config: peer %s: %w", p.ID, err)
	}

	enc := protocol.Encoder{
		Dialect:        dialect,
		Heartbeat:      style,
		HeartbeatToken: p.HeartbeatToken,
	}
	for name, code := range p.ModeCodes {
		m, err := protocol.ParseMode(name)
		if err != nil {
			return control.PeerConfig{}, fmt.Errorf("config: peer %s: %w", p.ID, err)
		}
		if enc.ModeCodes == nil {
			enc.ModeCodes = make(map[protocol.Mode]int)
		}
		enc.ModeCodes[m] = code
	}
	for name, code := range p.AccessoryCodes {
		s, err := protocol.ParseSubsystem(name)
		if err != nil {
			return control.PeerConfig{}, fmt.Errorf("config: peer %s: %w", p.ID, err)
		}
		if enc.AccessoryCodes == nil {
			enc.AccessoryCodes = make(map[protocol.Subsystem]int)
		}
		enc.AccessoryCodes[s] = code
	}

	return control.PeerConfig{
		ID:    p.ID,
		Label: p.Label,
		Endpoint: link.Endpoint{
			Name:      p.ID,
			Host:      p.Host,
			Port:      p.Port,
			Path:      p.Path,
			Transport: link.TransportKind(p.Transport),
		},
		Encoder:         enc,
		ReconnectDelay:  p.ReconnectDelay,
		HeartbeatPeriod: p.HeartbeatPeriod.Or(link.DefaultHeartbeatPeriod),
	}, nil
}

// PeerConfigs converts every peer. Load has already validated them.
func (c *Config) PeerConfigs() ([]control.PeerConfig, error) {
	out := make([]control.PeerConfig, 0, len(c.Peers))
	for _, p := range c.Peers {
		pc, err := p.PeerConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, nil
}

// SamplerOptions returns the joystick settings as sampler options.
func (c *Config) SamplerOptions() []gesture.Option {
	return []gesture.Option{
		gesture.WithDeadZone(c.Joystick.DeadZone),
		gesture.WithMaxRadius(c.Joystick.MaxRadius),
		gesture.WithInterval(c.Joystick.Interval),
		gesture.WithSpeedCap(c.Joystick.SpeedCap),
	}
}
