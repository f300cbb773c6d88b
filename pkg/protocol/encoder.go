package protocol

import (
	"encoding/json"
	"fmt"
)

// Command codes of the nd dialect.
const (
	OpMode   = 101
	OpMotion = 102
)

// DefaultHeartbeatToken is what the robot firmware expects as a keepalive.
const DefaultHeartbeatToken = "{Heartbeat}"

// Dialect selects the JSON layout a peer understands.
type Dialect int

const (
	// DialectND is the {"N":..,"D1":..,"D2":..} layout.
	DialectND Dialect = iota
	// DialectLegacy is the {"command":..,"direction":..,"speed":..} layout.
	DialectLegacy
)

func (d Dialect) String() string {
	if d == DialectLegacy {
		return "legacy"
	}
	return "nd"
}

// ParseDialect converts a config string into a Dialect. Empty means nd.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "", "nd":
		return DialectND, nil
	case "legacy":
		return DialectLegacy, nil
	}
	return 0, fmt.Errorf("protocol: unknown dialect %q", s)
}

// HeartbeatStyle selects how a Heartbeat command is written.
type HeartbeatStyle int

const (
	// HeartbeatJSON writes {"alive":true}.
	HeartbeatJSON HeartbeatStyle = iota
	// HeartbeatToken writes a literal, non-JSON token.
	HeartbeatToken
)

func (h HeartbeatStyle) String() string {
	if h == HeartbeatToken {
		return "token"
	}
	return "json"
}

// ParseHeartbeatStyle converts a config string into a HeartbeatStyle.
func ParseHeartbeatStyle(s string) (HeartbeatStyle, error) {
	switch s {
	case "", "json":
		return HeartbeatJSON, nil
	case "token":
		return HeartbeatToken, nil
	}
	return 0, fmt.Errorf("protocol: unknown heartbeat style %q", s)
}

// DefaultModeCodes are the D1 values of a mode select.
func DefaultModeCodes() map[Mode]int {
	return map[Mode]int{
		ModeManual:         0,
		ModeAvoidObstacles: 2,
		ModeFollow:         3,
	}
}

// DefaultAccessoryCodes are the N values of accessory commands.
func DefaultAccessoryCodes() map[Subsystem]int {
	return map[Subsystem]int{
		SubsystemBubbles: 110,
		SubsystemTreat:   111,
	}
}

// Encoder turns Commands into wire frames for one peer.
// The zero value is usable: nd dialect, JSON heartbeat, default codes.
type Encoder struct {
	Dialect        Dialect
	Heartbeat      HeartbeatStyle
	HeartbeatToken string
	ModeCodes      map[Mode]int
	AccessoryCodes map[Subsystem]int
}

type ndFrame struct {
	N  int  `json:"N"`
	D1 int  `json:"D1"`
	D2 *int `json:"D2,omitempty"`
}

type legacyFrame struct {
	Command   string `json:"command"`
	Direction *int   `json:"direction,omitempty"`
	Speed     *int   `json:"speed,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Value     *int   `json:"value,omitempty"`
}

type aliveFrame struct {
	Alive bool `json:"alive"`
}

// Encode serializes cmd. It never fails; out-of-range fields are clamped.
func (e Encoder) Encode(cmd Command) []byte {
	if cmd.Kind == KindHeartbeat {
		return e.encodeHeartbeat()
	}
	if e.Dialect == DialectLegacy {
		return e.encodeLegacy(cmd)
	}
	return e.encodeND(cmd)
}

func (e Encoder) encodeND(cmd Command) []byte {
	switch cmd.Kind {
	case KindMove:
		dir, speed := motion(cmd)
		return marshal(ndFrame{N: OpMotion, D1: dir, D2: &speed})
	case KindSetMode:
		return marshal(ndFrame{N: OpMode, D1: e.modeCode(cmd.Mode)})
	case KindActuate:
		return marshal(ndFrame{N: e.accessoryCode(cmd.Subsystem), D1: clamp(cmd.Value, 0, MaxValue)})
	default:
		zero := 0
		return marshal(ndFrame{N: OpMotion, D1: int(DirStop), D2: &zero})
	}
}

func (e Encoder) encodeLegacy(cmd Command) []byte {
	switch cmd.Kind {
	case KindMove:
		dir, speed := motion(cmd)
		return marshal(legacyFrame{Command: "move", Direction: &dir, Speed: &speed})
	case KindSetMode:
		return marshal(legacyFrame{Command: "mode", Mode: cmd.Mode.String()})
	case KindActuate:
		v := clamp(cmd.Value, 0, MaxValue)
		return marshal(legacyFrame{Command: cmd.Subsystem.String(), Value: &v})
	default:
		dir, zero := int(DirStop), 0
		return marshal(legacyFrame{Command: "stop", Direction: &dir, Speed: &zero})
	}
}

func (e Encoder) encodeHeartbeat() []byte {
	if e.Heartbeat == HeartbeatToken {
		if e.HeartbeatToken == "" {
			return []byte(DefaultHeartbeatToken)
		}
		return []byte(e.HeartbeatToken)
	}
	return marshal(aliveFrame{Alive: true})
}

func (e Encoder) modeCode(m Mode) int {
	if code, ok := e.ModeCodes[m]; ok {
		return code
	}
	return DefaultModeCodes()[m]
}

func (e Encoder) accessoryCode(s Subsystem) int {
	if code, ok := e.AccessoryCodes[s]; ok {
		return code
	}
	return DefaultAccessoryCodes()[s]
}

// motion returns the clamped direction and speed of a move. A stop
// direction always carries speed 0.
func motion(cmd Command) (int, int) {
	dir := clamp(int(cmd.Direction), MinDirection, MaxDirection)
	if dir == int(DirStop) {
		return dir, 0
	}
	return dir, clamp(cmd.Speed, 0, MaxSpeed)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// marshal cannot fail for the frame structs above.
func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
