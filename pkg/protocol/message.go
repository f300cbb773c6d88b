// Package protocol defines the commands sent to the embedded peers (the
// mobile robot and the accessory controller) and their wire encodings.
//
// Commands are plain values. They carry no identity and are discarded once
// encoded and written.
package protocol

import "fmt"

// Wire ranges shared by every dialect.
const (
	MinDirection = 1
	MaxDirection = 9
	MaxSpeed     = 255
	MaxValue     = 255
)

// Kind identifies the variant of a Command.
type Kind int

const (
	KindStop Kind = iota // zero value, so a zero Command halts the robot
	KindMove
	KindSetMode
	KindActuate
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindStop:
		return "stop"
	case KindMove:
		return "move"
	case KindSetMode:
		return "mode"
	case KindActuate:
		return "actuate"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Direction is a joystick octant code, 1..8, or 9 for stop.
// Codes follow the robot firmware layout.
type Direction int

const (
	DirForward       Direction = 1
	DirBackward      Direction = 2
	DirLeft          Direction = 3
	DirRight         Direction = 4
	DirLeftForward   Direction = 5
	DirLeftBackward  Direction = 6
	DirRightForward  Direction = 7
	DirRightBackward Direction = 8
	DirStop          Direction = 9
)

func (d Direction) String() string {
	switch d {
	case DirForward:
		return "forward"
	case DirBackward:
		return "backward"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	case DirLeftForward:
		return "left-forward"
	case DirLeftBackward:
		return "left-backward"
	case DirRightForward:
		return "right-forward"
	case DirRightBackward:
		return "right-backward"
	case DirStop:
		return "stop"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Mode is the robot's driving mode.
type Mode int

const (
	ModeManual Mode = iota + 1
	ModeAvoidObstacles
	ModeFollow
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAvoidObstacles:
		return "avoid_obstacles"
	case ModeFollow:
		return "follow"
	default:
		return "unknown"
	}
}

// ParseMode converts an API or config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "manual":
		return ModeManual, nil
	case "avoid_obstacles", "avoid":
		return ModeAvoidObstacles, nil
	case "follow":
		return ModeFollow, nil
	}
	return 0, fmt.Errorf("protocol: unknown mode %q", s)
}

// Subsystem is an accessory actuator on the secondary peer.
type Subsystem int

const (
	SubsystemBubbles Subsystem = iota + 1
	SubsystemTreat
)

func (s Subsystem) String() string {
	switch s {
	case SubsystemBubbles:
		return "bubbles"
	case SubsystemTreat:
		return "treat"
	default:
		return "unknown"
	}
}

// ParseSubsystem converts an API or config string into a Subsystem.
func ParseSubsystem(s string) (Subsystem, error) {
	switch s {
	case "bubbles":
		return SubsystemBubbles, nil
	case "treat":
		return SubsystemTreat, nil
	}
	return 0, fmt.Errorf("protocol: unknown subsystem %q", s)
}

// Command is a tagged variant. Only the fields relevant to Kind are read.
type Command struct {
	Kind      Kind
	Direction Direction
	Speed     int
	Mode      Mode
	Subsystem Subsystem
	Value     int
}

// Move builds a motion command.
func Move(dir Direction, speed int) Command {
	return Command{Kind: KindMove, Direction: dir, Speed: speed}
}

// Stop builds the halt command.
func Stop() Command {
	return Command{Kind: KindStop, Direction: DirStop}
}

// SetMode builds a mode select command.
func SetMode(m Mode) Command {
	return Command{Kind: KindSetMode, Mode: m}
}

// Actuate builds an accessory command.
func Actuate(sub Subsystem, value int) Command {
	return Command{Kind: KindActuate, Subsystem: sub, Value: value}
}

// Heartbeat builds a liveness ping.
func Heartbeat() Command {
	return Command{Kind: KindHeartbeat}
}

// IsMotion reports whether the command belongs to the Move/Stop family.
// A newer motion command supersedes an unsent older one.
func (c Command) IsMotion() bool {
	return c.Kind == KindMove || c.Kind == KindStop
}

func (c Command) String() string {
	switch c.Kind {
	case KindMove:
		return fmt.Sprintf("move(%d,%d)", int(c.Direction), c.Speed)
	case KindSetMode:
		return "mode(" + c.Mode.String() + ")"
	case KindActuate:
		return fmt.Sprintf("%s(%d)", c.Subsystem, c.Value)
	default:
		return c.Kind.String()
	}
}
