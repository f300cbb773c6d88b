package web

import (
	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-petpal/pkg/gesture"
	"github.com/teslashibe/go-petpal/pkg/hub"
)

// JoystickEvent is one inbound joystick frame: a displacement from the
// thumb origin, or a release.
type JoystickEvent struct {
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
	Release bool    `json:"release"`
}

// handleStatusWS streams status events, starting with a snapshot of every
// peer.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	s.status.Serve(conn, s.statusSnapshot)
}

func (s *Server) statusSnapshot() [][]byte {
	var frames [][]byte
	for _, st := range s.ctrl.Statuses() {
		if data, err := hub.Encode(hub.EventStatus, st); err == nil {
			frames = append(frames, data)
		}
	}
	return frames
}

// handleJoystickWS turns a stream of joystick events into motion commands
// for one peer. Each connection has its own sampler. A connection that
// drops mid-gesture still sends the final stop.
func (s *Server) handleJoystickWS(conn *websocket.Conn) {
	id := conn.Params("id")
	if _, err := s.ctrl.Status(id); err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}

	sampler, err := gesture.NewSampler(s.sampler...)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}

	logger := s.logger.With("peer", id)
	logger.Debug("joystick connected")

	active := false
	defer func() {
		if active {
			s.ctrl.Send(id, sampler.Release().Command())
		}
		logger.Debug("joystick disconnected", "mid_gesture", active)
	}()

	for {
		var ev JoystickEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}

		if ev.Release {
			active = false
			s.ctrl.Send(id, sampler.Release().Command())
			continue
		}

		active = true
		if sample, ok := sampler.Move(ev.DX, ev.DY); ok {
			s.ctrl.Send(id, sample.Command())
		}
	}
}
