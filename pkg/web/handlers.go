package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-petpal/pkg/camera"
	"github.com/teslashibe/go-petpal/pkg/control"
	"github.com/teslashibe/go-petpal/pkg/link"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// MoveRequest is the body of POST /api/peers/:id/move.
type MoveRequest struct {
	Direction int `json:"direction"`
	Speed     int `json:"speed"`
}

// ModeRequest is the body of POST /api/peers/:id/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// AccessoryRequest is the body of POST /api/peers/:id/accessory.
type AccessoryRequest struct {
	Subsystem string `json:"subsystem"`
	Value     int    `json:"value"`
}

// PeerResponse is the body of GET /api/peers/:id.
type PeerResponse struct {
	Status control.PeerStatus `json:"status"`
	Inbox  []link.Inbound     `json:"inbox"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handlePeers(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Statuses())
}

func (s *Server) handlePeer(c *fiber.Ctx) error {
	id := c.Params("id")
	st, err := s.ctrl.Peer(id)
	if err != nil {
		return s.sendError(c, id, err)
	}
	inbox, err := s.ctrl.Inbox(id)
	if err != nil {
		return s.sendError(c, id, err)
	}
	return c.JSON(PeerResponse{Status: st, Inbox: inbox})
}

func (s *Server) handleMove(c *fiber.Ctx) error {
	var req MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Direction < protocol.MinDirection || req.Direction > protocol.MaxDirection {
		return badRequest(c, "direction must be 1..9")
	}
	if req.Speed < 0 || req.Speed > protocol.MaxSpeed {
		return badRequest(c, "speed must be 0..255")
	}
	return s.send(c, protocol.Move(protocol.Direction(req.Direction), req.Speed))
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	return s.send(c, protocol.Stop())
}

func (s *Server) handleMode(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	mode, err := protocol.ParseMode(req.Mode)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return s.send(c, protocol.SetMode(mode))
}

func (s *Server) handleAccessory(c *fiber.Ctx) error {
	var req AccessoryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	sub, err := protocol.ParseSubsystem(req.Subsystem)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if req.Value < 0 || req.Value > protocol.MaxValue {
		return badRequest(c, "value must be 0..255")
	}
	return s.send(c, protocol.Actuate(sub, req.Value))
}

// handleCamera reports the feed settings and probes the stream. With
// ?probe=false it returns the last recorded probe instead, which may be null.
func (s *Server) handleCamera(c *fiber.Ctx) error {
	cfg := s.camera.GetConfig()
	var probe *camera.ProbeResult
	if c.QueryBool("probe", true) {
		res := s.camera.Probe(c.UserContext())
		probe = &res
	} else {
		probe = s.camera.LastProbe()
	}
	return c.JSON(fiber.Map{
		"stream_url": cfg.StreamURL,
		"rotation":   cfg.Rotation,
		"probe":      probe,
	})
}

// send routes cmd to the peer named in the path.
func (s *Server) send(c *fiber.Ctx, cmd protocol.Command) error {
	id := c.Params("id")
	if err := s.ctrl.Send(id, cmd); err != nil {
		return s.sendError(c, id, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "sent"})
}

func (s *Server) sendError(c *fiber.Ctx, id string, err error) error {
	switch {
	case errors.Is(err, control.ErrUnknownPeer):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, link.ErrNotConnected):
		state, _ := s.ctrl.Status(id)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"status": "not_connected",
			"state":  state.String(),
		})
	case errors.Is(err, control.ErrShutdown):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		s.logger.Error("command failed", "peer", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
