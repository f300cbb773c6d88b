// Package web is the local control surface: REST commands, peer status and
// the joystick and status websockets used by the phone UI.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-petpal/internal/log"
	"github.com/teslashibe/go-petpal/pkg/camera"
	"github.com/teslashibe/go-petpal/pkg/control"
	"github.com/teslashibe/go-petpal/pkg/gesture"
	"github.com/teslashibe/go-petpal/pkg/hub"
	"github.com/teslashibe/go-petpal/pkg/link"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// Controller is the part of control.Manager the surface needs.
type Controller interface {
	Send(id string, cmd protocol.Command) error
	Status(id string) (link.State, error)
	Peer(id string) (control.PeerStatus, error)
	Statuses() []control.PeerStatus
	Inbox(id string) ([]link.Inbound, error)
}

// Server is the control surface.
type Server struct {
	app     *fiber.App
	port    string
	ctrl    Controller
	camera  *camera.Manager
	status  *hub.Hub
	sampler []gesture.Option
	logger  *slog.Logger
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithPort sets the listen port.
func WithPort(port string) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithCamera publishes the camera feed under /api/camera.
func WithCamera(m *camera.Manager) Option {
	return func(s *Server) {
		s.camera = m
	}
}

// WithStatusHub serves h on /ws/status.
func WithStatusHub(h *hub.Hub) Option {
	return func(s *Server) {
		s.status = h
	}
}

// WithSamplerOptions tunes the joystick sampler of every connection.
func WithSamplerOptions(opts ...gesture.Option) Option {
	return func(s *Server) {
		s.sampler = opts
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer builds the fiber app. Routes that need a camera or hub are only
// mounted when one is configured.
func NewServer(ctrl Controller, opts ...Option) (*Server, error) {
	s := &Server{
		port:   "8080",
		ctrl:   ctrl,
		logger: log.Component("web"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if ctrl == nil {
		return nil, errors.New("web: controller required")
	}
	if _, err := gesture.NewSampler(s.sampler...); err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               "petpal",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/peers", s.handlePeers)
	api.Get("/peers/:id", s.handlePeer)
	api.Post("/peers/:id/move", s.handleMove)
	api.Post("/peers/:id/stop", s.handleStop)
	api.Post("/peers/:id/mode", s.handleMode)
	api.Post("/peers/:id/accessory", s.handleAccessory)
	if s.camera != nil {
		api.Get("/camera", s.handleCamera)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if s.status != nil {
		app.Get("/ws/status", websocket.New(s.handleStatusWS))
	}
	app.Get("/ws/joystick/:id", websocket.New(s.handleJoystickWS))

	s.app = app
	return s, nil
}

// App returns the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured port and blocks.
func (s *Server) Start() error {
	s.logger.Info("control surface listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Serve serves on an existing listener and blocks.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting requests and waits for handlers up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
