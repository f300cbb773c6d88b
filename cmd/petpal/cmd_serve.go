package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-petpal/internal/config"
	"github.com/teslashibe/go-petpal/internal/log"
	"github.com/teslashibe/go-petpal/pkg/camera"
	"github.com/teslashibe/go-petpal/pkg/control"
	"github.com/teslashibe/go-petpal/pkg/hub"
	"github.com/teslashibe/go-petpal/pkg/link"
	"github.com/teslashibe/go-petpal/pkg/web"
)

// newServeCmd creates the "petpal serve" subcommand.
func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the connection manager and control surface",
		Long:  "Connects to every configured peer, keeps the links alive and serves\nthe REST and websocket control surface until SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			log.Init(cfg.Log.Level)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, path, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload peers and camera settings when the config file changes")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, path string, watch bool) error {
	logger := log.Component("serve")
	status := hub.New("status", log.Component("hub"))
	defer status.Close()

	peers, err := cfg.PeerConfigs()
	if err != nil {
		return err
	}
	mgr, err := control.New(peers,
		control.WithStatusListener(func(st control.PeerStatus) {
			status.PublishEvent(hub.EventStatus, st)
		}),
		control.WithMessageListener(func(in link.Inbound) {
			status.PublishEvent(hub.EventInbound, in)
		}),
	)
	if err != nil {
		return err
	}

	cam, err := newCamera(cfg.Camera, status)
	if err != nil {
		return err
	}

	srv, err := web.NewServer(mgr,
		web.WithPort(cfg.Server.Port),
		web.WithCamera(cam),
		web.WithStatusHub(status),
		web.WithSamplerOptions(cfg.SamplerOptions()...),
	)
	if err != nil {
		return err
	}

	if err := mgr.Start(); err != nil {
		return err
	}

	if watch && path != "" {
		go func() {
			err := config.Watch(ctx, path, config.DefaultDebounce, func(next *config.Config) {
				apply(ctx, mgr, cam, next)
			})
			if err != nil {
				logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("control surface failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("control surface shutdown", "error", serr)
	}
	if merr := mgr.Shutdown(shutdownCtx); merr != nil {
		logger.Warn("connection manager shutdown", "error", merr)
	}
	return err
}

// newCamera builds the camera manager and announces every accepted config
// change to status clients.
func newCamera(cfg camera.Config, status *hub.Hub) (*camera.Manager, error) {
	cam, err := camera.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	cam.OnConfigChange = func(next camera.Config) {
		status.PublishEvent(hub.EventCamera, next)
	}
	return cam, nil
}

// apply pushes a reloaded config into the running service. Peers removed
// from the file keep running until restart.
func apply(ctx context.Context, mgr *control.Manager, cam *camera.Manager, cfg *config.Config) {
	logger := log.Component("serve")

	peers, err := cfg.PeerConfigs()
	if err != nil {
		logger.Warn("reload skipped", "error", err)
		return
	}
	for _, pc := range peers {
		if err := mgr.Reconfigure(ctx, pc.ID, pc); err != nil {
			logger.Warn("peer reconfigure failed", "peer", pc.ID, "error", err)
		}
	}
	if err := cam.SetConfig(cfg.Camera); err != nil {
		logger.Warn("camera reconfigure failed", "error", err)
	}
}
