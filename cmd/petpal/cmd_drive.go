package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-petpal/internal/config"
	"github.com/teslashibe/go-petpal/internal/log"
	"github.com/teslashibe/go-petpal/pkg/control"
	"github.com/teslashibe/go-petpal/pkg/link"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

// newDriveCmd creates the "petpal drive" subcommand.
func newDriveCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "drive <peer> <move|stop|mode|accessory> [args]",
		Short: "Send one command to a peer and exit",
		Long: "Connects to one peer, sends a single command and disconnects.\n\n" +
			"  petpal drive robot move 1 150\n" +
			"  petpal drive robot stop\n" +
			"  petpal drive robot mode follow\n" +
			"  petpal drive accessory accessory treat 1",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := parseDrive(args[1], args[2:])
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			log.Init(cfg.Log.Level)

			p := cfg.Peer(args[0])
			if p == nil {
				return fmt.Errorf("%w: %s", control.ErrUnknownPeer, args[0])
			}
			pc, err := p.PeerConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := drive(ctx, pc, command); err != nil {
				return err
			}
			cmd.Printf("sent %s to %s\n", command, pc.ID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the peer")
	return cmd
}

// parseDrive turns CLI words into a command.
func parseDrive(verb string, rest []string) (protocol.Command, error) {
	switch verb {
	case "move":
		if len(rest) != 2 {
			return protocol.Command{}, fmt.Errorf("move needs <direction 1-9> <speed 0-255>")
		}
		dir, err := strconv.Atoi(rest[0])
		if err != nil || dir < protocol.MinDirection || dir > protocol.MaxDirection {
			return protocol.Command{}, fmt.Errorf("invalid direction %q", rest[0])
		}
		speed, err := strconv.Atoi(rest[1])
		if err != nil || speed < 0 || speed > protocol.MaxSpeed {
			return protocol.Command{}, fmt.Errorf("invalid speed %q", rest[1])
		}
		return protocol.Move(protocol.Direction(dir), speed), nil

	case "stop":
		if len(rest) != 0 {
			return protocol.Command{}, fmt.Errorf("stop takes no arguments")
		}
		return protocol.Stop(), nil

	case "mode":
		if len(rest) != 1 {
			return protocol.Command{}, fmt.Errorf("mode needs <manual|avoid_obstacles|follow>")
		}
		m, err := protocol.ParseMode(rest[0])
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.SetMode(m), nil

	case "accessory":
		if len(rest) != 2 {
			return protocol.Command{}, fmt.Errorf("accessory needs <bubbles|treat> <value>")
		}
		sub, err := protocol.ParseSubsystem(rest[0])
		if err != nil {
			return protocol.Command{}, err
		}
		v, err := strconv.Atoi(rest[1])
		if err != nil || v < 0 || v > protocol.MaxValue {
			return protocol.Command{}, fmt.Errorf("invalid value %q", rest[1])
		}
		return protocol.Actuate(sub, v), nil
	}
	return protocol.Command{}, fmt.Errorf("unknown command %q", verb)
}

// drive connects one peer, sends cmd once it is open and waits for the
// frame to leave before shutting down.
func drive(ctx context.Context, pc control.PeerConfig, cmd protocol.Command, opts ...control.Option) error {
	opened := make(chan struct{}, 1)
	opts = append(opts, control.WithStatusListener(func(st control.PeerStatus) {
		if st.Connected() {
			select {
			case opened <- struct{}{}:
			default:
			}
		}
	}))

	mgr, err := control.New([]control.PeerConfig{pc}, opts...)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		mgr.Shutdown(shutdownCtx)
	}()

	if err := mgr.Start(); err != nil {
		return err
	}

	select {
	case <-opened:
	case <-ctx.Done():
		st, _ := mgr.Peer(pc.ID)
		return fmt.Errorf("%s: %s: %w", pc.ID, st.Label, link.ErrNotConnected)
	}

	if err := mgr.Send(pc.ID, cmd); err != nil {
		return err
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := mgr.Peer(pc.ID)
		if err != nil {
			return err
		}
		if st.Stats.Sent > 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%s: command not flushed: %w", pc.ID, ctx.Err())
		}
	}
}
