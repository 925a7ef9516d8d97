package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/devmeet/internal/config"
	"github.com/Wyydra/devmeet/internal/core/domain"
	"github.com/Wyydra/devmeet/internal/logging"
	"github.com/Wyydra/devmeet/internal/signalclient"
	"github.com/spf13/cobra"
)

var (
	flagProbeURL      string
	flagProbeRoom     string
	flagProbeDuration time.Duration
	flagProbeGreet    bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Join a room on a running relay and log its traffic",
	Long: `Join a room on a running relay and log every event it receives.

With --greet the probe sends a small signal to every peer that joins, which
is enough to check relaying end to end without a browser.

Examples:
  devmeet probe --room standup
  devmeet probe --url wss://meet.example/ws --room standup --greet --duration 30s`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVarP(&flagProbeURL, "url", "u", "ws://localhost"+config.DefaultListenAddr+"/ws", "relay websocket URL")
	probeCmd.Flags().StringVarP(&flagProbeRoom, "room", "r", "default-room", "room to join")
	probeCmd.Flags().DurationVarP(&flagProbeDuration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	probeCmd.Flags().BoolVar(&flagProbeGreet, "greet", false, "send a probe signal to peers that join")
}

type probeGreeting struct {
	Type string              `json:"type"`
	From domain.ConnectionID `json:"from"`
	At   time.Time           `json:"at"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	level, format := flagLogLevel, flagLogFormat
	if level == "" {
		level = config.DefaultLogLevel
	}
	if format == "" {
		format = config.DefaultLogFormat
	}
	l := logging.Setup(level, format)

	room, err := domain.ParseRoomID(flagProbeRoom)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flagProbeDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagProbeDuration)
		defer cancel()
	}

	c, err := signalclient.Dial(ctx, flagProbeURL)
	if err != nil {
		return err
	}
	defer c.Close()

	l = l.With().Str("conn_id", c.ID().String()).Str("room_id", room.String()).Logger()
	l.Info().Str("url", flagProbeURL).Msg("Connected")

	if err := c.Join(room.String()); err != nil {
		return err
	}

	for {
		f, err := c.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				l.Info().Msg("Probe finished")
				return nil
			}
			return err
		}

		l.Info().Str("event", f.Event).RawJSON("data", nonEmpty(f.Data)).Msg("Event")

		if flagProbeGreet && f.Event == domain.EventUserJoined {
			var peer domain.ConnectionID
			if err := json.Unmarshal(f.Data, &peer); err != nil {
				l.Warn().Err(err).Msg("Bad user-joined payload")
				continue
			}
			greeting := probeGreeting{Type: "probe", From: c.ID(), At: time.Now().UTC()}
			if err := c.Signal(peer, greeting); err != nil {
				return err
			}
			l.Info().Str("to", peer.String()).Msg("Sent probe signal")
		}
	}
}

func nonEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
