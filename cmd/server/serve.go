package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/devmeet/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/devmeet/internal/adapter/driven/metrics"
	repo "github.com/Wyydra/devmeet/internal/adapter/driven/persistence/memory"
	handler "github.com/Wyydra/devmeet/internal/adapter/driving/http"
	"github.com/Wyydra/devmeet/internal/config"
	"github.com/Wyydra/devmeet/internal/core/service"
	"github.com/Wyydra/devmeet/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagListenAddr string
	flagStaticDir  string
	flagOrigins    []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay.

Settings come from, in increasing priority: built-in defaults, the TOML file
given with --config, DEVMEET_* environment variables and command line flags.

Examples:
  devmeet serve
  devmeet serve --addr :8080 --origins https://meet.example
  DEVMEET_LOG_FORMAT=json devmeet serve -c /etc/devmeet.toml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

// addServeFlags is shared by serve and the root command, which defaults to
// serving.
func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagListenAddr, "addr", "a", "", "listen address (default :5000)")
	cmd.Flags().StringVar(&flagStaticDir, "static", "", "directory served at / (default ./static)")
	cmd.Flags().StringSliceVar(&flagOrigins, "origins", nil, `allowed browser origins, "*" for any`)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig, config.Overrides{
		ListenAddr:     flagListenAddr,
		StaticDir:      flagStaticDir,
		AllowedOrigins: flagOrigins,
		LogLevel:       flagLogLevel,
		LogFormat:      flagLogFormat,
	})
	if err != nil {
		return err
	}

	l := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.AllowsAnyOrigin() {
		l.Warn().Msg("Accepting websocket connections from any origin")
	}

	registry := repo.NewRegistry()
	hub := ws.NewHub()
	m := metrics.NewPrometheus()

	relay := service.NewRelayService(registry, hub, m)
	h := handler.NewHandler(relay, hub, m.Handler(), handler.Options{
		StaticDir:      cfg.StaticDir,
		AllowedOrigins: cfg.AllowedOrigins,
		ICEServers:     cfg.ICEServers,
		WebSocket: ws.Options{
			ReadLimit:  cfg.WebSocket.ReadLimit,
			WriteWait:  cfg.WebSocket.WriteWait,
			PongWait:   cfg.WebSocket.PongWait,
			SendBuffer: cfg.WebSocket.SendBuffer,
		},
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		Burst:             cfg.WebSocket.Burst,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.NewRouter(),
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info().Str("addr", cfg.ListenAddr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown does not wait for hijacked websocket connections; the hub
	// closes those.
	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Stop()

	l.Info().Msg("Server exited")
	return nil
}
