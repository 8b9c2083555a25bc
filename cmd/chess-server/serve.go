package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/chess-rooms/internal/bot"
	"github.com/park285/chess-rooms/internal/config"
	"github.com/park285/chess-rooms/internal/history"
	"github.com/park285/chess-rooms/internal/matchmaking"
	"github.com/park285/chess-rooms/internal/notify"
	"github.com/park285/chess-rooms/internal/obslog"
	"github.com/park285/chess-rooms/internal/roomcache"
	"github.com/park285/chess-rooms/internal/session"
	"github.com/park285/chess-rooms/internal/transport"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket server",
	Long: `Start the room server on LISTEN_ADDR.

Optional integrations are enabled by their env keys:
  REDIS_URL           mirror live rooms to Redis
  DATABASE_URL        store finished games (postgres:// or sqlite://path)
  RESULT_WEBHOOK_URL  POST finished games to a webhook`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chooser, err := bot.NewChooser(cfg.BotProfilesDir)
	if err != nil {
		return fmt.Errorf("bot profiles: %w", err)
	}
	reg := session.NewRegistry()
	queue := matchmaking.NewQueue()
	deps := transport.Deps{
		Registry:       reg,
		Queue:          queue,
		Chooser:        chooser,
		Policy:         cfg.DisconnectPolicy,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	if cfg.RedisURL != "" {
		store, err := roomcache.Open(ctx, cfg.RedisURL, cfg.RoomMirrorTTL)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		deps.Mirror = store
		logger.Info("room_mirror_enabled")
	}
	if cfg.DatabaseURL != "" {
		repo, err := history.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
		deps.Results = repo
		logger.Info("history_enabled")
	}
	if cfg.ResultWebhookURL != "" {
		deps.Notifier = notify.NewClient(cfg.ResultWebhookURL)
		logger.Info("result_webhook_enabled")
	}

	hub := transport.NewHub(deps)
	go queue.RunSweeper(ctx, cfg.MatchmakingSweepInterval, cfg.MatchmakingMaxWait)

	srv := transport.NewServer(cfg.ListenAddr, hub)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case err := <-errCh:
		if err != nil {
			logger.Error("http_server_failed", zap.Error(err))
			hub.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown_incomplete", zap.Error(err))
	}
	return nil
}
