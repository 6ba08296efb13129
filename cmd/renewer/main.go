package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/config"
	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/repository"
	"github.com/video-relay/youtube-reddit-relay/internal/service"
	"github.com/video-relay/youtube-reddit-relay/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("lease renewer starting",
		zap.Duration("renewal_interval", cfg.WebSub.RenewalInterval),
		zap.Duration("renewal_window", cfg.WebSub.RenewalWindow),
		zap.Int("batch_size", cfg.WebSub.RenewalBatch),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close(pool)

	subscriptionRepo := repository.NewSubscriptionRepository(pool)
	hub := service.NewHubClient(&http.Client{Timeout: 10 * time.Second}, cfg.WebSub.HubURL, logger.Log)

	renewer := service.NewRenewer(
		subscriptionRepo,
		hub,
		cfg.WebSub.RenewalWindow,
		cfg.WebSub.RenewalBatch,
		cfg.WebSub.LeaseSeconds,
		logger.Log,
	)

	if err := renewer.Run(ctx, cfg.WebSub.RenewalInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Fatal("renewer failed", zap.Error(err))
	}

	logger.Log.Info("lease renewer stopped")
}
