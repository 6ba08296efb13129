package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/internal/config"
	"github.com/video-relay/youtube-reddit-relay/internal/db"
	"github.com/video-relay/youtube-reddit-relay/internal/db/repository"
	"github.com/video-relay/youtube-reddit-relay/internal/queue"
	"github.com/video-relay/youtube-reddit-relay/internal/service"
	"github.com/video-relay/youtube-reddit-relay/internal/service/reddit"
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

	if cfg.Redis.URL == "" {
		logger.Log.Fatal("worker requires a configured redis URL")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close(pool)

	subscriptionRepo := repository.NewSubscriptionRepository(pool)
	accountRepo := repository.NewRedditAccountRepository(pool)
	subredditRepo := repository.NewSubredditRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	redditClient := reddit.NewClient(
		&http.Client{Timeout: cfg.Reddit.RequestTimeout},
		cfg.Reddit.UserAgent,
		logger.Log,
		reddit.WithMaxRetries(cfg.Reddit.MaxRetries),
	)
	poster := service.NewPoster(accountRepo, submissionRepo, redditClient, logger.Log)

	var eventPublisher service.EventPublisher
	if cfg.RabbitMQ.Host != "" {
		publisher, err := service.NewSubmissionPublisher(&cfg.RabbitMQ)
		if err != nil {
			logger.Log.Warn("failed to connect submission publisher, events will not be broadcast",
				zap.Error(err),
			)
		} else {
			defer publisher.Close()
			eventPublisher = publisher
		}
	}

	dispatcher := service.NewDispatcher(
		subscriptionRepo,
		accountRepo,
		subredditRepo,
		submissionRepo,
		poster,
		eventPublisher,
		logger.Log,
	)

	dispatchHandler := queue.NewDispatchHandler(dispatcher, logger.Log)
	srv, err := queue.NewServer(cfg.Redis.URL, runtime.NumCPU()*2, dispatchHandler, logger.Log)
	if err != nil {
		logger.Log.Fatal("failed to create worker server", zap.Error(err))
	}

	if err := srv.Start(); err != nil {
		logger.Log.Fatal("failed to start worker server", zap.Error(err))
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown

	logger.Log.Info("shutdown signal received", zap.String("signal", sig.String()))
	srv.Stop()
	logger.Log.Info("worker stopped")
}
