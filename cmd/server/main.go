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
	"github.com/video-relay/youtube-reddit-relay/internal/handler"
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

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close(pool)

	logger.Log.Info("database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	subscriptionRepo := repository.NewSubscriptionRepository(pool)
	accountRepo := repository.NewRedditAccountRepository(pool)
	subredditRepo := repository.NewSubredditRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	verifier := service.NewVerifier(subscriptionRepo, logger.Log)

	redditClient := reddit.NewClient(
		&http.Client{Timeout: cfg.Reddit.RequestTimeout},
		cfg.Reddit.UserAgent,
		logger.Log,
		reddit.WithMaxRetries(cfg.Reddit.MaxRetries),
	)
	poster := service.NewPoster(accountRepo, submissionRepo, redditClient, logger.Log)

	// Submission event publisher (optional)
	var eventPublisher service.EventPublisher
	var brokerHealth handler.BrokerHealth
	if cfg.RabbitMQ.Host != "" {
		publisher, err := service.NewSubmissionPublisher(&cfg.RabbitMQ)
		if err != nil {
			logger.Log.Warn("failed to connect submission publisher, events will not be broadcast",
				zap.Error(err),
			)
		} else {
			defer publisher.Close()
			eventPublisher = publisher
			brokerHealth = publisher
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

	websubHandler := handler.NewWebSubHandler(verifier, dispatcher, cfg.WebSub.MaxPayloadSize, cfg.Server.DispatchTimeout)

	// Dispatch queue (optional). Without Redis the handler dispatches inline.
	if cfg.Redis.URL != "" {
		queueClient, err := queue.NewClient(cfg.Redis.URL, logger.Log)
		if err != nil {
			logger.Log.Warn("failed to initialize queue client, dispatch will run inline",
				zap.Error(err),
			)
		} else {
			defer queueClient.Close()
			websubHandler.SetQueueClient(queueClient)
			logger.Log.Info("queue client initialized, dispatch tasks will be enqueued")
		}
	}

	healthHandler := handler.NewHealthHandler(pool, brokerHealth)
	router := handler.NewRouter(websubHandler, healthHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server failed", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown

	logger.Log.Info("shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Log.Info("server stopped")
}
