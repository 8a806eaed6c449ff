package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cms-publisher/config"
	"cms-publisher/events"
	"cms-publisher/handlers"
	"cms-publisher/helper"
	"cms-publisher/logging"
	"cms-publisher/metrics"
	"cms-publisher/platforms"
	"cms-publisher/repositories"
	"cms-publisher/security"
	"cms-publisher/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.Server.GinMode)
	metrics.Register()

	// Initialize database
	db, err := config.InitDB(cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	cipher, err := security.NewCipher(cfg.Security.CredentialsKey)
	if err != nil {
		return err
	}

	registry := platforms.NewRegistry(
		platforms.NewDevToAdapter(cfg.Platforms.DevTo.BaseURL, nil),
		platforms.NewHashnodeAdapter(cfg.Platforms.Hashnode.BaseURL, nil),
		platforms.NewGhostAdapter(nil),
		platforms.NewWordPressAdapter(cfg.Platforms.WordPress.BaseURL, oauthApp(cfg.Platforms.WordPress), nil),
		platforms.NewWixAdapter(cfg.Platforms.Wix.BaseURL, oauthApp(cfg.Platforms.Wix), nil),
	)

	publisher, err := newEventPublisher(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	articleRepo := repositories.NewArticleRepository(db)
	tagRepo := repositories.NewTagRepository(db)
	connectionRepo := repositories.NewConnectionRepository(db)
	recordRepo := repositories.NewPublishRecordRepository(db)
	jobRepo := repositories.NewQueueJobRepository(db)

	// Initialize services
	userService := services.NewUserService(userRepo)
	tagService := services.NewTagService(tagRepo, articleRepo)
	articleService := services.NewArticleService(articleRepo, tagService, logger.With("component", "articles"))
	connections := services.NewConnectionStore(connectionRepo, registry, cipher, logger.With("component", "connections"))
	ledger := services.NewPublishLedger(recordRepo)
	gate := services.NewFeatureGate()

	orchestratorLog := logger.With("component", "orchestrator")
	orchestrator := services.NewPublishOrchestrator(services.OrchestratorDeps{
		Registry:        registry,
		Connections:     connections,
		Ledger:          ledger,
		Articles:        articleRepo,
		Events:          publisher,
		Logger:          orchestratorLog,
		PlatformTimeout: cfg.Publishing.PlatformTimeout,
		BulkConcurrency: cfg.Publishing.BulkConcurrency,
		OnPromoted: func(articleID uint) {
			if err := tagService.RecountUsage(); err != nil {
				orchestratorLog.Warn("recount tag usage", "article_id", articleID, "error", err)
			}
		},
	})
	queue := services.NewPublishQueue(jobRepo, articleRepo, registry, ledger, orchestrator, services.QueueConfig{
		MaxRetryAge:    cfg.Publishing.MaxRetryAge,
		RetryBaseDelay: cfg.Publishing.RetryBaseDelay,
		RetryMaxDelay:  cfg.Publishing.RetryMaxDelay,
	}, logger.With("component", "queue"))

	var worker *services.QueueWorker
	if cfg.Queue.WorkerEnabled {
		worker = services.NewQueueWorker(queue, cfg.Queue.PollInterval, cfg.Queue.RetryInterval, cfg.Publishing.MaxRetries,
			logger.With("component", "queue-worker"))
		worker.Start(ctx)
	}
	metrics.StartDBCollectors(ctx, db, 30*time.Second, logger.With("component", "metrics"))

	// Initialize handlers
	httpHelper := helper.NewHTTPHelper()
	httpLog := logger.With("component", "http")
	router := handlers.NewRouter(handlers.RouterDeps{
		JWTSecret:   cfg.Auth.JWTSecret,
		Users:       userService,
		Profile:     handlers.NewProfileHandler(userService, httpHelper, httpLog),
		Articles:    handlers.NewArticleHandler(articleService, httpHelper, httpLog),
		Tags:        handlers.NewTagHandler(tagService, httpHelper, httpLog),
		Connections: handlers.NewConnectionHandler(connections, gate, httpHelper, httpLog),
		Publishing: handlers.NewPublishHandler(handlers.PublishHandlerDeps{
			Articles:     articleService,
			Orchestrator: orchestrator,
			Ledger:       ledger,
			Queue:        queue,
			Gate:         gate,
			MaxRetries:   cfg.Publishing.MaxRetries,
			MaxRetryAge:  cfg.Publishing.MaxRetryAge,
		}, httpHelper, httpLog),
		Admin: handlers.NewAdminHandler(queue, cfg.Publishing.MaxRetries, httpHelper, httpLog),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "queue_worker", cfg.Queue.WorkerEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		stop()
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}

	// ledger writes from detached attempts must land before the database closes
	if worker != nil {
		worker.Wait()
	}
	if err := orchestrator.Drain(shutdownCtx); err != nil {
		logger.Warn("publish attempts still running at shutdown", "error", err)
	}
	return serveErr
}

func oauthApp(cfg config.OAuthAppConfig) platforms.OAuthApp {
	return platforms.OAuthApp{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}
}

// newEventPublisher uses Kafka when brokers are configured.
func newEventPublisher(cfg config.KafkaConfig, logger *slog.Logger) (events.Publisher, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info("no kafka brokers configured, publish events are dropped")
		return events.NopPublisher{}, nil
	}
	publisher, err := events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	logger.Info("publish events go to kafka", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return publisher, nil
}
