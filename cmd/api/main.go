package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-workflow/internal/api/http"
	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/blob"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/idempotency"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/memstore"
	"github.com/spec-kit/ticket-workflow/internal/service"
	"github.com/spec-kit/ticket-workflow/internal/worker"
	"github.com/spec-kit/ticket-workflow/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	feed := events.NewInMemoryFeed(logger)

	var (
		store     repository.Store
		directory repository.DirectoryRepository
	)
	if pg.Enabled() {
		store = repository.NewStore(pg.Pool)
		directory = store.Directory()
	} else {
		// Without a database there is no directory to check tokens against,
		// so token roles are trusted as issued.
		store = memstore.New(memstore.WithFeed(feed))
	}

	var blobs blob.Storage
	if cfg.Storage.Bucket != "" {
		s3, err := blob.NewS3(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to init blob storage", zap.Error(err))
		}
		blobs = s3
	} else {
		logger.Warn("STORAGE_BUCKET not provided; attachments kept in memory")
		blobs = blob.NewMemory(cfg.App.PublicURL + "/files")
	}

	var sender notification.Sender
	if cfg.Notification.Enabled() {
		sender = notification.NewGraphSender(ctx, cfg.Notification)
	} else {
		logger.Warn("graph credentials not provided; notifications are logged only")
		sender = notification.NewLogSender(logger)
	}

	var ledger idempotency.Ledger
	if redis.Enabled() {
		ledger = idempotency.NewRedisLedger(redis.Client, cfg.Workflow.IdempotencyTTL())
	} else {
		ledger = idempotency.NewMemoryLedger(cfg.Workflow.IdempotencyTTL())
	}

	metrics := observability.NewMetrics()

	notifier := service.NewNotificationService(service.NotificationDependencies{
		Directory: store.Directory(),
		Sender:    sender,
		Logger:    logger,
		PortalURL: cfg.App.PublicURL,
	})
	engine := workflow.NewEngine(workflow.EngineDependencies{
		Store:    store,
		Blobs:    blobs,
		Notifier: notifier,
		Ledger:   ledger,
		Metrics:  metrics,
		Logger:   logger,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:    store,
		Blobs:    blobs,
		Notifier: notifier,
		Logger:   logger,
	})

	board := service.NewBoard(store, feed, logger)
	if err := board.Start(ctx); err != nil {
		logger.Fatal("failed to load ticket board", zap.Error(err))
	}

	changeFeed := worker.NewChangeFeedWorker(pg, cfg.Postgres, feed, logger)
	changeFeed.Start(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, directory)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Dependency{
			"postgres": pg,
			"redis":    redis,
		}),
		Tickets: handlers.NewTicketsHandler(handlers.TicketsHandlerDependencies{
			Tickets: tickets,
			Board:   board,
			Engine:  engine,
			Blobs:   blobs,
		}),
		Users:          handlers.NewUsersHandler(directory),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	changeFeed.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
