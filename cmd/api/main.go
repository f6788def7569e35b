package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/medconcierge/intake-service/internal/api/http"
	"github.com/medconcierge/intake-service/internal/api/http/handlers"
	"github.com/medconcierge/intake-service/internal/auth"
	"github.com/medconcierge/intake-service/internal/config"
	"github.com/medconcierge/intake-service/internal/events"
	"github.com/medconcierge/intake-service/internal/notify"
	"github.com/medconcierge/intake-service/internal/observability"
	"github.com/medconcierge/intake-service/internal/persistence"
	"github.com/medconcierge/intake-service/internal/repository"
	"github.com/medconcierge/intake-service/internal/service"
)

const webhookTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	applicationRepo := repository.NewApplicationRepository(pool)
	historyRepo := repository.NewStatusHistoryRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	lookupRepo := repository.NewLookupRepository(pool)

	emailSender := notify.NewLogSender(logger)
	if cfg.Notification.SESEnabled {
		sesSender, err := notify.NewSESSender(ctx, cfg.Notification.SESRegion, cfg.Notification.EmailFrom)
		if err != nil {
			logger.Fatal("failed to init ses sender", zap.Error(err))
		}
		emailSender = sesSender
	}
	webhook := notify.NewWebhookPoster(cfg.Notification.WebhookURL, webhookTimeout)
	service.NewNotificationService(dispatcher, logger, emailSender, webhook).RegisterHandlers()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:          userRepo,
		ApplicationRepo:   applicationRepo,
		PasswordResetRepo: resetRepo,
		Limiter:           auth.NewAttemptLimiter(redis.Client, cfg.Auth.MaxAttempts, cfg.Auth.AttemptWindow()),
		Dispatcher:        dispatcher,
		Logger:            logger,
	})
	applicationService := service.NewApplicationService(service.ApplicationDependencies{
		ApplicationRepo: applicationRepo,
		HistoryRepo:     historyRepo,
		UserRepo:        userRepo,
		LookupRepo:      lookupRepo,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
		BcryptCost:      cfg.Auth.BcryptCost,
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		ApplicationRepo: applicationRepo,
		MessageRepo:     messageRepo,
		UserRepo:        userRepo,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:          cfg.App.RequestTimeout(),
		CORSAllowOrigins: cfg.App.CORSAllowOrigins,
	})

	routes := httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:           handlers.NewAuthHandler(authService),
		Admin:          handlers.NewAdminHandler(authService),
		Applications:   handlers.NewApplicationsHandler(applicationService),
		Messages:       handlers.NewMessagesHandler(messageService),
		AuthMiddleware: authMiddleware,
	}
	if cfg.Metrics.Enabled {
		routes.Metrics = metrics.Handler()
		routes.MetricsPath = cfg.Metrics.Path
	}
	httptransport.RegisterRoutes(app, routes)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
