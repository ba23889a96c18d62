package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/quickbites/identity-service/internal/api/http"
	"github.com/quickbites/identity-service/internal/api/http/handlers"
	"github.com/quickbites/identity-service/internal/auth"
	"github.com/quickbites/identity-service/internal/config"
	"github.com/quickbites/identity-service/internal/domain"
	"github.com/quickbites/identity-service/internal/events"
	"github.com/quickbites/identity-service/internal/identity"
	"github.com/quickbites/identity-service/internal/mail"
	"github.com/quickbites/identity-service/internal/media"
	"github.com/quickbites/identity-service/internal/observability"
	"github.com/quickbites/identity-service/internal/persistence"
	"github.com/quickbites/identity-service/internal/repository"
	"github.com/quickbites/identity-service/internal/service"
	"github.com/quickbites/identity-service/internal/worker"
)

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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redis.Close()

	pool := pg.PoolHandle()
	directory := repository.NewDirectory(
		repository.NewPrincipalRepository(pool, domain.RoleAdmin),
		repository.NewPrincipalRepository(pool, domain.RoleSeller),
		repository.NewPrincipalRepository(pool, domain.RoleUser),
	)
	codeRepo := repository.NewCodeRepository(redis.Client)

	mailer, err := mail.New(cfg.Mail, logger)
	if err != nil {
		logger.Fatal("failed to init mailer", zap.Error(err))
	}

	if !cfg.Google.Enabled() {
		logger.Warn("GOOGLE_CLIENT_ID not provided; identity-provider login is disabled")
	}
	bridge := identity.NewGoogleBridge(cfg.Google)

	var photos media.PhotoStore
	photoStore, err := media.NewS3PhotoStore(ctx, cfg.Storage)
	switch {
	case errors.Is(err, media.ErrStorageDisabled):
		logger.Warn("S3_BUCKET not provided; profile photo uploads are disabled")
	case err != nil:
		logger.Fatal("failed to init photo storage", zap.Error(err))
	default:
		photos = photoStore
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, mailer, logger))

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		Principals: directory,
		Codes:      codeRepo,
		Identity:   bridge,
		Mailer:     mailer,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	profileService := service.NewProfileService(directory, codeRepo, photos, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), directory)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		BodyLimit:    1 << 20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Profile:        handlers.NewProfileHandler(profileService),
		Admin:          handlers.NewAdminHandler(profileService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
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
