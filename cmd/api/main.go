package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/supplierportal/notify-api/config"
	"github.com/supplierportal/notify-api/internal/app"
	analyticsHandler "github.com/supplierportal/notify-api/internal/handler/analytics"
	campaignHandler "github.com/supplierportal/notify-api/internal/handler/campaign"
	eventHandler "github.com/supplierportal/notify-api/internal/handler/event"
	"github.com/supplierportal/notify-api/internal/handler/health"
	"github.com/supplierportal/notify-api/internal/handler/logs"
	promhandler "github.com/supplierportal/notify-api/internal/handler/prometheus"
	queueHandler "github.com/supplierportal/notify-api/internal/handler/queue"
	serviceHandler "github.com/supplierportal/notify-api/internal/handler/service"
	templateHandler "github.com/supplierportal/notify-api/internal/handler/template"
	"github.com/supplierportal/notify-api/internal/handler/tracking"
	"github.com/supplierportal/notify-api/internal/middleware"
	"github.com/supplierportal/notify-api/internal/router"
	"github.com/supplierportal/notify-api/pkg/auth"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := app.NewLogger(cfg.Logging, "notify-api")
	log.Logger = *appLogger.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler := promhandler.New("notify")

	// Initialize database and Redis
	infra, err := app.Connect(ctx, cfg, appLogger, metricsHandler.Metrics())
	if err != nil {
		appLogger.Fatal(err, "failed to connect")
	}
	defer infra.Close()
	if err := metricsHandler.RegisterDB(infra.DB.DB, cfg.Database.Name); err != nil {
		appLogger.Warn("failed to register database stats", "error", err.Error())
	}

	// Initialize services
	a, err := app.New(ctx, cfg, infra.DB, appLogger, metricsHandler.Metrics())
	if err != nil {
		appLogger.Fatal(err, "failed to initialize services")
	}

	if cfg.TemplateAutoCreate() {
		if n, err := a.Templates.SeedDefaults(ctx); err != nil {
			appLogger.Error(err, "failed to seed default templates")
		} else if n > 0 {
			appLogger.Info("Seeded default templates", "created", n)
		}
	}

	if err := middleware.RegisterBindingValidators(); err != nil {
		appLogger.Fatal(err, "failed to register validators")
	}

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer))

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Security.AllowedOrigins
	}
	if len(cfg.Security.AllowedMethods) > 0 {
		cors.AllowMethods = cfg.Security.AllowedMethods
	}
	if len(cfg.Security.AllowedHeaders) > 0 {
		cors.AllowHeaders = cfg.Security.AllowedHeaders
	}

	// Setup router
	r := router.NewRouter(authMiddleware, metricsHandler, router.Handlers{
		Health: health.NewHandler(map[string]health.Pinger{
			"database": infra.DB,
			"redis":    health.PingFunc(infra.Broker.Ping),
		}),
		Tracking:  tracking.NewHandler(a.Notifications, appLogger),
		Templates: templateHandler.NewHandler(a.Templates),
		Logs:      logs.NewHandler(a.Notifications),
		Queue:     queueHandler.NewHandler(a.Queue),
		Campaigns: campaignHandler.NewHandler(a.Campaigns),
		Services:  serviceHandler.NewHandler(a.Registry),
		Analytics: analyticsHandler.NewHandler(a.Analytics),
		Events:    eventHandler.NewHandler(a.Notifier),
	}, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		RequestTimeout:   cfg.Server.RequestTimeout,
		CORSConfig:       cors,
	})
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		appLogger.Info("Starting API server", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(err, "failed to start server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
	}

	appLogger.Info("Server exited properly")
}
