package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/supplierportal/notify-api/config"
	"github.com/supplierportal/notify-api/internal/gateway"
	"github.com/supplierportal/notify-api/internal/repository/postgres"
	analyticsService "github.com/supplierportal/notify-api/internal/service/analytics"
	campaignService "github.com/supplierportal/notify-api/internal/service/campaign"
	"github.com/supplierportal/notify-api/internal/service/notification"
	queueService "github.com/supplierportal/notify-api/internal/service/queue"
	"github.com/supplierportal/notify-api/internal/service/registry"
	"github.com/supplierportal/notify-api/internal/template"
	"github.com/supplierportal/notify-api/pkg/circuitbreaker"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/messaging/redis"
	"github.com/supplierportal/notify-api/pkg/metrics"
	"github.com/supplierportal/notify-api/pkg/security"
)

// Infra holds the external connections shared by both binaries.
type Infra struct {
	DB     *sqlx.DB
	Redis  *goredis.Client
	Broker *redis.RedisBroker
}

// Connect opens the database and Redis connections described by cfg. Redis
// commands are recorded in m.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Infra, error) {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	client, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		db.Close()
		return nil, err
	}
	redis.Instrument(client, m)

	return &Infra{
		DB:     db,
		Redis:  client,
		Broker: redis.NewRedisBrokerFromClient(client, log.Zerolog()),
	}, nil
}

func (i *Infra) Close() {
	if i.Broker != nil {
		i.Broker.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// App is the assembled service graph.
type App struct {
	Repos         *postgres.Repositories
	Templates     *template.Store
	Gateway       *gateway.Gateway
	Notifications notification.Service
	Notifier      notification.Notifier
	Queue         queueService.Service
	Campaigns     campaignService.Service
	Analytics     analyticsService.Service
	Registry      registry.Service
}

func New(ctx context.Context, cfg *config.Config, db *sqlx.DB, log *logger.Logger, m *metrics.Metrics) (*App, error) {
	repos := postgres.NewRepositories(db)

	templates := template.NewStore(repos.Templates, template.Config{
		AutoCreate: cfg.TemplateAutoCreate(),
		CacheTTL:   cfg.Templates.CacheTTL,
	}, log, m)

	breaker := gateway.NewAPIBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})
	gw, err := gateway.New(ctx, cfg.Gateway.ToClientConfig(), breaker, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to configure gateway: %w", err)
	}

	notifications := notification.NewService(notification.Dependencies{
		Logs:      repos.Logs,
		SMS:       repos.SMS,
		Queue:     repos.Queue,
		Campaigns: repos.Campaigns,
		Templates: templates,
		Sender:    gw,
		Signer:    security.NewSigner(cfg.Tracking.SigningKey),
		Logger:    log,
		Metrics:   m,
	}, notification.Config{
		LogRetryDelay:     cfg.Queue.LogRetryDelay,
		DefaultMaxRetries: cfg.Queue.DefaultMaxRetries,
		QueueItemTTL:      cfg.Queue.ItemTTL,
		TrackingBaseURL:   cfg.Tracking.BaseURL,
	})

	return &App{
		Repos:         repos,
		Templates:     templates,
		Gateway:       gw,
		Notifications: notifications,
		Notifier: notification.NewNotifier(notifications, repos.Directory, notification.NotifierConfig{
			PortalURL:  cfg.Portal.URL,
			AdminURL:   cfg.Portal.AdminURL,
			SMSEnabled: cfg.Portal.SMSEnabled,
		}, log),
		Queue: queueService.NewService(repos.Queue, repos.Logs, repos.Campaigns, queueService.Config{
			RetryDelay: cfg.Queue.RetryDelay,
		}, log, m),
		Campaigns: campaignService.NewService(campaignService.Dependencies{
			Campaigns:     repos.Campaigns,
			Logs:          repos.Logs,
			Directory:     repos.Directory,
			Templates:     templates,
			Notifications: notifications,
			Logger:        log,
			Metrics:       m,
		}, campaignService.Config{}),
		Analytics: analyticsService.NewService(repos.Logs, repos.Analytics, log),
		Registry:  registry.NewService(repos.Services, cfg.Registry.HeartbeatTimeout, log),
	}, nil
}

// NewLogger builds the process logger from the logging section. service names
// the binary in every line.
func NewLogger(cfg config.LoggingConfig, service string) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Level),
		Console: cfg.Console,
		Service: service,
	})
}
