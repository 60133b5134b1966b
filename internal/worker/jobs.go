package worker

import (
	"context"
	"time"

	"github.com/supplierportal/notify-api/internal/service/analytics"
	"github.com/supplierportal/notify-api/internal/service/campaign"
	"github.com/supplierportal/notify-api/internal/service/queue"
	"github.com/supplierportal/notify-api/internal/service/registry"
	"github.com/supplierportal/notify-api/pkg/logger"
	pkgworker "github.com/supplierportal/notify-api/pkg/worker"
)

// QueueMaintenanceJob requeues failed items whose retry window opened,
// cancels expired ones and refreshes the queue depth gauges.
func QueueMaintenanceJob(q queue.Service, limit int, log *logger.Logger) pkgworker.Job {
	return func(ctx context.Context) error {
		retried, err := q.ScheduleRetries(ctx, limit)
		if err != nil {
			return err
		}
		expired, err := q.CancelExpired(ctx)
		if err != nil {
			return err
		}
		if _, err := q.RefreshDepth(ctx); err != nil {
			return err
		}
		if retried > 0 || expired > 0 {
			log.Info("Queue maintenance", "retried", retried, "expired", expired)
		}
		return nil
	}
}

func CampaignJob(campaigns campaign.Service) pkgworker.Job {
	return func(ctx context.Context) error {
		_, err := campaigns.Execute(ctx)
		return err
	}
}

// AnalyticsJob rebuilds today and yesterday, so late status changes of
// yesterday's logs are picked up once.
func AnalyticsJob(a analytics.Service) pkgworker.Job {
	return func(ctx context.Context) error {
		_, err := a.GenerateRange(ctx, time.Now(), 2)
		return err
	}
}

func RegistrySweepJob(services registry.Service) pkgworker.Job {
	return func(ctx context.Context) error {
		_, err := services.SweepStale(ctx)
		return err
	}
}
