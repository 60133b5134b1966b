package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/pkg/logger"
)

// CleanupWorker purges notification history past the retention window.
type CleanupWorker struct {
	notifications notification.Service
	retentionDays int
	logger        *logger.Logger
	now           func() time.Time
}

func NewCleanupWorker(notifications notification.Service, retentionDays int, log *logger.Logger) *CleanupWorker {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &CleanupWorker{
		notifications: notifications,
		retentionDays: retentionDays,
		logger:        log,
		now:           time.Now,
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	cutoff := w.now().AddDate(0, 0, -w.retentionDays)

	res, err := w.notifications.Purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge notification history: %w", err)
	}

	w.logger.Info("Cleaned up notification history",
		"cutoff", cutoff.Format(time.RFC3339), "logs", res.Logs, "sms", res.SMS, "queue_items", res.QueueItems)
	return nil
}
