package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
)

type LogAction string

const (
	ActionRetry  LogAction = "retry"
	ActionPause  LogAction = "pause"
	ActionResume LogAction = "resume"
	ActionDelete LogAction = "delete"
)

type PurgeResult struct {
	Logs       int64 `json:"logs"`
	SMS        int64 `json:"sms"`
	QueueItems int64 `json:"queue_items"`
}

// BulkAction applies action to every log in ids and returns how many rows
// changed. Logs the action does not apply to are skipped.
func (s *service) BulkAction(ctx context.Context, action LogAction, ids []uuid.UUID) (int, error) {
	if action == ActionDelete {
		n, err := s.logs.DeleteByIDs(ctx, ids)
		return int(n), err
	}

	var apply func(context.Context, *model.NotificationLog) (bool, error)
	switch action {
	case ActionRetry:
		apply = s.retryLog
	case ActionPause:
		apply = s.pauseLog
	case ActionResume:
		apply = s.resumeLog
	default:
		return 0, apperrors.BadRequest(fmt.Sprintf("unknown action %q", action), nil)
	}

	count := 0
	for _, id := range ids {
		log, err := s.logs.Get(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return count, err
		}
		changed, err := apply(ctx, log)
		if err != nil {
			return count, err
		}
		if changed {
			count++
		}
	}
	return count, nil
}

// RetryFailed schedules a retry for every failed log still within its budget.
func (s *service) RetryFailed(ctx context.Context, limit int) (int, error) {
	logs, err := s.logs.ListRetryable(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, log := range logs {
		changed, err := s.retryLog(ctx, log)
		if err != nil {
			s.logger.WithContext(ctx).Error(err, "Failed to retry notification", "log_id", log.ID.String())
			continue
		}
		if changed {
			count++
		}
	}
	return count, nil
}

func (s *service) retryLog(ctx context.Context, log *model.NotificationLog) (bool, error) {
	now := s.now()
	if !log.ScheduleRetry(s.config.LogRetryDelay, now) {
		return false, nil
	}
	if err := s.logs.UpdateState(ctx, log, model.NotificationStatusFailed); err != nil {
		if errors.Is(err, model.ErrStaleState) {
			return false, nil
		}
		return false, err
	}

	s.cancelQueued(ctx, log.ID, model.QueueStatusFailed)
	if err := s.enqueue(ctx, log, model.PriorityNormal, *log.NextRetryAt); err != nil {
		return true, err
	}
	s.metrics.QueueRetries.Inc()
	return true, nil
}

func (s *service) pauseLog(ctx context.Context, log *model.NotificationLog) (bool, error) {
	if err := log.Pause(s.now()); err != nil {
		return false, nil
	}
	if err := s.logs.UpdateState(ctx, log, model.NotificationStatusPending); err != nil {
		if errors.Is(err, model.ErrStaleState) {
			return false, nil
		}
		return false, err
	}
	s.cancelQueued(ctx, log.ID, model.QueueStatusPending)
	return true, nil
}

func (s *service) resumeLog(ctx context.Context, log *model.NotificationLog) (bool, error) {
	if err := log.Resume(s.now()); err != nil {
		return false, nil
	}
	if err := s.logs.UpdateState(ctx, log, model.NotificationStatusPaused); err != nil {
		if errors.Is(err, model.ErrStaleState) {
			return false, nil
		}
		return false, err
	}
	if err := s.enqueue(ctx, log, model.PriorityNormal, time.Time{}); err != nil {
		return true, err
	}
	return true, nil
}

// cancelQueued cancels the latest queue item of a log if it is still in status.
func (s *service) cancelQueued(ctx context.Context, logID uuid.UUID, status model.QueueStatus) {
	item, err := s.queue.GetByLogID(ctx, logID)
	if err != nil || item.Status != status {
		return
	}
	if err := item.Cancel(s.now()); err != nil {
		return
	}
	if err := s.queue.UpdateState(ctx, item, status); err != nil && !errors.Is(err, model.ErrStaleState) {
		s.logger.WithContext(ctx).Error(err, "Failed to cancel queue item", "queue_id", item.ID.String())
	}
}

// Purge deletes logs, SMS records and finished queue items created before cutoff.
func (s *service) Purge(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	var res PurgeResult
	var err error

	if res.QueueItems, err = s.queue.DeleteFinishedBefore(ctx, cutoff); err != nil {
		return res, err
	}
	if res.SMS, err = s.sms.DeleteBefore(ctx, cutoff); err != nil {
		return res, err
	}
	if res.Logs, err = s.logs.DeleteBefore(ctx, cutoff); err != nil {
		return res, err
	}

	s.logger.WithContext(ctx).Info("Purged notification history",
		"cutoff", cutoff.Format(time.RFC3339), "logs", res.Logs, "sms", res.SMS, "queue_items", res.QueueItems)
	return res, nil
}
