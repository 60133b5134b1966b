package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
)

// Error codes recorded on queue items.
const (
	CodeDeliveryFailed = "DELIVERY_FAILED"
	CodeNotPending     = "NOT_PENDING"
	CodeLogMissing     = "LOG_MISSING"
	CodeNotRetryable   = "LOG_NOT_RETRYABLE"
	CodeInternal       = "INTERNAL_ERROR"
)

type Action string

const (
	ActionRetry  Action = "retry"
	ActionCancel Action = "cancel"
	ActionAssign Action = "assign"
)

// ActionResult is returned by operator queue controls.
type ActionResult struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	ItemStatus model.QueueStatus `json:"item_status"`
	RetryCount int               `json:"retry_count"`
	CanRetry   bool              `json:"can_retry"`
}

type Config struct {
	// RetryDelay is how long a failed item waits before it is dispatched again.
	RetryDelay time.Duration
}

type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*model.QueueItem, error)
	List(ctx context.Context, status model.QueueStatus, page model.Pagination) ([]*model.QueueItem, error)
	Stats(ctx context.Context) (*model.QueueStats, error)

	Claim(ctx context.Context, workerID string, channels []model.Channel, limit int) ([]*model.QueueItem, error)
	Complete(ctx context.Context, item *model.QueueItem) error
	Fail(ctx context.Context, item *model.QueueItem, msg, code string) error
	Cancel(ctx context.Context, item *model.QueueItem, code string) error

	Control(ctx context.Context, id uuid.UUID, action Action, workerID string) (*ActionResult, error)
	ScheduleRetries(ctx context.Context, limit int) (int, error)
	CancelExpired(ctx context.Context) (int64, error)
	RefreshDepth(ctx context.Context) (*model.QueueStats, error)
}

type service struct {
	queue     repository.QueueRepository
	logs      repository.NotificationLogRepository
	campaigns repository.CampaignRepository
	config    Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(queue repository.QueueRepository, logs repository.NotificationLogRepository, campaigns repository.CampaignRepository, config Config, log *logger.Logger, m *metrics.Metrics) Service {
	if config.RetryDelay <= 0 {
		config.RetryDelay = model.DefaultQueueRetryWait
	}
	return &service{
		queue:     queue,
		logs:      logs,
		campaigns: campaigns,
		config:    config,
		logger:    log,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.QueueItem, error) {
	return s.queue.Get(ctx, id)
}

func (s *service) List(ctx context.Context, status model.QueueStatus, page model.Pagination) ([]*model.QueueItem, error) {
	return s.queue.List(ctx, status, page.Normalize())
}

func (s *service) Stats(ctx context.Context) (*model.QueueStats, error) {
	return s.queue.Stats(ctx)
}

// Claim hands up to limit due items to workerID. Each item is claimed by at
// most one worker.
func (s *service) Claim(ctx context.Context, workerID string, channels []model.Channel, limit int) ([]*model.QueueItem, error) {
	items, err := s.queue.ClaimBatch(ctx, workerID, channels, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue items: %w", err)
	}
	s.metrics.QueueClaimed.Add(float64(len(items)))
	return items, nil
}

func (s *service) Complete(ctx context.Context, item *model.QueueItem) error {
	if err := item.MarkCompleted(nil, s.now()); err != nil {
		return err
	}
	return s.queue.UpdateState(ctx, item, model.QueueStatusProcessing)
}

func (s *service) Fail(ctx context.Context, item *model.QueueItem, msg, code string) error {
	if err := item.MarkFailed(msg, code, s.now()); err != nil {
		return err
	}
	return s.queue.UpdateState(ctx, item, model.QueueStatusProcessing)
}

// Cancel stops an item that has nothing left to send.
func (s *service) Cancel(ctx context.Context, item *model.QueueItem, code string) error {
	expected := item.Status
	if err := item.Cancel(s.now()); err != nil {
		return err
	}
	item.ErrorCode = code
	return s.queue.UpdateState(ctx, item, expected)
}

func result(item *model.QueueItem, ok bool, msg string, now time.Time) *ActionResult {
	return &ActionResult{
		Success:    ok,
		Message:    msg,
		ItemStatus: item.Status,
		RetryCount: item.RetryCount,
		CanRetry:   item.CanRetry(now),
	}
}

// Control applies an operator action. Actions that do not apply to the
// item's current state report Success=false instead of an error.
func (s *service) Control(ctx context.Context, id uuid.UUID, action Action, workerID string) (*ActionResult, error) {
	item, err := s.queue.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	switch action {
	case ActionRetry:
		if !item.CanRetry(now) {
			return result(item, false, "Item cannot be retried", now), nil
		}
		ok, msg, err := s.retry(ctx, item)
		if err != nil {
			return nil, err
		}
		return result(item, ok, msg, s.now()), nil

	case ActionCancel:
		if err := s.Cancel(ctx, item, ""); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				return result(item, false, fmt.Sprintf("Cannot cancel item in status %s", item.Status), now), nil
			}
			return nil, err
		}
		return result(item, true, "Item cancelled", now), nil

	case ActionAssign:
		if workerID == "" {
			workerID = model.ManualWorkerID
		}
		claimed, err := s.queue.Claim(ctx, id, workerID, now)
		if errors.Is(err, model.ErrStaleState) {
			return result(item, false, fmt.Sprintf("Cannot assign item in status %s", item.Status), now), nil
		}
		if err != nil {
			return nil, err
		}
		return result(claimed, true, fmt.Sprintf("Item assigned to %s", workerID), now), nil
	}
	return nil, apperrors.BadRequest(fmt.Sprintf("unknown queue action %q", action), nil)
}

// retry moves a FAILED item and its FAILED log back to PENDING. Items whose
// log cannot be sent again are cancelled.
func (s *service) retry(ctx context.Context, item *model.QueueItem) (bool, string, error) {
	now := s.now()
	log, err := s.logs.Get(ctx, item.NotificationLogID)
	if errors.Is(err, model.ErrNotFound) {
		return false, "Notification log no longer exists", s.Cancel(ctx, item, CodeLogMissing)
	}
	if err != nil {
		return false, "", err
	}

	switch log.Status {
	case model.NotificationStatusFailed:
		if !log.ScheduleRetry(s.config.RetryDelay, now) {
			return false, "Notification retry budget exhausted", s.Cancel(ctx, item, CodeNotRetryable)
		}
		if err := s.logs.UpdateState(ctx, log, model.NotificationStatusFailed); err != nil {
			if errors.Is(err, model.ErrStaleState) {
				return false, "Notification changed concurrently", nil
			}
			return false, "", err
		}
	case model.NotificationStatusPending:
	default:
		return false, fmt.Sprintf("Notification is %s", log.Status), s.Cancel(ctx, item, CodeNotPending)
	}

	if !item.ScheduleRetry(s.config.RetryDelay, now) {
		return false, "Item cannot be retried", nil
	}
	if err := s.queue.UpdateState(ctx, item, model.QueueStatusFailed); err != nil {
		if errors.Is(err, model.ErrStaleState) {
			return false, "Item changed concurrently", nil
		}
		return false, "", err
	}
	s.metrics.QueueRetries.Inc()
	return true, fmt.Sprintf("Retry scheduled for %s", item.ScheduledAt.Format(time.RFC3339)), nil
}

// ScheduleRetries requeues every failed item whose retry window has opened.
func (s *service) ScheduleRetries(ctx context.Context, limit int) (int, error) {
	items, err := s.queue.ListRetryable(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable queue items: %w", err)
	}
	count := 0
	for _, item := range items {
		ok, msg, err := s.retry(ctx, item)
		if err != nil {
			s.logger.WithContext(ctx).Error(err, "Failed to retry queue item", "queue_id", item.ID.String())
			continue
		}
		if ok {
			count++
		} else {
			s.logger.WithContext(ctx).Debug("Queue item not retried", "queue_id", item.ID.String(), "reason", msg)
		}
	}
	return count, nil
}

// CancelExpired cancels PENDING items past their expires_at and fails the
// logs they were carrying. Expired campaign logs count as campaign failures.
func (s *service) CancelExpired(ctx context.Context) (int64, error) {
	now := s.now()
	logIDs, err := s.queue.CancelExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel expired queue items: %w", err)
	}
	if len(logIDs) == 0 {
		return 0, nil
	}
	n := int64(len(logIDs))
	s.logger.WithContext(ctx).Info("Cancelled expired queue items", "count", n)

	expired, err := s.logs.ExpirePending(ctx, logIDs, now)
	if err != nil {
		return n, fmt.Errorf("failed to expire notification logs: %w", err)
	}
	failed := map[uuid.UUID]int{}
	for _, log := range expired {
		if log.CampaignID != nil {
			failed[*log.CampaignID]++
		}
	}
	for id, count := range failed {
		if _, err := s.campaigns.AddProgress(ctx, id, model.ProgressDelta{Failed: count}); err != nil {
			s.logger.WithContext(ctx).Error(err, "Failed to update campaign progress", "campaign_id", id.String())
		}
	}
	return n, nil
}

// RefreshDepth publishes queue sizes per status.
func (s *service) RefreshDepth(ctx context.Context) (*model.QueueStats, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for status, n := range map[model.QueueStatus]int{
		model.QueueStatusPending:    stats.Pending,
		model.QueueStatusProcessing: stats.Processing,
		model.QueueStatusCompleted:  stats.Completed,
		model.QueueStatusFailed:     stats.Failed,
		model.QueueStatusCancelled:  stats.Cancelled,
	} {
		s.metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
	return stats, nil
}
