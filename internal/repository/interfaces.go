package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
)

// All repository interfaces in one file
type (
	TemplateRepository interface {
		Create(ctx context.Context, tmpl *model.NotificationTemplate) error
		Get(ctx context.Context, id uuid.UUID) (*model.NotificationTemplate, error)
		Update(ctx context.Context, tmpl *model.NotificationTemplate) error
		List(ctx context.Context, activeOnly bool) ([]*model.NotificationTemplate, error)
		// GetActiveByName and GetActiveByType return model.ErrNotFound when no active template matches.
		GetActiveByName(ctx context.Context, name string) (*model.NotificationTemplate, error)
		GetActiveByType(ctx context.Context, typ model.NotificationType) (*model.NotificationTemplate, error)
		// GetByNameOrType matches any template, active or not.
		GetByNameOrType(ctx context.Context, name string, typ model.NotificationType) (*model.NotificationTemplate, error)
	}

	NotificationLogRepository interface {
		Create(ctx context.Context, log *model.NotificationLog) error
		Get(ctx context.Context, id uuid.UUID) (*model.NotificationLog, error)
		GetByTrackingID(ctx context.Context, trackingID uuid.UUID) (*model.NotificationLog, error)
		List(ctx context.Context, filter model.LogFilter) ([]*model.NotificationLog, int, error)
		// UpdateState persists status and tracking fields only if the stored status
		// still equals expected. It returns model.ErrStaleState otherwise.
		UpdateState(ctx context.Context, log *model.NotificationLog, expected model.NotificationStatus) error
		ListRetryable(ctx context.Context, now time.Time, limit int) ([]*model.NotificationLog, error)
		// ExpirePending fails the logs among ids that are still PENDING and
		// spends their retries. Only id and campaign_id are set on the result.
		ExpirePending(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*model.NotificationLog, error)
		DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
		CountsForDay(ctx context.Context, day time.Time) ([]model.LogCounts, error)
		// CountByCampaign counts the logs created for a campaign and how many of
		// them may still be sent.
		CountByCampaign(ctx context.Context, campaignID uuid.UUID) (model.CampaignLogCounts, error)
	}

	SMSRepository interface {
		Create(ctx context.Context, sms *model.SMSNotification) error
		GetByLogID(ctx context.Context, logID uuid.UUID) (*model.SMSNotification, error)
		UpdateState(ctx context.Context, sms *model.SMSNotification, expected model.SMSStatus) error
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	QueueRepository interface {
		Create(ctx context.Context, item *model.QueueItem) error
		Get(ctx context.Context, id uuid.UUID) (*model.QueueItem, error)
		GetByLogID(ctx context.Context, logID uuid.UUID) (*model.QueueItem, error)
		List(ctx context.Context, status model.QueueStatus, page model.Pagination) ([]*model.QueueItem, error)
		Stats(ctx context.Context) (*model.QueueStats, error)
		// ClaimBatch atomically moves up to limit due PENDING items whose log
		// channel is in channels to PROCESSING for workerID, in dispatch order.
		ClaimBatch(ctx context.Context, workerID string, channels []model.Channel, now time.Time, limit int) ([]*model.QueueItem, error)
		// Claim moves a single item to PROCESSING only if it is still PENDING.
		Claim(ctx context.Context, id uuid.UUID, workerID string, now time.Time) (*model.QueueItem, error)
		UpdateState(ctx context.Context, item *model.QueueItem, expected model.QueueStatus) error
		ListRetryable(ctx context.Context, now time.Time, limit int) ([]*model.QueueItem, error)
		// CancelExpired cancels PENDING items whose expires_at has passed and
		// returns the log ids of the cancelled items.
		CancelExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
		DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	CampaignRepository interface {
		Create(ctx context.Context, campaign *model.BulkNotification) error
		Get(ctx context.Context, id uuid.UUID) (*model.BulkNotification, error)
		List(ctx context.Context, status model.CampaignStatus, page model.Pagination) ([]*model.BulkNotification, error)
		UpdateState(ctx context.Context, campaign *model.BulkNotification, expected model.CampaignStatus) error
		UpdateRecipients(ctx context.Context, campaign *model.BulkNotification) error
		AddProgress(ctx context.Context, id uuid.UUID, delta model.ProgressDelta) (*model.BulkNotification, error)
		// AdvanceCursor is a compare-and-swap on queued_count.
		AdvanceCursor(ctx context.Context, id uuid.UUID, from, to int) error
		ListRunnable(ctx context.Context, now time.Time) ([]*model.BulkNotification, error)
	}

	// RecipientDirectory resolves portal users and supplier applications to addresses.
	RecipientDirectory interface {
		Users(ctx context.Context, ids []uuid.UUID) ([]model.Recipient, error)
		Applications(ctx context.Context, ids []uuid.UUID) ([]model.Recipient, error)
		Admins(ctx context.Context) ([]model.Recipient, error)
	}

	AnalyticsRepository interface {
		Upsert(ctx context.Context, row *model.NotificationAnalytics) error
		List(ctx context.Context, filter model.AnalyticsFilter) ([]*model.NotificationAnalytics, error)
	}

	ServiceRepository interface {
		Upsert(ctx context.Context, svc *model.NotificationService) error
		Get(ctx context.Context, id uuid.UUID) (*model.NotificationService, error)
		GetByName(ctx context.Context, name string) (*model.NotificationService, error)
		List(ctx context.Context) ([]*model.NotificationService, error)
		UpdateControl(ctx context.Context, svc *model.NotificationService, expected model.ServiceStatus) error
		UpdateHealth(ctx context.Context, svc *model.NotificationService) error
	}
)
