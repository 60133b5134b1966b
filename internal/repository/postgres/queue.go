package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

const queueColumns = `id, notification_log_id, campaign_id, priority, status, scheduled_at, expires_at,
	retry_count, max_retries, next_retry_at, assigned_worker, processing_started_at, processed_at,
	processing_duration_ms, error_code, error_message, created_at, updated_at`

const priorityRank = `CASE q.priority WHEN 'URGENT' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'NORMAL' THEN 2 ELSE 1 END`

type queueRepository struct {
	BaseRepository
}

func NewQueueRepository(base BaseRepository) repository.QueueRepository {
	return &queueRepository{base}
}

func (r *queueRepository) Create(ctx context.Context, item *model.QueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = model.QueueStatusPending
	}
	if item.ScheduledAt.IsZero() {
		item.ScheduledAt = now
	}

	query := `
		INSERT INTO notification_queue (` + queueColumns + `)
		VALUES (:id, :notification_log_id, :campaign_id, :priority, :status, :scheduled_at, :expires_at,
			:retry_count, :max_retries, :next_retry_at, :assigned_worker, :processing_started_at, :processed_at,
			:processing_duration_ms, :error_code, :error_message, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("failed to create queue item: %w", err)
	}
	return nil
}

func (r *queueRepository) Get(ctx context.Context, id uuid.UUID) (*model.QueueItem, error) {
	var item model.QueueItem
	query := `SELECT ` + queueColumns + ` FROM notification_queue WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, notFound(err, "queue item")
	}
	return &item, nil
}

func (r *queueRepository) GetByLogID(ctx context.Context, logID uuid.UUID) (*model.QueueItem, error) {
	var item model.QueueItem
	query := `SELECT ` + queueColumns + ` FROM notification_queue WHERE notification_log_id = $1 ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &item, query, logID); err != nil {
		return nil, notFound(err, "queue item")
	}
	return &item, nil
}

func (r *queueRepository) List(ctx context.Context, status model.QueueStatus, page model.Pagination) ([]*model.QueueItem, error) {
	page = page.Normalize()
	query := `SELECT ` + queueColumns + ` FROM notification_queue q
		WHERE ($1 = '' OR q.status = $1)
		ORDER BY ` + priorityRank + ` DESC, q.scheduled_at ASC
		LIMIT $2 OFFSET $3`

	var items []*model.QueueItem
	if err := r.db.SelectContext(ctx, &items, query, string(status), page.PageSize, page.Offset()); err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	return items, nil
}

func (r *queueRepository) Stats(ctx context.Context) (*model.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE status = 'PROCESSING') AS processing,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
			COUNT(*) FILTER (WHERE status = 'CANCELLED') AS cancelled
		FROM notification_queue
	`
	var stats model.QueueStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &stats, nil
}

func (r *queueRepository) ClaimBatch(ctx context.Context, workerID string, channels []model.Channel, now time.Time, limit int) ([]*model.QueueItem, error) {
	if len(channels) == 0 || limit <= 0 {
		return nil, nil
	}
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = string(c)
	}

	query := `
		WITH due AS (
			SELECT q.id
			FROM notification_queue q
			JOIN notification_logs l ON l.id = q.notification_log_id
			WHERE q.status = 'PENDING'
				AND q.scheduled_at <= $1
				AND (q.next_retry_at IS NULL OR q.next_retry_at <= $1)
				AND (q.expires_at IS NULL OR q.expires_at > $1)
				AND l.channel = ANY($2)
			ORDER BY ` + priorityRank + ` DESC, q.scheduled_at ASC
			LIMIT $3
			FOR UPDATE OF q SKIP LOCKED
		)
		UPDATE notification_queue q
		SET status = 'PROCESSING', assigned_worker = $4, processing_started_at = $1, updated_at = $1
		FROM due
		WHERE q.id = due.id AND q.status = 'PENDING'
		RETURNING ` + prefixed("q.", queueColumns)

	var items []*model.QueueItem
	if err := r.db.SelectContext(ctx, &items, query, now, pq.Array(names), limit, workerID); err != nil {
		return nil, fmt.Errorf("failed to claim queue items: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return model.DispatchBefore(items[i], items[j]) })
	return items, nil
}

func (r *queueRepository) Claim(ctx context.Context, id uuid.UUID, workerID string, now time.Time) (*model.QueueItem, error) {
	query := `
		UPDATE notification_queue q
		SET status = 'PROCESSING', assigned_worker = $2, processing_started_at = $3, updated_at = $3
		WHERE q.id = $1 AND q.status = 'PENDING'
		RETURNING ` + prefixed("q.", queueColumns)

	var item model.QueueItem
	err := r.db.GetContext(ctx, &item, query, id, workerID, now)
	if err == nil {
		return &item, nil
	}
	if lookupErr := notFound(err, "queue item"); !errors.Is(lookupErr, model.ErrNotFound) {
		return nil, lookupErr
	}
	// no row updated: either missing or claimed by someone else
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, model.ErrStaleState
}

func (r *queueRepository) UpdateState(ctx context.Context, item *model.QueueItem, expected model.QueueStatus) error {
	query := `
		UPDATE notification_queue
		SET status = $1, retry_count = $2, next_retry_at = $3, scheduled_at = $4, assigned_worker = $5,
			processing_started_at = $6, processed_at = $7, processing_duration_ms = $8,
			error_code = $9, error_message = $10, expires_at = $11, updated_at = $12
		WHERE id = $13 AND status = $14
	`
	res, err := r.db.ExecContext(ctx, query,
		string(item.Status), item.RetryCount, item.NextRetryAt, item.ScheduledAt, item.AssignedWorker,
		item.ProcessingStartedAt, item.ProcessedAt, item.ProcessingMillis,
		item.ErrorCode, item.ErrorMessage, item.ExpiresAt, item.UpdatedAt,
		item.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	return requireOne(res, "queue item")
}

func (r *queueRepository) ListRetryable(ctx context.Context, now time.Time, limit int) ([]*model.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + ` FROM notification_queue
		WHERE status = 'FAILED' AND retry_count < max_retries AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY next_retry_at ASC NULLS FIRST
		LIMIT $2
	`
	var items []*model.QueueItem
	if err := r.db.SelectContext(ctx, &items, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list retryable queue items: %w", err)
	}
	return items, nil
}

func (r *queueRepository) CancelExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE notification_queue
		SET status = 'CANCELLED', error_code = $2, error_message = $3, updated_at = $1
		WHERE status = 'PENDING' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING notification_log_id
	`
	var logIDs []uuid.UUID
	if err := r.db.SelectContext(ctx, &logIDs, query, now, model.ExpiredCode, model.ExpiredMessage); err != nil {
		return nil, fmt.Errorf("failed to cancel expired queue items: %w", err)
	}
	return logIDs, nil
}

func (r *queueRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM notification_queue WHERE status IN ('COMPLETED', 'CANCELLED', 'FAILED') AND created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue items: %w", err)
	}
	return res.RowsAffected()
}
