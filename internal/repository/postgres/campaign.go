package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

const campaignColumns = `id, name, description, status, priority, channel, template_id,
	recipient_emails, recipient_phones, recipient_user_ids, recipient_application_ids,
	batch_size, delay_between_batches, max_retries, personalize_by_recipient, context_data,
	total_recipients, queued_count, processed_count, sent_count, failed_count, delivered_count, opened_count,
	delivery_rate, open_rate, failure_rate, scheduled_at, started_at, completed_at, created_by,
	created_at, updated_at`

type campaignRepository struct {
	BaseRepository
}

func NewCampaignRepository(base BaseRepository) repository.CampaignRepository {
	return &campaignRepository{base}
}

func (r *campaignRepository) Create(ctx context.Context, c *model.BulkNotification) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	c.CalculateRecipients()

	query := `
		INSERT INTO bulk_notifications (` + campaignColumns + `)
		VALUES (:id, :name, :description, :status, :priority, :channel, :template_id,
			:recipient_emails, :recipient_phones, :recipient_user_ids, :recipient_application_ids,
			:batch_size, :delay_between_batches, :max_retries, :personalize_by_recipient, :context_data,
			:total_recipients, :queued_count, :processed_count, :sent_count, :failed_count, :delivered_count, :opened_count,
			:delivery_rate, :open_rate, :failure_rate, :scheduled_at, :started_at, :completed_at, :created_by,
			:created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *campaignRepository) Get(ctx context.Context, id uuid.UUID) (*model.BulkNotification, error) {
	var c model.BulkNotification
	query := `SELECT ` + campaignColumns + ` FROM bulk_notifications WHERE id = $1`
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, notFound(err, "campaign")
	}
	return &c, nil
}

func (r *campaignRepository) List(ctx context.Context, status model.CampaignStatus, page model.Pagination) ([]*model.BulkNotification, error) {
	page = page.Normalize()
	query := `SELECT ` + campaignColumns + ` FROM bulk_notifications
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var campaigns []*model.BulkNotification
	if err := r.db.SelectContext(ctx, &campaigns, query, string(status), page.PageSize, page.Offset()); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *campaignRepository) UpdateState(ctx context.Context, c *model.BulkNotification, expected model.CampaignStatus) error {
	query := `
		UPDATE bulk_notifications
		SET status = $1, scheduled_at = $2, started_at = $3, completed_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		string(c.Status), c.ScheduledAt, c.StartedAt, c.CompletedAt, c.UpdatedAt,
		c.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return requireOne(res, "campaign")
}

func (r *campaignRepository) UpdateRecipients(ctx context.Context, c *model.BulkNotification) error {
	c.CalculateRecipients()
	c.UpdatedAt = time.Now()
	query := `
		UPDATE bulk_notifications
		SET recipient_emails = :recipient_emails, recipient_phones = :recipient_phones,
			recipient_user_ids = :recipient_user_ids, recipient_application_ids = :recipient_application_ids,
			total_recipients = :total_recipients, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return fmt.Errorf("failed to update campaign recipients: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// AddProgress applies counter deltas in place so the executor and tracking
// callbacks can update the same campaign concurrently.
func (r *campaignRepository) AddProgress(ctx context.Context, id uuid.UUID, d model.ProgressDelta) (*model.BulkNotification, error) {
	query := `
		UPDATE bulk_notifications SET
			sent_count = sent_count + $2,
			failed_count = failed_count + $3,
			delivered_count = delivered_count + $4,
			opened_count = opened_count + $5,
			processed_count = processed_count + $2 + $3,
			open_rate = COALESCE(ROUND(100.0 * (opened_count + $5) / NULLIF(sent_count + $2, 0), 2), 0),
			delivery_rate = COALESCE(ROUND(100.0 * (delivered_count + $4) / NULLIF(sent_count + $2, 0), 2), 0),
			failure_rate = COALESCE(ROUND(100.0 * (failed_count + $3) / NULLIF(processed_count + $2 + $3, 0), 2), 0),
			updated_at = $6
		WHERE id = $1
		RETURNING ` + campaignColumns

	var c model.BulkNotification
	if err := r.db.GetContext(ctx, &c, query, id, d.Sent, d.Failed, d.Delivered, d.Opened, time.Now()); err != nil {
		return nil, notFound(err, "campaign")
	}
	return &c, nil
}

// AdvanceCursor moves the executor position from one recipient slot to
// another. It fails with ErrStaleState when the stored position is not from.
func (r *campaignRepository) AdvanceCursor(ctx context.Context, id uuid.UUID, from, to int) error {
	query := `
		UPDATE bulk_notifications SET queued_count = $3, updated_at = $4
		WHERE id = $1 AND queued_count = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to advance campaign cursor: %w", err)
	}
	return requireOne(res, "campaign")
}

func (r *campaignRepository) ListRunnable(ctx context.Context, now time.Time) ([]*model.BulkNotification, error) {
	query := `
		SELECT ` + campaignColumns + ` FROM bulk_notifications
		WHERE status = 'RUNNING' OR (status = 'SCHEDULED' AND scheduled_at IS NOT NULL AND scheduled_at <= $1)
		ORDER BY CASE priority WHEN 'URGENT' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'NORMAL' THEN 2 ELSE 1 END DESC, created_at ASC
	`
	var campaigns []*model.BulkNotification
	if err := r.db.SelectContext(ctx, &campaigns, query, now); err != nil {
		return nil, fmt.Errorf("failed to list runnable campaigns: %w", err)
	}
	return campaigns, nil
}
