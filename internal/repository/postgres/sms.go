package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

const smsColumns = `id, notification_log_id, recipient_phone, recipient_name, message, template_name, status,
	error_message, external_id, cost, sent_at, delivered_at, application_id, user_id,
	retry_count, max_retries, next_retry_at, created_at, updated_at`

type smsRepository struct {
	BaseRepository
}

func NewSMSRepository(base BaseRepository) repository.SMSRepository {
	return &smsRepository{base}
}

func (r *smsRepository) Create(ctx context.Context, sms *model.SMSNotification) error {
	if sms.ID == uuid.Nil {
		sms.ID = uuid.New()
	}
	now := time.Now()
	sms.CreatedAt = now
	sms.UpdatedAt = now
	if sms.Status == "" {
		sms.Status = model.SMSStatusPending
	}

	query := `
		INSERT INTO sms_notifications (` + smsColumns + `)
		VALUES (:id, :notification_log_id, :recipient_phone, :recipient_name, :message, :template_name, :status,
			:error_message, :external_id, :cost, :sent_at, :delivered_at, :application_id, :user_id,
			:retry_count, :max_retries, :next_retry_at, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, sms); err != nil {
		return fmt.Errorf("failed to create sms notification: %w", err)
	}
	return nil
}

func (r *smsRepository) GetByLogID(ctx context.Context, logID uuid.UUID) (*model.SMSNotification, error) {
	var sms model.SMSNotification
	query := `SELECT ` + smsColumns + ` FROM sms_notifications WHERE notification_log_id = $1`
	if err := r.db.GetContext(ctx, &sms, query, logID); err != nil {
		return nil, notFound(err, "sms notification")
	}
	return &sms, nil
}

func (r *smsRepository) UpdateState(ctx context.Context, sms *model.SMSNotification, expected model.SMSStatus) error {
	query := `
		UPDATE sms_notifications
		SET status = $1, error_message = $2, external_id = $3, cost = $4, sent_at = $5, delivered_at = $6,
			retry_count = $7, next_retry_at = $8, updated_at = $9
		WHERE id = $10 AND status = $11
	`
	res, err := r.db.ExecContext(ctx, query,
		string(sms.Status), sms.ErrorMessage, sms.ExternalID, sms.Cost, sms.SentAt, sms.DeliveredAt,
		sms.RetryCount, sms.NextRetryAt, sms.UpdatedAt,
		sms.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update sms notification: %w", err)
	}
	return requireOne(res, "sms notification")
}

func (r *smsRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sms_notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sms notifications: %w", err)
	}
	return res.RowsAffected()
}
