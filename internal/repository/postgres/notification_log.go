package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

const logColumns = `id, template_id, template_name, channel, recipient_email, recipient_name, recipient_phone,
	subject, body_html, body_text, status, error_message, sent_at, delivered_at, opened_at, clicked_at,
	tracking_id, external_id, ip_address, user_agent, context_data, metadata, application_id, user_id,
	campaign_id, retry_count, max_retries, next_retry_at, created_at, updated_at`

type notificationLogRepository struct {
	BaseRepository
}

func NewNotificationLogRepository(base BaseRepository) repository.NotificationLogRepository {
	return &notificationLogRepository{base}
}

func (r *notificationLogRepository) Create(ctx context.Context, log *model.NotificationLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.AssignTrackingID()
	now := time.Now()
	log.CreatedAt = now
	log.UpdatedAt = now
	if log.Status == "" {
		log.Status = model.NotificationStatusPending
	}

	query := `
		INSERT INTO notification_logs (` + logColumns + `)
		VALUES (:id, :template_id, :template_name, :channel, :recipient_email, :recipient_name, :recipient_phone,
			:subject, :body_html, :body_text, :status, :error_message, :sent_at, :delivered_at, :opened_at, :clicked_at,
			:tracking_id, :external_id, :ip_address, :user_agent, :context_data, :metadata, :application_id, :user_id,
			:campaign_id, :retry_count, :max_retries, :next_retry_at, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}
	return nil
}

func (r *notificationLogRepository) Get(ctx context.Context, id uuid.UUID) (*model.NotificationLog, error) {
	var log model.NotificationLog
	query := `SELECT ` + logColumns + ` FROM notification_logs WHERE id = $1`
	if err := r.db.GetContext(ctx, &log, query, id); err != nil {
		return nil, notFound(err, "notification log")
	}
	return &log, nil
}

func (r *notificationLogRepository) GetByTrackingID(ctx context.Context, trackingID uuid.UUID) (*model.NotificationLog, error) {
	var log model.NotificationLog
	query := `SELECT ` + logColumns + ` FROM notification_logs WHERE tracking_id = $1`
	if err := r.db.GetContext(ctx, &log, query, trackingID); err != nil {
		return nil, notFound(err, "notification log")
	}
	return &log, nil
}

func (r *notificationLogRepository) List(ctx context.Context, filter model.LogFilter) ([]*model.NotificationLog, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Channel != "" {
		add("channel = $%d", string(filter.Channel))
	}
	if filter.Template != "" {
		add("template_name = $%d", filter.Template)
	}
	if filter.Search != "" {
		add("(recipient_email ILIKE $%[1]d OR recipient_name ILIKE $%[1]d OR subject ILIKE $%[1]d)", "%"+filter.Search+"%")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notification_logs`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notification logs: %w", err)
	}

	page := filter.Pagination.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM notification_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		logColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	var logs []*model.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return logs, total, nil
}

func (r *notificationLogRepository) UpdateState(ctx context.Context, log *model.NotificationLog, expected model.NotificationStatus) error {
	query := `
		UPDATE notification_logs
		SET status = $1, error_message = $2, sent_at = $3, delivered_at = $4, opened_at = $5, clicked_at = $6,
			external_id = $7, ip_address = $8, user_agent = $9, retry_count = $10, next_retry_at = $11, updated_at = $12
		WHERE id = $13 AND status = $14
	`
	res, err := r.db.ExecContext(ctx, query,
		string(log.Status), log.ErrorMessage, log.SentAt, log.DeliveredAt, log.OpenedAt, log.ClickedAt,
		log.ExternalID, log.IPAddress, log.UserAgent, log.RetryCount, log.NextRetryAt, log.UpdatedAt,
		log.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update notification log: %w", err)
	}
	return requireOne(res, "notification log")
}

func (r *notificationLogRepository) ListRetryable(ctx context.Context, now time.Time, limit int) ([]*model.NotificationLog, error) {
	query := `
		SELECT ` + logColumns + ` FROM notification_logs
		WHERE status = $1 AND retry_count < max_retries AND (next_retry_at IS NULL OR next_retry_at <= $2)
		ORDER BY updated_at ASC
		LIMIT $3
	`
	var logs []*model.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, string(model.NotificationStatusFailed), now, limit); err != nil {
		return nil, fmt.Errorf("failed to list retryable notification logs: %w", err)
	}
	return logs, nil
}

func (r *notificationLogRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM notification_logs WHERE id = ANY($1)`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return 0, fmt.Errorf("failed to delete notification logs: %w", err)
	}
	return res.RowsAffected()
}

// ExpirePending fails the PENDING logs among ids with retries exhausted and
// returns their id and campaign_id.
func (r *notificationLogRepository) ExpirePending(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*model.NotificationLog, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE notification_logs
		SET status = 'FAILED', error_message = $2, retry_count = max_retries, next_retry_at = NULL, updated_at = $3
		WHERE status = 'PENDING' AND id = ANY($1)
		RETURNING id, campaign_id
	`
	var logs []*model.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, pq.Array(uuidStrings(ids)), model.ExpiredMessage, now); err != nil {
		return nil, fmt.Errorf("failed to expire notification logs: %w", err)
	}
	return logs, nil
}

func (r *notificationLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notification_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notification logs: %w", err)
	}
	return res.RowsAffected()
}

func (r *notificationLogRepository) CountsForDay(ctx context.Context, day time.Time) ([]model.LogCounts, error) {
	start := model.TruncateDay(day)
	end := start.AddDate(0, 0, 1)

	query := `
		SELECT l.channel, l.template_name,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE l.status IN ('DELIVERED', 'OPENED', 'CLICKED')) AS delivered,
			COUNT(*) FILTER (WHERE l.status IN ('OPENED', 'CLICKED')) AS opened,
			COUNT(*) FILTER (WHERE l.status = 'CLICKED') AS clicked,
			COUNT(*) FILTER (WHERE l.status = 'FAILED') AS failed,
			COUNT(*) FILTER (WHERE l.status = 'BOUNCED') AS bounced,
			COALESCE(SUM(s.cost), 0) AS cost
		FROM notification_logs l
		LEFT JOIN sms_notifications s ON s.notification_log_id = l.id
		WHERE l.created_at >= $1 AND l.created_at < $2
		GROUP BY l.channel, l.template_name
		ORDER BY l.channel, l.template_name
	`
	var counts []model.LogCounts
	if err := r.db.SelectContext(ctx, &counts, query, start, end); err != nil {
		return nil, fmt.Errorf("failed to aggregate notification logs: %w", err)
	}
	return counts, nil
}

func (r *notificationLogRepository) CountByCampaign(ctx context.Context, campaignID uuid.UUID) (model.CampaignLogCounts, error) {
	query := `
		SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status IN ('PENDING', 'PAUSED')
				OR (status = 'FAILED' AND retry_count < max_retries)) AS open
		FROM notification_logs
		WHERE campaign_id = $1
	`
	var counts model.CampaignLogCounts
	if err := r.db.GetContext(ctx, &counts, query, campaignID); err != nil {
		return counts, fmt.Errorf("failed to count campaign logs: %w", err)
	}
	return counts, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
