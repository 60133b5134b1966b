package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

const analyticsColumns = `id, date, channel, template_name, total_sent, total_delivered, total_opened, total_clicked,
	total_failed, total_bounced, total_cost, delivery_rate, open_rate, click_rate, failure_rate,
	average_cost_per_notification, created_at, updated_at`

type analyticsRepository struct {
	BaseRepository
}

func NewAnalyticsRepository(base BaseRepository) repository.AnalyticsRepository {
	return &analyticsRepository{base}
}

// Upsert writes one (date, channel, template) row, replacing the counters of
// an existing row so regeneration is idempotent.
func (r *analyticsRepository) Upsert(ctx context.Context, row *model.NotificationAnalytics) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := time.Now()
	row.CreatedAt = now
	row.UpdatedAt = now

	query := `
		INSERT INTO notification_analytics (` + analyticsColumns + `)
		VALUES (:id, :date, :channel, :template_name, :total_sent, :total_delivered, :total_opened, :total_clicked,
			:total_failed, :total_bounced, :total_cost, :delivery_rate, :open_rate, :click_rate, :failure_rate,
			:average_cost_per_notification, :created_at, :updated_at)
		ON CONFLICT (date, channel, template_name) DO UPDATE SET
			total_sent = EXCLUDED.total_sent,
			total_delivered = EXCLUDED.total_delivered,
			total_opened = EXCLUDED.total_opened,
			total_clicked = EXCLUDED.total_clicked,
			total_failed = EXCLUDED.total_failed,
			total_bounced = EXCLUDED.total_bounced,
			total_cost = EXCLUDED.total_cost,
			delivery_rate = EXCLUDED.delivery_rate,
			open_rate = EXCLUDED.open_rate,
			click_rate = EXCLUDED.click_rate,
			failure_rate = EXCLUDED.failure_rate,
			average_cost_per_notification = EXCLUDED.average_cost_per_notification,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to upsert analytics: %w", err)
	}
	return nil
}

func (r *analyticsRepository) List(ctx context.Context, filter model.AnalyticsFilter) ([]*model.NotificationAnalytics, error) {
	var (
		conds []string
		args  []interface{}
	)
	if !filter.From.IsZero() {
		args = append(args, model.TruncateDay(filter.From))
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, model.TruncateDay(filter.To))
		conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
	}
	if filter.Channel != "" {
		args = append(args, string(filter.Channel))
		conds = append(conds, fmt.Sprintf("channel = $%d", len(args)))
	}

	query := `SELECT ` + analyticsColumns + ` FROM notification_analytics`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY date DESC, channel, template_name`

	var rows []*model.NotificationAnalytics
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list analytics: %w", err)
	}
	return rows, nil
}
