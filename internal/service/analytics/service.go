package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/logger"
)

// MaxRangeDays bounds a single regeneration request.
const MaxRangeDays = 366

type Service interface {
	// GenerateDaily rebuilds the rollup rows of one day. Re-running it
	// overwrites the day's rows.
	GenerateDaily(ctx context.Context, day time.Time) ([]*model.NotificationAnalytics, error)
	// GenerateRange rebuilds the days days ending with end, newest first.
	GenerateRange(ctx context.Context, end time.Time, days int) (int, error)
	List(ctx context.Context, filter model.AnalyticsFilter) ([]*model.NotificationAnalytics, error)
}

type service struct {
	logs      repository.NotificationLogRepository
	analytics repository.AnalyticsRepository
	logger    *logger.Logger
}

func NewService(logs repository.NotificationLogRepository, analytics repository.AnalyticsRepository, log *logger.Logger) Service {
	return &service{logs: logs, analytics: analytics, logger: log}
}

func (s *service) GenerateDaily(ctx context.Context, day time.Time) ([]*model.NotificationAnalytics, error) {
	day = model.TruncateDay(day)
	counts, err := s.logs.CountsForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications for %s: %w", day.Format("2006-01-02"), err)
	}

	rows := make([]*model.NotificationAnalytics, 0, len(counts))
	for _, c := range counts {
		row := c.ToAnalytics(day)
		if err := s.analytics.Upsert(ctx, row); err != nil {
			return rows, fmt.Errorf("failed to store analytics: %w", err)
		}
		rows = append(rows, row)
	}
	s.logger.WithContext(ctx).Info("Generated analytics", "date", day.Format("2006-01-02"), "rows", len(rows))
	return rows, nil
}

func (s *service) GenerateRange(ctx context.Context, end time.Time, days int) (int, error) {
	if days < 1 || days > MaxRangeDays {
		return 0, apperrors.Validation(fmt.Sprintf("days must be between 1 and %d", MaxRangeDays))
	}
	total := 0
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := s.GenerateDaily(ctx, end.AddDate(0, 0, -i))
		total += len(rows)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *service) List(ctx context.Context, filter model.AnalyticsFilter) ([]*model.NotificationAnalytics, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, apperrors.BadRequest("to must not be before from", nil)
	}
	return s.analytics.List(ctx, filter)
}
