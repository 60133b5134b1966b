package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/model"
)

func TestAnalyticsUpsertReplacesRow(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAnalyticsRepository(base)

	mock.ExpectExec(`ON CONFLICT \(date, channel, template_name\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	row := &model.NotificationAnalytics{Date: time.Now(), Channel: model.ChannelEmail, TemplateName: "welcome"}
	require.NoError(t, repo.Upsert(context.Background(), row))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsListFilters(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAnalyticsRepository(base)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE date >= \$1 AND channel = \$2 ORDER BY date DESC`).
		WithArgs(from, "SMS").
		WillReturnRows(sqlmock.NewRows([]string{"channel", "total_sent"}).AddRow("SMS", 3))

	rows, err := repo.List(context.Background(), model.AnalyticsFilter{From: from, Channel: model.ChannelSMS})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].TotalSent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
