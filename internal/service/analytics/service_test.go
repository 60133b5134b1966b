package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository/repotest"
	"github.com/supplierportal/notify-api/pkg/logger"
)

func seedLog(t *testing.T, db *repotest.DB, channel model.Channel, tmpl string, status model.NotificationStatus) {
	t.Helper()
	require.NoError(t, db.Logs().Create(context.Background(), &model.NotificationLog{
		Channel:      channel,
		TemplateName: tmpl,
		Status:       status,
	}))
}

func TestGenerateDailyGroupsByChannelAndTemplate(t *testing.T) {
	db := repotest.New()
	svc := NewService(db.Logs(), db.Analytics(), logger.Nop())
	ctx := context.Background()

	seedLog(t, db, model.ChannelEmail, "approved", model.NotificationStatusDelivered)
	seedLog(t, db, model.ChannelEmail, "approved", model.NotificationStatusOpened)
	seedLog(t, db, model.ChannelEmail, "approved", model.NotificationStatusClicked)
	seedLog(t, db, model.ChannelEmail, "approved", model.NotificationStatusFailed)
	seedLog(t, db, model.ChannelSMS, "approved", model.NotificationStatusSent)

	rows, err := svc.GenerateDaily(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	email := rows[0]
	assert.Equal(t, model.ChannelEmail, email.Channel)
	assert.Equal(t, 4, email.TotalSent)
	assert.Equal(t, 3, email.TotalDelivered)
	assert.Equal(t, 2, email.TotalOpened)
	assert.Equal(t, 1, email.TotalClicked)
	assert.Equal(t, 75.0, email.DeliveryRate)
	assert.Equal(t, 66.67, email.OpenRate)
	assert.Equal(t, 50.0, email.ClickRate)
	assert.Equal(t, 25.0, email.FailureRate)

	// regenerating replaces rows instead of duplicating or adding to them
	_, err = svc.GenerateDaily(ctx, time.Now())
	require.NoError(t, err)
	stored, err := svc.List(ctx, model.AnalyticsFilter{Channel: model.ChannelEmail})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	again := stored[0]
	assert.Equal(t, 4, again.TotalSent)
	assert.Equal(t, 3, again.TotalDelivered)
	assert.Equal(t, 2, again.TotalOpened)
	assert.Equal(t, 1, again.TotalClicked)
	assert.Equal(t, 1, again.TotalFailed)
	assert.Equal(t, email.DeliveryRate, again.DeliveryRate)
	assert.Equal(t, email.OpenRate, again.OpenRate)
	assert.Equal(t, email.ClickRate, again.ClickRate)
	assert.Equal(t, email.FailureRate, again.FailureRate)
}

func TestGenerateRange(t *testing.T) {
	db := repotest.New()
	svc := NewService(db.Logs(), db.Analytics(), logger.Nop())
	ctx := context.Background()
	seedLog(t, db, model.ChannelEmail, "reset", model.NotificationStatusSent)

	n, err := svc.GenerateRange(ctx, time.Now(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.GenerateRange(ctx, time.Now(), 0)
	assert.Error(t, err)

	db.Fail("Logs.CountsForDay", errors.New("db down"))
	_, err = svc.GenerateRange(ctx, time.Now(), 2)
	assert.Error(t, err)
}

func TestListRejectsInvertedRange(t *testing.T) {
	db := repotest.New()
	svc := NewService(db.Logs(), db.Analytics(), logger.Nop())

	now := time.Now()
	_, err := svc.List(context.Background(), model.AnalyticsFilter{From: now, To: now.Add(-time.Hour)})
	assert.Error(t, err)
}
