package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/gateway"
	"github.com/supplierportal/notify-api/internal/model"
)

func failedLog(t *testing.T, f *fixture) *model.NotificationLog {
	t.Helper()
	ctx := context.Background()
	log, err := f.svc.Enqueue(ctx, approvalRequest())
	require.NoError(t, err)

	// what the dispatcher does with a failed attempt
	item, err := f.db.Queue().GetByLogID(ctx, log.ID)
	require.NoError(t, err)
	prev := item.Status
	require.NoError(t, item.AssignToWorker("w1", f.now))
	require.NoError(t, item.MarkFailed("boom", "DELIVERY_FAILED", f.now))
	require.NoError(t, f.db.Queue().UpdateState(ctx, item, prev))

	f.sender.result = gateway.DeliveryResult{Message: "boom"}
	_, err = f.svc.Deliver(ctx, log.ID, gateway.SendOptions{})
	require.NoError(t, err)
	f.sender.result = gateway.DeliveryResult{Success: true}
	return log
}

func TestBulkRetryRequeuesFailedLogs(t *testing.T) {
	f := newFixture(t, Config{}, "")
	ctx := context.Background()

	failed := failedLog(t, f)
	pending, err := f.svc.Enqueue(ctx, approvalRequest())
	require.NoError(t, err)

	n, err := f.svc.BulkAction(ctx, ActionRetry, []uuid.UUID{failed.ID, pending.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, f.now.Add(model.DefaultLogRetryDelay), *got.NextRetryAt)

	var statuses []model.QueueStatus
	for _, item := range f.db.AllQueueItems() {
		if item.NotificationLogID == failed.ID {
			statuses = append(statuses, item.Status)
		}
	}
	assert.Equal(t, []model.QueueStatus{model.QueueStatusCancelled, model.QueueStatusPending}, statuses)

	latest, err := f.db.Queue().GetByLogID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, *got.NextRetryAt, latest.ScheduledAt)
}

func TestBulkRetryRespectsBudget(t *testing.T) {
	f := newFixture(t, Config{}, "")
	ctx := context.Background()

	log := failedLog(t, f)
	stored, err := f.svc.Get(ctx, log.ID)
	require.NoError(t, err)
	stored.RetryCount = stored.MaxRetries
	require.NoError(t, f.db.Logs().UpdateState(ctx, stored, model.NotificationStatusFailed))

	n, err := f.svc.BulkAction(ctx, ActionRetry, []uuid.UUID{log.ID})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkPauseAndResume(t *testing.T) {
	f := newFixture(t, Config{}, "")
	ctx := context.Background()

	log, err := f.svc.Enqueue(ctx, approvalRequest())
	require.NoError(t, err)
	sent := sentLog(t, f)

	n, err := f.svc.BulkAction(ctx, ActionPause, []uuid.UUID{log.ID, sent.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	paused, err := f.svc.Get(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusPaused, paused.Status)
	item, err := f.db.Queue().GetByLogID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusCancelled, item.Status)

	_, err = f.svc.Deliver(ctx, log.ID, gateway.SendOptions{})
	assert.ErrorIs(t, err, ErrNotPending)

	n, err = f.svc.BulkAction(ctx, ActionResume, []uuid.UUID{log.ID, sent.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resumed, err := f.svc.Get(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusPending, resumed.Status)
	item, err = f.db.Queue().GetByLogID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, item.Status)
}

func TestBulkDeleteAndUnknownAction(t *testing.T) {
	f := newFixture(t, Config{}, "")
	ctx := context.Background()

	a := sentLog(t, f)
	b := sentLog(t, f)

	n, err := f.svc.BulkAction(ctx, ActionDelete, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.db.AllLogs())

	_, err = f.svc.BulkAction(ctx, LogAction("archive"), []uuid.UUID{a.ID})
	assert.Error(t, err)
}

func TestRetryFailed(t *testing.T) {
	f := newFixture(t, Config{LogRetryDelay: time.Minute}, "")
	ctx := context.Background()

	failedLog(t, f)
	failedLog(t, f)
	sentLog(t, f)

	n, err := f.svc.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurge(t *testing.T) {
	f := newFixture(t, Config{}, "")
	ctx := context.Background()

	sentLog(t, f)
	req := approvalRequest()
	req.Channel = model.ChannelSMS
	req.RecipientPhone = "+233541234567"
	_, err := f.svc.Enqueue(ctx, req)
	require.NoError(t, err)

	res, err := f.svc.Purge(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, PurgeResult{}, res)

	res, err = f.svc.Purge(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Logs)
	assert.Equal(t, int64(1), res.SMS)
	assert.Equal(t, int64(0), res.QueueItems, "pending items are kept")
}
