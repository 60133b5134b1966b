package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository/repotest"
	"github.com/supplierportal/notify-api/pkg/logger"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newSeeded(t *testing.T) (Service, *repotest.DB) {
	t.Helper()
	db := repotest.New()
	svc := NewService(db.Services(), time.Minute, logger.Nop())
	svc.(*service).now = func() time.Time { return now }
	n, err := svc.Seed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, n)
	return svc, db
}

func TestSeedIsIdempotent(t *testing.T) {
	svc, _ := newSeeded(t)
	ctx := context.Background()

	email, err := svc.GetByName(ctx, "email")
	require.NoError(t, err)
	require.NoError(t, svc.ApplyHeartbeat(ctx, model.Heartbeat{Service: "email", WorkerID: "w1", Status: model.ServiceStatusRunning, SentAt: now}))

	_, err = svc.Seed(ctx)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 5)
	again, err := svc.Get(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ServiceStatusRunning, again.Status)
	assert.Equal(t, 10, again.MaxWorkers)
}

func TestControlRecordsDesiredState(t *testing.T) {
	svc, _ := newSeeded(t)
	ctx := context.Background()

	sms, err := svc.GetByName(ctx, "sms")
	require.NoError(t, err)
	require.NoError(t, svc.ApplyHeartbeat(ctx, model.Heartbeat{Service: "sms", Status: model.ServiceStatusRunning, SentAt: now}))

	res, err := svc.Control(ctx, sms.ID, model.ServiceActionPause)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.ServiceStatusPaused, res.ServiceStatus)

	stored, err := svc.Get(ctx, sms.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ServiceStatusPaused, stored.DesiredStatus)
	assert.False(t, stored.AllowsWork())
	assert.Equal(t, model.ServiceStatusPaused, ReportedStatus(stored))

	res, err = svc.Control(ctx, sms.ID, model.ServiceActionResume)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = svc.Control(ctx, sms.ID, model.ServiceActionResume)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.ServiceStatusRunning, res.ServiceStatus)

	res, err = svc.Control(ctx, sms.ID, model.ServiceActionStop)
	require.NoError(t, err)
	assert.True(t, res.Success)
	stored, err = svc.Get(ctx, sms.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsEnabled)
	assert.Equal(t, model.ServiceStatusStopped, ReportedStatus(stored))
}

func TestHeartbeatsDriveHealth(t *testing.T) {
	svc, _ := newSeeded(t)
	ctx := context.Background()

	require.NoError(t, svc.ApplyHeartbeat(ctx, model.Heartbeat{
		Service:   "email",
		WorkerID:  "worker-1",
		Status:    model.ServiceStatusRunning,
		Processed: 90,
		Failed:    10,
		StartedAt: now.Add(-time.Hour),
		SentAt:    now.Add(-30 * time.Second),
	}))
	email, err := svc.GetByName(ctx, "email")
	require.NoError(t, err)
	assert.True(t, email.IsHealthy)
	assert.Equal(t, 90.0, email.SuccessRate)
	assert.Equal(t, time.Hour, email.Uptime(now))

	n, err := svc.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.(*service).now = func() time.Time { return now.Add(2 * time.Minute) }
	n, err = svc.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	email, err = svc.GetByName(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, model.ServiceStatusError, email.Status)
	assert.False(t, email.IsHealthy)
	assert.Equal(t, model.ServiceStatusRunning, email.DesiredStatus)

	n, err = svc.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already flagged")

	assert.ErrorIs(t, svc.ApplyHeartbeat(ctx, model.Heartbeat{Service: "fax"}), model.ErrNotFound)
}
