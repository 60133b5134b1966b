package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository/repotest"
	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/internal/template"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db       *repotest.DB
	metrics  *metrics.Metrics
	svc      Service
	template *model.NotificationTemplate
	sleeps   []time.Duration
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	db := repotest.New()
	m := metrics.New("test")
	store := template.NewStore(db.Templates(), template.Config{}, logger.Nop(), m)
	_, err := store.SeedDefaults(ctx)
	require.NoError(t, err)
	tmpl, err := store.Resolve(ctx, model.TypeAdminNotification, "")
	require.NoError(t, err)

	notifications := notification.NewService(notification.Dependencies{
		Logs:      db.Logs(),
		SMS:       db.SMS(),
		Queue:     db.Queue(),
		Campaigns: db.Campaigns(),
		Templates: store,
		Logger:    logger.Nop(),
		Metrics:   m,
	}, notification.Config{})

	f := &fixture{db: db, metrics: m, template: tmpl}
	svc := NewService(Dependencies{
		Campaigns:     db.Campaigns(),
		Logs:          db.Logs(),
		Directory:     db.Directory(),
		Templates:     store,
		Notifications: notifications,
		Logger:        logger.Nop(),
		Metrics:       m,
	}, cfg)
	svc.(*service).now = func() time.Time { return now }
	svc.(*service).sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	f.svc = svc
	return f
}

func (f *fixture) request() CreateRequest {
	return CreateRequest{
		Name:            "Portal maintenance",
		TemplateID:      f.template.ID,
		RecipientEmails: "a@example.test\n  b@example.test \n\nc@example.test\n",
		ContextData:     model.JSONMap{"title": "Maintenance", "message": "Down on Sunday"},
	}
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture(t, Config{})

	c, err := f.svc.Create(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusDraft, c.Status)
	assert.Equal(t, []string{"a@example.test", "b@example.test", "c@example.test"}, []string(c.RecipientEmails))
	assert.Equal(t, 3, c.TotalRecipients)
	assert.Equal(t, model.DefaultBatchSize, c.BatchSize)
	assert.Equal(t, model.DefaultMaxRetries, c.MaxRetries)
	assert.Equal(t, model.DefaultDelayBetweenBatches, c.DelayBetweenBatches)
	assert.Equal(t, model.ChannelEmail, c.Channel)
	assert.Equal(t, model.PriorityNormal, c.Priority)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name   string
		modify func(*CreateRequest)
		code   apperrors.ErrorCode
	}{
		{"missing name", func(r *CreateRequest) { r.Name = " " }, apperrors.ErrValidation},
		{"no recipients", func(r *CreateRequest) { r.RecipientEmails = "\n" }, apperrors.ErrValidation},
		{"bad email", func(r *CreateRequest) { r.RecipientEmails = "not-an-email" }, apperrors.ErrValidation},
		{"bad phone", func(r *CreateRequest) { r.RecipientPhones = "call me" }, apperrors.ErrValidation},
		{"push channel", func(r *CreateRequest) { r.Channel = model.ChannelPush }, apperrors.ErrValidation},
		{"unknown template", func(r *CreateRequest) { r.TemplateID = uuid.New() }, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request()
			tt.modify(&req)
			_, err := f.svc.Create(context.Background(), req)
			assertCode(t, err, tt.code)
		})
	}
}

func TestControlLifecycle(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	c, err := f.svc.Create(ctx, f.request())
	require.NoError(t, err)

	res, err := f.svc.Control(ctx, c.ID, ActionStart, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.CampaignStatusDraft, res.Status)

	for _, step := range []struct {
		action Action
		want   model.CampaignStatus
	}{
		{ActionSchedule, model.CampaignStatusScheduled},
		{ActionStart, model.CampaignStatusRunning},
		{ActionPause, model.CampaignStatusPaused},
		{ActionResume, model.CampaignStatusRunning},
		{ActionCancel, model.CampaignStatusCancelled},
	} {
		res, err := f.svc.Control(ctx, c.ID, step.action, nil)
		require.NoError(t, err)
		assert.True(t, res.Success, "%s: %s", step.action, res.Message)
		assert.Equal(t, step.want, res.Status)
	}

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	_, err = f.svc.Control(ctx, c.ID, Action("archive"), nil)
	assertCode(t, err, apperrors.ErrBadRequest)
}

func (f *fixture) settleLogs(t *testing.T, status model.NotificationStatus) {
	t.Helper()
	for _, l := range f.db.AllLogs() {
		prev := l.Status
		l.Status = status
		require.NoError(t, f.db.Logs().UpdateState(context.Background(), l, prev))
	}
}

func TestExecuteSendsBatchesAndCompletes(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	known := uuid.New()
	f.db.AddUser(model.Recipient{Email: "kofi@example.test", Name: "Kofi", UserID: &known})

	req := f.request()
	req.BatchSize = 2
	delay := 3
	req.DelayBetweenBatches = &delay
	req.PersonalizeByRecipient = true
	req.RecipientUserIDs = []uuid.UUID{known, uuid.New()}
	at := now
	req.ScheduledAt = &at
	c, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 5, c.TotalRecipients)

	n, err := f.svc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []time.Duration{3 * time.Second}, f.sleeps)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.CampaignRecipients.WithLabelValues("queued")))

	logs := f.db.AllLogs()
	require.Len(t, logs, 4)
	assert.Equal(t, "kofi@example.test", logs[3].RecipientEmail)
	assert.Equal(t, "Kofi", logs[3].ContextData["name"])
	assert.Equal(t, "[Supplier Portal] Maintenance", logs[0].Subject)
	for _, item := range f.db.AllQueueItems() {
		require.NotNil(t, item.CampaignID)
		assert.Equal(t, c.ID, *item.CampaignID)
	}

	// nothing left to queue, but logs are still pending
	n, err = f.svc.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusRunning, stored.Status)

	f.settleLogs(t, model.NotificationStatusSent)
	_, err = f.svc.Execute(ctx)
	require.NoError(t, err)
	stored, err = f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.FailedCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CampaignRecipients.WithLabelValues("skipped")))
}

func TestExecuteResumesFromCursor(t *testing.T) {
	f := newFixture(t, Config{MaxBatchesPerRun: 1})
	ctx := context.Background()

	req := f.request()
	req.BatchSize = 2
	c, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Control(ctx, c.ID, ActionSchedule, nil)
	require.NoError(t, err)

	n, err := f.svc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.QueuedCount)

	var got []string
	for _, l := range f.db.AllLogs() {
		got = append(got, l.RecipientEmail)
	}
	assert.Equal(t, []string{"a@example.test", "b@example.test", "c@example.test"}, got)
}

func TestExecuteDoesNotRequeueAfterLogDeletion(t *testing.T) {
	f := newFixture(t, Config{MaxBatchesPerRun: 1})
	ctx := context.Background()

	req := f.request()
	req.BatchSize = 2
	at := now
	req.ScheduledAt = &at
	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	n, err := f.svc.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// an operator deletes the first log between runs
	first := f.db.AllLogs()[0]
	deleted, err := f.db.Logs().DeleteByIDs(ctx, []uuid.UUID{first.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	n, err = f.svc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sends := map[string]int{}
	for _, l := range f.db.AllLogs() {
		sends[l.RecipientEmail]++
	}
	assert.Equal(t, map[string]int{"b@example.test": 1, "c@example.test": 1}, sends)

	n, err = f.svc.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExecuteSkipsPausedCampaigns(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.request())
	require.NoError(t, err)
	for _, a := range []Action{ActionSchedule, ActionStart, ActionPause} {
		_, err := f.svc.Control(ctx, c.ID, a, nil)
		require.NoError(t, err)
	}

	n, err := f.svc.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.db.AllLogs())
}

func TestRecalculateRecipients(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	c, err := f.svc.Create(ctx, f.request())
	require.NoError(t, err)

	got, err := f.svc.RecalculateRecipients(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalRecipients)

	_, err = f.svc.RecalculateRecipients(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestExecuteResolvesApplications(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	app := uuid.New()
	f.db.AddApplication(model.Recipient{Email: "supplier@example.test", Name: "Acme Ltd", ApplicationID: &app})

	req := f.request()
	req.RecipientEmails = ""
	req.RecipientApplicationIDs = []uuid.UUID{uuid.New(), app}
	at := now
	req.ScheduledAt = &at
	c, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, c.TotalRecipients)

	n, err := f.svc.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	logs := f.db.AllLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "supplier@example.test", logs[0].RecipientEmail)
	require.NotNil(t, logs[0].ApplicationID)
	assert.Equal(t, app, *logs[0].ApplicationID)
}
