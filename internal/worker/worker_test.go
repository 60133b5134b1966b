package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/gateway"
	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository/repotest"
	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/internal/service/queue"
	"github.com/supplierportal/notify-api/internal/service/registry"
	"github.com/supplierportal/notify-api/internal/template"
	"github.com/supplierportal/notify-api/pkg/event"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/messaging"
	redisbroker "github.com/supplierportal/notify-api/pkg/messaging/redis"
	"github.com/supplierportal/notify-api/pkg/metrics"
)

type stubSender struct {
	mu      sync.Mutex
	sent    int
	results map[string]gateway.DeliveryResult
	opts    []gateway.SendOptions
}

func (s *stubSender) result(to string) gateway.DeliveryResult {
	if r, ok := s.results[to]; ok {
		return r
	}
	return gateway.DeliveryResult{Success: true, ProviderID: "msg", Attempts: 1}
}

func (s *stubSender) SendEmail(_ context.Context, msg gateway.Email, opts gateway.SendOptions) gateway.DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	s.opts = append(s.opts, opts)
	return s.result(msg.To)
}

func (s *stubSender) SendSMS(_ context.Context, msg gateway.SMS, opts gateway.SendOptions) gateway.DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	s.opts = append(s.opts, opts)
	return s.result(msg.Number)
}

type env struct {
	db            *repotest.DB
	sender        *stubSender
	notifications notification.Service
	queue         queue.Service
	registry      registry.Service
	stats         *Stats
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db := repotest.New()
	m := metrics.New("test")
	store := template.NewStore(db.Templates(), template.Config{}, logger.Nop(), m)
	_, err := store.SeedDefaults(ctx)
	require.NoError(t, err)

	sender := &stubSender{results: map[string]gateway.DeliveryResult{}}
	notifications := notification.NewService(notification.Dependencies{
		Logs:      db.Logs(),
		SMS:       db.SMS(),
		Queue:     db.Queue(),
		Campaigns: db.Campaigns(),
		Templates: store,
		Sender:    sender,
		Logger:    logger.Nop(),
		Metrics:   m,
	}, notification.Config{})

	return &env{
		db:            db,
		sender:        sender,
		notifications: notifications,
		queue:         queue.NewService(db.Queue(), db.Logs(), db.Campaigns(), queue.Config{}, logger.Nop(), m),
		registry:      registry.NewService(db.Services(), time.Minute, logger.Nop()),
		stats:         &Stats{},
	}
}

func (e *env) enqueue(t *testing.T, email string, priority model.Priority) *model.NotificationLog {
	t.Helper()
	log, err := e.notifications.Enqueue(context.Background(), notification.SendRequest{
		Type:           model.TypeAccountCreated,
		RecipientEmail: email,
		Priority:       priority,
		Context:        model.JSONMap{"name": "Ama"},
	})
	require.NoError(t, err)
	return log
}

func (e *env) dispatcher() *Dispatcher {
	return NewDispatcher(e.queue, e.notifications, e.registry,
		DispatcherConfig{WorkerID: "worker-1", BatchSize: 10, Concurrency: 4}, e.stats, logger.Nop())
}

func TestDispatcherDeliversAndSettles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ok := e.enqueue(t, "ok@example.test", model.PriorityUrgent)
	bad := e.enqueue(t, "bad@example.test", model.PriorityLow)
	e.sender.results["bad@example.test"] = gateway.DeliveryResult{Message: "mailbox unavailable"}

	require.NoError(t, e.dispatcher().Run(ctx))
	assert.Equal(t, 2, e.sender.sent)

	sent, err := e.notifications.Get(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusSent, sent.Status)
	item, err := e.db.Queue().GetByLogID(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusCompleted, item.Status)
	assert.Equal(t, "worker-1", item.AssignedWorker)

	failed, err := e.db.Queue().GetByLogID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, failed.Status)
	assert.Equal(t, queue.CodeDeliveryFailed, failed.ErrorCode)
	assert.Equal(t, "mailbox unavailable", failed.ErrorMessage)

	processed, nFailed, lastErr := e.stats.Snapshot()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(1), nFailed)
	assert.Equal(t, "mailbox unavailable", lastErr)

	// a second pass has nothing to send
	require.NoError(t, e.dispatcher().Run(ctx))
	assert.Equal(t, 2, e.sender.sent)
}

func TestDispatcherUsesImmediatePathForUrgent(t *testing.T) {
	e := newEnv(t)
	e.enqueue(t, "urgent@example.test", model.PriorityUrgent)

	require.NoError(t, e.dispatcher().Run(context.Background()))
	require.Len(t, e.sender.opts, 1)
	assert.True(t, e.sender.opts[0].Immediate)
	assert.Equal(t, model.PriorityUrgent, e.sender.opts[0].Priority)
}

func TestDispatcherCancelsItemsOfPausedLogs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	log := e.enqueue(t, "ok@example.test", model.PriorityNormal)

	// log paused after the item was queued, as a concurrent admin action would
	stored, err := e.notifications.Get(ctx, log.ID)
	require.NoError(t, err)
	require.NoError(t, stored.Pause(time.Now()))
	require.NoError(t, e.db.Logs().UpdateState(ctx, stored, model.NotificationStatusPending))

	require.NoError(t, e.dispatcher().Run(ctx))
	assert.Zero(t, e.sender.sent)
	item, err := e.db.Queue().GetByLogID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusCancelled, item.Status)
	assert.Equal(t, queue.CodeNotPending, item.ErrorCode)
}

func TestDispatcherHonorsServiceControls(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.registry.Seed(ctx)
	require.NoError(t, err)
	e.enqueue(t, "ok@example.test", model.PriorityNormal)

	email, err := e.registry.GetByName(ctx, ServiceEmail)
	require.NoError(t, err)
	res, err := e.registry.Control(ctx, email.ID, model.ServiceActionStop)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.NoError(t, e.dispatcher().Run(ctx))
	assert.Zero(t, e.sender.sent)

	// the hosting worker confirms the stop
	require.NoError(t, e.registry.ApplyHeartbeat(ctx, model.Heartbeat{Service: ServiceEmail, Status: model.ServiceStatusStopped}))
	res, err = e.registry.Control(ctx, email.ID, model.ServiceActionStart)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	require.NoError(t, e.dispatcher().Run(ctx))
	assert.Equal(t, 1, e.sender.sent)
}

func TestQueueMaintenanceRetriesFailedItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	log := e.enqueue(t, "bad@example.test", model.PriorityNormal)
	e.sender.results["bad@example.test"] = gateway.DeliveryResult{Message: "timeout"}
	require.NoError(t, e.dispatcher().Run(ctx))

	require.NoError(t, QueueMaintenanceJob(e.queue, 10, logger.Nop())(ctx))

	stored, err := e.notifications.Get(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	item, err := e.db.Queue().GetByLogID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, item.Status)
	assert.Equal(t, 1, item.RetryCount)
}

func TestCleanupWorkerPurgesOldHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.enqueue(t, "ok@example.test", model.PriorityNormal)
	require.NoError(t, e.dispatcher().Run(ctx))

	w := NewCleanupWorker(e.notifications, 30, logger.Nop())
	require.NoError(t, w.Run(ctx))
	assert.Len(t, e.db.AllLogs(), 1)

	w.now = func() time.Time { return time.Now().AddDate(0, 0, 31) }
	require.NoError(t, w.Run(ctx))
	assert.Empty(t, e.db.AllLogs())
	assert.Empty(t, e.db.AllQueueItems())
}

func newBroker(t *testing.T) *redisbroker.RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := redisbroker.NewRedisBroker(redisbroker.Config{URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestHeartbeatsUpdateRegistry(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.registry.Seed(ctx)
	require.NoError(t, err)
	b := newBroker(t)

	go func() {
		_ = messaging.Consume(ctx, b, messaging.ChannelHeartbeats, HeartbeatHandler(e.registry, logger.Nop()), nil)
	}()

	e.stats.Success()
	e.stats.Failure("smtp timeout")
	hb := NewHeartbeater(e.registry, b, "", []string{ServiceEmail}, "worker-1", "1.2.0", e.stats, logger.Nop())

	require.Eventually(t, func() bool {
		if err := hb.Run(ctx); err != nil {
			return false
		}
		svc, err := e.registry.GetByName(ctx, ServiceEmail)
		return err == nil && svc.Status == model.ServiceStatusRunning
	}, 3*time.Second, 50*time.Millisecond)

	svc, err := e.registry.GetByName(ctx, ServiceEmail)
	require.NoError(t, err)
	assert.True(t, svc.IsHealthy)
	assert.Equal(t, "worker-1", svc.WorkerID)
	assert.Equal(t, "1.2.0", svc.Version)
	assert.Equal(t, 50.0, svc.SuccessRate)
}

func TestEventHandlerQueuesNotifications(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	notifier := notification.NewNotifier(e.notifications, e.db.Directory(), notification.NotifierConfig{
		PortalURL: "https://portal.test",
	}, logger.Nop())
	handle := EventHandler(notifier, logger.Nop())

	envl, err := event.NewEnvelope(event.AccountCreated, "portal", notification.UserEvent{
		Email: "new@example.test",
		Name:  "Esi",
	})
	require.NoError(t, err)
	raw, err := json.Marshal(envl)
	require.NoError(t, err)

	require.NoError(t, handle(ctx, raw))
	logs := e.db.AllLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "new@example.test", logs[0].RecipientEmail)

	assert.Error(t, handle(ctx, []byte(`{"data":{}}`)))
	assert.Error(t, handle(ctx, []byte(`{"type":"application.approved","data":{}}`)))
}

func TestHeartbeatHandlerIgnoresUnknownServices(t *testing.T) {
	e := newEnv(t)
	handle := HeartbeatHandler(e.registry, logger.Nop())

	raw, err := json.Marshal(model.Heartbeat{Service: "fax", Status: model.ServiceStatusRunning})
	require.NoError(t, err)
	assert.NoError(t, handle(context.Background(), raw))
	assert.Error(t, handle(context.Background(), []byte("not json")))
}
