// Package handlertest wires the HTTP handlers against in-memory
// repositories for tests.
package handlertest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/gateway"
	"github.com/supplierportal/notify-api/internal/middleware"
	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository/repotest"
	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/internal/template"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
	"github.com/supplierportal/notify-api/pkg/security"
)

const TrackingBaseURL = "https://notify.test"

var bindingOnce sync.Once

// Sender records deliveries and answers with Result.
type Sender struct {
	mu     sync.Mutex
	Result gateway.DeliveryResult
	Sent   int
}

func (s *Sender) SendEmail(context.Context, gateway.Email, gateway.SendOptions) gateway.DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent++
	return s.Result
}

func (s *Sender) SendSMS(context.Context, gateway.SMS, gateway.SendOptions) gateway.DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent++
	return s.Result
}

type Env struct {
	DB            *repotest.DB
	Metrics       *metrics.Metrics
	Templates     *template.Store
	Sender        *Sender
	Notifications notification.Service
	Engine        *gin.Engine
}

// New returns an engine with the error and validation middleware installed
// and a notification service over seeded default templates.
func New(t *testing.T, signingKey string) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bindingOnce.Do(func() {
		require.NoError(t, middleware.RegisterBindingValidators())
	})

	db := repotest.New()
	m := metrics.New("test")
	store := template.NewStore(db.Templates(), template.Config{AutoCreate: true}, logger.Nop(), m)
	_, err := store.SeedDefaults(context.Background())
	require.NoError(t, err)

	sender := &Sender{Result: gateway.DeliveryResult{Success: true, ProviderID: "msg-1", Attempts: 1}}
	svc := notification.NewService(notification.Dependencies{
		Logs:      db.Logs(),
		SMS:       db.SMS(),
		Queue:     db.Queue(),
		Campaigns: db.Campaigns(),
		Templates: store,
		Sender:    sender,
		Signer:    security.NewSigner(signingKey),
		Logger:    logger.Nop(),
		Metrics:   m,
	}, notification.Config{TrackingBaseURL: TrackingBaseURL})

	engine := gin.New()
	engine.Use(middleware.ErrorHandler(), middleware.Validation(middleware.DefaultValidationConfig()))

	return &Env{
		DB:            db,
		Metrics:       m,
		Templates:     store,
		Sender:        sender,
		Notifications: svc,
		Engine:        engine,
	}
}

// Do serves one request. A non-nil body is encoded as JSON.
func (e *Env) Do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.Engine.ServeHTTP(w, req)
	return w
}

// Envelope is the decoded response wrapper.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Decode parses the response envelope and, when out is non-nil, its data.
// An omitted data field leaves out untouched.
func Decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out), string(env.Data))
	}
	return env
}

// SentLog enqueues an approval email and delivers it.
func (e *Env) SentLog(t *testing.T) *model.NotificationLog {
	t.Helper()
	log := e.PendingLog(t)
	_, err := e.Notifications.Deliver(context.Background(), log.ID, gateway.SendOptions{})
	require.NoError(t, err)
	got, err := e.Notifications.Get(context.Background(), log.ID)
	require.NoError(t, err)
	return got
}

// PendingLog enqueues an approval email.
func (e *Env) PendingLog(t *testing.T) *model.NotificationLog {
	t.Helper()
	log, err := e.Notifications.Enqueue(context.Background(), notification.SendRequest{
		Type:           model.TypeApplicationApproved,
		Channel:        model.ChannelEmail,
		RecipientEmail: "ops@acme.test",
		RecipientName:  "Acme",
		Context:        model.JSONMap{"business_name": "Acme", "tracking_code": "SUP-1"},
	})
	require.NoError(t, err)
	return log
}

// StatusOf is shorthand for reading a log back.
func (e *Env) StatusOf(t *testing.T, log *model.NotificationLog) model.NotificationStatus {
	t.Helper()
	got, err := e.Notifications.Get(context.Background(), log.ID)
	require.NoError(t, err)
	return got.Status
}
