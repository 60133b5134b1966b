package logs

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/handler/handlertest"
	"github.com/supplierportal/notify-api/internal/model"
)

func setup(t *testing.T) *handlertest.Env {
	t.Helper()
	env := handlertest.New(t, "")
	NewHandler(env.Notifications).RegisterRoutes(env.Engine.Group("/api/v1"))
	return env
}

func TestListAndGet(t *testing.T) {
	env := setup(t)
	sent := env.SentLog(t)
	env.PendingLog(t)

	w := env.Do(http.MethodGet, "/api/v1/logs?status=SENT&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Items []model.NotificationLog `json:"items"`
		Pagination struct {
			Page     int `json:"page"`
			PageSize int `json:"page_size"`
			Total    int `json:"total"`
		} `json:"pagination"`
	}
	handlertest.Decode(t, w, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, sent.ID, page.Items[0].ID)
	assert.Equal(t, 1, page.Pagination.Total)
	assert.Equal(t, 10, page.Pagination.PageSize)

	w = env.Do(http.MethodGet, "/api/v1/logs/"+sent.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.NotificationLog
	handlertest.Decode(t, w, &got)
	assert.Equal(t, sent.TrackingID, got.TrackingID)

	w = env.Do(http.MethodGet, "/api/v1/logs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.Do(http.MethodGet, "/api/v1/logs/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkAction(t *testing.T) {
	env := setup(t)
	pending := env.PendingLog(t)
	sent := env.SentLog(t)

	w := env.Do(http.MethodPost, "/api/v1/logs/actions", map[string]interface{}{
		"action": "pause",
		"ids":    []string{pending.ID.String(), sent.ID.String()},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Processed int `json:"processed"`
	}
	res := handlertest.Decode(t, w, &out)
	assert.Equal(t, "Successfully paused 1 notifications", res.Message)
	assert.Equal(t, 1, out.Processed)
	assert.Equal(t, model.NotificationStatusPaused, env.StatusOf(t, pending))
}

func TestBulkActionValidation(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodPost, "/api/v1/logs/actions", map[string]interface{}{
		"action": "archive",
		"ids":    []string{uuid.NewString()},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	res := handlertest.Decode(t, w, nil)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "action", res.Errors[0].Field)

	w = env.Do(http.MethodPost, "/api/v1/logs/actions", `{"action":"retry","ids":["x"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryFailedWithoutBody(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodPost, "/api/v1/logs/retry-failed", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Scheduled 0 notifications for retry", handlertest.Decode(t, w, nil).Message)
}

func TestDeliveryReport(t *testing.T) {
	env := setup(t)
	sent := env.SentLog(t)
	pending := env.PendingLog(t)

	w := env.Do(http.MethodPost, "/api/v1/logs/"+sent.ID.String()+"/report", map[string]string{"status": "DELIVERED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.NotificationStatusDelivered, env.StatusOf(t, sent))

	w = env.Do(http.MethodPost, "/api/v1/logs/"+pending.ID.String()+"/report", map[string]string{"status": "BOUNCED"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.Do(http.MethodPost, "/api/v1/logs/"+sent.ID.String()+"/report", map[string]string{"status": "OPENED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
