package analytics

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/handler/handlertest"
	"github.com/supplierportal/notify-api/internal/model"
	analyticsService "github.com/supplierportal/notify-api/internal/service/analytics"
	"github.com/supplierportal/notify-api/pkg/logger"
)

func setup(t *testing.T) *handlertest.Env {
	t.Helper()
	env := handlertest.New(t, "")
	svc := analyticsService.NewService(env.DB.Logs(), env.DB.Analytics(), logger.Nop())
	NewHandler(svc).RegisterRoutes(env.Engine.Group("/api/v1"))
	return env
}

func TestGenerateThenList(t *testing.T) {
	env := setup(t)
	env.SentLog(t)
	env.SentLog(t)
	env.PendingLog(t)

	w := env.Do(http.MethodPost, "/api/v1/analytics/generate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var gen struct {
		Days int `json:"days"`
		Rows int `json:"rows"`
	}
	handlertest.Decode(t, w, &gen)
	assert.Equal(t, 1, gen.Days)
	assert.Equal(t, 1, gen.Rows)

	today := time.Now().UTC().Format(dateLayout)
	w = env.Do(http.MethodGet, "/api/v1/analytics?from="+today+"&to="+today+"&channel=EMAIL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rows []model.NotificationAnalytics
	handlertest.Decode(t, w, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].TotalSent)

	w = env.Do(http.MethodGet, "/api/v1/analytics?channel=SMS", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows = nil
	handlertest.Decode(t, w, &rows)
	assert.Empty(t, rows)
}

func TestGenerateForDate(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodPost, "/api/v1/analytics/generate", map[string]string{"date": "2024-05-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Analytics generated for 2024-05-01", handlertest.Decode(t, w, nil).Message)

	w = env.Do(http.MethodPost, "/api/v1/analytics/generate", map[string]string{"date": "05/01/2024"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.Do(http.MethodPost, "/api/v1/analytics/generate", map[string]int{"days": 400})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRejectsBadRange(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodGet, "/api/v1/analytics?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.Do(http.MethodGet, "/api/v1/analytics?from=2024-05-02&to=2024-05-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
