package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/messaging/redis"
)

func serve(h *Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(&r.RouterGroup)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestReadyChecksDatabaseAndRedis(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer raw.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	broker, err := redis.NewRedisBroker(redis.Config{URL: "redis://" + mr.Addr()}, logger.Nop().Zerolog())
	require.NoError(t, err)
	defer broker.Close()

	h := NewHandler(map[string]Pinger{
		"database": sqlx.NewDb(raw, "postgres"),
		"redis":    PingFunc(broker.Ping),
	})
	w, body := serve(h, "/health/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, map[string]interface{}{"database": "UP", "redis": "UP"}, body["checks"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadyReportsFailures(t *testing.T) {
	h := NewHandler(map[string]Pinger{
		"redis": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		"queue": nil,
	})
	w, body := serve(h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]interface{}{"redis": "DOWN"}, body["checks"])

	w, _ = serve(h, "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
}
