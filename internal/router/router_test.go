package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/handler/handlertest"
	"github.com/supplierportal/notify-api/internal/handler/health"
	"github.com/supplierportal/notify-api/internal/handler/logs"
	promhandler "github.com/supplierportal/notify-api/internal/handler/prometheus"
	"github.com/supplierportal/notify-api/internal/handler/tracking"
	"github.com/supplierportal/notify-api/internal/middleware"
	"github.com/supplierportal/notify-api/pkg/auth"
	"github.com/supplierportal/notify-api/pkg/logger"
)

func setup(t *testing.T, burst int) (*handlertest.Env, *gin.Engine, auth.JWTService) {
	t.Helper()
	env := handlertest.New(t, "")
	jwt := auth.NewJWTService("test-secret", "notify-test")

	r := NewRouter(middleware.NewAuthMiddleware(jwt), promhandler.New("test"), Handlers{
		Health:   health.NewHandler(nil),
		Tracking: tracking.NewHandler(env.Notifications, logger.Nop()),
		Logs:     logs.NewHandler(env.Notifications),
	}, RouterConfig{
		RateLimitEnabled: true,
		RateLimit:        1,
		RateBurst:        burst,
		RequestTimeout:   5 * time.Second,
		CORSConfig:       middleware.DefaultCORSConfig(),
	})
	r.Setup()
	return env, r.Engine(), jwt
}

func do(engine *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	_, engine, jwt := setup(t, 10)

	w := do(engine, "/api/v1/logs", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	staff, err := jwt.GenerateAccessToken("3f1c2a8e-0000-4000-8000-000000000001", "ops@portal.test", auth.RoleStaff, time.Hour)
	require.NoError(t, err)
	w = do(engine, "/api/v1/logs", staff)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}

func TestPublicRoutes(t *testing.T) {
	env, engine, _ := setup(t, 10)
	log := env.SentLog(t)

	assert.Equal(t, http.StatusOK, do(engine, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(engine, "/health/ready", "").Code)
	assert.Equal(t, http.StatusOK, do(engine, "/t/"+log.TrackingID.String()+"/open", "").Code)

	w := do(engine, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",path="/t/:tracking_id/open",status="200"} 1`)
}

func TestTrackingIsRateLimited(t *testing.T) {
	env, engine, _ := setup(t, 2)
	log := env.SentLog(t)
	path := "/t/" + log.TrackingID.String() + "/open"

	assert.Equal(t, http.StatusOK, do(engine, path, "").Code)
	assert.Equal(t, http.StatusOK, do(engine, path, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(engine, path, "").Code)

	// health checks are outside the limited group
	assert.Equal(t, http.StatusOK, do(engine, "/health/live", "").Code)
}
