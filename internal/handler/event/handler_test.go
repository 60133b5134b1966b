package event

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/handler/handlertest"
	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/pkg/logger"
)

func setup(t *testing.T) *handlertest.Env {
	t.Helper()
	env := handlertest.New(t, "")
	notifier := notification.NewNotifier(env.Notifications, env.DB.Directory(), notification.NotifierConfig{
		PortalURL: "https://portal.test",
		AdminURL:  "https://admin.test",
	}, logger.Nop())
	NewHandler(notifier).RegisterRoutes(env.Engine.Group("/api/v1"))
	return env
}

func TestPublishQueuesNotification(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodPost, "/api/v1/events", map[string]interface{}{
		"type": "user.password_reset",
		"data": map[string]string{
			"email":      "user@example.test",
			"name":       "Kofi",
			"reset_link": "https://portal.test/reset/abc",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out notification.Outcome
	handlertest.Decode(t, w, &out)
	assert.Len(t, out.Queued, 1)
	assert.Len(t, env.DB.AllLogs(), 1)
}

func TestPublishRejectsBadEvents(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodPost, "/api/v1/events", map[string]interface{}{
		"type": "application.deleted",
		"data": map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Do(http.MethodPost, "/api/v1/events", map[string]interface{}{"type": "application.approved"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "data", handlertest.Decode(t, w, nil).Errors[0].Field)

	w = env.Do(http.MethodPost, "/api/v1/events", map[string]interface{}{
		"type": "application.rejected",
		"data": map[string]string{"business_name": "Acme", "email": "acme@example.test"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, env.DB.AllLogs())
}
