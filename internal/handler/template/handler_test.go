package template

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
	NewHandler(env.Templates).RegisterRoutes(env.Engine.Group("/api/v1"))
	return env
}

func TestTemplateLifecycle(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"name":              "kyc_reminder",
		"notification_type": "DOCUMENTS_REQUESTED",
		"subject":           "Documents for {{ business_name }}",
		"body_html":         "<p>Hello {{ business_name }}</p>",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.NotificationTemplate
	handlertest.Decode(t, w, &created)
	assert.True(t, created.IsActive)
	base := "/api/v1/templates/" + created.ID.String()

	w = env.Do(http.MethodPost, base+"/preview", map[string]interface{}{
		"context": map[string]string{"business_name": "A&B"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var preview struct {
		Subject  string `json:"subject"`
		BodyHTML string `json:"body_html"`
	}
	handlertest.Decode(t, w, &preview)
	assert.Equal(t, "Documents for A&B", preview.Subject)
	assert.Equal(t, "<p>Hello A&amp;B</p>", preview.BodyHTML)

	w = env.Do(http.MethodPost, base+"/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.NotificationTemplate
	handlertest.Decode(t, w, &got)
	assert.False(t, got.IsActive)

	w = env.Do(http.MethodPut, base, map[string]interface{}{
		"name":              "kyc_reminder",
		"notification_type": "DOCUMENTS_REQUESTED",
		"subject":           "Outstanding documents",
		"is_active":         true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	handlertest.Decode(t, w, &got)
	assert.True(t, got.IsActive)
	assert.Equal(t, "Outstanding documents", got.Subject)
}

func TestTemplateValidation(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"name":              "x",
		"notification_type": "NEWSLETTER",
		"subject":           "s",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "notification_type", handlertest.Decode(t, w, nil).Errors[0].Field)

	w = env.Do(http.MethodGet, "/api/v1/templates/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Template not found", handlertest.Decode(t, w, nil).Message)
}

func TestSeedAndList(t *testing.T) {
	env := setup(t)

	w := env.Do(http.MethodPost, "/api/v1/templates/seed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var seeded struct {
		Created int `json:"created"`
	}
	handlertest.Decode(t, w, &seeded)
	assert.Zero(t, seeded.Created)

	w = env.Do(http.MethodGet, "/api/v1/templates?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.NotificationTemplate
	handlertest.Decode(t, w, &list)
	assert.NotEmpty(t, list)
}
