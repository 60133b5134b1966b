package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/pkg/circuitbreaker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAPIClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second, FromEmail: "noreply@example.com", FromName: "Portal"}, nil)
}

func TestAPIClientSendEmail(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/email", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("X-Immediate"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"message_id":"msg-1"}`))
	})

	res := client.SendEmail(context.Background(), Email{To: "a@b.com", Subject: "Hi", Body: "<p>x</p>", IsHTML: true}, SendOptions{})
	assert.True(t, res.Success)
	assert.Equal(t, "Email sent successfully", res.Message)
	assert.Equal(t, "msg-1", res.ProviderID)
	assert.Equal(t, "a@b.com", got["to"])
	assert.Equal(t, true, got["isHtml"])
	assert.Equal(t, "noreply@example.com", got["fromEmail"])
	assert.Equal(t, "Portal", got["fromName"])
	assert.NotContains(t, got, "immediate")
}

func TestAPIClientImmediateHeaders(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "URGENT", r.Header.Get("X-Priority"))
		assert.Equal(t, "true", r.Header.Get("X-Immediate"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true}`))
	})

	res := client.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{Immediate: true, Priority: model.PriorityUrgent})
	assert.True(t, res.Success)
	assert.Equal(t, "urgent", got["priority"])
	assert.Equal(t, true, got["tracking"])
	assert.Equal(t, true, got["immediate"])
}

func TestAPIClientFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"api rejected with message", http.StatusOK, `{"success":false,"message":"mailbox full"}`, "mailbox full"},
		{"api rejected without message", http.StatusOK, `{"success":false}`, "Email sending failed"},
		{"bad status", http.StatusBadRequest, `{}`, "API request failed with status 400"},
		{"server error", http.StatusBadGateway, ``, "API request failed with status 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			res := client.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{})
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantMsg, res.Message)
		})
	}
}

func TestAPIClientSendSMS(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sms", r.URL.Path)
		var got smsPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "+15550001111", got.Number)
		assert.Equal(t, "code 1234", got.Message)
		w.Write([]byte(`{"success":false}`))
	})

	res := client.SendSMS(context.Background(), SMS{Number: "+15550001111", Message: "code 1234"}, SendOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, "SMS sending failed", res.Message)
}

func TestAPIClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	client := NewAPIClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)

	res := client.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, "Request timed out", res.Message)
}

func TestAPIClientConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client := NewAPIClient(Config{BaseURL: url, Timeout: time.Second}, nil)

	res := client.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Request failed: ")
}

func TestAPIClientBreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "test", MaxRequests: 2, Timeout: time.Hour})
	client := NewAPIClient(Config{BaseURL: srv.URL, Timeout: time.Second}, breaker)

	for i := 0; i < 2; i++ {
		client.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{})
	}
	res := client.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, "circuit breaker is open", res.Message)
	assert.Equal(t, 2, calls)
}

func TestAPIClientClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "test", MaxRequests: 1, Timeout: time.Hour})
	client := NewAPIClient(Config{BaseURL: srv.URL, Timeout: time.Second}, breaker)

	for i := 0; i < 3; i++ {
		res := client.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{})
		assert.Equal(t, "API request failed with status 422", res.Message)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}
