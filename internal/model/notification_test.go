package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLogTransitions(t *testing.T) {
	tests := []struct {
		from, to NotificationStatus
		allowed  bool
	}{
		{NotificationStatusPending, NotificationStatusSent, true},
		{NotificationStatusPending, NotificationStatusOpened, false},
		{NotificationStatusSent, NotificationStatusClicked, true},
		{NotificationStatusDelivered, NotificationStatusOpened, true},
		{NotificationStatusOpened, NotificationStatusDelivered, false},
		{NotificationStatusClicked, NotificationStatusOpened, false},
		{NotificationStatusBounced, NotificationStatusPending, false},
		{NotificationStatusFailed, NotificationStatusPending, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, LogTransitions.Allows(tt.from, tt.to))
		})
	}
}

func TestTransitionErrorUnwraps(t *testing.T) {
	n := &NotificationLog{Status: NotificationStatusBounced}
	err := n.MarkSent("", t0)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "BOUNCED", te.From)
	assert.Equal(t, "SENT", te.To)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "notification log cannot move from BOUNCED to SENT", err.Error())
}

func TestNotificationLogLifecycle(t *testing.T) {
	n := &NotificationLog{Status: NotificationStatusPending, ErrorMessage: "old"}

	require.NoError(t, n.MarkSent("ext-1", t0))
	assert.Equal(t, "ext-1", n.ExternalID)
	assert.Empty(t, n.ErrorMessage)
	assert.True(t, n.IsSuccessful())

	require.NoError(t, n.MarkDelivered(t0.Add(3*time.Second)))
	assert.Equal(t, 3*time.Second, n.DeliveryTime())

	require.NoError(t, n.MarkClicked("10.0.0.1", "curl", t0.Add(time.Minute)))
	assert.Equal(t, NotificationStatusClicked, n.Status)
	require.NotNil(t, n.OpenedAt)
	assert.Equal(t, t0.Add(time.Minute), *n.OpenedAt)

	// a late open refreshes the timestamp but keeps CLICKED
	require.NoError(t, n.MarkOpened("", "mail-client", t0.Add(2*time.Minute)))
	assert.Equal(t, NotificationStatusClicked, n.Status)
	assert.Equal(t, t0.Add(2*time.Minute), *n.OpenedAt)
	assert.Equal(t, "10.0.0.1", n.IPAddress)
	assert.Equal(t, "mail-client", n.UserAgent)
}

func TestMarkOpenedBeforeSendIsRejected(t *testing.T) {
	n := &NotificationLog{Status: NotificationStatusPending}
	assert.ErrorIs(t, n.MarkOpened("", "", t0), ErrInvalidTransition)
	assert.Nil(t, n.OpenedAt)
}

func TestNotificationLogRetry(t *testing.T) {
	n := &NotificationLog{Status: NotificationStatusPending, MaxRetries: 1}
	require.NoError(t, n.MarkFailed("smtp down", t0))
	assert.True(t, n.IsFailed())
	assert.False(t, n.IsSuccessful())

	require.True(t, n.ScheduleRetry(30*time.Minute, t0))
	assert.Equal(t, NotificationStatusPending, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Equal(t, t0.Add(30*time.Minute), *n.NextRetryAt)

	require.NoError(t, n.MarkFailed("smtp down", t0.Add(time.Hour)))
	assert.False(t, n.CanRetry(t0.Add(time.Hour)))
	assert.False(t, n.ScheduleRetry(time.Minute, t0.Add(time.Hour)))
	assert.Equal(t, 1, n.RetryCount)
}

func TestNotificationLogExpire(t *testing.T) {
	next := t0.Add(time.Minute)
	n := &NotificationLog{Status: NotificationStatusPending, MaxRetries: 3, RetryCount: 1, NextRetryAt: &next}
	require.NoError(t, n.Expire(t0.Add(time.Hour)))
	assert.Equal(t, NotificationStatusFailed, n.Status)
	assert.Equal(t, ExpiredMessage, n.ErrorMessage)
	assert.Equal(t, 3, n.RetryCount)
	assert.Nil(t, n.NextRetryAt)
	assert.False(t, n.CanRetry(t0.Add(48*time.Hour)))

	sent := &NotificationLog{Status: NotificationStatusSent}
	assert.ErrorIs(t, sent.Expire(t0), ErrInvalidTransition)
	assert.Equal(t, NotificationStatusSent, sent.Status)
}

func TestNotificationLogCanRetryWaitsForNextRetryAt(t *testing.T) {
	next := t0.Add(time.Minute)
	n := &NotificationLog{Status: NotificationStatusFailed, MaxRetries: 3, NextRetryAt: &next}

	assert.False(t, n.CanRetry(t0))
	assert.True(t, n.CanRetry(next))
}

func TestNotificationLogPauseResume(t *testing.T) {
	n := &NotificationLog{Status: NotificationStatusPending}
	require.NoError(t, n.Pause(t0))
	assert.Equal(t, NotificationStatusPaused, n.Status)
	require.NoError(t, n.Resume(t0))
	assert.Equal(t, NotificationStatusPending, n.Status)
	assert.ErrorIs(t, n.Resume(t0), ErrInvalidTransition)
}

func TestBouncedIsFailed(t *testing.T) {
	n := &NotificationLog{Status: NotificationStatusSent}
	require.NoError(t, n.MarkBounced("mailbox full", t0))
	assert.True(t, n.IsFailed())
	assert.Equal(t, "mailbox full", n.ErrorMessage)
	assert.Zero(t, n.DeliveryTime())
}

func TestAssignTrackingIDIsStable(t *testing.T) {
	n := &NotificationLog{}
	n.AssignTrackingID()
	first := n.TrackingID
	require.NotEqual(t, uuid.Nil, first)

	n.AssignTrackingID()
	assert.Equal(t, first, n.TrackingID)
}

func TestJSONMapScan(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"company":"Acme","count":2}`)))
	assert.Equal(t, map[string]string{"company": "Acme", "count": "2"}, m.StringValues())

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
}
