package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/pkg/messaging"
)

func newTestBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker(Config{URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := newTestBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := b.Subscribe(ctx, messaging.ChannelHeartbeats)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, messaging.ChannelHeartbeats, map[string]string{"service": "email"}))

	select {
	case raw := <-msgs:
		var got map[string]string
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "email", got["service"])
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	b := newTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan []byte, 10)
	done := make(chan error, 1)
	go func() {
		done <- messaging.Consume(ctx, b, "test.channel", func(_ context.Context, payload []byte) error {
			received <- payload
			return nil
		}, nil)
	}()

	require.Eventually(t, func() bool {
		_ = b.Publish(context.Background(), "test.channel", "hello")
		select {
		case <-received:
			return true
		default:
			return false
		}
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("consume did not stop")
	}
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	_, err := NewRedisBroker(Config{URL: "://bad"}, nil)
	assert.Error(t, err)
}
