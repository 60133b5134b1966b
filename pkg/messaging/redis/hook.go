package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supplierportal/notify-api/pkg/metrics"
)

// metricsHook records every command the client runs, broker and job locks alike.
type metricsHook struct {
	m *metrics.Metrics
}

// Instrument adds command counters and latency histograms to client.
// A nil m leaves the client untouched.
func Instrument(client *redis.Client, m *metrics.Metrics) {
	if m == nil {
		return
	}
	client.AddHook(metricsHook{m: m})
}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		h.observe("dial", start, err)
		return conn, err
	}
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(cmd.Name(), start, err)
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observe("pipeline", start, err)
		return err
	}
}

func (h metricsHook) observe(op string, start time.Time, err error) {
	// a missing key is an answer, not a failure
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	h.m.RedisLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	h.m.RedisOperations.WithLabelValues(op, metrics.Outcome(err)).Inc()
}
