package messaging

import (
	"context"
	"fmt"
)

// HandlerFunc processes one raw message.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Consume subscribes to channel and calls handle for every message until ctx
// is cancelled or the subscription closes. Handler errors are passed to
// onError and do not stop consumption.
func Consume(ctx context.Context, b Broker, channel string, handle HandlerFunc, onError func(error)) error {
	msgs, err := b.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := handle(ctx, msg); err != nil && onError != nil {
				onError(fmt.Errorf("%s: %w", channel, err))
			}
		}
	}
}
