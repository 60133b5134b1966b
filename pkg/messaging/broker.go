package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher is the publish half of Broker
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Channels used between the API and the worker.
const (
	ChannelHeartbeats        = "notify.heartbeats"
	ChannelApplicationEvents = "application.events"
)
