package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/internal/service/registry"
	"github.com/supplierportal/notify-api/pkg/event"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/messaging"
)

// HeartbeatHandler records heartbeats published by workers.
func HeartbeatHandler(services registry.Service, log *logger.Logger) messaging.HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var hb model.Heartbeat
		if err := json.Unmarshal(payload, &hb); err != nil {
			return fmt.Errorf("invalid heartbeat: %w", err)
		}
		err := services.ApplyHeartbeat(ctx, hb)
		if errors.Is(err, model.ErrNotFound) {
			log.Warn("Heartbeat for unregistered service", "service", hb.Service, "worker_id", hb.WorkerID)
			return nil
		}
		return err
	}
}

// EventHandler turns business events from the broker into notifications.
func EventHandler(notifier notification.Notifier, log *logger.Logger) messaging.HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		env, err := event.Parse(payload)
		if err != nil {
			return err
		}
		out, err := notifier.HandleEvent(ctx, env)
		if err != nil {
			return fmt.Errorf("event %s (%s): %w", env.ID, env.Type, err)
		}
		log.WithContext(ctx).Info("Handled business event",
			"event_id", env.ID.String(), "event_type", string(env.Type), "queued", len(out.Queued), "failed", len(out.Failed))
		return nil
	}
}
