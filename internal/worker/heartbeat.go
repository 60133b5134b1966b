package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/service/registry"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/messaging"
)

// Heartbeater announces the state of the services this process hosts.
type Heartbeater struct {
	services  registry.Service
	publisher messaging.Publisher
	channel   string
	names     []string
	workerID  string
	version   string
	startedAt time.Time
	stats     *Stats
	logger    *logger.Logger
}

func NewHeartbeater(services registry.Service, publisher messaging.Publisher, channel string, names []string, workerID, version string, stats *Stats, log *logger.Logger) *Heartbeater {
	if channel == "" {
		channel = messaging.ChannelHeartbeats
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Heartbeater{
		services:  services,
		publisher: publisher,
		channel:   channel,
		names:     names,
		workerID:  workerID,
		version:   version,
		startedAt: time.Now().UTC(),
		stats:     stats,
		logger:    log,
	}
}

func (h *Heartbeater) Run(ctx context.Context) error {
	processed, failed, lastError := h.stats.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	for _, name := range h.names {
		status := model.ServiceStatusRunning
		svc, err := h.services.GetByName(ctx, name)
		switch {
		case err == nil:
			status = registry.ReportedStatus(svc)
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		hb := model.Heartbeat{
			Service:     name,
			WorkerID:    h.workerID,
			Status:      status,
			Version:     h.version,
			Processed:   processed,
			Failed:      failed,
			LastError:   lastError,
			StartedAt:   h.startedAt,
			MemoryUsage: float64(mem.Alloc) / (1 << 20),
			SentAt:      time.Now().UTC(),
		}
		if err := h.publisher.Publish(ctx, h.channel, hb); err != nil {
			return fmt.Errorf("failed to publish heartbeat for %s: %w", name, err)
		}
	}
	h.logger.Debug("Published heartbeats", "services", len(h.names), "worker_id", h.workerID)
	return nil
}
