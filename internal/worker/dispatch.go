package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/supplierportal/notify-api/internal/gateway"
	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/internal/service/queue"
	"github.com/supplierportal/notify-api/internal/service/registry"
	"github.com/supplierportal/notify-api/pkg/logger"
)

// Registry names of the services hosted by the dispatcher.
const (
	ServiceQueue = "queue"
	ServiceEmail = "email"
	ServiceSMS   = "sms"
)

type DispatcherConfig struct {
	WorkerID    string
	BatchSize   int
	Concurrency int
}

// Dispatcher claims due queue items and delivers their logs.
type Dispatcher struct {
	queue         queue.Service
	notifications notification.Service
	services      registry.Service
	config        DispatcherConfig
	stats         *Stats
	logger        *logger.Logger
}

func NewDispatcher(q queue.Service, notifications notification.Service, services registry.Service, config DispatcherConfig, stats *Stats, log *logger.Logger) *Dispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Dispatcher{
		queue:         q,
		notifications: notifications,
		services:      services,
		config:        config,
		stats:         stats,
		logger:        log,
	}
}

// channels returns the log channels whose services operators allow to run.
func (d *Dispatcher) channels(ctx context.Context) ([]model.Channel, error) {
	allowed := func(name string) (bool, error) {
		if d.services == nil {
			return true, nil
		}
		svc, err := d.services.GetByName(ctx, name)
		if errors.Is(err, model.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return svc.AllowsWork(), nil
	}

	ok, err := allowed(ServiceQueue)
	if err != nil || !ok {
		return nil, err
	}
	var out []model.Channel
	for _, hosted := range []struct {
		name string
		typ  model.ServiceType
	}{
		{ServiceEmail, model.ServiceTypeEmail},
		{ServiceSMS, model.ServiceTypeSMS},
	} {
		ok, err := allowed(hosted.name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, model.ChannelsFor(hosted.typ)...)
		}
	}
	return out, nil
}

// Run claims one batch and delivers it. Every claimed item is settled even
// if ctx ends mid-batch.
func (d *Dispatcher) Run(ctx context.Context) error {
	channels, err := d.channels(ctx)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		d.logger.Debug("Dispatch paused by service controls")
		return nil
	}

	items, err := d.queue.Claim(ctx, d.config.WorkerID, channels, d.config.BatchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	sem := make(chan struct{}, d.config.Concurrency)
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item *model.QueueItem) {
			defer wg.Done()
			defer func() { <-sem }()
			d.process(ctx, item)
		}(item)
	}
	wg.Wait()

	d.logger.Info("Dispatched queue batch", "worker_id", d.config.WorkerID, "items", len(items))
	return nil
}

func (d *Dispatcher) process(ctx context.Context, item *model.QueueItem) {
	res, err := d.notifications.Deliver(ctx, item.NotificationLogID, gateway.SendOptions{
		Immediate: item.Priority.IsImmediate(),
		Priority:  item.Priority,
	})

	var settle error
	switch {
	case errors.Is(err, notification.ErrNotPending):
		settle = d.queue.Cancel(ctx, item, queue.CodeNotPending)
	case errors.Is(err, model.ErrNotFound):
		settle = d.queue.Cancel(ctx, item, queue.CodeLogMissing)
	case err != nil:
		d.stats.Failure(err.Error())
		settle = d.queue.Fail(ctx, item, err.Error(), queue.CodeInternal)
	case res.Success:
		d.stats.Success()
		settle = d.queue.Complete(ctx, item)
	default:
		d.stats.Failure(res.Message)
		settle = d.queue.Fail(ctx, item, res.Message, queue.CodeDeliveryFailed)
	}
	if settle != nil {
		d.logger.Error(settle, "Failed to settle queue item",
			"queue_id", item.ID.String(), "log_id", item.NotificationLogID.String())
	}
}
