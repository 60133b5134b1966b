package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
)

// Job is one run of a scheduled task.
type Job func(ctx context.Context) error

type RunnerConfig struct {
	Name     string
	Interval time.Duration
	// LockTTL bounds how long one replica holds the job lock. Zero disables locking.
	LockTTL time.Duration
}

// Runner executes a Job on a fixed interval. When a Locker is configured only
// one replica runs a given job per tick.
type Runner struct {
	config  RunnerConfig
	job     Job
	locker  Locker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRunner(
	config RunnerConfig,
	job Job,
	locker Locker,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Runner {
	// Config validation instead of defaults
	if config.Name == "" {
		panic("Name must be set")
	}
	if config.Interval <= 0 {
		panic("Interval must be greater than 0")
	}

	return &Runner{
		config:  config,
		job:     job,
		locker:  locker,
		logger:  logger,
		metrics: metrics,
	}
}

func (r *Runner) Name() string {
	return r.config.Name
}

// Start runs the job once immediately and then on every tick until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("Starting job", "job", r.config.Name, "interval", r.config.Interval.String())
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down job", "job", r.config.Name)
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error(err, "Job run failed", "job", r.config.Name)
	}
}

// RunOnce executes the job a single time, honoring the lock.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r.locker != nil && r.config.LockTTL > 0 {
		release, ok, err := r.locker.Acquire(ctx, "notify:job:"+r.config.Name, r.config.LockTTL)
		if err != nil {
			r.observe("lock_error")
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if !ok {
			r.observe("skipped")
			r.logger.Debug("Job locked by another replica", "job", r.config.Name)
			return nil
		}
		defer release()
	}

	var timer *prometheus.Timer
	if r.metrics != nil {
		timer = prometheus.NewTimer(r.metrics.JobDuration.WithLabelValues(r.config.Name))
	}
	err := r.job(ctx)
	if timer != nil {
		timer.ObserveDuration()
	}
	r.observe(metrics.Outcome(err))
	return err
}

func (r *Runner) observe(status string) {
	if r.metrics != nil {
		r.metrics.JobRuns.WithLabelValues(r.config.Name, status).Inc()
	}
}

// Retry calls fn up to attempts times, sleeping delay between attempts. It
// stops early when ctx is cancelled.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
