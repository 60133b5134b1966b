package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/logger"
)

// ControlResult is returned by operator service controls.
type ControlResult struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	ServiceStatus model.ServiceStatus `json:"service_status"`
}

type Service interface {
	Seed(ctx context.Context) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*model.NotificationService, error)
	GetByName(ctx context.Context, name string) (*model.NotificationService, error)
	List(ctx context.Context) ([]*model.NotificationService, error)
	Control(ctx context.Context, id uuid.UUID, action model.ServiceAction) (*ControlResult, error)

	ApplyHeartbeat(ctx context.Context, hb model.Heartbeat) error
	// SweepStale marks services whose heartbeats stopped as unhealthy.
	SweepStale(ctx context.Context) (int, error)
}

type service struct {
	repo    repository.ServiceRepository
	timeout time.Duration
	logger  *logger.Logger
	now     func() time.Time
}

func NewService(repo repository.ServiceRepository, heartbeatTimeout time.Duration, log *logger.Logger) Service {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 2 * time.Minute
	}
	return &service{
		repo:    repo,
		timeout: heartbeatTimeout,
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Seed registers the default services. Existing services keep their state.
func (s *service) Seed(ctx context.Context) (int, error) {
	defaults := model.DefaultServices()
	for i := range defaults {
		if err := s.repo.Upsert(ctx, &defaults[i]); err != nil {
			return i, fmt.Errorf("failed to seed service %s: %w", defaults[i].Name, err)
		}
	}
	s.logger.WithContext(ctx).Info("Seeded notification services", "count", len(defaults))
	return len(defaults), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.NotificationService, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) GetByName(ctx context.Context, name string) (*model.NotificationService, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *service) List(ctx context.Context) ([]*model.NotificationService, error) {
	return s.repo.List(ctx)
}

// Control records the requested state. Workers pick it up on their next
// cycle and confirm it by heartbeat.
func (s *service) Control(ctx context.Context, id uuid.UUID, action model.ServiceAction) (*ControlResult, error) {
	svc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := svc.Status

	if err := svc.RequestAction(action, s.now()); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return &ControlResult{Success: false, Message: err.Error(), ServiceStatus: prev}, nil
		}
		return nil, err
	}
	switch action {
	case model.ServiceActionStart, model.ServiceActionRestart:
		svc.IsEnabled = true
	case model.ServiceActionStop:
		svc.IsEnabled = false
	}

	if err := s.repo.UpdateControl(ctx, svc, prev); err != nil {
		if errors.Is(err, model.ErrStaleState) {
			return nil, apperrors.Conflict("service state changed concurrently", err)
		}
		return nil, fmt.Errorf("failed to update service: %w", err)
	}
	s.logger.WithContext(ctx).Info("Service action requested",
		"service", svc.Name, "action", string(action), "desired_status", string(svc.DesiredStatus))
	return &ControlResult{
		Success:       true,
		Message:       fmt.Sprintf("Service %s %s requested", svc.Name, action),
		ServiceStatus: svc.Status,
	}, nil
}

func (s *service) ApplyHeartbeat(ctx context.Context, hb model.Heartbeat) error {
	svc, err := s.repo.GetByName(ctx, hb.Service)
	if err != nil {
		return err
	}
	if hb.SentAt.IsZero() {
		hb.SentAt = s.now()
	}
	svc.ApplyHeartbeat(hb)
	if err := s.repo.UpdateHealth(ctx, svc); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

func (s *service) SweepStale(ctx context.Context) (int, error) {
	services, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	marked := 0
	for _, svc := range services {
		if !svc.IsStale(s.timeout, now) || svc.Status == model.ServiceStatusError {
			continue
		}
		svc.MarkUnresponsive(now)
		if err := s.repo.UpdateHealth(ctx, svc); err != nil {
			return marked, fmt.Errorf("failed to mark service %s unresponsive: %w", svc.Name, err)
		}
		s.logger.WithContext(ctx).Warn("Service heartbeat timed out", "service", svc.Name, "timeout", s.timeout.String())
		marked++
	}
	return marked, nil
}

// ReportedStatus is the status a worker hosting svc announces in its
// heartbeat, derived from what operators asked for.
func ReportedStatus(svc *model.NotificationService) model.ServiceStatus {
	if !svc.IsEnabled {
		return model.ServiceStatusStopped
	}
	switch svc.DesiredStatus {
	case model.ServiceStatusPaused, model.ServiceStatusStopped, model.ServiceStatusMaintenance:
		return svc.DesiredStatus
	}
	return model.ServiceStatusRunning
}
