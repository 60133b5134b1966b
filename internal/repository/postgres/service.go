package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

const serviceColumns = `id, name, service_type, description, version, status, desired_status, endpoint_url,
	health_check_url, is_enabled, max_workers, queue_limit, retry_attempts, timeout_seconds, worker_id,
	started_at, last_heartbeat_at, is_healthy, error_count, last_error, total_processed, total_failed,
	success_rate, cpu_usage, memory_usage, created_at, updated_at`

type serviceRepository struct {
	BaseRepository
}

func NewServiceRepository(base BaseRepository) repository.ServiceRepository {
	return &serviceRepository{base}
}

// Upsert inserts a service by name. An existing row keeps its runtime state
// and only has its static configuration refreshed.
func (r *serviceRepository) Upsert(ctx context.Context, svc *model.NotificationService) error {
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	now := time.Now()
	svc.CreatedAt = now
	svc.UpdatedAt = now

	query := `
		INSERT INTO notification_services (` + serviceColumns + `)
		VALUES (:id, :name, :service_type, :description, :version, :status, :desired_status, :endpoint_url,
			:health_check_url, :is_enabled, :max_workers, :queue_limit, :retry_attempts, :timeout_seconds, :worker_id,
			:started_at, :last_heartbeat_at, :is_healthy, :error_count, :last_error, :total_processed, :total_failed,
			:success_rate, :cpu_usage, :memory_usage, :created_at, :updated_at)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			max_workers = EXCLUDED.max_workers,
			queue_limit = EXCLUDED.queue_limit,
			retry_attempts = EXCLUDED.retry_attempts,
			timeout_seconds = EXCLUDED.timeout_seconds,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	rows, err := r.db.NamedQueryContext(ctx, query, svc)
	if err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&svc.ID); err != nil {
			return fmt.Errorf("failed to read service id: %w", err)
		}
	}
	return rows.Err()
}

func (r *serviceRepository) Get(ctx context.Context, id uuid.UUID) (*model.NotificationService, error) {
	var svc model.NotificationService
	query := `SELECT ` + serviceColumns + ` FROM notification_services WHERE id = $1`
	if err := r.db.GetContext(ctx, &svc, query, id); err != nil {
		return nil, notFound(err, "service")
	}
	return &svc, nil
}

func (r *serviceRepository) GetByName(ctx context.Context, name string) (*model.NotificationService, error) {
	var svc model.NotificationService
	query := `SELECT ` + serviceColumns + ` FROM notification_services WHERE name = $1`
	if err := r.db.GetContext(ctx, &svc, query, name); err != nil {
		return nil, notFound(err, "service")
	}
	return &svc, nil
}

func (r *serviceRepository) List(ctx context.Context) ([]*model.NotificationService, error) {
	var services []*model.NotificationService
	query := `SELECT ` + serviceColumns + ` FROM notification_services ORDER BY name`
	if err := r.db.SelectContext(ctx, &services, query); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

// UpdateControl persists an operator action if nobody changed the status meanwhile.
func (r *serviceRepository) UpdateControl(ctx context.Context, svc *model.NotificationService, expected model.ServiceStatus) error {
	query := `
		UPDATE notification_services
		SET status = $1, desired_status = $2, is_enabled = $3, error_count = $4, last_error = $5, updated_at = $6
		WHERE id = $7 AND status = $8
	`
	res, err := r.db.ExecContext(ctx, query,
		string(svc.Status), string(svc.DesiredStatus), svc.IsEnabled, svc.ErrorCount, svc.LastError, svc.UpdatedAt,
		svc.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update service control: %w", err)
	}
	return requireOne(res, "service")
}

// UpdateHealth writes worker reported runtime fields. It never touches desired_status.
func (r *serviceRepository) UpdateHealth(ctx context.Context, svc *model.NotificationService) error {
	query := `
		UPDATE notification_services
		SET status = :status, version = :version, worker_id = :worker_id, started_at = :started_at,
			last_heartbeat_at = :last_heartbeat_at, is_healthy = :is_healthy, error_count = :error_count,
			last_error = :last_error, total_processed = :total_processed, total_failed = :total_failed,
			success_rate = :success_rate, cpu_usage = :cpu_usage, memory_usage = :memory_usage,
			updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, svc)
	if err != nil {
		return fmt.Errorf("failed to update service health: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
