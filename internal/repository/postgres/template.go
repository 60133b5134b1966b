package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

// ErrDuplicateTemplate is returned when name or notification type is already taken.
var ErrDuplicateTemplate = errors.New("template with this name or type already exists")

const templateColumns = `id, name, notification_type, subject, body_html, body_text, is_active, auto_created, created_at, updated_at`

type templateRepository struct {
	BaseRepository
}

func NewTemplateRepository(base BaseRepository) repository.TemplateRepository {
	return &templateRepository{base}
}

func (r *templateRepository) Create(ctx context.Context, tmpl *model.NotificationTemplate) error {
	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}
	now := time.Now()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now

	query := `
		INSERT INTO notification_templates (` + templateColumns + `)
		VALUES (:id, :name, :notification_type, :subject, :body_html, :body_text, :is_active, :auto_created, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, tmpl); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTemplate
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *templateRepository) Get(ctx context.Context, id uuid.UUID) (*model.NotificationTemplate, error) {
	var tmpl model.NotificationTemplate
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE id = $1`
	if err := r.db.GetContext(ctx, &tmpl, query, id); err != nil {
		return nil, notFound(err, "template")
	}
	return &tmpl, nil
}

func (r *templateRepository) Update(ctx context.Context, tmpl *model.NotificationTemplate) error {
	tmpl.UpdatedAt = time.Now()
	query := `
		UPDATE notification_templates
		SET name = :name, notification_type = :notification_type, subject = :subject,
			body_html = :body_html, body_text = :body_text, is_active = :is_active,
			auto_created = :auto_created, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, tmpl)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTemplate
		}
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *templateRepository) List(ctx context.Context, activeOnly bool) ([]*model.NotificationTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`

	var templates []*model.NotificationTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (r *templateRepository) GetActiveByName(ctx context.Context, name string) (*model.NotificationTemplate, error) {
	var tmpl model.NotificationTemplate
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE name = $1 AND is_active = TRUE`
	if err := r.db.GetContext(ctx, &tmpl, query, name); err != nil {
		return nil, notFound(err, "template")
	}
	return &tmpl, nil
}

func (r *templateRepository) GetActiveByType(ctx context.Context, typ model.NotificationType) (*model.NotificationTemplate, error) {
	var tmpl model.NotificationTemplate
	query := `
		SELECT ` + templateColumns + ` FROM notification_templates
		WHERE notification_type = $1 AND is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &tmpl, query, string(typ)); err != nil {
		return nil, notFound(err, "template")
	}
	return &tmpl, nil
}

func (r *templateRepository) GetByNameOrType(ctx context.Context, name string, typ model.NotificationType) (*model.NotificationTemplate, error) {
	var tmpl model.NotificationTemplate
	query := `
		SELECT ` + templateColumns + ` FROM notification_templates
		WHERE name = $1 OR notification_type = $2
		ORDER BY (name = $1) DESC, is_active DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &tmpl, query, name, string(typ)); err != nil {
		return nil, notFound(err, "template")
	}
	return &tmpl, nil
}
