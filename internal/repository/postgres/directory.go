package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

// recipientDirectory reads portal users and supplier applications. Those
// tables belong to the onboarding portal; this service only reads them.
type recipientDirectory struct {
	BaseRepository
}

func NewRecipientDirectory(base BaseRepository) repository.RecipientDirectory {
	return &recipientDirectory{base}
}

func (r *recipientDirectory) Users(ctx context.Context, ids []uuid.UUID) ([]model.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT email, COALESCE(phone, '') AS phone, COALESCE(full_name, '') AS name, id AS user_id
		FROM users
		WHERE id = ANY($1) AND is_active = TRUE
		ORDER BY email
	`
	var out []model.Recipient
	if err := r.db.SelectContext(ctx, &out, query, pq.Array(uuidStrings(ids))); err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}
	return out, nil
}

func (r *recipientDirectory) Applications(ctx context.Context, ids []uuid.UUID) ([]model.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT contact_email AS email, COALESCE(contact_phone, '') AS phone,
			COALESCE(contact_name, '') AS name, id AS application_id
		FROM supplier_applications
		WHERE id = ANY($1)
		ORDER BY contact_email
	`
	var out []model.Recipient
	if err := r.db.SelectContext(ctx, &out, query, pq.Array(uuidStrings(ids))); err != nil {
		return nil, fmt.Errorf("failed to resolve applications: %w", err)
	}
	return out, nil
}

func (r *recipientDirectory) Admins(ctx context.Context) ([]model.Recipient, error) {
	query := `
		SELECT email, COALESCE(phone, '') AS phone, COALESCE(full_name, '') AS name, id AS user_id
		FROM users
		WHERE role = 'ADMIN' AND is_active = TRUE
		ORDER BY email
	`
	var out []model.Recipient
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return out, nil
}
