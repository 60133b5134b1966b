package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/internal/model"
)

func TestServiceUpsertKeepsExistingID(t *testing.T) {
	base, mock := newMock(t)
	repo := NewServiceRepository(base)

	existing := uuid.New()
	mock.ExpectQuery(`ON CONFLICT \(name\) DO UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existing.String()))

	svc := &model.DefaultServices()[0]
	require.NoError(t, repo.Upsert(context.Background(), svc))
	assert.Equal(t, existing, svc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceUpdateControlStale(t *testing.T) {
	base, mock := newMock(t)
	repo := NewServiceRepository(base)

	mock.ExpectExec(`UPDATE notification_services`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc := &model.NotificationService{ID: uuid.New(), Status: model.ServiceStatusStopping, UpdatedAt: time.Now()}
	err := repo.UpdateControl(context.Background(), svc, model.ServiceStatusRunning)
	assert.ErrorIs(t, err, model.ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}
