package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplierportal/notify-api/config"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			Provider:    "api",
			SMSProvider: "api",
			BaseURL:     "http://gateway.test",
			Timeout:     time.Second,
		},
		Tracking: config.TrackingConfig{BaseURL: "https://notify.test"},
		Portal:   config.PortalConfig{URL: "https://portal.test", AdminURL: "https://admin.test"},
	}
}

func mockDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres")
}

func TestNewWiresServices(t *testing.T) {
	a, err := New(context.Background(), testConfig(), mockDB(t), logger.Nop(), metrics.New("test"))
	require.NoError(t, err)

	assert.NotNil(t, a.Repos.Logs)
	assert.NotNil(t, a.Templates)
	assert.NotNil(t, a.Gateway)
	assert.NotNil(t, a.Notifications)
	assert.NotNil(t, a.Notifier)
	assert.NotNil(t, a.Queue)
	assert.NotNil(t, a.Campaigns)
	assert.NotNil(t, a.Analytics)
	assert.NotNil(t, a.Registry)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.Provider = "fax"

	_, err := New(context.Background(), cfg, mockDB(t), logger.Nop(), metrics.New("test"))
	assert.ErrorContains(t, err, `unknown email provider "fax"`)
}
