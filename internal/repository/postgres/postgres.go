package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/supplierportal/notify-api/internal/repository"
)

// Repositories bundles every postgres repository over one connection pool.
type Repositories struct {
	Templates repository.TemplateRepository
	Logs      repository.NotificationLogRepository
	SMS       repository.SMSRepository
	Queue     repository.QueueRepository
	Campaigns repository.CampaignRepository
	Directory repository.RecipientDirectory
	Analytics repository.AnalyticsRepository
	Services  repository.ServiceRepository
}

func NewRepositories(db *sqlx.DB) *Repositories {
	base := NewBaseRepository(db)
	return &Repositories{
		Templates: NewTemplateRepository(base),
		Logs:      NewNotificationLogRepository(base),
		SMS:       NewSMSRepository(base),
		Queue:     NewQueueRepository(base),
		Campaigns: NewCampaignRepository(base),
		Directory: NewRecipientDirectory(base),
		Analytics: NewAnalyticsRepository(base),
		Services:  NewServiceRepository(base),
	}
}
