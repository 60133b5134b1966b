package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// NotificationAnalytics is the per (date, channel, template) daily rollup.
// Rate fields are only ever produced by CalculateRates.
type NotificationAnalytics struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	Date                time.Time `json:"date" db:"date"`
	Channel             Channel   `json:"channel" db:"channel"`
	TemplateName        string    `json:"template_name" db:"template_name"`
	TotalSent           int       `json:"total_sent" db:"total_sent"`
	TotalDelivered      int       `json:"total_delivered" db:"total_delivered"`
	TotalOpened         int       `json:"total_opened" db:"total_opened"`
	TotalClicked        int       `json:"total_clicked" db:"total_clicked"`
	TotalFailed         int       `json:"total_failed" db:"total_failed"`
	TotalBounced        int       `json:"total_bounced" db:"total_bounced"`
	TotalCost           float64   `json:"total_cost" db:"total_cost"`
	DeliveryRate        float64   `json:"delivery_rate" db:"delivery_rate"`
	OpenRate            float64   `json:"open_rate" db:"open_rate"`
	ClickRate           float64   `json:"click_rate" db:"click_rate"`
	FailureRate         float64   `json:"failure_rate" db:"failure_rate"`
	AverageCostPerNotif float64   `json:"average_cost_per_notification" db:"average_cost_per_notification"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// CalculateRates derives every rate from the stored counts.
func (a *NotificationAnalytics) CalculateRates() {
	a.DeliveryRate = round2(percent(a.TotalDelivered, a.TotalSent))
	a.FailureRate = round2(percent(a.TotalFailed+a.TotalBounced, a.TotalSent))
	a.OpenRate = round2(percent(a.TotalOpened, a.TotalDelivered))
	a.ClickRate = round2(percent(a.TotalClicked, a.TotalOpened))
	a.AverageCostPerNotif = 0
	if a.TotalSent > 0 {
		a.AverageCostPerNotif = math.Round(a.TotalCost/float64(a.TotalSent)*10000) / 10000
	}
}

// LogCounts is one grouped row of logs for a day.
type LogCounts struct {
	Channel      Channel `db:"channel"`
	TemplateName string  `db:"template_name"`
	Total        int     `db:"total"`
	Delivered    int     `db:"delivered"`
	Opened       int     `db:"opened"`
	Clicked      int     `db:"clicked"`
	Failed       int     `db:"failed"`
	Bounced      int     `db:"bounced"`
	Cost         float64 `db:"cost"`
}

// ToAnalytics converts grouped counts into an analytics row for date.
// total_sent counts every log of the day, delivered includes opened and
// clicked logs, opened includes clicked ones.
func (c LogCounts) ToAnalytics(date time.Time) *NotificationAnalytics {
	a := &NotificationAnalytics{
		Date:           TruncateDay(date),
		Channel:        c.Channel,
		TemplateName:   c.TemplateName,
		TotalSent:      c.Total,
		TotalDelivered: c.Delivered,
		TotalOpened:    c.Opened,
		TotalClicked:   c.Clicked,
		TotalFailed:    c.Failed,
		TotalBounced:   c.Bounced,
		TotalCost:      c.Cost,
	}
	a.CalculateRates()
	return a
}

func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type AnalyticsFilter struct {
	From    time.Time
	To      time.Time
	Channel Channel
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
