package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "DRAFT"
	CampaignStatusScheduled CampaignStatus = "SCHEDULED"
	CampaignStatusRunning   CampaignStatus = "RUNNING"
	CampaignStatusPaused    CampaignStatus = "PAUSED"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
	CampaignStatusCancelled CampaignStatus = "CANCELLED"
	CampaignStatusFailed    CampaignStatus = "FAILED"
)

const (
	DefaultBatchSize           = 100
	DefaultDelayBetweenBatches = 5
)

// BulkNotification is one campaign sending a template to many recipients.
type BulkNotification struct {
	ID                      uuid.UUID      `json:"id" db:"id"`
	Name                    string         `json:"name" db:"name"`
	Description             string         `json:"description" db:"description"`
	Status                  CampaignStatus `json:"status" db:"status"`
	Priority                Priority       `json:"priority" db:"priority"`
	Channel                 Channel        `json:"channel" db:"channel"`
	TemplateID              uuid.UUID      `json:"template_id" db:"template_id"`
	RecipientEmails         pq.StringArray `json:"recipient_emails" db:"recipient_emails"`
	RecipientPhones         pq.StringArray `json:"recipient_phones" db:"recipient_phones"`
	RecipientUserIDs        pq.StringArray `json:"recipient_user_ids" db:"recipient_user_ids"`
	RecipientApplicationIDs pq.StringArray `json:"recipient_application_ids" db:"recipient_application_ids"`
	BatchSize               int            `json:"batch_size" db:"batch_size"`
	DelayBetweenBatches     int            `json:"delay_between_batches" db:"delay_between_batches"`
	MaxRetries              int            `json:"max_retries" db:"max_retries"`
	PersonalizeByRecipient  bool           `json:"personalize_by_recipient" db:"personalize_by_recipient"`
	ContextData             JSONMap        `json:"context_data" db:"context_data"`
	TotalRecipients         int            `json:"total_recipients" db:"total_recipients"`
	QueuedCount             int            `json:"queued_count" db:"queued_count"`
	ProcessedCount          int            `json:"processed_count" db:"processed_count"`
	SentCount               int            `json:"sent_count" db:"sent_count"`
	FailedCount             int            `json:"failed_count" db:"failed_count"`
	DeliveredCount          int            `json:"delivered_count" db:"delivered_count"`
	OpenedCount             int            `json:"opened_count" db:"opened_count"`
	DeliveryRate            float64        `json:"delivery_rate" db:"delivery_rate"`
	OpenRate                float64        `json:"open_rate" db:"open_rate"`
	FailureRate             float64        `json:"failure_rate" db:"failure_rate"`
	ScheduledAt             *time.Time     `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt               *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt             *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedBy               *uuid.UUID     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt               time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at" db:"updated_at"`
}

func (b *BulkNotification) transition(to CampaignStatus, now time.Time) error {
	if err := CampaignTransitions.check("campaign", b.Status, to); err != nil {
		return err
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// Schedule moves a draft to SCHEDULED. A zero at means "as soon as possible".
func (b *BulkNotification) Schedule(at time.Time, now time.Time) error {
	if err := b.transition(CampaignStatusScheduled, now); err != nil {
		return err
	}
	if at.IsZero() {
		at = now
	}
	b.ScheduledAt = timePtr(at)
	return nil
}

// Start is only valid from SCHEDULED.
func (b *BulkNotification) Start(now time.Time) error {
	if b.Status != CampaignStatusScheduled {
		return &TransitionError{Entity: "campaign", From: string(b.Status), To: string(CampaignStatusRunning)}
	}
	if err := b.transition(CampaignStatusRunning, now); err != nil {
		return err
	}
	b.StartedAt = timePtr(now)
	return nil
}

func (b *BulkNotification) Pause(now time.Time) error {
	if b.Status != CampaignStatusRunning {
		return &TransitionError{Entity: "campaign", From: string(b.Status), To: string(CampaignStatusPaused)}
	}
	return b.transition(CampaignStatusPaused, now)
}

func (b *BulkNotification) Resume(now time.Time) error {
	if b.Status != CampaignStatusPaused {
		return &TransitionError{Entity: "campaign", From: string(b.Status), To: string(CampaignStatusRunning)}
	}
	return b.transition(CampaignStatusRunning, now)
}

func (b *BulkNotification) Cancel(now time.Time) error {
	if err := b.transition(CampaignStatusCancelled, now); err != nil {
		return err
	}
	b.CompletedAt = timePtr(now)
	return nil
}

func (b *BulkNotification) Complete(now time.Time) error {
	if err := b.transition(CampaignStatusCompleted, now); err != nil {
		return err
	}
	b.CompletedAt = timePtr(now)
	return nil
}

func (b *BulkNotification) Fail(now time.Time) error {
	if err := b.transition(CampaignStatusFailed, now); err != nil {
		return err
	}
	b.CompletedAt = timePtr(now)
	return nil
}

// CalculateRecipients recomputes TotalRecipients from all four recipient sources.
// It must be called after any recipient list changes.
func (b *BulkNotification) CalculateRecipients() int {
	b.TotalRecipients = len(b.RecipientEmails) + len(b.RecipientPhones) +
		len(b.RecipientUserIDs) + len(b.RecipientApplicationIDs)
	return b.TotalRecipients
}

// ProgressDelta is one increment of campaign counters.
type ProgressDelta struct {
	Sent      int
	Failed    int
	Delivered int
	Opened    int
}

// UpdateProgress adds to the counters and recomputes the derived rates.
func (b *BulkNotification) UpdateProgress(sent, failed, delivered, opened int) {
	b.SentCount += sent
	b.FailedCount += failed
	b.DeliveredCount += delivered
	b.OpenedCount += opened
	b.ProcessedCount += sent + failed

	b.OpenRate = percent(b.OpenedCount, b.SentCount)
	b.DeliveryRate = percent(b.DeliveredCount, b.SentCount)
	b.FailureRate = percent(b.FailedCount, b.ProcessedCount)
}

func (b *BulkNotification) ProgressPercentage() float64 {
	return percent(b.ProcessedCount, b.TotalRecipients)
}

// EstimatedCompletion extrapolates linearly from throughput so far. It returns
// nil before the campaign has started or processed anything.
func (b *BulkNotification) EstimatedCompletion(now time.Time) *time.Time {
	if b.StartedAt == nil || b.ProcessedCount == 0 {
		return nil
	}
	elapsed := now.Sub(*b.StartedAt)
	if elapsed <= 0 {
		return nil
	}
	remaining := b.TotalRecipients - b.ProcessedCount
	if remaining <= 0 {
		return timePtr(now)
	}
	perItem := elapsed / time.Duration(b.ProcessedCount)
	return timePtr(now.Add(perItem * time.Duration(remaining)))
}

func (b *BulkNotification) IsActive() bool {
	return b.Status == CampaignStatusRunning
}

// SplitRecipientLines splits newline separated recipient text, trimming
// whitespace and dropping blank lines.
func SplitRecipientLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if v := strings.TrimSpace(line); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Recipient is one resolved destination of a campaign.
type Recipient struct {
	Email         string     `db:"email"`
	Phone         string     `db:"phone"`
	Name          string     `db:"name"`
	UserID        *uuid.UUID `db:"user_id"`
	ApplicationID *uuid.UUID `db:"application_id"`
}

// CampaignLogCounts summarises the logs a campaign has produced. Open counts
// logs that are PENDING, PAUSED or FAILED with retries left.
type CampaignLogCounts struct {
	Total int `db:"total"`
	Open  int `db:"open"`
}

func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}
