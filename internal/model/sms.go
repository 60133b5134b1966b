package model

import (
	"time"

	"github.com/google/uuid"
)

type SMSStatus string

const (
	SMSStatusPending   SMSStatus = "PENDING"
	SMSStatusSent      SMSStatus = "SENT"
	SMSStatusFailed    SMSStatus = "FAILED"
	SMSStatusDelivered SMSStatus = "DELIVERED"
	SMSStatusBounced   SMSStatus = "BOUNCED"
)

// SMSNotification mirrors NotificationLog for SMS delivery and carries the provider cost.
type SMSNotification struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	NotificationLogID *uuid.UUID `json:"notification_log_id,omitempty" db:"notification_log_id"`
	RecipientPhone    string     `json:"recipient_phone" db:"recipient_phone"`
	RecipientName     string     `json:"recipient_name" db:"recipient_name"`
	Message           string     `json:"message" db:"message"`
	TemplateName      string     `json:"template_name" db:"template_name"`
	Status            SMSStatus  `json:"status" db:"status"`
	ErrorMessage      string     `json:"error_message,omitempty" db:"error_message"`
	ExternalID        string     `json:"external_id,omitempty" db:"external_id"`
	Cost              float64    `json:"cost" db:"cost"`
	SentAt            *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ApplicationID     *uuid.UUID `json:"application_id,omitempty" db:"application_id"`
	UserID            *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	RetryCount        int        `json:"retry_count" db:"retry_count"`
	MaxRetries        int        `json:"max_retries" db:"max_retries"`
	NextRetryAt       *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

func (s *SMSNotification) transition(to SMSStatus, now time.Time) error {
	if err := SMSTransitions.check("sms notification", s.Status, to); err != nil {
		return err
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

func (s *SMSNotification) MarkSent(externalID string, cost float64, now time.Time) error {
	if err := s.transition(SMSStatusSent, now); err != nil {
		return err
	}
	s.SentAt = timePtr(now)
	s.ExternalID = externalID
	if cost > 0 {
		s.Cost = cost
	}
	return nil
}

func (s *SMSNotification) MarkDelivered(now time.Time) error {
	if err := s.transition(SMSStatusDelivered, now); err != nil {
		return err
	}
	s.DeliveredAt = timePtr(now)
	return nil
}

func (s *SMSNotification) MarkFailed(msg string, now time.Time) error {
	if err := s.transition(SMSStatusFailed, now); err != nil {
		return err
	}
	s.ErrorMessage = msg
	return nil
}

func (s *SMSNotification) MarkBounced(msg string, now time.Time) error {
	if err := s.transition(SMSStatusBounced, now); err != nil {
		return err
	}
	s.ErrorMessage = msg
	return nil
}

func (s *SMSNotification) CanRetry(now time.Time) bool {
	return s.Status == SMSStatusFailed &&
		s.RetryCount < s.MaxRetries &&
		(s.NextRetryAt == nil || !s.NextRetryAt.After(now))
}

func (s *SMSNotification) ScheduleRetry(delay time.Duration, now time.Time) bool {
	if !s.CanRetry(now) {
		return false
	}
	s.RetryCount++
	s.NextRetryAt = timePtr(now.Add(delay))
	s.Status = SMSStatusPending
	s.UpdatedAt = now
	return true
}
