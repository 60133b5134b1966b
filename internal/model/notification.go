package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "PENDING"
	NotificationStatusPaused    NotificationStatus = "PAUSED"
	NotificationStatusSent      NotificationStatus = "SENT"
	NotificationStatusFailed    NotificationStatus = "FAILED"
	NotificationStatusDelivered NotificationStatus = "DELIVERED"
	NotificationStatusBounced   NotificationStatus = "BOUNCED"
	NotificationStatusOpened    NotificationStatus = "OPENED"
	NotificationStatusClicked   NotificationStatus = "CLICKED"
)

type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

const (
	DefaultMaxRetries     = 3
	DefaultLogRetryDelay  = 30 * time.Minute
	DefaultLogRetention   = 30 * 24 * time.Hour
	DefaultQueueRetryWait = 60 * time.Second
)

// NotificationLog is the durable record of one outbound message.
type NotificationLog struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	TemplateID     *uuid.UUID         `json:"template_id,omitempty" db:"template_id"`
	TemplateName   string             `json:"template_name" db:"template_name"`
	Channel        Channel            `json:"channel" db:"channel"`
	RecipientEmail string             `json:"recipient_email" db:"recipient_email"`
	RecipientName  string             `json:"recipient_name" db:"recipient_name"`
	RecipientPhone string             `json:"recipient_phone" db:"recipient_phone"`
	Subject        string             `json:"subject" db:"subject"`
	BodyHTML       string             `json:"body_html" db:"body_html"`
	BodyText       string             `json:"body_text" db:"body_text"`
	Status         NotificationStatus `json:"status" db:"status"`
	ErrorMessage   string             `json:"error_message,omitempty" db:"error_message"`
	SentAt         *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt    *time.Time         `json:"delivered_at,omitempty" db:"delivered_at"`
	OpenedAt       *time.Time         `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt      *time.Time         `json:"clicked_at,omitempty" db:"clicked_at"`
	TrackingID     uuid.UUID          `json:"tracking_id" db:"tracking_id"`
	ExternalID     string             `json:"external_id,omitempty" db:"external_id"`
	IPAddress      string             `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent      string             `json:"user_agent,omitempty" db:"user_agent"`
	ContextData    JSONMap            `json:"context_data" db:"context_data"`
	Metadata       JSONMap            `json:"metadata" db:"metadata"`
	ApplicationID  *uuid.UUID         `json:"application_id,omitempty" db:"application_id"`
	UserID         *uuid.UUID         `json:"user_id,omitempty" db:"user_id"`
	CampaignID     *uuid.UUID         `json:"campaign_id,omitempty" db:"campaign_id"`
	RetryCount     int                `json:"retry_count" db:"retry_count"`
	MaxRetries     int                `json:"max_retries" db:"max_retries"`
	NextRetryAt    *time.Time         `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}

// AssignTrackingID sets the tracking id once. Later calls keep the existing value.
func (n *NotificationLog) AssignTrackingID() {
	if n.TrackingID == uuid.Nil {
		n.TrackingID = uuid.New()
	}
}

func (n *NotificationLog) transition(to NotificationStatus, now time.Time) error {
	if err := LogTransitions.check("notification log", n.Status, to); err != nil {
		return err
	}
	n.Status = to
	n.UpdatedAt = now
	return nil
}

func (n *NotificationLog) MarkSent(externalID string, now time.Time) error {
	if err := n.transition(NotificationStatusSent, now); err != nil {
		return err
	}
	n.SentAt = timePtr(now)
	if externalID != "" {
		n.ExternalID = externalID
	}
	n.ErrorMessage = ""
	return nil
}

func (n *NotificationLog) MarkDelivered(now time.Time) error {
	if err := n.transition(NotificationStatusDelivered, now); err != nil {
		return err
	}
	n.DeliveredAt = timePtr(now)
	return nil
}

// MarkOpened records an open. Opens on an already OPENED or CLICKED log only
// refresh opened_at and the client fingerprint; the status never moves backward.
func (n *NotificationLog) MarkOpened(ip, userAgent string, now time.Time) error {
	switch n.Status {
	case NotificationStatusOpened, NotificationStatusClicked:
		n.UpdatedAt = now
	default:
		if err := n.transition(NotificationStatusOpened, now); err != nil {
			return err
		}
	}
	n.OpenedAt = timePtr(now)
	n.setClient(ip, userAgent)
	return nil
}

// MarkClicked records a click. A click implies an open, so opened_at is
// filled when it was never set.
func (n *NotificationLog) MarkClicked(ip, userAgent string, now time.Time) error {
	if n.Status == NotificationStatusClicked {
		n.UpdatedAt = now
	} else if err := n.transition(NotificationStatusClicked, now); err != nil {
		return err
	}
	n.ClickedAt = timePtr(now)
	if n.OpenedAt == nil {
		n.OpenedAt = timePtr(now)
	}
	n.setClient(ip, userAgent)
	return nil
}

func (n *NotificationLog) MarkFailed(msg string, now time.Time) error {
	if err := n.transition(NotificationStatusFailed, now); err != nil {
		return err
	}
	n.ErrorMessage = msg
	return nil
}

// Expire fails a PENDING log whose queue item ran out of time and spends its
// retry budget, so the log is final.
func (n *NotificationLog) Expire(now time.Time) error {
	if n.Status != NotificationStatusPending {
		return &TransitionError{Entity: "notification log", From: string(n.Status), To: string(NotificationStatusFailed)}
	}
	if err := n.MarkFailed(ExpiredMessage, now); err != nil {
		return err
	}
	n.RetryCount = n.MaxRetries
	n.NextRetryAt = nil
	return nil
}

func (n *NotificationLog) MarkBounced(msg string, now time.Time) error {
	if err := n.transition(NotificationStatusBounced, now); err != nil {
		return err
	}
	if msg != "" {
		n.ErrorMessage = msg
	}
	return nil
}

func (n *NotificationLog) Pause(now time.Time) error {
	return n.transition(NotificationStatusPaused, now)
}

func (n *NotificationLog) Resume(now time.Time) error {
	if n.Status != NotificationStatusPaused {
		return &TransitionError{Entity: "notification log", From: string(n.Status), To: string(NotificationStatusPending)}
	}
	return n.transition(NotificationStatusPending, now)
}

// CanRetry is evaluated against now on every call; callers must not cache it.
func (n *NotificationLog) CanRetry(now time.Time) bool {
	return n.Status == NotificationStatusFailed &&
		n.RetryCount < n.MaxRetries &&
		(n.NextRetryAt == nil || !n.NextRetryAt.After(now))
}

// ScheduleRetry moves a retryable FAILED log back to PENDING. It returns false
// and leaves every field untouched when CanRetry is false.
func (n *NotificationLog) ScheduleRetry(delay time.Duration, now time.Time) bool {
	if !n.CanRetry(now) {
		return false
	}
	n.RetryCount++
	n.NextRetryAt = timePtr(now.Add(delay))
	n.Status = NotificationStatusPending
	n.UpdatedAt = now
	return true
}

func (n *NotificationLog) IsSuccessful() bool {
	switch n.Status {
	case NotificationStatusSent, NotificationStatusDelivered, NotificationStatusOpened, NotificationStatusClicked:
		return true
	}
	return false
}

func (n *NotificationLog) IsFailed() bool {
	return n.Status == NotificationStatusFailed || n.Status == NotificationStatusBounced
}

// DeliveryTime is delivered_at minus sent_at, or zero when either is unknown.
func (n *NotificationLog) DeliveryTime() time.Duration {
	if n.SentAt == nil || n.DeliveredAt == nil {
		return 0
	}
	return n.DeliveredAt.Sub(*n.SentAt)
}

func (n *NotificationLog) setClient(ip, userAgent string) {
	if ip != "" {
		n.IPAddress = ip
	}
	if userAgent != "" {
		n.UserAgent = userAgent
	}
}

// LogFilter narrows admin listings of notification logs.
type LogFilter struct {
	Status   NotificationStatus `form:"status"`
	Channel  Channel            `form:"channel"`
	Search   string             `form:"search"`
	Template string             `form:"template"`
	Pagination
}
