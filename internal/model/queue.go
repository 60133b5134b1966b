package model

import (
	"time"

	"github.com/google/uuid"
)

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "PENDING"
	QueueStatusProcessing QueueStatus = "PROCESSING"
	QueueStatusCompleted  QueueStatus = "COMPLETED"
	QueueStatusFailed     QueueStatus = "FAILED"
	QueueStatusCancelled  QueueStatus = "CANCELLED"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank orders priorities for dispatch; higher runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// IsImmediate reports whether delivery should use the retrying gateway path.
func (p Priority) IsImmediate() bool {
	return p == PriorityUrgent || p == PriorityHigh
}

const ManualWorkerID = "manual"

// Expiry markers written when a queue item outlives its TTL.
const (
	ExpiredCode    = "EXPIRED"
	ExpiredMessage = "expired before dispatch"
)

// QueueItem schedules one notification log for delivery.
type QueueItem struct {
	ID                  uuid.UUID   `json:"id" db:"id"`
	NotificationLogID   uuid.UUID   `json:"notification_log_id" db:"notification_log_id"`
	CampaignID          *uuid.UUID  `json:"campaign_id,omitempty" db:"campaign_id"`
	Priority            Priority    `json:"priority" db:"priority"`
	Status              QueueStatus `json:"status" db:"status"`
	ScheduledAt         time.Time   `json:"scheduled_at" db:"scheduled_at"`
	ExpiresAt           *time.Time  `json:"expires_at,omitempty" db:"expires_at"`
	RetryCount          int         `json:"retry_count" db:"retry_count"`
	MaxRetries          int         `json:"max_retries" db:"max_retries"`
	NextRetryAt         *time.Time  `json:"next_retry_at,omitempty" db:"next_retry_at"`
	AssignedWorker      string      `json:"assigned_worker,omitempty" db:"assigned_worker"`
	ProcessingStartedAt *time.Time  `json:"processing_started_at,omitempty" db:"processing_started_at"`
	ProcessedAt         *time.Time  `json:"processed_at,omitempty" db:"processed_at"`
	ProcessingMillis    int64       `json:"processing_duration_ms" db:"processing_duration_ms"`
	ErrorCode           string      `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage        string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

func (q *QueueItem) transition(to QueueStatus, now time.Time) error {
	if err := QueueTransitions.check("queue item", q.Status, to); err != nil {
		return err
	}
	q.Status = to
	q.UpdatedAt = now
	return nil
}

// AssignToWorker claims the item in memory. Persisting the claim must use a
// conditional update so that only one worker wins.
func (q *QueueItem) AssignToWorker(workerID string, now time.Time) error {
	if workerID == "" {
		workerID = ManualWorkerID
	}
	if err := q.transition(QueueStatusProcessing, now); err != nil {
		return err
	}
	q.AssignedWorker = workerID
	q.ProcessingStartedAt = timePtr(now)
	return nil
}

// MarkCompleted records completion. A nil duration is computed from the
// processing start time.
func (q *QueueItem) MarkCompleted(duration *time.Duration, now time.Time) error {
	if err := q.transition(QueueStatusCompleted, now); err != nil {
		return err
	}
	q.finish(duration, now)
	q.ErrorCode = ""
	q.ErrorMessage = ""
	return nil
}

func (q *QueueItem) MarkFailed(msg, code string, now time.Time) error {
	if err := q.transition(QueueStatusFailed, now); err != nil {
		return err
	}
	q.finish(nil, now)
	q.ErrorMessage = msg
	q.ErrorCode = code
	return nil
}

func (q *QueueItem) Cancel(now time.Time) error {
	return q.transition(QueueStatusCancelled, now)
}

func (q *QueueItem) CanRetry(now time.Time) bool {
	return q.Status == QueueStatusFailed &&
		q.RetryCount < q.MaxRetries &&
		(q.NextRetryAt == nil || !q.NextRetryAt.After(now))
}

// ScheduleRetry requeues a failed item after delay; false means nothing changed.
func (q *QueueItem) ScheduleRetry(delay time.Duration, now time.Time) bool {
	if !q.CanRetry(now) {
		return false
	}
	next := now.Add(delay)
	// the TTL runs from the scheduled time, so it moves with every retry
	if q.ExpiresAt != nil {
		exp := q.ExpiresAt.Add(next.Sub(q.ScheduledAt))
		q.ExpiresAt = &exp
	}
	q.RetryCount++
	q.NextRetryAt = &next
	q.ScheduledAt = next
	q.Status = QueueStatusPending
	q.AssignedWorker = ""
	q.UpdatedAt = now
	return true
}

func (q *QueueItem) IsExpired(now time.Time) bool {
	return q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}

// IsDue reports whether a PENDING item may be dispatched at now.
func (q *QueueItem) IsDue(now time.Time) bool {
	if q.Status != QueueStatusPending || q.ScheduledAt.After(now) {
		return false
	}
	return q.NextRetryAt == nil || !q.NextRetryAt.After(now)
}

func (q *QueueItem) finish(duration *time.Duration, now time.Time) {
	q.ProcessedAt = timePtr(now)
	switch {
	case duration != nil:
		q.ProcessingMillis = duration.Milliseconds()
	case q.ProcessingStartedAt != nil:
		q.ProcessingMillis = now.Sub(*q.ProcessingStartedAt).Milliseconds()
	}
}

// DispatchBefore orders items by priority descending, then scheduled_at ascending.
func DispatchBefore(a, b *QueueItem) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	return a.ScheduledAt.Before(b.ScheduledAt)
}

type QueueStats struct {
	Pending    int `json:"pending" db:"pending"`
	Processing int `json:"processing" db:"processing"`
	Completed  int `json:"completed" db:"completed"`
	Failed     int `json:"failed" db:"failed"`
	Cancelled  int `json:"cancelled" db:"cancelled"`
}
