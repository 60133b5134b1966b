package model

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError reports a status change that the entity's transition table rejects.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type transitions[S ~string] map[S][]S

func (t transitions[S]) Allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t transitions[S]) check(entity string, from, to S) error {
	if !t.Allows(from, to) {
		return &TransitionError{Entity: entity, From: string(from), To: string(to)}
	}
	return nil
}

// LogTransitions is the legal-transition table for NotificationLog.
// SENT may jump straight to OPENED or CLICKED: providers without delivery
// callbacks never report DELIVERED, and an open proves delivery.
var LogTransitions = transitions[NotificationStatus]{
	NotificationStatusPending:   {NotificationStatusSent, NotificationStatusFailed, NotificationStatusPaused},
	NotificationStatusPaused:    {NotificationStatusPending},
	NotificationStatusSent:      {NotificationStatusDelivered, NotificationStatusBounced, NotificationStatusOpened, NotificationStatusClicked},
	NotificationStatusDelivered: {NotificationStatusOpened, NotificationStatusClicked},
	NotificationStatusOpened:    {NotificationStatusClicked},
	NotificationStatusFailed:    {NotificationStatusPending},
}

var SMSTransitions = transitions[SMSStatus]{
	SMSStatusPending: {SMSStatusSent, SMSStatusFailed},
	SMSStatusSent:    {SMSStatusDelivered, SMSStatusBounced},
	SMSStatusFailed:  {SMSStatusPending},
}

var QueueTransitions = transitions[QueueStatus]{
	QueueStatusPending:    {QueueStatusProcessing, QueueStatusCancelled},
	QueueStatusProcessing: {QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled},
	QueueStatusFailed:     {QueueStatusPending, QueueStatusCancelled},
}

var CampaignTransitions = transitions[CampaignStatus]{
	CampaignStatusDraft:     {CampaignStatusScheduled},
	CampaignStatusScheduled: {CampaignStatusRunning, CampaignStatusCancelled, CampaignStatusCompleted},
	CampaignStatusRunning:   {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled, CampaignStatusFailed},
	CampaignStatusPaused:    {CampaignStatusRunning, CampaignStatusCancelled, CampaignStatusCompleted},
}

var ServiceTransitions = transitions[ServiceStatus]{
	ServiceStatusStopped:     {ServiceStatusStarting},
	ServiceStatusStarting:    {ServiceStatusRunning, ServiceStatusError, ServiceStatusStopping},
	ServiceStatusRunning:     {ServiceStatusPaused, ServiceStatusStopping, ServiceStatusError, ServiceStatusStarting},
	ServiceStatusPaused:      {ServiceStatusRunning, ServiceStatusStopping, ServiceStatusStarting},
	ServiceStatusStopping:    {ServiceStatusStopped, ServiceStatusError},
	ServiceStatusError:       {ServiceStatusStarting, ServiceStatusStopping, ServiceStatusStopped},
	ServiceStatusMaintenance: {ServiceStatusStarting, ServiceStatusStopped},
}
