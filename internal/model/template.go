package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeApplicationSubmitted NotificationType = "APPLICATION_SUBMITTED"
	TypeDocumentsRequested   NotificationType = "DOCUMENTS_REQUESTED"
	TypeApplicationApproved  NotificationType = "APPLICATION_APPROVED"
	TypeApplicationRejected  NotificationType = "APPLICATION_REJECTED"
	TypePasswordReset        NotificationType = "PASSWORD_RESET"
	TypeAccountCreated       NotificationType = "ACCOUNT_CREATED"
	TypeAdminNotification    NotificationType = "ADMIN_NOTIFICATION"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeApplicationSubmitted, TypeDocumentsRequested, TypeApplicationApproved,
		TypeApplicationRejected, TypePasswordReset, TypeAccountCreated, TypeAdminNotification:
		return true
	}
	return false
}

// NotificationTemplate holds subject and body templates for one notification type.
type NotificationTemplate struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	Name             string           `json:"name" db:"name"`
	NotificationType NotificationType `json:"notification_type" db:"notification_type"`
	Subject          string           `json:"subject" db:"subject"`
	BodyHTML         string           `json:"body_html" db:"body_html"`
	BodyText         string           `json:"body_text" db:"body_text"`
	IsActive         bool             `json:"is_active" db:"is_active"`
	AutoCreated      bool             `json:"auto_created" db:"auto_created"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// IsBlank reports a template that would render to empty content.
func (t *NotificationTemplate) IsBlank() bool {
	return t.Subject == "" && t.BodyHTML == "" && t.BodyText == ""
}

// RenderedContent is the output of rendering a template against a context.
type RenderedContent struct {
	Subject  string
	BodyHTML string
	BodyText string
}
