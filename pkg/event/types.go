package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

// Business events published by the onboarding portal.
const (
	ApplicationSubmitted  EventType = "application.submitted"
	DocumentsRequested    EventType = "application.documents_requested"
	ApplicationApproved   EventType = "application.approved"
	ApplicationRejected   EventType = "application.rejected"
	NeedsMoreDocuments    EventType = "application.needs_more_documents"
	PasswordResetRequest  EventType = "user.password_reset"
	AccountCreated        EventType = "user.account_created"
	AdminNotificationSent EventType = "admin.notification"
)

// Known reports whether t is one of the event types above.
func (t EventType) Known() bool {
	switch t {
	case ApplicationSubmitted, DocumentsRequested, ApplicationApproved, ApplicationRejected,
		NeedsMoreDocuments, PasswordResetRequest, AccountCreated, AdminNotificationSent:
		return true
	}
	return false
}

// Envelope is the wire format of every message on the broker.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       EventType       `json:"type"`
	Source     string          `json:"source,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func NewEnvelope(typ EventType, source string, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return &Envelope{
		ID:         uuid.New(),
		Type:       typ,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// Parse decodes an envelope from raw broker bytes.
func Parse(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("invalid event envelope: missing type")
	}
	return &env, nil
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
