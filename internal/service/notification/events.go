package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/event"
	"github.com/supplierportal/notify-api/pkg/logger"
)

// NotifierConfig holds the portal links rendered into business notifications.
type NotifierConfig struct {
	PortalURL  string
	AdminURL   string
	SMSEnabled bool
}

// ApplicationEvent is the payload of every application.* event.
type ApplicationEvent struct {
	ApplicationID       *uuid.UUID `json:"application_id"`
	UserID              *uuid.UUID `json:"user_id"`
	TrackingCode        string     `json:"tracking_code"`
	BusinessName        string     `json:"business_name"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone"`
	OccurredAt          time.Time  `json:"occurred_at"`
	MissingDocuments    []string   `json:"missing_documents"`
	UnverifiedDocuments []string   `json:"unverified_documents"`
	Message             string     `json:"message"`
	Reason              string     `json:"reason"`
	Comment             string     `json:"comment"`
	SubmissionLink      string     `json:"submission_link"`
}

// UserEvent is the payload of user.* events.
type UserEvent struct {
	UserID       *uuid.UUID `json:"user_id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	BusinessName string     `json:"business_name"`
	ResetLink    string     `json:"reset_link"`
	ExpiresIn    string     `json:"expires_in"`
}

// AdminEvent is the payload of admin.notification events.
type AdminEvent struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// Outcome reports what a business event queued. Failed sends are listed but
// never turn into an error for the caller.
type Outcome struct {
	Event  event.EventType `json:"event"`
	Queued []uuid.UUID     `json:"queued"`
	Failed []string        `json:"failed,omitempty"`
}

func (o *Outcome) record(log *model.NotificationLog, err error, recipient string) {
	if err != nil {
		o.Failed = append(o.Failed, fmt.Sprintf("%s: %v", recipient, err))
		return
	}
	o.Queued = append(o.Queued, log.ID)
}

type Notifier interface {
	ApplicationSubmitted(ctx context.Context, ev ApplicationEvent) (*Outcome, error)
	DocumentsRequested(ctx context.Context, ev ApplicationEvent) (*Outcome, error)
	NeedsMoreDocuments(ctx context.Context, ev ApplicationEvent) (*Outcome, error)
	ApplicationApproved(ctx context.Context, ev ApplicationEvent) (*Outcome, error)
	ApplicationRejected(ctx context.Context, ev ApplicationEvent) (*Outcome, error)
	PasswordReset(ctx context.Context, ev UserEvent) (*Outcome, error)
	AccountCreated(ctx context.Context, ev UserEvent) (*Outcome, error)
	AdminNotification(ctx context.Context, ev AdminEvent) (*Outcome, error)
	HandleEvent(ctx context.Context, env *event.Envelope) (*Outcome, error)
}

type notifier struct {
	svc       Service
	directory repository.RecipientDirectory
	config    NotifierConfig
	logger    *logger.Logger
}

func NewNotifier(svc Service, directory repository.RecipientDirectory, config NotifierConfig, log *logger.Logger) Notifier {
	config.PortalURL = strings.TrimRight(config.PortalURL, "/")
	config.AdminURL = strings.TrimRight(config.AdminURL, "/")
	return &notifier{svc: svc, directory: directory, config: config, logger: log}
}

func (n *notifier) send(ctx context.Context, out *Outcome, req SendRequest) {
	recipient := req.RecipientEmail
	if req.Channel == model.ChannelSMS {
		recipient = req.RecipientPhone
	}
	log, err := n.svc.Enqueue(ctx, req)
	if err != nil {
		n.logger.WithContext(ctx).Error(err, "Failed to queue notification",
			"event", string(out.Event), "recipient", recipient, "notification_type", string(req.Type))
	}
	out.record(log, err, recipient)
}

// sendApplication queues the email and, when enabled and a phone is known,
// the SMS for an application event.
func (n *notifier) sendApplication(ctx context.Context, out *Outcome, typ model.NotificationType, ev ApplicationEvent, data model.JSONMap) {
	data["business_name"] = ev.BusinessName
	data["tracking_code"] = ev.TrackingCode
	meta := model.JSONMap{"event": string(out.Event), "tracking_code": ev.TrackingCode}

	n.send(ctx, out, SendRequest{
		Type:           typ,
		Channel:        model.ChannelEmail,
		RecipientEmail: ev.Email,
		RecipientName:  ev.BusinessName,
		Context:        data,
		Metadata:       meta,
		ApplicationID:  ev.ApplicationID,
		UserID:         ev.UserID,
		Priority:       model.PriorityHigh,
	})
	if n.config.SMSEnabled && ev.Phone != "" {
		n.send(ctx, out, SendRequest{
			Type:           typ,
			Channel:        model.ChannelSMS,
			RecipientPhone: ev.Phone,
			RecipientName:  ev.BusinessName,
			Context:        data,
			Metadata:       meta,
			ApplicationID:  ev.ApplicationID,
			UserID:         ev.UserID,
		})
	}
}

func requireRecipient(ev ApplicationEvent) error {
	if ev.Email == "" {
		return apperrors.Validation("email is required")
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.Format("January 2, 2006")
}

func (n *notifier) ApplicationSubmitted(ctx context.Context, ev ApplicationEvent) (*Outcome, error) {
	if err := requireRecipient(ev); err != nil {
		return nil, err
	}
	out := &Outcome{Event: event.ApplicationSubmitted}
	n.sendApplication(ctx, out, model.TypeApplicationSubmitted, ev, model.JSONMap{
		"application_date": formatDate(ev.OccurredAt),
	})

	admins, err := n.directory.Admins(ctx)
	if err != nil {
		n.logger.WithContext(ctx).Error(err, "Failed to load admin recipients", "tracking_code", ev.TrackingCode)
		out.Failed = append(out.Failed, fmt.Sprintf("admins: %v", err))
		return out, nil
	}
	for _, admin := range admins {
		n.send(ctx, out, SendRequest{
			Type:           model.TypeAdminNotification,
			Channel:        model.ChannelEmail,
			RecipientEmail: admin.Email,
			RecipientName:  admin.Name,
			UserID:         admin.UserID,
			ApplicationID:  ev.ApplicationID,
			Context: model.JSONMap{
				"title":   "New supplier application",
				"message": fmt.Sprintf("%s submitted application %s.", ev.BusinessName, ev.TrackingCode),
				"link":    n.adminLink(ev),
			},
			Metadata: model.JSONMap{"event": string(out.Event), "tracking_code": ev.TrackingCode},
		})
	}
	return out, nil
}

func (n *notifier) adminLink(ev ApplicationEvent) string {
	if ev.ApplicationID == nil || n.config.AdminURL == "" {
		return n.config.AdminURL
	}
	return fmt.Sprintf("%s/applications/%s", n.config.AdminURL, ev.ApplicationID)
}

func (n *notifier) submissionLink(ev ApplicationEvent) string {
	if ev.SubmissionLink != "" {
		return ev.SubmissionLink
	}
	return fmt.Sprintf("%s/applications/%s/outstanding", n.config.PortalURL, ev.TrackingCode)
}

func (n *notifier) DocumentsRequested(ctx context.Context, ev ApplicationEvent) (*Outcome, error) {
	return n.documents(ctx, event.DocumentsRequested, ev)
}

// NeedsMoreDocuments is sent when a reviewer sends an application back. It
// uses the document request template.
func (n *notifier) NeedsMoreDocuments(ctx context.Context, ev ApplicationEvent) (*Outcome, error) {
	return n.documents(ctx, event.NeedsMoreDocuments, ev)
}

func (n *notifier) documents(ctx context.Context, typ event.EventType, ev ApplicationEvent) (*Outcome, error) {
	if err := requireRecipient(ev); err != nil {
		return nil, err
	}
	if len(ev.MissingDocuments) == 0 {
		return nil, apperrors.Validation("missing_documents must list at least one document")
	}
	out := &Outcome{Event: typ}
	n.sendApplication(ctx, out, model.TypeDocumentsRequested, ev, model.JSONMap{
		"missing_documents": ev.MissingDocuments,
		"message":           ev.Message,
		"submission_link":   n.submissionLink(ev),
	})
	return out, nil
}

// ApplicationApproved refuses approvals that still carry unverified documents.
func (n *notifier) ApplicationApproved(ctx context.Context, ev ApplicationEvent) (*Outcome, error) {
	if err := requireRecipient(ev); err != nil {
		return nil, err
	}
	if len(ev.UnverifiedDocuments) > 0 {
		return nil, apperrors.Validation(fmt.Sprintf("cannot approve with unverified documents: %s",
			strings.Join(ev.UnverifiedDocuments, ", ")))
	}
	out := &Outcome{Event: event.ApplicationApproved}
	n.sendApplication(ctx, out, model.TypeApplicationApproved, ev, model.JSONMap{
		"approved_date":    formatDate(ev.OccurredAt),
		"approval_comment": ev.Comment,
		"login_url":        n.config.PortalURL + "/login",
	})
	return out, nil
}

func (n *notifier) ApplicationRejected(ctx context.Context, ev ApplicationEvent) (*Outcome, error) {
	if err := requireRecipient(ev); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.Reason) == "" {
		return nil, apperrors.Validation("a rejection reason is required")
	}
	out := &Outcome{Event: event.ApplicationRejected}
	n.sendApplication(ctx, out, model.TypeApplicationRejected, ev, model.JSONMap{
		"reason": ev.Reason,
	})
	return out, nil
}

func (n *notifier) PasswordReset(ctx context.Context, ev UserEvent) (*Outcome, error) {
	if ev.Email == "" || ev.ResetLink == "" {
		return nil, apperrors.Validation("email and reset_link are required")
	}
	expires := ev.ExpiresIn
	if expires == "" {
		expires = "24 hours"
	}
	out := &Outcome{Event: event.PasswordResetRequest}
	n.send(ctx, out, SendRequest{
		Type:           model.TypePasswordReset,
		Channel:        model.ChannelEmail,
		RecipientEmail: ev.Email,
		RecipientName:  ev.Name,
		UserID:         ev.UserID,
		Priority:       model.PriorityUrgent,
		Context:        model.JSONMap{"name": ev.Name, "reset_link": ev.ResetLink, "expires_in": expires},
	})
	return out, nil
}

func (n *notifier) AccountCreated(ctx context.Context, ev UserEvent) (*Outcome, error) {
	if ev.Email == "" {
		return nil, apperrors.Validation("email is required")
	}
	out := &Outcome{Event: event.AccountCreated}
	n.send(ctx, out, SendRequest{
		Type:           model.TypeAccountCreated,
		Channel:        model.ChannelEmail,
		RecipientEmail: ev.Email,
		RecipientName:  ev.Name,
		UserID:         ev.UserID,
		Priority:       model.PriorityHigh,
		Context: model.JSONMap{
			"business_name": ev.BusinessName,
			"user_email":    ev.Email,
			"login_url":     n.config.PortalURL + "/login",
		},
	})
	return out, nil
}

// AdminNotification fans a message out to every admin in the directory.
func (n *notifier) AdminNotification(ctx context.Context, ev AdminEvent) (*Outcome, error) {
	if ev.Title == "" || ev.Message == "" {
		return nil, apperrors.Validation("title and message are required")
	}
	admins, err := n.directory.Admins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin recipients: %w", err)
	}
	out := &Outcome{Event: event.AdminNotificationSent}
	for _, admin := range admins {
		n.send(ctx, out, SendRequest{
			Type:           model.TypeAdminNotification,
			Channel:        model.ChannelEmail,
			RecipientEmail: admin.Email,
			RecipientName:  admin.Name,
			UserID:         admin.UserID,
			Context:        model.JSONMap{"title": ev.Title, "message": ev.Message, "link": ev.Link},
		})
	}
	return out, nil
}

// HandleEvent dispatches a broker or HTTP envelope to its notifier.
func (n *notifier) HandleEvent(ctx context.Context, env *event.Envelope) (*Outcome, error) {
	switch env.Type {
	case event.ApplicationSubmitted, event.DocumentsRequested, event.NeedsMoreDocuments,
		event.ApplicationApproved, event.ApplicationRejected:
		var ev ApplicationEvent
		if err := env.Decode(&ev); err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = env.OccurredAt
		}
		switch env.Type {
		case event.ApplicationSubmitted:
			return n.ApplicationSubmitted(ctx, ev)
		case event.DocumentsRequested:
			return n.DocumentsRequested(ctx, ev)
		case event.NeedsMoreDocuments:
			return n.NeedsMoreDocuments(ctx, ev)
		case event.ApplicationApproved:
			return n.ApplicationApproved(ctx, ev)
		default:
			return n.ApplicationRejected(ctx, ev)
		}
	case event.PasswordResetRequest, event.AccountCreated:
		var ev UserEvent
		if err := env.Decode(&ev); err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		if env.Type == event.PasswordResetRequest {
			return n.PasswordReset(ctx, ev)
		}
		return n.AccountCreated(ctx, ev)
	case event.AdminNotificationSent:
		var ev AdminEvent
		if err := env.Decode(&ev); err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		return n.AdminNotification(ctx, ev)
	}
	return nil, apperrors.BadRequest(fmt.Sprintf("unknown event type %q", env.Type), nil)
}
