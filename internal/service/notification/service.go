package notification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/gateway"
	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
	"github.com/supplierportal/notify-api/internal/template"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
	"github.com/supplierportal/notify-api/pkg/security"
	"github.com/supplierportal/notify-api/pkg/validator"
)

// ErrNotPending is returned by Deliver for a log that is no longer PENDING,
// so a log that was already sent is never sent again.
var ErrNotPending = errors.New("notification is not pending")

type Config struct {
	LogRetryDelay     time.Duration
	DefaultMaxRetries int
	// QueueItemTTL sets expires_at on new queue items. Zero means no expiry.
	QueueItemTTL    time.Duration
	TrackingBaseURL string
}

// SendRequest describes one message to create and queue.
type SendRequest struct {
	Type           model.NotificationType `json:"notification_type"`
	TemplateName   string                 `json:"template_name"`
	Channel        model.Channel          `json:"channel"`
	RecipientEmail string                 `json:"recipient_email"`
	RecipientPhone string                 `json:"recipient_phone"`
	RecipientName  string                 `json:"recipient_name"`
	Context        model.JSONMap          `json:"context"`
	Metadata       model.JSONMap          `json:"metadata"`
	ApplicationID  *uuid.UUID             `json:"application_id"`
	UserID         *uuid.UUID             `json:"user_id"`
	CampaignID     *uuid.UUID             `json:"campaign_id"`
	Priority       model.Priority         `json:"priority"`
	MaxRetries     int                    `json:"max_retries"`
	ScheduledAt    time.Time              `json:"scheduled_at"`
	// Template skips resolution when the caller already holds the template.
	Template *model.NotificationTemplate `json:"-"`
}

type Service interface {
	Enqueue(ctx context.Context, req SendRequest) (*model.NotificationLog, error)
	Deliver(ctx context.Context, logID uuid.UUID, opts gateway.SendOptions) (gateway.DeliveryResult, error)
	Get(ctx context.Context, id uuid.UUID) (*model.NotificationLog, error)
	GetByTrackingID(ctx context.Context, trackingID uuid.UUID) (*model.NotificationLog, error)
	List(ctx context.Context, filter model.LogFilter) ([]*model.NotificationLog, int, error)

	TrackOpen(ctx context.Context, trackingID uuid.UUID, ip, userAgent string) (*model.NotificationLog, error)
	TrackClick(ctx context.Context, trackingID uuid.UUID, ip, userAgent string) (*model.NotificationLog, error)
	ClickURL(trackingID uuid.UUID, target string) string
	VerifyClick(trackingID uuid.UUID, target, sig string) error
	ApplyDeliveryReport(ctx context.Context, id uuid.UUID, report DeliveryReport) (*model.NotificationLog, error)

	BulkAction(ctx context.Context, action LogAction, ids []uuid.UUID) (int, error)
	RetryFailed(ctx context.Context, limit int) (int, error)
	Purge(ctx context.Context, cutoff time.Time) (PurgeResult, error)
}

type service struct {
	logs      repository.NotificationLogRepository
	sms       repository.SMSRepository
	queue     repository.QueueRepository
	campaigns repository.CampaignRepository
	templates *template.Store
	sender    gateway.Sender
	signer    *security.Signer
	validate  validator.Validator
	config    Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Dependencies groups the collaborators of the notification service.
type Dependencies struct {
	Logs      repository.NotificationLogRepository
	SMS       repository.SMSRepository
	Queue     repository.QueueRepository
	Campaigns repository.CampaignRepository
	Templates *template.Store
	Sender    gateway.Sender
	Signer    *security.Signer
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

func NewService(deps Dependencies, config Config) Service {
	if config.LogRetryDelay <= 0 {
		config.LogRetryDelay = model.DefaultLogRetryDelay
	}
	if config.DefaultMaxRetries <= 0 {
		config.DefaultMaxRetries = model.DefaultMaxRetries
	}
	if deps.Signer == nil {
		deps.Signer = security.NewSigner("")
	}
	return &service{
		logs:      deps.Logs,
		sms:       deps.SMS,
		queue:     deps.Queue,
		campaigns: deps.Campaigns,
		templates: deps.Templates,
		sender:    deps.Sender,
		signer:    deps.Signer,
		validate:  validator.New(),
		config:    config,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) validateRequest(req *SendRequest) error {
	if req.Channel == "" {
		req.Channel = model.ChannelEmail
	}
	switch req.Channel {
	case model.ChannelEmail:
		if err := s.validate.ValidateField("recipient_email", req.RecipientEmail, "required,email"); err != nil {
			return apperrors.Validation(err.Error())
		}
	case model.ChannelSMS:
		if err := s.validate.ValidateField("recipient_phone", req.RecipientPhone, "required,phone"); err != nil {
			return apperrors.Validation(err.Error())
		}
	default:
		return apperrors.Validation(fmt.Sprintf("Unsupported channel: %s", req.Channel))
	}
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}
	if !req.Priority.IsValid() {
		return apperrors.Validation(fmt.Sprintf("invalid priority %q", req.Priority))
	}
	if req.Template == nil && req.Type == "" && req.TemplateName == "" {
		return apperrors.Validation("notification_type or template_name is required")
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = s.config.DefaultMaxRetries
	}
	return nil
}

// Enqueue renders the template, persists a PENDING log (plus an SMS record
// for SMS) and queues it for dispatch.
func (s *service) Enqueue(ctx context.Context, req SendRequest) (*model.NotificationLog, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	tmpl := req.Template
	if tmpl == nil {
		var err error
		tmpl, err = s.templates.Resolve(ctx, req.Type, req.TemplateName)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, apperrors.NotFound("template", err)
			}
			return nil, fmt.Errorf("failed to resolve template: %w", err)
		}
	}

	log := &model.NotificationLog{
		ID:             uuid.New(),
		TemplateID:     &tmpl.ID,
		TemplateName:   tmpl.Name,
		Channel:        req.Channel,
		RecipientEmail: req.RecipientEmail,
		RecipientPhone: req.RecipientPhone,
		RecipientName:  req.RecipientName,
		Status:         model.NotificationStatusPending,
		ContextData:    req.Context,
		Metadata:       req.Metadata,
		ApplicationID:  req.ApplicationID,
		UserID:         req.UserID,
		CampaignID:     req.CampaignID,
		MaxRetries:     req.MaxRetries,
	}
	if log.ContextData == nil {
		log.ContextData = model.JSONMap{}
	}
	if log.Metadata == nil {
		log.Metadata = model.JSONMap{}
	}
	log.AssignTrackingID()

	content := template.Render(tmpl, log.ContextData)
	log.Subject = content.Subject
	log.BodyText = content.BodyText
	if req.Channel == model.ChannelEmail {
		log.BodyHTML = s.instrument(log.TrackingID, content.BodyHTML)
	}

	if err := s.logs.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to create notification log: %w", err)
	}

	if req.Channel == model.ChannelSMS {
		record := &model.SMSNotification{
			NotificationLogID: &log.ID,
			RecipientPhone:    log.RecipientPhone,
			RecipientName:     log.RecipientName,
			Message:           smsBody(log),
			TemplateName:      log.TemplateName,
			ApplicationID:     log.ApplicationID,
			UserID:            log.UserID,
			MaxRetries:        log.MaxRetries,
		}
		if err := s.sms.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to create sms record: %w", err)
		}
	}

	if err := s.enqueue(ctx, log, req.Priority, req.ScheduledAt); err != nil {
		// leave the log retryable instead of stranding it in PENDING
		s.failLog(ctx, log, "failed to enqueue: "+err.Error())
		return nil, err
	}

	s.logger.WithContext(ctx).Info("Notification queued",
		"log_id", log.ID.String(), "channel", string(log.Channel), "template_name", log.TemplateName)
	return log, nil
}

func (s *service) enqueue(ctx context.Context, log *model.NotificationLog, priority model.Priority, at time.Time) error {
	now := s.now()
	if at.IsZero() || at.Before(now) {
		at = now
	}
	item := &model.QueueItem{
		NotificationLogID: log.ID,
		CampaignID:        log.CampaignID,
		Priority:          priority,
		Status:            model.QueueStatusPending,
		ScheduledAt:       at,
		MaxRetries:        log.MaxRetries,
	}
	if s.config.QueueItemTTL > 0 {
		expires := at.Add(s.config.QueueItemTTL)
		item.ExpiresAt = &expires
	}
	if err := s.queue.Create(ctx, item); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

func (s *service) failLog(ctx context.Context, log *model.NotificationLog, msg string) {
	if err := log.MarkFailed(msg, s.now()); err != nil {
		return
	}
	if err := s.logs.UpdateState(ctx, log, model.NotificationStatusPending); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to record notification failure", "log_id", log.ID.String())
	}
}

// Deliver sends a PENDING log through the gateway and records the outcome on
// the log and its SMS record. A delivery failure is not an error: it is
// recorded and returned in the result.
func (s *service) Deliver(ctx context.Context, logID uuid.UUID, opts gateway.SendOptions) (gateway.DeliveryResult, error) {
	log, err := s.logs.Get(ctx, logID)
	if err != nil {
		return gateway.DeliveryResult{}, err
	}
	if log.Status != model.NotificationStatusPending {
		return gateway.DeliveryResult{}, fmt.Errorf("%w: log %s is %s", ErrNotPending, log.ID, log.Status)
	}

	start := time.Now()
	var res gateway.DeliveryResult
	switch log.Channel {
	case model.ChannelEmail:
		body, isHTML := log.BodyHTML, true
		if body == "" {
			body, isHTML = log.BodyText, false
		}
		res = s.sender.SendEmail(ctx, gateway.Email{
			To:      log.RecipientEmail,
			Subject: log.Subject,
			Body:    body,
			IsHTML:  isHTML,
		}, opts)
	case model.ChannelSMS:
		res = s.sender.SendSMS(ctx, gateway.SMS{Number: log.RecipientPhone, Message: smsBody(log)}, opts)
	default:
		res = gateway.DeliveryResult{Message: fmt.Sprintf("Unsupported channel: %s", log.Channel)}
	}
	s.metrics.DeliveryLatency.WithLabelValues(string(log.Channel)).Observe(time.Since(start).Seconds())

	if err := s.applyResult(ctx, log, res); err != nil {
		return res, err
	}
	return res, nil
}

func (s *service) applyResult(ctx context.Context, log *model.NotificationLog, res gateway.DeliveryResult) error {
	now := s.now()
	channel := string(log.Channel)
	if res.Success {
		if err := log.MarkSent(res.ProviderID, now); err != nil {
			return err
		}
		s.metrics.NotificationsSent.WithLabelValues(channel).Inc()
	} else {
		if err := log.MarkFailed(res.Message, now); err != nil {
			return err
		}
		s.metrics.NotificationsFailed.WithLabelValues(channel).Inc()
	}

	if err := s.logs.UpdateState(ctx, log, model.NotificationStatusPending); err != nil {
		return fmt.Errorf("failed to record delivery for log %s: %w", log.ID, err)
	}

	if log.Channel == model.ChannelSMS {
		s.applySMSResult(ctx, log, res, now)
	}

	if log.CampaignID != nil {
		delta := model.ProgressDelta{Sent: 1}
		if !res.Success {
			// failures count once the retry budget is spent
			if log.RetryCount < log.MaxRetries {
				delta = model.ProgressDelta{}
			} else {
				delta = model.ProgressDelta{Failed: 1}
			}
		}
		s.addCampaignProgress(ctx, *log.CampaignID, delta)
	}

	l := s.logger.WithContext(ctx)
	if res.Success {
		l.Info("Notification sent", "log_id", log.ID.String(), "channel", channel, "external_id", res.ProviderID)
	} else {
		l.Warn("Notification delivery failed", "log_id", log.ID.String(), "channel", channel, "error", res.Message)
	}
	return nil
}

func (s *service) applySMSResult(ctx context.Context, log *model.NotificationLog, res gateway.DeliveryResult, now time.Time) {
	record, err := s.sms.GetByLogID(ctx, log.ID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.WithContext(ctx).Error(err, "Failed to load sms record", "log_id", log.ID.String())
		}
		return
	}
	expected := record.Status
	// the record follows its log back to PENDING on a retry
	if expected == model.SMSStatusFailed {
		record.ScheduleRetry(0, now)
		if record.Status != model.SMSStatusPending {
			return
		}
	}
	if res.Success {
		err = record.MarkSent(res.ProviderID, res.Cost, now)
	} else {
		err = record.MarkFailed(res.Message, now)
	}
	if err != nil {
		s.logger.WithContext(ctx).Warn("Skipping sms record update", "log_id", log.ID.String(), "error", err.Error())
		return
	}
	if err := s.sms.UpdateState(ctx, record, expected); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to update sms record", "log_id", log.ID.String())
	}
}

func (s *service) addCampaignProgress(ctx context.Context, id uuid.UUID, delta model.ProgressDelta) {
	if delta == (model.ProgressDelta{}) {
		return
	}
	if _, err := s.campaigns.AddProgress(ctx, id, delta); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to update campaign progress", "campaign_id", id.String())
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.NotificationLog, error) {
	return s.logs.Get(ctx, id)
}

func (s *service) GetByTrackingID(ctx context.Context, trackingID uuid.UUID) (*model.NotificationLog, error) {
	return s.logs.GetByTrackingID(ctx, trackingID)
}

func (s *service) List(ctx context.Context, filter model.LogFilter) ([]*model.NotificationLog, int, error) {
	filter.Pagination = filter.Pagination.Normalize()
	return s.logs.List(ctx, filter)
}

var hrefPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)

// instrument rewrites outbound links through the click tracker and appends
// the open pixel. It is a no-op without a tracking base URL.
func (s *service) instrument(trackingID uuid.UUID, html string) string {
	if s.config.TrackingBaseURL == "" || html == "" {
		return html
	}
	html = hrefPattern.ReplaceAllStringFunc(html, func(m string) string {
		target := hrefPattern.FindStringSubmatch(m)[1]
		return `href="` + s.ClickURL(trackingID, target) + `"`
	})
	pixel := fmt.Sprintf(`<img src="%s/t/%s/open" width="1" height="1" alt="" style="display:none">`,
		strings.TrimRight(s.config.TrackingBaseURL, "/"), trackingID)
	return html + pixel
}

// ClickURL builds the tracked redirect for target. The target is path
// escaped and, when a signing key is configured, signed.
func (s *service) ClickURL(trackingID uuid.UUID, target string) string {
	u := fmt.Sprintf("%s/t/%s/click/%s", strings.TrimRight(s.config.TrackingBaseURL, "/"), trackingID, url.PathEscape(target))
	if s.signer.Enabled() {
		u += "?sig=" + s.signer.Sign(trackingID.String(), target)
	}
	return u
}

func (s *service) VerifyClick(trackingID uuid.UUID, target, sig string) error {
	if !s.signer.Enabled() {
		return nil
	}
	return s.signer.Verify(sig, trackingID.String(), target)
}

func smsBody(log *model.NotificationLog) string {
	if log.BodyText != "" {
		return log.BodyText
	}
	return log.Subject
}
