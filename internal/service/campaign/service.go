package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/internal/template"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
	"github.com/supplierportal/notify-api/pkg/validator"
)

type Action string

const (
	ActionSchedule Action = "schedule"
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// CreateRequest describes a new campaign. Raw recipient fields hold one
// address per line.
type CreateRequest struct {
	Name                    string         `json:"name" binding:"required"`
	Description             string         `json:"description"`
	Channel                 model.Channel  `json:"channel"`
	Priority                model.Priority `json:"priority"`
	TemplateID              uuid.UUID      `json:"template_id" binding:"required"`
	RecipientEmails         string         `json:"recipient_emails"`
	RecipientPhones         string         `json:"recipient_phones"`
	RecipientUserIDs        []uuid.UUID    `json:"recipient_user_ids"`
	RecipientApplicationIDs []uuid.UUID    `json:"recipient_application_ids"`
	BatchSize               int            `json:"batch_size"`
	DelayBetweenBatches     *int           `json:"delay_between_batches"`
	MaxRetries              int            `json:"max_retries"`
	PersonalizeByRecipient  bool           `json:"personalize_by_recipient"`
	ContextData             model.JSONMap  `json:"context_data"`
	ScheduledAt             *time.Time     `json:"scheduled_at"`
	CreatedBy               *uuid.UUID     `json:"-"`
}

// ControlResult is returned by campaign control actions.
type ControlResult struct {
	Success             bool                 `json:"success"`
	Message             string               `json:"message"`
	Status              model.CampaignStatus `json:"status"`
	ProgressPercentage  float64              `json:"progress_percentage"`
	EstimatedCompletion *time.Time           `json:"estimated_completion"`
}

type Config struct {
	// MaxBatchesPerRun bounds how many batches one executor run sends per campaign.
	MaxBatchesPerRun int
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*model.BulkNotification, error)
	Get(ctx context.Context, id uuid.UUID) (*model.BulkNotification, error)
	List(ctx context.Context, status model.CampaignStatus, page model.Pagination) ([]*model.BulkNotification, error)
	RecalculateRecipients(ctx context.Context, id uuid.UUID) (*model.BulkNotification, error)
	Control(ctx context.Context, id uuid.UUID, action Action, at *time.Time) (*ControlResult, error)

	// Execute advances every runnable campaign by up to MaxBatchesPerRun batches.
	Execute(ctx context.Context) (int, error)
}

type service struct {
	campaigns     repository.CampaignRepository
	logs          repository.NotificationLogRepository
	directory     repository.RecipientDirectory
	templates     *template.Store
	notifications notification.Service
	validate      validator.Validator
	config        Config
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

// Dependencies groups the collaborators of the campaign service.
type Dependencies struct {
	Campaigns     repository.CampaignRepository
	Logs          repository.NotificationLogRepository
	Directory     repository.RecipientDirectory
	Templates     *template.Store
	Notifications notification.Service
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

func NewService(deps Dependencies, config Config) Service {
	if config.MaxBatchesPerRun <= 0 {
		config.MaxBatchesPerRun = 10
	}
	return &service{
		campaigns:     deps.Campaigns,
		logs:          deps.Logs,
		directory:     deps.Directory,
		templates:     deps.Templates,
		notifications: deps.Notifications,
		validate:      validator.New(),
		config:        config,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		now:           func() time.Time { return time.Now().UTC() },
		sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*model.BulkNotification, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.Validation("name is required")
	}
	if req.Channel == "" {
		req.Channel = model.ChannelEmail
	}
	if req.Channel != model.ChannelEmail && req.Channel != model.ChannelSMS {
		return nil, apperrors.Validation(fmt.Sprintf("Unsupported channel: %s", req.Channel))
	}
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}
	if !req.Priority.IsValid() {
		return nil, apperrors.Validation(fmt.Sprintf("invalid priority %q", req.Priority))
	}
	if req.BatchSize <= 0 {
		req.BatchSize = model.DefaultBatchSize
	}
	delay := model.DefaultDelayBetweenBatches
	if req.DelayBetweenBatches != nil && *req.DelayBetweenBatches >= 0 {
		delay = *req.DelayBetweenBatches
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = model.DefaultMaxRetries
	}

	tmpl, err := s.templates.Get(ctx, req.TemplateID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, apperrors.NotFound("template", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if !tmpl.IsActive {
		return nil, apperrors.Validation(fmt.Sprintf("template %s is inactive", tmpl.Name))
	}

	emails := model.SplitRecipientLines(req.RecipientEmails)
	for _, email := range emails {
		if err := s.validate.ValidateField("recipient_emails", email, "email"); err != nil {
			return nil, apperrors.Validation(fmt.Sprintf("%s: %s", err.Error(), email))
		}
	}
	phones := model.SplitRecipientLines(req.RecipientPhones)
	for _, phone := range phones {
		if err := s.validate.ValidateField("recipient_phones", phone, "phone"); err != nil {
			return nil, apperrors.Validation(fmt.Sprintf("%s: %s", err.Error(), phone))
		}
	}

	campaign := &model.BulkNotification{
		ID:                      uuid.New(),
		Name:                    req.Name,
		Description:             req.Description,
		Status:                  model.CampaignStatusDraft,
		Priority:                req.Priority,
		Channel:                 req.Channel,
		TemplateID:              tmpl.ID,
		RecipientEmails:         pq.StringArray(emails),
		RecipientPhones:         pq.StringArray(phones),
		RecipientUserIDs:        idStrings(req.RecipientUserIDs),
		RecipientApplicationIDs: idStrings(req.RecipientApplicationIDs),
		BatchSize:               req.BatchSize,
		DelayBetweenBatches:     delay,
		MaxRetries:              req.MaxRetries,
		PersonalizeByRecipient:  req.PersonalizeByRecipient,
		ContextData:             req.ContextData,
		CreatedBy:               req.CreatedBy,
	}
	if campaign.ContextData == nil {
		campaign.ContextData = model.JSONMap{}
	}
	if campaign.CalculateRecipients() == 0 {
		return nil, apperrors.Validation("campaign has no recipients")
	}
	if req.ScheduledAt != nil {
		if err := campaign.Schedule(*req.ScheduledAt, s.now()); err != nil {
			return nil, err
		}
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	s.logger.WithContext(ctx).Info("Campaign created",
		"campaign_id", campaign.ID.String(), "recipients", campaign.TotalRecipients, "status", string(campaign.Status))
	return campaign, nil
}

func idStrings(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.BulkNotification, error) {
	return s.campaigns.Get(ctx, id)
}

func (s *service) List(ctx context.Context, status model.CampaignStatus, page model.Pagination) ([]*model.BulkNotification, error) {
	return s.campaigns.List(ctx, status, page.Normalize())
}

func (s *service) RecalculateRecipients(ctx context.Context, id uuid.UUID) (*model.BulkNotification, error) {
	campaign, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	campaign.CalculateRecipients()
	if err := s.campaigns.UpdateRecipients(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to update campaign recipients: %w", err)
	}
	return campaign, nil
}

func (s *service) result(c *model.BulkNotification, ok bool, msg string) *ControlResult {
	return &ControlResult{
		Success:             ok,
		Message:             msg,
		Status:              c.Status,
		ProgressPercentage:  c.ProgressPercentage(),
		EstimatedCompletion: c.EstimatedCompletion(s.now()),
	}
}

// Control applies an operator action. Illegal transitions report
// Success=false with the unchanged status.
func (s *service) Control(ctx context.Context, id uuid.UUID, action Action, at *time.Time) (*ControlResult, error) {
	campaign, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := campaign.Status
	now := s.now()

	switch action {
	case ActionSchedule:
		var when time.Time
		if at != nil {
			when = *at
		}
		err = campaign.Schedule(when, now)
	case ActionStart:
		err = campaign.Start(now)
	case ActionPause:
		err = campaign.Pause(now)
	case ActionResume:
		err = campaign.Resume(now)
	case ActionCancel:
		err = campaign.Cancel(now)
	case ActionComplete:
		err = campaign.Complete(now)
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown campaign action %q", action), nil)
	}
	if errors.Is(err, model.ErrInvalidTransition) {
		campaign.Status = prev
		return s.result(campaign, false, err.Error()), nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.campaigns.UpdateState(ctx, campaign, prev); err != nil {
		if errors.Is(err, model.ErrStaleState) {
			return nil, apperrors.Conflict("campaign was modified concurrently", err)
		}
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	s.logger.WithContext(ctx).Info("Campaign status changed",
		"campaign_id", campaign.ID.String(), "from", string(prev), "to", string(campaign.Status))
	return s.result(campaign, true, fmt.Sprintf("Campaign %s", campaign.Status)), nil
}
