package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/service/notification"
)

// Execute starts due SCHEDULED campaigns and sends the next batches of every
// RUNNING one. A campaign's position is its stored cursor, so a crashed run
// resumes where it stopped.
func (s *service) Execute(ctx context.Context) (int, error) {
	runnable, err := s.campaigns.ListRunnable(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list runnable campaigns: %w", err)
	}

	total := 0
	for _, c := range runnable {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		if c.Status == model.CampaignStatusScheduled {
			if err := c.Start(s.now()); err != nil {
				continue
			}
			if err := s.campaigns.UpdateState(ctx, c, model.CampaignStatusScheduled); err != nil {
				if !errors.Is(err, model.ErrStaleState) {
					s.logger.WithContext(ctx).Error(err, "Failed to start campaign", "campaign_id", c.ID.String())
				}
				continue
			}
			s.logger.WithContext(ctx).Info("Campaign started", "campaign_id", c.ID.String())
		}

		n, err := s.run(ctx, c.ID)
		total += n
		if err != nil {
			s.logger.WithContext(ctx).Error(err, "Campaign run failed", "campaign_id", c.ID.String(), "queued", n)
		}
	}
	return total, nil
}

func (s *service) run(ctx context.Context, id uuid.UUID) (int, error) {
	var slots []*model.Recipient
	var tmpl *model.NotificationTemplate
	queued := 0

	for batch := 0; batch < s.config.MaxBatchesPerRun; batch++ {
		// re-read so a pause or cancel takes effect between batches
		c, err := s.campaigns.Get(ctx, id)
		if err != nil {
			return queued, err
		}
		if !c.IsActive() {
			return queued, nil
		}

		if slots == nil {
			if slots, err = s.resolve(ctx, c); err != nil {
				return queued, err
			}
			if tmpl, err = s.templates.Get(ctx, c.TemplateID); err != nil {
				s.fail(ctx, c, "template unavailable")
				return queued, fmt.Errorf("failed to load campaign template: %w", err)
			}
		}

		if c.QueuedCount >= len(slots) {
			counts, err := s.logs.CountByCampaign(ctx, c.ID)
			if err != nil {
				return queued, err
			}
			if counts.Open == 0 {
				s.complete(ctx, c)
			}
			return queued, nil
		}

		n, err := s.queueBatch(ctx, c, tmpl, slots)
		queued += n
		if err != nil {
			return queued, err
		}

		if c.QueuedCount < len(slots) {
			if err := s.sleep(ctx, time.Duration(c.DelayBetweenBatches)*time.Second); err != nil {
				return queued, err
			}
		}
	}
	return queued, nil
}

// queueBatch enqueues up to BatchSize recipients starting at the campaign
// cursor. Empty slots are skipped and counted as failed. The cursor is
// advanced after every enqueue, so deleting logs never moves it back and a
// crash re-sends at most one recipient. c.QueuedCount is updated in place.
func (s *service) queueBatch(ctx context.Context, c *model.BulkNotification, tmpl *model.NotificationTemplate, slots []*model.Recipient) (int, error) {
	size := c.BatchSize
	if size <= 0 {
		size = model.DefaultBatchSize
	}
	from := c.QueuedCount
	pos, sent, skipped := from, 0, 0

	advance := func() error {
		if pos == c.QueuedCount {
			return nil
		}
		if err := s.campaigns.AdvanceCursor(ctx, c.ID, c.QueuedCount, pos); err != nil {
			return fmt.Errorf("failed to advance campaign cursor: %w", err)
		}
		c.QueuedCount = pos
		if skipped > 0 {
			s.skip(ctx, c.ID, skipped)
			skipped = 0
		}
		return nil
	}

	for pos < len(slots) {
		r := slots[pos]
		if r == nil {
			skipped++
			pos++
			continue
		}
		if sent == size {
			break
		}
		if _, err := s.notifications.Enqueue(ctx, s.request(c, tmpl, *r)); err != nil {
			if aerr := advance(); aerr != nil {
				s.logger.WithContext(ctx).Error(aerr, "Failed to save campaign cursor", "campaign_id", c.ID.String())
			}
			return sent, fmt.Errorf("failed to enqueue campaign recipient: %w", err)
		}
		sent++
		pos++
		s.metrics.CampaignRecipients.WithLabelValues("queued").Inc()
		if err := advance(); err != nil {
			return sent, err
		}
	}
	if err := advance(); err != nil {
		return sent, err
	}

	s.logger.WithContext(ctx).Debug("Campaign batch queued",
		"campaign_id", c.ID.String(), "from", from, "to", pos, "queued", sent)
	return sent, nil
}

func (s *service) skip(ctx context.Context, id uuid.UUID, n int) {
	s.metrics.CampaignRecipients.WithLabelValues("skipped").Add(float64(n))
	if _, err := s.campaigns.AddProgress(ctx, id, model.ProgressDelta{Failed: n}); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to record skipped recipients", "campaign_id", id.String())
	}
}

// resolve maps every recipient source entry to one slot, in the order raw
// emails, raw phones, users, applications. A slot is nil when the entry has
// no usable address for the campaign channel or no longer resolves, so slot
// positions stay stable across runs.
func (s *service) resolve(ctx context.Context, c *model.BulkNotification) ([]*model.Recipient, error) {
	slots := make([]*model.Recipient, 0, len(c.RecipientEmails)+len(c.RecipientPhones)+
		len(c.RecipientUserIDs)+len(c.RecipientApplicationIDs))
	add := func(r model.Recipient, ok bool) {
		if ok && s.deliverable(c.Channel, r) {
			slots = append(slots, &r)
			return
		}
		slots = append(slots, nil)
	}

	for _, email := range c.RecipientEmails {
		add(model.Recipient{Email: email}, true)
	}
	for _, phone := range c.RecipientPhones {
		add(model.Recipient{Phone: phone}, true)
	}

	users, err := s.lookup(ctx, c.RecipientUserIDs, s.directory.Users, func(r model.Recipient) *uuid.UUID { return r.UserID })
	if err != nil {
		return nil, fmt.Errorf("failed to resolve campaign users: %w", err)
	}
	for _, v := range c.RecipientUserIDs {
		r, ok := users[v]
		add(r, ok)
	}
	apps, err := s.lookup(ctx, c.RecipientApplicationIDs, s.directory.Applications, func(r model.Recipient) *uuid.UUID { return r.ApplicationID })
	if err != nil {
		return nil, fmt.Errorf("failed to resolve campaign applications: %w", err)
	}
	for _, v := range c.RecipientApplicationIDs {
		r, ok := apps[v]
		add(r, ok)
	}
	return slots, nil
}

// lookup resolves ids through fetch, keyed by the raw id text. Unknown and
// malformed ids are absent from the result.
func (s *service) lookup(ctx context.Context, raw []string, fetch func(context.Context, []uuid.UUID) ([]model.Recipient, error), key func(model.Recipient) *uuid.UUID) (map[string]model.Recipient, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		if id, err := uuid.Parse(v); err == nil {
			ids = append(ids, id)
		}
	}
	found, err := fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.Recipient, len(found))
	for _, r := range found {
		if k := key(r); k != nil {
			byID[*k] = r
		}
	}
	out := make(map[string]model.Recipient, len(raw))
	for _, v := range raw {
		if id, err := uuid.Parse(v); err == nil {
			if r, ok := byID[id]; ok {
				out[v] = r
			}
		}
	}
	return out, nil
}

func (s *service) deliverable(channel model.Channel, r model.Recipient) bool {
	switch channel {
	case model.ChannelEmail:
		return s.validate.ValidateField("recipient_email", r.Email, "required,email") == nil
	case model.ChannelSMS:
		return s.validate.ValidateField("recipient_phone", r.Phone, "required,phone") == nil
	}
	return false
}

func (s *service) request(c *model.BulkNotification, tmpl *model.NotificationTemplate, r model.Recipient) notification.SendRequest {
	ctxData := model.JSONMap{}
	for k, v := range c.ContextData {
		ctxData[k] = v
	}
	if c.PersonalizeByRecipient {
		if r.Name != "" {
			ctxData["name"] = r.Name
		}
		if r.Email != "" {
			ctxData["user_email"] = r.Email
		}
	}
	return notification.SendRequest{
		Template:       tmpl,
		Channel:        c.Channel,
		RecipientEmail: r.Email,
		RecipientPhone: r.Phone,
		RecipientName:  r.Name,
		Context:        ctxData,
		UserID:         r.UserID,
		ApplicationID:  r.ApplicationID,
		CampaignID:     &c.ID,
		Priority:       c.Priority,
		MaxRetries:     c.MaxRetries,
	}
}

// complete closes a campaign whose recipients are all queued and whose logs
// are all settled.
func (s *service) complete(ctx context.Context, c *model.BulkNotification) {
	if err := c.Complete(s.now()); err != nil {
		return
	}
	if err := s.campaigns.UpdateState(ctx, c, model.CampaignStatusRunning); err != nil {
		if !errors.Is(err, model.ErrStaleState) {
			s.logger.WithContext(ctx).Error(err, "Failed to complete campaign", "campaign_id", c.ID.String())
		}
		return
	}
	s.logger.WithContext(ctx).Info("Campaign completed", "campaign_id", c.ID.String(), "queued", c.QueuedCount)
}

func (s *service) fail(ctx context.Context, c *model.BulkNotification, reason string) {
	if err := c.Fail(s.now()); err != nil {
		return
	}
	if err := s.campaigns.UpdateState(ctx, c, model.CampaignStatusRunning); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to mark campaign failed", "campaign_id", c.ID.String())
		return
	}
	s.logger.WithContext(ctx).Warn("Campaign failed", "campaign_id", c.ID.String(), "reason", reason)
}
