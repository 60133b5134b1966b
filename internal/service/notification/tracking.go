package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
)

// trackingAttempts bounds re-reads when a tracking hit races another update.
const trackingAttempts = 3

// DeliveryReport is a provider's final verdict on a sent message.
type DeliveryReport struct {
	Status  model.NotificationStatus `json:"status" binding:"required,oneof=DELIVERED BOUNCED"`
	Message string                   `json:"message"`
}

// TrackOpen records an open. Status only moves forward: opening a CLICKED
// log refreshes opened_at and keeps CLICKED. Hits on logs that were never
// sent are ignored and the log is returned unchanged.
func (s *service) TrackOpen(ctx context.Context, trackingID uuid.UUID, ip, userAgent string) (*model.NotificationLog, error) {
	return s.track(ctx, trackingID, "open", func(log *model.NotificationLog) error {
		return log.MarkOpened(ip, userAgent, s.now())
	})
}

// TrackClick records a click, which also implies an open.
func (s *service) TrackClick(ctx context.Context, trackingID uuid.UUID, ip, userAgent string) (*model.NotificationLog, error) {
	return s.track(ctx, trackingID, "click", func(log *model.NotificationLog) error {
		return log.MarkClicked(ip, userAgent, s.now())
	})
}

func (s *service) track(ctx context.Context, trackingID uuid.UUID, event string, mark func(*model.NotificationLog) error) (*model.NotificationLog, error) {
	for attempt := 0; ; attempt++ {
		log, err := s.logs.GetByTrackingID(ctx, trackingID)
		if err != nil {
			return nil, err
		}
		prev := log.Status
		wasOpened := log.OpenedAt != nil

		if err := mark(log); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				s.logger.WithContext(ctx).Debug("Ignoring tracking hit", "event", event,
					"log_id", log.ID.String(), "status", string(prev))
				s.metrics.TrackingEvents.WithLabelValues(event + "_ignored").Inc()
				return log, nil
			}
			return nil, err
		}

		err = s.logs.UpdateState(ctx, log, prev)
		if errors.Is(err, model.ErrStaleState) && attempt < trackingAttempts-1 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record %s: %w", event, err)
		}

		s.metrics.TrackingEvents.WithLabelValues(event).Inc()
		if log.CampaignID != nil && !wasOpened {
			s.addCampaignProgress(ctx, *log.CampaignID, model.ProgressDelta{Opened: 1})
		}
		return log, nil
	}
}

// ApplyDeliveryReport moves a SENT log to DELIVERED or BOUNCED and mirrors
// the outcome onto its SMS record.
func (s *service) ApplyDeliveryReport(ctx context.Context, id uuid.UUID, report DeliveryReport) (*model.NotificationLog, error) {
	log, err := s.logs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := log.Status
	now := s.now()

	switch report.Status {
	case model.NotificationStatusDelivered:
		err = log.MarkDelivered(now)
	case model.NotificationStatusBounced:
		err = log.MarkBounced(report.Message, now)
	default:
		return nil, apperrors.Validation(fmt.Sprintf("unsupported delivery status %q", report.Status))
	}
	if err != nil {
		return nil, err
	}
	if err := s.logs.UpdateState(ctx, log, prev); err != nil {
		return nil, err
	}

	if log.Channel == model.ChannelSMS {
		s.applySMSReport(ctx, log, report)
	}
	if log.CampaignID != nil && report.Status == model.NotificationStatusDelivered {
		s.addCampaignProgress(ctx, *log.CampaignID, model.ProgressDelta{Delivered: 1})
	}
	return log, nil
}

func (s *service) applySMSReport(ctx context.Context, log *model.NotificationLog, report DeliveryReport) {
	record, err := s.sms.GetByLogID(ctx, log.ID)
	if err != nil {
		return
	}
	expected := record.Status
	if report.Status == model.NotificationStatusDelivered {
		err = record.MarkDelivered(s.now())
	} else {
		err = record.MarkBounced(report.Message, s.now())
	}
	if err == nil {
		err = s.sms.UpdateState(ctx, record, expected)
	}
	if err != nil {
		s.logger.WithContext(ctx).Warn("Skipping sms delivery report", "log_id", log.ID.String(), "error", err.Error())
	}
}
