package gateway

import (
	"context"
	"fmt"

	"github.com/supplierportal/notify-api/pkg/circuitbreaker"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
)

// NewEmailProvider builds the configured email provider. The api provider
// shares client with the SMS side when both use it.
func NewEmailProvider(ctx context.Context, cfg Config, client *APIClient) (EmailProvider, error) {
	switch cfg.Provider {
	case "", "api":
		return client, nil
	case "smtp":
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("gateway.smtp.host is required for the smtp provider")
		}
		return NewSMTPProvider(cfg), nil
	case "ses":
		return NewSESProvider(ctx, cfg)
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend api key is required for the resend provider")
		}
		return NewResendProvider(cfg), nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
}

func NewSMSProvider(ctx context.Context, cfg Config, client *APIClient) (SMSProvider, error) {
	switch cfg.SMSProvider {
	case "", "api":
		return client, nil
	case "sns":
		return NewSNSProvider(ctx, cfg)
	case "kavenegar":
		if cfg.KavenegarAPIKey == "" {
			return nil, fmt.Errorf("kavenegar api key is required for the kavenegar provider")
		}
		return NewKavenegarProvider(cfg), nil
	}
	return nil, fmt.Errorf("unknown sms provider %q", cfg.SMSProvider)
}

// New wires the providers selected by cfg behind a Gateway.
func New(ctx context.Context, cfg Config, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger, m *metrics.Metrics) (*Gateway, error) {
	client := NewAPIClient(cfg, breaker)
	email, err := NewEmailProvider(ctx, cfg, client)
	if err != nil {
		return nil, err
	}
	sms, err := NewSMSProvider(ctx, cfg, client)
	if err != nil {
		return nil, err
	}
	return NewGateway(email, sms, cfg, log, m), nil
}
