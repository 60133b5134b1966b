package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
	"github.com/supplierportal/notify-api/pkg/worker"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultImmediateAttempts = 3
	DefaultImmediateDelay    = 2 * time.Second
)

// Config selects and configures the delivery providers.
type Config struct {
	// Provider is the email provider: api, smtp, ses or resend.
	Provider string
	// SMSProvider is the SMS provider: api, sns or kavenegar.
	SMSProvider       string
	BaseURL           string
	Timeout           time.Duration
	ImmediateAttempts int
	ImmediateDelay    time.Duration
	FromEmail         string
	FromName          string

	SMTP            SMTPConfig
	AWSRegion       string
	ResendAPIKey    string
	KavenegarAPIKey string
	KavenegarSender string
	// SMSCost is recorded on SMS records sent through providers that do not report a price.
	SMSCost float64
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// DeliveryResult is the outcome of one send. Providers never return errors;
// every failure becomes Success=false with a readable Message.
type DeliveryResult struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	ProviderID string  `json:"provider_id,omitempty"`
	Cost       float64 `json:"cost,omitempty"`
	Attempts   int     `json:"attempts"`
}

func failed(format string, args ...interface{}) DeliveryResult {
	return DeliveryResult{Message: fmt.Sprintf(format, args...)}
}

type Email struct {
	To        string
	Subject   string
	Body      string
	IsHTML    bool
	FromEmail string
	FromName  string
}

type SMS struct {
	Number  string
	Message string
}

// SendOptions marks a send as immediate. Providers that support it forward
// the priority; the Gateway retries immediate sends.
type SendOptions struct {
	Immediate bool
	Priority  model.Priority
}

// EmailProvider performs a single email delivery attempt.
type EmailProvider interface {
	Name() string
	SendEmail(ctx context.Context, msg Email, opts SendOptions) DeliveryResult
}

// SMSProvider performs a single SMS delivery attempt.
type SMSProvider interface {
	Name() string
	SendSMS(ctx context.Context, msg SMS, opts SendOptions) DeliveryResult
}

// Sender is what the notification service delivers through.
type Sender interface {
	SendEmail(ctx context.Context, msg Email, opts SendOptions) DeliveryResult
	SendSMS(ctx context.Context, msg SMS, opts SendOptions) DeliveryResult
}

// Gateway routes sends to the configured providers. Ordinary sends make a
// single attempt and leave retries to the queue; immediate sends are
// retried up to ImmediateAttempts times with a fixed delay.
type Gateway struct {
	email    EmailProvider
	sms      SMSProvider
	attempts int
	delay    time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewGateway(email EmailProvider, sms SMSProvider, config Config, log *logger.Logger, m *metrics.Metrics) *Gateway {
	if config.ImmediateAttempts <= 0 {
		config.ImmediateAttempts = DefaultImmediateAttempts
	}
	if config.ImmediateDelay < 0 {
		config.ImmediateDelay = DefaultImmediateDelay
	}
	return &Gateway{
		email:    email,
		sms:      sms,
		attempts: config.ImmediateAttempts,
		delay:    config.ImmediateDelay,
		logger:   log,
		metrics:  m,
	}
}

func (g *Gateway) SendEmail(ctx context.Context, msg Email, opts SendOptions) DeliveryResult {
	if g.email == nil {
		return failed("no email provider configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return failed("recipient email is required")
	}
	return g.send(ctx, g.email.Name(), opts, func() DeliveryResult {
		return g.email.SendEmail(ctx, msg, opts)
	})
}

func (g *Gateway) SendSMS(ctx context.Context, msg SMS, opts SendOptions) DeliveryResult {
	if g.sms == nil {
		return failed("no SMS provider configured")
	}
	if strings.TrimSpace(msg.Number) == "" {
		return failed("recipient phone is required")
	}
	return g.send(ctx, g.sms.Name(), opts, func() DeliveryResult {
		return g.sms.SendSMS(ctx, msg, opts)
	})
}

var errAttemptFailed = errors.New("delivery attempt failed")

func (g *Gateway) send(ctx context.Context, provider string, opts SendOptions, attempt func() DeliveryResult) DeliveryResult {
	if !opts.Immediate {
		res := attempt()
		res.Attempts = 1
		g.observe(provider, res)
		return res
	}

	var (
		res   DeliveryResult
		tries int
	)
	err := worker.Retry(ctx, g.attempts, g.delay, func() error {
		tries++
		res = attempt()
		g.observe(provider, res)
		if !res.Success {
			g.logger.WithContext(ctx).Warn("immediate delivery attempt failed",
				"provider", provider, "attempt", tries, "message", res.Message)
			return errAttemptFailed
		}
		return nil
	})
	res.Attempts = tries
	if err != nil {
		res.Success = false
		if errors.Is(err, errAttemptFailed) {
			res.Message = fmt.Sprintf("Failed after %d attempts", tries)
		} else {
			res.Message = fmt.Sprintf("delivery cancelled after %d attempts: %v", tries, err)
		}
	}
	return res
}

func (g *Gateway) observe(provider string, res DeliveryResult) {
	status := "success"
	if !res.Success {
		status = "failure"
	}
	g.metrics.GatewayRequests.WithLabelValues(provider, status).Inc()
}
