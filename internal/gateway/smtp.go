package gateway

import (
	"context"

	"gopkg.in/gomail.v2"
)

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPProvider sends email directly through an SMTP relay.
type SMTPProvider struct {
	dialer    mailDialer
	fromEmail string
	fromName  string
}

func NewSMTPProvider(config Config) *SMTPProvider {
	d := gomail.NewDialer(config.SMTP.Host, config.SMTP.Port, config.SMTP.Username, config.SMTP.Password)
	return newSMTPProvider(d, config)
}

func newSMTPProvider(d mailDialer, config Config) *SMTPProvider {
	return &SMTPProvider{dialer: d, fromEmail: config.FromEmail, fromName: config.FromName}
}

func (p *SMTPProvider) Name() string { return "smtp" }

func (p *SMTPProvider) SendEmail(ctx context.Context, msg Email, _ SendOptions) DeliveryResult {
	if err := ctx.Err(); err != nil {
		return failed("Request failed: %v", err)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", firstNonEmpty(msg.FromEmail, p.fromEmail), firstNonEmpty(msg.FromName, p.fromName))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.IsHTML {
		m.SetBody("text/html", msg.Body)
	} else {
		m.SetBody("text/plain", msg.Body)
	}

	if err := p.dialer.DialAndSend(m); err != nil {
		return failed("Request failed: %v", err)
	}
	return DeliveryResult{Success: true, Message: "Email sent successfully"}
}
