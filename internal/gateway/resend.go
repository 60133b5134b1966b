package gateway

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

type resendEmails interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendProvider sends email through the Resend API.
type ResendProvider struct {
	emails    resendEmails
	fromEmail string
	fromName  string
}

func NewResendProvider(cfg Config) *ResendProvider {
	client := resend.NewClient(cfg.ResendAPIKey)
	return &ResendProvider{emails: client.Emails, fromEmail: cfg.FromEmail, fromName: cfg.FromName}
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) SendEmail(ctx context.Context, msg Email, _ SendOptions) DeliveryResult {
	if err := ctx.Err(); err != nil {
		return failed("Request failed: %v", err)
	}

	from := firstNonEmpty(msg.FromEmail, p.fromEmail)
	if name := firstNonEmpty(msg.FromName, p.fromName); name != "" {
		from = fmt.Sprintf("%s <%s>", name, from)
	}
	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
	}
	if msg.IsHTML {
		params.Html = msg.Body
	} else {
		params.Text = msg.Body
	}

	sent, err := p.emails.Send(params)
	if err != nil {
		return failed("Request failed: %v", err)
	}
	return DeliveryResult{Success: true, Message: "Email sent successfully", ProviderID: sent.Id}
}
