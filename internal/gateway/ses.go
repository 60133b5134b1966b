package gateway

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESProvider sends email through Amazon SES.
type SESProvider struct {
	client    sesAPI
	fromEmail string
	fromName  string
}

func NewSESProvider(ctx context.Context, cfg Config) (*SESProvider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &SESProvider{client: ses.NewFromConfig(awsCfg), fromEmail: cfg.FromEmail, fromName: cfg.FromName}, nil
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) SendEmail(ctx context.Context, msg Email, _ SendOptions) DeliveryResult {
	source := firstNonEmpty(msg.FromEmail, p.fromEmail)
	if name := firstNonEmpty(msg.FromName, p.fromName); name != "" {
		source = fmt.Sprintf("%s <%s>", name, source)
	}

	content := &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
	body := &types.Body{}
	if msg.IsHTML {
		body.Html = content
	} else {
		body.Text = content
	}

	out, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(source),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	})
	if err != nil {
		if isTimeout(err) {
			return failed("Request timed out")
		}
		return failed("Request failed: %v", err)
	}
	return DeliveryResult{Success: true, Message: "Email sent successfully", ProviderID: aws.ToString(out.MessageId)}
}
