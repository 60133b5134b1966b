package gateway

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSProvider sends SMS by publishing directly to a phone number.
type SNSProvider struct {
	client snsAPI
	cost   float64
}

func NewSNSProvider(ctx context.Context, cfg Config) (*SNSProvider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &SNSProvider{client: sns.NewFromConfig(awsCfg), cost: cfg.SMSCost}, nil
}

func (p *SNSProvider) Name() string { return "sns" }

func (p *SNSProvider) SendSMS(ctx context.Context, msg SMS, _ SendOptions) DeliveryResult {
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(msg.Number),
		Message:     aws.String(msg.Message),
	})
	if err != nil {
		if isTimeout(err) {
			return failed("Request timed out")
		}
		return failed("Request failed: %v", err)
	}
	return DeliveryResult{
		Success:    true,
		Message:    "SMS sent successfully",
		ProviderID: aws.ToString(out.MessageId),
		Cost:       p.cost,
	}
}
