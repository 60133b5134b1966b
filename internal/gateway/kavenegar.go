package gateway

import (
	"context"
	"strconv"

	"github.com/kavenegar/kavenegar-go"
)

type kavenegarMessages interface {
	Send(sender string, receptor []string, message string, params *kavenegar.MessageSendParam) ([]kavenegar.Message, error)
}

// KavenegarProvider sends SMS through Kavenegar.
type KavenegarProvider struct {
	messages kavenegarMessages
	sender   string
	cost     float64
}

func NewKavenegarProvider(cfg Config) *KavenegarProvider {
	api := kavenegar.New(cfg.KavenegarAPIKey)
	return &KavenegarProvider{messages: api.Message, sender: cfg.KavenegarSender, cost: cfg.SMSCost}
}

func (p *KavenegarProvider) Name() string { return "kavenegar" }

func (p *KavenegarProvider) SendSMS(ctx context.Context, msg SMS, _ SendOptions) DeliveryResult {
	if err := ctx.Err(); err != nil {
		return failed("Request failed: %v", err)
	}

	res, err := p.messages.Send(p.sender, []string{msg.Number}, msg.Message, nil)
	if err != nil {
		switch e := err.(type) {
		case *kavenegar.APIError:
			return failed("SMS sending failed: %s", e.Message)
		case *kavenegar.HTTPError:
			return failed("API request failed with status %d", e.Status)
		default:
			return failed("Request failed: %v", err)
		}
	}
	if len(res) == 0 {
		return failed("SMS sending failed")
	}

	cost := p.cost
	if cost == 0 {
		cost = float64(res[0].Cost)
	}
	return DeliveryResult{
		Success:    true,
		Message:    "SMS sent successfully",
		ProviderID: strconv.Itoa(res[0].MessageID),
		Cost:       cost,
	}
}
