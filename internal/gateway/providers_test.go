package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/kavenegar/kavenegar-go"
	"github.com/resend/resend-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestSMTPProvider(t *testing.T) {
	d := &fakeDialer{}
	p := newSMTPProvider(d, Config{FromEmail: "noreply@example.com", FromName: "Portal"})

	res := p.SendEmail(context.Background(), Email{To: "a@b.com", Subject: "Hi", Body: "<p>x</p>", IsHTML: true}, SendOptions{})
	assert.True(t, res.Success)
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"a@b.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Hi"}, d.sent[0].GetHeader("Subject"))

	d.err = errors.New("535 auth failed")
	res = p.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, "Request failed: 535 auth failed", res.Message)
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESProvider(t *testing.T) {
	f := &fakeSES{}
	p := &SESProvider{client: f, fromEmail: "noreply@example.com", fromName: "Portal"}

	res := p.SendEmail(context.Background(), Email{To: "a@b.com", Subject: "Hi", Body: "plain"}, SendOptions{})
	assert.True(t, res.Success)
	assert.Equal(t, "ses-1", res.ProviderID)
	assert.Equal(t, "Portal <noreply@example.com>", aws.ToString(f.input.Source))
	assert.Equal(t, []string{"a@b.com"}, f.input.Destination.ToAddresses)
	assert.Nil(t, f.input.Message.Body.Html)
	assert.Equal(t, "plain", aws.ToString(f.input.Message.Body.Text.Data))

	f.err = errors.New("throttled")
	assert.Equal(t, "Request failed: throttled", p.SendEmail(context.Background(), Email{To: "a@b.com"}, SendOptions{}).Message)
}

type fakeSNS struct {
	input *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

func TestSNSProvider(t *testing.T) {
	f := &fakeSNS{}
	p := &SNSProvider{client: f, cost: 0.0075}

	res := p.SendSMS(context.Background(), SMS{Number: "+15550001111", Message: "hello"}, SendOptions{})
	assert.True(t, res.Success)
	assert.Equal(t, "sns-1", res.ProviderID)
	assert.Equal(t, 0.0075, res.Cost)
	assert.Equal(t, "+15550001111", aws.ToString(f.input.PhoneNumber))
}

type fakeResend struct {
	params *resend.SendEmailRequest
}

func (f *fakeResend) Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.params = params
	return &resend.SendEmailResponse{Id: "re-1"}, nil
}

func TestResendProvider(t *testing.T) {
	f := &fakeResend{}
	p := &ResendProvider{emails: f, fromEmail: "noreply@example.com"}

	res := p.SendEmail(context.Background(), Email{To: "a@b.com", Subject: "Hi", Body: "<b>x</b>", IsHTML: true}, SendOptions{})
	assert.True(t, res.Success)
	assert.Equal(t, "re-1", res.ProviderID)
	assert.Equal(t, "noreply@example.com", f.params.From)
	assert.Equal(t, "<b>x</b>", f.params.Html)
}

type fakeKavenegar struct {
	res []kavenegar.Message
	err error
}

func (f *fakeKavenegar) Send(_ string, _ []string, _ string, _ *kavenegar.MessageSendParam) ([]kavenegar.Message, error) {
	return f.res, f.err
}

func TestKavenegarProvider(t *testing.T) {
	f := &fakeKavenegar{res: []kavenegar.Message{{MessageID: 42, Cost: 120}}}
	p := &KavenegarProvider{messages: f, sender: "1000"}

	res := p.SendSMS(context.Background(), SMS{Number: "09120000000", Message: "hi"}, SendOptions{})
	assert.True(t, res.Success)
	assert.Equal(t, "42", res.ProviderID)
	assert.Equal(t, 120.0, res.Cost)

	f.res = nil
	assert.Equal(t, "SMS sending failed", p.SendSMS(context.Background(), SMS{Number: "1"}, SendOptions{}).Message)
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	_, err := NewEmailProvider(context.Background(), Config{Provider: "pigeon"}, nil)
	assert.EqualError(t, err, `unknown email provider "pigeon"`)

	_, err = NewSMSProvider(context.Background(), Config{SMSProvider: "kavenegar"}, nil)
	assert.Error(t, err)

	client := NewAPIClient(Config{}, nil)
	email, err := NewEmailProvider(context.Background(), Config{}, client)
	require.NoError(t, err)
	assert.Equal(t, "api", email.Name())
}
