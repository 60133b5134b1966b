package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/pkg/circuitbreaker"
)

const (
	emailPath = "/api/email"
	smsPath   = "/api/sms"
)

type emailPayload struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	IsHTML    bool   `json:"isHtml"`
	FromEmail string `json:"fromEmail,omitempty"`
	FromName  string `json:"fromName,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Tracking  bool   `json:"tracking,omitempty"`
	Immediate bool   `json:"immediate,omitempty"`
}

type smsPayload struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type apiResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

// errServer marks responses that count against the circuit breaker.
var errServer = errors.New("gateway server error")

// APIClient talks to the internal delivery API over HTTP and serves both
// channels.
type APIClient struct {
	baseURL   string
	fromEmail string
	fromName  string
	http      *http.Client
	breaker   *circuitbreaker.CircuitBreaker
}

func NewAPIClient(config Config, breaker *circuitbreaker.CircuitBreaker) *APIClient {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "gateway-api"})
	}
	return &APIClient{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		fromEmail: config.FromEmail,
		fromName:  config.FromName,
		http:      &http.Client{Timeout: config.Timeout},
		breaker:   breaker,
	}
}

func (c *APIClient) Name() string { return "api" }

func (c *APIClient) SendEmail(ctx context.Context, msg Email, opts SendOptions) DeliveryResult {
	payload := emailPayload{
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		IsHTML:    msg.IsHTML,
		FromEmail: firstNonEmpty(msg.FromEmail, c.fromEmail),
		FromName:  firstNonEmpty(msg.FromName, c.fromName),
	}
	headers := map[string]string{}
	if opts.Immediate {
		priority := opts.Priority
		if priority == "" {
			priority = model.PriorityHigh
		}
		payload.Priority = strings.ToLower(string(priority))
		payload.Tracking = true
		payload.Immediate = true
		headers["X-Priority"] = strings.ToUpper(string(priority))
		headers["X-Immediate"] = "true"
	}
	return c.post(ctx, emailPath, payload, headers, "Email sent successfully", "Email sending failed")
}

func (c *APIClient) SendSMS(ctx context.Context, msg SMS, opts SendOptions) DeliveryResult {
	payload := smsPayload{Number: msg.Number, Message: msg.Message}
	return c.post(ctx, smsPath, payload, nil, "SMS sent successfully", "SMS sending failed")
}

func (c *APIClient) post(ctx context.Context, path string, payload interface{}, headers map[string]string, okMsg, failMsg string) DeliveryResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return failed("Unexpected error: %v", err)
	}

	var result DeliveryResult
	err = c.breaker.Execute(func() error {
		var callErr error
		result, callErr = c.do(ctx, path, body, headers, okMsg, failMsg)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return failed("%v", err)
	}
	return result
}

func (c *APIClient) do(ctx context.Context, path string, body []byte, headers map[string]string, okMsg, failMsg string) (DeliveryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return failed("Unexpected error: %v", err), nil
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return failed("Request timed out"), err
		}
		return failed("Request failed: %v", err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		res := failed("API request failed with status %d", resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError {
			return res, errServer
		}
		return res, nil
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failed("Unexpected error: %v", err), nil
	}
	if !out.Success {
		return DeliveryResult{Message: firstNonEmpty(out.Message, failMsg)}, nil
	}
	return DeliveryResult{Success: true, Message: okMsg, ProviderID: out.MessageID}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewAPIBreaker builds the breaker that guards the delivery API.
func NewAPIBreaker(onChange func(name string, from, to circuitbreaker.State)) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:          "gateway-api",
		MaxRequests:   5,
		Interval:      time.Minute,
		Timeout:       30 * time.Second,
		OnStateChange: onChange,
	})
}
