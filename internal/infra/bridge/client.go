package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the custodial stablecoin bridge. The bridge issues a
// deposit address per intent and reports confirmation asynchronously; the
// buyer transfers the exact amount off-platform.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

var (
	ErrIntentNotFound = errors.New("bridge intent not found")
	ErrMalformedEvent = errors.New("malformed bridge event")
)

type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("bridge: %s (status %d)", e.Message, e.StatusCode)
}

type CreateIntentRequest struct {
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Network     string `json:"network"`
}

type Intent struct {
	ID             string
	DepositAddress string
	Network        string
}

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
)

type IntentStatus struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	TxRef  *string `json:"tx_ref,omitempty"`
}

const (
	EventPaymentConfirmed = "payment.confirmed"
	EventPaymentFailed    = "payment.failed"
)

// WebhookEvent is an unsigned bridge delivery. The bridge offers no
// verifiable delivery guarantee, so confirmations are advisory and must be
// re-checked against GetIntent before any row completes.
type WebhookEvent struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	IntentID string  `json:"intent_id"`
	TxRef    *string `json:"tx_ref,omitempty"`
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("bridge base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// CreateIntent registers a payment intent with the bridge. The idempotency
// key must be freshly generated per request; retrying a failed call goes
// through a new checkout attempt with a new key.
func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest, idempotencyKey string) (Intent, error) {
	if req.AmountMinor <= 0 {
		return Intent{}, fmt.Errorf("bridge intent amount must be positive")
	}
	if strings.TrimSpace(req.Network) == "" {
		return Intent{}, fmt.Errorf("bridge intent network is required")
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return Intent{}, fmt.Errorf("bridge idempotency key is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Intent{}, fmt.Errorf("marshal bridge intent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment-intents", bytes.NewReader(body))
	if err != nil {
		return Intent{}, fmt.Errorf("build bridge intent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	respBody, err := c.do(httpReq)
	if err != nil {
		return Intent{}, err
	}

	var payload struct {
		ID             string `json:"id"`
		DepositAddress string `json:"deposit_address"`
		Network        string `json:"network"`
		PaymentMethods []struct {
			Network string `json:"network"`
			Address string `json:"address"`
		} `json:"payment_methods"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return Intent{}, fmt.Errorf("decode bridge intent response: %w", err)
	}
	if payload.ID == "" {
		return Intent{}, fmt.Errorf("bridge intent response is missing id")
	}

	intent := Intent{
		ID:             payload.ID,
		DepositAddress: payload.DepositAddress,
		Network:        payload.Network,
	}
	// Older bridge API versions return addresses as payment methods instead
	// of a top-level field; take the first one.
	if intent.DepositAddress == "" && len(payload.PaymentMethods) > 0 {
		intent.DepositAddress = payload.PaymentMethods[0].Address
		if intent.Network == "" {
			intent.Network = payload.PaymentMethods[0].Network
		}
	}
	if intent.DepositAddress == "" {
		return Intent{}, fmt.Errorf("bridge intent response is missing deposit address")
	}

	return intent, nil
}

// GetIntent queries intent status over the authenticated API. This is the
// trustworthy confirmation path; webhook deliveries are advisory.
func (c *Client) GetIntent(ctx context.Context, intentID string) (IntentStatus, error) {
	if strings.TrimSpace(intentID) == "" {
		return IntentStatus{}, fmt.Errorf("bridge intent id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment-intents/"+intentID, nil)
	if err != nil {
		return IntentStatus{}, fmt.Errorf("build bridge status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.do(httpReq)
	if err != nil {
		var provErr *ProviderError
		if errors.As(err, &provErr) && provErr.StatusCode == http.StatusNotFound {
			return IntentStatus{}, ErrIntentNotFound
		}
		return IntentStatus{}, err
	}

	var status IntentStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return IntentStatus{}, fmt.Errorf("decode bridge status response: %w", err)
	}
	if status.Status == "" {
		return IntentStatus{}, fmt.Errorf("bridge status response is missing status")
	}

	return status, nil
}

// ParseWebhook decodes an unsigned bridge delivery.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, ErrMalformedEvent
	}
	if event.ID == "" || event.Type == "" || event.IntentID == "" {
		return WebhookEvent{}, ErrMalformedEvent
	}
	return event, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call bridge endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read bridge response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    providerMessage(respBody),
		}
	}

	return respBody, nil
}

func providerMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return "provider request failed"
}
