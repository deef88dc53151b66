package psp

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

// Client talks to the hosted card/wallet-pay provider. Card data never
// transits this service; the provider hands back a client secret the buyer's
// browser uses to complete authorization.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
	now           func() time.Time
}

type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	HTTPClient    *http.Client
}

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// ProviderError carries the provider's own failure message back to the caller.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("psp: %s (status %d)", e.Message, e.StatusCode)
}

type CreateIntentRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	// ApplicationFeeMinor and TransferDestination enable the one-hop split:
	// funds settle to the destination sub-account minus the application fee.
	// Both zero-valued means the full amount settles to the platform account.
	ApplicationFeeMinor int64             `json:"application_fee_amount,omitempty"`
	TransferDestination string            `json:"transfer_destination,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

const (
	EventIntentSucceeded = "intent.succeeded"
	EventIntentFailed    = "intent.payment_failed"
)

type WebhookEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	IntentID string `json:"intent_id"`
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("psp base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    httpClient,
		now:           time.Now,
	}, nil
}

func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	if req.AmountMinor <= 0 {
		return Intent{}, fmt.Errorf("psp intent amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return Intent{}, fmt.Errorf("psp intent currency is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Intent{}, fmt.Errorf("marshal psp intent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return Intent{}, fmt.Errorf("build psp intent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Intent{}, fmt.Errorf("call psp intent endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Intent{}, fmt.Errorf("read psp intent response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Intent{}, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    providerMessage(respBody),
		}
	}

	var intent Intent
	if err := json.Unmarshal(respBody, &intent); err != nil {
		return Intent{}, fmt.Errorf("decode psp intent response: %w", err)
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return Intent{}, fmt.Errorf("psp intent response is missing id or client secret")
	}

	return intent, nil
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
