package psp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header the provider signs deliveries with:
// "t=<unix>,v1=<hex hmac-sha256 of "<unix>.<raw body>">".
const SignatureHeader = "Psp-Signature"

const signatureTolerance = 5 * time.Minute

// VerifyWebhook checks the delivery signature over the raw body and parses
// the event. A verification failure mutates nothing; the provider retries on
// its own schedule.
func (c *Client) VerifyWebhook(header string, body []byte) (WebhookEvent, error) {
	if c.webhookSecret == "" {
		return WebhookEvent{}, fmt.Errorf("psp webhook secret is not configured")
	}

	timestamp, signature, err := parseSignatureHeader(header)
	if err != nil {
		return WebhookEvent{}, err
	}

	age := c.now().Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return WebhookEvent{}, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return WebhookEvent{}, ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, ErrMalformedEvent
	}
	if event.ID == "" || event.Type == "" || event.IntentID == "" {
		return WebhookEvent{}, ErrMalformedEvent
	}

	return event, nil
}

// Sign produces a valid signature header for a body.
func (c *Client) Sign(at time.Time, body []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, string, error) {
	var (
		timestamp int64
		signature string
	)

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			signature = value
		}
	}

	if timestamp == 0 || signature == "" {
		return 0, "", ErrInvalidSignature
	}

	return timestamp, signature, nil
}
