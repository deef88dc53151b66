package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateIntentSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment-intents" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":              "bi_42",
			"deposit_address": "So1DepositAddr111",
			"network":         "solana",
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "bk_test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	intent, err := client.CreateIntent(context.Background(), CreateIntentRequest{
		AmountMinor: 2500,
		Currency:    "USD",
		Network:     "solana",
	}, "idem-key-1")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if gotKey != "idem-key-1" {
		t.Fatalf("idempotency key not sent, got %q", gotKey)
	}
	if intent.ID != "bi_42" || intent.DepositAddress != "So1DepositAddr111" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}

func TestCreateIntentFallsBackToPaymentMethodAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "bi_43",
			"payment_methods": []map[string]string{
				{"network": "ethereum", "address": "0xdeadbeef"},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	intent, err := client.CreateIntent(context.Background(), CreateIntentRequest{
		AmountMinor: 100,
		Currency:    "USD",
		Network:     "ethereum",
	}, "idem-key-2")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.DepositAddress != "0xdeadbeef" || intent.Network != "ethereum" {
		t.Fatalf("payment method address not used: %+v", intent)
	}
}

func TestGetIntentMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"no such intent"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.GetIntent(context.Background(), "bi_missing"); !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestGetIntentReturnsStatusAndTxRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment-intents/bi_42" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "bi_42",
			"status": "confirmed",
			"tx_ref": "0xsettled",
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	status, err := client.GetIntent(context.Background(), "bi_42")
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if status.Status != StatusConfirmed {
		t.Fatalf("unexpected status: %s", status.Status)
	}
	if status.TxRef == nil || *status.TxRef != "0xsettled" {
		t.Fatalf("tx ref not decoded: %+v", status)
	}
}

func TestParseWebhookRejectsMalformedEvent(t *testing.T) {
	if _, err := ParseWebhook([]byte(`{"type":"payment.confirmed"}`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
	if _, err := ParseWebhook([]byte(`not-json`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent for invalid json, got %v", err)
	}
}
