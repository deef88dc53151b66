package card

import (
	"context"
	"errors"
	"testing"

	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/infra/psp"
	"github.com/craftora/marketplace/internal/repo/postgres"
	"github.com/craftora/marketplace/internal/services/fees"
)

type stubPSP struct {
	lastReq psp.CreateIntentRequest
	intent  psp.Intent
	err     error
}

func (s *stubPSP) CreateIntent(_ context.Context, req psp.CreateIntentRequest) (psp.Intent, error) {
	s.lastReq = req
	if s.err != nil {
		return psp.Intent{}, s.err
	}
	return s.intent, nil
}

type stubAccounts struct {
	accounts map[int64]postgres.PayoutAccountRecord
}

func (s *stubAccounts) FindByPayee(_ context.Context, payeeID int64) (postgres.PayoutAccountRecord, error) {
	rec, ok := s.accounts[payeeID]
	if !ok {
		return postgres.PayoutAccountRecord{}, postgres.ErrPayoutAccountNotFound
	}
	return rec, nil
}

func newTestAdapter(t *testing.T, pspClient *stubPSP, accounts *stubAccounts) *Adapter {
	t.Helper()

	adapter, err := NewAdapter(pspClient, accounts, fees.NewCalculator(1000), "USD")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestCreateIntentSingleItemOnboardedPayeeSplits(t *testing.T) {
	pspClient := &stubPSP{intent: psp.Intent{ID: "pi_100", ClientSecret: "cs_100"}}
	accounts := &stubAccounts{accounts: map[int64]postgres.PayoutAccountRecord{
		9: {PayeeID: 9, AccountRef: "acct_payee_9"},
	}}
	adapter := newTestAdapter(t, pspClient, accounts)

	intent, err := adapter.CreateIntent(context.Background(), 1, []model.Item{
		{ID: "itm-1", PriceMinor: 5000, PayeeID: 9, Available: true},
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if !intent.Split {
		t.Fatalf("expected split intent for onboarded single-item checkout")
	}
	if intent.ProviderIntentID != "pi_100" || intent.ClientSecret != "cs_100" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if pspClient.lastReq.AmountMinor != 5000 {
		t.Fatalf("expected intent amount 5000, got %d", pspClient.lastReq.AmountMinor)
	}
	if pspClient.lastReq.ApplicationFeeMinor != 500 {
		t.Fatalf("expected application fee 500 at 10%%, got %d", pspClient.lastReq.ApplicationFeeMinor)
	}
	if pspClient.lastReq.TransferDestination != "acct_payee_9" {
		t.Fatalf("expected transfer destination acct_payee_9, got %q", pspClient.lastReq.TransferDestination)
	}
}

func TestCreateIntentSingleItemUnknownPayeeSettlesToPlatform(t *testing.T) {
	pspClient := &stubPSP{intent: psp.Intent{ID: "pi_101", ClientSecret: "cs_101"}}
	adapter := newTestAdapter(t, pspClient, &stubAccounts{})

	intent, err := adapter.CreateIntent(context.Background(), 1, []model.Item{
		{ID: "itm-1", PriceMinor: 5000, PayeeID: 9, Available: true},
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.Split {
		t.Fatalf("expected no split without an onboarded payout account")
	}
	if pspClient.lastReq.ApplicationFeeMinor != 0 || pspClient.lastReq.TransferDestination != "" {
		t.Fatalf("expected bare intent, got %+v", pspClient.lastReq)
	}
}

func TestCreateIntentCartUsesTotalWithoutDestination(t *testing.T) {
	pspClient := &stubPSP{intent: psp.Intent{ID: "pi_102", ClientSecret: "cs_102"}}
	accounts := &stubAccounts{accounts: map[int64]postgres.PayoutAccountRecord{
		9: {PayeeID: 9, AccountRef: "acct_payee_9"},
	}}
	adapter := newTestAdapter(t, pspClient, accounts)

	intent, err := adapter.CreateIntent(context.Background(), 1, []model.Item{
		{ID: "itm-1", PriceMinor: 4000, PayeeID: 9},
		{ID: "itm-2", PriceMinor: 3000, PayeeID: 10},
		{ID: "itm-3", PriceMinor: 5000, PayeeID: 11},
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.TotalMinor != 12000 {
		t.Fatalf("expected intent total 12000, got %d", intent.TotalMinor)
	}
	if pspClient.lastReq.AmountMinor != 12000 {
		t.Fatalf("expected provider amount 12000, got %d", pspClient.lastReq.AmountMinor)
	}
	if intent.Split || pspClient.lastReq.TransferDestination != "" {
		t.Fatalf("cart checkout must not carry a transfer destination")
	}
}

func TestCreateIntentProviderErrorPropagates(t *testing.T) {
	provErr := &psp.ProviderError{StatusCode: 402, Message: "card network unavailable"}
	pspClient := &stubPSP{err: provErr}
	adapter := newTestAdapter(t, pspClient, &stubAccounts{})

	_, err := adapter.CreateIntent(context.Background(), 1, []model.Item{
		{ID: "itm-1", PriceMinor: 2500, PayeeID: 9},
	})

	var got *psp.ProviderError
	if !errors.As(err, &got) || got.Message != "card network unavailable" {
		t.Fatalf("expected provider error to propagate, got %v", err)
	}
}
