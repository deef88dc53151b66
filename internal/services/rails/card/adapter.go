package card

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/infra/psp"
	"github.com/craftora/marketplace/internal/repo/postgres"
)

type PSPClient interface {
	CreateIntent(ctx context.Context, req psp.CreateIntentRequest) (psp.Intent, error)
}

type PayoutAccountStore interface {
	FindByPayee(ctx context.Context, payeeID int64) (postgres.PayoutAccountRecord, error)
}

type FeeSplitter interface {
	Split(amountMinor int64) (int64, int64)
}

// Adapter drives the hosted card/wallet-pay provider. For a single item whose
// payee has an onboarded payout account the intent carries an application fee
// and a transfer destination, so funds settle to the payee in one hop. Carts
// settle to the platform account whole; per-item payouts stay bookkeeping
// values reconciled out of band.
type Adapter struct {
	psp      PSPClient
	accounts PayoutAccountStore
	fees     FeeSplitter
	currency string
}

// Intent is what the checkout caller needs to finish authorization in the
// browser: the provider intent id doubles as the correlation ref.
type Intent struct {
	ProviderIntentID string
	ClientSecret     string
	TotalMinor       int64
	Split            bool
}

func NewAdapter(pspClient PSPClient, accounts PayoutAccountStore, fees FeeSplitter, currency string) (*Adapter, error) {
	if pspClient == nil || accounts == nil || fees == nil {
		return nil, fmt.Errorf("card adapter dependencies are incomplete")
	}
	if currency == "" {
		currency = "USD"
	}

	return &Adapter{
		psp:      pspClient,
		accounts: accounts,
		fees:     fees,
		currency: currency,
	}, nil
}

func (a *Adapter) CreateIntent(ctx context.Context, buyerID int64, items []model.Item) (Intent, error) {
	if buyerID <= 0 || len(items) == 0 {
		return Intent{}, fmt.Errorf("invalid card intent payload")
	}

	var total int64
	for _, item := range items {
		if item.PriceMinor <= 0 {
			return Intent{}, fmt.Errorf("item %s has a non-positive price", item.ID)
		}
		total += item.PriceMinor
	}

	req := psp.CreateIntentRequest{
		AmountMinor: total,
		Currency:    a.currency,
		Metadata: map[string]string{
			"buyer_id":   strconv.FormatInt(buyerID, 10),
			"item_count": strconv.Itoa(len(items)),
		},
	}

	split := false
	if len(items) == 1 {
		account, err := a.accounts.FindByPayee(ctx, items[0].PayeeID)
		switch {
		case err == nil:
			// The fee is computed on the total, which for a single item is
			// also the per-row amount.
			fee, _ := a.fees.Split(total)
			req.ApplicationFeeMinor = fee
			req.TransferDestination = account.AccountRef
			split = true
		case errors.Is(err, postgres.ErrPayoutAccountNotFound):
			// Payee not onboarded: funds settle to the platform account.
		default:
			return Intent{}, fmt.Errorf("look up payout account: %w", err)
		}
	}

	intent, err := a.psp.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}

	return Intent{
		ProviderIntentID: intent.ID,
		ClientSecret:     intent.ClientSecret,
		TotalMinor:       total,
		Split:            split,
	}, nil
}
