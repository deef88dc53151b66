package settlement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/repo/postgres"
	"github.com/craftora/marketplace/internal/services/rails/card"
	"github.com/craftora/marketplace/internal/services/rails/stablecoin"
)

// stubLedger mirrors the guarded transition semantics of the postgres repo in
// memory: status predicates on every update, dedupe on (rail, chain_tx_ref).
type stubLedger struct {
	seq       int
	purchases map[string]*model.Purchase
}

func newStubLedger() *stubLedger {
	return &stubLedger{purchases: make(map[string]*model.Purchase)}
}

func (l *stubLedger) InsertPending(_ context.Context, rows []postgres.PendingRow) ([]model.Purchase, error) {
	out := make([]model.Purchase, 0, len(rows))
	for _, row := range rows {
		l.seq++
		p := &model.Purchase{
			ID:          "p-" + strconv.Itoa(l.seq),
			BuyerID:     row.BuyerID,
			ItemID:      row.ItemID,
			Amount:      row.Amount,
			PlatformFee: row.PlatformFee,
			PayeePayout: row.PayeePayout,
			Rail:        row.Rail,
			RailNetwork: row.RailNetwork,
			Status:      enums.PurchaseStatusPending,
			CreatedAt:   time.Now(),
		}
		l.purchases[p.ID] = p
		out = append(out, *p)
	}
	return out, nil
}

func (l *stubLedger) AttachCorrelation(_ context.Context, ids []string, rail enums.Rail, ref string) error {
	for _, id := range ids {
		p, ok := l.purchases[id]
		if !ok || p.Rail != rail || p.Status != enums.PurchaseStatusPending || p.CorrelationRef != nil {
			return postgres.ErrInvalidTransition
		}
		refCopy := ref
		p.CorrelationRef = &refCopy
	}
	return nil
}

func (l *stubLedger) FailByIDs(_ context.Context, ids []string) (int64, error) {
	var failed int64
	for _, id := range ids {
		p, ok := l.purchases[id]
		if ok && p.Status == enums.PurchaseStatusPending {
			p.Status = enums.PurchaseStatusFailed
			failed++
		}
	}
	return failed, nil
}

func (l *stubLedger) CompleteByCorrelation(_ context.Context, rails []enums.Rail, ref string, chainTxRef *string) ([]model.Purchase, error) {
	return l.settle(rails, ref, enums.PurchaseStatusCompleted, chainTxRef), nil
}

func (l *stubLedger) FailByCorrelation(_ context.Context, rails []enums.Rail, ref string) ([]model.Purchase, error) {
	return l.settle(rails, ref, enums.PurchaseStatusFailed, nil), nil
}

func (l *stubLedger) settle(rails []enums.Rail, ref string, status enums.PurchaseStatus, chainTxRef *string) []model.Purchase {
	var out []model.Purchase
	for _, p := range l.purchases {
		if p.Status != enums.PurchaseStatusPending || p.CorrelationRef == nil || *p.CorrelationRef != ref {
			continue
		}
		if !railIn(rails, p.Rail) {
			continue
		}
		p.Status = status
		if chainTxRef != nil {
			p.ChainTxRef = chainTxRef
		}
		out = append(out, *p)
	}
	return out
}

func (l *stubLedger) InsertCompleted(_ context.Context, row postgres.PendingRow, chainTxRef string) (model.Purchase, bool, error) {
	for _, p := range l.purchases {
		if p.Rail == row.Rail && p.ChainTxRef != nil && *p.ChainTxRef == chainTxRef {
			return *p, false, nil
		}
	}

	l.seq++
	p := &model.Purchase{
		ID:          "p-" + strconv.Itoa(l.seq),
		BuyerID:     row.BuyerID,
		ItemID:      row.ItemID,
		Amount:      row.Amount,
		PlatformFee: row.PlatformFee,
		PayeePayout: row.PayeePayout,
		Rail:        row.Rail,
		RailNetwork: row.RailNetwork,
		ChainTxRef:  &chainTxRef,
		Status:      enums.PurchaseStatusCompleted,
		CreatedAt:   time.Now(),
	}
	l.purchases[p.ID] = p
	return *p, true, nil
}

func (l *stubLedger) FindByCorrelation(_ context.Context, rails []enums.Rail, ref string) ([]model.Purchase, error) {
	var out []model.Purchase
	for _, p := range l.purchases {
		if p.CorrelationRef != nil && *p.CorrelationRef == ref && railIn(rails, p.Rail) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (l *stubLedger) byID(id string) model.Purchase {
	if p, ok := l.purchases[id]; ok {
		return *p
	}
	return model.Purchase{}
}

func railIn(rails []enums.Rail, rail enums.Rail) bool {
	for _, r := range rails {
		if r == rail {
			return true
		}
	}
	return false
}

type stubItems struct {
	items      map[string]model.Item
	increments map[string]int
}

func newStubItems(items ...model.Item) *stubItems {
	s := &stubItems{items: make(map[string]model.Item), increments: make(map[string]int)}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *stubItems) FindByID(_ context.Context, itemID string) (model.Item, error) {
	item, ok := s.items[itemID]
	if !ok {
		return model.Item{}, postgres.ErrItemNotFound
	}
	return item, nil
}

func (s *stubItems) IncrementFulfillment(_ context.Context, itemID string) error {
	if _, ok := s.items[itemID]; !ok {
		return postgres.ErrItemNotFound
	}
	s.increments[itemID]++
	return nil
}

type stubCardRail struct {
	intent card.Intent
	err    error
	calls  int
}

func (s *stubCardRail) CreateIntent(_ context.Context, _ int64, items []model.Item) (card.Intent, error) {
	s.calls++
	if s.err != nil {
		return card.Intent{}, s.err
	}
	intent := s.intent
	if intent.TotalMinor == 0 {
		for _, item := range items {
			intent.TotalMinor += item.PriceMinor
		}
	}
	return intent, nil
}

type stubStableRail struct {
	intent    stablecoin.Intent
	createErr error

	status    stablecoin.Status
	statusErr error

	verifyStatus    stablecoin.Status
	verifyConfirmed bool
	verifyErr       error
	verifyCalls     int
}

func (s *stubStableRail) CreateIntent(_ context.Context, amountMinor int64, network string) (stablecoin.Intent, error) {
	if s.createErr != nil {
		return stablecoin.Intent{}, s.createErr
	}
	intent := s.intent
	intent.AmountMinor = amountMinor
	if intent.Network == "" {
		intent.Network = network
	}
	return intent, nil
}

func (s *stubStableRail) Status(_ context.Context, _ string) (stablecoin.Status, error) {
	if s.statusErr != nil {
		return stablecoin.Status{}, s.statusErr
	}
	return s.status, nil
}

func (s *stubStableRail) Verify(_ context.Context, _ string) (stablecoin.Status, bool, error) {
	s.verifyCalls++
	if s.verifyErr != nil {
		return stablecoin.Status{}, false, s.verifyErr
	}
	return s.verifyStatus, s.verifyConfirmed, nil
}

type stubNotifier struct {
	settled []model.Purchase
}

func (s *stubNotifier) PurchaseSettled(_ context.Context, purchase model.Purchase) {
	s.settled = append(s.settled, purchase)
}

type fixedFees struct{ rateBps int64 }

func (f fixedFees) Split(amountMinor int64) (int64, int64) {
	if amountMinor <= 0 {
		return 0, 0
	}
	fee := (amountMinor*f.rateBps + 5000) / 10000
	return fee, amountMinor - fee
}

type serviceFixture struct {
	service  *Service
	ledger   *stubLedger
	items    *stubItems
	card     *stubCardRail
	stable   *stubStableRail
	notifier *stubNotifier
}

func newFixture(items ...model.Item) (*serviceFixture, error) {
	f := &serviceFixture{
		ledger:   newStubLedger(),
		items:    newStubItems(items...),
		card:     &stubCardRail{intent: card.Intent{ProviderIntentID: "pi_1", ClientSecret: "cs_1"}},
		stable:   &stubStableRail{intent: stablecoin.Intent{ProviderIntentID: "bi_1", DepositAddress: "addr-1"}},
		notifier: &stubNotifier{},
	}

	service, err := NewService(f.ledger, f.items, f.card, f.stable, fixedFees{rateBps: 1000}, f.notifier, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}
	f.service = service
	return f, nil
}

func availableItem(id string, price int64, payee int64) model.Item {
	return model.Item{ID: id, Title: strings.ToUpper(id), PriceMinor: price, PayeeID: payee, Available: true}
}
