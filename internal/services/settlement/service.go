package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/metrics"
	"github.com/craftora/marketplace/internal/repo/postgres"
	"github.com/craftora/marketplace/internal/services/rails/card"
	"github.com/craftora/marketplace/internal/services/rails/stablecoin"
)

var (
	ErrValidation      = errors.New("invalid checkout payload")
	ErrItemNotFound    = errors.New("item not found")
	ErrItemUnavailable = errors.New("item is not purchasable")
	ErrIntentNotFound  = errors.New("checkout intent not found")
)

type Ledger interface {
	InsertPending(ctx context.Context, rows []postgres.PendingRow) ([]model.Purchase, error)
	AttachCorrelation(ctx context.Context, ids []string, rail enums.Rail, ref string) error
	FailByIDs(ctx context.Context, ids []string) (int64, error)
	CompleteByCorrelation(ctx context.Context, rails []enums.Rail, ref string, chainTxRef *string) ([]model.Purchase, error)
	FailByCorrelation(ctx context.Context, rails []enums.Rail, ref string) ([]model.Purchase, error)
	InsertCompleted(ctx context.Context, row postgres.PendingRow, chainTxRef string) (model.Purchase, bool, error)
	FindByCorrelation(ctx context.Context, rails []enums.Rail, ref string) ([]model.Purchase, error)
}

type ItemStore interface {
	FindByID(ctx context.Context, itemID string) (model.Item, error)
	IncrementFulfillment(ctx context.Context, itemID string) error
}

type CardRail interface {
	CreateIntent(ctx context.Context, buyerID int64, items []model.Item) (card.Intent, error)
}

type StablecoinRail interface {
	CreateIntent(ctx context.Context, amountMinor int64, network string) (stablecoin.Intent, error)
	Status(ctx context.Context, intentID string) (stablecoin.Status, error)
	Verify(ctx context.Context, intentID string) (stablecoin.Status, bool, error)
}

type FeeSplitter interface {
	Split(amountMinor int64) (int64, int64)
}

type Notifier interface {
	PurchaseSettled(ctx context.Context, purchase model.Purchase)
}

// Service is the single entry point for checkouts and the convergence point
// for confirmations. All rails end up as guarded transitions on the same
// ledger; the guards make every confirmation path idempotent.
type Service struct {
	ledger   Ledger
	items    ItemStore
	card     CardRail
	stable   StablecoinRail
	fees     FeeSplitter
	notifier Notifier
	metrics  metrics.Recorder
	logger   *zap.Logger
}

func NewService(
	ledger Ledger,
	items ItemStore,
	cardRail CardRail,
	stableRail StablecoinRail,
	feeSplitter FeeSplitter,
	notifier Notifier,
	recorder metrics.Recorder,
	logger *zap.Logger,
) (*Service, error) {
	if ledger == nil || items == nil || cardRail == nil || stableRail == nil || feeSplitter == nil {
		return nil, fmt.Errorf("settlement service dependencies are incomplete")
	}
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		ledger:   ledger,
		items:    items,
		card:     cardRail,
		stable:   stableRail,
		fees:     feeSplitter,
		notifier: notifier,
		metrics:  recorder,
		logger:   logger,
	}, nil
}

type CheckoutRequest struct {
	Rail    enums.Rail
	ItemIDs []string
	Network string
}

type CheckoutResult struct {
	Rail             enums.Rail
	ProviderIntentID string
	PurchaseIDs      []string
	TotalMinor       int64

	// Card/wallet-pay only.
	ClientSecret string

	// Stablecoin only.
	DepositAddress string
	Network        string
}

// Checkout opens pending ledger rows, then calls the provider, then binds the
// provider intent id. If the provider call fails the rows are failed
// immediately so no pending row outlives a dead intent.
func (s *Service) Checkout(ctx context.Context, buyerID int64, req CheckoutRequest) (CheckoutResult, error) {
	if buyerID <= 0 {
		return CheckoutResult{}, ErrValidation
	}
	if len(req.ItemIDs) == 0 || !req.Rail.Valid() || req.Rail == enums.RailChain {
		return CheckoutResult{}, ErrValidation
	}
	if req.Rail == enums.RailStablecoin && len(req.ItemIDs) != 1 {
		return CheckoutResult{}, ErrValidation
	}

	items, err := s.loadItems(ctx, req.ItemIDs)
	if err != nil {
		return CheckoutResult{}, err
	}

	var network *string
	if req.Rail == enums.RailStablecoin {
		trimmed := strings.ToLower(strings.TrimSpace(req.Network))
		if trimmed == "" {
			return CheckoutResult{}, ErrValidation
		}
		network = &trimmed
	}

	rows := make([]postgres.PendingRow, 0, len(items))
	for _, item := range items {
		fee, payout := s.fees.Split(item.PriceMinor)
		rows = append(rows, postgres.PendingRow{
			BuyerID:     buyerID,
			ItemID:      item.ID,
			Amount:      item.PriceMinor,
			PlatformFee: fee,
			PayeePayout: payout,
			Rail:        req.Rail,
			RailNetwork: network,
		})
	}

	pending, err := s.ledger.InsertPending(ctx, rows)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("open pending rows: %w", err)
	}
	ids := purchaseIDs(pending)

	switch req.Rail {
	case enums.RailStablecoin:
		return s.finishStablecoinCheckout(ctx, items[0], ids, *network)
	default:
		return s.finishCardCheckout(ctx, buyerID, req.Rail, items, ids)
	}
}

func (s *Service) finishCardCheckout(
	ctx context.Context,
	buyerID int64,
	rail enums.Rail,
	items []model.Item,
	ids []string,
) (CheckoutResult, error) {
	intent, err := s.card.CreateIntent(ctx, buyerID, items)
	if err != nil {
		s.failOrphanedRows(ctx, rail, ids)
		return CheckoutResult{}, err
	}

	if err := s.ledger.AttachCorrelation(ctx, ids, rail, intent.ProviderIntentID); err != nil {
		return CheckoutResult{}, fmt.Errorf("bind card correlation: %w", err)
	}

	return CheckoutResult{
		Rail:             rail,
		ProviderIntentID: intent.ProviderIntentID,
		PurchaseIDs:      ids,
		TotalMinor:       intent.TotalMinor,
		ClientSecret:     intent.ClientSecret,
	}, nil
}

func (s *Service) finishStablecoinCheckout(
	ctx context.Context,
	item model.Item,
	ids []string,
	network string,
) (CheckoutResult, error) {
	intent, err := s.stable.CreateIntent(ctx, item.PriceMinor, network)
	if err != nil {
		s.failOrphanedRows(ctx, enums.RailStablecoin, ids)
		return CheckoutResult{}, err
	}

	if err := s.ledger.AttachCorrelation(ctx, ids, enums.RailStablecoin, intent.ProviderIntentID); err != nil {
		return CheckoutResult{}, fmt.Errorf("bind stablecoin correlation: %w", err)
	}

	return CheckoutResult{
		Rail:             enums.RailStablecoin,
		ProviderIntentID: intent.ProviderIntentID,
		PurchaseIDs:      ids,
		TotalMinor:       intent.AmountMinor,
		DepositAddress:   intent.DepositAddress,
		Network:          intent.Network,
	}, nil
}

func (s *Service) loadItems(ctx context.Context, itemIDs []string) ([]model.Item, error) {
	seen := make(map[string]struct{}, len(itemIDs))
	items := make([]model.Item, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		itemID = strings.TrimSpace(itemID)
		if itemID == "" {
			return nil, ErrValidation
		}
		if _, dup := seen[itemID]; dup {
			return nil, ErrValidation
		}
		seen[itemID] = struct{}{}

		item, err := s.items.FindByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, postgres.ErrItemNotFound) {
				return nil, ErrItemNotFound
			}
			return nil, fmt.Errorf("load item %s: %w", itemID, err)
		}
		if !item.Available {
			return nil, ErrItemUnavailable
		}
		items = append(items, item)
	}

	return items, nil
}

func (s *Service) failOrphanedRows(ctx context.Context, rail enums.Rail, ids []string) {
	failed, err := s.ledger.FailByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("fail orphaned pending rows", zap.Strings("purchase_ids", ids), zap.Error(err))
		return
	}
	for i := int64(0); i < failed; i++ {
		s.metrics.IncSettlement(string(rail), string(enums.PurchaseStatusFailed))
	}
}

func purchaseIDs(purchases []model.Purchase) []string {
	ids := make([]string, 0, len(purchases))
	for _, p := range purchases {
		ids = append(ids, p.ID)
	}
	return ids
}
