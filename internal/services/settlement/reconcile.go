package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/infra/bridge"
	"github.com/craftora/marketplace/internal/infra/psp"
	"github.com/craftora/marketplace/internal/repo/postgres"
	"github.com/craftora/marketplace/internal/services/rails/chain"
)

// ApplyPSPEvent advances every pending row bound to the event's intent. The
// batch update is one statement; redelivery matches zero rows and returns 0.
func (s *Service) ApplyPSPEvent(ctx context.Context, event psp.WebhookEvent) (int, error) {
	switch event.Type {
	case psp.EventIntentSucceeded:
		settled, err := s.ledger.CompleteByCorrelation(ctx, enums.PSPRails(), event.IntentID, nil)
		if err != nil {
			return 0, fmt.Errorf("complete card purchases: %w", err)
		}
		for _, purchase := range settled {
			s.finalizeCompleted(ctx, purchase)
		}
		s.metrics.IncWebhookEvent("psp", outcome(len(settled)))
		return len(settled), nil

	case psp.EventIntentFailed:
		failed, err := s.ledger.FailByCorrelation(ctx, enums.PSPRails(), event.IntentID)
		if err != nil {
			return 0, fmt.Errorf("fail card purchases: %w", err)
		}
		for _, purchase := range failed {
			s.metrics.IncSettlement(string(purchase.Rail), string(enums.PurchaseStatusFailed))
		}
		s.metrics.IncWebhookEvent("psp", outcome(len(failed)))
		return len(failed), nil

	default:
		s.metrics.IncWebhookEvent("psp", "ignored")
		return 0, nil
	}
}

// ApplyBridgeEvent handles an unsigned bridge delivery. The bridge gives no
// verifiable delivery guarantee, so a confirmation is only advisory: the
// intent is re-checked over the authenticated status API before any row
// completes. Failures are applied directly; failing a row a forger could at
// worst fail is the cheaper side of the asymmetry.
func (s *Service) ApplyBridgeEvent(ctx context.Context, event bridge.WebhookEvent) (int, error) {
	stableRail := []enums.Rail{enums.RailStablecoin}

	switch event.Type {
	case bridge.EventPaymentConfirmed:
		status, confirmed, err := s.stable.Verify(ctx, event.IntentID)
		if err != nil {
			return 0, fmt.Errorf("verify bridge intent: %w", err)
		}
		if !confirmed {
			s.logger.Warn("bridge webhook confirmation did not verify",
				zap.String("intent_id", event.IntentID),
				zap.String("bridge_status", status.Status),
			)
			s.metrics.IncWebhookEvent("bridge", "rejected")
			return 0, nil
		}

		txRef := status.TxRef
		if txRef == nil {
			txRef = event.TxRef
		}
		settled, err := s.ledger.CompleteByCorrelation(ctx, stableRail, event.IntentID, txRef)
		if err != nil {
			return 0, fmt.Errorf("complete stablecoin purchase: %w", err)
		}
		for _, purchase := range settled {
			s.finalizeCompleted(ctx, purchase)
		}
		s.metrics.IncWebhookEvent("bridge", outcome(len(settled)))
		return len(settled), nil

	case bridge.EventPaymentFailed:
		failed, err := s.ledger.FailByCorrelation(ctx, stableRail, event.IntentID)
		if err != nil {
			return 0, fmt.Errorf("fail stablecoin purchase: %w", err)
		}
		for _, purchase := range failed {
			s.metrics.IncSettlement(string(purchase.Rail), string(enums.PurchaseStatusFailed))
		}
		s.metrics.IncWebhookEvent("bridge", outcome(len(failed)))
		return len(failed), nil

	default:
		s.metrics.IncWebhookEvent("bridge", "ignored")
		return 0, nil
	}
}

// IntentStatusResult is the poll-facing status of one checkout intent.
type IntentStatusResult struct {
	Status        string
	SettlementRef *string
}

// IntentStatus reports the status of a checkout intent by its correlation
// ref. Pending stablecoin intents are re-checked against the bridge so the
// poll loop sees confirmations before the webhook lands.
func (s *Service) IntentStatus(ctx context.Context, intentID string) (IntentStatusResult, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return IntentStatusResult{}, ErrValidation
	}

	allRails := []enums.Rail{enums.RailCard, enums.RailWalletPay, enums.RailStablecoin}
	rows, err := s.ledger.FindByCorrelation(ctx, allRails, intentID)
	if err != nil {
		return IntentStatusResult{}, fmt.Errorf("find purchases by intent: %w", err)
	}
	if len(rows) == 0 {
		return IntentStatusResult{}, ErrIntentNotFound
	}

	if rows[0].Rail == enums.RailStablecoin && rows[0].Status == enums.PurchaseStatusPending {
		status, err := s.stable.Status(ctx, intentID)
		if err == nil {
			return IntentStatusResult{Status: status.Status, SettlementRef: status.TxRef}, nil
		}
		s.logger.Warn("bridge status lookup failed, falling back to ledger",
			zap.String("intent_id", intentID), zap.Error(err))
	}

	return IntentStatusResult{
		Status:        pollStatus(rows),
		SettlementRef: rows[0].ChainTxRef,
	}, nil
}

// RecordTransfer persists a settled chain payment as a completed purchase,
// deduplicated on the transaction signature. Side effects fire only when the
// row is new. Satisfies the chain rail's recorder contract.
func (s *Service) RecordTransfer(ctx context.Context, req chain.RecordRequest) error {
	_, _, err := s.RecordChainPurchase(ctx, req)
	return err
}

func (s *Service) RecordChainPurchase(ctx context.Context, req chain.RecordRequest) (model.Purchase, bool, error) {
	if req.BuyerID <= 0 || strings.TrimSpace(req.ItemID) == "" || strings.TrimSpace(req.Signature) == "" {
		return model.Purchase{}, false, ErrValidation
	}

	item, err := s.items.FindByID(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, postgres.ErrItemNotFound) {
			return model.Purchase{}, false, ErrItemNotFound
		}
		return model.Purchase{}, false, fmt.Errorf("load item %s: %w", req.ItemID, err)
	}

	// The recorded gross is always the item price; the reported amount is
	// client-supplied and cannot set it. Below-price reports are
	// underpayments and not recordable.
	if req.AmountMinor > 0 && req.AmountMinor < item.PriceMinor {
		return model.Purchase{}, false, ErrValidation
	}
	amount := item.PriceMinor
	fee, payout := s.fees.Split(amount)

	var network *string
	if trimmed := strings.TrimSpace(req.Network); trimmed != "" {
		network = &trimmed
	}

	purchase, created, err := s.ledger.InsertCompleted(ctx, postgres.PendingRow{
		BuyerID:     req.BuyerID,
		ItemID:      item.ID,
		Amount:      amount,
		PlatformFee: fee,
		PayeePayout: payout,
		Rail:        enums.RailChain,
		RailNetwork: network,
	}, req.Signature)
	if err != nil {
		return model.Purchase{}, false, err
	}

	if created {
		s.finalizeCompleted(ctx, purchase)
	}

	return purchase, created, nil
}

// finalizeCompleted runs the once-per-completed-row side effects: the atomic
// fulfillment bump, the notification pair, and the settlement counter.
func (s *Service) finalizeCompleted(ctx context.Context, purchase model.Purchase) {
	if err := s.items.IncrementFulfillment(ctx, purchase.ItemID); err != nil {
		s.logger.Error("increment item fulfillment",
			zap.String("item_id", purchase.ItemID),
			zap.String("purchase_id", purchase.ID),
			zap.Error(err),
		)
	}

	if s.notifier != nil {
		s.notifier.PurchaseSettled(ctx, purchase)
	}

	s.metrics.IncSettlement(string(purchase.Rail), string(enums.PurchaseStatusCompleted))
}

func pollStatus(rows []model.Purchase) string {
	completed := 0
	failed := 0
	for _, row := range rows {
		switch row.Status {
		case enums.PurchaseStatusCompleted, enums.PurchaseStatusRefunded:
			completed++
		case enums.PurchaseStatusFailed:
			failed++
		}
	}

	switch {
	case failed > 0:
		return bridge.StatusFailed
	case completed == len(rows):
		return bridge.StatusComplete
	default:
		return bridge.StatusPending
	}
}

func outcome(applied int) string {
	if applied > 0 {
		return "applied"
	}
	return "noop"
}
