package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/infra/bridge"
	"github.com/craftora/marketplace/internal/infra/psp"
	"github.com/craftora/marketplace/internal/repo/postgres"
	authsvc "github.com/craftora/marketplace/internal/services/auth"
	"github.com/craftora/marketplace/internal/services/rails/chain"
	"github.com/craftora/marketplace/internal/services/rails/stablecoin"
	"github.com/craftora/marketplace/internal/services/settlement"
	"github.com/craftora/marketplace/internal/transport/http/dto"
	httperrors "github.com/craftora/marketplace/internal/transport/http/errors"
)

type SettlementService interface {
	Checkout(ctx context.Context, buyerID int64, req settlement.CheckoutRequest) (settlement.CheckoutResult, error)
	IntentStatus(ctx context.Context, intentID string) (settlement.IntentStatusResult, error)
	RecordChainPurchase(ctx context.Context, req chain.RecordRequest) (model.Purchase, bool, error)
}

type CheckoutLimiter interface {
	AllowCheckout(ctx context.Context, buyerID int64) (int64, bool, error)
}

type CheckoutHandler struct {
	settlements SettlementService
	limiter     CheckoutLimiter
	log         *zap.Logger
}

func NewCheckoutHandler(settlements SettlementService, limiter CheckoutLimiter, log *zap.Logger) *CheckoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutHandler{settlements: settlements, limiter: limiter, log: log}
}

// Create opens a checkout intent on the requested rail. The chain rail never
// passes through here; chain payments are recorded after the fact.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	if h.settlements == nil {
		writeInternal(w)
		return
	}

	if h.limiter != nil {
		retryAfter, allowed, err := h.limiter.AllowCheckout(r.Context(), identity.BuyerID)
		if err != nil {
			h.log.Error("checkout rate limit check", zap.Int64("buyer_id", identity.BuyerID), zap.Error(err))
			writeInternal(w)
			return
		}
		if !allowed {
			httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
				Code:          "RATE_LIMITED",
				Message:       "too many checkout attempts",
				RetryAfterSec: retryAfter,
			})
			return
		}
	}

	var req dto.CheckoutCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := validatePayload(&req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := h.settlements.Checkout(r.Context(), identity.BuyerID, settlement.CheckoutRequest{
		Rail:    enums.Rail(req.Rail),
		ItemIDs: req.ItemIDs,
		Network: req.Network,
	})
	if err != nil {
		h.writeCheckoutError(w, identity.BuyerID, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, dto.CheckoutCreateResponse{
		Rail:           string(result.Rail),
		IntentID:       result.ProviderIntentID,
		PurchaseIDs:    result.PurchaseIDs,
		TotalMinor:     result.TotalMinor,
		ClientSecret:   result.ClientSecret,
		DepositAddress: result.DepositAddress,
		Network:        result.Network,
	})
}

// Status reports the poll-facing status of one checkout intent.
func (h *CheckoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.settlements == nil {
		writeInternal(w)
		return
	}

	intentID := chi.URLParam(r, "id")
	result, err := h.settlements.IntentStatus(r.Context(), intentID)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrValidation):
			writeBadRequest(w, "intent id is required")
		case errors.Is(err, settlement.ErrIntentNotFound):
			writeNotFound(w, "checkout intent not found")
		default:
			h.log.Error("intent status lookup", zap.String("intent_id", intentID), zap.Error(err))
			writeInternal(w)
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.IntentStatusResponse{
		IntentID:      intentID,
		Status:        result.Status,
		SettlementRef: result.SettlementRef,
	})
}

// RecordChain persists an already-settled chain transfer as a completed
// purchase, deduplicated on the transaction signature.
func (h *CheckoutHandler) RecordChain(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	if h.settlements == nil {
		writeInternal(w)
		return
	}

	var req dto.ChainRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := validatePayload(&req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	purchase, created, err := h.settlements.RecordChainPurchase(r.Context(), chain.RecordRequest{
		BuyerID:     identity.BuyerID,
		ItemID:      req.ItemID,
		AmountMinor: req.AmountMinor,
		Network:     req.Network,
		Signature:   req.Signature,
	})
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrValidation):
			writeBadRequest(w, "invalid chain record payload")
		case errors.Is(err, settlement.ErrItemNotFound):
			writeNotFound(w, "item not found")
		case errors.Is(err, postgres.ErrChainTxConflict):
			writeConflict(w, "transaction signature already recorded for another purchase")
		default:
			h.log.Error("record chain purchase",
				zap.Int64("buyer_id", identity.BuyerID),
				zap.String("item_id", req.ItemID),
				zap.Error(err),
			)
			writeInternal(w)
		}
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	httperrors.Write(w, status, dto.ChainRecordResponse{
		PurchaseID:      purchase.ID,
		Status:          string(purchase.Status),
		AlreadyRecorded: !created,
	})
}

func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, buyerID int64, err error) {
	var pspErr *psp.ProviderError
	var bridgeErr *bridge.ProviderError

	switch {
	case errors.Is(err, settlement.ErrValidation):
		writeBadRequest(w, "invalid checkout payload")
	case errors.Is(err, settlement.ErrItemNotFound):
		writeNotFound(w, "item not found")
	case errors.Is(err, settlement.ErrItemUnavailable):
		writeConflict(w, "item is not purchasable")
	case errors.Is(err, stablecoin.ErrUnsupportedNetwork):
		writeBadRequest(w, "unsupported stablecoin network")
	case errors.As(err, &pspErr):
		writeProviderError(w, pspErr.Message)
	case errors.As(err, &bridgeErr):
		writeProviderError(w, bridgeErr.Message)
	default:
		h.log.Error("checkout", zap.Int64("buyer_id", buyerID), zap.Error(err))
		writeInternal(w)
	}
}
