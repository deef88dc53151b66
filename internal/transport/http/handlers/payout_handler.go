package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/repo/postgres"
	authsvc "github.com/craftora/marketplace/internal/services/auth"
	"github.com/craftora/marketplace/internal/transport/http/dto"
	httperrors "github.com/craftora/marketplace/internal/transport/http/errors"
)

type PayoutAccountStore interface {
	Ensure(ctx context.Context, payeeID int64, accountRef string) (postgres.PayoutAccountRecord, bool, error)
}

type PayoutHandler struct {
	accounts PayoutAccountStore
	log      *zap.Logger
}

func NewPayoutHandler(accounts PayoutAccountStore, log *zap.Logger) *PayoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PayoutHandler{accounts: accounts, log: log}
}

// Onboard binds the caller's payout sub-account ref. Repeat calls are no-ops;
// the stored ref never changes once set, so card splits stay stable.
func (h *PayoutHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	if h.accounts == nil {
		writeInternal(w)
		return
	}

	var req dto.PayoutOnboardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := validatePayload(&req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	rec, created, err := h.accounts.Ensure(r.Context(), identity.BuyerID, req.AccountRef)
	if err != nil {
		h.log.Error("ensure payout account", zap.Int64("payee_id", identity.BuyerID), zap.Error(err))
		writeInternal(w)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httperrors.Write(w, status, dto.PayoutOnboardResponse{
		PayeeID:    rec.PayeeID,
		AccountRef: rec.AccountRef,
		Created:    created,
	})
}
