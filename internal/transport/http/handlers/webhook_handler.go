package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/infra/bridge"
	"github.com/craftora/marketplace/internal/infra/psp"
	"github.com/craftora/marketplace/internal/transport/http/dto"
	httperrors "github.com/craftora/marketplace/internal/transport/http/errors"
)

const maxWebhookBody = 1 << 20

type PSPVerifier interface {
	VerifyWebhook(header string, body []byte) (psp.WebhookEvent, error)
}

type WebhookApplier interface {
	ApplyPSPEvent(ctx context.Context, event psp.WebhookEvent) (int, error)
	ApplyBridgeEvent(ctx context.Context, event bridge.WebhookEvent) (int, error)
}

type WebhookHandler struct {
	verifier    PSPVerifier
	settlements WebhookApplier
	log         *zap.Logger
}

func NewWebhookHandler(verifier PSPVerifier, settlements WebhookApplier, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{verifier: verifier, settlements: settlements, log: log}
}

// PSP handles signed provider deliveries. The signature is checked over the
// raw body before anything is parsed; a failed check mutates nothing and the
// provider redelivers on its own schedule.
func (h *WebhookHandler) PSP(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil || h.settlements == nil {
		writeInternal(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeBadRequest(w, "unreadable request body")
		return
	}

	event, err := h.verifier.VerifyWebhook(r.Header.Get(psp.SignatureHeader), body)
	if err != nil {
		switch {
		case errors.Is(err, psp.ErrInvalidSignature):
			h.log.Warn("psp webhook signature rejected", zap.Error(err))
			writeUnauthorized(w)
		case errors.Is(err, psp.ErrMalformedEvent):
			writeBadRequest(w, "malformed webhook event")
		default:
			h.log.Error("psp webhook verification", zap.Error(err))
			writeInternal(w)
		}
		return
	}

	applied, err := h.settlements.ApplyPSPEvent(r.Context(), event)
	if err != nil {
		h.log.Error("apply psp webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		writeInternal(w)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookAckResponse{OK: true, Applied: applied})
}

// Bridge handles unsigned bridge deliveries. Confirmations are advisory and
// are re-verified against the bridge's authenticated API downstream.
func (h *WebhookHandler) Bridge(w http.ResponseWriter, r *http.Request) {
	if h.settlements == nil {
		writeInternal(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeBadRequest(w, "unreadable request body")
		return
	}

	event, err := bridge.ParseWebhook(body)
	if err != nil {
		writeBadRequest(w, "malformed webhook event")
		return
	}

	applied, err := h.settlements.ApplyBridgeEvent(r.Context(), event)
	if err != nil {
		h.log.Error("apply bridge webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		writeInternal(w)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookAckResponse{OK: true, Applied: applied})
}
