package apiapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/config"
	pgrepo "github.com/craftora/marketplace/internal/repo/postgres"
	authsvc "github.com/craftora/marketplace/internal/services/auth"
	ratesvc "github.com/craftora/marketplace/internal/services/rate"
	settlementsvc "github.com/craftora/marketplace/internal/services/settlement"
	"github.com/craftora/marketplace/internal/transport/http/handlers"
)

type Dependencies struct {
	SettlementService *settlementsvc.Service
	PayoutAccounts    *pgrepo.PayoutAccountRepo
	PSPVerifier       handlers.PSPVerifier
	RateLimiter       *ratesvc.Limiter
	JWTManager        *authsvc.JWTManager
	MetricsHandler    http.Handler
	Logger            *zap.Logger
	Config            config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	checkoutHandler := handlers.NewCheckoutHandler(deps.SettlementService, deps.RateLimiter, deps.Logger)
	webhookHandler := handlers.NewWebhookHandler(deps.PSPVerifier, deps.SettlementService, deps.Logger)
	payoutHandler := handlers.NewPayoutHandler(deps.PayoutAccounts, deps.Logger)
	authMW := AuthMiddleware(deps.JWTManager, deps.Logger)

	r.Get("/healthz", healthHandler.Check)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Provider callbacks authenticate through their own channel: the PSP by
	// delivery signature, the bridge by re-verification downstream.
	r.Post("/webhooks/psp", webhookHandler.PSP)
	r.Post("/webhooks/bridge", webhookHandler.Bridge)

	r.Route("/v1", func(r chi.Router) {
		r.With(authMW).Post("/checkout/intents", checkoutHandler.Create)
		r.Get("/checkout/intents/{id}/status", checkoutHandler.Status)
		r.With(authMW).Post("/checkout/chain/record", checkoutHandler.RecordChain)
		r.With(authMW).Post("/payouts/onboard", payoutHandler.Onboard)
	})
}
