package stablecoin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/craftora/marketplace/internal/infra/bridge"
	"github.com/craftora/marketplace/internal/repo/redis"
)

var (
	ErrUnsupportedNetwork = errors.New("unsupported stablecoin network")
	ErrIntentNotFound     = errors.New("stablecoin intent not found")
)

type BridgeClient interface {
	CreateIntent(ctx context.Context, req bridge.CreateIntentRequest, idempotencyKey string) (bridge.Intent, error)
	GetIntent(ctx context.Context, intentID string) (bridge.IntentStatus, error)
}

type StatusCache interface {
	Get(ctx context.Context, intentID string) (redis.CachedIntentStatus, error)
	Set(ctx context.Context, intentID string, status redis.CachedIntentStatus) error
}

// Adapter drives the custodial bridge. Each checkout gets its own intent and
// a fresh idempotency key; the buyer transfers the exact amount to the
// returned deposit address off-platform.
type Adapter struct {
	bridge   BridgeClient
	cache    StatusCache
	currency string
	networks map[string]struct{}
}

type Intent struct {
	ProviderIntentID string
	DepositAddress   string
	Network          string
	AmountMinor      int64
}

// Status is the poll-facing view of an intent.
type Status struct {
	Status string
	TxRef  *string
}

func NewAdapter(bridgeClient BridgeClient, cache StatusCache, currency string, networks []string) (*Adapter, error) {
	if bridgeClient == nil {
		return nil, fmt.Errorf("bridge client is required")
	}
	if len(networks) == 0 {
		return nil, fmt.Errorf("at least one stablecoin network is required")
	}
	if currency == "" {
		currency = "USD"
	}

	allowed := make(map[string]struct{}, len(networks))
	for _, network := range networks {
		network = strings.ToLower(strings.TrimSpace(network))
		if network != "" {
			allowed[network] = struct{}{}
		}
	}

	return &Adapter{
		bridge:   bridgeClient,
		cache:    cache,
		currency: currency,
		networks: allowed,
	}, nil
}

func (a *Adapter) SupportsNetwork(network string) bool {
	_, ok := a.networks[strings.ToLower(strings.TrimSpace(network))]
	return ok
}

func (a *Adapter) CreateIntent(ctx context.Context, amountMinor int64, network string) (Intent, error) {
	if amountMinor <= 0 {
		return Intent{}, fmt.Errorf("stablecoin intent amount must be positive")
	}
	network = strings.ToLower(strings.TrimSpace(network))
	if !a.SupportsNetwork(network) {
		return Intent{}, ErrUnsupportedNetwork
	}

	intent, err := a.bridge.CreateIntent(ctx, bridge.CreateIntentRequest{
		AmountMinor: amountMinor,
		Currency:    a.currency,
		Network:     network,
	}, uuid.NewString())
	if err != nil {
		return Intent{}, err
	}

	return Intent{
		ProviderIntentID: intent.ID,
		DepositAddress:   intent.DepositAddress,
		Network:          intent.Network,
		AmountMinor:      amountMinor,
	}, nil
}

// Status reports the bridge's view of an intent. Terminal statuses are cached
// so the poll loop stops hitting the provider once an intent settles; pending
// intents always go to the provider.
func (a *Adapter) Status(ctx context.Context, intentID string) (Status, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Status{}, fmt.Errorf("intent id is required")
	}

	if a.cache != nil {
		if cached, err := a.cache.Get(ctx, intentID); err == nil {
			return Status{Status: cached.Status, TxRef: cached.TxRef}, nil
		}
	}

	status, err := a.bridge.GetIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, bridge.ErrIntentNotFound) {
			return Status{}, ErrIntentNotFound
		}
		return Status{}, err
	}

	if a.cache != nil && terminalStatus(status.Status) {
		_ = a.cache.Set(ctx, intentID, redis.CachedIntentStatus{
			Status: status.Status,
			TxRef:  status.TxRef,
		})
	}

	return Status{Status: status.Status, TxRef: status.TxRef}, nil
}

// Verify re-checks an advisory webhook confirmation against the authenticated
// status API. Only a bridge-confirmed status is trusted.
func (a *Adapter) Verify(ctx context.Context, intentID string) (Status, bool, error) {
	status, err := a.Status(ctx, intentID)
	if err != nil {
		return Status{}, false, err
	}

	confirmed := status.Status == bridge.StatusConfirmed || status.Status == bridge.StatusComplete
	return status, confirmed, nil
}

func terminalStatus(status string) bool {
	switch status {
	case bridge.StatusConfirmed, bridge.StatusComplete, bridge.StatusFailed:
		return true
	default:
		return false
	}
}
