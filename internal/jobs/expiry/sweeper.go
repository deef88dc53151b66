package expiry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/craftora/marketplace/internal/domain/enums"
	"github.com/craftora/marketplace/internal/domain/model"
	"github.com/craftora/marketplace/internal/metrics"
)

type StaleStore interface {
	FailStalePending(ctx context.Context, rails []enums.Rail, cutoff time.Time) ([]model.Purchase, error)
}

// Sweeper periodically fails pending rows whose age exceeds the checkout
// expiry window plus a grace period. Without it a stablecoin intent whose
// confirmation never arrives would stay pending forever.
type Sweeper struct {
	store   StaleStore
	expiry  time.Duration
	grace   time.Duration
	metrics metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

func NewSweeper(store StaleStore, expiry, grace time.Duration, recorder metrics.Recorder, logger *zap.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("stale store is required")
	}
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	if grace < 0 {
		grace = 0
	}
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		store:   store,
		expiry:  expiry,
		grace:   grace,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *Sweeper) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = 5 * time.Minute
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("expiry sweep", zap.Error(err))
			}
		}
	}
}

// Sweep fails one batch of stale rows. Only the stablecoin rail is swept:
// card and wallet-pay intents can still succeed long after the window (slow
// bank redirects, delayed webhook delivery), and a row failed here can never
// reopen, so sweeping them would strand a charged buyer. Chain rows are
// inserted already completed and never sit pending.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.now().Add(-(s.expiry + s.grace))
	rails := []enums.Rail{enums.RailStablecoin}

	failed, err := s.store.FailStalePending(ctx, rails, cutoff)
	if err != nil {
		return fmt.Errorf("fail stale pending rows: %w", err)
	}

	for _, purchase := range failed {
		s.metrics.IncSettlement(string(purchase.Rail), "failed")
		s.logger.Info("expired pending purchase failed",
			zap.String("purchase_id", purchase.ID),
			zap.String("rail", string(purchase.Rail)),
			zap.Time("created_at", purchase.CreatedAt),
		)
	}

	return nil
}
