package stablecoin

import (
	"context"
	"errors"
	"time"

	"github.com/craftora/marketplace/internal/infra/bridge"
)

// ErrCountdownExpired means the countdown elapsed with the intent still
// pending. The ledger row is untouched; the expiry sweeper fails it later if
// confirmation never arrives.
var ErrCountdownExpired = errors.New("stablecoin countdown expired")

type StatusSource interface {
	Status(ctx context.Context, intentID string) (Status, error)
}

// Poller watches one intent until it settles or the countdown runs out.
// Cancelling the context stops it immediately, so an abandoned checkout never
// leaks a ticking loop.
type Poller struct {
	source    StatusSource
	interval  time.Duration
	countdown time.Duration
}

func NewPoller(source StatusSource, interval, countdown time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if countdown <= 0 {
		countdown = 30 * time.Minute
	}

	return &Poller{
		source:    source,
		interval:  interval,
		countdown: countdown,
	}
}

// Wait polls until the intent reaches a terminal status. Transient status
// errors do not abort the loop; the next tick retries.
func (p *Poller) Wait(ctx context.Context, intentID string) (Status, error) {
	if p.source == nil {
		return Status{}, errors.New("poller status source is nil")
	}

	deadline := time.NewTimer(p.countdown)
	defer deadline.Stop()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-deadline.C:
			return Status{}, ErrCountdownExpired
		case <-ticker.C:
			status, err := p.source.Status(ctx, intentID)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return Status{}, err
				}
				continue
			}
			switch status.Status {
			case bridge.StatusConfirmed, bridge.StatusComplete, bridge.StatusFailed:
				return status, nil
			}
		}
	}
}
