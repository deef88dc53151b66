package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrIntentStatusMiss = errors.New("intent status not cached")

// IntentCacheRepo keeps recent bridge intent statuses so the 10s poll loop
// does not hammer the provider. Entries are only cached for terminal
// statuses; pending intents are always re-queried.
type IntentCacheRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

type CachedIntentStatus struct {
	Status string  `json:"status"`
	TxRef  *string `json:"tx_ref,omitempty"`
}

func NewIntentCacheRepo(client *goredis.Client, ttl time.Duration) *IntentCacheRepo {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &IntentCacheRepo{client: client, ttl: ttl}
}

func (r *IntentCacheRepo) Get(ctx context.Context, intentID string) (CachedIntentStatus, error) {
	if r.client == nil {
		return CachedIntentStatus{}, fmt.Errorf("redis client is nil")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return CachedIntentStatus{}, fmt.Errorf("intent id is required")
	}

	raw, err := r.client.Get(ctx, intentStatusKey(intentID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return CachedIntentStatus{}, ErrIntentStatusMiss
		}
		return CachedIntentStatus{}, fmt.Errorf("get cached intent status: %w", err)
	}

	var cached CachedIntentStatus
	if err := json.Unmarshal(raw, &cached); err != nil {
		return CachedIntentStatus{}, ErrIntentStatusMiss
	}

	return cached, nil
}

func (r *IntentCacheRepo) Set(ctx context.Context, intentID string, status CachedIntentStatus) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" || status.Status == "" {
		return fmt.Errorf("invalid intent status payload")
	}

	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal intent status: %w", err)
	}
	if err := r.client.Set(ctx, intentStatusKey(intentID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache intent status: %w", err)
	}

	return nil
}

func intentStatusKey(intentID string) string {
	return "bridge:intent:" + intentID
}
