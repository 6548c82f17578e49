// Package redis implements the cooldown store on a shared Redis instance so
// several watcher processes can deduplicate against the same state.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore implements dedup.Store on Redis. SET NX with a TTL equal to
// the cooldown window gives exactly the required semantics: the first
// acceptance plants the key, duplicates inside the window fail to plant it
// and never extend it, and expiry is handled by Redis itself.
type CooldownStore struct {
	client *redis.Client
}

func NewCooldownStore(client *redis.Client) *CooldownStore {
	return &CooldownStore{client: client}
}

// Accept implements dedup.Store.
func (s *CooldownStore) Accept(ctx context.Context, key string, at time.Time, window time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, CooldownKey(key), at.UnixMilli(), window).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown setnx: %w", err)
	}
	return ok, nil
}
