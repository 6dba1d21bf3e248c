package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// mirrorTTL caps how long a best-price entry survives without a refresh, so a
// crashed writer cannot leave the mirror permanently stale.
const mirrorTTL = 24 * time.Hour

// BestPriceCache implements domain.BestPriceCache using Redis string values.
// Each event's derived best prices are stored as JSON at key
// "best:{eventKey}". The engine writes through on every recompute and
// deletes on group dissolution; external readers treat the mirror as
// advisory.
type BestPriceCache struct {
	rdb *redis.Client
}

// NewBestPriceCache creates a BestPriceCache backed by the given Client.
func NewBestPriceCache(c *Client) *BestPriceCache {
	return &BestPriceCache{rdb: c.Underlying()}
}

func bestKey(key domain.EventKey) string {
	return "best:" + string(key)
}

// SetBest stores the derived best prices for an event.
func (bc *BestPriceCache) SetBest(ctx context.Context, best domain.BestPrices) error {
	payload, err := json.Marshal(best)
	if err != nil {
		return fmt.Errorf("redis: marshal best %s: %w", best.Key, err)
	}
	if err := bc.rdb.Set(ctx, bestKey(best.Key), payload, mirrorTTL).Err(); err != nil {
		return fmt.Errorf("redis: set best %s: %w", best.Key, err)
	}
	return nil
}

// GetBest retrieves the mirrored best prices for an event. It returns
// domain.ErrNotFound when the key does not exist.
func (bc *BestPriceCache) GetBest(ctx context.Context, key domain.EventKey) (domain.BestPrices, error) {
	raw, err := bc.rdb.Get(ctx, bestKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BestPrices{}, domain.ErrNotFound
		}
		return domain.BestPrices{}, fmt.Errorf("redis: get best %s: %w", key, err)
	}

	var best domain.BestPrices
	if err := json.Unmarshal(raw, &best); err != nil {
		return domain.BestPrices{}, fmt.Errorf("redis: unmarshal best %s: %w", key, err)
	}
	return best, nil
}

// Invalidate removes the mirrored entry for an event. Deleting a key that is
// already gone is not an error.
func (bc *BestPriceCache) Invalidate(ctx context.Context, key domain.EventKey) error {
	if err := bc.rdb.Del(ctx, bestKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate best %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BestPriceCache = (*BestPriceCache)(nil)
