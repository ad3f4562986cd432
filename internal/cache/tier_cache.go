package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/perrona-loyalty/internal/domain"
	"github.com/diagnosis/perrona-loyalty/internal/repo/postgres"
	"github.com/diagnosis/perrona-loyalty/pkg/logger"
)

const tierCatalogKey = "loyalty:tiers:active"

// TierCache wraps a TierRepo with a Redis read-through cache. The catalog
// is immutable during an operator session, so a short TTL is enough; cache
// failures fall back to the database.
type TierCache struct {
	inner postgres.TierRepo
	rdb   *redis.Client
	ttl   time.Duration
}

func NewTierCache(inner postgres.TierRepo, rdb *redis.Client, ttl time.Duration) *TierCache {
	return &TierCache{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *TierCache) ListActive(ctx context.Context) ([]domain.DiscountTier, error) {
	if c.rdb != nil {
		if raw, err := c.rdb.Get(ctx, tierCatalogKey).Bytes(); err == nil {
			var tiers []domain.DiscountTier
			if err := json.Unmarshal(raw, &tiers); err == nil {
				return tiers, nil
			}
			// Corrupt entry: drop it and fall through to the database.
			c.rdb.Del(ctx, tierCatalogKey)
		} else if err != redis.Nil {
			logger.WarnContext(ctx, "Tier cache read failed", "error", err)
		}
	}

	tiers, err := c.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if c.rdb != nil {
		if raw, err := json.Marshal(tiers); err == nil {
			if err := c.rdb.Set(ctx, tierCatalogKey, raw, c.ttl).Err(); err != nil {
				logger.WarnContext(ctx, "Tier cache write failed", "error", err)
			}
		}
	}

	return tiers, nil
}

var _ postgres.TierRepo = (*TierCache)(nil)
