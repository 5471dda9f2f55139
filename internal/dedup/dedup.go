// Package dedup provides a best-effort duplicate suppression cache for
// replayed deliveries.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache remembers recently-processed payload hashes in Redis. It only trims
// redundant store writes under at-least-once replay; the merge itself is
// idempotent, so correctness never depends on the cache and any Redis
// failure is treated as "not seen".
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a cache with the given TTL for seen markers.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Seen reports whether the payload was marked within the TTL. It is a pure
// read: callers mark a payload only after it has actually been processed,
// so a delivery that fails mid-processing is never mistaken for a duplicate
// when the transport redelivers it.
func (c *Cache) Seen(ctx context.Context, payload []byte) bool {
	if c == nil || c.rdb == nil {
		return false
	}

	n, err := c.rdb.Exists(ctx, seenKey(payload)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Mark records the payload as processed for the TTL.
func (c *Cache) Mark(ctx context.Context, payload []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Set(ctx, seenKey(payload), 1, c.ttl)
}

func seenKey(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "tripstream:seen:" + hex.EncodeToString(sum[:])
}
