package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/tripstream-systems/tripstream/internal/dedup"
)

func newCache(t *testing.T, ttl time.Duration) (*dedup.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return dedup.New(rdb, ttl), mr
}

func TestSeen_OnlyAfterMark(t *testing.T) {
	cache, _ := newCache(t, time.Minute)
	payload := []byte(`{"entity_id":"t1"}`)

	// A bare check never marks; a delivery that fails before processing
	// completes must not look like a duplicate on redelivery.
	assert.False(t, cache.Seen(context.Background(), payload))
	assert.False(t, cache.Seen(context.Background(), payload))

	cache.Mark(context.Background(), payload)
	assert.True(t, cache.Seen(context.Background(), payload))
}

func TestSeen_DistinctPayloads(t *testing.T) {
	cache, _ := newCache(t, time.Minute)

	cache.Mark(context.Background(), []byte("a"))
	assert.True(t, cache.Seen(context.Background(), []byte("a")))
	assert.False(t, cache.Seen(context.Background(), []byte("b")))
}

func TestSeen_ExpiresWithTTL(t *testing.T) {
	cache, mr := newCache(t, time.Second)

	payload := []byte("replayed")
	cache.Mark(context.Background(), payload)
	assert.True(t, cache.Seen(context.Background(), payload))

	mr.FastForward(2 * time.Second)
	assert.False(t, cache.Seen(context.Background(), payload))
}

func TestSeen_RedisDownIsNotSeen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := dedup.New(rdb, time.Minute)
	cache.Mark(context.Background(), []byte("x"))
	mr.Close()
	defer rdb.Close()

	assert.False(t, cache.Seen(context.Background(), []byte("x")))
}

func TestSeen_NilCache(t *testing.T) {
	var cache *dedup.Cache
	cache.Mark(context.Background(), []byte("x"))
	assert.False(t, cache.Seen(context.Background(), []byte("x")))
}
