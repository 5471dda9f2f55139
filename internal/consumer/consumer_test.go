package consumer_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripstream-systems/tripstream/internal/consumer"
	"github.com/tripstream-systems/tripstream/internal/dedup"
	"github.com/tripstream-systems/tripstream/internal/quarantine"
	"github.com/tripstream-systems/tripstream/internal/reconciler"
	"github.com/tripstream-systems/tripstream/internal/store"
)

func newDedup(t *testing.T) *dedup.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return dedup.New(rdb, time.Minute)
}

func newConsumer(st *store.InMemoryStore, opts ...consumer.Option) *consumer.Consumer {
	logger := slog.New(slog.DiscardHandler)
	return consumer.New(reconciler.New(st), quarantine.New(st), logger, opts...)
}

const startEvent = `{
	"entity_id": "t1",
	"origin_location_id": "A",
	"destination_location_id": "B",
	"carrier_id": "v1",
	"start_timestamp": "2024-06-01T10:00:00Z"
}`

func TestHandle_ValidStartEventMerged(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newConsumer(st)

	require.NoError(t, c.Handle(context.Background(), []byte(startEvent)))

	rec, err := st.GetTrip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "A", rec.OriginLocationID)
	assert.Equal(t, uint64(1), c.Stats.Succeeded.Load())
}

func TestHandle_InvalidEventQuarantinedAndAcked(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newConsumer(st)

	raw := `{"entity_id":"t2","payment_method":"cash"}`
	require.NoError(t, c.Handle(context.Background(), []byte(raw)))

	rec, err := st.GetError(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, []string{"unknown record type"}, rec.Reasons)
	assert.Equal(t, uint64(1), c.Stats.Quarantined.Load())

	_, err = st.GetTrip(context.Background(), "t2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandle_BlankIdentifierGetsSyntheticKey(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newConsumer(st)

	raw := `{"entity_id":"null","origin_location_id":"A"}`
	require.NoError(t, c.Handle(context.Background(), []byte(raw)))

	keys := st.ErrorKeys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "unknown-"))
}

func TestHandle_DecodeErrorCountedNotQuarantined(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newConsumer(st)

	require.NoError(t, c.Handle(context.Background(), []byte("{not json")))

	assert.Equal(t, uint64(1), c.Stats.Failed.Load())
	assert.Zero(t, st.ErrorCount())
}

type captureDLQ struct {
	mu       sync.Mutex
	subjects []string
}

func (d *captureDLQ) Publish(ctx context.Context, subject string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects = append(d.subjects, subject)
	return nil
}

func TestHandle_DecodeErrorGoesToDLQ(t *testing.T) {
	st := store.NewInMemoryStore()
	dlq := &captureDLQ{}
	c := newConsumer(st, consumer.WithDLQ(dlq))

	require.NoError(t, c.Handle(context.Background(), []byte("\x00\x01")))
	assert.Equal(t, []string{"trips.dlq.decode"}, dlq.subjects)
}

func TestHandle_StoreUnavailableReturnsError(t *testing.T) {
	st := store.NewInMemoryStore()
	st.FailWith = errors.New("connection reset")
	c := newConsumer(st)

	err := c.Handle(context.Background(), []byte(startEvent))
	require.Error(t, err)
	assert.True(t, store.IsRetryable(err))
	assert.Zero(t, c.Stats.Succeeded.Load())
}

func TestHandle_QuarantineStoreUnavailableReturnsError(t *testing.T) {
	st := store.NewInMemoryStore()
	st.FailWith = errors.New("connection reset")
	c := newConsumer(st)

	err := c.Handle(context.Background(), []byte(`{"entity_id":"t3","distance":1}`))
	require.Error(t, err)
	assert.True(t, store.IsRetryable(err))
}

func TestHandle_DuplicateSkippedAfterSuccessfulMerge(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newConsumer(st, consumer.WithDedup(newDedup(t)))
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, []byte(startEvent)))
	require.NoError(t, c.Handle(ctx, []byte(startEvent)))

	assert.Equal(t, uint64(1), c.Stats.Succeeded.Load())
	assert.Equal(t, uint64(1), c.Stats.Duplicates.Load())
}

func TestHandle_StoreFailureThenRedeliveryNotDeduped(t *testing.T) {
	st := store.NewInMemoryStore()
	st.FailWith = errors.New("connection reset")
	c := newConsumer(st, consumer.WithDedup(newDedup(t)))
	ctx := context.Background()

	// First delivery fails at the store and is nak'd for redelivery. It must
	// not be remembered as processed: the redelivery has to reach the store.
	require.Error(t, c.Handle(ctx, []byte(startEvent)))

	st.FailWith = nil
	require.NoError(t, c.Handle(ctx, []byte(startEvent)))

	rec, err := st.GetTrip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "A", rec.OriginLocationID)
	assert.Equal(t, uint64(1), c.Stats.Succeeded.Load())
	assert.Zero(t, c.Stats.Duplicates.Load())
}

type captureMirror struct {
	mu      sync.Mutex
	entries []string
}

func (m *captureMirror) IndexFailure(ctx context.Context, entityID, reason string, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entityID+": "+reason)
}

func TestHandle_MirrorReceivesQuarantinedEvents(t *testing.T) {
	st := store.NewInMemoryStore()
	mirror := &captureMirror{}
	c := newConsumer(st, consumer.WithMirror(mirror))

	require.NoError(t, c.Handle(context.Background(), []byte(`{"entity_id":"t4","payment_method":"cash"}`)))
	require.Len(t, mirror.entries, 1)
	assert.Equal(t, "t4: unknown record type", mirror.entries[0])
}

func TestHandle_ReplayedEventsConverge(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newConsumer(st)
	ctx := context.Background()

	endEvent := `{
		"entity_id": "t1",
		"end_timestamp": "2024-06-01T10:30:00Z",
		"fare_amount": 12.50,
		"payment_method": "card",
		"distance": 3.2
	}`

	// out-of-order with duplicates, as at-least-once delivery can produce
	require.NoError(t, c.Handle(ctx, []byte(endEvent)))
	require.NoError(t, c.Handle(ctx, []byte(startEvent)))
	require.NoError(t, c.Handle(ctx, []byte(endEvent)))

	rec, err := st.GetTrip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "A", rec.OriginLocationID)
	assert.Equal(t, "12.5", rec.FareAmount)
	assert.Equal(t, "2024-06-01T10:30:00Z", rec.EndTimestamp)
}
