package quarantine_test

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripstream-systems/tripstream/internal/quarantine"
	"github.com/tripstream-systems/tripstream/internal/store"
)

func TestRecord_AccumulatesInArrivalOrder(t *testing.T) {
	st := store.NewInMemoryStore()
	acc := quarantine.New(st)
	ctx := context.Background()

	first := map[string]any{"entity_id": "t1", "payment_method": "cash"}
	second := map[string]any{"entity_id": "t1", "origin_location_id": "A"}

	require.NoError(t, acc.Record(ctx, "t1", "unknown record type", first))
	require.NoError(t, acc.Record(ctx, "t1", "missing or blank field: destination_location_id", second))

	rec, err := st.GetError(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rec.Reasons, 2)
	require.Len(t, rec.Timestamps, 2)
	assert.Equal(t, "unknown record type", rec.Reasons[0])
	assert.Equal(t, "missing or blank field: destination_location_id", rec.Reasons[1])

	// payload history is not kept; only the latest survives
	assert.Equal(t, second, rec.OriginalData)
}

func TestRecord_TimestampFormat(t *testing.T) {
	st := store.NewInMemoryStore()
	acc := quarantine.New(st)

	require.NoError(t, acc.Record(context.Background(), "t2", "unknown record type", nil))

	rec, err := st.GetError(context.Background(), "t2")
	require.NoError(t, err)
	require.Len(t, rec.Timestamps, 1)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z$`), rec.Timestamps[0])
}

func TestSyntheticID(t *testing.T) {
	a := quarantine.SyntheticID()
	b := quarantine.SyntheticID()

	assert.True(t, strings.HasPrefix(a, "unknown-"))
	assert.NotEqual(t, a, b)
}
