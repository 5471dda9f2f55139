package ledger_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripstream-systems/tripstream/internal/blobstore"
	"github.com/tripstream-systems/tripstream/internal/ledger"
)

func TestLoad_MissingDocumentIsEmptySet(t *testing.T) {
	l, err := ledger.Load(context.Background(), blobstore.NewMemory())
	require.NoError(t, err)
	assert.False(t, l.AlreadyProcessed("2024-06-01"))
	assert.Empty(t, l.Dates())
}

func TestMarkProcessed_PersistsSortedUnion(t *testing.T) {
	store := blobstore.NewMemory()
	ctx := context.Background()

	l, err := ledger.Load(ctx, store)
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed(ctx, []string{"2024-06-02", "2024-06-01"}))
	require.NoError(t, l.MarkProcessed(ctx, []string{"2024-06-02", "2024-06-03"}))

	data, err := store.Get(ctx, ledger.Key)
	require.NoError(t, err)

	var doc struct {
		ProcessedDates []string `json:"processed_dates"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []string{"2024-06-01", "2024-06-02", "2024-06-03"}, doc.ProcessedDates)
}

func TestLoad_RoundTrip(t *testing.T) {
	store := blobstore.NewMemory()
	ctx := context.Background()

	l, err := ledger.Load(ctx, store)
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed(ctx, []string{"2024-06-01"}))

	reloaded, err := ledger.Load(ctx, store)
	require.NoError(t, err)
	assert.True(t, reloaded.AlreadyProcessed("2024-06-01"))
	assert.False(t, reloaded.AlreadyProcessed("2024-06-02"))
}

func TestLoad_CorruptDocument(t *testing.T) {
	store := blobstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, ledger.Key, []byte("not json")))

	_, err := ledger.Load(ctx, store)
	assert.Error(t, err)
}

func TestMarkProcessed_EmptyIsNoop(t *testing.T) {
	store := blobstore.NewMemory()
	ctx := context.Background()

	l, err := ledger.Load(ctx, store)
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed(ctx, nil))

	_, err = store.Get(ctx, ledger.Key)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
