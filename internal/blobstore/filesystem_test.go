package blobstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripstream-systems/tripstream/internal/blobstore"
)

func TestFilesystem_PutGet(t *testing.T) {
	fs, err := blobstore.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "kpis/year=2024/month=06/day=01/kpi-2024-06-01.json"
	require.NoError(t, fs.Put(ctx, key, []byte(`{"date":"2024-06-01"}`)))

	data, err := fs.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-06-01"}`, string(data))
}

func TestFilesystem_GetMissing(t *testing.T) {
	fs, err := blobstore.NewFilesystem(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(context.Background(), "state/processed_dates.json")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestFilesystem_Overwrite(t *testing.T) {
	fs, err := blobstore.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "a/b", []byte("one")))
	require.NoError(t, fs.Put(ctx, "a/b", []byte("two")))

	data, err := fs.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestFilesystem_RejectsEscapingKeys(t *testing.T) {
	fs, err := blobstore.NewFilesystem(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, fs.Put(context.Background(), "../outside", []byte("x")))
	_, err = fs.Get(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}
