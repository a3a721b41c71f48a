package storage

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

func TestArtifactStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewArtifactStore(memblob.OpenBucket(nil), "exports", zerolog.Nop())
	defer store.Close()

	key := store.ExportKey("demo.myshopify.com", "job-1")
	assert.Equal(t, "exports/demo.myshopify.com/job-1.xlsx", key)

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutSpreadsheet(ctx, key, []byte("xlsx-bytes")))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "xlsx-bytes", string(data))
}

func TestArtifactStoreMissingKey(t *testing.T) {
	store := NewArtifactStore(memblob.OpenBucket(nil), "", zerolog.Nop())
	defer store.Close()

	_, err := store.Get(context.Background(), "missing.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenDefaultsToMemoryBucket(t *testing.T) {
	store, err := Open(context.Background(), config.StorageConfig{Prefix: "exports/"}, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "exports/t/j.xlsx", store.ExportKey("t", "j"))
}
