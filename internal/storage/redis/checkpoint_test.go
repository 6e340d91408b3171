package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe_importer/internal/domain"
)

func TestCheckpointStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	store, err := NewCheckpointStore(ctx, Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "tasty")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)

	cp := &domain.Checkpoint{
		SourceName:    "tasty",
		RunID:         "run-1",
		ProcessedIDs:  []string{"10"},
		ImportedCount: 1,
	}
	require.NoError(t, store.Save(ctx, cp))
	assert.True(t, mr.Exists("recipe_importer:checkpoint:tasty"))

	loaded, err := store.Get(ctx, "tasty")
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, loaded.ProcessedIDs)
	assert.Equal(t, 1, loaded.ImportedCount)
}

func TestCheckpointStore_TTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	store, err := NewCheckpointStore(ctx, Options{Addr: mr.Addr(), Prefix: "test:", TTL: time.Hour})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, &domain.Checkpoint{SourceName: "tasty"}))
	assert.Equal(t, time.Hour, mr.TTL("test:checkpoint:tasty"))

	mr.FastForward(2 * time.Hour)

	_, err = store.Get(ctx, "tasty")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestNewCheckpointStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewCheckpointStore(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}
