package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore connects to PIPES_TEST_POSTGRES_URL, skipping when unset
func testStore(t *testing.T) state.Store {
	t.Helper()
	url := os.Getenv("PIPES_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("PIPES_TEST_POSTGRES_URL not set")
	}

	store, err := state.NewStore(context.Background(), &types.StoreConfig{
		Type: types.PostgresStore,
		StoreConfig: map[string]any{
			"url":   url,
			"table": fmt.Sprintf("pipes_test_%d", time.Now().UnixNano()),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresCheckpoints(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	_, err := store.Get(ctx, "transfers")
	assert.ErrorIs(t, err, state.ErrCheckpointMissing)

	require.NoError(t, store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1002, BlockHash: "H1002"}))
	require.NoError(t, store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1002, BlockHash: "H1002"}))
	require.NoError(t, store.Set(ctx, types.Checkpoint{StreamID: "mints", BlockNumber: 7, BlockHash: "H7"}))

	err = store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1000, BlockHash: "H1000"})
	assert.ErrorIs(t, err, state.ErrCheckpointRegression)

	checkpoint, err := store.Get(ctx, "transfers")
	require.NoError(t, err)
	assert.Equal(t, types.Checkpoint{StreamID: "transfers", BlockNumber: 1002, BlockHash: "H1002"}, *checkpoint)
}

func TestPostgresAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	locker, ok := store.(state.Locker)
	require.True(t, ok)

	unlock, err := locker.Lock(ctx, "transfers")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "transfers")
	assert.ErrorIs(t, err, state.ErrStreamLocked)

	other, err := locker.Lock(ctx, "mints")
	require.NoError(t, err)
	require.NoError(t, other())

	require.NoError(t, unlock())
	again, err := locker.Lock(ctx, "transfers")
	require.NoError(t, err)
	require.NoError(t, again())
}

func TestConfigDefaults(t *testing.T) {
	config := &Config{}
	config.Host = "localhost"
	config.Database = "pipes"
	require.NoError(t, config.Validate())
	assert.Equal(t, "pipes_sync_status", config.Table)
}
