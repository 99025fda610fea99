package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Get(ctx, "transfers")
	assert.ErrorIs(t, err, state.ErrCheckpointMissing)

	require.NoError(t, store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1002, BlockHash: "H1002"}))
	checkpoint, err := store.Get(ctx, "transfers")
	require.NoError(t, err)
	assert.Equal(t, types.Checkpoint{StreamID: "transfers", BlockNumber: 1002, BlockHash: "H1002"}, *checkpoint)

	// replay of the same batch
	require.NoError(t, store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1002, BlockHash: "H1002"}))

	err = store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1001, BlockHash: "H1001"})
	assert.ErrorIs(t, err, state.ErrCheckpointRegression)

	_, err = store.Get(ctx, "mints")
	assert.ErrorIs(t, err, state.ErrCheckpointMissing)

	assert.Error(t, store.Set(ctx, types.Checkpoint{StreamID: "mints", BlockNumber: 1}))
}

func TestMemoryStoreConcurrentStreams(t *testing.T) {
	ctx := context.Background()
	store := New()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for n := uint64(1); n <= 100; n++ {
				assert.NoError(t, store.Set(ctx, types.Checkpoint{StreamID: id, BlockNumber: n, BlockHash: "h"}))
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c"} {
		checkpoint, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), checkpoint.BlockNumber)
	}
}

func TestRegistered(t *testing.T) {
	store, err := state.NewStore(context.Background(), &types.StoreConfig{Type: types.MemoryStore})
	require.NoError(t, err)
	assert.Equal(t, "MEMORY", store.Type())
}
