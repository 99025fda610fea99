package clickhouse

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

func TestClickHouseCheckpoints(t *testing.T) {
	addr := os.Getenv("PIPES_TEST_CLICKHOUSE_ADDR")
	if addr == "" {
		t.Skip("PIPES_TEST_CLICKHOUSE_ADDR not set")
	}

	ctx := context.Background()
	store, err := state.NewStore(ctx, &types.StoreConfig{
		Type: types.ClickHouseStore,
		StoreConfig: map[string]any{
			"addr":  []string{addr},
			"table": fmt.Sprintf("pipes_test_%d", time.Now().UnixNano()),
		},
	})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "transfers")
	assert.ErrorIs(t, err, state.ErrCheckpointMissing)

	require.NoError(t, store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1002, BlockHash: "H1002"}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1005, BlockHash: "H1005"}))

	assert.ErrorIs(t, store.Set(ctx, types.Checkpoint{StreamID: "transfers", BlockNumber: 1003, BlockHash: "H1003"}), state.ErrCheckpointRegression)

	checkpoint, err := store.Get(ctx, "transfers")
	require.NoError(t, err)
	assert.Equal(t, types.Checkpoint{StreamID: "transfers", BlockNumber: 1005, BlockHash: "H1005"}, *checkpoint)
}

func TestConfigDefaults(t *testing.T) {
	config := &Config{}
	assert.Error(t, config.Validate())

	config.Addr = []string{"localhost:9000"}
	require.NoError(t, config.Validate())
	assert.Equal(t, "pipes_sync_status", config.Table)
}
