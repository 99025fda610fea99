package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickHouseWrite(t *testing.T) {
	addr := os.Getenv("PIPES_TEST_CLICKHOUSE_ADDR")
	if addr == "" {
		t.Skip("PIPES_TEST_CLICKHOUSE_ADDR not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("mints_raw_%d", time.Now().UnixNano())
	sink, err := destination.NewSink(ctx, &types.WriterConfig{
		Type:               types.ClickHouse,
		WriterConfig:       map[string]any{"addr": []string{addr}, "table": table, "create_table": true},
		MultiplicityColumn: "sign",
	}, "mints", types.Event)
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.Check(ctx))

	huge, ok := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	require.True(t, ok)
	batch, err := types.NewBatch([]types.RawBlock{{Header: types.BlockHeader{Number: 10, Hash: "H10"}}})
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, batch, []types.Record{
		types.BalanceEvent{Account: "A", Amount: types.NewAmount(huge), BlockNumber: 10},
		types.BalanceEvent{Account: "B", Amount: types.AmountFromUint64(1), BlockNumber: 10},
	}))

	config := &Config{}
	config.Addr = []string{addr}
	conn, err := config.Open(ctx)
	require.NoError(t, err)
	defer conn.Close()

	var count uint64
	require.NoError(t, conn.QueryRow(ctx, fmt.Sprintf("SELECT count() FROM `%s` WHERE sign = 1", table)).Scan(&count))
	assert.Equal(t, uint64(2), count)

	var amount big.Int
	require.NoError(t, conn.QueryRow(ctx, fmt.Sprintf("SELECT amount FROM `%s` WHERE account = 'A'", table)).Scan(&amount))
	assert.Equal(t, huge.String(), amount.String())
}

func TestConfigRequiresTable(t *testing.T) {
	config := &Config{}
	config.Addr = []string{"localhost:9000"}
	assert.Error(t, config.Validate())
}
