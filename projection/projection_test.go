package projection

import (
	"math/big"
	"testing"
	"time"

	"github.com/datazip-inc/pipes/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdt = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

func amount(t *testing.T, s string) *types.Amount {
	t.Helper()
	a, err := types.ParseAmount(s)
	require.NoError(t, err)
	return &a
}

func u32(v uint32) *uint32 { return &v }

func block(number uint64, ts time.Time, balances ...types.TokenBalance) types.RawBlock {
	return types.RawBlock{
		Header:        types.BlockHeader{Number: number, Hash: "H" + big.NewInt(int64(number)).String(), Timestamp: ts},
		TokenBalances: balances,
	}
}

func batchOf(t *testing.T, blocks ...types.RawBlock) *types.Batch {
	t.Helper()
	batch, err := types.NewBatch(blocks)
	require.NoError(t, err)
	return batch
}

func TestMintsProjectsEventRecord(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	batch := batchOf(t, block(42, ts, types.TokenBalance{
		Account:    "Acct1",
		PostMint:   "USDT_MINT",
		PostAmount: amount(t, "500000"),
	}))

	records := Mints.New("USDT_MINT")(batch)
	require.Len(t, records, 1)

	event, ok := records[0].(types.BalanceEvent)
	require.True(t, ok)
	assert.Equal(t, "Acct1", event.Account)
	assert.Equal(t, "500000", event.Amount.String())
	assert.Equal(t, uint64(42), event.BlockNumber)
	assert.Equal(t, []any{"Acct1", big.NewInt(500000), uint64(42)}, event.Values())
}

func TestTransfersKeepsEqualTimestamps(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	batch := batchOf(t,
		block(10, ts, types.TokenBalance{PreMint: usdt, PreAmount: amount(t, "100")}),
		block(11, ts, types.TokenBalance{PreMint: usdt, PreAmount: amount(t, "250")}),
	)

	records := Transfers.New(usdt)(batch)
	require.Len(t, records, 2)
	assert.Equal(t, types.BalanceSnapshot{Timestamp: ts, Balance: *amount(t, "100")}, records[0])
	assert.Equal(t, types.BalanceSnapshot{Timestamp: ts, Balance: *amount(t, "250")}, records[1])
}

func TestProjectionsSkipIncompleteEntries(t *testing.T) {
	ts := time.Now().UTC()
	batch := batchOf(t,
		block(1, ts),
		block(2, ts,
			types.TokenBalance{Account: "A", PostMint: usdt},
			types.TokenBalance{Account: "B", PostMint: "other", PostAmount: amount(t, "5")},
			types.TokenBalance{PostMint: usdt, PostAmount: amount(t, "5")},
			types.TokenBalance{Account: "C", PostMint: usdt, PostAmount: amount(t, "7")},
		),
	)

	events := Mints.New(usdt)(batch)
	require.Len(t, events, 1)
	assert.Equal(t, "C", events[0].(types.BalanceEvent).Account)

	// holders additionally needs the transaction index
	assert.Empty(t, Holders.New(usdt)(batch))
	assert.Empty(t, Transfers.New(usdt)(batch))
}

func TestHoldersPreservesBlockOrder(t *testing.T) {
	ts := time.Now().UTC()
	batch := batchOf(t,
		block(5, ts,
			types.TokenBalance{TransactionIndex: u32(3), Account: "A", PostMint: usdt, PostAmount: amount(t, "1")},
			types.TokenBalance{TransactionIndex: u32(0), Account: "B", PostMint: usdt, PostAmount: amount(t, "2")},
		),
		block(6, ts,
			types.TokenBalance{TransactionIndex: u32(1), Account: "A", PostMint: usdt, PostAmount: amount(t, "99999999999999999999999999")},
		),
	)

	project := Holders.New(usdt)
	records := project(batch)
	require.Len(t, records, 3)

	var blocks []uint64
	for _, record := range records {
		assert.Equal(t, types.Index, record.Variant())
		blocks = append(blocks, record.(types.BalanceIndex).BlockNumber)
	}
	assert.Equal(t, []uint64{5, 5, 6}, blocks)
	assert.Equal(t, "99999999999999999999999999", records[2].(types.BalanceIndex).Amount.String())

	// same input, same output
	assert.Equal(t, records, project(batch))
}

func TestProjectionSpec(t *testing.T) {
	to := uint64(2000)
	cfg := &types.StreamConfig{Type: types.SolanaDataset, Token: usdt, FromBlock: 1000, ToBlock: &to}

	spec, err := Transfers.Spec(cfg)
	require.NoError(t, err)
	assert.Contains(t, spec.ID, "transfers-")
	assert.Equal(t, []string{"number", "hash", "timestamp"}, spec.Fields["block"])
	assert.Equal(t, []string{"preMint", "preAmount"}, spec.Fields["tokenBalance"])
	assert.Equal(t, []types.Filter{{Entity: "tokenBalances", Field: "preMint", Values: []string{usdt}}}, spec.Filters)
	assert.Equal(t, uint64(1000), spec.Range.From)

	again, err := Transfers.Spec(cfg)
	require.NoError(t, err)
	assert.Equal(t, spec.ID, again.ID)

	other, err := Mints.Spec(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, spec.ID, other.ID)

	cfg.StreamID = "usdt-transfers"
	named, err := Transfers.Spec(cfg)
	require.NoError(t, err)
	assert.Equal(t, "usdt-transfers", named.ID)

	cfg.Token = "not-a-key"
	_, err = Transfers.Spec(cfg)
	assert.Error(t, err)
}

func TestBuiltinProjectionsValid(t *testing.T) {
	for _, p := range []*Projection{Transfers, Mints, Holders} {
		assert.NoError(t, p.Validate(), p.Name)
	}
	assert.Error(t, (&Projection{Name: "x", Variant: "bogus"}).Validate())
}
