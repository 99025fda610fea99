package types

import (
	"math/big"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdtMint = "Es9vMFrzaCERmJfrF4H2FYD4KLNaeCVeQyQLGTDJkuq9"

func TestAmountKeepsPrecision(t *testing.T) {
	var decoded struct {
		Quoted Amount  `json:"quoted"`
		Bare   Amount  `json:"bare"`
		Absent *Amount `json:"absent"`
	}
	err := json.Unmarshal([]byte(`{"quoted": "340282366920938463463374607431768211457", "bare": 18446744073709551617, "absent": null}`), &decoded)
	require.NoError(t, err)

	assert.Equal(t, "340282366920938463463374607431768211457", decoded.Quoted.String())
	assert.Equal(t, "18446744073709551617", decoded.Bare.String())
	assert.Nil(t, decoded.Absent)

	encoded, err := json.Marshal(decoded.Bare)
	require.NoError(t, err)
	assert.Equal(t, `"18446744073709551617"`, string(encoded))

	_, err = ParseAmount("1.5")
	assert.Error(t, err)
}

func TestAmountCopies(t *testing.T) {
	v := big.NewInt(5)
	amount := NewAmount(v)
	v.SetInt64(7)
	assert.Equal(t, "5", amount.String())

	amount.BigInt().SetInt64(9)
	assert.Equal(t, "5", amount.String())

	assert.Equal(t, "0", Amount{}.String())
	assert.Equal(t, 1, AmountFromUint64(2).Cmp(AmountFromUint64(1)))
}

func TestBatch(t *testing.T) {
	_, err := NewBatch(nil)
	assert.Error(t, err)

	_, err = NewBatch([]RawBlock{{Header: BlockHeader{Number: 2}}, {Header: BlockHeader{Number: 2}}})
	assert.Error(t, err)

	batch, err := NewBatch([]RawBlock{
		{Header: BlockHeader{Number: 1000, Hash: "H1000"}},
		{Header: BlockHeader{Number: 1002, Hash: "H1002"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Len())
	assert.Equal(t, uint64(1000), batch.First().Number)
	assert.Equal(t, Checkpoint{StreamID: "s", BlockNumber: 1002, BlockHash: "H1002"}, batch.Checkpoint("s"))

	checkpoint := batch.Checkpoint("s")
	assert.Equal(t, uint64(1003), checkpoint.Next())
}

func TestStreamSpecValidate(t *testing.T) {
	to := uint64(5)
	valid := StreamSpec{
		ID:      "mints",
		Type:    SolanaDataset,
		Filters: []Filter{{Entity: "tokenBalances", Field: "postMint", Values: []string{usdtMint}}},
		Range:   BlockRange{From: 1, To: &to},
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(s *StreamSpec){
		"no id":          func(s *StreamSpec) { s.ID = "" },
		"no type":        func(s *StreamSpec) { s.Type = "" },
		"inverted range": func(s *StreamSpec) { s.Range.From = 6 },
		"empty filter":   func(s *StreamSpec) { s.Filters = []Filter{{Entity: "tokenBalances", Field: "postMint"}} },
		"bad address": func(s *StreamSpec) {
			s.Filters = []Filter{{Entity: "tokenBalances", Field: "postMint", Values: []string{"USDT_MINT"}}}
		},
	} {
		t.Run(name, func(t *testing.T) {
			spec := valid
			mutate(&spec)
			assert.Error(t, spec.Validate())
		})
	}

	// addresses are only checked for the solana dataset
	other := valid
	other.Type = "test"
	other.Filters = []Filter{{Entity: "tokenBalances", Field: "postMint", Values: []string{"USDT_MINT"}}}
	assert.NoError(t, other.Validate())
}

func TestBlockRangeBeyond(t *testing.T) {
	to := uint64(10)
	assert.False(t, BlockRange{From: 1}.Beyond(1<<62))
	assert.False(t, BlockRange{From: 1, To: &to}.Beyond(10))
	assert.True(t, BlockRange{From: 1, To: &to}.Beyond(11))
}

func TestFingerprint(t *testing.T) {
	base := StreamSpec{
		Type: SolanaDataset,
		Filters: []Filter{
			{Entity: "tokenBalances", Field: "preMint", Values: []string{"a"}},
			{Entity: "tokenBalances", Field: "postMint", Values: []string{"a"}},
		},
		Range: BlockRange{From: 100},
	}
	fingerprint, err := base.Fingerprint()
	require.NoError(t, err)

	reordered := base
	reordered.Filters = []Filter{base.Filters[1], base.Filters[0]}
	reordered.Fields = FieldSelection{"block": {"number"}}
	same, err := reordered.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fingerprint, same)

	otherStart := base
	otherStart.Range.From = 101
	different, err := otherStart.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fingerprint, different)
}

func TestVariantColumns(t *testing.T) {
	assert.True(t, Event.Valid())
	assert.False(t, Variant("bogus").Valid())

	record := BalanceIndex{Account: "A", Amount: AmountFromUint64(3), TransactionIndex: 2, BlockNumber: 9}
	assert.Len(t, record.Values(), len(record.Variant().Columns()))

	columns := Snapshot.Columns()
	columns[0].Name = "changed"
	assert.Equal(t, "timestamp", Snapshot.Columns()[0].Name)
}
