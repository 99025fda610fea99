package projection

import (
	"github.com/datazip-inc/pipes/types"
)

// Transfers tracks the pre-transfer balances of every wallet that moved the
// token, one snapshot per balance entry. Aggregation (hourly averages) happens
// downstream in the store.
var Transfers = &Projection{
	Name:    "transfers",
	Variant: types.Snapshot,
	Dataset: types.SolanaDataset,
	Fields: types.FieldSelection{
		"tokenBalance": {"preMint", "preAmount"},
	},
	Filters: func(token string) []types.Filter {
		return []types.Filter{{Entity: "tokenBalances", Field: "preMint", Values: []string{token}}}
	},
	New: func(token string) Func {
		return func(batch *types.Batch) []types.Record {
			records := []types.Record{}
			for _, block := range batch.Blocks {
				for _, balance := range block.TokenBalances {
					if balance.PreAmount == nil || (balance.PreMint != "" && balance.PreMint != token) {
						continue
					}
					records = append(records, types.BalanceSnapshot{
						Timestamp: block.Header.Timestamp,
						Balance:   *balance.PreAmount,
					})
				}
			}
			return records
		}
	},
}
