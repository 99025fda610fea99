package projection

import (
	"github.com/datazip-inc/pipes/types"
)

// Holders indexes post balances by transaction position within the block.
var Holders = &Projection{
	Name:    "holders",
	Variant: types.Index,
	Dataset: types.SolanaDataset,
	Fields: types.FieldSelection{
		"tokenBalance": {"transactionIndex", "account", "postMint", "postAmount"},
	},
	Filters: postMintFilter,
	New: func(token string) Func {
		return func(batch *types.Batch) []types.Record {
			records := []types.Record{}
			for _, block := range batch.Blocks {
				for _, balance := range block.TokenBalances {
					if balance.TransactionIndex == nil || !heldAfter(balance, token) {
						continue
					}
					records = append(records, types.BalanceIndex{
						Account:          balance.Account,
						Amount:           *balance.PostAmount,
						TransactionIndex: *balance.TransactionIndex,
						BlockNumber:      block.Header.Number,
					})
				}
			}
			return records
		}
	},
}
