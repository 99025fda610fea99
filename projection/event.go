package projection

import (
	"github.com/datazip-inc/pipes/types"
)

// Mints emits the post-transaction balance of every account holding the token
// whenever it changes, linked to its block.
var Mints = &Projection{
	Name:    "mints",
	Variant: types.Event,
	Dataset: types.SolanaDataset,
	Fields: types.FieldSelection{
		"tokenBalance": {"account", "postMint", "postAmount"},
	},
	Filters: postMintFilter,
	New: func(token string) Func {
		return func(batch *types.Batch) []types.Record {
			records := []types.Record{}
			for _, block := range batch.Blocks {
				for _, balance := range block.TokenBalances {
					if !heldAfter(balance, token) {
						continue
					}
					records = append(records, types.BalanceEvent{
						Account:     balance.Account,
						Amount:      *balance.PostAmount,
						BlockNumber: block.Header.Number,
					})
				}
			}
			return records
		}
	},
}

func postMintFilter(token string) []types.Filter {
	return []types.Filter{{Entity: "tokenBalances", Field: "postMint", Values: []string{token}}}
}

// heldAfter reports whether the entry carries a post balance of token
func heldAfter(balance types.TokenBalance, token string) bool {
	return balance.Account != "" && balance.PostAmount != nil && balance.PostMint == token
}
