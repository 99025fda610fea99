package types

import "time"

// Variant names the shape of the records a projection emits.
type Variant string

const (
	// Snapshot records carry a block timestamp and a balance
	Snapshot Variant = "snapshot"
	// Event records carry an account, an amount and the block they happened in
	Event Variant = "event"
	// Index records carry an account, an amount and the transaction index
	Index Variant = "index"
)

type ColumnType string

const (
	UInt32Column    ColumnType = "uint32"
	UInt64Column    ColumnType = "uint64"
	Int8Column      ColumnType = "int8"
	BigIntColumn    ColumnType = "bigint"
	StringColumn    ColumnType = "string"
	TimestampColumn ColumnType = "timestamp"
)

type Column struct {
	Name string
	Type ColumnType
}

var variantColumns = map[Variant][]Column{
	Snapshot: {
		{Name: "timestamp", Type: TimestampColumn},
		{Name: "balance", Type: BigIntColumn},
	},
	Event: {
		{Name: "account", Type: StringColumn},
		{Name: "amount", Type: BigIntColumn},
		{Name: "block_number", Type: UInt64Column},
	},
	Index: {
		{Name: "account", Type: StringColumn},
		{Name: "amount", Type: BigIntColumn},
		{Name: "transaction_index", Type: UInt32Column},
		{Name: "block_number", Type: UInt64Column},
	},
}

// Columns returns the sink columns of the variant, in Values() order.
func (v Variant) Columns() []Column {
	return append([]Column(nil), variantColumns[v]...)
}

func (v Variant) Valid() bool {
	_, found := variantColumns[v]
	return found
}

// Record is a flat domain row produced by a projection.
type Record interface {
	Variant() Variant
	// Values are ordered as Variant().Columns(); BigIntColumn values are *big.Int
	Values() []any
}

type BalanceSnapshot struct {
	Timestamp time.Time
	Balance   Amount
}

func (r BalanceSnapshot) Variant() Variant { return Snapshot }

func (r BalanceSnapshot) Values() []any {
	return []any{r.Timestamp, r.Balance.BigInt()}
}

type BalanceEvent struct {
	Account     string
	Amount      Amount
	BlockNumber uint64
}

func (r BalanceEvent) Variant() Variant { return Event }

func (r BalanceEvent) Values() []any {
	return []any{r.Account, r.Amount.BigInt(), r.BlockNumber}
}

type BalanceIndex struct {
	Account          string
	Amount           Amount
	TransactionIndex uint32
	BlockNumber      uint64
}

func (r BalanceIndex) Variant() Variant { return Index }

func (r BalanceIndex) Values() []any {
	return []any{r.Account, r.Amount.BigInt(), r.TransactionIndex, r.BlockNumber}
}
