package types

import (
	"bytes"
	"fmt"
	"math/big"
	"time"
)

// BlockHeader carries the fields every block must have. Number and Hash anchor
// progress tracking even when no projection reads them.
type BlockHeader struct {
	Number    uint64    `json:"number"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

// RawBlock is one block as delivered by the portal, reduced to the entities
// pipes knows how to project.
type RawBlock struct {
	Header        BlockHeader    `json:"header"`
	TokenBalances []TokenBalance `json:"tokenBalances,omitempty"`
}

// TokenBalance is a token-balance delta recorded in a block. All fields are
// optional on the wire: the portal only returns what was selected, and a
// projection skips entries missing the fields it needs.
type TokenBalance struct {
	TransactionIndex *uint32 `json:"transactionIndex,omitempty"`
	Account          string  `json:"account,omitempty"`
	PreMint          string  `json:"preMint,omitempty"`
	PostMint         string  `json:"postMint,omitempty"`
	PreOwner         string  `json:"preOwner,omitempty"`
	PostOwner        string  `json:"postOwner,omitempty"`
	PreDecimals      *uint8  `json:"preDecimals,omitempty"`
	PostDecimals     *uint8  `json:"postDecimals,omitempty"`
	PreAmount        *Amount `json:"preAmount,omitempty"`
	PostAmount       *Amount `json:"postAmount,omitempty"`
}

// Amount is an arbitrary precision integer token amount. It decodes from both
// JSON strings and bare JSON numbers and always encodes as a string, so large
// balances never pass through float64.
type Amount struct {
	v *big.Int
}

func NewAmount(v *big.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount{v: new(big.Int).Set(v)}
}

func AmountFromUint64(v uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(v)}
}

func ParseAmount(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid integer amount[%s]", s)
	}
	return Amount{v: v}, nil
}

// BigInt returns a copy of the underlying value; zero when unset.
func (a Amount) BigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

func (a Amount) Cmp(b Amount) int {
	return a.BigInt().Cmp(b.BigInt())
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	data = bytes.Trim(data, `"`)
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
