package types

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/mitchellh/hashstructure"
)

const SolanaDataset = "solana"

// FieldSelection maps a portal entity ("block", "tokenBalance") to the
// attributes requested for it. It is a bandwidth hint only.
type FieldSelection map[string][]string

// Filter restricts an entity list to items whose field matches one of values,
// e.g. {tokenBalances, preMint, [USDT mint]}.
type Filter struct {
	Entity string   `json:"entity"`
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// BlockRange is inclusive on both ends; a nil To means unbounded.
type BlockRange struct {
	From uint64  `json:"from"`
	To   *uint64 `json:"to,omitempty"`
}

// Beyond reports whether block number n lies past the end of the range.
func (r BlockRange) Beyond(n uint64) bool {
	return r.To != nil && n > *r.To
}

// StreamSpec describes what a pipeline pulls. It is built once per run and
// never mutated afterwards.
type StreamSpec struct {
	ID      string         `json:"stream_id"`
	Type    string         `json:"type"`
	Fields  FieldSelection `json:"fields"`
	Filters []Filter       `json:"filters"`
	Range   BlockRange     `json:"range"`
}

func (s StreamSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("stream id not set")
	}
	if s.Type == "" {
		return fmt.Errorf("stream[%s]: dataset type not set", s.ID)
	}
	if s.Range.To != nil && *s.Range.To < s.Range.From {
		return fmt.Errorf("stream[%s]: to_block[%d] before from_block[%d]", s.ID, *s.Range.To, s.Range.From)
	}
	for _, filter := range s.Filters {
		if filter.Entity == "" || filter.Field == "" {
			return fmt.Errorf("stream[%s]: filter without entity or field", s.ID)
		}
		if len(filter.Values) == 0 {
			return fmt.Errorf("stream[%s]: filter %s.%s has no values", s.ID, filter.Entity, filter.Field)
		}
		if s.Type != SolanaDataset {
			continue
		}
		for _, value := range filter.Values {
			if _, err := solana.PublicKeyFromBase58(value); err != nil {
				return fmt.Errorf("stream[%s]: filter %s.%s value[%s] is not a solana address: %s", s.ID, filter.Entity, filter.Field, value, err)
			}
		}
	}
	return nil
}

// Fingerprint hashes what decides which records a stream produces: dataset,
// filters and start block. Field selection is excluded since it is only a hint.
func (s StreamSpec) Fingerprint() (uint64, error) {
	filters := append([]Filter(nil), s.Filters...)
	sort.Slice(filters, func(i, j int) bool {
		if filters[i].Entity != filters[j].Entity {
			return filters[i].Entity < filters[j].Entity
		}
		return filters[i].Field < filters[j].Field
	})

	return hashstructure.Hash(struct {
		Type    string
		Filters []Filter
		From    uint64
	}{s.Type, filters, s.Range.From}, nil)
}
