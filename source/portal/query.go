package portal

import (
	"fmt"
	"time"

	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/source"
	"github.com/datazip-inc/pipes/types"
	"github.com/goccy/go-json"
)

// buildQuery renders spec as a portal stream request starting at from.
// Filters on the same entity are combined into one request item.
func buildQuery(spec types.StreamSpec, from uint64) map[string]any {
	fields := make(map[string]map[string]bool, len(spec.Fields))
	for entity, selected := range spec.Fields {
		fields[entity] = make(map[string]bool, len(selected))
		for _, field := range selected {
			fields[entity][field] = true
		}
	}

	query := map[string]any{
		"type":      spec.Type,
		"fromBlock": from,
		"fields":    fields,
	}
	if spec.Range.To != nil {
		query["toBlock"] = *spec.Range.To
	}

	items := map[string]map[string][]string{}
	for _, filter := range spec.Filters {
		if items[filter.Entity] == nil {
			items[filter.Entity] = map[string][]string{}
		}
		items[filter.Entity][filter.Field] = append(items[filter.Entity][filter.Field], filter.Values...)
	}
	for entity, item := range items {
		query[entity] = []map[string][]string{item}
	}

	return query
}

type wireHeader struct {
	Number    *uint64 `json:"number"`
	Hash      *string `json:"hash"`
	Timestamp *int64  `json:"timestamp"`
}

type wireBlock struct {
	Header        *wireHeader       `json:"header"`
	TokenBalances []json.RawMessage `json:"tokenBalances"`
}

// decodeBlock parses one line of the response. The portal reports block
// timestamps in unix seconds.
func decodeBlock(raw []byte) (types.RawBlock, error) {
	var wire wireBlock
	if err := json.Unmarshal(raw, &wire); err != nil {
		return types.RawBlock{}, fmt.Errorf("%w: %s", source.ErrMalformedBlock, err)
	}

	header := wire.Header
	switch {
	case header == nil:
		return types.RawBlock{}, fmt.Errorf("%w: header missing", source.ErrMalformedBlock)
	case header.Number == nil:
		return types.RawBlock{}, fmt.Errorf("%w: number missing", source.ErrMalformedBlock)
	case header.Hash == nil || *header.Hash == "":
		return types.RawBlock{}, fmt.Errorf("%w: hash of block[%d] missing", source.ErrMalformedBlock, *header.Number)
	case header.Timestamp == nil:
		return types.RawBlock{}, fmt.Errorf("%w: timestamp of block[%d] missing", source.ErrMalformedBlock, *header.Number)
	}

	block := types.RawBlock{
		Header: types.BlockHeader{
			Number:    *header.Number,
			Hash:      *header.Hash,
			Timestamp: time.Unix(*header.Timestamp, 0).UTC(),
		},
	}
	// an unreadable entry is dropped alone, the block stays valid
	for idx, raw := range wire.TokenBalances {
		var balance types.TokenBalance
		if err := json.Unmarshal(raw, &balance); err != nil {
			logger.Warnf("block[%d]: dropping token balance[%d]: %s", block.Header.Number, idx, err)
			continue
		}
		block.TokenBalances = append(block.TokenBalances, balance)
	}
	return block, nil
}
