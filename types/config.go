package types

import (
	"fmt"
)

type AdapterType string

const (
	ClickHouse AdapterType = "CLICKHOUSE"
	Postgres   AdapterType = "POSTGRES"
	DuckDB     AdapterType = "DUCKDB"
	Parquet    AdapterType = "PARQUET"
)

type StoreType string

const (
	FileStore       StoreType = "FILE"
	MemoryStore     StoreType = "MEMORY"
	PostgresStore   StoreType = "POSTGRES"
	ClickHouseStore StoreType = "CLICKHOUSE"
)

// WriterConfig is the --destination file. WriterConfig holds the adapter
// specific section and is decoded by the registered writer.
type WriterConfig struct {
	Type         AdapterType `json:"type" validate:"required"`
	WriterConfig any         `json:"writer" validate:"required"`
	// MultiplicityColumn, when set, adds a signed +1 column to every row
	MultiplicityColumn string `json:"multiplicity_column,omitempty"`
	MaxRetries         int    `json:"max_retries,omitempty" validate:"gte=0"`
}

// StoreConfig is the --state file.
type StoreConfig struct {
	Type        StoreType `json:"type" validate:"required"`
	StoreConfig any       `json:"store,omitempty"`
}

// SourceConfig is the --config file: the portal section is decoded by the
// source adapter, streams become one StreamSpec each.
type SourceConfig struct {
	Portal  any             `json:"portal" validate:"required"`
	Streams []*StreamConfig `json:"streams" validate:"required,min=1,dive"`
}

type StreamConfig struct {
	// StreamID defaults to a name derived from the projection and filters
	StreamID  string  `json:"stream_id,omitempty"`
	Type      string  `json:"type" validate:"required"`
	Token     string  `json:"token" validate:"required"`
	FromBlock uint64  `json:"from_block"`
	ToBlock   *uint64 `json:"to_block,omitempty"`
}

func (c *SourceConfig) Validate() error {
	seen := make(map[string]bool)
	for _, stream := range c.Streams {
		if stream.ToBlock != nil && *stream.ToBlock < stream.FromBlock {
			return fmt.Errorf("stream[%s]: to_block[%d] before from_block[%d]", stream.StreamID, *stream.ToBlock, stream.FromBlock)
		}
		if stream.StreamID == "" {
			continue
		}
		if seen[stream.StreamID] {
			return fmt.Errorf("stream id[%s] configured twice", stream.StreamID)
		}
		seen[stream.StreamID] = true
	}
	return nil
}
