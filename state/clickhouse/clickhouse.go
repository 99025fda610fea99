// Package clickhouse keeps checkpoints in a ReplacingMergeTree table next to
// the data they describe.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/pkg/jdbc"
	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
)

type Config struct {
	jdbc.ClickHouseConnection
	Table string `json:"table,omitempty"`
}

func (c *Config) Validate() error {
	c.Table = utils.Ternary(c.Table == "", constants.CheckpointTable, c.Table)
	return c.ClickHouseConnection.Validate()
}

// ClickHouse appends one row per checkpoint; reads take the newest. It has no
// cross-process lock, so each stream must be owned by a single process.
type ClickHouse struct {
	mu     sync.Mutex
	conn   driver.Conn
	config *Config
}

func (c *ClickHouse) GetConfigRef() state.Config {
	c.config = &Config{}
	return c.config
}

func (c *ClickHouse) Type() string {
	return string(types.ClickHouseStore)
}

func (c *ClickHouse) Setup(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultCheckTimeout)
	defer cancel()

	conn, err := c.config.Open(ctx)
	if err != nil {
		return err
	}
	if err := conn.Exec(ctx, jdbc.ClickHouseCheckpointTableQuery(c.config.Table)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create checkpoint table[%s]: %s", c.config.Table, err)
	}

	c.conn = conn
	return nil
}

func (c *ClickHouse) Check(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouse) Get(ctx context.Context, streamID string) (*types.Checkpoint, error) {
	checkpoint := &types.Checkpoint{StreamID: streamID}
	err := c.conn.QueryRow(ctx, jdbc.ClickHouseGetCheckpointQuery(c.config.Table), streamID).
		Scan(&checkpoint.BlockNumber, &checkpoint.BlockHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrCheckpointMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint of stream[%s]: %s", streamID, err)
	}
	return checkpoint, nil
}

func (c *ClickHouse) Set(ctx context.Context, checkpoint types.Checkpoint) error {
	if err := state.Validate(checkpoint); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.Get(ctx, checkpoint.StreamID)
	if err != nil && !errors.Is(err, state.ErrCheckpointMissing) {
		return err
	}
	if err := state.CheckAdvance(current, checkpoint); err != nil {
		return err
	}

	err = c.conn.Exec(ctx, jdbc.ClickHouseInsertCheckpointQuery(c.config.Table),
		checkpoint.StreamID, checkpoint.BlockNumber, checkpoint.BlockHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %s", checkpoint.String(), err)
	}
	return nil
}

func (c *ClickHouse) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func init() {
	state.RegisteredStores[types.ClickHouseStore] = func() state.Store {
		return &ClickHouse{}
	}
}
