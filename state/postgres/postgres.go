// Package postgres keeps checkpoints in a Postgres table and guards stream
// ownership with session advisory locks.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/pkg/jdbc"
	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Config struct {
	jdbc.PostgresConnection
	Table string `json:"table,omitempty"`
	// DisableLock skips the per-stream advisory lock
	DisableLock bool `json:"disable_lock,omitempty"`
}

func (c *Config) Validate() error {
	c.Table = utils.Ternary(c.Table == "", constants.CheckpointTable, c.Table)
	return c.PostgresConnection.Validate()
}

type row struct {
	StreamID    string `db:"stream_id"`
	BlockNumber int64  `db:"block_number"`
	BlockHash   string `db:"block_hash"`
}

type Postgres struct {
	client *sqlx.DB
	config *Config
}

var _ state.Locker = (*Postgres)(nil)

func (p *Postgres) GetConfigRef() state.Config {
	p.config = &Config{}
	return p.config
}

func (p *Postgres) Type() string {
	return string(types.PostgresStore)
}

func (p *Postgres) Setup(ctx context.Context) error {
	client, err := sqlx.Open("postgres", p.config.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect database: %s", err)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DefaultCheckTimeout)
	defer cancel()
	if err := client.PingContext(ctx); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping database: %s", err)
	}
	if _, err := client.ExecContext(ctx, jdbc.PostgresCheckpointTableQuery(p.config.Table)); err != nil {
		client.Close()
		return fmt.Errorf("failed to create checkpoint table[%s]: %s", p.config.Table, err)
	}

	p.client = client
	return nil
}

func (p *Postgres) Check(ctx context.Context) error {
	return p.client.PingContext(ctx)
}

func (p *Postgres) Get(ctx context.Context, streamID string) (*types.Checkpoint, error) {
	var stored row
	err := p.client.GetContext(ctx, &stored, jdbc.PostgresGetCheckpointQuery(p.config.Table), streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrCheckpointMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint of stream[%s]: %s", streamID, err)
	}

	return &types.Checkpoint{
		StreamID:    stored.StreamID,
		BlockNumber: uint64(stored.BlockNumber),
		BlockHash:   stored.BlockHash,
	}, nil
}

// Set upserts in one statement; the row is only replaced when the stored
// block is not ahead, so a regression affects nothing.
func (p *Postgres) Set(ctx context.Context, checkpoint types.Checkpoint) error {
	if err := state.Validate(checkpoint); err != nil {
		return err
	}
	if checkpoint.BlockNumber > math.MaxInt64 {
		return fmt.Errorf("block[%d] of stream[%s] exceeds bigint", checkpoint.BlockNumber, checkpoint.StreamID)
	}

	result, err := p.client.ExecContext(ctx, jdbc.PostgresUpsertCheckpointQuery(p.config.Table),
		checkpoint.StreamID, int64(checkpoint.BlockNumber), checkpoint.BlockHash)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %s", checkpoint.String(), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	current, err := p.Get(ctx, checkpoint.StreamID)
	if err != nil {
		return fmt.Errorf("%w: stream[%s]", state.ErrCheckpointRegression, checkpoint.StreamID)
	}
	return state.CheckAdvance(current, checkpoint)
}

// Lock pins a connection holding the stream's advisory lock until unlock.
func (p *Postgres) Lock(ctx context.Context, streamID string) (func() error, error) {
	if p.config.DisableLock {
		return func() error { return nil }, nil
	}

	conn, err := p.client.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection: %s", err)
	}

	var locked bool
	if err := conn.GetContext(ctx, &locked, jdbc.PostgresTryLockQuery(), streamID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to lock stream[%s]: %s", streamID, err)
	}
	if !locked {
		conn.Close()
		return nil, fmt.Errorf("%w: stream[%s]", state.ErrStreamLocked, streamID)
	}

	logger.Debugf("acquired advisory lock of stream[%s]", streamID)
	return func() error {
		defer conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var released bool
		if err := conn.GetContext(ctx, &released, jdbc.PostgresUnlockQuery(), streamID); err != nil {
			return fmt.Errorf("failed to unlock stream[%s]: %s", streamID, err)
		}
		return nil
	}, nil
}

func (p *Postgres) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func init() {
	state.RegisteredStores[types.PostgresStore] = func() state.Store {
		return &Postgres{}
	}
}
