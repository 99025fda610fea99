// Package clickhouse inserts rows into a ClickHouse table, one native insert
// block per batch.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/pkg/jdbc"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
)

type Config struct {
	jdbc.ClickHouseConnection
	Table string `json:"table" validate:"required"`
	// CreateTable creates the table from the row schema when missing
	CreateTable bool `json:"create_table,omitempty"`
}

func (c *Config) Validate() error {
	return utils.Validate(c)
}

type ClickHouse struct {
	conn   driver.Conn
	config *Config
	schema destination.Schema
}

func (c *ClickHouse) GetConfigRef() destination.Config {
	c.config = &Config{}
	return c.config
}

func (c *ClickHouse) Spec() any {
	return Config{}
}

func (c *ClickHouse) Type() string {
	return string(types.ClickHouse)
}

func (c *ClickHouse) Setup(ctx context.Context, schema destination.Schema) error {
	setupCtx, cancel := context.WithTimeout(ctx, constants.DefaultCheckTimeout)
	defer cancel()

	conn, err := c.config.Open(setupCtx)
	if err != nil {
		return err
	}

	if c.config.CreateTable {
		query, err := jdbc.CreateTableQuery(jdbc.ClickHouse, c.config.Table, schema.Columns, schema.SignColumn)
		if err != nil {
			conn.Close()
			return err
		}
		if err := conn.Exec(setupCtx, query); err != nil {
			conn.Close()
			return fmt.Errorf("failed to create table[%s]: %s", c.config.Table, err)
		}
		logger.Infof("ensured clickhouse table[%s]", c.config.Table)
	}

	c.conn = conn
	c.schema = schema
	return nil
}

func (c *ClickHouse) Check(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Write sends all rows as a single insert block, which ClickHouse applies
// atomically.
func (c *ClickHouse) Write(ctx context.Context, rows *destination.Rows) (err error) {
	batch, err := c.conn.PrepareBatch(ctx, jdbc.ClickHouseInsertQuery(c.config.Table, rows.Columns))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into [%s]: %s", c.config.Table, err)
	}
	defer func() {
		if err != nil {
			_ = batch.Abort()
		}
	}()

	for idx, values := range rows.Values {
		if err := batch.Append(values...); err != nil {
			return fmt.Errorf("failed to append row[%d] of blocks[%d-%d]: %s", idx, rows.First, rows.Last, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert %d rows into [%s]: %s", rows.Len(), c.config.Table, err)
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
	destination.RegisteredWriters[types.ClickHouse] = func() destination.Writer {
		return new(ClickHouse)
	}
}
