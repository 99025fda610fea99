// Package postgres copies rows into a Postgres table inside one transaction
// per batch.
package postgres

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/pkg/jdbc"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	jdbc.PostgresConnection
	// Table may be schema qualified
	Table       string `json:"table" validate:"required"`
	CreateTable bool   `json:"create_table,omitempty"`
}

func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}
	return c.PostgresConnection.Validate()
}

type Postgres struct {
	pool   *pgxpool.Pool
	config *Config
}

func (p *Postgres) GetConfigRef() destination.Config {
	p.config = &Config{}
	return p.config
}

func (p *Postgres) Spec() any {
	return Config{}
}

func (p *Postgres) Type() string {
	return string(types.Postgres)
}

func (p *Postgres) identifier() pgx.Identifier {
	return pgx.Identifier(strings.Split(p.config.Table, "."))
}

func (p *Postgres) Setup(ctx context.Context, schema destination.Schema) error {
	setupCtx, cancel := context.WithTimeout(ctx, constants.DefaultCheckTimeout)
	defer cancel()

	pool, err := pgxpool.New(setupCtx, p.config.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect database: %s", err)
	}
	if err := pool.Ping(setupCtx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %s", err)
	}

	if p.config.CreateTable {
		query, err := jdbc.CreateTableQuery(jdbc.Postgres, p.config.Table, schema.Columns, schema.SignColumn)
		if err != nil {
			pool.Close()
			return err
		}
		if _, err := pool.Exec(setupCtx, query); err != nil {
			pool.Close()
			return fmt.Errorf("failed to create table[%s]: %s", p.config.Table, err)
		}
		logger.Infof("ensured postgres table[%s]", p.config.Table)
	}

	p.pool = pool
	return nil
}

func (p *Postgres) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Write(ctx context.Context, rows *destination.Rows) error {
	converted := make([][]any, 0, rows.Len())
	for idx, values := range rows.Values {
		row, err := convertRow(values)
		if err != nil {
			return fmt.Errorf("row[%d] of blocks[%d-%d]: %s", idx, rows.First, rows.Last, err)
		}
		converted = append(converted, row)
	}

	columns := make([]string, 0, len(rows.Columns))
	for _, column := range rows.Columns {
		columns = append(columns, column.Name)
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		copied, err := tx.CopyFrom(ctx, p.identifier(), columns, pgx.CopyFromRows(converted))
		if err != nil {
			return fmt.Errorf("failed to copy %d rows into [%s]: %s", len(converted), p.config.Table, err)
		}
		if copied != int64(len(converted)) {
			return fmt.Errorf("copied %d of %d rows into [%s]", copied, len(converted), p.config.Table)
		}
		return nil
	})
}

// convertRow maps row values onto types pgx encodes without loss
func convertRow(values []any) ([]any, error) {
	row := make([]any, len(values))
	for idx, value := range values {
		switch v := value.(type) {
		case *big.Int:
			row[idx] = pgtype.Numeric{Int: v, Exp: 0, Valid: true}
		case uint64:
			if v > math.MaxInt64 {
				return nil, fmt.Errorf("value %d exceeds bigint", v)
			}
			row[idx] = int64(v)
		case uint32:
			row[idx] = int64(v)
		case int8:
			row[idx] = int16(v)
		default:
			row[idx] = v
		}
	}
	return row, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func init() {
	destination.RegisteredWriters[types.Postgres] = func() destination.Writer {
		return new(Postgres)
	}
}
