// Package duckdb inserts rows into a local DuckDB database file.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/pkg/jdbc"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
	_ "github.com/duckdb/duckdb-go/v2"
)

type Config struct {
	Path        string `json:"path" validate:"required"`
	Table       string `json:"table" validate:"required"`
	CreateTable bool   `json:"create_table,omitempty"`
}

func (c *Config) Validate() error {
	return utils.Validate(c)
}

type DuckDB struct {
	db     *sql.DB
	config *Config
}

func (d *DuckDB) GetConfigRef() destination.Config {
	d.config = &Config{}
	return d.config
}

func (d *DuckDB) Spec() any {
	return Config{}
}

func (d *DuckDB) Type() string {
	return string(types.DuckDB)
}

func (d *DuckDB) Setup(ctx context.Context, schema destination.Schema) error {
	db, err := sql.Open("duckdb", d.config.Path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb[%s]: %s", d.config.Path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping duckdb[%s]: %s", d.config.Path, err)
	}

	if d.config.CreateTable {
		query, err := jdbc.CreateTableQuery(jdbc.DuckDB, d.config.Table, schema.Columns, schema.SignColumn)
		if err != nil {
			db.Close()
			return err
		}
		if _, err := db.ExecContext(ctx, query); err != nil {
			db.Close()
			return fmt.Errorf("failed to create table[%s]: %s", d.config.Table, err)
		}
		logger.Infof("ensured duckdb table[%s]", d.config.Table)
	}

	d.db = db
	return nil
}

func (d *DuckDB) Check(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Write inserts every row in one transaction; big integers travel as decimal
// strings and are cast to HUGEINT by the insert statement.
func (d *DuckDB) Write(ctx context.Context, rows *destination.Rows) error {
	return jdbc.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, jdbc.DuckDBInsertQuery(d.config.Table, rows.Columns))
		if err != nil {
			return fmt.Errorf("failed to prepare insert into [%s]: %s", d.config.Table, err)
		}
		defer stmt.Close()

		for idx, values := range rows.Values {
			args := make([]any, len(values))
			for col, value := range values {
				if v, ok := value.(*big.Int); ok {
					args[col] = v.String()
					continue
				}
				args[col] = value
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to insert row[%d] of blocks[%d-%d]: %s", idx, rows.First, rows.Last, err)
			}
		}
		return nil
	})
}

func (d *DuckDB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func init() {
	destination.RegisteredWriters[types.DuckDB] = func() destination.Writer {
		return new(DuckDB)
	}
}
