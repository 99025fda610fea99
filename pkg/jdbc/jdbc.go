package jdbc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
	"github.com/lib/pq"
)

type Dialect string

const (
	Postgres   Dialect = "postgres"
	ClickHouse Dialect = "clickhouse"
	DuckDB     Dialect = "duckdb"
)

var columnTypes = map[Dialect]map[types.ColumnType]string{
	Postgres: {
		types.UInt32Column:    "BIGINT",
		types.UInt64Column:    "BIGINT",
		types.Int8Column:      "SMALLINT",
		types.BigIntColumn:    "NUMERIC(78, 0)",
		types.StringColumn:    "TEXT",
		types.TimestampColumn: "TIMESTAMPTZ",
	},
	ClickHouse: {
		types.UInt32Column:    "UInt32",
		types.UInt64Column:    "UInt64",
		types.Int8Column:      "Int8",
		types.BigIntColumn:    "Int256",
		types.StringColumn:    "String",
		types.TimestampColumn: "DateTime('UTC')",
	},
	DuckDB: {
		types.UInt32Column:    "UINTEGER",
		types.UInt64Column:    "UBIGINT",
		types.Int8Column:      "TINYINT",
		types.BigIntColumn:    "HUGEINT",
		types.StringColumn:    "VARCHAR",
		types.TimestampColumn: "TIMESTAMPTZ",
	},
}

// Quote renders name as an identifier of the dialect. Postgres names may be
// schema qualified.
func Quote(dialect Dialect, name string) string {
	switch dialect {
	case ClickHouse:
		return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
	case Postgres:
		parts := strings.Split(name, ".")
		for idx, part := range parts {
			parts[idx] = pq.QuoteIdentifier(part)
		}
		return strings.Join(parts, ".")
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

func quoteAll(dialect Dialect, columns []types.Column) []string {
	quoted := make([]string, 0, len(columns))
	for _, column := range columns {
		quoted = append(quoted, Quote(dialect, column.Name))
	}
	return quoted
}

// CreateTableQuery returns the DDL of a sink table holding columns. On
// ClickHouse a non-empty signColumn selects a CollapsingMergeTree on it, and
// rows are keyed by every column except amounts and the sign.
func CreateTableQuery(dialect Dialect, table string, columns []types.Column, signColumn string) (string, error) {
	definitions := make([]string, 0, len(columns))
	orderBy := []string{}
	for _, column := range columns {
		if column.Type != types.BigIntColumn && column.Type != types.Int8Column {
			orderBy = append(orderBy, Quote(dialect, column.Name))
		}
		columnType, found := columnTypes[dialect][column.Type]
		if !found {
			return "", fmt.Errorf("column[%s] of type[%s] not supported on %s", column.Name, column.Type, dialect)
		}
		definitions = append(definitions, fmt.Sprintf("%s %s", Quote(dialect, column.Name), columnType))
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Quote(dialect, table), strings.Join(definitions, ", "))
	if dialect == ClickHouse {
		engine := utils.Ternary(signColumn != "", fmt.Sprintf("CollapsingMergeTree(%s)", Quote(dialect, signColumn)), "MergeTree")
		query = fmt.Sprintf("%s ENGINE = %s ORDER BY (%s)", query, engine, strings.Join(orderBy, ", "))
	}
	return query, nil
}

// ClickHouseInsertQuery prefixes a native batch insert
func ClickHouseInsertQuery(table string, columns []types.Column) string {
	return fmt.Sprintf("INSERT INTO %s (%s)", Quote(ClickHouse, table), strings.Join(quoteAll(ClickHouse, columns), ", "))
}

// DuckDBInsertQuery returns a single row insert. Big integers are bound as
// decimal strings and cast server side.
func DuckDBInsertQuery(table string, columns []types.Column) string {
	placeholders := make([]string, 0, len(columns))
	for _, column := range columns {
		placeholders = append(placeholders, utils.Ternary(column.Type == types.BigIntColumn, "CAST(? AS HUGEINT)", "?"))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Quote(DuckDB, table), strings.Join(quoteAll(DuckDB, columns), ", "), strings.Join(placeholders, ", "))
}

// Checkpoint tables, one row per stream

func PostgresCheckpointTableQuery(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		stream_id TEXT PRIMARY KEY,
		block_number BIGINT NOT NULL,
		block_hash TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, Quote(Postgres, table))
}

func PostgresGetCheckpointQuery(table string) string {
	return fmt.Sprintf(`SELECT stream_id, block_number, block_hash FROM %s WHERE stream_id = $1`, Quote(Postgres, table))
}

// PostgresUpsertCheckpointQuery affects no row when the stored checkpoint is ahead
func PostgresUpsertCheckpointQuery(table string) string {
	quoted := Quote(Postgres, table)
	return fmt.Sprintf(`INSERT INTO %[1]s AS c (stream_id, block_number, block_hash, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (stream_id) DO UPDATE SET block_number = EXCLUDED.block_number, block_hash = EXCLUDED.block_hash, updated_at = now()
		WHERE c.block_number <= EXCLUDED.block_number`, quoted)
}

func PostgresTryLockQuery() string {
	return `SELECT pg_try_advisory_lock(hashtext($1))`
}

func PostgresUnlockQuery() string {
	return `SELECT pg_advisory_unlock(hashtext($1))`
}

// ClickHouseCheckpointTableQuery keeps the latest row per stream on merge
func ClickHouseCheckpointTableQuery(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		stream_id String,
		block_number UInt64,
		block_hash String,
		updated_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at) ORDER BY stream_id`, Quote(ClickHouse, table))
}

func ClickHouseGetCheckpointQuery(table string) string {
	return fmt.Sprintf(`SELECT block_number, block_hash FROM %s FINAL WHERE stream_id = ? ORDER BY updated_at DESC LIMIT 1`, Quote(ClickHouse, table))
}

func ClickHouseInsertCheckpointQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (stream_id, block_number, block_hash, updated_at) VALUES (?, ?, ?, ?)`, Quote(ClickHouse, table))
}

// WithTx runs fn inside a transaction, committing only when fn succeeds
func WithTx(ctx context.Context, client *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := client.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = fmt.Errorf("%w (rollback failed: %s)", err, rerr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
