package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bulkmerge/core/merge"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/gorm"
)

// errNotPgx signals a session whose driver connection is not pgx.
var errNotPgx = errors.New("connection is not a pgx connection")

// PostgresLoader streams rows with the COPY protocol.
//
// COPY needs the raw pgx connection, which is only reachable through a
// dedicated *sql.Conn. Sessions bound to a transaction, or backed by another
// driver, fall back to batched INSERT statements.
type PostgresLoader struct {
	fallback *merge.BatchLoader
}

// NewPostgresLoader creates a COPY loader whose fallback quotes for d.
func NewPostgresLoader(d merge.Dialect) *PostgresLoader {
	return &PostgresLoader{fallback: merge.NewBatchLoader(d)}
}

// Load implements merge.RowLoader.
func (l *PostgresLoader) Load(ctx context.Context, db *gorm.DB, table merge.TableRef, src merge.RowSource) error {
	conn, ok := db.Statement.ConnPool.(*sql.Conn)
	if !ok {
		return l.fallback.Load(ctx, db, table, src)
	}

	err := conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errNotPgx
		}
		return copyRows(ctx, sc.Conn(), table, src)
	})
	if errors.Is(err, errNotPgx) {
		return l.fallback.Load(ctx, db, table, src)
	}

	return err
}

// copyRows issues one COPY per batch, in source order.
func copyRows(ctx context.Context, conn *pgx.Conn, table merge.TableRef, src merge.RowSource) error {
	identifier := pgx.Identifier{table.Name}
	if table.Schema != "" {
		identifier = pgx.Identifier{table.Schema, table.Name}
	}
	columns := src.Columns()

	batch := src.BatchSize()
	if batch <= 0 {
		batch = merge.DefaultBatchSize
	}

	total := src.Len()
	for start := 0; start < total; start += batch {
		end := min(start+batch, total)

		rows := pgx.CopyFromSlice(end-start, func(i int) ([]any, error) {
			return src.Values(start + i)
		})

		copied, err := conn.CopyFrom(ctx, identifier, columns, rows)
		if err != nil {
			return fmt.Errorf("failed to copy rows %d-%d into %s: %w", start, end-1, table, err)
		}
		if copied != int64(end-start) {
			return fmt.Errorf("copied %d of %d rows into %s", copied, end-start, table)
		}
	}

	return nil
}
