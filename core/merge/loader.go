package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var errNoDialect = errors.New("batch loader needs a dialect to quote identifiers")

// BatchLoader transfers rows with multi-row INSERT statements.
// Each statement carries at most BatchSize rows and stays under the
// dialect's bind parameter limit. Rows are inserted in source order.
type BatchLoader struct {
	dialect Dialect
}

// NewBatchLoader creates a loader that quotes and sizes statements for d.
func NewBatchLoader(d Dialect) *BatchLoader {
	return &BatchLoader{dialect: d}
}

// Load implements RowLoader.
func (l *BatchLoader) Load(ctx context.Context, db *gorm.DB, table TableRef, src RowSource) error {
	if l.dialect == nil {
		return errNoDialect
	}
	columns := src.Columns()
	if len(columns) == 0 {
		return errors.New("no columns to load")
	}

	rowsPerStatement := l.RowsPerStatement(src.BatchSize(), len(columns))

	// Statement prefix and row template are the same for every chunk
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = l.dialect.Quote(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", Qualify(l.dialect, table), strings.Join(quoted, ", "))
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	total := src.Len()
	for start := 0; start < total; start += rowsPerStatement {
		end := min(start+rowsPerStatement, total)

		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, (end-start)*len(columns))
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteString(row)

			values, err := src.Values(i)
			if err != nil {
				return err
			}
			args = append(args, values...)
		}

		if err := db.WithContext(ctx).Exec(sb.String(), args...).Error; err != nil {
			return fmt.Errorf("failed to load rows %d-%d into %s: %w", start, end-1, table, err)
		}
	}

	return nil
}

// RowsPerStatement returns the chunk size for a row width, honoring both the
// requested batch size and the bind parameter limit.
func (l *BatchLoader) RowsPerStatement(batchSize, width int) int {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if width <= 0 {
		return batchSize
	}
	if limit := l.dialect.MaxParams() / width; limit > 0 && limit < batchSize {
		return limit
	}
	return batchSize
}
