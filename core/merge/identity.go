package merge

import (
	"errors"
	"fmt"
)

// Rows is the subset of *sql.Rows the identity reconciler reads.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// RowsError reports a failure of the identity row stream itself, as opposed to
// a value that could not be read or assigned. Drivers that execute a RETURNING
// statement lazily surface its constraint violations this way.
type RowsError struct {
	Err error
}

func (e *RowsError) Error() string { return "failed to read identity rows: " + e.Err.Error() }

// Unwrap returns the driver error.
func (e *RowsError) Unwrap() error { return e.Err }

// IsRowsError reports whether err came from the row stream.
func IsRowsError(err error) bool {
	var re *RowsError
	return errors.As(err, &re)
}

// MapIdentities writes generated identity values onto the records that lack one.
//
// Records are visited in order. A record whose member already holds a
// non-zero value is skipped without consuming a row; any other record takes
// the next row. Mapping stops as soon as either side is exhausted. It returns
// the number of records updated. Stream failures come back as *RowsError.
func MapIdentities[T any](rows Rows, items []T, member Member[T]) (int, error) {
	mapped := 0
	for i := range items {
		item := &items[i]

		// Explicit identities were inserted as-is
		if !member.IsZero(item) {
			continue
		}
		if !rows.Next() {
			break
		}

		var value any
		if err := rows.Scan(&value); err != nil {
			return mapped, fmt.Errorf("failed to read identity for record %d: %w", i, err)
		}
		if err := member.Assign(item, value); err != nil {
			return mapped, fmt.Errorf("failed to assign identity %v to record %d: %w", value, i, err)
		}
		mapped++
	}

	if err := rows.Err(); err != nil {
		return mapped, &RowsError{Err: err}
	}

	return mapped, nil
}
