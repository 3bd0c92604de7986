package dialect

import (
	"fmt"
	"strings"

	"bulkmerge/core/merge"
)

// Kind is a supported database engine.
type Kind string

const (
	Postgres Kind = "postgres"
	MySQL    Kind = "mysql"
	SQLite   Kind = "sqlite"
)

// Parse converts a driver name into a Kind.
func Parse(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s", name)
	}
}

// New returns the dialect of kind and the row loader that suits it.
func New(kind Kind) (merge.Dialect, merge.RowLoader, error) {
	switch kind {
	case Postgres:
		d := &PostgresDialect{}
		return d, NewPostgresLoader(d), nil
	case MySQL:
		d := &MySQLDialect{}
		return d, merge.NewBatchLoader(d), nil
	case SQLite:
		d := &SQLiteDialect{}
		return d, merge.NewBatchLoader(d), nil
	default:
		return nil, nil, fmt.Errorf("unsupported dialect: %s", kind)
	}
}

// stagingPrefix marks staging tables. Names are derived from the target table only.
const stagingPrefix = "_bm_staging_"

func stagingName(table string) string {
	return stagingPrefix + table
}
