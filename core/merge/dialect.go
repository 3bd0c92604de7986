package merge

import (
	"context"
	"slices"
	"strings"

	"gorm.io/gorm"
)

// Dialect generates the engine-specific SQL of a bulk operation.
// Implementations are stateless and safe for concurrent use.
type Dialect interface {
	// Name identifies the database engine.
	Name() string
	// DefaultSchema is used when neither the options nor the descriptor name a schema.
	DefaultSchema() string
	// Quote quotes a single identifier.
	Quote(identifier string) string
	// MaxParams is the bind parameter limit of one statement.
	MaxParams() int
	// StagingTableName derives the staging table name from the target table name.
	StagingTableName(table string) string
	// CreateStagingTable returns the DDL creating an empty session-scoped table
	// with the shape of columns from source.
	CreateStagingTable(staging string, source TableRef, columns []string) string
	// RelaxIdentity returns the DDL making the staged identity column nullable,
	// or "" when the staging DDL does not copy the constraint.
	RelaxIdentity(staging string, identity ColumnInfo) string
	// ColumnsQuery returns the catalog query yielding name, data type,
	// identity flag and primary key flag per column.
	ColumnsQuery(schema, table string) (string, []any)

	// The statement builders return the ordered statements of one operation.
	// When Statement.ReturnIdentity is set, the last statement yields one
	// identity value per generated row, in staging order.
	InsertStatements(s Statement) []string
	UpdateStatements(s Statement) []string
	UpsertStatements(s Statement) []string
	DeleteStatements(s Statement) []string
}

// Statement carries the inputs of a statement builder.
type Statement struct {
	// Target is the destination table.
	Target TableRef
	// Staging is the staging table name.
	Staging string
	// Columns are the transferred columns in load order.
	Columns []string
	// PrimaryKeys are the match columns of update, upsert and delete.
	PrimaryKeys []string
	// Identity is the mapped identity column, nil when absent or excluded.
	Identity *ColumnInfo
	// ReturnIdentity requests generated identities from the last statement.
	ReturnIdentity bool
}

// HasIdentity reports whether the identity column is part of the transfer.
func (s Statement) HasIdentity() bool { return s.Identity != nil }

// InsertColumns returns the columns without the identity column.
func (s Statement) InsertColumns() []string {
	if s.Identity == nil {
		return slices.Clone(s.Columns)
	}
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if !strings.EqualFold(c, s.Identity.Name) {
			out = append(out, c)
		}
	}
	return out
}

// SetColumns returns the columns assigned on update: neither key nor identity.
func (s Statement) SetColumns() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if s.Identity != nil && strings.EqualFold(c, s.Identity.Name) {
			continue
		}
		if slices.ContainsFunc(s.PrimaryKeys, func(k string) bool { return strings.EqualFold(k, c) }) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// NaturalKeys returns the primary keys other than the identity column.
func (s Statement) NaturalKeys() []string {
	out := make([]string, 0, len(s.PrimaryKeys))
	for _, k := range s.PrimaryKeys {
		if s.Identity == nil || !strings.EqualFold(k, s.Identity.Name) {
			out = append(out, k)
		}
	}
	return out
}

// Qualify quotes a table reference with the dialect.
func Qualify(d Dialect, ref TableRef) string {
	if ref.Schema == "" {
		return d.Quote(ref.Name)
	}
	return d.Quote(ref.Schema) + "." + d.Quote(ref.Name)
}

// RowSource exposes ordered rows to a RowLoader without exposing the record type.
type RowSource interface {
	// Columns returns the column names in value order.
	Columns() []string
	// Len returns the number of rows.
	Len() int
	// Values returns the values of row i in column order.
	Values(i int) ([]any, error)
	// BatchSize is the preferred number of rows per chunk.
	BatchSize() int
}

// RowLoader transfers rows into a table on the given session, preserving order.
type RowLoader interface {
	Load(ctx context.Context, db *gorm.DB, table TableRef, src RowSource) error
}
