package merge

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
)

// catalogFunc loads the columns of a table. It is LoadCatalog or a cached variant.
type catalogFunc func(ctx context.Context, db *gorm.DB, d Dialect, schema, table string) ([]ColumnInfo, error)

// Context is the resolved, immutable state of one bulk operation.
// Only the records it borrows are mutated, and only by identity mapping.
type Context[T any] struct {
	db          *gorm.DB
	items       []T
	descriptor  *Descriptor[T]
	table       string
	schema      string
	staging     string
	columns     []string
	members     map[string]Member[T]
	catalog     map[string]ColumnInfo
	identity    *ColumnInfo
	primaryKeys []string
	batchSize   int
	timeout     time.Duration
}

// BuildContext resolves the operation state for items against d.
// A nil dialect skips the catalog lookup and the staging name, as copy does.
func BuildContext[T any](ctx context.Context, db *gorm.DB, d Dialect, desc *Descriptor[T], items []T, opts Options) (*Context[T], error) {
	return buildContext(ctx, db, d, LoadCatalog, desc, items, opts)
}

func buildContext[T any](ctx context.Context, db *gorm.DB, d Dialect, load catalogFunc, desc *Descriptor[T], items []T, opts Options) (*Context[T], error) {
	defaultSchema := ""
	if d != nil {
		defaultSchema = d.DefaultSchema()
	}
	res := resolve(desc, opts, defaultSchema)

	mc := &Context[T]{
		db:         db,
		items:      items,
		descriptor: desc,
		table:      res.table,
		schema:     res.schema,
		members:    make(map[string]Member[T], len(res.members)),
		batchSize:  opts.BatchSize,
		timeout:    opts.Timeout,
	}
	if mc.batchSize <= 0 {
		mc.batchSize = DefaultBatchSize
	}

	// Catalog lookup only runs with a dialect
	var catalog []ColumnInfo
	if d != nil {
		var err error
		catalog, err = load(ctx, db, d, res.schema, res.table)
		if err != nil {
			return nil, err
		}
		if len(catalog) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, mc.Target())
		}

		mc.catalog = make(map[string]ColumnInfo, len(catalog))
		for _, c := range catalog {
			mc.catalog[strings.ToLower(c.Name)] = c
		}
		for _, c := range catalog {
			if c.IsIdentity {
				identity := c
				mc.identity = &identity
				break
			}
		}
		mc.staging = d.StagingTableName(res.table)
	}

	// Primary keys: option > annotation > catalog
	switch {
	case len(opts.PrimaryKeys) > 0:
		mc.primaryKeys = slices.Clone(opts.PrimaryKeys)
	case len(res.keys) > 0:
		mc.primaryKeys = res.keys
	default:
		for _, c := range catalog {
			if c.IsPrimaryKey {
				mc.primaryKeys = append(mc.primaryKeys, c.Name)
			}
		}
	}

	// Column map, minus exclusions. Keys stay untouched.
	for _, m := range res.members {
		column := m.Column()
		if excluded(opts.ExcludeProperties, column, m.name) {
			continue
		}
		if _, dup := mc.members[column]; dup {
			return nil, fmt.Errorf("column %s is declared by more than one member", column)
		}
		mc.columns = append(mc.columns, column)
		mc.members[column] = m
	}

	return mc, nil
}

func excluded(exclude []string, column, member string) bool {
	for _, x := range exclude {
		if x == column || x == member {
			return true
		}
	}
	return false
}

// DB returns the session the operation runs on.
func (c *Context[T]) DB() *gorm.DB { return c.db }

// Items returns the borrowed records.
func (c *Context[T]) Items() []T { return c.items }

// Descriptor returns the descriptor the context was resolved from.
func (c *Context[T]) Descriptor() *Descriptor[T] { return c.descriptor }

// TableName returns the resolved target table name.
func (c *Context[T]) TableName() string { return c.table }

// Schema returns the resolved schema, empty when none applies.
func (c *Context[T]) Schema() string { return c.schema }

// StagingTableName returns the staging table name, empty without a dialect.
func (c *Context[T]) StagingTableName() string { return c.staging }

// Target returns the target table reference.
func (c *Context[T]) Target() TableRef { return TableRef{Schema: c.schema, Name: c.table} }

// Staging returns the staging table reference. Staging tables are session scoped and unqualified.
func (c *Context[T]) Staging() TableRef { return TableRef{Name: c.staging} }

// Columns returns the transferred column names in load order.
func (c *Context[T]) Columns() []string { return slices.Clone(c.columns) }

// Member returns the member mapped to column.
func (c *Context[T]) Member(column string) (Member[T], bool) {
	m, ok := c.members[column]
	return m, ok
}

// Catalog returns the column facts keyed by lower-cased name, nil when no lookup ran.
func (c *Context[T]) Catalog() map[string]ColumnInfo { return c.catalog }

// Identity returns the identity column of the table, nil when absent.
func (c *Context[T]) Identity() *ColumnInfo { return c.identity }

// PrimaryKeys returns the match columns.
func (c *Context[T]) PrimaryKeys() []string { return slices.Clone(c.primaryKeys) }

// BatchSize returns the number of rows per transfer chunk.
func (c *Context[T]) BatchSize() int { return c.batchSize }

// Timeout returns the per-command timeout, zero for none.
func (c *Context[T]) Timeout() time.Duration { return c.timeout }

// Len returns the number of records.
func (c *Context[T]) Len() int { return len(c.items) }

// Values returns the column values of record i in column order.
func (c *Context[T]) Values(i int) ([]any, error) {
	if i < 0 || i >= len(c.items) {
		return nil, fmt.Errorf("row %d out of range", i)
	}
	values := make([]any, len(c.columns))
	for j, column := range c.columns {
		values[j] = c.members[column].Value(&c.items[i])
	}
	return values, nil
}

// IdentityMember returns the member bound to the identity column.
// The column is matched case-insensitively. The returned ColumnInfo carries
// the column name as spelled in the column map.
func (c *Context[T]) IdentityMember() (Member[T], ColumnInfo, bool) {
	if c.identity == nil {
		return Member[T]{}, ColumnInfo{}, false
	}
	for _, column := range c.columns {
		if strings.EqualFold(column, c.identity.Name) {
			info := *c.identity
			info.Name = column
			return c.members[column], info, true
		}
	}
	return Member[T]{}, ColumnInfo{}, false
}

// statement bundles the statement builder inputs.
func (c *Context[T]) statement(returnIdentity bool) Statement {
	s := Statement{
		Target:      c.Target(),
		Staging:     c.staging,
		Columns:     c.Columns(),
		PrimaryKeys: c.PrimaryKeys(),
	}
	if _, info, ok := c.IdentityMember(); ok {
		s.Identity = &info
		s.ReturnIdentity = returnIdentity
	}
	return s
}
