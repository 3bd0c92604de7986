package dialect

import (
	"fmt"

	"bulkmerge/core/merge"
)

// SQLiteDialect generates SQLite statements (3.35 or newer for RETURNING).
// A single INTEGER PRIMARY KEY column aliases the rowid and is reported as
// the identity column. Staging order is the staging table rowid.
type SQLiteDialect struct{}

var _ merge.Dialect = (*SQLiteDialect)(nil)

const sqliteColumnsQuery = `SELECT p.name, p.type,
	CASE WHEN p.pk = 1 AND upper(p.type) = 'INTEGER'
		AND (SELECT COUNT(*) FROM pragma_table_info(?, ?) WHERE pk > 0) = 1 THEN 1 ELSE 0 END,
	CASE WHEN p.pk > 0 THEN 1 ELSE 0 END
FROM pragma_table_info(?, ?) AS p
ORDER BY p.cid`

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string { return string(SQLite) }

// DefaultSchema returns "main".
func (d *SQLiteDialect) DefaultSchema() string { return "main" }

// Quote wraps id in double quotes, doubling embedded quotes.
func (d *SQLiteDialect) Quote(id string) string { return doubleQuote(id) }

// MaxParams is SQLITE_MAX_VARIABLE_NUMBER of SQLite 3.32 and newer.
func (d *SQLiteDialect) MaxParams() int { return 32766 }

// StagingTableName returns "_bm_staging_" + table.
func (d *SQLiteDialect) StagingTableName(table string) string { return stagingName(table) }

// CreateStagingTable drops a leftover table in the temp schema first.
func (d *SQLiteDialect) CreateStagingTable(staging string, source merge.TableRef, columns []string) string {
	q := quoter(doubleQuote)
	return fmt.Sprintf("DROP TABLE IF EXISTS temp.%s; CREATE TEMP TABLE %s AS SELECT %s FROM %s WHERE 0",
		q(staging), q(staging), q.list(columns), merge.Qualify(d, source))
}

// RelaxIdentity is a no-op: CREATE TABLE AS copies no constraints.
func (d *SQLiteDialect) RelaxIdentity(string, merge.ColumnInfo) string { return "" }

// ColumnsQuery reads pragma_table_info for schema.table.
func (d *SQLiteDialect) ColumnsQuery(schema, table string) (string, []any) {
	return sqliteColumnsQuery, []any{table, schema, table, schema}
}

// InsertStatements returns generated identities with RETURNING, ordered by staging rowid.
func (d *SQLiteDialect) InsertStatements(s merge.Statement) []string {
	if !s.HasIdentity() {
		return []string{d.insert(s, s.Columns, "TRUE", "")}
	}
	return []string{
		d.insert(s, s.Columns, d.explicitRows(s), ""),
		d.insert(s, s.InsertColumns(), d.generatedRows(s), d.returning(s)),
	}
}

// UpdateStatements uses UPDATE ... FROM (SQLite 3.33 or newer).
func (d *SQLiteDialect) UpdateStatements(s merge.Statement) []string {
	set := s.SetColumns()
	if len(set) == 0 {
		return nil
	}
	q := quoter(doubleQuote)
	return []string{fmt.Sprintf("UPDATE %s AS t SET %s FROM %s AS s WHERE %s",
		merge.Qualify(d, s.Target), q.assign("", "s", set), q(s.Staging), q.match("t", "s", s.PrimaryKeys))}
}

// UpsertStatements keeps a WHERE clause on every SELECT, which SQLite needs
// to parse ON CONFLICT after INSERT ... SELECT.
func (d *SQLiteDialect) UpsertStatements(s merge.Statement) []string {
	if !s.HasIdentity() {
		return []string{d.insert(s, s.Columns, "TRUE", d.onConflict(s, false))}
	}
	return []string{
		d.insert(s, s.Columns, d.explicitRows(s), d.onConflict(s, false)),
		d.insert(s, s.InsertColumns(), d.generatedRows(s), d.onConflict(s, s.ReturnIdentity)+d.returning(s)),
	}
}

// DeleteStatements deletes target rows with a matching staging row.
func (d *SQLiteDialect) DeleteStatements(s merge.Statement) []string {
	q := quoter(doubleQuote)
	return []string{fmt.Sprintf("DELETE FROM %s AS t WHERE EXISTS (SELECT 1 FROM %s AS s WHERE %s)",
		merge.Qualify(d, s.Target), q(s.Staging), q.match("t", "s", s.PrimaryKeys))}
}

func (d *SQLiteDialect) insert(s merge.Statement, columns []string, where, suffix string) string {
	q := quoter(doubleQuote)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE %s ORDER BY s.rowid%s",
		merge.Qualify(d, s.Target), q.list(columns), q.prefixed("s", columns), q(s.Staging), where, suffix)
}

func (d *SQLiteDialect) onConflict(s merge.Statement, returnAll bool) string {
	q := quoter(doubleQuote)
	set := s.SetColumns()
	clause := fmt.Sprintf(" ON CONFLICT (%s) DO ", q.list(s.PrimaryKeys))
	switch {
	case len(set) > 0:
		return clause + "UPDATE SET " + q.assign("", "excluded", set)
	case returnAll:
		return clause + "UPDATE SET " + q.assign("", "excluded", s.PrimaryKeys[:1])
	default:
		return clause + "NOTHING"
	}
}

func (d *SQLiteDialect) returning(s merge.Statement) string {
	if !s.ReturnIdentity {
		return ""
	}
	return " RETURNING " + d.Quote(s.Identity.Name)
}

func (d *SQLiteDialect) explicitRows(s merge.Statement) string {
	return fmt.Sprintf("COALESCE(s.%s, 0) <> 0", d.Quote(s.Identity.Name))
}

func (d *SQLiteDialect) generatedRows(s merge.Statement) string {
	return fmt.Sprintf("COALESCE(s.%s, 0) = 0", d.Quote(s.Identity.Name))
}
