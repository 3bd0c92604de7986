package dialect

import (
	"fmt"

	"bulkmerge/core/merge"
)

// PostgresDialect generates PostgreSQL statements.
// Staging order is the physical insertion order (ctid) of the staging table,
// which only ever receives appends.
type PostgresDialect struct{}

var _ merge.Dialect = (*PostgresDialect)(nil)

const postgresColumnsQuery = `SELECT c.column_name, c.data_type,
	CASE WHEN c.is_identity = 'YES' OR c.column_default LIKE 'nextval(%' THEN 1 ELSE 0 END,
	CASE WHEN EXISTS (
		SELECT 1 FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
			AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = c.table_schema
			AND tc.table_name = c.table_name
			AND kcu.column_name = c.column_name
	) THEN 1 ELSE 0 END
FROM information_schema.columns c
WHERE c.table_schema = ? AND c.table_name = ?
ORDER BY c.ordinal_position`

// Name returns "postgres".
func (d *PostgresDialect) Name() string { return string(Postgres) }

// DefaultSchema returns "public".
func (d *PostgresDialect) DefaultSchema() string { return "public" }

// Quote wraps id in double quotes, doubling embedded quotes.
func (d *PostgresDialect) Quote(id string) string {
	return doubleQuote(id)
}

// MaxParams is the wire protocol limit of 65535 bind parameters.
func (d *PostgresDialect) MaxParams() int { return 65535 }

// StagingTableName returns "_bm_staging_" + table.
func (d *PostgresDialect) StagingTableName(table string) string { return stagingName(table) }

// CreateStagingTable drops a leftover of a previous operation on the same
// pooled session before creating the table.
func (d *PostgresDialect) CreateStagingTable(staging string, source merge.TableRef, columns []string) string {
	q := quoter(doubleQuote)
	return fmt.Sprintf("DROP TABLE IF EXISTS pg_temp.%s; CREATE TEMP TABLE %s AS SELECT %s FROM %s LIMIT 0",
		q(staging), q(staging), q.list(columns), merge.Qualify(d, source))
}

// RelaxIdentity drops NOT NULL from the staged identity column.
func (d *PostgresDialect) RelaxIdentity(staging string, identity merge.ColumnInfo) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", d.Quote(staging), d.Quote(identity.Name))
}

// ColumnsQuery reads information_schema; identity covers both IDENTITY and serial columns.
func (d *PostgresDialect) ColumnsQuery(schema, table string) (string, []any) {
	return postgresColumnsQuery, []any{schema, table}
}

// InsertStatements splits rows with explicit identities, inserted with
// OVERRIDING SYSTEM VALUE, from rows whose identity is generated and returned.
func (d *PostgresDialect) InsertStatements(s merge.Statement) []string {
	if !s.HasIdentity() {
		return []string{d.insert(s, s.Columns, "TRUE", false, "")}
	}
	return []string{
		d.insert(s, s.Columns, d.explicitRows(s), true, ""),
		d.insert(s, s.InsertColumns(), d.generatedRows(s), false, d.returning(s)),
	}
}

// UpdateStatements uses UPDATE ... FROM staging; nil when nothing is left to set.
func (d *PostgresDialect) UpdateStatements(s merge.Statement) []string {
	set := s.SetColumns()
	if len(set) == 0 {
		return nil
	}
	q := quoter(doubleQuote)
	return []string{fmt.Sprintf("UPDATE %s AS t SET %s FROM %s AS s WHERE %s",
		merge.Qualify(d, s.Target), q.assign("", "s", set), q(s.Staging), q.match("t", "s", s.PrimaryKeys))}
}

// UpsertStatements uses INSERT ... ON CONFLICT (keys) DO UPDATE.
func (d *PostgresDialect) UpsertStatements(s merge.Statement) []string {
	if !s.HasIdentity() {
		return []string{d.insert(s, s.Columns, "TRUE", false, d.onConflict(s, false))}
	}
	return []string{
		d.insert(s, s.Columns, d.explicitRows(s), true, d.onConflict(s, false)),
		d.insert(s, s.InsertColumns(), d.generatedRows(s), false, d.onConflict(s, s.ReturnIdentity)+d.returning(s)),
	}
}

// DeleteStatements uses DELETE ... USING staging.
func (d *PostgresDialect) DeleteStatements(s merge.Statement) []string {
	q := quoter(doubleQuote)
	return []string{fmt.Sprintf("DELETE FROM %s AS t USING %s AS s WHERE %s",
		merge.Qualify(d, s.Target), q(s.Staging), q.match("t", "s", s.PrimaryKeys))}
}

// insert renders INSERT ... SELECT from the staging table in staging order.
// Rows carrying an explicit identity override the generated value.
func (d *PostgresDialect) insert(s merge.Statement, columns []string, where string, override bool, suffix string) string {
	q := quoter(doubleQuote)
	overriding := ""
	if override {
		overriding = " OVERRIDING SYSTEM VALUE"
	}
	return fmt.Sprintf("INSERT INTO %s (%s)%s SELECT %s FROM %s AS s WHERE %s ORDER BY s.ctid%s",
		merge.Qualify(d, s.Target), q.list(columns), overriding, q.prefixed("s", columns), q(s.Staging), where, suffix)
}

func (d *PostgresDialect) explicitRows(s merge.Statement) string {
	return fmt.Sprintf("COALESCE(s.%s, 0) <> 0", d.Quote(s.Identity.Name))
}

func (d *PostgresDialect) generatedRows(s merge.Statement) string {
	return fmt.Sprintf("COALESCE(s.%s, 0) = 0", d.Quote(s.Identity.Name))
}

// onConflict renders the conflict clause. When every row must come back
// through RETURNING, a conflicting row without columns to set is touched
// with a no-op assignment instead of being skipped.
func (d *PostgresDialect) onConflict(s merge.Statement, returnAll bool) string {
	q := quoter(doubleQuote)
	set := s.SetColumns()
	clause := fmt.Sprintf(" ON CONFLICT (%s) DO ", q.list(s.PrimaryKeys))
	switch {
	case len(set) > 0:
		return clause + "UPDATE SET " + q.assign("", "EXCLUDED", set)
	case returnAll:
		return clause + "UPDATE SET " + q.assign("", "EXCLUDED", s.PrimaryKeys[:1])
	default:
		return clause + "NOTHING"
	}
}

func (d *PostgresDialect) returning(s merge.Statement) string {
	if !s.ReturnIdentity {
		return ""
	}
	return " RETURNING " + d.Quote(s.Identity.Name)
}
