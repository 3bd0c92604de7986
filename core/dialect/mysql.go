package dialect

import (
	"fmt"

	"bulkmerge/core/merge"
)

// MySQLDialect generates MySQL 8 statements.
//
// The staging table carries an extra auto-increment ordinal that records load
// order, since MySQL tables have no physical row order to rely on. MySQL has no
// RETURNING clause: generated identities are read back with a final SELECT,
// joined on the natural keys when the table has any, otherwise derived from
// LAST_INSERT_ID. The latter requires consecutive auto-increment values for one
// INSERT ... SELECT, i.e. innodb_autoinc_lock_mode 0 or 1.
type MySQLDialect struct{}

var _ merge.Dialect = (*MySQLDialect)(nil)

// ordinalColumn is the staging-only load order column.
const ordinalColumn = "_bm_ord"

const mysqlColumnsQuery = `SELECT COLUMN_NAME, COLUMN_TYPE,
	CASE WHEN EXTRA LIKE '%auto_increment%' THEN 1 ELSE 0 END,
	CASE WHEN COLUMN_KEY = 'PRI' THEN 1 ELSE 0 END
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

// Name returns "mysql".
func (d *MySQLDialect) Name() string { return string(MySQL) }

// DefaultSchema is empty: unqualified names resolve against the connection database.
func (d *MySQLDialect) DefaultSchema() string { return "" }

// Quote wraps id in backticks, doubling embedded backticks.
func (d *MySQLDialect) Quote(id string) string { return backtick(id) }

// MaxParams is the prepared statement limit of 65535 placeholders.
func (d *MySQLDialect) MaxParams() int { return 65535 }

// StagingTableName returns "_bm_staging_" + table.
func (d *MySQLDialect) StagingTableName(table string) string { return stagingName(table) }

// CreateStagingTable needs a connection opened with multiStatements.
func (d *MySQLDialect) CreateStagingTable(staging string, source merge.TableRef, columns []string) string {
	q := quoter(backtick)
	return fmt.Sprintf("DROP TEMPORARY TABLE IF EXISTS %s; CREATE TEMPORARY TABLE %s (%s BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY) SELECT %s FROM %s LIMIT 0",
		q(staging), q(staging), q(ordinalColumn), q.list(columns), merge.Qualify(d, source))
}

// RelaxIdentity redeclares the staged identity column as NULL with its catalog type.
func (d *MySQLDialect) RelaxIdentity(staging string, identity merge.ColumnInfo) string {
	dataType := identity.DataType
	if dataType == "" {
		dataType = "BIGINT"
	}
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s NULL", d.Quote(staging), d.Quote(identity.Name), dataType)
}

// ColumnsQuery reads INFORMATION_SCHEMA.COLUMNS; an empty schema means DATABASE().
func (d *MySQLDialect) ColumnsQuery(schema, table string) (string, []any) {
	return mysqlColumnsQuery, []any{schema, table}
}

// InsertStatements appends a SELECT reading generated identities back in staging order.
func (d *MySQLDialect) InsertStatements(s merge.Statement) []string {
	if !s.HasIdentity() {
		return []string{d.insert(s, s.Columns, "TRUE", "")}
	}
	statements := []string{
		d.insert(s, s.Columns, d.explicitRows(s), ""),
		d.insert(s, s.InsertColumns(), d.generatedRows(s), ""),
	}
	return d.withIdentities(s, statements)
}

// UpdateStatements uses a multi-table UPDATE joined on the keys.
func (d *MySQLDialect) UpdateStatements(s merge.Statement) []string {
	set := s.SetColumns()
	if len(set) == 0 {
		return nil
	}
	q := quoter(backtick)
	return []string{fmt.Sprintf("UPDATE %s AS t INNER JOIN %s AS s ON %s SET %s",
		merge.Qualify(d, s.Target), q(s.Staging), q.match("t", "s", s.PrimaryKeys), q.assign("t", "s", set))}
}

// UpsertStatements uses ON DUPLICATE KEY UPDATE, which matches any unique key.
func (d *MySQLDialect) UpsertStatements(s merge.Statement) []string {
	if !s.HasIdentity() {
		return []string{d.insert(s, s.Columns, "TRUE", d.onDuplicate(s))}
	}
	statements := []string{
		d.insert(s, s.Columns, d.explicitRows(s), d.onDuplicate(s)),
		d.insert(s, s.InsertColumns(), d.generatedRows(s), d.onDuplicate(s)),
	}
	return d.withIdentities(s, statements)
}

// DeleteStatements uses a multi-table DELETE joined on the keys.
func (d *MySQLDialect) DeleteStatements(s merge.Statement) []string {
	q := quoter(backtick)
	return []string{fmt.Sprintf("DELETE t FROM %s AS t INNER JOIN %s AS s ON %s",
		merge.Qualify(d, s.Target), q(s.Staging), q.match("t", "s", s.PrimaryKeys))}
}

func (d *MySQLDialect) insert(s merge.Statement, columns []string, where, suffix string) string {
	q := quoter(backtick)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE %s ORDER BY s.%s%s",
		merge.Qualify(d, s.Target), q.list(columns), q.prefixed("s", columns), q(s.Staging), where, q(ordinalColumn), suffix)
}

// onDuplicate assigns the staged values. Without columns to set, the first
// key is assigned to itself so the statement stays valid.
func (d *MySQLDialect) onDuplicate(s merge.Statement) string {
	q := quoter(backtick)
	set := s.SetColumns()
	if len(set) == 0 {
		k := q(s.PrimaryKeys[0])
		return " ON DUPLICATE KEY UPDATE " + k + " = " + k
	}
	return " ON DUPLICATE KEY UPDATE " + q.assign("", "s", set)
}

// withIdentities appends the SELECT reading generated identities back, in staging order.
func (d *MySQLDialect) withIdentities(s merge.Statement, statements []string) []string {
	if !s.ReturnIdentity {
		return statements
	}
	q := quoter(backtick)
	identity := q(s.Identity.Name)
	ordinal := "s." + q(ordinalColumn)

	if natural := s.NaturalKeys(); len(natural) > 0 {
		return append(statements, fmt.Sprintf("SELECT t.%s FROM %s AS s INNER JOIN %s AS t ON %s WHERE %s ORDER BY %s",
			identity, q(s.Staging), merge.Qualify(d, s.Target), q.match("t", "s", natural), d.generatedRows(s), ordinal))
	}

	return append(statements, fmt.Sprintf("SELECT LAST_INSERT_ID() + ROW_NUMBER() OVER (ORDER BY %s) - 1 FROM %s AS s WHERE %s ORDER BY %s",
		ordinal, q(s.Staging), d.generatedRows(s), ordinal))
}

func (d *MySQLDialect) explicitRows(s merge.Statement) string {
	return fmt.Sprintf("COALESCE(s.%s, 0) <> 0", d.Quote(s.Identity.Name))
}

func (d *MySQLDialect) generatedRows(s merge.Statement) string {
	return fmt.Sprintf("COALESCE(s.%s, 0) = 0", d.Quote(s.Identity.Name))
}
