package merge

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// user is the record type most tests synchronize.
type user struct {
	ID   int64
	Name string
	Code string
}

func userDescriptor() *Descriptor[user] {
	return Describe(
		Field("ID", func(u *user) *int64 { return &u.ID }, Column("id")),
		Field("Name", func(u *user) *string { return &u.Name }, Column("name")),
		Field("Code", func(u *user) *string { return &u.Code }, Column("code")),
	).WithTable("users")
}

// stubDialect renders short, predictable statements and records the last statement input.
type stubDialect struct {
	last Statement
}

const stubColumnsQuery = "SELECT catalog FROM columns WHERE schema_name = ? AND table_name = ?"

func (d *stubDialect) Name() string          { return "stub" }
func (d *stubDialect) DefaultSchema() string { return "dbo" }
func (d *stubDialect) Quote(id string) string {
	return `"` + id + `"`
}
func (d *stubDialect) MaxParams() int { return 100 }

func (d *stubDialect) StagingTableName(table string) string { return "stg_" + table }

func (d *stubDialect) CreateStagingTable(staging string, source TableRef, columns []string) string {
	return fmt.Sprintf("CREATE STAGING %s FROM %s (%s)", staging, source, strings.Join(columns, ", "))
}

func (d *stubDialect) RelaxIdentity(staging string, identity ColumnInfo) string {
	return fmt.Sprintf("RELAX %s.%s", staging, identity.Name)
}

func (d *stubDialect) ColumnsQuery(schema, table string) (string, []any) {
	return stubColumnsQuery, []any{schema, table}
}

func (d *stubDialect) statements(verb string, s Statement) []string {
	d.last = s
	out := []string{fmt.Sprintf("%s %s FROM %s", verb, s.Target, s.Staging)}
	if s.ReturnIdentity {
		out = append(out, "RETURN "+s.Identity.Name)
	}
	return out
}

func (d *stubDialect) InsertStatements(s Statement) []string { return d.statements("INSERT", s) }
func (d *stubDialect) UpsertStatements(s Statement) []string { return d.statements("UPSERT", s) }
func (d *stubDialect) DeleteStatements(s Statement) []string { return d.statements("DELETE", s) }
func (d *stubDialect) UpdateStatements(s Statement) []string {
	if len(s.SetColumns()) == 0 {
		d.last = s
		return nil
	}
	return d.statements("UPDATE", s)
}

// newMockDB opens gorm over sqlmock the way the repository tests do.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return db, mock
}

// catalogRows returns the users catalog: identity key id, then name and code.
func catalogRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"name", "type", "identity", "pk"}).
		AddRow("id", "bigint", int64(1), int64(1)).
		AddRow("name", "varchar", int64(0), int64(0)).
		AddRow("code", "varchar", int64(0), int64(0))
}

func expectCatalog(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexpQuote(stubColumnsQuery)).WithArgs("dbo", "users").WillReturnRows(rows)
}

func regexpQuote(s string) string {
	return regexp.QuoteMeta(s)
}

// fakeRows feeds identity values to MapIdentities.
type fakeRows struct {
	values   []any
	consumed int
	err      error
}

func (r *fakeRows) Next() bool {
	if r.consumed >= len(r.values) {
		return false
	}
	r.consumed++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*any)) = r.values[r.consumed-1]
	return nil
}

func (r *fakeRows) Err() error { return r.err }
