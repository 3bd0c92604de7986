package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	createStaging = "CREATE STAGING stg_users FROM dbo.users (id, name, code)"
	relaxIdentity = "RELAX stg_users.id"
	loadStaging   = `INSERT INTO "stg_users" ("id", "name", "code") VALUES `
)

func newTestEngine(d Dialect) *Engine {
	return New(d, nil)
}

// expectStaging queues the catalog, staging DDL and row load of three-column users.
func expectStaging(mock sqlmock.Sqlmock, relax bool) {
	expectCatalog(mock, catalogRows())
	mock.ExpectExec(regexpQuote(createStaging)).WillReturnResult(sqlmock.NewResult(0, 0))
	if relax {
		mock.ExpectExec(regexpQuote(relaxIdentity)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexpQuote(loadStaging)).WillReturnResult(sqlmock.NewResult(0, 3))
}

func TestInsertMapsGeneratedIdentities(t *testing.T) {
	db, mock := newMockDB(t)
	d := &stubDialect{}
	items := []user{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	expectStaging(mock, true)
	mock.ExpectExec(regexpQuote("INSERT dbo.users FROM stg_users")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(regexpQuote("RETURN id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(11)).AddRow(int64(12)))

	err := With(userDescriptor()).Insert(context.Background(), newTestEngine(d), db, items, Options{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []int64{10, 11, 12}, ids(items))
	assert.True(t, d.last.ReturnIdentity)
	assert.Equal(t, []string{"id"}, d.last.PrimaryKeys)
}

func TestUpsertKeepsExplicitIdentities(t *testing.T) {
	db, mock := newMockDB(t)
	items := []user{{ID: 5, Name: "a"}, {Name: "b"}, {ID: 7, Name: "c"}, {Name: "d"}}

	expectCatalog(mock, catalogRows())
	mock.ExpectExec(regexpQuote(createStaging)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexpQuote(relaxIdentity)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexpQuote(loadStaging)).
		WithArgs(int64(5), "a", "", int64(0), "b", "", int64(7), "c", "", int64(0), "d", "").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexpQuote("UPSERT dbo.users FROM stg_users")).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectQuery(regexpQuote("RETURN id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(20)).AddRow(int64(21)))

	err := With(userDescriptor()).Upsert(context.Background(), newTestEngine(&stubDialect{}), db, items, Options{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []int64{5, 20, 7, 21}, ids(items))
}

func TestIdentityNeverMappedForUpdateAndDelete(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		stmt string
	}{
		{name: "update", kind: KindUpdate, stmt: "UPDATE dbo.users FROM stg_users"},
		{name: "delete", kind: KindDelete, stmt: "DELETE dbo.users FROM stg_users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			d := &stubDialect{}
			items := []user{{Name: "a"}, {Name: "b"}, {Name: "c"}}

			expectStaging(mock, true)
			mock.ExpectExec(regexpQuote(tt.stmt)).WillReturnResult(sqlmock.NewResult(0, 3))

			err := With(userDescriptor()).Run(context.Background(), newTestEngine(d), db, tt.kind, items, Options{})
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())

			assert.False(t, d.last.ReturnIdentity)
			assert.Equal(t, []int64{0, 0, 0}, ids(items))
		})
	}
}

func TestSkipIdentityMapping(t *testing.T) {
	db, mock := newMockDB(t)
	d := &stubDialect{}
	items := []user{{Name: "a"}}

	expectStaging(mock, true)
	mock.ExpectExec(regexpQuote("INSERT dbo.users FROM stg_users")).WillReturnResult(sqlmock.NewResult(0, 1))

	err := With(userDescriptor()).Insert(context.Background(), newTestEngine(d), db, items, Options{SkipIdentityMapping: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, items[0].ID)
}

func TestUpdateWithoutColumnsToSet(t *testing.T) {
	db, mock := newMockDB(t)
	d := &stubDialect{}

	expectCatalog(mock, catalogRows())
	mock.ExpectExec(regexpQuote("CREATE STAGING stg_users FROM dbo.users (id)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexpQuote(relaxIdentity)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexpQuote(`INSERT INTO "stg_users" ("id") VALUES (?)`)).WillReturnResult(sqlmock.NewResult(0, 1))

	opts := Options{ExcludeProperties: []string{"name", "code"}}
	err := With(userDescriptor()).Update(context.Background(), newTestEngine(d), db, []user{{ID: 1}}, opts)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Excluding the identity drops the relax step and identity mapping.
func TestInsertWithExcludedKey(t *testing.T) {
	db, mock := newMockDB(t)
	d := &stubDialect{}

	expectCatalog(mock, catalogRows())
	mock.ExpectExec(regexpQuote("CREATE STAGING stg_users FROM dbo.users (name, code)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexpQuote(`INSERT INTO "stg_users" ("name", "code") VALUES (?, ?)`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexpQuote("INSERT dbo.users FROM stg_users")).WillReturnResult(sqlmock.NewResult(0, 1))

	opts := Options{PrimaryKeys: []string{"id"}, ExcludeProperties: []string{"id"}}
	err := With(userDescriptor()).Insert(context.Background(), newTestEngine(d), db, []user{{Name: "a"}}, opts)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"id"}, d.last.PrimaryKeys)
	assert.Equal(t, []string{"name", "code"}, d.last.Columns)
	assert.Nil(t, d.last.Identity)
}

func TestCopyLoadsTargetDirectly(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexpQuote(`INSERT INTO "users" ("id", "name", "code") VALUES (?, ?, ?), (?, ?, ?)`)).
		WithArgs(int64(1), "a", "x", int64(0), "b", "y").
		WillReturnResult(sqlmock.NewResult(0, 2))

	items := []user{{ID: 1, Name: "a", Code: "x"}, {Name: "b", Code: "y"}}
	err := With(userDescriptor()).Copy(context.Background(), newTestEngine(&stubDialect{}), db, items, Options{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "copy runs no catalog query and no staging DDL")
}

func TestEmptyItemsTouchNothing(t *testing.T) {
	db, mock := newMockDB(t)

	for _, kind := range []Kind{KindCopy, KindInsert, KindUpdate, KindUpsert, KindDelete} {
		err := With(userDescriptor()).Run(context.Background(), newTestEngine(&stubDialect{}), db, kind, nil, Options{})
		assert.NoError(t, err)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailuresReportTheirStep(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		step   Step
	}{
		{
			name: "metadata",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexpQuote(stubColumnsQuery)).WillReturnError(boom)
			},
			step: StepMetadata,
		},
		{
			name: "staging",
			expect: func(mock sqlmock.Sqlmock) {
				expectCatalog(mock, catalogRows())
				mock.ExpectExec(regexpQuote(createStaging)).WillReturnError(boom)
			},
			step: StepStaging,
		},
		{
			name: "transfer",
			expect: func(mock sqlmock.Sqlmock) {
				expectCatalog(mock, catalogRows())
				mock.ExpectExec(regexpQuote(createStaging)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexpQuote(relaxIdentity)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexpQuote(loadStaging)).WillReturnError(boom)
			},
			step: StepTransfer,
		},
		{
			name: "statement",
			expect: func(mock sqlmock.Sqlmock) {
				expectStaging(mock, true)
				mock.ExpectExec(regexpQuote("INSERT dbo.users")).WillReturnError(boom)
			},
			step: StepStatement,
		},
		{
			name: "statement surfacing while rows are read",
			expect: func(mock sqlmock.Sqlmock) {
				expectStaging(mock, true)
				mock.ExpectExec(regexpQuote("INSERT dbo.users")).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(regexpQuote("RETURN id")).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).RowError(0, boom))
			},
			step: StepStatement,
		},
		{
			name: "identity",
			expect: func(mock sqlmock.Sqlmock) {
				expectStaging(mock, true)
				mock.ExpectExec(regexpQuote("INSERT dbo.users")).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(regexpQuote("RETURN id")).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("not-a-number"))
			},
			step: StepIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.expect(mock)

			err := With(userDescriptor()).Insert(context.Background(), newTestEngine(&stubDialect{}), db, []user{{Name: "a"}}, Options{})

			var opErr *Error
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, tt.step, opErr.Step)
			assert.Equal(t, KindInsert, opErr.Kind)
			if tt.step != StepIdentity {
				assert.ErrorIs(t, err, boom)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCommandTimeout(t *testing.T) {
	db, mock := newMockDB(t)

	expectCatalog(mock, catalogRows())
	mock.ExpectExec(regexpQuote(createStaging)).
		WillDelayFor(time.Second).
		WillReturnResult(sqlmock.NewResult(0, 0))

	opts := Options{Timeout: 20 * time.Millisecond}
	err := With(userDescriptor()).Insert(context.Background(), newTestEngine(&stubDialect{}), db, []user{{Name: "a"}}, opts)

	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, StepStaging, opErr.Step)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCopyWithoutDialect(t *testing.T) {
	db, _ := newMockDB(t)

	err := With(userDescriptor()).Copy(context.Background(), New(nil, nil), db, []user{{Name: "a"}}, Options{})

	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, StepTransfer, opErr.Step)
	assert.ErrorIs(t, err, errNoDialect)
}

func TestMissingTableIsMetadataFailure(t *testing.T) {
	db, mock := newMockDB(t)
	expectCatalog(mock, sqlmock.NewRows([]string{"name", "type", "identity", "pk"}))

	err := With(userDescriptor()).Upsert(context.Background(), newTestEngine(&stubDialect{}), db, []user{{}}, Options{})

	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, StepMetadata, opErr.Step)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestMatchingRequiresPrimaryKey(t *testing.T) {
	db, mock := newMockDB(t)
	expectCatalog(mock, sqlmock.NewRows([]string{"name", "type", "identity", "pk"}).
		AddRow("name", "varchar", int64(0), int64(0)))

	err := With(userDescriptor()).Delete(context.Background(), newTestEngine(&stubDialect{}), db, []user{{}}, Options{})
	assert.ErrorIs(t, err, ErrNoPrimaryKey)
}

func TestRegisteredDescriptor(t *testing.T) {
	type widget struct {
		ID   int64
		Name string
	}

	db, mock := newMockDB(t)
	e := newTestEngine(&stubDialect{})

	err := Copy(context.Background(), e, db, []widget{{Name: "a"}}, Options{})
	assert.ErrorIs(t, err, ErrNoDescriptor)

	Register(Describe(
		Field("ID", func(w *widget) *int64 { return &w.ID }, Column("id")),
		Field("Name", func(w *widget) *string { return &w.Name }, Column("name")),
	).WithTable("widgets"))

	mock.ExpectExec(regexpQuote(`INSERT INTO "widgets" ("id", "name") VALUES (?, ?)`)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, Copy(context.Background(), e, db, []widget{{Name: "a"}}, Options{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBorrowedTransactionStaysOpen(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()

	tx := db.Begin()
	require.NoError(t, tx.Error)

	sess, err := acquire(context.Background(), tx)
	require.NoError(t, err)
	assert.False(t, sess.owned)
	assert.NoError(t, sess.release())

	expectStaging(mock, true)
	mock.ExpectExec(regexpQuote("DELETE dbo.users FROM stg_users")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err = With(userDescriptor()).Delete(context.Background(), newTestEngine(&stubDialect{}), tx, []user{{ID: 1}}, Options{})
	require.NoError(t, err)

	// The caller still owns the transaction
	require.NoError(t, tx.Rollback().Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquirePinsPooledConnection(t *testing.T) {
	db, _ := newMockDB(t)

	sess, err := acquire(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, sess.owned)
	assert.Same(t, sess.conn, sess.db.Statement.ConnPool)
	assert.NoError(t, sess.release())
}

func TestOperationLogsCorrelationFields(t *testing.T) {
	db, mock := newMockDB(t)
	core, logs := observer.New(zapcore.DebugLevel)
	e := New(&stubDialect{}, nil, WithLogger(zap.New(core)), WithConfig(Config{BatchSize: 2}))

	mock.ExpectExec(regexpQuote(`INSERT INTO "users"`)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexpQuote(`INSERT INTO "users"`)).WillReturnResult(sqlmock.NewResult(0, 1))

	err := With(userDescriptor()).Copy(context.Background(), e, db, []user{{}, {}, {}}, Options{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "engine batch size applies when options leave it unset")

	completed := logs.FilterMessage("bulk operation completed").All()
	require.Len(t, completed, 1)
	fields := completed[0].ContextMap()
	assert.Equal(t, "copy", fields["kind"])
	assert.Equal(t, "users", fields["table"])
	assert.NotEmpty(t, fields["op_id"])
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("merge")
	assert.True(t, ok)
	assert.Equal(t, KindUpsert, k)

	_, ok = ParseKind("truncate")
	assert.False(t, ok)
}
