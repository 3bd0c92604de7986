// Package merge synchronizes large in-memory record sequences with a relational
// table through a session-scoped staging table.
//
// A bulk operation loads every record into the staging table in one pass and
// then applies a single set-based statement (or a short ordered list of them)
// against the target table, instead of issuing one statement per record.
//
// # Operations
//
//   - Insert: every staged row is inserted into the target.
//   - Update: target rows matching a staged row's primary key are updated.
//   - Upsert: matching rows are updated, the rest inserted.
//   - Delete: target rows matching a staged row's primary key are deleted.
//   - Copy: records are loaded straight into the target, without staging or catalog lookup.
//
// # Descriptors
//
// The shape of a record type is declared once, without reflection at call time:
//
//	var users = merge.Describe(
//	    merge.Field("ID", func(u *User) *int64 { return &u.ID }, merge.Column("id"), merge.Key()),
//	    merge.Field("Name", func(u *User) *string { return &u.Name }, merge.Column("name")),
//	).WithTable("users")
//
// Descriptors are either passed explicitly through With, or registered with
// Register and found by the package level Insert, Update, Upsert, Delete and
// Copy functions. FromModel derives one from gorm model tags.
//
// # Resolution
//
// The table name is taken from Options, then the descriptor, then the type
// name. The schema from Options, then the descriptor, then the dialect
// default. Primary keys from Options, then key members, then the catalog.
// Excluded properties are removed from the transferred columns but never
// from the primary keys.
//
// # Identity Mapping
//
// For insert and upsert, records whose identity member is zero receive the
// value the database generated, in record order. Records that already carry
// an identity keep it and consume no generated value. Update, delete and copy
// never map identities.
//
// # Sessions
//
// Staging tables only exist on the connection that created them. A *gorm.DB
// bound to a transaction or *sql.Conn is used as-is and left open; otherwise
// the engine pins a pooled connection for the duration of the operation and
// releases it on every exit path.
//
// # Usage
//
//	d, loader, _ := dialect.New(dialect.Postgres)
//	engine := merge.New(d, loader, merge.WithLogger(log))
//
//	err := merge.With(users).Upsert(ctx, engine, db, records, merge.Options{})
//	var opErr *merge.Error
//	if errors.As(err, &opErr) && opErr.Step == merge.StepStaging {
//	    // ...
//	}
package merge
