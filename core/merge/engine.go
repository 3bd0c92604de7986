package merge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bulkmerge/core/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// State is a phase of the operation lifecycle, reported in logs.
type State string

const (
	StateIdle              State = "idle"
	StateConnectionOpening State = "connection_opening"
	StateContextBuilding   State = "context_building"
	StateStagingCreated    State = "staging_created"
	StateRowsLoaded        State = "rows_loaded"
	StateStatementExecuted State = "statement_executed"
	StateIdentityMapped    State = "identity_mapped"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
)

// Engine runs bulk operations for one database.
// It is safe for concurrent use; each operation runs on its own session.
type Engine struct {
	dialect Dialect
	loader  RowLoader
	logger  *zap.Logger
	config  Config
	catalog *CatalogCache
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger operations report to.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithConfig sets the engine defaults.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) { e.config = cfg }
}

// New creates an engine. A nil loader falls back to a BatchLoader for d.
func New(d Dialect, loader RowLoader, opts ...EngineOption) *Engine {
	e := &Engine{
		dialect: d,
		loader:  loader,
		logger:  zap.NewNop(),
		config:  Config{BatchSize: DefaultBatchSize},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.loader == nil {
		e.loader = NewBatchLoader(d)
	}
	if ttl := e.config.CatalogTTL(); ttl > 0 {
		e.catalog = NewCatalogCache(ttl)
	}

	return e
}

// Dialect returns the engine dialect.
func (e *Engine) Dialect() Dialect { return e.dialect }

// Catalog loads the column facts of schema.table, through the cache when enabled.
// An empty schema uses the dialect default.
func (e *Engine) Catalog(ctx context.Context, db *gorm.DB, schema, table string) ([]ColumnInfo, error) {
	if schema == "" {
		schema = e.dialect.DefaultSchema()
	}
	return e.loadCatalog(ctx, db, e.dialect, schema, table)
}

// InvalidateCatalog drops the cached columns of schema.table.
func (e *Engine) InvalidateCatalog(schema, table string) {
	if e.catalog == nil {
		return
	}
	if schema == "" {
		schema = e.dialect.DefaultSchema()
	}
	e.catalog.Invalidate(e.dialect, schema, table)
}

func (e *Engine) loadCatalog(ctx context.Context, db *gorm.DB, d Dialect, schema, table string) ([]ColumnInfo, error) {
	if e.catalog != nil {
		return e.catalog.Get(ctx, db, d, schema, table)
	}
	return LoadCatalog(ctx, db, d, schema, table)
}

// Table runs bulk operations with an explicit descriptor.
type Table[T any] struct {
	descriptor *Descriptor[T]
}

// With binds a descriptor for use without the registry.
func With[T any](d *Descriptor[T]) *Table[T] {
	return &Table[T]{descriptor: d}
}

// Insert inserts every record. Generated identities are written back unless skipped.
func (t *Table[T]) Insert(ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return run(ctx, e, db, t.descriptor, items, opts, KindInsert)
}

// Update updates the target rows matching the records' primary keys.
func (t *Table[T]) Update(ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return run(ctx, e, db, t.descriptor, items, opts, KindUpdate)
}

// Upsert inserts new records and updates existing ones.
func (t *Table[T]) Upsert(ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return run(ctx, e, db, t.descriptor, items, opts, KindUpsert)
}

// Delete deletes the target rows matching the records' primary keys.
func (t *Table[T]) Delete(ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return run(ctx, e, db, t.descriptor, items, opts, KindDelete)
}

// Copy transfers the records straight into the target table.
func (t *Table[T]) Copy(ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return run(ctx, e, db, t.descriptor, items, opts, KindCopy)
}

// Run executes the operation named by kind.
func (t *Table[T]) Run(ctx context.Context, e *Engine, db *gorm.DB, kind Kind, items []T, opts Options) error {
	return run(ctx, e, db, t.descriptor, items, opts, kind)
}

// Insert inserts items using the registered descriptor of T.
func Insert[T any](ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return runRegistered(ctx, e, db, items, opts, KindInsert)
}

// Update updates items using the registered descriptor of T.
func Update[T any](ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return runRegistered(ctx, e, db, items, opts, KindUpdate)
}

// Upsert upserts items using the registered descriptor of T.
func Upsert[T any](ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return runRegistered(ctx, e, db, items, opts, KindUpsert)
}

// Delete deletes items using the registered descriptor of T.
func Delete[T any](ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return runRegistered(ctx, e, db, items, opts, KindDelete)
}

// Copy copies items using the registered descriptor of T.
func Copy[T any](ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options) error {
	return runRegistered(ctx, e, db, items, opts, KindCopy)
}

func runRegistered[T any](ctx context.Context, e *Engine, db *gorm.DB, items []T, opts Options, kind Kind) error {
	d, err := Lookup[T]()
	if err != nil {
		return &Error{Kind: kind, Step: StepMetadata, Table: opts.TableName, Err: err}
	}
	return run(ctx, e, db, d, items, opts, kind)
}

// operation tracks one run for logging and error reporting.
type operation struct {
	kind  Kind
	table string
	state State
	start time.Time
	log   *zap.Logger
}

func (o *operation) enter(state State, fields ...zap.Field) {
	o.state = state
	o.log.Debug("bulk operation step", append(fields, zap.String("state", string(state)))...)
}

func (o *operation) fail(step Step, err error) error {
	o.log.Error("bulk operation failed",
		zap.String("state", string(o.state)),
		zap.String("step", string(step)),
		zap.Error(err),
	)
	o.state = StateFailed
	return &Error{Kind: o.kind, Step: step, Table: o.table, Err: err}
}

func run[T any](ctx context.Context, e *Engine, db *gorm.DB, desc *Descriptor[T], items []T, opts Options, kind Kind) error {
	// Nothing to synchronize
	if len(items) == 0 {
		return nil
	}

	// Copy never consults the catalog
	d := e.dialect
	if kind == KindCopy {
		d = nil
	} else if d == nil {
		return &Error{Kind: kind, Step: StepMetadata, Table: opts.TableName, Err: errors.New("dialect is required")}
	}

	opts = e.config.apply(opts)
	table := firstNonEmpty(opts.TableName, desc.table, desc.natural)
	op := &operation{
		kind:  kind,
		table: table,
		state: StateIdle,
		start: time.Now(),
		log:   logger.WithOperation(e.logger, uuid.NewString(), string(kind), table),
	}

	op.enter(StateConnectionOpening, zap.Int("records", len(items)))
	sess, err := acquire(ctx, db)
	if err != nil {
		return op.fail(StepConnection, err)
	}
	defer func() {
		// A release failure never masks the operation result
		if err := sess.release(); err != nil {
			op.log.Warn("failed to release connection", zap.Error(err))
		}
	}()

	op.enter(StateContextBuilding, zap.Bool("owned_session", sess.owned))
	mc, err := buildContext(ctx, sess.db, d, e.loadCatalog, desc, items, opts)
	if err != nil {
		return op.fail(StepMetadata, err)
	}
	op.table = mc.Target().String()

	// Matching statements need a key
	if kind != KindCopy && kind != KindInsert && len(mc.primaryKeys) == 0 {
		return op.fail(StepMetadata, ErrNoPrimaryKey)
	}

	// Copy loads straight into the target
	target := mc.Target()
	if kind != KindCopy {
		if err := createStagingTable(ctx, d, mc); err != nil {
			return op.fail(StepStaging, err)
		}
		op.enter(StateStagingCreated, zap.String("staging", mc.staging))
		target = mc.Staging()
	}

	if err := loadTimeout(ctx, e.loader, mc, target); err != nil {
		return op.fail(StepTransfer, err)
	}
	op.enter(StateRowsLoaded, zap.String("into", target.String()), zap.Int("rows", mc.Len()))

	if kind == KindCopy {
		op.complete()
		return nil
	}

	mapIdentity := kind.mapsIdentity() && !opts.SkipIdentityMapping
	statement := mc.statement(mapIdentity)
	mapIdentity = statement.ReturnIdentity

	statements := statementsFor(d, kind, statement)
	if len(statements) == 0 {
		// Nothing to assign, e.g. an update where every column is a key
		op.log.Debug("no statements to execute")
		op.complete()
		return nil
	}

	last := len(statements) - 1
	for _, stmt := range statements[:last] {
		if err := execTimeout(ctx, mc.db, mc.timeout, stmt); err != nil {
			return op.fail(StepStatement, err)
		}
	}

	if !mapIdentity {
		if err := execTimeout(ctx, mc.db, mc.timeout, statements[last]); err != nil {
			return op.fail(StepStatement, err)
		}
		op.enter(StateStatementExecuted, zap.Int("statements", len(statements)))
		op.complete()
		return nil
	}

	mapped, step, err := queryIdentities(ctx, mc, statements[last])
	if err != nil {
		return op.fail(step, err)
	}
	op.enter(StateIdentityMapped, zap.Int("statements", len(statements)), zap.Int("mapped", mapped))
	op.complete()

	return nil
}

func (o *operation) complete() {
	o.state = StateCompleted
	o.log.Info("bulk operation completed", zap.Duration("duration", time.Since(o.start)))
}

func statementsFor(d Dialect, kind Kind, s Statement) []string {
	switch kind {
	case KindInsert:
		return d.InsertStatements(s)
	case KindUpdate:
		return d.UpdateStatements(s)
	case KindUpsert:
		return d.UpsertStatements(s)
	case KindDelete:
		return d.DeleteStatements(s)
	default:
		return nil
	}
}

// queryIdentities runs the identity-returning statement and maps its rows.
// Failures of the statement itself, including those only seen while reading
// its rows, are statement failures; unreadable values are identity failures.
func queryIdentities[T any](ctx context.Context, mc *Context[T], query string) (int, Step, error) {
	member, _, _ := mc.IdentityMember()

	ctx, cancel := withTimeout(ctx, mc.timeout)
	defer cancel()

	rows, err := mc.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return 0, StepStatement, timedOut(ctx, err)
	}
	defer rows.Close()

	mapped, err := MapIdentities(rows, mc.items, member)
	if err != nil {
		if IsRowsError(err) {
			return mapped, StepStatement, timedOut(ctx, err)
		}
		return mapped, StepIdentity, err
	}

	// Run the statement to completion so late errors are not lost
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return mapped, StepStatement, timedOut(ctx, err)
	}

	return mapped, "", nil
}

func loadTimeout[T any](ctx context.Context, loader RowLoader, mc *Context[T], target TableRef) error {
	ctx, cancel := withTimeout(ctx, mc.timeout)
	defer cancel()
	return timedOut(ctx, loader.Load(ctx, mc.db, target, mc))
}

func execTimeout(ctx context.Context, db *gorm.DB, timeout time.Duration, stmt string) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return timedOut(ctx, db.WithContext(ctx).Exec(stmt).Error)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// timedOut attaches the context error to err when the command ran out of time,
// since drivers report cancellation with their own error values.
func timedOut(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

// ensure *sql.Rows satisfies Rows
var _ Rows = (*sql.Rows)(nil)
