package tables

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bulkmerge/core/merge"
	"bulkmerge/feature/records"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Request carries the rows and options of one table operation.
type Request struct {
	Schema       string
	Rows         []records.Row
	PrimaryKeys  []string
	Exclude      []string
	BatchSize    int
	Timeout      time.Duration
	SkipIdentity bool
}

// Result reports a finished operation. Rows hold any identities written back.
type Result struct {
	Operation merge.Kind    `json:"operation"`
	Table     string        `json:"table"`
	Count     int           `json:"count"`
	Ignored   []string      `json:"ignored,omitempty"`
	Rows      []records.Row `json:"rows"`
}

// Service runs bulk operations over map-typed rows.
type Service struct {
	engine *merge.Engine
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new tables service.
func NewService(engine *merge.Engine, db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{
		engine: engine,
		db:     db,
		logger: logger,
	}
}

// Columns returns the catalog of schema.table.
func (s *Service) Columns(ctx context.Context, schema, table string) ([]merge.ColumnInfo, error) {
	columns, err := s.engine.Catalog(ctx, s.db, schema, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%s: %w", table, merge.ErrTableNotFound)
	}
	return columns, nil
}

// Apply runs kind against table with the rows of req.
// Row keys are matched to catalog columns case-insensitively; keys with no
// column are dropped and reported in Result.Ignored. The catalog is read once
// here and once by the engine; with the engine catalog cache enabled (the
// configured default) the second read is served from the cache.
func (s *Service) Apply(ctx context.Context, kind merge.Kind, table string, req Request) (*Result, error) {
	result := &Result{Operation: kind, Table: table, Count: len(req.Rows), Rows: req.Rows}
	if len(req.Rows) == 0 {
		return result, nil
	}

	catalog, err := s.engine.Catalog(ctx, s.db, req.Schema, table)
	if err != nil {
		return nil, &merge.Error{Kind: kind, Step: merge.StepMetadata, Table: table, Err: err}
	}
	if len(catalog) == 0 {
		return nil, &merge.Error{Kind: kind, Step: merge.StepMetadata, Table: table, Err: merge.ErrTableNotFound}
	}

	fields, ignored := bind(records.Fields(req.Rows), catalog, kind, req.SkipIdentity)
	if len(ignored) > 0 {
		s.logger.Warn("Ignoring keys without a column",
			zap.String("table", table),
			zap.Strings("keys", ignored),
		)
	}
	result.Ignored = ignored
	if len(fields) == 0 {
		return nil, fmt.Errorf("no row key matches a column of %s", table)
	}

	opts := merge.Options{
		Schema:              req.Schema,
		BatchSize:           req.BatchSize,
		ExcludeProperties:   req.Exclude,
		PrimaryKeys:         req.PrimaryKeys,
		Timeout:             req.Timeout,
		SkipIdentityMapping: req.SkipIdentity,
	}

	desc := records.Describe(table, fields)
	if err := merge.With(desc).Run(ctx, s.engine, s.db, kind, req.Rows, opts); err != nil {
		return nil, err
	}
	return result, nil
}

// bind points each field at its catalog column. Inserts and upserts that map
// identities also get the identity column when no row carries it, so the
// generated values have somewhere to land.
func bind(fields []records.Field, catalog []merge.ColumnInfo, kind merge.Kind, skipIdentity bool) ([]records.Field, []string) {
	byName := make(map[string]merge.ColumnInfo, len(catalog))
	for _, c := range catalog {
		byName[strings.ToLower(c.Name)] = c
	}

	var (
		bound   []records.Field
		ignored []string
		used    = make(map[string]bool)
	)
	for _, f := range fields {
		c, ok := byName[strings.ToLower(f.Key)]
		if !ok || used[c.Name] {
			ignored = append(ignored, f.Key)
			continue
		}
		used[c.Name] = true
		bound = append(bound, records.Field{Key: f.Key, Column: c.Name})
	}

	if skipIdentity || (kind != merge.KindInsert && kind != merge.KindUpsert) {
		return bound, ignored
	}
	for _, c := range catalog {
		if c.IsIdentity && !used[c.Name] {
			bound = append(bound, records.Field{Key: c.Name, Column: c.Name})
			break
		}
	}
	return bound, ignored
}
