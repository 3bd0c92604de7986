package merge

import (
	"time"
)

// Kind identifies a bulk operation.
type Kind string

const (
	// KindCopy transfers rows straight into the target table, without staging.
	KindCopy Kind = "copy"
	// KindInsert inserts every record through the staging table.
	KindInsert Kind = "insert"
	// KindUpdate updates target rows matched on the primary key.
	KindUpdate Kind = "update"
	// KindUpsert inserts new records and updates existing ones.
	KindUpsert Kind = "upsert"
	// KindDelete deletes target rows matched on the primary key.
	KindDelete Kind = "delete"
)

// ParseKind converts an operation name into a Kind.
func ParseKind(name string) (Kind, bool) {
	switch k := Kind(name); k {
	case KindCopy, KindInsert, KindUpdate, KindUpsert, KindDelete:
		return k, true
	case "merge":
		return KindUpsert, true
	default:
		return "", false
	}
}

// mapsIdentity reports whether the operation family may write generated
// identity values back onto the records.
func (k Kind) mapsIdentity() bool {
	return k == KindInsert || k == KindUpsert
}

// ColumnInfo is an immutable fact about a physical column, as reported by the database.
type ColumnInfo struct {
	// Name is the column name as stored in the catalog.
	Name string `json:"name"`
	// DataType is the server-reported data type.
	DataType string `json:"data_type"`
	// IsIdentity is true when the server generates the column value.
	IsIdentity bool `json:"is_identity"`
	// IsPrimaryKey is true when the column participates in the primary key.
	IsPrimaryKey bool `json:"is_primary_key"`
}

// TableRef names a table, optionally qualified by a schema.
type TableRef struct {
	Schema string
	Name   string
}

// String returns the unquoted, dot separated name.
func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// Options is the per-operation caller configuration. Every field is optional.
type Options struct {
	// Schema overrides the descriptor schema and the dialect default.
	Schema string
	// TableName overrides the descriptor table name and the type name.
	TableName string
	// BatchSize is the number of rows per transfer chunk. Zero uses the engine default.
	BatchSize int
	// ExcludeProperties lists columns (or member names) that must not be transferred.
	ExcludeProperties []string
	// PrimaryKeys overrides key discovery entirely when non-empty.
	PrimaryKeys []string
	// Timeout bounds every database command of the operation. Zero means no timeout.
	Timeout time.Duration
	// SkipIdentityMapping disables writing generated identities back onto the records.
	// Update, delete and copy never map identities.
	SkipIdentityMapping bool
}

// DefaultBatchSize is used when neither the options nor the engine config set one.
const DefaultBatchSize = 5000

// Config holds the engine-wide defaults.
type Config struct {
	// BatchSize is the default number of rows per transfer chunk.
	BatchSize int `mapstructure:"batch_size" default:"5000"`
	// TimeoutSeconds is the default per-command timeout. Zero means no timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"0"`
	// CatalogTTLSeconds enables catalog caching when positive. Callers that
	// inspect the catalog before running an operation share the cached lookup.
	CatalogTTLSeconds int `mapstructure:"catalog_ttl_seconds" default:"60"`
}

// CatalogTTL returns the catalog cache lifetime, zero when caching is disabled.
func (c Config) CatalogTTL() time.Duration {
	if c.CatalogTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CatalogTTLSeconds) * time.Second
}

// apply fills the zero-valued option fields from the config.
func (c Config) apply(opts Options) Options {
	if opts.BatchSize <= 0 {
		opts.BatchSize = c.BatchSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Timeout <= 0 && c.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	return opts
}
