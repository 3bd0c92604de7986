package merge

import (
	"context"
	"fmt"
	"time"

	"bulkmerge/core/utils"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// LoadCatalog reads the column facts of schema.table in catalog order.
// A table that does not exist yields an empty slice and no error.
func LoadCatalog(ctx context.Context, db *gorm.DB, d Dialect, schema, table string) ([]ColumnInfo, error) {
	query, args := d.ColumnsQuery(schema, table)

	rows, err := db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", TableRef{Schema: schema, Name: table}, err)
	}
	defer rows.Close()

	columns := make([]ColumnInfo, 0)
	for rows.Next() {
		var (
			name, dataType   string
			identity, hasKey any
		)
		if err := rows.Scan(&name, &dataType, &identity, &hasKey); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}

		// Drivers report the flags as int64, []byte or string
		columns = append(columns, ColumnInfo{
			Name:         name,
			DataType:     dataType,
			IsIdentity:   utils.ToBool(identity),
			IsPrimaryKey: utils.ToBool(hasKey),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read column rows: %w", err)
	}

	return columns, nil
}

// CatalogCache keeps catalog loads for a fixed lifetime.
// Concurrent misses for the same table share a single load.
type CatalogCache struct {
	store *cache.Cache
	group singleflight.Group
}

// NewCatalogCache creates a cache whose entries expire after ttl.
func NewCatalogCache(ttl time.Duration) *CatalogCache {
	return &CatalogCache{store: cache.New(ttl, 2*ttl)}
}

// Get returns the cached columns of schema.table, loading them on a miss.
// Empty results are not cached so that a table created later is picked up.
func (c *CatalogCache) Get(ctx context.Context, db *gorm.DB, d Dialect, schema, table string) ([]ColumnInfo, error) {
	key := catalogKey(d, schema, table)

	// Fast path
	if v, found := c.store.Get(key); found {
		return v.([]ColumnInfo), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Double-check after winning the flight
		if v, found := c.store.Get(key); found {
			return v, nil
		}

		columns, err := LoadCatalog(ctx, db, d, schema, table)
		if err != nil {
			return nil, err
		}
		if len(columns) > 0 {
			c.store.SetDefault(key, columns)
		}
		return columns, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]ColumnInfo), nil
}

// Invalidate drops the cached columns of schema.table.
func (c *CatalogCache) Invalidate(d Dialect, schema, table string) {
	c.store.Delete(catalogKey(d, schema, table))
}

func catalogKey(d Dialect, schema, table string) string {
	return d.Name() + ":" + schema + "." + table
}
