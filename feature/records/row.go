package records

import (
	"encoding/json"
	"reflect"
	"sort"

	"bulkmerge/core/merge"
	"bulkmerge/core/utils"
)

// Row is a record whose columns are only known at runtime.
type Row map[string]any

// Field binds a row key to a table column.
type Field struct {
	Key    string
	Column string
}

// Fields returns one field per distinct key across rows, sorted by key.
// Column starts out equal to Key.
func Fields(rows []Row) []Field {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, len(keys))
	for i, k := range keys {
		fields[i] = Field{Key: k, Column: k}
	}
	return fields
}

// Describe builds a descriptor over fields for table.
// Keys missing from a row read as NULL; assigned identities are written under Key.
func Describe(table string, fields []Field) *merge.Descriptor[Row] {
	members := make([]merge.Member[Row], 0, len(fields))
	for _, f := range fields {
		members = append(members, member(f))
	}
	return merge.Describe(members...).WithTable(table)
}

func member(f Field) merge.Member[Row] {
	key := f.Key
	return merge.Accessor(key,
		func(r *Row) any { return value((*r)[key]) },
		func(r *Row) bool { return isZero((*r)[key]) },
		func(r *Row, v any) error {
			if *r == nil {
				*r = Row{}
			}
			(*r)[key] = normalize(v)
			return nil
		},
		merge.Column(f.Column),
	)
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

// value is what gets staged for v. Nested objects and arrays travel as JSON text.
func value(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return utils.ToString(v)
		}
		return string(b)
	}
	return v
}

// Normalize converts the json.Number and []byte values of rows in place.
func Normalize(rows []Row) {
	for _, row := range rows {
		for k, v := range row {
			row[k] = normalize(v)
		}
	}
}

// normalize turns decoder and driver values into JSON friendly ones.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	}
	return v
}
