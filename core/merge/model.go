package merge

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"gorm.io/gorm/schema"
)

// modelSchemas caches parsed gorm schemas across FromModel calls.
var modelSchemas sync.Map

// modelNaming keeps Go names as column and table names, the way descriptors resolve them.
var modelNaming = schema.NamingStrategy{SingularTable: true, NoLowerCase: true}

// FromModel derives a descriptor from gorm model tags.
//
// Columns come from `gorm:"column:..."`, keys from `primaryKey` and ignored
// members from `gorm:"-"`. A TableName method declares the table, and a
// "schema.table" value declares both. The struct is parsed once; the
// returned accessors use gorm's precomputed field offsets.
func FromModel[T any]() (*Descriptor[T], error) {
	s, err := schema.Parse(new(T), &modelSchemas, modelNaming)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", reflect.TypeFor[T](), err)
	}

	d := Describe[T]()
	if tabler, ok := any(new(T)).(schema.Tabler); ok {
		// Split an explicit "schema.table" annotation
		name := tabler.TableName()
		if i := strings.LastIndex(name, "."); i > 0 {
			d.schema, d.table = name[:i], name[i+1:]
		} else {
			d.table = name
		}
	}

	// Fields without a column (gorm:"-", relationships) become ignored members
	for _, f := range s.Fields {
		d.members = append(d.members, modelMember[T](f))
	}

	return d, nil
}

func modelMember[T any](f *schema.Field) Member[T] {
	var opts []MemberOption
	if f.DBName == "" {
		opts = append(opts, Ignore())
	} else {
		opts = append(opts, Column(f.DBName))
	}
	if f.PrimaryKey {
		opts = append(opts, Key())
	}

	ctx := context.Background()
	value := func(item *T) reflect.Value { return reflect.ValueOf(item).Elem() }

	return Accessor(f.Name,
		func(item *T) any {
			v, _ := f.ValueOf(ctx, value(item))
			return v
		},
		func(item *T) bool {
			_, zero := f.ValueOf(ctx, value(item))
			return zero
		},
		func(item *T, v any) error {
			return f.Set(ctx, value(item), v)
		},
		opts...,
	)
}
