package merge

import (
	"database/sql"
	"fmt"
	"reflect"
	"sync"
)

// Member describes one persistable member of a record type T.
// Members are built with Field, Bytes or Accessor and never inspect T at call time.
type Member[T any] struct {
	name   string
	column string
	key    bool
	ignore bool
	get    func(*T) any
	isZero func(*T) bool
	assign func(*T, any) error
}

// Name returns the member name.
func (m Member[T]) Name() string { return m.name }

// Column returns the declared column name, falling back to the member name.
func (m Member[T]) Column() string {
	if m.column != "" {
		return m.column
	}
	return m.name
}

// IsKey reports whether the member is declared as part of the primary key.
func (m Member[T]) IsKey() bool { return m.key }

// Ignored reports whether the member is declared as not persisted.
func (m Member[T]) Ignored() bool { return m.ignore }

// Value reads the member from item.
func (m Member[T]) Value(item *T) any { return m.get(item) }

// IsZero reports whether the member holds its type's zero value.
func (m Member[T]) IsZero(item *T) bool { return m.isZero(item) }

// Assign converts value to the member type and writes it onto item.
func (m Member[T]) Assign(item *T, value any) error {
	if m.assign == nil {
		return fmt.Errorf("member %s is read-only", m.name)
	}
	return m.assign(item, value)
}

// MemberOption sets a declaration on a Member.
type MemberOption func(*memberSettings)

type memberSettings struct {
	column string
	key    bool
	ignore bool
}

// Column declares the column name of a member.
func Column(name string) MemberOption {
	return func(s *memberSettings) { s.column = name }
}

// Key declares the member as part of the primary key.
func Key() MemberOption {
	return func(s *memberSettings) { s.key = true }
}

// Ignore declares the member as not persisted.
func Ignore() MemberOption {
	return func(s *memberSettings) { s.ignore = true }
}

func newMember[T any](name string, opts []MemberOption) Member[T] {
	var s memberSettings
	for _, opt := range opts {
		opt(&s)
	}
	return Member[T]{name: name, column: s.column, key: s.key, ignore: s.ignore}
}

// Field declares a member backed by a comparable struct field.
// Database values are converted with the database/sql scanning rules.
func Field[T any, V comparable](name string, ptr func(*T) *V, opts ...MemberOption) Member[T] {
	var zero V
	m := newMember[T](name, opts)
	m.get = func(item *T) any { return *ptr(item) }
	m.isZero = func(item *T) bool { return *ptr(item) == zero }
	m.assign = func(item *T, value any) error {
		var v sql.Null[V]
		if err := v.Scan(value); err != nil {
			return err
		}
		*ptr(item) = v.V
		return nil
	}
	return m
}

// Bytes declares a member backed by a byte slice field.
func Bytes[T any](name string, ptr func(*T) *[]byte, opts ...MemberOption) Member[T] {
	m := newMember[T](name, opts)
	m.get = func(item *T) any { return *ptr(item) }
	m.isZero = func(item *T) bool { return len(*ptr(item)) == 0 }
	m.assign = func(item *T, value any) error {
		switch b := value.(type) {
		case nil:
			*ptr(item) = nil
		case []byte:
			*ptr(item) = append([]byte(nil), b...)
		case string:
			*ptr(item) = []byte(b)
		default:
			return fmt.Errorf("cannot assign %T to []byte member %s", value, name)
		}
		return nil
	}
	return m
}

// Accessor declares a member with caller supplied accessors.
// It serves record types whose shape is only known at runtime. set may be nil.
func Accessor[T any](name string, get func(*T) any, isZero func(*T) bool, set func(*T, any) error, opts ...MemberOption) Member[T] {
	m := newMember[T](name, opts)
	m.get = get
	m.isZero = isZero
	m.assign = set
	return m
}

// Descriptor is the statically declared schema of a record type.
type Descriptor[T any] struct {
	natural string
	table   string
	schema  string
	members []Member[T]
}

// Describe builds a descriptor from an ordered member list.
func Describe[T any](members ...Member[T]) *Descriptor[T] {
	return &Descriptor[T]{
		natural: reflect.TypeFor[T]().Name(),
		members: append([]Member[T](nil), members...),
	}
}

// WithTable returns a copy of the descriptor declaring the table name.
func (d *Descriptor[T]) WithTable(name string) *Descriptor[T] {
	c := *d
	c.table = name
	return &c
}

// WithSchema returns a copy of the descriptor declaring the schema name.
func (d *Descriptor[T]) WithSchema(name string) *Descriptor[T] {
	c := *d
	c.schema = name
	return &c
}

// TableName returns the declared table name, empty when none was declared.
func (d *Descriptor[T]) TableName() string { return d.table }

// SchemaName returns the declared schema name, empty when none was declared.
func (d *Descriptor[T]) SchemaName() string { return d.schema }

// TypeName returns the natural name of T.
func (d *Descriptor[T]) TypeName() string { return d.natural }

// Members returns the declared members in order.
func (d *Descriptor[T]) Members() []Member[T] {
	return append([]Member[T](nil), d.members...)
}

// registry maps reflect.Type to *Descriptor[T]. It is written during
// program initialization and read afterwards.
var registry sync.Map

// Register stores the descriptor of T in the process-wide registry.
func Register[T any](d *Descriptor[T]) {
	registry.Store(reflect.TypeFor[T](), d)
}

// Lookup returns the registered descriptor of T.
func Lookup[T any]() (*Descriptor[T], error) {
	t := reflect.TypeFor[T]()
	v, ok := registry.Load(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDescriptor, t)
	}
	return v.(*Descriptor[T]), nil
}
