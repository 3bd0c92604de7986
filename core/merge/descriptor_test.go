package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField(t *testing.T) {
	id := Field("ID", func(u *user) *int64 { return &u.ID }, Column("id"), Key())

	assert.Equal(t, "ID", id.Name())
	assert.Equal(t, "id", id.Column())
	assert.True(t, id.IsKey())
	assert.False(t, id.Ignored())

	u := user{}
	assert.True(t, id.IsZero(&u))

	t.Run("Assign converts driver values", func(t *testing.T) {
		tests := []struct {
			name  string
			value any
			want  int64
		}{
			{name: "int64", value: int64(42), want: 42},
			{name: "bytes", value: []byte("43"), want: 43},
			{name: "string", value: "44", want: 44},
			{name: "nil resets", value: nil, want: 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				u := user{ID: 7}
				require.NoError(t, id.Assign(&u, tt.value))
				assert.Equal(t, tt.want, u.ID)
			})
		}
	})

	t.Run("Assign rejects unconvertible values", func(t *testing.T) {
		u := user{}
		assert.Error(t, id.Assign(&u, "not a number"))
		assert.Zero(t, u.ID)
	})

	t.Run("Value reads the field", func(t *testing.T) {
		u := user{ID: 9}
		assert.Equal(t, int64(9), id.Value(&u))
		assert.False(t, id.IsZero(&u))
	})
}

func TestColumnFallsBackToName(t *testing.T) {
	name := Field("Name", func(u *user) *string { return &u.Name })
	assert.Equal(t, "Name", name.Column())
}

func TestBytes(t *testing.T) {
	type blob struct{ Data []byte }
	data := Bytes("Data", func(b *blob) *[]byte { return &b.Data })

	b := blob{}
	assert.True(t, data.IsZero(&b))

	require.NoError(t, data.Assign(&b, "abc"))
	assert.Equal(t, []byte("abc"), b.Data)

	src := []byte("xyz")
	require.NoError(t, data.Assign(&b, src))
	src[0] = 'q'
	assert.Equal(t, []byte("xyz"), b.Data, "assigned bytes must not alias the driver buffer")

	assert.Error(t, data.Assign(&b, 12))
}

func TestAccessorWithoutSetterIsReadOnly(t *testing.T) {
	m := Accessor("Const",
		func(*user) any { return 1 },
		func(*user) bool { return false },
		nil,
	)

	u := user{}
	assert.ErrorContains(t, m.Assign(&u, 2), "read-only")
}

func TestDescriptorBuildersCopy(t *testing.T) {
	base := Describe(Field("ID", func(u *user) *int64 { return &u.ID }))
	named := base.WithTable("people").WithSchema("crm")

	assert.Equal(t, "", base.TableName())
	assert.Equal(t, "people", named.TableName())
	assert.Equal(t, "crm", named.SchemaName())
	assert.Equal(t, "user", base.TypeName())
}

func TestRegistry(t *testing.T) {
	type unregistered struct{ A int }
	_, err := Lookup[unregistered]()
	assert.ErrorIs(t, err, ErrNoDescriptor)

	type registered struct{ A int }
	d := Describe(Field("A", func(r *registered) *int { return &r.A }))
	Register(d)

	got, err := Lookup[registered]()
	require.NoError(t, err)
	assert.Same(t, d, got)
}

func TestResolve(t *testing.T) {
	desc := Describe(
		Field("ID", func(u *user) *int64 { return &u.ID }, Column("id"), Key()),
		Field("Name", func(u *user) *string { return &u.Name }, Ignore()),
		Field("Code", func(u *user) *string { return &u.Code }, Column("code"), Key()),
	)

	tests := []struct {
		name       string
		desc       *Descriptor[user]
		opts       Options
		wantTable  string
		wantSchema string
	}{
		{name: "natural names", desc: desc, wantTable: "user", wantSchema: "dbo"},
		{name: "declared names", desc: desc.WithTable("users").WithSchema("crm"), wantTable: "users", wantSchema: "crm"},
		{name: "option wins", desc: desc.WithTable("users").WithSchema("crm"), opts: Options{TableName: "accounts", Schema: "sales"}, wantTable: "accounts", wantSchema: "sales"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resolve(tt.desc, tt.opts, "dbo")
			assert.Equal(t, tt.wantTable, r.table)
			assert.Equal(t, tt.wantSchema, r.schema)
			assert.Equal(t, []string{"id", "code"}, r.keys)
			require.Len(t, r.members, 2, "ignored members are dropped")
			assert.Equal(t, "ID", r.members[0].Name())
			assert.Equal(t, "Code", r.members[1].Name())
		})
	}
}
