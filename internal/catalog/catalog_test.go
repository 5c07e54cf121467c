package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaproto/pkg/typedesc"
)

const schemaYAML = `
scalars:
  - name: email
    base: str
tables:
  - name: users
    columns:
      - {name: name, type: text, required: true}
      - {name: email, type: email}
      - {name: tags, type: "array<str>"}
  - name: posts
    columns:
      - {name: title, type: str}
      - {name: author, type: link users}
      - {name: readers, type: multi link users}
      - {name: pos, type: "tuple<x: float64, y: float64>"}
`

func loadTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load(strings.NewReader(schemaYAML))
	require.NoError(t, err)
	return c
}

func TestResolveType(t *testing.T) {
	c := New()
	require.NoError(t, c.DefineScalar(ScalarDef{Name: "email", Base: "str"}))

	cases := map[string]string{
		"int":                           "int64",
		"TEXT":                          "str",
		"std::naive_date":               "naive_date",
		"array<int32>[3]":               "array<int32>[3]",
		"array<str>":                    "array<str>[-1]",
		"tuple<int64, str>":             "tuple<int64, str>",
		"tuple<x: float64, y: float64>": "tuple<x: float64, y: float64>",
		"tuple<>":                       "tuple<>",
	}
	for expr, want := range cases {
		typ, err := c.ResolveType(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, want, typ.String(), expr)
	}

	typ, err := c.ResolveType("email")
	require.NoError(t, err)
	require.Equal(t, typedesc.KindScalar, typ.Kind())

	empty, err := c.ResolveType("tuple<>")
	require.NoError(t, err)
	assert.Equal(t, typedesc.EmptyTupleID, empty.TypeID())
}

func TestResolveType_Errors(t *testing.T) {
	c := New()
	for _, expr := range []string{"array<array<str>>", "array<str>[0]", "array<str", "tuple<x: int64, str>", "anytype", "tuple<a: str, a: str>"} {
		_, err := c.ResolveType(expr)
		require.ErrorIs(t, err, ErrBadTypeExpr, expr)
	}
	_, err := c.ResolveType("money")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestResolveType_StableIDs(t *testing.T) {
	a, err := New().ResolveType("tuple<int64, array<str>>")
	require.NoError(t, err)
	b, err := New().ResolveType("tuple<int64, array<str>>")
	require.NoError(t, err)
	require.Equal(t, a.TypeID(), b.TypeID())

	other, err := New().ResolveType("tuple<int64, array<bytes>>")
	require.NoError(t, err)
	require.NotEqual(t, a.TypeID(), other.TypeID())
}

func TestCreateTable_Shape(t *testing.T) {
	c := loadTest(t)

	users, err := c.Table("USERS")
	require.NoError(t, err)
	shape := users.Shape()
	require.Len(t, shape.Fields, 4)
	assert.Equal(t, IDColumn, shape.Fields[0].Name)
	assert.True(t, shape.Fields[0].Flags.Has(typedesc.FieldImplicit))
	assert.Equal(t, "{_id: uuid, name: str, email: scalar(", shape.String()[:len("{_id: uuid, name: str, email: scalar(")])
	assert.Same(t, shape, users.RowSet().Element)

	posts, err := c.Table("posts")
	require.NoError(t, err)
	author := posts.Shape().Fields[2]
	assert.True(t, author.Flags.Has(typedesc.FieldLink))
	assert.Same(t, users.Shape(), author.Type)
	readers := posts.Shape().Fields[3]
	assert.Same(t, users.RowSet(), readers.Type)
	assert.True(t, posts.Columns[2].Multi)

	// the whole row type encodes as one stream
	buf, _, err := typedesc.Encode(posts.RowSet())
	require.NoError(t, err)
	require.NotEmpty(t, buf)
}

func TestCreateTable_Errors(t *testing.T) {
	c := loadTest(t)

	_, err := c.CreateTable(TableDef{Name: "Users", Columns: []ColumnDef{{Name: "a", Type: "str"}}})
	require.ErrorIs(t, err, ErrTableExists)

	_, err = c.CreateTable(TableDef{Name: "t1", Columns: []ColumnDef{{Name: "a", Type: "str"}, {Name: "A", Type: "int"}}})
	require.ErrorIs(t, err, ErrDuplicateColumn)

	_, err = c.CreateTable(TableDef{Name: "t2", Columns: []ColumnDef{{Name: "_id", Type: "uuid"}}})
	require.ErrorIs(t, err, ErrReservedColumn)

	_, err = c.CreateTable(TableDef{Name: "t3", Columns: []ColumnDef{{Name: "x", Type: "link nowhere"}}})
	require.ErrorIs(t, err, ErrTableNotFound)

	_, err = c.CreateTable(TableDef{Name: "t4"})
	require.ErrorIs(t, err, ErrBadTypeExpr)
}

func TestDropTable(t *testing.T) {
	c := loadTest(t)
	gen := c.Generation()

	require.ErrorIs(t, c.DropTable("users"), ErrTableInUse)
	require.Equal(t, gen, c.Generation())

	require.NoError(t, c.DropTable("posts"))
	require.NoError(t, c.DropTable("users"))
	require.Equal(t, gen+2, c.Generation())
	require.Empty(t, c.Tables())

	require.ErrorIs(t, c.DropTable("users"), ErrTableNotFound)
}

func TestProject(t *testing.T) {
	c := loadTest(t)
	users, err := c.Table("users")
	require.NoError(t, err)

	all, idx, err := users.Project(nil)
	require.NoError(t, err)
	assert.Same(t, users.RowSet(), all)
	assert.Equal(t, []int{0, 1, 2, 3}, idx)

	set, idx, err := users.Project([]string{"email", "_id"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, idx)
	shape := set.Element.(*typedesc.ShapeType)
	assert.Equal(t, "_id", shape.Fields[0].Name)
	assert.Equal(t, "email", shape.Fields[1].Name)
	assert.NotEqual(t, users.Shape().ID, shape.ID)

	_, _, err = users.Project([]string{"nope"})
	require.ErrorIs(t, err, ErrColumnNotFound)
	_, _, err = users.Project([]string{"name", "name"})
	require.ErrorIs(t, err, ErrDuplicateColumn)
}

func TestDefineScalar(t *testing.T) {
	c := New()
	require.NoError(t, c.DefineScalar(ScalarDef{Name: "email", Base: "str"}))
	require.NoError(t, c.DefineScalar(ScalarDef{Name: "work_email", Base: "email"}))

	require.ErrorIs(t, c.DefineScalar(ScalarDef{Name: "email", Base: "str"}), ErrScalarExists)
	require.ErrorIs(t, c.DefineScalar(ScalarDef{Name: "int", Base: "str"}), ErrScalarExists)
	require.ErrorIs(t, c.DefineScalar(ScalarDef{Name: "pair", Base: "tuple<int64, int64>"}), ErrBadTypeExpr)

	typ, err := c.ResolveType("work_email")
	require.NoError(t, err)
	sc := typ.(*typedesc.ScalarType)
	require.Equal(t, typedesc.KindScalar, sc.Base.Kind())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(strings.NewReader("tables: [{name: t, columns: [{name: a, type: money}]}]"))
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = Load(strings.NewReader("tablez: []"))
	require.Error(t, err)

	c, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, c.Tables())
}

func TestDump_RoundTrip(t *testing.T) {
	c := loadTest(t)
	out, err := c.Dump()
	require.NoError(t, err)

	again, err := Load(strings.NewReader(string(out)))
	require.NoError(t, err)
	for _, tbl := range c.Tables() {
		other, err := again.Table(tbl.Name)
		require.NoError(t, err)
		require.True(t, typedesc.Equal(tbl.Shape(), other.Shape()), tbl.Name)
		require.Equal(t, tbl.Shape().ID, other.Shape().ID)
	}
}

func TestStorageShape(t *testing.T) {
	c := loadTest(t)
	posts, err := c.Table("posts")
	require.NoError(t, err)

	st := posts.StorageShape()
	require.Len(t, st.Fields, len(posts.Shape().Fields))
	assert.Equal(t, "uuid", st.Fields[2].Type.String())
	assert.Equal(t, "array<uuid>[-1]", st.Fields[3].Type.String())
	assert.Same(t, posts.Shape().Fields[1].Type, st.Fields[1].Type)
	assert.NotEqual(t, posts.Shape().ID, st.ID)
}
