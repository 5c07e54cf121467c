package engine

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaproto/internal/catalog"
	"github.com/tuannm99/novaproto/internal/record"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	cat, err := catalog.Load(strings.NewReader(`
tables:
  - name: users
    columns:
      - {name: name, type: str, required: true}
      - {name: age, type: int32}
  - name: posts
    columns:
      - {name: title, type: str}
      - {name: author, type: link users}
      - {name: readers, type: multi link users}
`))
	require.NoError(t, err)
	return NewDatabase(cat, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func table(t *testing.T, db *Database, name string) *catalog.Table {
	t.Helper()
	tbl, err := db.Catalog().Table(name)
	require.NoError(t, err)
	return tbl
}

func byName(name string) Predicate {
	return func(row []any) bool { return row[1] == name }
}

func TestInsertSelect(t *testing.T) {
	db := newTestDB(t)
	users := table(t, db, "users")

	ann, err := db.Insert(users, []any{nil, "ann", int32(30)})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, ann)
	_, err = db.Insert(users, []any{nil, "bob", nil})
	require.NoError(t, err)

	rows, err := db.Select(users, nil, []int{0, 1, 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []any{ann, "ann", int32(30)}, rows[0])
	require.Nil(t, rows[1][2])

	rows, err = db.Select(users, byName("bob"), []int{1})
	require.NoError(t, err)
	require.Equal(t, [][]any{{"bob"}}, rows)

	n, err := db.RowCount(users)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestInsert_Errors(t *testing.T) {
	db := newTestDB(t)
	users := table(t, db, "users")

	_, err := db.Insert(users, []any{nil, "ann"})
	require.ErrorIs(t, err, record.ErrSchemaMismatch)

	_, err = db.Insert(users, []any{"id", "ann", nil})
	require.ErrorIs(t, err, record.ErrSchemaMismatch)

	_, err = db.Insert(users, []any{nil, int64(1), nil})
	require.ErrorIs(t, err, record.ErrSchemaMismatch)

	id := uuid.New()
	_, err = db.Insert(users, []any{id, "ann", nil})
	require.NoError(t, err)
	_, err = db.Insert(users, []any{id, "dup", nil})
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestLinks(t *testing.T) {
	db := newTestDB(t)
	users := table(t, db, "users")
	posts := table(t, db, "posts")

	ann, err := db.Insert(users, []any{nil, "ann", int32(30)})
	require.NoError(t, err)
	bob, err := db.Insert(users, []any{nil, "bob", nil})
	require.NoError(t, err)

	_, err = db.Insert(posts, []any{nil, "hi", ann, []any{ann, bob}})
	require.NoError(t, err)

	rows, err := db.Select(posts, nil, []int{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "hi", rows[0][0])
	require.Equal(t, []any{ann, "ann", int32(30)}, rows[0][1])
	require.Equal(t, []any{
		[]any{ann, "ann", int32(30)},
		[]any{bob, "bob", nil},
	}, rows[0][2])

	t.Run("dangling", func(t *testing.T) {
		_, err := db.Insert(posts, []any{nil, "x", uuid.New(), nil})
		require.ErrorIs(t, err, ErrDanglingLink)
		_, err = db.Insert(posts, []any{nil, "x", nil, []any{ann, uuid.New()}})
		require.ErrorIs(t, err, ErrDanglingLink)
	})

	t.Run("deleted target reads as null", func(t *testing.T) {
		n, err := db.Delete(users, byName("ann"))
		require.NoError(t, err)
		require.Equal(t, 1, n)

		rows, err := db.Select(posts, nil, []int{2, 3})
		require.NoError(t, err)
		require.Nil(t, rows[0][0])
		require.Equal(t, []any{[]any{bob, "bob", nil}}, rows[0][1])
	})

	t.Run("record encodes the materialized row", func(t *testing.T) {
		rows, err := db.Select(posts, nil, []int{0, 1, 2, 3})
		require.NoError(t, err)
		_, err = record.EncodeRow(posts.Shape(), rows[0])
		require.NoError(t, err)
	})
}

func TestUpdateDelete(t *testing.T) {
	db := newTestDB(t)
	users := table(t, db, "users")
	for _, name := range []string{"ann", "bob", "cid"} {
		_, err := db.Insert(users, []any{nil, name, nil})
		require.NoError(t, err)
	}

	n, err := db.Update(users, byName("bob"), map[int]any{2: int32(41)})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := db.Select(users, byName("bob"), []int{2})
	require.NoError(t, err)
	require.Equal(t, [][]any{{int32(41)}}, rows)

	// a failing row leaves every row untouched
	_, err = db.Update(users, nil, map[int]any{2: "x"})
	require.ErrorIs(t, err, record.ErrSchemaMismatch)
	rows, err = db.Select(users, byName("bob"), []int{2})
	require.NoError(t, err)
	require.Equal(t, [][]any{{int32(41)}}, rows)

	n, err = db.Delete(users, nil)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	rows, err = db.Select(users, nil, []int{0})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDDL(t *testing.T) {
	db := newTestDB(t)
	gen := db.Catalog().Generation()

	require.NoError(t, db.CreateScalar(catalog.ScalarDef{Name: "email", Base: "str"}))
	tbl, err := db.CreateTable(catalog.TableDef{Name: "contacts", Columns: []catalog.ColumnDef{{Name: "mail", Type: "email"}}})
	require.NoError(t, err)
	_, err = db.Insert(tbl, []any{nil, "a@b.c"})
	require.NoError(t, err)
	require.Equal(t, gen+2, db.Catalog().Generation())

	require.ErrorIs(t, db.DropTable("users"), catalog.ErrTableInUse)
	require.NoError(t, db.DropTable("contacts"))

	_, err = db.Insert(tbl, []any{nil, "a@b.c"})
	require.ErrorIs(t, err, catalog.ErrTableNotFound)

	// recreating the table makes plans bound to the old definition stale
	again, err := db.CreateTable(catalog.TableDef{Name: "contacts", Columns: []catalog.ColumnDef{{Name: "mail", Type: "str"}}})
	require.NoError(t, err)
	_, err = db.Insert(tbl, []any{nil, "a@b.c"})
	require.ErrorIs(t, err, ErrStaleTable)
	_, err = db.Insert(again, []any{nil, "a@b.c"})
	require.NoError(t, err)
}

func TestClose(t *testing.T) {
	db := newTestDB(t)
	users := table(t, db, "users")
	require.NoError(t, db.Close())
	require.ErrorIs(t, db.Close(), ErrDatabaseClosed)

	_, err := db.Insert(users, []any{nil, "ann", nil})
	require.ErrorIs(t, err, ErrDatabaseClosed)
	_, err = db.CreateTable(catalog.TableDef{Name: "x", Columns: []catalog.ColumnDef{{Name: "a", Type: "str"}}})
	require.ErrorIs(t, err, ErrDatabaseClosed)
}
