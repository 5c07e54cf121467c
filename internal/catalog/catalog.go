package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tuannm99/novaproto/pkg/typedesc"
)

var (
	ErrTableExists     = errors.New("catalog: table already exists")
	ErrTableNotFound   = errors.New("catalog: table not found")
	ErrTableInUse      = errors.New("catalog: table is referenced by a link")
	ErrColumnNotFound  = errors.New("catalog: column not found")
	ErrDuplicateColumn = errors.New("catalog: duplicate column")
	ErrReservedColumn  = errors.New("catalog: reserved column name")
	ErrScalarExists    = errors.New("catalog: scalar type already exists")
	ErrUnknownType     = errors.New("catalog: unknown type")
	ErrBadTypeExpr     = errors.New("catalog: bad type expression")
)

// IDColumn is the implicit identity field every row shape starts with.
const IDColumn = "_id"

type ScalarDef struct {
	Name string `yaml:"name" json:"name"`
	Base string `yaml:"base" json:"base"`
}

type ColumnDef struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required"`
}

type TableDef struct {
	Name    string      `yaml:"name" json:"name"`
	Columns []ColumnDef `yaml:"columns" json:"columns"`
}

type scalar struct {
	def ScalarDef
	typ *typedesc.ScalarType
}

// Column is a bound column. Link is the target table of a link column.
type Column struct {
	Name     string
	TypeExpr string
	Type     typedesc.Type
	Required bool
	Link     string
	Multi    bool
}

// Table is immutable once created; DDL replaces it in the catalog.
type Table struct {
	Name    string
	Columns []Column

	shape   *typedesc.ShapeType
	set     *typedesc.SetType
	storage *typedesc.ShapeType
}

// Shape returns the row shape: the implicit identity followed by the
// declared columns.
func (t *Table) Shape() *typedesc.ShapeType { return t.shape }

// StorageShape is the shape rows are stored with: links are kept as the
// target identity (uuid) and multi links as array<uuid>.
func (t *Table) StorageShape() *typedesc.ShapeType { return t.storage }

// RowSet returns the type of a full-table result.
func (t *Table) RowSet() *typedesc.SetType { return t.set }

// ColumnIndex returns the row index of a column; the identity is index 0.
func (t *Table) ColumnIndex(name string) (int, error) {
	if name == IDColumn {
		return 0, nil
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i + 1, nil
		}
	}
	return -1, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.Name, name)
}

// Project returns the result type for the given columns (all columns when
// cols is empty) and the row indexes to copy. The identity is always kept
// as an implicit field.
func (t *Table) Project(cols []string) (*typedesc.SetType, []int, error) {
	if len(cols) == 0 {
		idx := make([]int, len(t.shape.Fields))
		for i := range idx {
			idx[i] = i
		}
		return t.set, idx, nil
	}

	idx := []int{0}
	fields := []typedesc.ShapeField{t.shape.Fields[0]}
	seen := map[int]bool{0: true}
	for _, name := range cols {
		i, err := t.ColumnIndex(name)
		if err != nil {
			return nil, nil, err
		}
		if seen[i] {
			if i == 0 {
				continue
			}
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		seen[i] = true
		idx = append(idx, i)
		fields = append(fields, t.shape.Fields[i])
	}

	shape := &typedesc.ShapeType{ID: shapeID(t.Name, fields), Fields: fields}
	set := &typedesc.SetType{ID: deriveID("set", shape.ID.String()), Element: shape}
	return set, idx, nil
}

// Catalog is the schema known to the server. It is safe for concurrent use.
type Catalog struct {
	mu         sync.RWMutex
	scalars    map[string]*scalar
	tables     map[string]*Table
	generation uint64
}

func New() *Catalog {
	return &Catalog{
		scalars: make(map[string]*scalar),
		tables:  make(map[string]*Table),
	}
}

// Generation changes whenever a DDL statement changes the schema. Clients
// use it to invalidate cached descriptors.
func (c *Catalog) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// DefineScalar declares a user scalar type that behaves like base.
func (c *Catalog) DefineScalar(def ScalarDef) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(def.Name))
	if key == "" {
		return fmt.Errorf("%w: empty scalar name", ErrBadTypeExpr)
	}
	if _, ok := c.scalars[key]; ok {
		return fmt.Errorf("%w: %s", ErrScalarExists, def.Name)
	}
	if _, ok := typedesc.LookupName(key); ok {
		return fmt.Errorf("%w: %s shadows a built-in", ErrScalarExists, def.Name)
	}
	if _, ok := sqlAliases[key]; ok {
		return fmt.Errorf("%w: %s shadows a built-in", ErrScalarExists, def.Name)
	}

	base, err := c.resolveExpr(def.Base)
	if err != nil {
		return err
	}
	switch base.Kind() {
	case typedesc.KindBaseScalar, typedesc.KindScalar:
	default:
		return fmt.Errorf("%w: scalar %s must extend a scalar, got %s", ErrBadTypeExpr, def.Name, base)
	}

	c.scalars[key] = &scalar{
		def: def,
		typ: &typedesc.ScalarType{ID: deriveID("scalar", key), Base: base},
	}
	c.generation++
	return nil
}

// ResolveType parses a column type expression against the catalog.
func (c *Catalog) ResolveType(expr string) (typedesc.Type, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveExpr(expr)
}

func (c *Catalog) CreateTable(def TableDef) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(def.Name)
	if _, ok := c.tables[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, def.Name)
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("%w: table %s has no columns", ErrBadTypeExpr, def.Name)
	}

	t := &Table{Name: def.Name}
	fields := []typedesc.ShapeField{{
		Flags: typedesc.FieldImplicit,
		Name:  IDColumn,
		Type:  typedesc.NewBaseScalar(typedesc.PrimitiveUUID),
	}}
	seen := make(map[string]struct{}, len(def.Columns))
	for _, cd := range def.Columns {
		name := strings.TrimSpace(cd.Name)
		if strings.EqualFold(name, IDColumn) {
			return nil, fmt.Errorf("%w: %s", ErrReservedColumn, name)
		}
		low := strings.ToLower(name)
		if _, dup := seen[low]; dup {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateColumn, def.Name, name)
		}
		seen[low] = struct{}{}

		col, err := c.bindColumn(cd)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", def.Name, name, err)
		}
		col.Name = name
		t.Columns = append(t.Columns, col)

		var flags typedesc.FieldFlags
		if col.Link != "" {
			flags |= typedesc.FieldLink
		}
		fields = append(fields, typedesc.ShapeField{Flags: flags, Name: name, Type: col.Type})
	}

	t.shape = &typedesc.ShapeType{ID: shapeID(def.Name, fields), Fields: fields}
	t.set = &typedesc.SetType{ID: deriveID("set", t.shape.ID.String()), Element: t.shape}
	t.storage = storageShape(t)

	c.tables[key] = t
	c.generation++
	return t, nil
}

func (c *Catalog) bindColumn(cd ColumnDef) (Column, error) {
	col := Column{TypeExpr: strings.TrimSpace(cd.Type), Required: cd.Required}
	name, multi, ok := parseLink(col.TypeExpr)
	if !ok {
		typ, err := c.resolveExpr(col.TypeExpr)
		if err != nil {
			return col, err
		}
		col.Type = typ
		return col, nil
	}

	target, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return col, fmt.Errorf("%w: link target %s", ErrTableNotFound, name)
	}
	col.Link = target.Name
	col.Multi = multi
	if multi {
		col.Type = target.set
	} else {
		col.Type = target.shape
	}
	return col, nil
}

// parseLink recognises "link T" and "multi link T".
func parseLink(expr string) (target string, multi bool, ok bool) {
	f := strings.Fields(expr)
	switch {
	case len(f) == 2 && strings.EqualFold(f[0], "link"):
		return f[1], false, true
	case len(f) == 3 && strings.EqualFold(f[0], "multi") && strings.EqualFold(f[1], "link"):
		return f[2], true, true
	}
	return "", false, false
}

// DropTable removes a table that no other table links to.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := c.tables[key]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	for _, other := range c.tables {
		for _, col := range other.Columns {
			if strings.EqualFold(col.Link, name) && !strings.EqualFold(other.Name, name) {
				return fmt.Errorf("%w: %s.%s -> %s", ErrTableInUse, other.Name, col.Name, name)
			}
		}
	}
	delete(c.tables, key)
	c.generation++
	return nil
}

func (c *Catalog) Table(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// Tables returns all tables sorted by name.
func (c *Catalog) Tables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Table, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Scalars returns the user scalar declarations sorted by name.
func (c *Catalog) Scalars() []ScalarDef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ScalarDef, 0, len(c.scalars))
	for _, s := range c.scalars {
		out = append(out, s.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var linkIDs = &typedesc.ArrayType{
	ID:         deriveID("array", typedesc.UUIDID.String(), "-1"),
	Element:    typedesc.NewBaseScalar(typedesc.PrimitiveUUID),
	Dimensions: []int64{typedesc.UnboundedDimension},
}

func storageShape(t *Table) *typedesc.ShapeType {
	fields := append([]typedesc.ShapeField(nil), t.shape.Fields...)
	for i, col := range t.Columns {
		switch {
		case col.Multi:
			fields[i+1].Type = linkIDs
		case col.Link != "":
			fields[i+1].Type = fields[0].Type
		}
	}
	return &typedesc.ShapeType{ID: shapeID("storage:"+t.Name, fields), Fields: fields}
}

func shapeID(table string, fields []typedesc.ShapeField) typedesc.TypeID {
	parts := []string{"shape", strings.ToLower(table)}
	for _, f := range fields {
		parts = append(parts, f.Name, fmt.Sprint(uint8(f.Flags)), f.Type.TypeID().String())
	}
	return deriveID(parts...)
}
