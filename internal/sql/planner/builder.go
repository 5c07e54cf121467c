package planner

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tuannm99/novaproto/internal/catalog"
	"github.com/tuannm99/novaproto/internal/record"
	"github.com/tuannm99/novaproto/internal/sql/parser"
	"github.com/tuannm99/novaproto/pkg/typedesc"
)

var (
	ErrNoCatalog      = errors.New("planner: statement needs a catalog")
	ErrReadOnlyColumn = errors.New("planner: column cannot be assigned")
	ErrNotNull        = errors.New("planner: null value in a required column")
)

var resultNamespace = uuid.MustParse("0d3c6b8e-7a55-4f3e-b6c1-2f9a1d4e8c70")

func resultShape(name string, fields ...typedesc.ShapeField) *typedesc.SetType {
	shape := &typedesc.ShapeType{ID: uuid.NewSHA1(resultNamespace, []byte(name)), Fields: fields}
	return &typedesc.SetType{ID: uuid.NewSHA1(resultNamespace, []byte(name+"[]")), Element: shape}
}

var (
	// DescribeType is {name: str, type: str, required: bool}.
	DescribeType = resultShape("describe",
		typedesc.ShapeField{Name: "name", Type: typedesc.NewBaseScalar(typedesc.PrimitiveStr)},
		typedesc.ShapeField{Name: "type", Type: typedesc.NewBaseScalar(typedesc.PrimitiveStr)},
		typedesc.ShapeField{Name: "required", Type: typedesc.NewBaseScalar(typedesc.PrimitiveBool)},
	)

	// InsertedType is {_id: uuid}, the result of INSERT.
	InsertedType = resultShape("inserted",
		typedesc.ShapeField{Flags: typedesc.FieldImplicit, Name: catalog.IDColumn, Type: typedesc.NewBaseScalar(typedesc.PrimitiveUUID)},
	)

	// ShowTablesType is {name: str, columns: int64, rows: int64}.
	ShowTablesType = resultShape("show_tables",
		typedesc.ShapeField{Name: "name", Type: typedesc.NewBaseScalar(typedesc.PrimitiveStr)},
		typedesc.ShapeField{Name: "columns", Type: typedesc.NewBaseScalar(typedesc.PrimitiveInt64)},
		typedesc.ShapeField{Name: "rows", Type: typedesc.NewBaseScalar(typedesc.PrimitiveInt64)},
	)
)

// BuildPlan builds a physical plan from an AST Statement. DDL needs no
// catalog; everything else binds names and literals against cat.
func BuildPlan(stmt parser.Statement, cat *catalog.Catalog) (Plan, error) {
	switch s := stmt.(type) {
	case *parser.CreateScalarStmt:
		return &CreateScalarPlan{Def: catalog.ScalarDef{Name: s.Name, Base: s.Base}}, nil
	case *parser.CreateTableStmt:
		return buildCreateTablePlan(s)
	case *parser.DropTableStmt:
		return &DropTablePlan{TableName: s.TableName}, nil
	case *parser.ShowTablesStmt:
		return &ShowTablesPlan{Output: ShowTablesType}, nil
	}

	if cat == nil {
		return nil, ErrNoCatalog
	}

	switch s := stmt.(type) {
	case *parser.DescribeStmt:
		tbl, err := cat.Table(s.TableName)
		if err != nil {
			return nil, err
		}
		return &DescribePlan{Table: tbl, Output: DescribeType}, nil
	case *parser.InsertStmt:
		return buildInsertPlan(s, cat)
	case *parser.SelectStmt:
		return buildSelectPlan(s, cat)
	case *parser.UpdateStmt:
		return buildUpdatePlan(s, cat)
	case *parser.DeleteStmt:
		return buildDeletePlan(s, cat)
	default:
		return nil, fmt.Errorf("planner: unsupported statement type %T", stmt)
	}
}

func buildCreateTablePlan(s *parser.CreateTableStmt) (Plan, error) {
	def := catalog.TableDef{Name: s.TableName}
	for _, c := range s.Columns {
		def.Columns = append(def.Columns, catalog.ColumnDef{
			Name:     c.Name,
			Type:     c.Type,
			Required: c.NotNull,
		})
	}
	return &CreateTablePlan{Def: def}, nil
}

func buildInsertPlan(s *parser.InsertStmt, cat *catalog.Catalog) (Plan, error) {
	tbl, err := cat.Table(s.TableName)
	if err != nil {
		return nil, err
	}
	shape := tbl.StorageShape()

	// default target list: every declared column, identity excluded
	targets := make([]int, 0, len(shape.Fields)-1)
	if s.Columns == nil {
		for i := 1; i < len(shape.Fields); i++ {
			targets = append(targets, i)
		}
	} else {
		seen := make(map[int]bool, len(s.Columns))
		for _, name := range s.Columns {
			idx, err := tbl.ColumnIndex(name)
			if err != nil {
				return nil, err
			}
			if idx == 0 {
				return nil, fmt.Errorf("%w: %s", ErrReadOnlyColumn, name)
			}
			if seen[idx] {
				return nil, fmt.Errorf("%w: %s", catalog.ErrDuplicateColumn, name)
			}
			seen[idx] = true
			targets = append(targets, idx)
		}
	}
	if len(s.Values) != len(targets) {
		return nil, fmt.Errorf("%w: %d values for %d columns", record.ErrSchemaMismatch, len(s.Values), len(targets))
	}

	values := make([]any, len(shape.Fields))
	for i, idx := range targets {
		v, err := bind(tbl, idx, s.Values[i])
		if err != nil {
			return nil, err
		}
		values[idx] = v
	}
	for i, col := range tbl.Columns {
		if col.Required && values[i+1] == nil {
			return nil, fmt.Errorf("%w: %s.%s", ErrNotNull, tbl.Name, col.Name)
		}
	}
	return &InsertPlan{Table: tbl, Values: values, Output: InsertedType}, nil
}

func buildSelectPlan(s *parser.SelectStmt, cat *catalog.Catalog) (Plan, error) {
	tbl, err := cat.Table(s.TableName)
	if err != nil {
		return nil, err
	}
	out, proj, err := tbl.Project(s.Columns)
	if err != nil {
		return nil, err
	}
	f, err := buildFilter(tbl, s.Where)
	if err != nil {
		return nil, err
	}
	return &SeqScanPlan{Table: tbl, Output: out, Projection: proj, Filter: f}, nil
}

func buildUpdatePlan(s *parser.UpdateStmt, cat *catalog.Catalog) (Plan, error) {
	tbl, err := cat.Table(s.TableName)
	if err != nil {
		return nil, err
	}
	sets := make([]Assignment, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		idx, err := tbl.ColumnIndex(a.Column)
		if err != nil {
			return nil, err
		}
		if idx == 0 {
			return nil, fmt.Errorf("%w: %s", ErrReadOnlyColumn, a.Column)
		}
		v, err := bind(tbl, idx, a.Value)
		if err != nil {
			return nil, err
		}
		if v == nil && tbl.Columns[idx-1].Required {
			return nil, fmt.Errorf("%w: %s.%s", ErrNotNull, tbl.Name, a.Column)
		}
		sets = append(sets, Assignment{Index: idx, Value: v})
	}
	f, err := buildFilter(tbl, s.Where)
	if err != nil {
		return nil, err
	}
	return &UpdatePlan{Table: tbl, Sets: sets, Filter: f}, nil
}

func buildDeletePlan(s *parser.DeleteStmt, cat *catalog.Catalog) (Plan, error) {
	tbl, err := cat.Table(s.TableName)
	if err != nil {
		return nil, err
	}
	f, err := buildFilter(tbl, s.Where)
	if err != nil {
		return nil, err
	}
	return &DeletePlan{Table: tbl, Filter: f}, nil
}

func buildFilter(tbl *catalog.Table, w *parser.WhereEq) (*Filter, error) {
	if w == nil {
		return nil, nil
	}
	idx, err := tbl.ColumnIndex(w.Column)
	if err != nil {
		return nil, err
	}
	v, err := bind(tbl, idx, w.Value)
	if err != nil {
		return nil, err
	}
	return &Filter{Index: idx, Value: v}, nil
}

// bind coerces a literal to the storage type of field idx.
func bind(tbl *catalog.Table, idx int, e parser.Expr) (any, error) {
	lit, ok := e.(*parser.LiteralExpr)
	if !ok {
		return nil, fmt.Errorf("planner: unsupported expression %T", e)
	}
	f := tbl.StorageShape().Fields[idx]
	v, err := record.Coerce(f.Type, lit.Value)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", f.Name, err)
	}
	return v, nil
}
