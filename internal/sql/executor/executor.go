package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tuannm99/novaproto/internal/catalog"
	"github.com/tuannm99/novaproto/internal/engine"
	"github.com/tuannm99/novaproto/internal/record"
	"github.com/tuannm99/novaproto/internal/sql/parser"
	"github.com/tuannm99/novaproto/internal/sql/planner"
	"github.com/tuannm99/novaproto/pkg/typedesc"
)

// executorDB is a small seam for unit-testing Executor without a real DB.
type executorDB interface {
	Catalog() *catalog.Catalog

	CreateScalar(def catalog.ScalarDef) error
	CreateTable(def catalog.TableDef) (*catalog.Table, error)
	DropTable(name string) error

	Insert(tbl *catalog.Table, values []any) (uuid.UUID, error)
	Select(tbl *catalog.Table, pred engine.Predicate, projection []int) ([][]any, error)
	Update(tbl *catalog.Table, pred engine.Predicate, sets map[int]any) (int, error)
	Delete(tbl *catalog.Table, pred engine.Predicate) (int, error)
	RowCount(tbl *catalog.Table) (int, error)
}

var _ executorDB = (*engine.Database)(nil)

// Executor executes a plan against a Database.
type Executor struct {
	DB  executorDB
	log *slog.Logger
}

func NewExecutor(db *engine.Database) *Executor {
	return &Executor{DB: db, log: slog.Default()}
}

// NewExecutorForTest allows injecting a fake executorDB.
func NewExecutorForTest(db executorDB) *Executor {
	return &Executor{DB: db, log: slog.Default()}
}

// ExecSQL is the top-level entry: SQL string -> Result.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	return e.ExecContext(context.Background(), sql)
}

// ExecContext runs one statement. ctx is checked before execution only;
// statements run to completion once started.
func (e *Executor) ExecContext(ctx context.Context, sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}

	plan, err := planner.BuildPlan(stmt, e.DB.Catalog())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := e.execPlan(plan)
	if err != nil {
		return nil, err
	}
	res.Generation = e.DB.Catalog().Generation()
	return res, nil
}

func (e *Executor) execPlan(p planner.Plan) (*Result, error) {
	switch plan := p.(type) {
	case *planner.CreateScalarPlan:
		return &Result{}, e.DB.CreateScalar(plan.Def)
	case *planner.CreateTablePlan:
		_, err := e.DB.CreateTable(plan.Def)
		return &Result{}, err
	case *planner.DropTablePlan:
		return &Result{}, e.DB.DropTable(plan.TableName)

	case *planner.DescribePlan:
		return e.execDescribe(plan)
	case *planner.ShowTablesPlan:
		return e.execShowTables(plan)

	case *planner.InsertPlan:
		return e.execInsert(plan)
	case *planner.SeqScanPlan:
		return e.execSeqScan(plan)
	case *planner.UpdatePlan:
		return e.execUpdate(plan)
	case *planner.DeletePlan:
		return e.execDelete(plan)

	default:
		return nil, fmt.Errorf("executor: unsupported plan type %T", p)
	}
}

func columns(set *typedesc.SetType) []string {
	shape := set.Element.(*typedesc.ShapeType)
	cols := make([]string, len(shape.Fields))
	for i, f := range shape.Fields {
		cols[i] = f.Name
	}
	return cols
}

func predicate(f *planner.Filter) engine.Predicate {
	if f == nil {
		return nil
	}
	return func(row []any) bool { return record.Equal(row[f.Index], f.Value) }
}

func (e *Executor) execDescribe(p *planner.DescribePlan) (*Result, error) {
	res := &Result{Type: p.Output, Columns: columns(p.Output)}
	for i, f := range p.Table.Shape().Fields {
		typ := f.Type.String()
		required := true
		if i > 0 {
			col := p.Table.Columns[i-1]
			typ = col.TypeExpr
			required = col.Required
		}
		res.Rows = append(res.Rows, []any{f.Name, typ, required})
	}
	return res, nil
}

func (e *Executor) execShowTables(p *planner.ShowTablesPlan) (*Result, error) {
	res := &Result{Type: p.Output, Columns: columns(p.Output)}
	for _, t := range e.DB.Catalog().Tables() {
		n, err := e.DB.RowCount(t)
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, []any{t.Name, int64(len(t.Columns)), int64(n)})
	}
	return res, nil
}

func (e *Executor) execInsert(p *planner.InsertPlan) (*Result, error) {
	id, err := e.DB.Insert(p.Table, p.Values)
	if err != nil {
		return nil, err
	}
	e.log.Debug("insert", "table", p.Table.Name, "id", id)
	return &Result{
		Type:         p.Output,
		Columns:      columns(p.Output),
		Rows:         [][]any{{id}},
		AffectedRows: 1,
	}, nil
}

func (e *Executor) execSeqScan(p *planner.SeqScanPlan) (*Result, error) {
	rows, err := e.DB.Select(p.Table, predicate(p.Filter), p.Projection)
	if err != nil {
		return nil, err
	}
	return &Result{Type: p.Output, Columns: columns(p.Output), Rows: rows}, nil
}

func (e *Executor) execUpdate(p *planner.UpdatePlan) (*Result, error) {
	sets := make(map[int]any, len(p.Sets))
	for _, a := range p.Sets {
		sets[a.Index] = a.Value
	}
	n, err := e.DB.Update(p.Table, predicate(p.Filter), sets)
	if err != nil {
		return nil, err
	}
	return &Result{AffectedRows: int64(n)}, nil
}

func (e *Executor) execDelete(p *planner.DeletePlan) (*Result, error) {
	n, err := e.DB.Delete(p.Table, predicate(p.Filter))
	if err != nil {
		return nil, err
	}
	return &Result{AffectedRows: int64(n)}, nil
}
