package planner

import (
	"github.com/tuannm99/novaproto/internal/catalog"
	"github.com/tuannm99/novaproto/pkg/typedesc"
)

// Plan is the interface for executable plans.
type Plan interface {
	planNode()
}

// ----- Plan nodes -----

type CreateScalarPlan struct {
	Def catalog.ScalarDef
}

func (*CreateScalarPlan) planNode() {}

type CreateTablePlan struct {
	Def catalog.TableDef
}

func (*CreateTablePlan) planNode() {}

type DropTablePlan struct {
	TableName string
}

func (*DropTablePlan) planNode() {}

// DescribePlan lists the columns of a table as rows of DescribeType.
type DescribePlan struct {
	Table  *catalog.Table
	Output *typedesc.SetType
}

func (*DescribePlan) planNode() {}

// ShowTablesPlan lists every table as rows of ShowTablesType.
type ShowTablesPlan struct {
	Output *typedesc.SetType
}

func (*ShowTablesPlan) planNode() {}

// InsertPlan carries values already coerced to the storage shape. Values
// has one slot per storage field; slot 0 (the identity) is filled at
// execution.
type InsertPlan struct {
	Table  *catalog.Table
	Values []any
	Output *typedesc.SetType
}

func (*InsertPlan) planNode() {}

// Filter is an equality predicate on one storage field.
type Filter struct {
	Index int
	Value any
}

type SeqScanPlan struct {
	Table *catalog.Table
	// Output is the result type; Projection maps each output field to a
	// storage field index.
	Output     *typedesc.SetType
	Projection []int
	Filter     *Filter
}

func (*SeqScanPlan) planNode() {}

type Assignment struct {
	Index int
	Value any
}

type UpdatePlan struct {
	Table  *catalog.Table
	Sets   []Assignment
	Filter *Filter
}

func (*UpdatePlan) planNode() {}

type DeletePlan struct {
	Table  *catalog.Table
	Filter *Filter
}

func (*DeletePlan) planNode() {}
