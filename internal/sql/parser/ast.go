package parser

// Statement is the root interface for all SQL statements.
type Statement interface {
	stmtNode()
}

// ----- CREATE SCALAR TYPE -----
type CreateScalarStmt struct {
	Name string
	Base string
}

func (*CreateScalarStmt) stmtNode() {}

// ----- CREATE TABLE -----
type ColumnDef struct {
	Name string
	// Type is the type expression as written: "TEXT", "array<str>[3]",
	// "tuple<x: float64, y: float64>", "link users", "multi link users".
	Type    string
	NotNull bool
}

type CreateTableStmt struct {
	TableName string
	Columns   []ColumnDef
}

func (*CreateTableStmt) stmtNode() {}

type DropTableStmt struct {
	TableName string
}

func (*DropTableStmt) stmtNode() {}

// ----- DESCRIBE / SHOW -----
type DescribeStmt struct {
	TableName string
}

func (*DescribeStmt) stmtNode() {}

type ShowTablesStmt struct{}

func (*ShowTablesStmt) stmtNode() {}

// ----- INSERT -----
type InsertStmt struct {
	TableName string
	Columns   []string // nil: every declared column in order
	Values    []Expr
}

func (*InsertStmt) stmtNode() {}

// ----- SELECT -----
type SelectStmt struct {
	TableName string
	Columns   []string // nil: SELECT *
	Where     *WhereEq
}

func (*SelectStmt) stmtNode() {}

// ----- UPDATE -----
type Assignment struct {
	Column string
	Value  Expr
}

type UpdateStmt struct {
	TableName   string
	Assignments []Assignment
	Where       *WhereEq
}

func (*UpdateStmt) stmtNode() {}

// ----- DELETE -----
type DeleteStmt struct {
	TableName string
	Where     *WhereEq
}

func (*DeleteStmt) stmtNode() {}

// WhereEq is the only predicate: <col> = <literal>.
type WhereEq struct {
	Column string
	Value  Expr
}

// ----- Expressions -----
type Expr interface {
	exprNode()
}

// LiteralExpr holds nil, bool, int64, float64, string or []any for
// bracketed lists.
type LiteralExpr struct {
	Value any
}

func (*LiteralExpr) exprNode() {}
