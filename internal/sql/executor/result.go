package executor

import "github.com/tuannm99/novaproto/pkg/typedesc"

// Result is the generic query result returned to the caller.
type Result struct {
	// Type is the result set type, nil for statements without rows.
	Type    *typedesc.SetType
	Columns []string
	Rows    [][]any

	// For DML:
	AffectedRows int64

	// Generation is the catalog generation after the statement ran.
	Generation uint64
}
