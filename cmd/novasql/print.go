package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/tuannm99/novaproto/pkg/typedesc"
	"github.com/tuannm99/novaproto/sqlclient"
)

func printResult(w io.Writer, res *sqlclient.Result) {
	if res.Type == nil {
		// DDL/DML
		fmt.Fprintf(w, "OK (%d affected)\n", res.AffectedRows)
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetColWidth(64)
	table.SetHeader(res.Columns)
	table.SetAutoFormatHeaders(false)
	for _, row := range res.Rows {
		out := make([]string, len(row))
		for i, v := range row {
			out[i] = formatValue(v)
		}
		table.Append(out)
	}
	table.Render()

	cached := ""
	if res.Cached {
		cached = ", cached descriptors"
	}
	fmt.Fprintf(w, "(%d rows%s)\n", len(res.Rows), cached)
}

func printDescriptors(w io.Writer, res *sqlclient.Result) {
	if res == nil || res.Type == nil {
		fmt.Fprintln(w, "no result type yet")
		return
	}
	fmt.Fprintf(w, "descriptor set %s\n", res.DescriptorID)
	fmt.Fprint(w, typedesc.Format(res.Descriptors))
	fmt.Fprintf(w, "root: %s\n", res.Type)
}

// formatValue renders decoded values; nested rows and lists print inline.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return `\x` + hex.EncodeToString(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}
