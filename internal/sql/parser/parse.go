package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// parseIdent validates an identifier (table/column/type name).
// Rules (simple):
//   - must be exactly one token (no spaces)
//   - first char: letter or '_'
//   - rest: letter/digit/'_'
func parseIdent(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("missing identifier")
	}

	parts := strings.Fields(s)
	if len(parts) != 1 {
		return "", fmt.Errorf("invalid identifier %q", s)
	}
	id := parts[0]

	for i, r := range id {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return "", fmt.Errorf("invalid identifier %q", id)
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "", fmt.Errorf("invalid identifier %q", id)
		}
	}

	return id, nil
}

// Parse parses a single SQL statement into an AST.
// Policy: statement MUST end with ';'
func Parse(sql string) (Statement, error) {
	s := strings.TrimSpace(sql)
	if s == "" {
		return nil, fmt.Errorf("empty statement")
	}

	// Require ';' at the end (after trimming spaces/newlines)
	if !strings.HasSuffix(s, ";") {
		return nil, fmt.Errorf("missing ';' terminator")
	}

	// Strip the trailing ';' and trim again
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" {
		return nil, fmt.Errorf("empty statement")
	}

	up := strings.ToUpper(s)

	switch {
	// types
	case strings.HasPrefix(up, "CREATE SCALAR TYPE"):
		return parseCreateScalar(s)

	// table
	case strings.HasPrefix(up, "CREATE TABLE"):
		return parseCreateTable(s)
	case strings.HasPrefix(up, "DROP TABLE"):
		return parseDropTable(s)
	case strings.HasPrefix(up, "DESCRIBE "):
		return parseDescribe(s)
	case up == "SHOW TABLES":
		return &ShowTablesStmt{}, nil

	case strings.HasPrefix(up, "INSERT INTO"):
		return parseInsert(s)
	case strings.HasPrefix(up, "SELECT"):
		return parseSelect(s)
	case strings.HasPrefix(up, "UPDATE"):
		return parseUpdate(s)
	case strings.HasPrefix(up, "DELETE FROM"):
		return parseDelete(s)

	default:
		return nil, fmt.Errorf("unsupported statement: %q", sql)
	}
}

func parseCreateScalar(sql string) (Statement, error) {
	// "CREATE SCALAR TYPE email EXTENDING str"
	rest := strings.TrimSpace(sql[len("CREATE SCALAR TYPE"):])
	namePart, basePart := splitKeyword(rest, "EXTENDING")
	if basePart == "" {
		return nil, fmt.Errorf("invalid CREATE SCALAR TYPE syntax: missing EXTENDING")
	}
	name, err := parseIdent(namePart)
	if err != nil {
		return nil, fmt.Errorf("invalid CREATE SCALAR TYPE syntax: %w", err)
	}
	if _, err := parseIdent(strings.TrimPrefix(basePart, "std::")); err != nil {
		return nil, fmt.Errorf("invalid CREATE SCALAR TYPE syntax: %w", err)
	}
	return &CreateScalarStmt{Name: name, Base: basePart}, nil
}

func parseCreateTable(sql string) (Statement, error) {
	// "CREATE TABLE users (name TEXT NOT NULL, tags array<str>, author link people)"
	withoutPrefix := strings.TrimSpace(sql[len("CREATE TABLE"):])
	parts := strings.SplitN(withoutPrefix, "(", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid CREATE TABLE syntax")
	}

	tableName, err := parseIdent(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid CREATE TABLE syntax: %w", err)
	}

	defPart := strings.TrimSpace(parts[1])
	if !strings.HasSuffix(defPart, ")") {
		return nil, fmt.Errorf("invalid CREATE TABLE syntax: missing ')'")
	}
	defPart = strings.TrimSpace(strings.TrimSuffix(defPart, ")"))
	if defPart == "" {
		return nil, fmt.Errorf("invalid CREATE TABLE syntax: empty column list")
	}

	var cols []ColumnDef
	for _, def := range splitComma(defPart) {
		def = strings.TrimSpace(def)
		name, typ, ok := strings.Cut(def, " ")
		if !ok || strings.TrimSpace(typ) == "" {
			return nil, fmt.Errorf("invalid column def: %q", def)
		}

		colName, err := parseIdent(name)
		if err != nil {
			return nil, fmt.Errorf("invalid column name: %w", err)
		}

		col := ColumnDef{Name: colName, Type: strings.TrimSpace(typ)}
		if up := strings.ToUpper(col.Type); strings.HasSuffix(up, " NOT NULL") {
			col.NotNull = true
			col.Type = strings.TrimSpace(col.Type[:len(col.Type)-len(" NOT NULL")])
		}
		cols = append(cols, col)
	}

	return &CreateTableStmt{
		TableName: tableName,
		Columns:   cols,
	}, nil
}

func parseDropTable(sql string) (Statement, error) {
	rest := strings.TrimSpace(sql[len("DROP TABLE"):])
	name, err := parseIdent(rest)
	if err != nil {
		return nil, fmt.Errorf("invalid DROP TABLE syntax: %w", err)
	}
	return &DropTableStmt{TableName: name}, nil
}

func parseDescribe(sql string) (Statement, error) {
	rest := strings.TrimSpace(sql[len("DESCRIBE "):])
	name, err := parseIdent(rest)
	if err != nil {
		return nil, fmt.Errorf("invalid DESCRIBE syntax: %w", err)
	}
	return &DescribeStmt{TableName: name}, nil
}

func parseInsert(sql string) (Statement, error) {
	// "INSERT INTO users [(a, b)] VALUES (1, 'abc', true, null)"
	rest := strings.TrimSpace(sql[len("INSERT INTO"):])

	// Case-insensitive VALUES using splitKeyword.
	tablePart, valPart := splitKeyword(rest, "VALUES")
	if strings.TrimSpace(valPart) == "" {
		return nil, fmt.Errorf("invalid INSERT syntax")
	}

	var cols []string
	if open := strings.IndexByte(tablePart, '('); open >= 0 {
		colPart := strings.TrimSpace(tablePart[open:])
		tablePart = tablePart[:open]
		if !strings.HasSuffix(colPart, ")") {
			return nil, fmt.Errorf("invalid INSERT column list")
		}
		for _, c := range splitComma(colPart[1 : len(colPart)-1]) {
			col, err := parseIdent(c)
			if err != nil {
				return nil, fmt.Errorf("invalid INSERT column: %w", err)
			}
			cols = append(cols, col)
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("invalid INSERT column list")
		}
	}

	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, fmt.Errorf("invalid INSERT syntax: %w", err)
	}

	valPart = strings.TrimSpace(valPart)
	if !strings.HasPrefix(valPart, "(") || !strings.HasSuffix(valPart, ")") {
		return nil, fmt.Errorf("invalid INSERT values syntax")
	}
	valPart = strings.TrimSpace(valPart[1 : len(valPart)-1])

	var exprs []Expr
	for _, rv := range splitComma(valPart) {
		lit, err := parseLiteral(strings.TrimSpace(rv))
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, &LiteralExpr{Value: lit})
	}
	if cols != nil && len(cols) != len(exprs) {
		return nil, fmt.Errorf("INSERT has %d columns but %d values", len(cols), len(exprs))
	}

	return &InsertStmt{
		TableName: tableName,
		Columns:   cols,
		Values:    exprs,
	}, nil
}

func parseSelect(sql string) (Statement, error) {
	// "SELECT * FROM users [WHERE col = literal]"
	// "SELECT name, email FROM users [WHERE col = literal]"
	rest := strings.TrimSpace(sql[len("SELECT"):])
	projPart, fromPart := splitKeyword(" "+rest, "FROM")
	if strings.TrimSpace(fromPart) == "" {
		return nil, fmt.Errorf("invalid SELECT syntax: missing FROM")
	}

	var cols []string
	projPart = strings.TrimSpace(projPart)
	if projPart != "*" {
		for _, c := range splitComma(projPart) {
			col, err := parseIdent(c)
			if err != nil {
				return nil, fmt.Errorf("invalid SELECT column: %w", err)
			}
			cols = append(cols, col)
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("invalid SELECT syntax: empty projection")
		}
	}

	tablePart, wherePart := splitKeyword(fromPart, "WHERE")

	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, fmt.Errorf("invalid SELECT syntax: %w", err)
	}

	var w *WhereEq
	if strings.TrimSpace(wherePart) != "" {
		we, err := parseWhereEq(wherePart)
		if err != nil {
			return nil, err
		}
		w = we
	}

	return &SelectStmt{TableName: tableName, Columns: cols, Where: w}, nil
}

func parseUpdate(sql string) (Statement, error) {
	// "UPDATE t SET a=1, b='x' [WHERE id=1]"
	rest := strings.TrimSpace(sql[len("UPDATE"):])
	tablePart, afterTable := splitKeyword(rest, "SET")

	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, fmt.Errorf("invalid UPDATE syntax: %w", err)
	}

	setPart, wherePart := splitKeyword(afterTable, "WHERE")
	setPart = strings.TrimSpace(setPart)
	if setPart == "" {
		return nil, fmt.Errorf("invalid UPDATE syntax: missing SET")
	}

	assignStrs := splitComma(setPart)
	assigns := make([]Assignment, 0, len(assignStrs))
	for _, a := range assignStrs {
		a = strings.TrimSpace(a)
		kv := strings.SplitN(a, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid assignment: %q", a)
		}

		col, err := parseIdent(kv[0])
		if err != nil {
			return nil, fmt.Errorf("invalid assignment column: %w", err)
		}

		valRaw := strings.TrimSpace(kv[1])
		lit, err := parseLiteral(valRaw)
		if err != nil {
			return nil, err
		}

		assigns = append(assigns, Assignment{
			Column: col,
			Value:  &LiteralExpr{Value: lit},
		})
	}

	var w *WhereEq
	if strings.TrimSpace(wherePart) != "" {
		we, err := parseWhereEq(wherePart)
		if err != nil {
			return nil, err
		}
		w = we
	}

	return &UpdateStmt{
		TableName:   tableName,
		Assignments: assigns,
		Where:       w,
	}, nil
}

func parseDelete(sql string) (Statement, error) {
	// "DELETE FROM t [WHERE col=literal]"
	rest := strings.TrimSpace(sql[len("DELETE FROM"):])
	tablePart, wherePart := splitKeyword(rest, "WHERE")

	tableName, err := parseIdent(tablePart)
	if err != nil {
		return nil, fmt.Errorf("invalid DELETE syntax: %w", err)
	}

	var w *WhereEq
	if strings.TrimSpace(wherePart) != "" {
		we, err := parseWhereEq(wherePart)
		if err != nil {
			return nil, err
		}
		w = we
	}

	return &DeleteStmt{TableName: tableName, Where: w}, nil
}

func parseWhereEq(s string) (*WhereEq, error) {
	// very naive: "col = literal"
	s = strings.TrimSpace(s)
	kv := strings.SplitN(s, "=", 2)
	if len(kv) != 2 {
		return nil, fmt.Errorf("only WHERE <col> = <literal> supported")
	}

	col, err := parseIdent(kv[0])
	if err != nil {
		return nil, fmt.Errorf("invalid WHERE column: %w", err)
	}

	valRaw := strings.TrimSpace(kv[1])
	lit, err := parseLiteral(valRaw)
	if err != nil {
		return nil, err
	}

	return &WhereEq{
		Column: col,
		Value:  &LiteralExpr{Value: lit},
	}, nil
}

func parseLiteral(rv string) (any, error) {
	up := strings.ToUpper(rv)

	// NULL
	if up == "NULL" {
		return nil, nil
	}

	// BOOL
	if up == "TRUE" {
		return true, nil
	}
	if up == "FALSE" {
		return false, nil
	}

	// STRING (single quotes, '' escapes a quote)
	if len(rv) >= 2 && rv[0] == '\'' && rv[len(rv)-1] == '\'' {
		body := rv[1 : len(rv)-1]
		if strings.Count(strings.ReplaceAll(body, "''", ""), "'") != 0 {
			return nil, fmt.Errorf("unsupported literal: %q", rv)
		}
		return strings.ReplaceAll(body, "''", "'"), nil
	}

	// LIST: [1, 'a', [true]]
	if len(rv) >= 2 && rv[0] == '[' && rv[len(rv)-1] == ']' {
		items := splitComma(rv[1 : len(rv)-1])
		out := make([]any, 0, len(items))
		for _, it := range items {
			v, err := parseLiteral(strings.TrimSpace(it))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	// INT64
	if i, err := strconv.ParseInt(rv, 10, 64); err == nil {
		return i, nil
	}

	// FLOAT64
	if strings.ContainsAny(rv, ".eE") {
		if f, err := strconv.ParseFloat(rv, 64); err == nil {
			return f, nil
		}
	}

	return nil, fmt.Errorf("unsupported literal: %q", rv)
}

// splitKeyword splits "X <keyword> Y" case-insensitively, ignoring
// keywords inside quotes. returns (X, Y). If keyword not present => (s, "").
//
// NOTE: requires spaces around keyword (" WHERE ").
func splitKeyword(s, keyword string) (string, string) {
	up := strings.ToUpper(s)
	k := " " + strings.ToUpper(keyword) + " "
	inQuote := false
	for i := 0; i+len(k) <= len(up); i++ {
		if up[i] == '\'' {
			inQuote = !inQuote
			continue
		}
		if !inQuote && up[i:i+len(k)] == k {
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(k):])
		}
	}
	return s, ""
}

// splitComma splits a comma-separated list, ignoring commas inside quotes
// and inside <...>, (...) or [...].
func splitComma(s string) []string {
	parts := []string{}
	cur := strings.Builder{}
	inQuote := false
	depth := 0
	for _, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case inQuote:
		case r == '<' || r == '(' || r == '[':
			depth++
		case r == '>' || r == ')' || r == ']':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if strings.TrimSpace(cur.String()) != "" {
		parts = append(parts, cur.String())
	}
	return parts
}
