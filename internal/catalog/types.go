package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tuannm99/novaproto/pkg/typedesc"
)

// namespace for ids of catalog-defined types. Ids are derived from the
// canonical structure, so the same declaration yields the same id on every
// server start.
var namespace = uuid.MustParse("5b7f36a2-3b8e-4f43-9a0e-8d1c9e6f2a41")

func deriveID(parts ...string) typedesc.TypeID {
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "\x00")))
}

// sqlAliases maps the SQL spellings accepted in CREATE TABLE to registry
// kinds. Registry names ("int64", "std::str", ...) are accepted as well.
var sqlAliases = map[string]typedesc.PrimitiveKind{
	"int":         typedesc.PrimitiveInt64,
	"integer":     typedesc.PrimitiveInt64,
	"bigint":      typedesc.PrimitiveInt64,
	"smallint":    typedesc.PrimitiveInt16,
	"int2":        typedesc.PrimitiveInt16,
	"int4":        typedesc.PrimitiveInt32,
	"int8":        typedesc.PrimitiveInt64,
	"text":        typedesc.PrimitiveStr,
	"varchar":     typedesc.PrimitiveStr,
	"string":      typedesc.PrimitiveStr,
	"boolean":     typedesc.PrimitiveBool,
	"real":        typedesc.PrimitiveFloat32,
	"float":       typedesc.PrimitiveFloat64,
	"double":      typedesc.PrimitiveFloat64,
	"numeric":     typedesc.PrimitiveDecimal,
	"blob":        typedesc.PrimitiveBytes,
	"bytea":       typedesc.PrimitiveBytes,
	"timestamptz": typedesc.PrimitiveDatetime,
	"timestamp":   typedesc.PrimitiveNaiveDatetime,
	"date":        typedesc.PrimitiveNaiveDate,
	"time":        typedesc.PrimitiveNaiveTime,
	"interval":    typedesc.PrimitiveTimedelta,
}

// resolveExpr parses a column type expression:
//
//	int64 | TEXT | email | array<str> | array<int64>[3] |
//	tuple<int64, str> | tuple<x: float64, y: float64>
//
// Links are handled by the caller. Must be called with c.mu held.
func (c *Catalog) resolveExpr(expr string) (typedesc.Type, error) {
	s := strings.TrimSpace(expr)
	low := strings.ToLower(s)

	switch {
	case strings.HasPrefix(low, "array<"):
		inner, rest, err := splitAngle(s[len("array"):])
		if err != nil {
			return nil, err
		}
		elem, err := c.resolveExpr(inner)
		if err != nil {
			return nil, err
		}
		if elem.Kind() == typedesc.KindArray {
			return nil, fmt.Errorf("%w: nested arrays are not supported: %q", ErrBadTypeExpr, expr)
		}
		dims, err := parseDims(rest)
		if err != nil {
			return nil, err
		}
		parts := []string{"array", elem.TypeID().String()}
		for _, d := range dims {
			parts = append(parts, strconv.FormatInt(d, 10))
		}
		return &typedesc.ArrayType{ID: deriveID(parts...), Element: elem, Dimensions: dims}, nil

	case strings.HasPrefix(low, "tuple<"):
		inner, rest, err := splitAngle(s[len("tuple"):])
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(rest) != "" {
			return nil, fmt.Errorf("%w: trailing %q after tuple", ErrBadTypeExpr, rest)
		}
		return c.resolveTuple(inner)
	}

	if k, ok := sqlAliases[low]; ok {
		return typedesc.NewBaseScalar(k), nil
	}
	if id, ok := typedesc.LookupName(low); ok {
		k, _ := typedesc.Lookup(id)
		if k == typedesc.PrimitiveAnyType || k == typedesc.PrimitiveAnyTuple || k == typedesc.PrimitiveEmptyTuple {
			return nil, fmt.Errorf("%w: %s is not a column type", ErrBadTypeExpr, s)
		}
		return &typedesc.BaseScalarType{ID: id}, nil
	}
	if sc, ok := c.scalars[low]; ok {
		return sc.typ, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

func (c *Catalog) resolveTuple(inner string) (typedesc.Type, error) {
	items := SplitTopLevel(inner, ',')
	if len(items) == 0 {
		return &typedesc.TupleType{ID: typedesc.EmptyTupleID}, nil
	}

	named := strings.Contains(topLevelPrefix(items[0]), ":")
	if !named {
		tup := &typedesc.TupleType{}
		parts := []string{"tuple"}
		for _, it := range items {
			el, err := c.resolveExpr(it)
			if err != nil {
				return nil, err
			}
			tup.Elements = append(tup.Elements, el)
			parts = append(parts, el.TypeID().String())
		}
		tup.ID = deriveID(parts...)
		return tup, nil
	}

	tup := &typedesc.NamedTupleType{}
	parts := []string{"namedtuple"}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		name, typ, ok := strings.Cut(it, ":")
		if !ok {
			return nil, fmt.Errorf("%w: mixed named and positional tuple elements", ErrBadTypeExpr)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty tuple element name", ErrBadTypeExpr)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tuple element %q", ErrBadTypeExpr, name)
		}
		seen[name] = struct{}{}
		el, err := c.resolveExpr(typ)
		if err != nil {
			return nil, err
		}
		tup.Elements = append(tup.Elements, typedesc.NamedElement{Name: name, Type: el})
		parts = append(parts, name, el.TypeID().String())
	}
	tup.ID = deriveID(parts...)
	return tup, nil
}

// splitAngle takes "<inner>rest" and returns inner and rest.
func splitAngle(s string) (string, string, error) {
	if !strings.HasPrefix(s, "<") {
		return "", "", fmt.Errorf("%w: expected '<' in %q", ErrBadTypeExpr, s)
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("%w: unbalanced '<' in %q", ErrBadTypeExpr, s)
}

// parseDims parses "[3][-1]"; an empty string means one unbounded dimension.
func parseDims(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int64{typedesc.UnboundedDimension}, nil
	}
	var dims []int64
	for s != "" {
		if !strings.HasPrefix(s, "[") {
			return nil, fmt.Errorf("%w: bad array dimension %q", ErrBadTypeExpr, s)
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated array dimension %q", ErrBadTypeExpr, s)
		}
		d, err := strconv.ParseInt(strings.TrimSpace(s[1:end]), 10, 64)
		if err != nil || d < typedesc.UnboundedDimension || d == 0 {
			return nil, fmt.Errorf("%w: bad array dimension %q", ErrBadTypeExpr, s[:end+1])
		}
		dims = append(dims, d)
		s = strings.TrimSpace(s[end+1:])
	}
	return dims, nil
}

// SplitTopLevel splits s on sep outside of <...>, (...) and single quotes.
// Empty items are dropped.
func SplitTopLevel(s string, sep rune) []string {
	var (
		parts   []string
		cur     strings.Builder
		depth   int
		inQuote bool
	)
	flush := func() {
		if p := strings.TrimSpace(cur.String()); p != "" {
			parts = append(parts, p)
		}
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case inQuote:
		case r == '<' || r == '(':
			depth++
		case r == '>' || r == ')':
			depth--
		case r == sep && depth == 0:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return parts
}

// topLevelPrefix returns s up to the first '<', which is enough to tell
// "x: int64" from "tuple<a: int64>".
func topLevelPrefix(s string) string {
	if i := strings.IndexByte(s, '<'); i >= 0 {
		return s[:i]
	}
	return s
}
