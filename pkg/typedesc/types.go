package typedesc

import (
	"fmt"
	"strings"
)

// Kind is the one-byte tag that starts every descriptor entry.
type Kind uint8

const (
	KindSet        Kind = 0
	KindShape      Kind = 1
	KindBaseScalar Kind = 2
	KindScalar     Kind = 3
	KindTuple      Kind = 4
	KindNamedTuple Kind = 5
	KindArray      Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindShape:
		return "shape"
	case KindBaseScalar:
		return "base_scalar"
	case KindScalar:
		return "scalar"
	case KindTuple:
		return "tuple"
	case KindNamedTuple:
		return "namedtuple"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// FieldFlags is the per-field bitset of a shape element.
type FieldFlags uint8

const (
	FieldImplicit     FieldFlags = 1 << 0
	FieldLinkProperty FieldFlags = 1 << 1
	FieldLink         FieldFlags = 1 << 2
)

func (f FieldFlags) Has(flag FieldFlags) bool { return f&flag != 0 }

// UnboundedDimension marks an array dimension without a fixed length.
const UnboundedDimension int64 = -1

// Type is a node of a type graph. Implementations are pointer types so that
// shared sub-graphs can be recognised by identity.
type Type interface {
	Kind() Kind
	TypeID() TypeID
	String() string
}

type SetType struct {
	ID      TypeID
	Element Type
}

type ShapeType struct {
	ID     TypeID
	Fields []ShapeField
}

type ShapeField struct {
	Flags FieldFlags
	Name  string
	Type  Type
}

type BaseScalarType struct {
	ID TypeID
}

// ScalarType is a user-declared scalar that behaves like Base but has its
// own identity.
type ScalarType struct {
	ID   TypeID
	Base Type
}

type TupleType struct {
	ID       TypeID
	Elements []Type
}

type NamedTupleType struct {
	ID       TypeID
	Elements []NamedElement
}

type NamedElement struct {
	Name string
	Type Type
}

type ArrayType struct {
	ID         TypeID
	Element    Type
	Dimensions []int64
}

func (*SetType) Kind() Kind        { return KindSet }
func (*ShapeType) Kind() Kind      { return KindShape }
func (*BaseScalarType) Kind() Kind { return KindBaseScalar }
func (*ScalarType) Kind() Kind     { return KindScalar }
func (*TupleType) Kind() Kind      { return KindTuple }
func (*NamedTupleType) Kind() Kind { return KindNamedTuple }
func (*ArrayType) Kind() Kind      { return KindArray }

func (t *SetType) TypeID() TypeID        { return t.ID }
func (t *ShapeType) TypeID() TypeID      { return t.ID }
func (t *BaseScalarType) TypeID() TypeID { return t.ID }
func (t *ScalarType) TypeID() TypeID     { return t.ID }
func (t *TupleType) TypeID() TypeID      { return t.ID }
func (t *NamedTupleType) TypeID() TypeID { return t.ID }
func (t *ArrayType) TypeID() TypeID      { return t.ID }

// NewBaseScalar returns the base scalar node for a registry kind. It panics
// on kinds that have no reserved identifier.
func NewBaseScalar(k PrimitiveKind) *BaseScalarType {
	id, ok := BaseScalarID(k)
	if !ok {
		panic(fmt.Sprintf("typedesc: no base scalar for %v", k))
	}
	return &BaseScalarType{ID: id}
}

// Primitive reports the registry kind of a base scalar.
func (t *BaseScalarType) Primitive() (PrimitiveKind, bool) { return Lookup(t.ID) }

func (t *SetType) String() string { return "set<" + t.Element.String() + ">" }

func (t *ShapeType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (t *BaseScalarType) String() string {
	return strings.TrimPrefix(typeName(t.ID), "std::")
}

func (t *ScalarType) String() string {
	return fmt.Sprintf("scalar(%s)<%s>", t.ID, t.Base)
}

func (t *TupleType) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = e.String()
	}
	return "tuple<" + strings.Join(parts, ", ") + ">"
}

func (t *NamedTupleType) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = fmt.Sprintf("%s: %s", e.Name, e.Type)
	}
	return "tuple<" + strings.Join(parts, ", ") + ">"
}

func (t *ArrayType) String() string {
	var b strings.Builder
	b.WriteString("array<")
	b.WriteString(t.Element.String())
	b.WriteString(">")
	for _, d := range t.Dimensions {
		fmt.Fprintf(&b, "[%d]", d)
	}
	return b.String()
}

// Equal reports whether a and b describe the same structure: same kinds,
// identifiers, names, flags and dimensions, recursively. Pointer identity
// is irrelevant.
func Equal(a, b Type) bool {
	return equal(a, b, make(map[[2]Type]bool))
}

func equal(a, b Type, seen map[[2]Type]bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || a.TypeID() != b.TypeID() {
		return false
	}
	key := [2]Type{a, b}
	if eq, ok := seen[key]; ok {
		return eq
	}

	eq := false
	switch a := a.(type) {
	case *SetType:
		eq = equal(a.Element, b.(*SetType).Element, seen)
	case *ShapeType:
		o := b.(*ShapeType)
		eq = len(a.Fields) == len(o.Fields)
		for i := 0; eq && i < len(a.Fields); i++ {
			eq = a.Fields[i].Name == o.Fields[i].Name &&
				a.Fields[i].Flags == o.Fields[i].Flags &&
				equal(a.Fields[i].Type, o.Fields[i].Type, seen)
		}
	case *BaseScalarType:
		eq = true
	case *ScalarType:
		eq = equal(a.Base, b.(*ScalarType).Base, seen)
	case *TupleType:
		o := b.(*TupleType)
		eq = len(a.Elements) == len(o.Elements)
		for i := 0; eq && i < len(a.Elements); i++ {
			eq = equal(a.Elements[i], o.Elements[i], seen)
		}
	case *NamedTupleType:
		o := b.(*NamedTupleType)
		eq = len(a.Elements) == len(o.Elements)
		for i := 0; eq && i < len(a.Elements); i++ {
			eq = a.Elements[i].Name == o.Elements[i].Name &&
				equal(a.Elements[i].Type, o.Elements[i].Type, seen)
		}
	case *ArrayType:
		o := b.(*ArrayType)
		eq = len(a.Dimensions) == len(o.Dimensions) && equal(a.Element, o.Element, seen)
		for i := 0; eq && i < len(a.Dimensions); i++ {
			eq = a.Dimensions[i] == o.Dimensions[i]
		}
	}
	seen[key] = eq
	return eq
}
