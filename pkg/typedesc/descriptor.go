package typedesc

import (
	"fmt"
	"math"
	"strings"
)

// Position indexes an entry within one descriptor stream.
type Position uint16

// MaxDescriptors is the number of entries a stream can address.
const MaxDescriptors = math.MaxUint16 + 1

// Descriptor is one decoded entry. References to other entries are
// positions, never pointers.
type Descriptor interface {
	Kind() Kind
	TypeID() TypeID
}

type SetDescriptor struct {
	ID      TypeID
	Element Position
}

type ShapeDescriptor struct {
	ID     TypeID
	Fields []ShapeElement
}

type ShapeElement struct {
	Flags   FieldFlags
	Name    string
	Element Position
}

// BaseScalarDescriptor carries the registry kind resolved at decode time;
// Primitive is PrimitiveInvalid for ids the registry does not know.
type BaseScalarDescriptor struct {
	ID        TypeID
	Primitive PrimitiveKind
}

type ScalarDescriptor struct {
	ID   TypeID
	Base Position
}

type TupleDescriptor struct {
	ID       TypeID
	Elements []Position
}

type NamedTupleDescriptor struct {
	ID       TypeID
	Elements []TupleElement
}

type TupleElement struct {
	Name    string
	Element Position
}

type ArrayDescriptor struct {
	ID         TypeID
	Element    Position
	Dimensions []int64
}

func (*SetDescriptor) Kind() Kind        { return KindSet }
func (*ShapeDescriptor) Kind() Kind      { return KindShape }
func (*BaseScalarDescriptor) Kind() Kind { return KindBaseScalar }
func (*ScalarDescriptor) Kind() Kind     { return KindScalar }
func (*TupleDescriptor) Kind() Kind      { return KindTuple }
func (*NamedTupleDescriptor) Kind() Kind { return KindNamedTuple }
func (*ArrayDescriptor) Kind() Kind      { return KindArray }

func (d *SetDescriptor) TypeID() TypeID        { return d.ID }
func (d *ShapeDescriptor) TypeID() TypeID      { return d.ID }
func (d *BaseScalarDescriptor) TypeID() TypeID { return d.ID }
func (d *ScalarDescriptor) TypeID() TypeID     { return d.ID }
func (d *TupleDescriptor) TypeID() TypeID      { return d.ID }
func (d *NamedTupleDescriptor) TypeID() TypeID { return d.ID }
func (d *ArrayDescriptor) TypeID() TypeID      { return d.ID }

// References returns the positions d points to, in wire order.
func References(d Descriptor) []Position {
	switch d := d.(type) {
	case *SetDescriptor:
		return []Position{d.Element}
	case *ShapeDescriptor:
		out := make([]Position, len(d.Fields))
		for i, f := range d.Fields {
			out[i] = f.Element
		}
		return out
	case *ScalarDescriptor:
		return []Position{d.Base}
	case *TupleDescriptor:
		return append([]Position(nil), d.Elements...)
	case *NamedTupleDescriptor:
		out := make([]Position, len(d.Elements))
		for i, e := range d.Elements {
			out[i] = e.Element
		}
		return out
	case *ArrayDescriptor:
		return []Position{d.Element}
	}
	return nil
}

// ResolveAll rebuilds the type graph of a descriptor array. Element i of the
// result is the node for position i; a position referenced several times
// yields one shared node.
func ResolveAll(descs []Descriptor) ([]Type, error) {
	out := make([]Type, len(descs))
	for i, d := range descs {
		for _, ref := range References(d) {
			if int(ref) >= i {
				return nil, fmt.Errorf("%w: entry %d references %d", ErrInvalidBackreference, i, ref)
			}
		}

		switch d := d.(type) {
		case *SetDescriptor:
			out[i] = &SetType{ID: d.ID, Element: out[d.Element]}
		case *ShapeDescriptor:
			fields := make([]ShapeField, len(d.Fields))
			for j, f := range d.Fields {
				fields[j] = ShapeField{Flags: f.Flags, Name: f.Name, Type: out[f.Element]}
			}
			out[i] = &ShapeType{ID: d.ID, Fields: fields}
		case *BaseScalarDescriptor:
			out[i] = &BaseScalarType{ID: d.ID}
		case *ScalarDescriptor:
			out[i] = &ScalarType{ID: d.ID, Base: out[d.Base]}
		case *TupleDescriptor:
			elems := make([]Type, len(d.Elements))
			for j, p := range d.Elements {
				elems[j] = out[p]
			}
			out[i] = &TupleType{ID: d.ID, Elements: elems}
		case *NamedTupleDescriptor:
			elems := make([]NamedElement, len(d.Elements))
			for j, e := range d.Elements {
				elems[j] = NamedElement{Name: e.Name, Type: out[e.Element]}
			}
			out[i] = &NamedTupleType{ID: d.ID, Elements: elems}
		case *ArrayDescriptor:
			out[i] = &ArrayType{
				ID:         d.ID,
				Element:    out[d.Element],
				Dimensions: append([]int64(nil), d.Dimensions...),
			}
		default:
			return nil, fmt.Errorf("%w: entry %d is %T", ErrUnknownDescriptorKind, i, d)
		}
	}
	return out, nil
}

// Resolve returns the type graph rooted at pos.
func Resolve(descs []Descriptor, pos Position) (Type, error) {
	if int(pos) >= len(descs) {
		return nil, fmt.Errorf("%w: root %d of %d entries", ErrInvalidBackreference, pos, len(descs))
	}
	types, err := ResolveAll(descs[:int(pos)+1])
	if err != nil {
		return nil, err
	}
	return types[pos], nil
}

// Format renders one line per entry, for logs and dump tools.
func Format(descs []Descriptor) string {
	var b strings.Builder
	for i, d := range descs {
		fmt.Fprintf(&b, "%d: %s %s", i, d.Kind(), typeName(d.TypeID()))
		switch d := d.(type) {
		case *SetDescriptor:
			fmt.Fprintf(&b, " element=%d", d.Element)
		case *ShapeDescriptor:
			for _, f := range d.Fields {
				fmt.Fprintf(&b, " (0x%02x %q %d)", uint8(f.Flags), f.Name, f.Element)
			}
		case *BaseScalarDescriptor:
			if d.Primitive == PrimitiveInvalid {
				b.WriteString(" unknown")
			}
		case *ScalarDescriptor:
			fmt.Fprintf(&b, " base=%d", d.Base)
		case *TupleDescriptor:
			fmt.Fprintf(&b, " elements=%v", d.Elements)
		case *NamedTupleDescriptor:
			for _, e := range d.Elements {
				fmt.Fprintf(&b, " (%q %d)", e.Name, e.Element)
			}
		case *ArrayDescriptor:
			fmt.Fprintf(&b, " element=%d dims=%v", d.Element, d.Dimensions)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
