package typedesc

import (
	"fmt"
	"math"

	"github.com/tuannm99/novaproto/internal/alias/bx"
)

// Encoder serialises type graphs. The memo tables live for one call only, so
// an Encoder can be reused but not shared between goroutines.
type Encoder struct {
	buf   []byte
	count int

	// structural signature (the entry bytes) -> position
	memo map[string]Position
	// node identity -> position, so shared sub-graphs are walked once
	seen     map[Type]Position
	visiting map[Type]struct{}
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode serialises the graph rooted at root and returns the stream with
// the position of root, which is always the last entry.
func Encode(root Type) ([]byte, Position, error) {
	return NewEncoder().Encode(root)
}

func (e *Encoder) Encode(root Type) ([]byte, Position, error) {
	buf, pos, err := e.EncodeMany(root)
	if err != nil {
		return nil, 0, err
	}
	return buf, pos[0], nil
}

// EncodeMany serialises several roots into one stream, e.g. the input and
// output shapes of a statement. Sub-graphs shared between roots are emitted
// once.
func (e *Encoder) EncodeMany(roots ...Type) ([]byte, []Position, error) {
	e.reset()
	defer e.release()

	positions := make([]Position, len(roots))
	for i, root := range roots {
		pos, err := e.walk(root)
		if err != nil {
			return nil, nil, err
		}
		positions[i] = pos
	}
	return e.buf, positions, nil
}

// Count returns the number of entries produced by the last call.
func (e *Encoder) Count() int { return e.count }

func (e *Encoder) reset() {
	e.buf = nil
	e.count = 0
	e.memo = make(map[string]Position)
	e.seen = make(map[Type]Position)
	e.visiting = make(map[Type]struct{})
}

func (e *Encoder) release() {
	e.memo = nil
	e.seen = nil
	e.visiting = nil
}

func (e *Encoder) walk(t Type) (Position, error) {
	if isNil(t) {
		return 0, ErrNilType
	}
	if pos, ok := e.seen[t]; ok {
		return pos, nil
	}
	if _, ok := e.visiting[t]; ok {
		return 0, fmt.Errorf("%w: %s %s", ErrCyclicType, t.Kind(), t.TypeID())
	}
	e.visiting[t] = struct{}{}
	defer delete(e.visiting, t)

	entry, err := e.entry(t)
	if err != nil {
		return 0, err
	}
	pos, err := e.emit(entry)
	if err != nil {
		return 0, err
	}
	e.seen[t] = pos
	return pos, nil
}

// entry walks the children of t and returns its wire bytes.
func (e *Encoder) entry(t Type) ([]byte, error) {
	id := t.TypeID()
	out := make([]byte, 0, 1+len(id)+2)
	out = append(out, byte(t.Kind()))
	out = append(out, id[:]...)

	switch t := t.(type) {
	case *SetType:
		elem, err := e.walk(t.Element)
		if err != nil {
			return nil, err
		}
		out = bx.AppendU16(out, uint16(elem))

	case *ShapeType:
		if len(t.Fields) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: shape %s has %d fields", ErrTooManyElements, id, len(t.Fields))
		}
		names := make(map[string]struct{}, len(t.Fields))
		positions := make([]Position, len(t.Fields))
		for i, f := range t.Fields {
			if err := checkName(names, f.Name); err != nil {
				return nil, fmt.Errorf("shape %s: %w", id, err)
			}
			pos, err := e.walk(f.Type)
			if err != nil {
				return nil, err
			}
			positions[i] = pos
		}
		out = bx.AppendU16(out, uint16(len(t.Fields)))
		for i, f := range t.Fields {
			out = append(out, byte(f.Flags))
			out = bx.AppendStr16(out, f.Name)
			out = bx.AppendU16(out, uint16(positions[i]))
		}

	case *BaseScalarType:

	case *ScalarType:
		base, err := e.walk(t.Base)
		if err != nil {
			return nil, err
		}
		out = bx.AppendU16(out, uint16(base))

	case *TupleType:
		if len(t.Elements) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: tuple %s has %d elements", ErrTooManyElements, id, len(t.Elements))
		}
		positions := make([]Position, len(t.Elements))
		for i, el := range t.Elements {
			pos, err := e.walk(el)
			if err != nil {
				return nil, err
			}
			positions[i] = pos
		}
		out = bx.AppendU16(out, uint16(len(positions)))
		for _, pos := range positions {
			out = bx.AppendU16(out, uint16(pos))
		}

	case *NamedTupleType:
		if len(t.Elements) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: tuple %s has %d elements", ErrTooManyElements, id, len(t.Elements))
		}
		names := make(map[string]struct{}, len(t.Elements))
		positions := make([]Position, len(t.Elements))
		for i, el := range t.Elements {
			if err := checkName(names, el.Name); err != nil {
				return nil, fmt.Errorf("tuple %s: %w", id, err)
			}
			pos, err := e.walk(el.Type)
			if err != nil {
				return nil, err
			}
			positions[i] = pos
		}
		out = bx.AppendU16(out, uint16(len(t.Elements)))
		for i, el := range t.Elements {
			out = bx.AppendStr16(out, el.Name)
			out = bx.AppendU16(out, uint16(positions[i]))
		}

	case *ArrayType:
		if len(t.Dimensions) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: array %s has %d dimensions", ErrTooManyElements, id, len(t.Dimensions))
		}
		for _, d := range t.Dimensions {
			if d < UnboundedDimension {
				return nil, fmt.Errorf("%w: array %s dimension %d", ErrInvalidDimension, id, d)
			}
		}
		elem, err := e.walk(t.Element)
		if err != nil {
			return nil, err
		}
		out = bx.AppendU16(out, uint16(elem))
		out = bx.AppendU16(out, uint16(len(t.Dimensions)))
		for _, d := range t.Dimensions {
			out = bx.AppendI64(out, d)
		}

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownDescriptorKind, t)
	}
	return out, nil
}

func (e *Encoder) emit(entry []byte) (Position, error) {
	key := string(entry)
	if pos, ok := e.memo[key]; ok {
		return pos, nil
	}
	if e.count >= MaxDescriptors {
		return 0, fmt.Errorf("%w: limit is %d", ErrTooManyDescriptors, MaxDescriptors)
	}
	pos := Position(e.count)
	e.count++
	e.memo[key] = pos
	e.buf = append(e.buf, entry...)
	return pos, nil
}

func checkName(names map[string]struct{}, name string) error {
	if len(name) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	if _, dup := names[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateExclusiveElement, name)
	}
	names[name] = struct{}{}
	return nil
}

func isNil(t Type) bool {
	switch t := t.(type) {
	case nil:
		return true
	case *SetType:
		return t == nil
	case *ShapeType:
		return t == nil
	case *BaseScalarType:
		return t == nil
	case *ScalarType:
		return t == nil
	case *TupleType:
		return t == nil
	case *NamedTupleType:
		return t == nil
	case *ArrayType:
		return t == nil
	}
	return false
}
