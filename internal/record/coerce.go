package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novaproto/pkg/typedesc"
)

// Layouts accepted for temporal literals.
const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.999999"
	naiveDTLayout   = "2006-01-02T15:04:05.999999"
	naiveDTLayoutSp = "2006-01-02 15:04:05.999999"
)

// Coerce converts a SQL literal (nil, bool, int64, float64, string or
// []any) into the Go representation EncodeValue expects for t.
func Coerce(t typedesc.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t := t.(type) {
	case *typedesc.ScalarType:
		return Coerce(t.Base, v)

	case *typedesc.BaseScalarType:
		k, _ := t.Primitive()
		out, err := coerceScalar(k, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		return out, nil

	case *typedesc.SetType:
		return coerceList(t.Element, v)

	case *typedesc.ArrayType:
		return coerceList(t.Element, v)

	case *typedesc.TupleType:
		items, ok := v.([]any)
		if !ok || len(items) != len(t.Elements) {
			return nil, mismatch(t, v)
		}
		return coerceSeq(items, func(i int) typedesc.Type { return t.Elements[i] })

	case *typedesc.NamedTupleType:
		items, ok := v.([]any)
		if !ok || len(items) != len(t.Elements) {
			return nil, mismatch(t, v)
		}
		return coerceSeq(items, func(i int) typedesc.Type { return t.Elements[i].Type })

	case *typedesc.ShapeType:
		items, ok := v.([]any)
		if !ok || len(items) != len(t.Fields) {
			return nil, mismatch(t, v)
		}
		out := make([]any, len(items))
		for i, f := range t.Fields {
			x, err := Coerce(f.Type, items[i])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			out[i] = x
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, t)
}

func coerceList(elem typedesc.Type, v any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, mismatch(elem, v)
	}
	return coerceSeq(items, func(int) typedesc.Type { return elem })
}

func coerceSeq(items []any, typeAt func(int) typedesc.Type) (any, error) {
	out := make([]any, len(items))
	for i, it := range items {
		if it == nil {
			return nil, fmt.Errorf("%w: element %d", ErrNullNotAllowed, i)
		}
		x, err := Coerce(typeAt(i), it)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func coerceScalar(k typedesc.PrimitiveKind, v any) (any, error) {
	switch k {
	case typedesc.PrimitiveUUID:
		if id, ok := asUUID(v); ok {
			return id, nil
		}
	case typedesc.PrimitiveStr:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case typedesc.PrimitiveBytes:
		switch b := v.(type) {
		case string:
			return []byte(b), nil
		case []byte:
			return b, nil
		}
	case typedesc.PrimitiveInt16:
		if x, ok := asInt16(v); ok {
			return x, nil
		}
	case typedesc.PrimitiveInt32:
		if x, ok := asInt32(v); ok {
			return x, nil
		}
	case typedesc.PrimitiveInt64:
		if x, ok := asInt64(v); ok {
			return x, nil
		}
	case typedesc.PrimitiveFloat32:
		if x, ok := asFloat64(v); ok {
			return float32(x), nil
		}
	case typedesc.PrimitiveFloat64:
		if x, ok := asFloat64(v); ok {
			return x, nil
		}
	case typedesc.PrimitiveBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case typedesc.PrimitiveDecimal:
		return asDecimal(v)
	case typedesc.PrimitiveJSON:
		if s, ok := v.(string); ok {
			if !json.Valid([]byte(s)) {
				return nil, fmt.Errorf("invalid json %q", s)
			}
			return s, nil
		}
	case typedesc.PrimitiveDatetime:
		switch x := v.(type) {
		case string:
			ts, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, err
			}
			return ts.UTC(), nil
		case time.Time:
			return x.UTC(), nil
		}
	case typedesc.PrimitiveNaiveDatetime:
		switch x := v.(type) {
		case string:
			layout := naiveDTLayout
			if !strings.Contains(x, "T") {
				layout = naiveDTLayoutSp
			}
			return time.Parse(layout, x)
		case time.Time:
			return x, nil
		}
	case typedesc.PrimitiveNaiveDate:
		switch x := v.(type) {
		case string:
			return time.Parse(dateLayout, x)
		case time.Time:
			y, m, d := x.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	case typedesc.PrimitiveNaiveTime:
		switch x := v.(type) {
		case string:
			ts, err := time.Parse(timeLayout, x)
			if err != nil {
				return nil, err
			}
			return ts.Sub(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)), nil
		case time.Duration:
			return x, nil
		}
	case typedesc.PrimitiveTimedelta:
		switch x := v.(type) {
		case string:
			return time.ParseDuration(x)
		case int64:
			return time.Duration(x) * time.Microsecond, nil
		case time.Duration:
			return x, nil
		}
	default:
		return nil, fmt.Errorf("%s is not a storable type", k)
	}
	return nil, fmt.Errorf("%s cannot hold %T", k, v)
}

// Equal compares two values in their Go representation.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case uuid.UUID, string, bool, int16, int32, int64, float32, float64, time.Duration:
		return a == b
	}
	return false
}
