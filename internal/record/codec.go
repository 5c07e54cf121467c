package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/apd"
	"github.com/google/uuid"

	"github.com/tuannm99/novaproto/internal/alias/bx"
	"github.com/tuannm99/novaproto/pkg/typedesc"
)

var (
	ErrSchemaMismatch  = errors.New("rowcodec: schema/values mismatch")
	ErrNullNotAllowed  = errors.New("rowcodec: null in a non-nullable position")
	ErrBadBuffer       = errors.New("rowcodec: buffer underflow/overflow")
	ErrVarTooLong      = errors.New("rowcodec: variable length exceeds u16")
	ErrUnsupportedType = errors.New("rowcodec: unsupported type")
)

// epoch is the zero point of every temporal encoding.
var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	day           = 24 * time.Hour
	secondsPerDay = 86400
)

// maxZeroWidthElems caps lists whose elements encode to no bytes at all
// (e.g. array<tuple<>>), since the buffer length cannot bound them.
const maxZeroWidthElems = 1 << 16

// EncodeValue appends the binary form of v, typed as t, to dst.
//
// Go representations:
//
//	uuid                  uuid.UUID (also [16]byte or its string form)
//	str, json             string
//	bytes                 []byte
//	int16/int32/int64     the matching int type (other ints if in range)
//	float32/float64       the matching float type
//	decimal               string in canonical form
//	bool                  bool
//	datetime, naive_*     time.Time, except naive_time as time.Duration
//	timedelta             time.Duration
//	shape                 []any, nil entries for missing fields
//	set, array            []any
//	tuple, namedtuple     []any
//
// Nulls are only legal for shape fields.
func EncodeValue(dst []byte, t typedesc.Type, v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrNullNotAllowed, t)
	}

	switch t := t.(type) {
	case *typedesc.ScalarType:
		return EncodeValue(dst, t.Base, v)

	case *typedesc.BaseScalarType:
		k, _ := t.Primitive()
		return encodeScalar(dst, k, v)

	case *typedesc.ShapeType:
		vals, ok := v.([]any)
		if !ok {
			return nil, mismatch(t, v)
		}
		return encodeShape(dst, t, vals)

	case *typedesc.SetType:
		return encodeList(dst, t.Element, v, -1)

	case *typedesc.ArrayType:
		return encodeList(dst, t.Element, v, fixedLen(t.Dimensions))

	case *typedesc.TupleType:
		vals, ok := v.([]any)
		if !ok || len(vals) != len(t.Elements) {
			return nil, mismatch(t, v)
		}
		var err error
		for i, el := range t.Elements {
			if dst, err = EncodeValue(dst, el, vals[i]); err != nil {
				return nil, err
			}
		}
		return dst, nil

	case *typedesc.NamedTupleType:
		vals, ok := v.([]any)
		if !ok || len(vals) != len(t.Elements) {
			return nil, mismatch(t, v)
		}
		var err error
		for i, el := range t.Elements {
			if dst, err = EncodeValue(dst, el.Type, vals[i]); err != nil {
				return nil, fmt.Errorf("element %s: %w", el.Name, err)
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, t)
}

// DecodeValue decodes one value of type t from the front of buf and
// returns it with the number of bytes consumed.
func DecodeValue(t typedesc.Type, buf []byte) (any, int, error) {
	switch t := t.(type) {
	case *typedesc.ScalarType:
		return DecodeValue(t.Base, buf)

	case *typedesc.BaseScalarType:
		k, _ := t.Primitive()
		return decodeScalar(k, buf)

	case *typedesc.ShapeType:
		return decodeShape(t, buf)

	case *typedesc.SetType:
		return decodeList(t.Element, buf)

	case *typedesc.ArrayType:
		return decodeList(t.Element, buf)

	case *typedesc.TupleType:
		return decodeSeq(len(t.Elements), func(i int) typedesc.Type { return t.Elements[i] }, buf)

	case *typedesc.NamedTupleType:
		return decodeSeq(len(t.Elements), func(i int) typedesc.Type { return t.Elements[i].Type }, buf)
	}
	return nil, 0, fmt.Errorf("%w: %T", ErrUnsupportedType, t)
}

func mismatch(t typedesc.Type, v any) error {
	return fmt.Errorf("%w: %s cannot hold %T", ErrSchemaMismatch, t, v)
}

// fixedLen is the element count implied by dims, or -1 when a dimension
// is unbounded.
func fixedLen(dims []int64) int {
	n := 1
	for _, d := range dims {
		if d < 0 {
			return -1
		}
		n *= int(d)
	}
	return n
}

func encodeList(dst []byte, elem typedesc.Type, v any, want int) ([]byte, error) {
	vals, ok := v.([]any)
	if !ok {
		return nil, mismatch(elem, v)
	}
	if want >= 0 && len(vals) != want {
		return nil, fmt.Errorf("%w: array holds %d elements, want %d", ErrSchemaMismatch, len(vals), want)
	}
	if uint64(len(vals)) > math.MaxUint32 {
		return nil, ErrVarTooLong
	}
	if minWidth(elem) == 0 && len(vals) > maxZeroWidthElems {
		return nil, fmt.Errorf("%w: %d zero-width elements, limit is %d", ErrVarTooLong, len(vals), maxZeroWidthElems)
	}
	dst = bx.AppendU32(dst, uint32(len(vals)))
	var err error
	for _, x := range vals {
		if dst, err = EncodeValue(dst, elem, x); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func decodeList(elem typedesc.Type, buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrBadBuffer
	}
	n := int(bx.U32(buf))
	i := 4
	if w := minWidth(elem); w > 0 {
		if n > (len(buf)-i)/w {
			return nil, 0, ErrBadBuffer
		}
	} else if n > maxZeroWidthElems {
		return nil, 0, ErrBadBuffer
	}
	out := make([]any, n)
	for j := range out {
		v, used, err := DecodeValue(elem, buf[i:])
		if err != nil {
			return nil, 0, err
		}
		out[j] = v
		i += used
	}
	return out, i, nil
}

// minWidth is the fewest bytes any value of t encodes to.
func minWidth(t typedesc.Type) int {
	switch t := t.(type) {
	case *typedesc.ScalarType:
		return minWidth(t.Base)
	case *typedesc.BaseScalarType:
		k, _ := t.Primitive()
		switch k {
		case typedesc.PrimitiveUUID:
			return 16
		case typedesc.PrimitiveInt64, typedesc.PrimitiveFloat64, typedesc.PrimitiveDatetime,
			typedesc.PrimitiveNaiveDatetime, typedesc.PrimitiveNaiveTime, typedesc.PrimitiveTimedelta:
			return 8
		case typedesc.PrimitiveInt32, typedesc.PrimitiveFloat32, typedesc.PrimitiveNaiveDate:
			return 4
		case typedesc.PrimitiveInt16:
			return 2
		case typedesc.PrimitiveBool:
			return 1
		}
		// u16 length prefix of the variable-width kinds
		return 2
	case *typedesc.ShapeType:
		return (len(t.Fields) + 7) / 8
	case *typedesc.SetType, *typedesc.ArrayType:
		return 4
	case *typedesc.TupleType:
		w := 0
		for _, el := range t.Elements {
			w += minWidth(el)
		}
		return w
	case *typedesc.NamedTupleType:
		w := 0
		for _, el := range t.Elements {
			w += minWidth(el.Type)
		}
		return w
	}
	return 0
}

func decodeSeq(n int, typeAt func(int) typedesc.Type, buf []byte) (any, int, error) {
	out := make([]any, n)
	i := 0
	for j := range out {
		v, used, err := DecodeValue(typeAt(j), buf[i:])
		if err != nil {
			return nil, 0, err
		}
		out[j] = v
		i += used
	}
	return out, i, nil
}

func appendVar(dst, b []byte) ([]byte, error) {
	if len(b) > math.MaxUint16 {
		return nil, ErrVarTooLong
	}
	dst = bx.AppendU16(dst, uint16(len(b)))
	return append(dst, b...), nil
}

func readVar(buf []byte) ([]byte, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrBadBuffer
	}
	l := int(bx.U16(buf))
	if 2+l > len(buf) {
		return nil, 0, ErrBadBuffer
	}
	return buf[2 : 2+l], 2 + l, nil
}

func encodeScalar(dst []byte, k typedesc.PrimitiveKind, v any) ([]byte, error) {
	bad := func() error {
		return fmt.Errorf("%w: %s cannot hold %T", ErrSchemaMismatch, k, v)
	}

	switch k {
	case typedesc.PrimitiveUUID:
		id, ok := asUUID(v)
		if !ok {
			return nil, bad()
		}
		return append(dst, id[:]...), nil

	case typedesc.PrimitiveStr:
		s, ok := v.(string)
		if !ok {
			return nil, bad()
		}
		return appendVar(dst, []byte(s))

	case typedesc.PrimitiveBytes:
		switch b := v.(type) {
		case []byte:
			return appendVar(dst, b)
		case string:
			return appendVar(dst, []byte(b))
		}
		return nil, bad()

	case typedesc.PrimitiveInt16:
		x, ok := asInt16(v)
		if !ok {
			return nil, bad()
		}
		return bx.AppendI16(dst, x), nil

	case typedesc.PrimitiveInt32:
		x, ok := asInt32(v)
		if !ok {
			return nil, bad()
		}
		return bx.AppendI32(dst, x), nil

	case typedesc.PrimitiveInt64:
		x, ok := asInt64(v)
		if !ok {
			return nil, bad()
		}
		return bx.AppendI64(dst, x), nil

	case typedesc.PrimitiveFloat32:
		x, ok := asFloat64(v)
		if !ok {
			return nil, bad()
		}
		return bx.AppendU32(dst, math.Float32bits(float32(x))), nil

	case typedesc.PrimitiveFloat64:
		x, ok := asFloat64(v)
		if !ok {
			return nil, bad()
		}
		return bx.AppendU64(dst, math.Float64bits(x)), nil

	case typedesc.PrimitiveDecimal:
		s, err := asDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		return appendVar(dst, []byte(s))

	case typedesc.PrimitiveBool:
		x, ok := v.(bool)
		if !ok {
			return nil, bad()
		}
		if x {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil

	case typedesc.PrimitiveJSON:
		var raw []byte
		switch x := v.(type) {
		case string:
			raw = []byte(x)
		case json.RawMessage:
			raw = x
		case []byte:
			raw = x
		default:
			return nil, bad()
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: invalid json", ErrSchemaMismatch)
		}
		return appendVar(dst, raw)

	case typedesc.PrimitiveDatetime, typedesc.PrimitiveNaiveDatetime:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, bad()
		}
		return bx.AppendI64(dst, ts.UnixMicro()-epoch.UnixMicro()), nil

	case typedesc.PrimitiveNaiveDate:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, bad()
		}
		y, m, d := ts.Date()
		days := (time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() - epoch.Unix()) / secondsPerDay
		return bx.AppendI32(dst, int32(days)), nil

	case typedesc.PrimitiveNaiveTime:
		d, ok := v.(time.Duration)
		if !ok {
			return nil, bad()
		}
		if d < 0 || d >= day {
			return nil, fmt.Errorf("%w: time of day %s out of range", ErrSchemaMismatch, d)
		}
		return bx.AppendI64(dst, d.Microseconds()), nil

	case typedesc.PrimitiveTimedelta:
		d, ok := v.(time.Duration)
		if !ok {
			return nil, bad()
		}
		return bx.AppendI64(dst, d.Microseconds()), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, k)
}

func decodeScalar(k typedesc.PrimitiveKind, buf []byte) (any, int, error) {
	fixed := func(n int) bool { return len(buf) >= n }

	switch k {
	case typedesc.PrimitiveUUID:
		if !fixed(16) {
			return nil, 0, ErrBadBuffer
		}
		var id uuid.UUID
		copy(id[:], buf)
		return id, 16, nil

	case typedesc.PrimitiveStr, typedesc.PrimitiveDecimal, typedesc.PrimitiveJSON:
		b, n, err := readVar(buf)
		if err != nil {
			return nil, 0, err
		}
		return string(b), n, nil

	case typedesc.PrimitiveBytes:
		b, n, err := readVar(buf)
		if err != nil {
			return nil, 0, err
		}
		// copy so the value never aliases a frame buffer
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp, n, nil

	case typedesc.PrimitiveInt16:
		if !fixed(2) {
			return nil, 0, ErrBadBuffer
		}
		return bx.I16(buf), 2, nil

	case typedesc.PrimitiveInt32:
		if !fixed(4) {
			return nil, 0, ErrBadBuffer
		}
		return bx.I32(buf), 4, nil

	case typedesc.PrimitiveInt64:
		if !fixed(8) {
			return nil, 0, ErrBadBuffer
		}
		return bx.I64(buf), 8, nil

	case typedesc.PrimitiveFloat32:
		if !fixed(4) {
			return nil, 0, ErrBadBuffer
		}
		return math.Float32frombits(bx.U32(buf)), 4, nil

	case typedesc.PrimitiveFloat64:
		if !fixed(8) {
			return nil, 0, ErrBadBuffer
		}
		return math.Float64frombits(bx.U64(buf)), 8, nil

	case typedesc.PrimitiveBool:
		if !fixed(1) {
			return nil, 0, ErrBadBuffer
		}
		return buf[0] != 0, 1, nil

	case typedesc.PrimitiveDatetime, typedesc.PrimitiveNaiveDatetime:
		if !fixed(8) {
			return nil, 0, ErrBadBuffer
		}
		return time.UnixMicro(epoch.UnixMicro() + bx.I64(buf)).UTC(), 8, nil

	case typedesc.PrimitiveNaiveDate:
		if !fixed(4) {
			return nil, 0, ErrBadBuffer
		}
		return epoch.AddDate(0, 0, int(bx.I32(buf))), 4, nil

	case typedesc.PrimitiveNaiveTime, typedesc.PrimitiveTimedelta:
		if !fixed(8) {
			return nil, 0, ErrBadBuffer
		}
		return time.Duration(bx.I64(buf)) * time.Microsecond, 8, nil
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedType, k)
}

func asDecimal(v any) (string, error) {
	switch x := v.(type) {
	case string:
		d, _, err := apd.NewFromString(x)
		if err != nil {
			return "", err
		}
		return d.String(), nil
	case *apd.Decimal:
		return x.String(), nil
	case apd.Decimal:
		return x.String(), nil
	}
	if i, ok := asInt64(v); ok {
		return apd.New(i, 0).String(), nil
	}
	if f, ok := asFloat64(v); ok {
		d := new(apd.Decimal)
		if _, err := d.SetFloat64(f); err != nil {
			return "", err
		}
		return d.String(), nil
	}
	return "", fmt.Errorf("decimal cannot hold %T", v)
}

// ---- small helpers to accept multiple numeric types on encode ----
func asUUID(v any) (uuid.UUID, bool) {
	switch x := v.(type) {
	case uuid.UUID:
		return x, true
	case [16]byte:
		return uuid.UUID(x), true
	case string:
		id, err := uuid.Parse(x)
		return id, err == nil
	}
	return uuid.UUID{}, false
}

func asInt16(v any) (int16, bool) {
	x, ok := asInt64(v)
	if !ok || x < math.MinInt16 || x > math.MaxInt16 {
		return 0, false
	}
	return int16(x), true
}

func asInt32(v any) (int32, bool) {
	x, ok := asInt64(v)
	if !ok || x < math.MinInt32 || x > math.MaxInt32 {
		return 0, false
	}
	return int32(x), true
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
