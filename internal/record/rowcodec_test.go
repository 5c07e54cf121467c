package record

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaproto/pkg/typedesc"
)

var (
	shapeID = uuid.MustParse("9a0c7d1e-1111-4a4a-8b8b-000000000001")
	emailID = uuid.MustParse("9a0c7d1e-1111-4a4a-8b8b-000000000002")
	pairID  = uuid.MustParse("9a0c7d1e-1111-4a4a-8b8b-000000000003")
	tagsID  = uuid.MustParse("9a0c7d1e-1111-4a4a-8b8b-000000000004")
)

func base(k typedesc.PrimitiveKind) typedesc.Type { return typedesc.NewBaseScalar(k) }

// makeTestShape builds a simple shape used across tests.
func makeTestShape() *typedesc.ShapeType {
	return &typedesc.ShapeType{
		ID: shapeID,
		Fields: []typedesc.ShapeField{
			{Flags: typedesc.FieldImplicit, Name: "_id", Type: base(typedesc.PrimitiveUUID)},
			{Name: "id32", Type: base(typedesc.PrimitiveInt32)},
			{Name: "id64", Type: base(typedesc.PrimitiveInt64)},
			{Name: "active", Type: base(typedesc.PrimitiveBool)},
			{Name: "score", Type: base(typedesc.PrimitiveFloat64)},
			{Name: "name", Type: base(typedesc.PrimitiveStr)},
			{Name: "blob", Type: base(typedesc.PrimitiveBytes)},
			{Name: "email", Type: &typedesc.ScalarType{ID: emailID, Base: base(typedesc.PrimitiveStr)}},
			{Name: "tags", Type: &typedesc.ArrayType{ID: tagsID, Element: base(typedesc.PrimitiveStr), Dimensions: []int64{-1}}},
			{Name: "pair", Type: &typedesc.TupleType{ID: pairID, Elements: []typedesc.Type{base(typedesc.PrimitiveInt16), base(typedesc.PrimitiveFloat32)}}},
		},
	}
}

func TestEncodeDecodeRow_RoundTrip(t *testing.T) {
	shape := makeTestShape()
	id := uuid.New()

	values := []any{
		id,
		int32(42),                // id32
		int64(123456789),         // id64
		true,                     // active
		3.14159,                  // score
		"hello",                  // name
		[]byte{0x01, 0x02, 0x03}, // blob
		"a@b.c",                  // email
		[]any{"x", "y"},          // tags
		[]any{int16(-3), float32(0.5)},
	}

	buf, err := EncodeRow(shape, values)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	row, err := DecodeRow(shape, buf)
	require.NoError(t, err)

	require.Len(t, row, len(values))
	require.Equal(t, id, row[0].(uuid.UUID))
	require.Equal(t, int32(42), row[1].(int32))
	require.Equal(t, int64(123456789), row[2].(int64))
	require.True(t, row[3].(bool))

	// Float comparison with small epsilon
	require.InDelta(t, 3.14159, row[4].(float64), 1e-9)

	require.Equal(t, "hello", row[5].(string))
	require.Equal(t, []byte{0x01, 0x02, 0x03}, row[6].([]byte))
	require.Equal(t, "a@b.c", row[7])
	require.Equal(t, []any{"x", "y"}, row[8])
	require.Equal(t, []any{int16(-3), float32(0.5)}, row[9])
}

func TestEncodeDecodeRow_Nullable(t *testing.T) {
	shape := makeTestShape()

	values := make([]any, len(shape.Fields))
	values[0] = uuid.New()

	buf, err := EncodeRow(shape, values)
	require.NoError(t, err)
	// two nullmap bytes and the uuid
	require.Len(t, buf, 2+16)

	row, err := DecodeRow(shape, buf)
	require.NoError(t, err)
	for i := 1; i < len(row); i++ {
		require.Nil(t, row[i], shape.Fields[i].Name)
	}
}

func TestEncodeRow_SchemaMismatch(t *testing.T) {
	shape := makeTestShape()

	t.Run("wrong number of values", func(t *testing.T) {
		_, err := EncodeRow(shape, []any{1, 2, 3})
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("implicit field is nil", func(t *testing.T) {
		values := make([]any, len(shape.Fields))
		_, err := EncodeRow(shape, values)
		require.ErrorIs(t, err, ErrNullNotAllowed)
	})

	t.Run("wrong type for field", func(t *testing.T) {
		values := make([]any, len(shape.Fields))
		values[0] = uuid.New()
		values[1] = "not-int32"
		_, err := EncodeRow(shape, values)
		require.ErrorIs(t, err, ErrSchemaMismatch)
		require.Contains(t, err.Error(), "id32")
	})

	t.Run("int32 out of range", func(t *testing.T) {
		values := make([]any, len(shape.Fields))
		values[0] = uuid.New()
		values[1] = int64(math.MaxInt32) + 1
		_, err := EncodeRow(shape, values)
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("null array element", func(t *testing.T) {
		values := make([]any, len(shape.Fields))
		values[0] = uuid.New()
		values[8] = []any{"x", nil}
		_, err := EncodeRow(shape, values)
		require.ErrorIs(t, err, ErrNullNotAllowed)
	})
}

func TestEncodeRow_VarTooLong(t *testing.T) {
	shape := &typedesc.ShapeType{
		ID:     shapeID,
		Fields: []typedesc.ShapeField{{Name: "name", Type: base(typedesc.PrimitiveStr)}},
	}

	// Create a string longer than MaxUint16
	longStr := strings.Repeat("a", math.MaxUint16+1)

	_, err := EncodeRow(shape, []any{longStr})
	require.ErrorIs(t, err, ErrVarTooLong)
}

func TestDecodeRow_BadBuffer(t *testing.T) {
	shape := makeTestShape()

	values := []any{
		uuid.New(),
		int32(42),
		int64(99),
		true,
		2.71828,
		"test",
		[]byte{0xAA, 0xBB},
		nil,
		[]any{"t"},
		nil,
	}

	buf, err := EncodeRow(shape, values)
	require.NoError(t, err)

	t.Run("truncated buffer", func(t *testing.T) {
		for cut := 0; cut < len(buf); cut++ {
			_, err := DecodeRow(shape, buf[:cut])
			require.ErrorIs(t, err, ErrBadBuffer, "cut at %d", cut)
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := DecodeRow(shape, append(append([]byte{}, buf...), 0x00))
		require.ErrorIs(t, err, ErrBadBuffer)
	})

	t.Run("too short for nullmap", func(t *testing.T) {
		_, err := DecodeRow(shape, []byte{0x00})
		require.ErrorIs(t, err, ErrBadBuffer)
	})
}

func TestValue_Temporal(t *testing.T) {
	cases := []struct {
		kind typedesc.PrimitiveKind
		in   any
		want any
	}{
		{typedesc.PrimitiveDatetime, time.Date(2024, 3, 1, 12, 30, 0, 1500, time.UTC), time.Date(2024, 3, 1, 12, 30, 0, 1000, time.UTC)},
		{typedesc.PrimitiveNaiveDatetime, time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC)},
		{typedesc.PrimitiveNaiveDate, time.Date(2024, 2, 29, 17, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{typedesc.PrimitiveNaiveDate, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		{typedesc.PrimitiveNaiveTime, 13*time.Hour + 5*time.Minute, 13*time.Hour + 5*time.Minute},
		// far outside the range of a time.Duration offset
		{typedesc.PrimitiveDatetime, time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)},
		{typedesc.PrimitiveDatetime, time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC)},
		{typedesc.PrimitiveNaiveDatetime, time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC), time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC)},
		{typedesc.PrimitiveNaiveDate, time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)},
		{typedesc.PrimitiveNaiveDate, time.Date(2500, 6, 15, 0, 0, 0, 0, time.UTC), time.Date(2500, 6, 15, 0, 0, 0, 0, time.UTC)},
		{typedesc.PrimitiveNaiveDate, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)},
		{typedesc.PrimitiveTimedelta, -90 * time.Minute, -90 * time.Minute},
	}
	for _, tc := range cases {
		buf, err := EncodeValue(nil, base(tc.kind), tc.in)
		require.NoError(t, err, tc.kind.String())
		got, n, err := DecodeValue(base(tc.kind), buf)
		require.NoError(t, err, tc.kind.String())
		require.Equal(t, len(buf), n)
		if want, ok := tc.want.(time.Time); ok {
			require.True(t, want.Equal(got.(time.Time)), "%s: %v != %v", tc.kind, want, got)
		} else {
			require.Equal(t, tc.want, got, tc.kind.String())
		}
	}

	_, err := EncodeValue(nil, base(typedesc.PrimitiveNaiveTime), 25*time.Hour)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestValue_ZeroWidthElements(t *testing.T) {
	arr := &typedesc.ArrayType{
		ID:         tagsID,
		Element:    &typedesc.TupleType{ID: typedesc.EmptyTupleID},
		Dimensions: []int64{typedesc.UnboundedDimension},
	}

	in := []any{[]any{}, []any{}, []any{}}
	buf, err := EncodeValue(nil, arr, in)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 3}, buf)

	got, n, err := DecodeValue(arr, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, in, got)

	t.Run("count is still bounded", func(t *testing.T) {
		_, _, err := DecodeValue(arr, []byte{0xff, 0xff, 0xff, 0xff})
		require.ErrorIs(t, err, ErrBadBuffer)

		_, err = EncodeValue(nil, arr, make([]any, maxZeroWidthElems+1))
		require.Error(t, err)
	})

	t.Run("non-zero elements need their bytes", func(t *testing.T) {
		ints := &typedesc.ArrayType{ID: tagsID, Element: base(typedesc.PrimitiveInt64), Dimensions: []int64{-1}}
		_, _, err := DecodeValue(ints, []byte{0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 1})
		require.ErrorIs(t, err, ErrBadBuffer)
	})
}

func TestValue_DecimalAndJSON(t *testing.T) {
	dec := base(typedesc.PrimitiveDecimal)
	buf, err := EncodeValue(nil, dec, "12.500")
	require.NoError(t, err)
	got, _, err := DecodeValue(dec, buf)
	require.NoError(t, err)
	require.Equal(t, "12.500", got)

	buf, err = EncodeValue(nil, dec, int64(7))
	require.NoError(t, err)
	got, _, err = DecodeValue(dec, buf)
	require.NoError(t, err)
	require.Equal(t, "7", got)

	_, err = EncodeValue(nil, dec, "twelve")
	require.ErrorIs(t, err, ErrSchemaMismatch)

	js := base(typedesc.PrimitiveJSON)
	buf, err = EncodeValue(nil, js, `{"a":[1,2]}`)
	require.NoError(t, err)
	got, _, err = DecodeValue(js, buf)
	require.NoError(t, err)
	require.Equal(t, `{"a":[1,2]}`, got)

	_, err = EncodeValue(nil, js, `{"a":`)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestValue_NestedShapesAndSets(t *testing.T) {
	inner := &typedesc.ShapeType{ID: shapeID, Fields: []typedesc.ShapeField{
		{Flags: typedesc.FieldImplicit, Name: "_id", Type: base(typedesc.PrimitiveUUID)},
		{Name: "name", Type: base(typedesc.PrimitiveStr)},
	}}
	set := &typedesc.SetType{ID: tagsID, Element: inner}

	a, b := uuid.New(), uuid.New()
	in := []any{[]any{a, "ann"}, []any{b, nil}}
	buf, err := EncodeValue(nil, set, in)
	require.NoError(t, err)

	got, n, err := DecodeValue(set, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, in, got)

	t.Run("fixed array length", func(t *testing.T) {
		arr := &typedesc.ArrayType{ID: tagsID, Element: base(typedesc.PrimitiveInt64), Dimensions: []int64{2, 2}}
		_, err := EncodeValue(nil, arr, []any{1, 2, 3})
		require.ErrorIs(t, err, ErrSchemaMismatch)
		buf, err := EncodeValue(nil, arr, []any{1, 2, 3, 4})
		require.NoError(t, err)
		got, _, err := DecodeValue(arr, buf)
		require.NoError(t, err)
		require.Equal(t, []any{int64(1), int64(2), int64(3), int64(4)}, got)
	})

	t.Run("hostile count", func(t *testing.T) {
		_, _, err := DecodeValue(set, []byte{0xff, 0xff, 0xff, 0xff, 0x00})
		require.ErrorIs(t, err, ErrBadBuffer)
	})

	t.Run("unknown base scalar", func(t *testing.T) {
		unknown := &typedesc.BaseScalarType{ID: emailID}
		_, err := EncodeValue(nil, unknown, "x")
		require.ErrorIs(t, err, ErrUnsupportedType)
		_, _, err = DecodeValue(unknown, []byte{0})
		require.ErrorIs(t, err, ErrUnsupportedType)
	})
}
