package record

import (
	"fmt"

	"github.com/tuannm99/novaproto/pkg/typedesc"
)

// EncodeRow encodes one object of shape s.
//
// Format:
// [nullmap: ceil(N/8) bytes, bit=1 => NULL] | [field0 data?] [field1 data?] ...
// Implicit fields are never null.
func EncodeRow(s *typedesc.ShapeType, values []any) ([]byte, error) {
	return encodeShape(nil, s, values)
}

// DecodeRow decodes an object produced by EncodeRow. buf must hold exactly
// one row.
func DecodeRow(s *typedesc.ShapeType, buf []byte) ([]any, error) {
	v, n, err := decodeShape(s, buf)
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadBuffer, len(buf)-n)
	}
	return v.([]any), nil
}

func encodeShape(dst []byte, s *typedesc.ShapeType, values []any) ([]byte, error) {
	nc := len(s.Fields)
	if len(values) != nc {
		return nil, fmt.Errorf("%w: %d values for %d fields", ErrSchemaMismatch, len(values), nc)
	}

	// reserve nullmap first
	base := len(dst)
	dst = append(dst, make([]byte, (nc+7)/8)...)

	var err error
	for i, f := range s.Fields {
		v := values[i]
		if v == nil {
			if f.Flags.Has(typedesc.FieldImplicit) {
				return nil, fmt.Errorf("%w: field %s", ErrNullNotAllowed, f.Name)
			}
			dst[base+i/8] |= 1 << (uint(i) & 7) // bit=1 => NULL
			continue
		}
		if dst, err = EncodeValue(dst, f.Type, v); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return dst, nil
}

func decodeShape(s *typedesc.ShapeType, buf []byte) (any, int, error) {
	nc := len(s.Fields)
	nbBytes := (nc + 7) / 8
	if len(buf) < nbBytes {
		return nil, 0, ErrBadBuffer
	}
	nullmap := buf[:nbBytes]
	i := nbBytes

	out := make([]any, nc)
	for idx, f := range s.Fields {
		if (nullmap[idx/8]>>(uint(idx)&7))&1 == 1 {
			continue
		}
		v, n, err := DecodeValue(f.Type, buf[i:])
		if err != nil {
			return nil, 0, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[idx] = v
		i += n
	}
	return out, i, nil
}
