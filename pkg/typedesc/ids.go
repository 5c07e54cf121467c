// Package typedesc implements the binary type-descriptor codec used by the
// novaproto wire protocol to describe the shape of result sets.
//
// A descriptor stream is a sequence of entries. Entry i may only reference
// entries j < i, so a stream is a DAG in topological order and can be
// decoded in a single forward pass.
package typedesc

import (
	"strings"

	"github.com/google/uuid"
)

// TypeID is the 128-bit identity of a type.
type TypeID = uuid.UUID

// PrimitiveKind enumerates the built-in types known to every peer.
type PrimitiveKind uint8

const (
	PrimitiveInvalid PrimitiveKind = iota
	PrimitiveAnyType
	PrimitiveAnyTuple
	PrimitiveEmptyTuple
	PrimitiveUUID
	PrimitiveStr
	PrimitiveBytes
	PrimitiveInt16
	PrimitiveInt32
	PrimitiveInt64
	PrimitiveFloat32
	PrimitiveFloat64
	PrimitiveDecimal
	PrimitiveBool
	PrimitiveDatetime
	PrimitiveNaiveDatetime
	PrimitiveNaiveDate
	PrimitiveNaiveTime
	PrimitiveTimedelta
	PrimitiveJSON
)

// Reserved identifiers. These values are part of the protocol and must not
// change between versions.
var (
	AnyTypeID    = TypeID{15: 0x01}
	AnyTupleID   = TypeID{15: 0x02}
	EmptyTupleID = TypeID{15: 0xff}

	UUIDID          = TypeID{14: 0x01, 15: 0x00}
	StrID           = TypeID{14: 0x01, 15: 0x01}
	BytesID         = TypeID{14: 0x01, 15: 0x02}
	Int16ID         = TypeID{14: 0x01, 15: 0x03}
	Int32ID         = TypeID{14: 0x01, 15: 0x04}
	Int64ID         = TypeID{14: 0x01, 15: 0x05}
	Float32ID       = TypeID{14: 0x01, 15: 0x06}
	Float64ID       = TypeID{14: 0x01, 15: 0x07}
	DecimalID       = TypeID{14: 0x01, 15: 0x08}
	BoolID          = TypeID{14: 0x01, 15: 0x09}
	DatetimeID      = TypeID{14: 0x01, 15: 0x0a}
	NaiveDatetimeID = TypeID{14: 0x01, 15: 0x0b}
	NaiveDateID     = TypeID{14: 0x01, 15: 0x0c}
	NaiveTimeID     = TypeID{14: 0x01, 15: 0x0d}
	TimedeltaID     = TypeID{14: 0x01, 15: 0x0e}
	JSONID          = TypeID{14: 0x01, 15: 0x0f}
)

type primitive struct {
	id   TypeID
	kind PrimitiveKind
	name string
}

var primitives = [...]primitive{
	{AnyTypeID, PrimitiveAnyType, "anytype"},
	{AnyTupleID, PrimitiveAnyTuple, "anytuple"},
	{EmptyTupleID, PrimitiveEmptyTuple, "empty-tuple"},
	{UUIDID, PrimitiveUUID, "std::uuid"},
	{StrID, PrimitiveStr, "std::str"},
	{BytesID, PrimitiveBytes, "std::bytes"},
	{Int16ID, PrimitiveInt16, "std::int16"},
	{Int32ID, PrimitiveInt32, "std::int32"},
	{Int64ID, PrimitiveInt64, "std::int64"},
	{Float32ID, PrimitiveFloat32, "std::float32"},
	{Float64ID, PrimitiveFloat64, "std::float64"},
	{DecimalID, PrimitiveDecimal, "std::decimal"},
	{BoolID, PrimitiveBool, "std::bool"},
	{DatetimeID, PrimitiveDatetime, "std::datetime"},
	{NaiveDatetimeID, PrimitiveNaiveDatetime, "std::naive_datetime"},
	{NaiveDateID, PrimitiveNaiveDate, "std::naive_date"},
	{NaiveTimeID, PrimitiveNaiveTime, "std::naive_time"},
	{TimedeltaID, PrimitiveTimedelta, "std::timedelta"},
	{JSONID, PrimitiveJSON, "std::json"},
}

var (
	primitiveByID   = make(map[TypeID]*primitive, len(primitives))
	primitiveByKind = make(map[PrimitiveKind]*primitive, len(primitives))
	primitiveByName = make(map[string]*primitive, 2*len(primitives))
)

func init() {
	for i := range primitives {
		p := &primitives[i]
		primitiveByID[p.id] = p
		primitiveByKind[p.kind] = p
		primitiveByName[p.name] = p
		if short, ok := strings.CutPrefix(p.name, "std::"); ok {
			primitiveByName[short] = p
		}
	}
}

// Lookup reports the built-in primitive identified by id. A miss is not an
// error: user-declared types carry ids that are unknown to the registry.
func Lookup(id TypeID) (PrimitiveKind, bool) {
	p, ok := primitiveByID[id]
	if !ok {
		return PrimitiveInvalid, false
	}
	return p.kind, true
}

// BaseScalarID returns the reserved identifier of a primitive kind.
func BaseScalarID(k PrimitiveKind) (TypeID, bool) {
	p, ok := primitiveByKind[k]
	if !ok {
		return TypeID{}, false
	}
	return p.id, true
}

// LookupName resolves "std::str" or "str" to its reserved identifier.
func LookupName(name string) (TypeID, bool) {
	p, ok := primitiveByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return TypeID{}, false
	}
	return p.id, true
}

func (k PrimitiveKind) String() string {
	if p, ok := primitiveByKind[k]; ok {
		return p.name
	}
	return "invalid"
}

// typeName renders a registry name for known ids and the raw uuid otherwise.
func typeName(id TypeID) string {
	if p, ok := primitiveByID[id]; ok {
		return p.name
	}
	return id.String()
}
