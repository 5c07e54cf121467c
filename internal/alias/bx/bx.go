// stand for bytes helper
//
// Everything novaproto puts on the wire is big-endian (network order):
// descriptor streams, row payloads and frame headers.
package bx

import "encoding/binary"

var BE = binary.BigEndian

// --- read ---
func U16(b []byte) uint16 { return BE.Uint16(b) }
func U32(b []byte) uint32 { return BE.Uint32(b) }
func U64(b []byte) uint64 { return BE.Uint64(b) }
func I16(b []byte) int16  { return int16(U16(b)) }
func I32(b []byte) int32  { return int32(U32(b)) }
func I64(b []byte) int64  { return int64(U64(b)) }

// --- write ---
func PutU16(b []byte, v uint16) { BE.PutUint16(b, v) }
func PutU32(b []byte, v uint32) { BE.PutUint32(b, v) }
func PutU64(b []byte, v uint64) { BE.PutUint64(b, v) }

// --- append ---
func AppendU16(dst []byte, v uint16) []byte { return BE.AppendUint16(dst, v) }
func AppendU32(dst []byte, v uint32) []byte { return BE.AppendUint32(dst, v) }
func AppendU64(dst []byte, v uint64) []byte { return BE.AppendUint64(dst, v) }
func AppendI16(dst []byte, v int16) []byte  { return AppendU16(dst, uint16(v)) }
func AppendI32(dst []byte, v int32) []byte  { return AppendU32(dst, uint32(v)) }
func AppendI64(dst []byte, v int64) []byte  { return AppendU64(dst, uint64(v)) }

// AppendStr16 appends a u16 length prefix followed by s. Callers check the
// length against math.MaxUint16 first.
func AppendStr16(dst []byte, s string) []byte {
	dst = AppendU16(dst, uint16(len(s)))
	return append(dst, s...)
}

// --- At (offset) ---
func U16At(b []byte, off int) uint16       { return U16(b[off:]) }
func U32At(b []byte, off int) uint32       { return U32(b[off:]) }
func U64At(b []byte, off int) uint64       { return U64(b[off:]) }
func PutU16At(b []byte, off int, v uint16) { PutU16(b[off:], v) }
func PutU32At(b []byte, off int, v uint32) { PutU32(b[off:], v) }
func PutU64At(b []byte, off int, v uint64) { PutU64(b[off:], v) }
