package typedesc

import "errors"

// Decode errors. All of them are fatal for the stream being decoded.
var (
	ErrUnknownDescriptorKind     = errors.New("typedesc: unknown descriptor kind")
	ErrInvalidBackreference      = errors.New("typedesc: invalid backreference")
	ErrTruncatedStream           = errors.New("typedesc: truncated stream")
	ErrDescriptorCountMismatch   = errors.New("typedesc: descriptor count mismatch")
	ErrDuplicateExclusiveElement = errors.New("typedesc: duplicate exclusive element")
	ErrTooManyDescriptors        = errors.New("typedesc: too many descriptors")
)

// Encode errors. The encoder never returns a partial buffer.
var (
	ErrNilType          = errors.New("typedesc: nil type")
	ErrCyclicType       = errors.New("typedesc: cyclic type graph")
	ErrNameTooLong      = errors.New("typedesc: name exceeds u16")
	ErrTooManyElements  = errors.New("typedesc: element count exceeds u16")
	ErrInvalidDimension = errors.New("typedesc: invalid array dimension")
)
