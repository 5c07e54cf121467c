package typedesc

import (
	"errors"
	"fmt"
	"io"

	"github.com/tuannm99/novaproto/internal/alias/bx"
)

type parseState uint8

const (
	stateTag parseState = iota
	stateID
	stateElement // single position: set element, scalar base, array element
	stateCount   // u16 element count, or dimension count for arrays
	stateFlags
	stateNameLen
	stateName
	statePos
	stateDim
	stateFailed
)

// partial is the entry being assembled. It survives between Feed calls.
type partial struct {
	kind      Kind
	id        TypeID
	element   Position
	remaining int

	flags   FieldFlags
	nameLen int
	name    string
	names   map[string]struct{}

	fields []ShapeElement
	elems  []Position
	named  []TupleElement
	dims   []int64
}

// Decoder reconstructs a descriptor array from a stream delivered in chunks
// of any size. When a chunk ends inside a field the decoder keeps the
// partial state and resumes with the next chunk; no byte is parsed twice.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	state parseState
	cur   partial
	out   []Descriptor

	// pending holds bytes of a field that has not fully arrived yet.
	pending []byte
	offset  int64
	err     error

	// OnDescriptor, when set, is called as soon as an entry completes.
	OnDescriptor func(pos Position, d Descriptor)
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a complete stream. expectedCount < 0 skips the count check.
func Decode(b []byte, expectedCount int) ([]Descriptor, error) {
	d := NewDecoder()
	if err := d.Feed(b); err != nil {
		return nil, err
	}
	return d.Finish(expectedCount)
}

// DecodeFrom reads exactly n bytes of stream from r, feeding the decoder
// with whatever chunks r delivers.
func DecodeFrom(r io.Reader, n int64, expectedCount int) ([]Descriptor, error) {
	d := NewDecoder()
	if _, err := io.CopyN(d, r, n); err != nil {
		if d.err != nil {
			return nil, d.err
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrTruncatedStream, err)
		}
		return nil, err
	}
	return d.Finish(expectedCount)
}

// Write implements io.Writer on top of Feed.
func (d *Decoder) Write(p []byte) (int, error) {
	if err := d.Feed(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Feed consumes chunk. It returns nil when chunk ends on or inside an
// entry; check NeedMore to tell the two apart.
func (d *Decoder) Feed(chunk []byte) error {
	if d.err != nil {
		return d.err
	}

	data := chunk
	if len(d.pending) > 0 {
		d.pending = append(d.pending, chunk...)
		data = d.pending
	}

	i := 0
	for {
		n := d.need()
		if len(data)-i < n {
			break
		}
		field := data[i : i+n]
		if err := d.step(field); err != nil {
			d.fail(err)
			return d.err
		}
		i += n
		d.offset += int64(n)
	}

	// keep the unconsumed tail for the next call
	d.pending = append(d.pending[:0], data[i:]...)
	return nil
}

// NeedMore reports whether the decoder stopped inside an entry.
func (d *Decoder) NeedMore() bool {
	return d.state != stateTag || len(d.pending) > 0
}

// Len returns the number of completed entries.
func (d *Decoder) Len() int { return len(d.out) }

// At returns a completed entry. Entries become available in ascending
// position order, before the rest of the stream has arrived.
func (d *Decoder) At(pos Position) (Descriptor, bool) {
	if int(pos) >= len(d.out) {
		return nil, false
	}
	return d.out[pos], true
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int64 { return d.offset }

// Finish ends the stream. It fails with ErrTruncatedStream if the stream
// stopped inside an entry and with ErrDescriptorCountMismatch if
// expectedCount >= 0 and a different number of entries was decoded. Too few
// entries match both errors.
func (d *Decoder) Finish(expectedCount int) ([]Descriptor, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.NeedMore() {
		d.fail(fmt.Errorf("%w: stream ended inside entry %d (%s) at offset %d",
			ErrTruncatedStream, len(d.out), d.cur.kind, d.offset+int64(len(d.pending))))
		return nil, d.err
	}
	switch {
	case expectedCount < 0 || expectedCount == len(d.out):
	case len(d.out) < expectedCount:
		// ended cleanly on an entry boundary, but early
		d.fail(fmt.Errorf("%w: %w: declared %d, decoded %d",
			ErrTruncatedStream, ErrDescriptorCountMismatch, expectedCount, len(d.out)))
		return nil, d.err
	default:
		d.fail(fmt.Errorf("%w: declared %d, decoded %d", ErrDescriptorCountMismatch, expectedCount, len(d.out)))
		return nil, d.err
	}
	return d.out, nil
}

// Reset discards all state, including a previous error.
func (d *Decoder) Reset() {
	cb := d.OnDescriptor
	*d = Decoder{OnDescriptor: cb}
}

func (d *Decoder) fail(err error) {
	d.err = err
	d.state = stateFailed
	d.pending = nil
}

func (d *Decoder) need() int {
	switch d.state {
	case stateTag, stateFlags:
		return 1
	case stateID:
		return len(TypeID{})
	case stateElement, stateCount, stateNameLen, statePos:
		return 2
	case stateName:
		return d.cur.nameLen
	case stateDim:
		return 8
	}
	// stateFailed: never satisfiable
	return int(^uint(0) >> 1)
}

func (d *Decoder) step(field []byte) error {
	switch d.state {
	case stateTag:
		kind := Kind(field[0])
		if kind > KindArray {
			return fmt.Errorf("%w: tag %d at offset %d", ErrUnknownDescriptorKind, field[0], d.offset)
		}
		if len(d.out) >= MaxDescriptors {
			return fmt.Errorf("%w: limit is %d", ErrTooManyDescriptors, MaxDescriptors)
		}
		d.cur = partial{kind: kind}
		d.state = stateID

	case stateID:
		copy(d.cur.id[:], field)
		switch d.cur.kind {
		case KindBaseScalar:
			d.complete()
		case KindSet, KindScalar, KindArray:
			d.state = stateElement
		default:
			d.state = stateCount
		}

	case stateElement:
		pos, err := d.position(field)
		if err != nil {
			return err
		}
		d.cur.element = pos
		if d.cur.kind == KindArray {
			d.state = stateCount
		} else {
			d.complete()
		}

	case stateCount:
		n := int(bx.U16(field))
		d.cur.remaining = n
		switch d.cur.kind {
		case KindShape:
			d.cur.fields = make([]ShapeElement, 0, n)
			d.cur.names = make(map[string]struct{}, n)
		case KindTuple:
			d.cur.elems = make([]Position, 0, n)
		case KindNamedTuple:
			d.cur.named = make([]TupleElement, 0, n)
			d.cur.names = make(map[string]struct{}, n)
		case KindArray:
			d.cur.dims = make([]int64, 0, n)
		}
		d.nextElement()

	case stateFlags:
		d.cur.flags = FieldFlags(field[0])
		d.state = stateNameLen

	case stateNameLen:
		d.cur.nameLen = int(bx.U16(field))
		d.state = stateName

	case stateName:
		name := string(field)
		if _, dup := d.cur.names[name]; dup {
			return fmt.Errorf("%w: %s entry %d repeats %q", ErrDuplicateExclusiveElement, d.cur.kind, len(d.out), name)
		}
		d.cur.names[name] = struct{}{}
		d.cur.name = name
		d.state = statePos

	case statePos:
		pos, err := d.position(field)
		if err != nil {
			return err
		}
		switch d.cur.kind {
		case KindShape:
			d.cur.fields = append(d.cur.fields, ShapeElement{Flags: d.cur.flags, Name: d.cur.name, Element: pos})
		case KindTuple:
			d.cur.elems = append(d.cur.elems, pos)
		case KindNamedTuple:
			d.cur.named = append(d.cur.named, TupleElement{Name: d.cur.name, Element: pos})
		}
		d.cur.remaining--
		d.nextElement()

	case stateDim:
		dim := bx.I64(field)
		if dim < UnboundedDimension {
			return fmt.Errorf("%w: array entry %d dimension %d", ErrInvalidDimension, len(d.out), dim)
		}
		d.cur.dims = append(d.cur.dims, dim)
		d.cur.remaining--
		d.nextElement()

	default:
		return d.err
	}
	return nil
}

// nextElement moves to the first field of the next repeated element, or
// completes the entry when none remain.
func (d *Decoder) nextElement() {
	if d.cur.remaining == 0 {
		d.complete()
		return
	}
	switch d.cur.kind {
	case KindShape:
		d.state = stateFlags
	case KindTuple:
		d.state = statePos
	case KindNamedTuple:
		d.state = stateNameLen
	case KindArray:
		d.state = stateDim
	}
}

func (d *Decoder) position(field []byte) (Position, error) {
	pos := Position(bx.U16(field))
	if int(pos) >= len(d.out) {
		return 0, fmt.Errorf("%w: %s entry %d references %d", ErrInvalidBackreference, d.cur.kind, len(d.out), pos)
	}
	return pos, nil
}

func (d *Decoder) complete() {
	c := &d.cur
	var desc Descriptor
	switch c.kind {
	case KindSet:
		desc = &SetDescriptor{ID: c.id, Element: c.element}
	case KindShape:
		desc = &ShapeDescriptor{ID: c.id, Fields: c.fields}
	case KindBaseScalar:
		kind, _ := Lookup(c.id)
		desc = &BaseScalarDescriptor{ID: c.id, Primitive: kind}
	case KindScalar:
		desc = &ScalarDescriptor{ID: c.id, Base: c.element}
	case KindTuple:
		desc = &TupleDescriptor{ID: c.id, Elements: c.elems}
	case KindNamedTuple:
		desc = &NamedTupleDescriptor{ID: c.id, Elements: c.named}
	case KindArray:
		desc = &ArrayDescriptor{ID: c.id, Element: c.element, Dimensions: c.dims}
	}

	pos := Position(len(d.out))
	d.out = append(d.out, desc)
	d.cur = partial{}
	d.state = stateTag
	if d.OnDescriptor != nil {
		d.OnDescriptor(pos, desc)
	}
}
