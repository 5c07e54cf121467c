package novasqlwire

import (
	"errors"
	"fmt"
	"io"

	"github.com/tuannm99/novaproto/internal/alias/bx"
)

const (
	// MaxFrameSize limits memory usage on malformed/hostile input.
	MaxFrameSize = 8 << 20 // 8 MiB
)

var (
	ErrEmptyFrame    = errors.New("novasqlwire: empty frame")
	ErrFrameTooLarge = errors.New("novasqlwire: frame too large")
)

func limit(maxSize int) uint32 {
	if maxSize <= 0 {
		return MaxFrameSize
	}
	return uint32(maxSize)
}

// ReadFrameHeader reads the u32 length prefix of the next frame.
func ReadFrameHeader(r io.Reader, maxSize int) (uint32, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	n := bx.U32(hdr[:])
	if n == 0 {
		return 0, ErrEmptyFrame
	}
	if n > limit(maxSize) {
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limit(maxSize))
	}
	return n, nil
}

// ReadRawFrame reads a single length-prefixed frame.
func ReadRawFrame(r io.Reader, maxSize int) ([]byte, error) {
	n, err := ReadFrameHeader(r, maxSize)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteRawFrame writes b as a length-prefixed frame. maxSize <= 0 means
// MaxFrameSize.
func WriteRawFrame(w io.Writer, b []byte, maxSize int) error {
	if len(b) == 0 {
		return ErrEmptyFrame
	}
	if uint64(len(b)) > uint64(limit(maxSize)) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(b), limit(maxSize))
	}

	var hdr [4]byte
	bx.PutU32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadFrame reads a single length-prefixed control frame into v.
func ReadFrame(r io.Reader, c Codec, v any, maxSize int) error {
	buf, err := ReadRawFrame(r, maxSize)
	if err != nil {
		return err
	}
	if err := c.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("novasqlwire: bad %s: %w", c.Name(), err)
	}
	return nil
}

// WriteFrame writes v as a length-prefixed control frame.
func WriteFrame(w io.Writer, c Codec, v any, maxSize int) error {
	b, err := c.Marshal(v)
	if err != nil {
		return fmt.Errorf("novasqlwire: marshal: %w", err)
	}
	return WriteRawFrame(w, b, maxSize)
}
