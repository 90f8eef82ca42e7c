// Package protocol implements the hub's binary, length-prefixed wire
// format: LEB128-style varuints, length-prefixed byte strings, and the
// two top-level message types (sync and awareness) layered on top.
package protocol

import (
	"bytes"
	"errors"
)

// ErrTruncated is returned when a varUint or varBytes value runs off the
// end of the buffer before terminating. Per the frame codec's fail-closed
// contract, callers must drop the offending frame rather than treat this
// as a connection-level error.
var ErrTruncated = errors.New("protocol: truncated varint")

// ErrVarintTooLong guards against a pathological non-terminating varint
// (top bit set forever) consuming unbounded memory.
var ErrVarintTooLong = errors.New("protocol: varint exceeds 64 bits")

const maxVarintBytes = 10 // ceil(64/7)

// WriteUvarint appends the LEB128 encoding of n to buf.
func WriteUvarint(buf *bytes.Buffer, n uint64) {
	for n >= 0x80 {
		buf.WriteByte(byte(n) | 0x80)
		n >>= 7
	}
	buf.WriteByte(byte(n))
}

// ReadUvarint decodes a varUint from the front of b, returning the value
// and the number of bytes consumed. It fails closed: any truncation or
// non-terminating sequence returns ErrTruncated/ErrVarintTooLong rather
// than a partial value.
func ReadUvarint(b []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		if i >= maxVarintBytes {
			return 0, 0, ErrVarintTooLong
		}
		c := b[i]
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// WriteBytes appends varUint(len(b)) followed by the raw bytes of b.
func WriteBytes(buf *bytes.Buffer, b []byte) {
	WriteUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

// ReadBytes decodes a varBytes value from the front of b, returning the
// payload (a sub-slice of b, not a copy) and bytes consumed.
func ReadBytes(b []byte) ([]byte, int, error) {
	n, consumed, err := ReadUvarint(b)
	if err != nil {
		return nil, 0, err
	}
	b = b[consumed:]
	if uint64(len(b)) < n {
		return nil, 0, ErrTruncated
	}
	return b[:n], consumed + int(n), nil
}

// cursor is a small decode-position tracker used by sync.go to avoid
// re-slicing at every field.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(b []byte) *cursor { return &cursor{buf: b} }

func (c *cursor) uvarint() (uint64, error) {
	v, n, err := ReadUvarint(c.buf[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

func (c *cursor) bytes() ([]byte, error) {
	v, n, err := ReadBytes(c.buf[c.pos:])
	if err != nil {
		return nil, err
	}
	c.pos += n
	return v, nil
}

func (c *cursor) remaining() []byte {
	return c.buf[c.pos:]
}
