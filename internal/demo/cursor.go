package demo

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrTruncated is reported when a read runs past the end of the stream.
	ErrTruncated = errors.New("demo: stream truncated")
	// ErrOverrun is reported when a write runs past the buffer capacity.
	ErrOverrun = errors.New("demo: buffer capacity exceeded")
)

// Cursor reads or writes fixed-width little-endian values over a byte buffer.
// The first failing operation latches its error; later operations are no-ops
// that return zero values, so a caller may check Err once per frame.
type Cursor struct {
	buf []byte
	pos int
	err error
}

// Mark is a saved write position used to back-patch fields written earlier.
type Mark struct {
	c   *Cursor
	pos int
}

// NewReader wraps data for sequential reads. The slice is never modified.
func NewReader(data []byte) *Cursor {
	return &Cursor{buf: data}
}

// NewWriter allocates a buffer of the given capacity for sequential writes.
func NewWriter(capacity int) *Cursor {
	if capacity < 0 {
		capacity = 0
	}
	return &Cursor{buf: make([]byte, capacity)}
}

// Err returns the first error encountered by the cursor.
func (c *Cursor) Err() error { return c.err }

// Pos returns the current offset.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the buffer capacity (writers) or the stream length (readers).
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of bytes left before the end of the buffer.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Bytes returns the bytes written or consumed so far.
func (c *Cursor) Bytes() []byte { return c.buf[:c.pos] }

// Peek returns the next byte without consuming it.
func (c *Cursor) Peek() (byte, bool) {
	if c.err != nil || c.pos >= len(c.buf) {
		return 0, false
	}
	return c.buf[c.pos], true
}

// Mark saves the current position.
func (c *Cursor) Mark() Mark { return Mark{c: c, pos: c.pos} }

// Writer returns a cursor that overwrites bytes starting at the mark. It shares
// the buffer, so patched values become visible through the original cursor.
func (m Mark) Writer() *Cursor {
	if m.c == nil {
		return &Cursor{err: ErrOverrun}
	}
	return &Cursor{buf: m.c.buf[:m.c.pos], pos: m.pos}
}

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.pos+n > len(c.buf) {
		c.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, c.pos, len(c.buf)-c.pos)
		return nil
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out
}

func (c *Cursor) grab(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.pos+n > len(c.buf) {
		c.err = fmt.Errorf("%w: write of %d bytes at offset %d, capacity %d", ErrOverrun, n, c.pos, len(c.buf))
		return nil
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out
}

// Skip advances the read position by n bytes.
func (c *Cursor) Skip(n int) { c.take(n) }

// ReadU8 reads an unsigned byte.
func (c *Cursor) ReadU8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadI8 reads a signed byte.
func (c *Cursor) ReadI8() int8 { return int8(c.ReadU8()) }

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadI16 reads a little-endian int16.
func (c *Cursor) ReadI16() int16 { return int16(c.ReadU16()) }

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadI32 reads a little-endian int32.
func (c *Cursor) ReadI32() int32 { return int32(c.ReadU32()) }

// ReadFixed reads a 16.16 fixed-point value.
func (c *Cursor) ReadFixed() Fixed { return Fixed(c.ReadU32()) }

// ReadAngle reads a full-precision angle.
func (c *Cursor) ReadAngle() Angle { return Angle(c.ReadU32()) }

// ReadBytes copies the next n bytes.
func (c *Cursor) ReadBytes(n int) []byte {
	b := c.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// ReadString reads a NUL-terminated string. The terminator is consumed.
func (c *Cursor) ReadString() string {
	if c.err != nil {
		return ""
	}
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == 0 {
			s := string(c.buf[c.pos:i])
			c.pos = i + 1
			return s
		}
	}
	c.err = fmt.Errorf("%w: unterminated string at offset %d", ErrTruncated, c.pos)
	return ""
}

// ReadFixedString reads an n-byte NUL-padded string.
func (c *Cursor) ReadFixedString(n int) string {
	b := c.take(n)
	for i, ch := range b {
		if ch == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// WriteU8 writes an unsigned byte.
func (c *Cursor) WriteU8(v uint8) {
	if b := c.grab(1); b != nil {
		b[0] = v
	}
}

// WriteI8 writes a signed byte.
func (c *Cursor) WriteI8(v int8) { c.WriteU8(uint8(v)) }

// WriteU16 writes a little-endian uint16.
func (c *Cursor) WriteU16(v uint16) {
	if b := c.grab(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

// WriteI16 writes a little-endian int16.
func (c *Cursor) WriteI16(v int16) { c.WriteU16(uint16(v)) }

// WriteU32 writes a little-endian uint32.
func (c *Cursor) WriteU32(v uint32) {
	if b := c.grab(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

// WriteI32 writes a little-endian int32.
func (c *Cursor) WriteI32(v int32) { c.WriteU32(uint32(v)) }

// WriteFixed writes a 16.16 fixed-point value.
func (c *Cursor) WriteFixed(v Fixed) { c.WriteU32(uint32(v)) }

// WriteAngle writes a full-precision angle.
func (c *Cursor) WriteAngle(v Angle) { c.WriteU32(uint32(v)) }

// WriteBytes writes raw bytes.
func (c *Cursor) WriteBytes(p []byte) {
	if b := c.grab(len(p)); b != nil {
		copy(b, p)
	}
}

// WriteString writes s followed by a NUL terminator.
func (c *Cursor) WriteString(s string) {
	c.WriteBytes([]byte(s))
	c.WriteU8(0)
}

// WriteFixedString writes s truncated or NUL-padded to exactly n bytes.
func (c *Cursor) WriteFixedString(s string, n int) {
	b := c.grab(n)
	if b == nil {
		return
	}
	k := copy(b, s)
	for i := k; i < n; i++ {
		b[i] = 0
	}
}

// Truncate discards everything written after the mark. An overrun raised by
// the discarded writes is cleared with them.
func (c *Cursor) Truncate(m Mark) {
	if m.c != c || m.pos > c.pos {
		return
	}
	c.pos = m.pos
	if errors.Is(c.err, ErrOverrun) {
		c.err = nil
	}
}
