package loader

import (
	"encoding/binary"
	"io"
)

// Codec reads and writes little-endian image fields at a cursor.
type Codec struct {
	// buf is the internal buffer for reading/writing.
	buf []byte
	// pos is the current position in the buffer.
	pos int
}

// NewCodec creates a new Codec with the given buffer.
func NewCodec(buf []byte) *Codec {
	return &Codec{buf: buf}
}

// Remaining returns the number of bytes remaining in the buffer.
func (c *Codec) Remaining() int {
	return len(c.buf) - c.pos
}

// ReadUint16 reads a 16-bit little-endian unsigned integer.
func (c *Codec) ReadUint16() (uint16, error) {
	if c.pos+2 > len(c.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// WriteUint16 writes a 16-bit little-endian unsigned integer.
func (c *Codec) WriteUint16(v uint16) error {
	if c.pos+2 > len(c.buf) {
		return io.ErrShortBuffer
	}
	binary.LittleEndian.PutUint16(c.buf[c.pos:], v)
	c.pos += 2
	return nil
}

// ReadUint32 reads a 32-bit little-endian unsigned integer.
func (c *Codec) ReadUint32() (uint32, error) {
	if c.pos+4 > len(c.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// WriteUint32 writes a 32-bit little-endian unsigned integer.
func (c *Codec) WriteUint32(v uint32) error {
	if c.pos+4 > len(c.buf) {
		return io.ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(c.buf[c.pos:], v)
	c.pos += 4
	return nil
}

// ReadBytes reads exactly n bytes from the buffer.
func (c *Codec) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	copy(b, c.buf[c.pos:c.pos+n])
	c.pos += n
	return b, nil
}

// WriteBytes writes bytes to the buffer.
func (c *Codec) WriteBytes(b []byte) error {
	if c.pos+len(b) > len(c.buf) {
		return io.ErrShortBuffer
	}
	copy(c.buf[c.pos:], b)
	c.pos += len(b)
	return nil
}

// ReadString reads a null-terminated string.
func (c *Codec) ReadString() (string, error) {
	start := c.pos
	for c.pos < len(c.buf) && c.buf[c.pos] != 0 {
		c.pos++
	}
	if c.pos >= len(c.buf) {
		c.pos = start
		return "", io.ErrUnexpectedEOF
	}
	c.pos++ // skip null terminator
	return string(c.buf[start : c.pos-1]), nil
}

// WriteString writes a null-terminated string.
func (c *Codec) WriteString(s string) error {
	if c.pos+len(s)+1 > len(c.buf) {
		return io.ErrShortBuffer
	}
	copy(c.buf[c.pos:], s)
	c.buf[c.pos+len(s)] = 0
	c.pos += len(s) + 1
	return nil
}
