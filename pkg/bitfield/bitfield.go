// Package bitfield extracts and writes bit-level fields in byte
// buffers packed LSB-first, the layout HID reports use: bit i of the
// buffer is bit i%8 of byte i/8, and multi-bit fields assemble their
// lowest-offset bit into the lowest value bit.
package bitfield

import (
	"fmt"
	"strings"
)

// Uint reads size bits starting at bit offset off. It returns false
// when the field does not fit the buffer or size is outside 1..32.
func Uint(data []byte, off, size int) (uint32, bool) {
	if size <= 0 || size > 32 || off < 0 || off+size > len(data)*8 {
		return 0, false
	}
	var v uint32
	for i := 0; i < size; i++ {
		bit := off + i
		if data[bit>>3]&(1<<(bit&7)) != 0 {
			v |= 1 << i
		}
	}
	return v, true
}

// Int reads size bits at off as a two's-complement signed value.
func Int(data []byte, off, size int) (int32, bool) {
	v, ok := Uint(data, off, size)
	if !ok {
		return 0, false
	}
	if size < 32 && v&(1<<(size-1)) != 0 {
		v |= ^uint32(0) << size
	}
	return int32(v), true
}

// PutUint writes the low size bits of v at bit offset off.
func PutUint(data []byte, off, size int, v uint32) bool {
	if size <= 0 || size > 32 || off < 0 || off+size > len(data)*8 {
		return false
	}
	for i := 0; i < size; i++ {
		bit := off + i
		mask := byte(1 << (bit & 7))
		if v&(1<<i) != 0 {
			data[bit>>3] |= mask
		} else {
			data[bit>>3] &^= mask
		}
	}
	return true
}

// PutInt writes a signed value; the caller guarantees it fits size bits.
func PutInt(data []byte, off, size int, v int32) bool {
	return PutUint(data, off, size, uint32(v))
}

// Reader walks a buffer field by field in declaration order.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Uint consumes the next size bits as an unsigned field.
func (r *Reader) Uint(size int) (uint32, bool) {
	v, ok := Uint(r.data, r.off, size)
	if ok {
		r.off += size
	}
	return v, ok
}

// Int consumes the next size bits as a signed field.
func (r *Reader) Int(size int) (int32, bool) {
	v, ok := Int(r.data, r.off, size)
	if ok {
		r.off += size
	}
	return v, ok
}

// Skip advances past size bits without reading them.
func (r *Reader) Skip(size int) {
	r.off += size
}

// Remaining returns the number of unconsumed bits.
func (r *Reader) Remaining() int {
	n := len(r.data)*8 - r.off
	if n < 0 {
		return 0
	}
	return n
}

// ParsePattern builds a buffer from a human-readable bit string. Each
// run of eight '0'/'1' characters is one byte written most significant
// bit first; spaces separate bytes. "00000001" is the byte 0x01, i.e.
// bit offset 0 set.
func ParsePattern(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "")
	if len(s)%8 != 0 {
		return nil, fmt.Errorf("pattern length %d is not a whole number of bytes", len(s))
	}
	out := make([]byte, len(s)/8)
	for i, c := range s {
		switch c {
		case '1':
			out[i/8] |= 1 << (7 - i%8)
		case '0':
		default:
			return nil, fmt.Errorf("invalid pattern character %q", c)
		}
	}
	return out, nil
}
