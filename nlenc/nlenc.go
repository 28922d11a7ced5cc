// Package nlenc provides checked, fixed-offset integer accessors over a
// byte slice, for decoding and encoding the small binary headers that
// appear throughout the netlink wire formats.
package nlenc

import (
	"encoding/binary"
	"fmt"
)

// The unsuffixed accessors below use little-endian order on every host.
// Netlink headers and most netlink integers are in host order, so these
// match the wire on little-endian hosts only.

// Uint16 reads a little-endian uint16 from the start of b.
func Uint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// PutUint16 writes a little-endian uint16 to the start of b.
func PutUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// Uint32 reads a little-endian uint32.
func Uint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// PutUint32 writes a little-endian uint32.
func PutUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// Uint64 reads a little-endian uint64.
func Uint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// PutUint64 writes a little-endian uint64.
func PutUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// Int32 reads a little-endian int32.
func Int32(b []byte) int32 { return int32(Uint32(b)) }

// PutInt32 writes a little-endian int32.
func PutInt32(b []byte, v int32) { PutUint32(b, uint32(v)) }

// Uint16BE reads a big-endian uint16. Several attributes (sock-diag
// hostcond ports, VLAN protocol, VXLAN port) are big-endian even though
// most netlink integers are host-native.
func Uint16BE(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// PutUint16BE writes a big-endian uint16.
func PutUint16BE(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }

// Uint32BE reads a big-endian uint32.
func Uint32BE(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// PutUint32BE writes a big-endian uint32.
func PutUint32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// Uint64BE reads a big-endian uint64.
func Uint64BE(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// PutUint64BE writes a big-endian uint64.
func PutUint64BE(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// AlignUp rounds n up to the next multiple of align, which must be a power
// of two. Netlink pads both messages and attributes to 4-byte boundaries.
func AlignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// String reads a NUL-terminated string from b, stopping at the first zero
// byte or the end of b, whichever comes first.
func String(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// PutString writes s into b followed by a single NUL terminator. b must be
// at least len(s)+1 bytes long.
func PutString(b []byte, s string) {
	n := copy(b, s)
	b[n] = 0
}

// StringLen returns the encoded length of s including its NUL terminator.
func StringLen(s string) int { return len(s) + 1 }

// Buffer is a zero-copy, checked window over a byte slice, used by the
// family message codecs to read and write fixed-size C-style header
// structs without aliasing the memory via unsafe.Pointer.
type Buffer struct {
	b []byte
}

// NewBuffer wraps b without any length check. Callers that have already
// established the bounds elsewhere (e.g. via a containing attribute's
// value_len) may use this to avoid a redundant check.
func NewBuffer(b []byte) Buffer { return Buffer{b: b} }

// NewBufferChecked wraps b, verifying that it is at least min bytes long.
func NewBufferChecked(b []byte, min int) (Buffer, error) {
	if len(b) < min {
		return Buffer{}, &ShortBufferError{Have: len(b), Want: min}
	}
	return Buffer{b: b}, nil
}

// Bytes returns the underlying slice.
func (buf Buffer) Bytes() []byte { return buf.b }

// Len returns the length of the underlying slice.
func (buf Buffer) Len() int { return len(buf.b) }

// Slice returns the sub-window b[start:end], without any additional
// allocation.
func (buf Buffer) Slice(start, end int) []byte { return buf.b[start:end] }

// ShortBufferError is returned whenever a fixed-size header or attribute
// value is decoded from a buffer shorter than required.
type ShortBufferError struct {
	Have, Want int
}

func (e *ShortBufferError) Error() string {
	return fmt.Sprintf("nlenc: short buffer: have %d bytes, want at least %d", e.Have, e.Want)
}
