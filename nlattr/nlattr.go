// Package nlattr implements the netlink attribute (NLA) wire format: a
// type-length-value encoding that is nested arbitrarily inside netlink
// message payloads. It mirrors the attribute framework described across
// the "netlink-packet-*" crates that this package's design is ported
// from: a small header (length, type), a value, and padding up to the
// next 4-byte boundary.
package nlattr

import (
	"errors"
	"fmt"

	"github.com/mdlayher/gonl/nlenc"
)

// Wire layout of an attribute header.
const (
	headerLen = 4 // length(2) + type(2)
	lengthLen = 2
)

// Bits inside the 16-bit "type" field. The low 14 bits are the attribute
// kind; the top two bits are out-of-band flags carried on the wire
// alongside the kind.
const (
	NLA_F_NESTED        = 1 << 15
	NLA_F_NET_BYTEORDER = 1 << 14
	NLA_TYPE_MASK       = ^uint16(NLA_F_NESTED | NLA_F_NET_BYTEORDER)
)

// DecodeError is returned by Parse and the various iterators whenever the
// wire bytes are malformed: a short buffer, a length field inconsistent
// with the slice it claims to describe, or (in strict mode) a kind the
// caller does not recognise.
type DecodeError struct {
	Context string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Context == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("nlattr: %s: %v", e.Context, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErrorf(context string, format string, args ...interface{}) error {
	return &DecodeError{Context: context, Err: fmt.Errorf(format, args...)}
}

// ErrUnknownKind is the sentinel wrapped by DecodeError when a parser
// operating in strict mode encounters an attribute kind it does not
// recognise. Non-strict parsers never produce this error; they fall back
// to a Default (opaque) attribute instead.
var ErrUnknownKind = errors.New("nlattr: unknown attribute kind")

// Attr is a single decoded attribute: its 14-bit kind, the nested/
// big-endian flags observed on the wire, and its raw value bytes (a
// sub-slice of the buffer that was parsed, never copied).
type Attr struct {
	Kind     uint16
	Nested   bool
	NetOrder bool
	Value    []byte
}

// NestedValue returns an iterator-compatible buffer over the Attr, so a nested
// attribute's Value can itself be walked with Iter.
func (a Attr) NestedValue() []byte { return a.Value }

// header returns (length-field, type-field) for an attribute whose value
// is valueLen bytes long.
func header(kind uint16, nested, netOrder bool, valueLen int) (length uint16, typ uint16) {
	t := kind & NLA_TYPE_MASK
	if nested {
		t |= NLA_F_NESTED
	}
	if netOrder {
		t |= NLA_F_NET_BYTEORDER
	}
	return uint16(headerLen + valueLen), t
}

// EmitOne writes a single attribute (header, value, and zero padding up to
// the next 4-byte boundary) into dst, which must be at least EncodedLen(len(value))
// bytes long. It returns the number of bytes written, including padding.
func EmitOne(dst []byte, kind uint16, nested, netOrder bool, value []byte) int {
	length, typ := header(kind, nested, netOrder, len(value))
	nlenc.PutUint16(dst[0:2], length)
	nlenc.PutUint16(dst[2:4], typ)
	copy(dst[headerLen:], value)
	total := EncodedLen(len(value))
	for i := headerLen + len(value); i < total; i++ {
		dst[i] = 0
	}
	return total
}

// EncodedLen returns the number of bytes (header + value + padding) that an
// attribute with a value of the given length occupies on the wire.
func EncodedLen(valueLen int) int {
	return nlenc.AlignUp(headerLen+valueLen, 4)
}

// Marshaler is the contract every family-specific attribute type
// implements (spec.md §4.2's four operations, ValueLen/Kind/EmitValue are
// used for emission; Parse is implemented per-type as a free function
// because Go has no static-dispatch "associated parse" method).
type Marshaler interface {
	// ValueLen returns the byte length of the attribute's value, excluding
	// the header and any padding.
	ValueLen() int
	// Kind returns the 14-bit attribute identifier.
	Kind() uint16
	// EmitValue writes exactly ValueLen() bytes into dst. Implementations
	// may assume len(dst) >= ValueLen() and panic otherwise.
	EmitValue(dst []byte)
}

// Emit encodes a Marshaler into dst (which must be at least
// EncodedLen(m.ValueLen()) bytes) and returns the number of bytes written.
func Emit(dst []byte, m Marshaler) int {
	n := m.ValueLen()
	length, typ := header(m.Kind(), false, false, n)
	nlenc.PutUint16(dst[0:2], length)
	nlenc.PutUint16(dst[2:4], typ)
	m.EmitValue(dst[headerLen : headerLen+n])
	total := EncodedLen(n)
	for i := headerLen + n; i < total; i++ {
		dst[i] = 0
	}
	return total
}

// EmitNested writes a nested attribute of the given kind (the NLA_F_NESTED
// bit set) whose value is children, the already-encoded child attributes.
func EmitNested(dst []byte, kind uint16, children []byte) int {
	return EmitOne(dst, kind, true, false, children)
}

// EmitAll encodes a sequence of Marshalers one after another, with
// alignment between each. It fails (returns -1) if dst is too short.
func EmitAll(dst []byte, ms []Marshaler) int {
	need := 0
	for _, m := range ms {
		need += EncodedLen(m.ValueLen())
	}
	if len(dst) < need {
		return -1
	}
	off := 0
	for _, m := range ms {
		off += Emit(dst[off:], m)
	}
	return off
}

// TotalLen returns the total encoded size (sum of each attribute's
// align_up(length, 4)) of a sequence of Marshalers.
func TotalLen(ms []Marshaler) int {
	n := 0
	for _, m := range ms {
		n += EncodedLen(m.ValueLen())
	}
	return n
}

// Iter walks a buffer of consecutive attributes. It stops when the
// remaining slice is shorter than a header, and surfaces a DecodeError on
// the offending step if a length field is inconsistent — it never loops
// forever on hostile input.
type Iter struct {
	b   []byte
	a   Attr
	err error
}

// NewIter returns an attribute iterator over b.
func NewIter(b []byte) *Iter { return &Iter{b: b} }

// Next advances the iterator. It returns false when iteration is complete
// (either because the buffer is exhausted or a decode error occurred); the
// caller must check Err() after Next returns false to distinguish the two.
func (it *Iter) Next() bool {
	if it.err != nil {
		return false
	}
	if len(it.b) < headerLen {
		return false
	}
	length := nlenc.Uint16(it.b[0:2])
	typ := nlenc.Uint16(it.b[2:4])
	if int(length) < headerLen {
		it.err = decodeErrorf("iterate", "attribute length %d is shorter than the %d byte header", length, headerLen)
		return false
	}
	if int(length) > len(it.b) {
		it.err = decodeErrorf("iterate", "attribute claims length %d but only %d bytes remain", length, len(it.b))
		return false
	}
	it.a = Attr{
		Kind:     typ & NLA_TYPE_MASK,
		Nested:   typ&NLA_F_NESTED != 0,
		NetOrder: typ&NLA_F_NET_BYTEORDER != 0,
		Value:    it.b[headerLen:length],
	}
	step := nlenc.AlignUp(int(length), 4)
	if step > len(it.b) {
		step = len(it.b)
	}
	it.b = it.b[step:]
	return true
}

// Attr returns the attribute produced by the most recent successful Next.
func (it *Iter) Attr() Attr { return it.a }

// Err returns the first decode error encountered, if any.
func (it *Iter) Err() error { return it.err }

// ParseAll decodes every attribute in b into a slice, failing on the first
// malformed attribute. This is the non-streaming convenience wrapper most
// family codecs use when there is no cross-attribute dependency to track.
func ParseAll(b []byte) ([]Attr, error) {
	var out []Attr
	it := NewIter(b)
	for it.Next() {
		out = append(out, it.Attr())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Default is the "kind + raw bytes" carrier used whenever a parser
// encounters a kind it does not recognise in non-strict mode. Unknown
// kinds are never fatal; they round-trip byte for byte.
type Default struct {
	AttrKind uint16
	Raw      []byte
}

// ParseDefault builds a Default from a decoded Attr, copying its value so
// it outlives the buffer the Attr was parsed from.
func ParseDefault(a Attr) Default {
	raw := make([]byte, len(a.Value))
	copy(raw, a.Value)
	return Default{AttrKind: a.Kind, Raw: raw}
}

func (d Default) ValueLen() int      { return len(d.Raw) }
func (d Default) Kind() uint16       { return d.AttrKind }
func (d Default) EmitValue(dst []byte) { copy(dst, d.Raw) }
