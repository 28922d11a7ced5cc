// Package nlmsg implements the netlink message envelope: the fixed
// 16-byte header and the typed payload (control message or opaque family
// payload) that every netlink frame carries.
package nlmsg

import (
	"errors"
	"fmt"

	"github.com/mdlayher/gonl/nlenc"
)

// HeaderLen is the size in bytes of a netlink message header.
const HeaderLen = 16

// Reserved message types for control messages (spec.md §6).
const (
	NLMSG_NOOP    = 1
	NLMSG_ERROR   = 2
	NLMSG_DONE    = 3
	NLMSG_OVERRUN = 4
)

// Flags is the 16-bit flags bitset carried in every header.
type Flags uint16

// Named flag bits (spec.md §3).
const (
	Request Flags = 1 << 0 // NLM_F_REQUEST
	Multi   Flags = 1 << 1 // NLM_F_MULTI
	Ack     Flags = 1 << 2 // NLM_F_ACK
	Echo    Flags = 1 << 3 // NLM_F_ECHO

	// Modifiers for GET requests.
	Root   Flags = 1 << 8 // NLM_F_ROOT
	Match  Flags = 1 << 9 // NLM_F_MATCH
	Atomic Flags = 1 << 10
	Dump   Flags = Root | Match

	// Modifiers for NEW requests.
	Replace Flags = 1 << 8
	Excl    Flags = 1 << 9
	Create  Flags = 1 << 10
	Append  Flags = 1 << 11
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Header is the fixed 16-byte netlink message header.
type Header struct {
	Length   uint32
	Type     uint16
	Flags    Flags
	Sequence uint32
	Port     uint32
}

// ParseHeader decodes a Header from the first HeaderLen bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("nlmsg: short header: have %d bytes, want %d", len(b), HeaderLen)
	}
	h := Header{
		Length:   nlenc.Uint32(b[0:4]),
		Type:     nlenc.Uint16(b[4:6]),
		Flags:    Flags(nlenc.Uint16(b[6:8])),
		Sequence: nlenc.Uint32(b[8:12]),
		Port:     nlenc.Uint32(b[12:16]),
	}
	if h.Length < HeaderLen {
		return Header{}, fmt.Errorf("nlmsg: header declares length %d, less than the %d byte header itself", h.Length, HeaderLen)
	}
	return h, nil
}

// Put encodes h into the first HeaderLen bytes of b.
func (h Header) Put(b []byte) {
	nlenc.PutUint32(b[0:4], h.Length)
	nlenc.PutUint16(b[4:6], h.Type)
	nlenc.PutUint16(b[6:8], uint16(h.Flags))
	nlenc.PutUint32(b[8:12], h.Sequence)
	nlenc.PutUint32(b[12:16], h.Port)
}

// ErrDecode is the sentinel wrapped whenever a frame's bytes are malformed:
// short buffer, a length field inconsistent with the declared payload, or
// (for control messages) a body too short to contain the echoed request
// header.
var ErrDecode = errors.New("nlmsg: malformed frame")

// Payload is implemented by every family's message-variant type, per
// Design Notes §9: "the only requirement it imposes on the payload is
// buffer_len / emit / parse_with_type / message_type". Go renders this
// as a generic type parameter rather than dynamic dispatch, since each
// connection deals with exactly one family's payload type.
type Payload interface {
	// Len returns the encoded size of the payload (header plus attribute
	// set), excluding the 16-byte envelope header.
	Len() int
	// Emit writes the payload into dst, which must be at least Len() bytes.
	Emit(dst []byte)
	// Type returns the message-type value this payload should be carried
	// under in the envelope header.
	Type() uint16
}

// Control is the union of the four reserved control message bodies.
// Exactly one of the fields is meaningful, selected by Kind.
type Control struct {
	Kind ControlKind

	// Error/Ack: Code is the int32 from the ERROR body (0 or positive for
	// an Ack, negative for an Error carrying -errno), HeaderEcho is the
	// echoed request header bytes that follow it.
	Code       int32
	HeaderEcho []byte

	// Overrun carries whatever bytes the kernel attached.
	Raw []byte
}

// ControlKind distinguishes the four control message variants.
type ControlKind int

const (
	KindNoop ControlKind = iota
	KindDone
	KindError
	KindAck
	KindOverrun
)

// ParseControl decodes a control message body, given the envelope type
// that selected it (NLMSG_ERROR is shared by Error and Ack, distinguished
// by the sign of the code).
func ParseControl(typ uint16, body []byte) (Control, error) {
	switch typ {
	case NLMSG_NOOP:
		return Control{Kind: KindNoop}, nil
	case NLMSG_DONE:
		return Control{Kind: KindDone}, nil
	case NLMSG_OVERRUN:
		raw := make([]byte, len(body))
		copy(raw, body)
		return Control{Kind: KindOverrun, Raw: raw}, nil
	case NLMSG_ERROR:
		if len(body) < 4 {
			return Control{}, fmt.Errorf("%w: error body too short: %d bytes", ErrDecode, len(body))
		}
		code := nlenc.Int32(body[0:4])
		echo := make([]byte, len(body)-4)
		copy(echo, body[4:])
		kind := KindAck
		if code < 0 {
			kind = KindError
		}
		return Control{Kind: kind, Code: code, HeaderEcho: echo}, nil
	default:
		return Control{}, fmt.Errorf("%w: %d is not a control message type", ErrDecode, typ)
	}
}

// Len returns the encoded size of the control message body.
func (c Control) Len() int {
	switch c.Kind {
	case KindNoop, KindDone:
		return 0
	case KindOverrun:
		return len(c.Raw)
	case KindError, KindAck:
		return 4 + len(c.HeaderEcho)
	default:
		return 0
	}
}

// Emit writes the control message body into dst.
func (c Control) Emit(dst []byte) {
	switch c.Kind {
	case KindNoop, KindDone:
	case KindOverrun:
		copy(dst, c.Raw)
	case KindError, KindAck:
		nlenc.PutInt32(dst[0:4], c.Code)
		copy(dst[4:], c.HeaderEcho)
	}
}

// Type returns the envelope message type for this control variant.
func (c Control) Type() uint16 {
	switch c.Kind {
	case KindNoop:
		return NLMSG_NOOP
	case KindDone:
		return NLMSG_DONE
	case KindOverrun:
		return NLMSG_OVERRUN
	case KindError, KindAck:
		return NLMSG_ERROR
	default:
		return 0
	}
}

// IsMultipart reports whether flags mark this frame as part of a
// multipart dump, per spec.md §3.
func IsMultipart(h Header) bool { return h.Flags.Has(Multi) }

// Message is a decoded or to-be-encoded netlink frame: a header plus
// either a Control body or a family-specific Payload. Exactly one of
// Control/Payload is populated, selected by IsControl.
type Message[T Payload] struct {
	Header  Header
	Control Control
	Payload T

	isControl bool
}

// NewRequest builds a Message wrapping a family payload with the REQUEST
// flag set. The Sequence and Port fields are left zero; the multiplexer
// assigns them at submit time. Finalize (called by the multiplexer, or
// directly by the caller) fills in Length and Type.
func NewRequest[T Payload](payload T, flags Flags) *Message[T] {
	return &Message[T]{
		Header: Header{
			Flags: flags | Request,
		},
		Payload: payload,
	}
}

// IsControl reports whether this message carries a control body rather
// than a family payload.
func (m *Message[T]) IsControl() bool { return m.isControl }

// Finalize computes the total encoded length of the message and writes it,
// along with the message type implied by the payload, back into the
// header. Callers who mutate a message between construction and
// submission must call this (or rely on the multiplexer, which calls it
// at submit time) before serialising.
func (m *Message[T]) Finalize() {
	if m.isControl {
		m.Header.Type = m.Control.Type()
		m.Header.Length = uint32(HeaderLen + m.Control.Len())
		return
	}
	m.Header.Type = m.Payload.Type()
	m.Header.Length = uint32(HeaderLen + m.Payload.Len())
}

// Emit serialises the message (header + body) into dst, which must be at
// least int(m.Header.Length) bytes long. Finalize must have been called
// first (directly, or by the multiplexer) so the header is consistent.
func (m *Message[T]) Emit(dst []byte) {
	m.Header.Put(dst[:HeaderLen])
	body := dst[HeaderLen:m.Header.Length]
	if m.isControl {
		m.Control.Emit(body)
	} else {
		m.Payload.Emit(body)
	}
}

// Parse decodes a full frame (header plus body) from b, using parsePayload
// to interpret the body when the header's type is not one of the four
// reserved control types.
func Parse[T Payload](b []byte, parsePayload func(typ uint16, body []byte) (T, error)) (*Message[T], error) {
	h, body, err := splitFrame(b)
	if err != nil {
		return nil, err
	}
	return ParseBody(h, body, parsePayload)
}

// splitFrame parses the header and slices out the body bytes it declares,
// failing if the declared length overruns the buffer. This is the only
// transport-fatal step: until the header is known, there is no sequence
// number to route a failure to, so the caller must treat an error here as
// connection-fatal (spec.md §7).
func splitFrame(b []byte) (Header, []byte, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return Header{}, nil, err
	}
	if int(h.Length) > len(b) {
		return Header{}, nil, fmt.Errorf("%w: header declares length %d but only %d bytes available", ErrDecode, h.Length, len(b))
	}
	return h, b[HeaderLen:h.Length], nil
}

// ParseBody interprets a frame whose header has already been decoded (by
// splitFrame, or by a caller such as a connection multiplexer that needs the
// header's sequence number before it can decide where to deliver a parse
// failure). A failure here is scoped to the one frame: it never implies the
// bytes around it in the socket buffer are misaligned, so a caller may
// report it to a single pending request's reply sink and keep reading.
func ParseBody[T Payload](h Header, body []byte, parsePayload func(typ uint16, body []byte) (T, error)) (*Message[T], error) {
	m := &Message[T]{Header: h}
	switch h.Type {
	case NLMSG_NOOP, NLMSG_DONE, NLMSG_ERROR, NLMSG_OVERRUN:
		ctrl, err := ParseControl(h.Type, body)
		if err != nil {
			return nil, err
		}
		m.Control = ctrl
		m.isControl = true
	default:
		p, err := parsePayload(h.Type, body)
		if err != nil {
			return nil, err
		}
		m.Payload = p
	}
	return m, nil
}

// ParseHeaderAndBody is the header-only-fatal half of Parse: it exposes the
// split so a reader loop can perform routing (sequence number, multipart
// state) before attempting the potentially-failing body parse via ParseBody.
func ParseHeaderAndBody(b []byte) (Header, []byte, error) {
	return splitFrame(b)
}
