// Package genl implements the generic netlink (genetlink) payload: the
// 4-byte command/version header that family payloads such as wgnl are
// carried under, plus the NETLINK_GENERIC controller's own family-lookup
// messages.
package genl

import (
	"fmt"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
)

// CTRL_CMD_* values and the well-known controller family id/name, used to
// resolve a family name (e.g. "wireguard") to its dynamically assigned
// netlink message type.
const (
	CTRL_CMD_GETFAMILY = 3

	ControllerFamilyID = 0x10 // GENL_ID_CTRL
)

// Controller attribute kinds.
const (
	CTRL_ATTR_FAMILY_ID   = 1
	CTRL_ATTR_FAMILY_NAME = 2
)

// headerLen is the size of the generic netlink header: cmd(1) version(1)
// reserved(2).
const headerLen = 4

// Header is the fixed generic netlink header.
type Header struct {
	Command uint8
	Version uint8
}

func (h Header) put(b []byte) {
	b[0] = h.Command
	b[1] = h.Version
	b[2] = 0
	b[3] = 0
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < headerLen {
		return Header{}, fmt.Errorf("genl: short header: %d bytes", len(b))
	}
	return Header{Command: b[0], Version: b[1]}, nil
}

// Payload is the genl family's nlmsg.Payload implementation: the message
// type is dynamically assigned per family (resolved via the controller, or
// supplied directly by a caller who already knows it), so it is carried as
// plain data rather than a package-level constant.
type Payload struct {
	MsgType uint16
	Header  Header
	Attrs   []nlattr.Attr
}

func (p Payload) Type() uint16 { return p.MsgType }

func (p Payload) Len() int {
	n := headerLen
	for _, a := range p.Attrs {
		n += nlattr.EncodedLen(len(a.Value))
	}
	return n
}

func (p Payload) Emit(dst []byte) {
	p.Header.put(dst[:headerLen])
	off := headerLen
	for _, a := range p.Attrs {
		off += nlattr.EmitOne(dst[off:], a.Kind, a.Nested, a.NetOrder, a.Value)
	}
}

// ParsePayload decodes a generic netlink frame body. The message type the
// frame arrived under (the family id) is preserved in Payload.MsgType so a
// caller juggling multiple families (for example one nlsock.Conn carrying
// requests for several generic family ids) can tell them apart.
func ParsePayload(typ uint16, body []byte) (Payload, error) {
	h, err := parseHeader(body)
	if err != nil {
		return Payload{}, err
	}
	attrs, err := nlattr.ParseAll(body[headerLen:])
	if err != nil {
		return Payload{}, fmt.Errorf("genl: %w", err)
	}
	return Payload{MsgType: typ, Header: h, Attrs: attrs}, nil
}

// NewPayload builds a Payload ready for nlmsg.NewRequest.
func NewPayload(msgType uint16, cmd, version uint8, attrs []nlattr.Attr) Payload {
	return Payload{MsgType: msgType, Header: Header{Command: cmd, Version: version}, Attrs: attrs}
}

// FamilyNameAttr encodes a CTRL_ATTR_FAMILY_NAME attribute for a
// CTRL_CMD_GETFAMILY lookup.
func FamilyNameAttr(name string) nlattr.Attr {
	return nlattr.Attr{Kind: CTRL_ATTR_FAMILY_NAME, Value: append([]byte(name), 0)}
}

// ParseFamilyID extracts CTRL_ATTR_FAMILY_ID from a CTRL_CMD_GETFAMILY
// reply's attribute set.
func ParseFamilyID(attrs []nlattr.Attr) (uint16, error) {
	for _, a := range attrs {
		if a.Kind == CTRL_ATTR_FAMILY_ID {
			if len(a.Value) < 2 {
				return 0, fmt.Errorf("genl: CTRL_ATTR_FAMILY_ID: short value")
			}
			return nlenc.Uint16(a.Value), nil
		}
	}
	return 0, fmt.Errorf("genl: CTRL_ATTR_FAMILY_ID not present in reply")
}
