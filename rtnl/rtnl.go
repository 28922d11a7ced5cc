// Package rtnl implements the NETLINK_ROUTE family payload: link, address,
// route, and neighbor messages and their attribute sets. It is grounded on
// the wire layouts in netlink-packet-route's rtnl module (original_source),
// rendered in the checked, explicit-offset style the teacher uses for its
// own wire structs (inetdiag.structs.go's InetDiagMsg/InetDiagSockID).
package rtnl

import (
	"fmt"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
)

// Message types (RTM_*), a subset of the rtnetlink family relevant to
// link/address/route/neighbor management.
const (
	RTM_NEWLINK  = 16
	RTM_DELLINK  = 17
	RTM_GETLINK  = 18
	RTM_SETLINK  = 19
	RTM_NEWADDR  = 20
	RTM_DELADDR  = 21
	RTM_GETADDR  = 22
	RTM_NEWROUTE = 24
	RTM_DELROUTE = 25
	RTM_GETROUTE = 26
	RTM_NEWNEIGH = 28
	RTM_DELNEIGH = 29
	RTM_GETNEIGH = 30
)

// Payload is the rtnl family's nlmsg.Payload implementation: a fixed-size
// header plus a list of attributes.
type Payload struct {
	MsgType uint16
	Header  []byte // the fixed ifinfomsg/ifaddrmsg/rtmsg/ndmsg header, verbatim
	Attrs   []nlattr.Attr
}

func (p Payload) Type() uint16 { return p.MsgType }

func (p Payload) Len() int {
	n := len(p.Header)
	for _, a := range p.Attrs {
		n += nlattr.EncodedLen(len(a.Value))
	}
	return n
}

func (p Payload) Emit(dst []byte) {
	off := copy(dst, p.Header)
	for _, a := range p.Attrs {
		off += nlattr.EmitOne(dst[off:], a.Kind, a.Nested, a.NetOrder, a.Value)
	}
}

// ParsePayload implements the parsePayload callback nlmsg.Parse/ParseBody
// expect: it slices off the fixed header for the given message type and
// decodes the remaining bytes as a flat attribute list.
func ParsePayload(typ uint16, body []byte) (Payload, error) {
	hdrLen, err := headerLen(typ)
	if err != nil {
		return Payload{}, err
	}
	if len(body) < hdrLen {
		return Payload{}, fmt.Errorf("rtnl: message type %d: short body: have %d bytes, want at least %d", typ, len(body), hdrLen)
	}
	hdr := make([]byte, hdrLen)
	copy(hdr, body[:hdrLen])

	attrs, err := nlattr.ParseAll(body[hdrLen:])
	if err != nil {
		return Payload{}, fmt.Errorf("rtnl: message type %d: %w", typ, err)
	}
	return Payload{MsgType: typ, Header: hdr, Attrs: attrs}, nil
}

func headerLen(typ uint16) (int, error) {
	switch typ {
	case RTM_NEWLINK, RTM_DELLINK, RTM_GETLINK, RTM_SETLINK:
		return ifinfomsgLen, nil
	case RTM_NEWADDR, RTM_DELADDR, RTM_GETADDR:
		return ifaddrmsgLen, nil
	case RTM_NEWROUTE, RTM_DELROUTE, RTM_GETROUTE:
		return rtmsgLen, nil
	case RTM_NEWNEIGH, RTM_DELNEIGH, RTM_GETNEIGH:
		return ndmsgLen, nil
	default:
		return 0, fmt.Errorf("rtnl: unsupported message type %d", typ)
	}
}

// ifinfomsg layout (struct ifinfomsg): family(1) pad(1) type(2) index(4) flags(4) change(4).
const ifinfomsgLen = 16

// LinkHeader is the decoded fixed header of a link message.
type LinkHeader struct {
	Family uint8
	Type   uint16
	Index  int32
	Flags  uint32
	Change uint32
}

// ParseLinkHeader decodes the fixed ifinfomsg header.
func ParseLinkHeader(b []byte) (LinkHeader, error) {
	if len(b) < ifinfomsgLen {
		return LinkHeader{}, fmt.Errorf("rtnl: short ifinfomsg: %d bytes", len(b))
	}
	return LinkHeader{
		Family: b[0],
		Type:   nlenc.Uint16(b[2:4]),
		Index:  int32(nlenc.Uint32(b[4:8])),
		Flags:  nlenc.Uint32(b[8:12]),
		Change: nlenc.Uint32(b[12:16]),
	}, nil
}

// Put encodes h into the first ifinfomsgLen bytes of b.
func (h LinkHeader) Put(b []byte) {
	b[0] = h.Family
	b[1] = 0
	nlenc.PutUint16(b[2:4], h.Type)
	nlenc.PutUint32(b[4:8], uint32(h.Index))
	nlenc.PutUint32(b[8:12], h.Flags)
	nlenc.PutUint32(b[12:16], h.Change)
}

// ifaddrmsg layout: family(1) prefixlen(1) flags(1) scope(1) index(4).
const ifaddrmsgLen = 8

// AddrHeader is the decoded fixed header of an address message.
type AddrHeader struct {
	Family    uint8
	PrefixLen uint8
	Flags     uint8
	Scope     uint8
	Index     uint32
}

func ParseAddrHeader(b []byte) (AddrHeader, error) {
	if len(b) < ifaddrmsgLen {
		return AddrHeader{}, fmt.Errorf("rtnl: short ifaddrmsg: %d bytes", len(b))
	}
	return AddrHeader{
		Family:    b[0],
		PrefixLen: b[1],
		Flags:     b[2],
		Scope:     b[3],
		Index:     nlenc.Uint32(b[4:8]),
	}, nil
}

func (h AddrHeader) Put(b []byte) {
	b[0], b[1], b[2], b[3] = h.Family, h.PrefixLen, h.Flags, h.Scope
	nlenc.PutUint32(b[4:8], h.Index)
}

// rtmsg layout: family(1) dst_len(1) src_len(1) tos(1) table(1) protocol(1)
// scope(1) type(1) flags(4).
const rtmsgLen = 12

// RouteHeader is the decoded fixed header of a route message.
type RouteHeader struct {
	Family   uint8
	DstLen   uint8
	SrcLen   uint8
	Tos      uint8
	Table    uint8
	Protocol uint8
	Scope    uint8
	Type     uint8
	Flags    uint32
}

func ParseRouteHeader(b []byte) (RouteHeader, error) {
	if len(b) < rtmsgLen {
		return RouteHeader{}, fmt.Errorf("rtnl: short rtmsg: %d bytes", len(b))
	}
	return RouteHeader{
		Family:   b[0],
		DstLen:   b[1],
		SrcLen:   b[2],
		Tos:      b[3],
		Table:    b[4],
		Protocol: b[5],
		Scope:    b[6],
		Type:     b[7],
		Flags:    nlenc.Uint32(b[8:12]),
	}, nil
}

func (h RouteHeader) Put(b []byte) {
	b[0], b[1], b[2], b[3] = h.Family, h.DstLen, h.SrcLen, h.Tos
	b[4], b[5], b[6], b[7] = h.Table, h.Protocol, h.Scope, h.Type
	nlenc.PutUint32(b[8:12], h.Flags)
}

// ndmsg layout: family(1) pad(3) index(4) state(2) flags(1) type(1).
const ndmsgLen = 12

// NeighHeader is the decoded fixed header of a neighbor message.
type NeighHeader struct {
	Family uint8
	Index  int32
	State  uint16
	Flags  uint8
	Type   uint8
}

func ParseNeighHeader(b []byte) (NeighHeader, error) {
	if len(b) < ndmsgLen {
		return NeighHeader{}, fmt.Errorf("rtnl: short ndmsg: %d bytes", len(b))
	}
	return NeighHeader{
		Family: b[0],
		Index:  int32(nlenc.Uint32(b[4:8])),
		State:  nlenc.Uint16(b[8:10]),
		Flags:  b[10],
		Type:   b[11],
	}, nil
}

func (h NeighHeader) Put(b []byte) {
	b[0] = h.Family
	b[1], b[2], b[3] = 0, 0, 0
	nlenc.PutUint32(b[4:8], uint32(h.Index))
	nlenc.PutUint16(b[8:10], h.State)
	b[10], b[11] = h.Flags, h.Type
}
