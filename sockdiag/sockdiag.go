// Package sockdiag implements the NETLINK_SOCK_DIAG inet_diag family: the
// request/response messages the kernel uses to enumerate and report on
// INET sockets (the structs a "ss"-like tool sends and decodes), ported
// from the teacher's inetdiag package onto the nlmsg/nlattr codecs instead
// of unsafe.Pointer casts over fixed C structs.
package sockdiag

import (
	"fmt"
	"net"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
)

// SOCK_DIAG_BY_FAMILY is the single message type this family ever uses;
// the request's SDiagFamily/SDiagProtocol fields select AF_INET vs.
// AF_INET6 and TCP vs. UDP, not the netlink message type.
const SOCK_DIAG_BY_FAMILY = 20

// INET_DIAG_* response attribute kinds.
const (
	INET_DIAG_NONE      = 0
	INET_DIAG_MEMINFO   = 1
	INET_DIAG_INFO      = 2
	INET_DIAG_VEGASINFO = 3
	INET_DIAG_CONG      = 4
	INET_DIAG_TOS       = 5
	INET_DIAG_TCLASS    = 6
	INET_DIAG_SKMEMINFO = 7
	INET_DIAG_SHUTDOWN  = 8
	INET_DIAG_DCTCPINFO = 9
	INET_DIAG_PROTOCOL  = 10
	INET_DIAG_SKV6ONLY  = 11
	INET_DIAG_LOCALS    = 12
	INET_DIAG_PEERS     = 13
	INET_DIAG_PAD       = 14
	INET_DIAG_MARK      = 15
	INET_DIAG_BBRINFO   = 16
	INET_DIAG_CLASS_ID  = 17
	INET_DIAG_MD5SIG    = 18

	sockIDLen  = 48 // 2 ports + 2*16-byte addrs + if + cookie
	reqLen     = 8 + sockIDLen
	headerLen  = 4 + sockIDLen + 4 + 4 + 4 + 4 + 4
)

// SockID is the natural-Go rendering of struct inet_diag_sockid. Ports and
// addresses are carried big-endian on the wire (spec.md §4.3 property 10):
// they mirror genuine network-order socket fields, the one place this
// family diverges from netlink's usual host-native integers.
type SockID struct {
	SrcPort   uint16
	DstPort   uint16
	Src       net.IP // 4 or 16 bytes
	Dst       net.IP
	Interface uint32
	Cookie    uint64
}

func parseSockID(b []byte) (SockID, error) {
	if len(b) < sockIDLen {
		return SockID{}, fmt.Errorf("sockdiag: sock id: short value")
	}
	return SockID{
		SrcPort:   nlenc.Uint16BE(b[0:2]),
		DstPort:   nlenc.Uint16BE(b[2:4]),
		Src:       net.IP(append([]byte(nil), b[4:20]...)),
		Dst:       net.IP(append([]byte(nil), b[20:36]...)),
		Interface: nlenc.Uint32(b[36:40]),
		Cookie:    nlenc.Uint64(b[40:48]),
	}.normalize(), nil
}

// normalize trims a v4-mapped address down to its 4-byte form so callers
// comparing against net.ParseIP("1.2.3.4") get an equal IP.
func (id SockID) normalize() SockID {
	if v4 := id.Src.To4(); v4 != nil {
		id.Src = v4
	}
	if v4 := id.Dst.To4(); v4 != nil {
		id.Dst = v4
	}
	return id
}

func (id SockID) put(b []byte) {
	nlenc.PutUint16BE(b[0:2], id.SrcPort)
	nlenc.PutUint16BE(b[2:4], id.DstPort)
	putAddr(b[4:20], id.Src)
	putAddr(b[20:36], id.Dst)
	nlenc.PutUint32(b[36:40], id.Interface)
	nlenc.PutUint64(b[40:48], id.Cookie)
}

func putAddr(dst []byte, ip net.IP) {
	if v4 := ip.To4(); v4 != nil {
		copy(dst, v4)
		return
	}
	copy(dst, ip.To16())
}

// Req is the inet_diag_req_v2 request struct.
type Req struct {
	Family   uint8
	Protocol uint8
	Ext      uint8
	States   uint32
	ID       SockID
}

// EmitReq encodes req as a SOCK_DIAG_BY_FAMILY request body (fixed header,
// no trailing attributes).
func EmitReq(req Req) []byte {
	b := make([]byte, reqLen)
	b[0] = req.Family
	b[1] = req.Protocol
	b[2] = req.Ext
	b[3] = 0 // pad
	nlenc.PutUint32(b[4:8], req.States)
	req.ID.put(b[8:])
	return b
}

// Msg is the decoded inet_diag_msg response header, common to every
// response regardless of family/protocol, plus its trailing attribute set.
type Msg struct {
	Family  uint8
	State   uint8
	Timer   uint8
	Retrans uint8
	ID      SockID
	Expires uint32
	RQueue  uint32
	WQueue  uint32
	UID     uint32
	Inode   uint32
	Attrs   []nlattr.Attr
}

// ParsePayload decodes a SOCK_DIAG_BY_FAMILY response body.
func ParsePayload(_ uint16, body []byte) (Msg, error) {
	if len(body) < headerLen {
		return Msg{}, fmt.Errorf("sockdiag: short message: %d bytes", len(body))
	}
	id, err := parseSockID(body[4 : 4+sockIDLen])
	if err != nil {
		return Msg{}, err
	}
	off := 4 + sockIDLen
	m := Msg{
		Family:  body[0],
		State:   body[1],
		Timer:   body[2],
		Retrans: body[3],
		ID:      id,
		Expires: nlenc.Uint32(body[off : off+4]),
		RQueue:  nlenc.Uint32(body[off+4 : off+8]),
		WQueue:  nlenc.Uint32(body[off+8 : off+12]),
		UID:     nlenc.Uint32(body[off+12 : off+16]),
		Inode:   nlenc.Uint32(body[off+16 : off+20]),
	}
	attrs, err := nlattr.ParseAll(body[off+20:])
	if err != nil {
		return Msg{}, fmt.Errorf("sockdiag: attrs: %w", err)
	}
	m.Attrs = attrs
	return m, nil
}

// MemInfo is the struct carried by INET_DIAG_SKMEMINFO, in csv-taggable
// form for a dump tool built with gocarina/gocsv the way the teacher's
// cmd/csvtool renders wire structs to CSV.
type MemInfo struct {
	RmemAlloc  uint32 `csv:"SKMemInfo.RmemAlloc"`
	Rcvbuf     uint32 `csv:"SKMemInfo.Rcvbuf"`
	WmemAlloc  uint32 `csv:"SKMemInfo.WmemAlloc"`
	Sndbuf     uint32 `csv:"SKMemInfo.Sndbuf"`
	FwdAlloc   uint32 `csv:"SKMemInfo.FwdAlloc"`
	WmemQueued uint32 `csv:"SKMemInfo.WmemQueued"`
	Optmem     uint32 `csv:"SKMemInfo.Optmem"`
	Backlog    uint32 `csv:"SKMemInfo.Backlog"`
	Drops      uint32 `csv:"SKMemInfo.Drops"`
}

// ParseMemInfo decodes an INET_DIAG_SKMEMINFO attribute value.
func ParseMemInfo(value []byte) (MemInfo, error) {
	if len(value) < 36 {
		return MemInfo{}, fmt.Errorf("sockdiag: INET_DIAG_SKMEMINFO: short value")
	}
	return MemInfo{
		RmemAlloc:  nlenc.Uint32(value[0:4]),
		Rcvbuf:     nlenc.Uint32(value[4:8]),
		WmemAlloc:  nlenc.Uint32(value[8:12]),
		Sndbuf:     nlenc.Uint32(value[12:16]),
		FwdAlloc:   nlenc.Uint32(value[16:20]),
		WmemQueued: nlenc.Uint32(value[20:24]),
		Optmem:     nlenc.Uint32(value[24:28]),
		Backlog:    nlenc.Uint32(value[28:32]),
		Drops:      nlenc.Uint32(value[32:36]),
	}, nil
}

// hostCondAddrLen returns the trailing address length inet_diag_hostcond
// carries for the given address family.
func hostCondAddrLen(family uint8) int {
	if family == AF_INET6 {
		return 16
	}
	return 4
}

// AF_INET and AF_INET6 select the trailing address width of a HostCond.
const (
	AF_INET  = 2
	AF_INET6 = 10
)

// HostCond is the inet_diag_hostcond filter struct. Port is carried as a
// 4-byte big-endian field for legacy reasons (spec.md §4.3), not the u16
// SockID uses for its ports.
type HostCond struct {
	Family    uint8
	PrefixLen uint8
	Port      uint32
	Addr      net.IP // 4 or 16 bytes, per Family
}

// EmitHostCond encodes c as an attribute value: family, prefix length, a
// 4-byte big-endian port, then a family-sized address.
func EmitHostCond(c HostCond) []byte {
	addrLen := hostCondAddrLen(c.Family)
	b := make([]byte, 6+addrLen)
	b[0] = c.Family
	b[1] = c.PrefixLen
	nlenc.PutUint32BE(b[2:6], c.Port)
	putAddr(b[6:], c.Addr)
	return b
}

// ParseHostCond decodes an inet_diag_hostcond attribute value.
func ParseHostCond(value []byte) (HostCond, error) {
	if len(value) < 6 {
		return HostCond{}, fmt.Errorf("sockdiag: inet_diag_hostcond: short value")
	}
	c := HostCond{
		Family:    value[0],
		PrefixLen: value[1],
		Port:      nlenc.Uint32BE(value[2:6]),
	}
	addrLen := hostCondAddrLen(c.Family)
	if len(value) < 6+addrLen {
		return HostCond{}, fmt.Errorf("sockdiag: inet_diag_hostcond: short address")
	}
	c.Addr = net.IP(append([]byte(nil), value[6:6+addrLen]...))
	return c, nil
}
