// Package nflog implements the NETLINK_NETFILTER ULOG subsystem
// (NFULNL_MSG_CONFIG/NFULNL_MSG_PACKET): the message family the kernel
// uses to deliver logged packets to userspace, ported from
// netlink-packet-netfilter's nflog module.
package nflog

import (
	"fmt"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
)

// NFNL_SUBSYS_ULOG identifies this subsystem within NETLINK_NETFILTER;
// it occupies the top byte of the 16-bit message type, with the command
// (NFULNL_MSG_*) in the low byte.
const NFNL_SUBSYS_ULOG = 4

// NFULNL_MSG_* commands, the low byte of the message type.
const (
	NFULNL_MSG_PACKET = 0
	NFULNL_MSG_CONFIG = 1
)

// MsgType packs a subsystem/command pair into the netlink message type
// field the way NETLINK_NETFILTER multiplexes its subsystems.
func MsgType(cmd uint8) uint16 {
	return uint16(NFNL_SUBSYS_ULOG)<<8 | uint16(cmd)
}

// Command extracts the NFULNL_MSG_* command from a message type built by
// MsgType.
func Command(typ uint16) uint8 { return uint8(typ & 0xff) }

// nfgenmsg is the 4-byte header common to every NETLINK_NETFILTER
// message: address family, netfilter header version, and a big-endian
// "res_id" (for nflog, the log group being configured or reported).
const headerLen = 4

// Header is the nfgenmsg header.
type Header struct {
	Family  uint8
	Version uint8
	ResID   uint16 // big-endian on the wire
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < headerLen {
		return Header{}, fmt.Errorf("nflog: short header: %d bytes", len(b))
	}
	return Header{Family: b[0], Version: b[1], ResID: nlenc.Uint16BE(b[2:4])}, nil
}

func (h Header) put(b []byte) {
	b[0] = h.Family
	b[1] = h.Version
	nlenc.PutUint16BE(b[2:4], h.ResID)
}

// NFULA_* attribute kinds, shared between config and packet messages.
const (
	NFULA_PACKET_HDR     = 1
	NFULA_MARK           = 2
	NFULA_TIMESTAMP      = 3
	NFULA_IFINDEX_INDEV  = 4
	NFULA_IFINDEX_OUTDEV = 5
	NFULA_HWADDR         = 8
	NFULA_PAYLOAD        = 9
	NFULA_PREFIX         = 10

	NFULA_CFG_CMD     = 1
	NFULA_CFG_MODE    = 2
	NFULA_CFG_NLBUFSIZ = 3
	NFULA_CFG_QTHRESH  = 5
)

// NFULNL_CFG_CMD_* config subcommands, carried in NFULA_CFG_CMD.
const (
	NFULNL_CFG_CMD_BIND   = 1
	NFULNL_CFG_CMD_UNBIND = 2
	NFULNL_CFG_CMD_PF_BIND = 3
	NFULNL_CFG_CMD_PF_UNBIND = 4
)

// PacketHdr is the NFULA_PACKET_HDR attribute value (struct
// nfulnl_msg_packet_hdr): hw_protocol is big-endian (it is an
// ETH_P_*-style ethertype), matching rtnl's VLAN protocol field.
type PacketHdr struct {
	HwProtocol uint16
	Hook       uint8
}

func parsePacketHdr(b []byte) (PacketHdr, error) {
	if len(b) < 4 {
		return PacketHdr{}, fmt.Errorf("nflog: NFULA_PACKET_HDR: short value")
	}
	return PacketHdr{HwProtocol: nlenc.Uint16BE(b[0:2]), Hook: b[2]}, nil
}

// TimeStamp is the NFULA_TIMESTAMP attribute value: seconds and
// microseconds, both carried big-endian (spec.md §4.3 property 10) even
// though they are plain counters, not addresses or ports — the Rust
// source's timestamp.rs calls u64::to_be/from_be explicitly on both
// fields, so this package follows suit rather than assuming host order.
type TimeStamp struct {
	Sec  uint64
	Usec uint64
}

const timestampLen = 16

func parseTimeStamp(b []byte) (TimeStamp, error) {
	if len(b) < timestampLen {
		return TimeStamp{}, fmt.Errorf("nflog: NFULA_TIMESTAMP: short value")
	}
	return TimeStamp{Sec: nlenc.Uint64BE(b[0:8]), Usec: nlenc.Uint64BE(b[8:16])}, nil
}

func emitTimeStamp(ts TimeStamp) []byte {
	b := make([]byte, timestampLen)
	nlenc.PutUint64BE(b[0:8], ts.Sec)
	nlenc.PutUint64BE(b[8:16], ts.Usec)
	return b
}

// Packet is the decoded content of an NFULNL_MSG_PACKET message: a single
// logged packet and its metadata.
type Packet struct {
	Header    Header
	PacketHdr *PacketHdr
	Mark      uint32
	Timestamp *TimeStamp
	InDevIdx  uint32
	OutDevIdx uint32
	HwAddr    []byte
	Prefix    string
	Payload   []byte
}

// ParsePacket decodes an NFULNL_MSG_PACKET message body.
func ParsePacket(body []byte) (Packet, error) {
	h, err := parseHeader(body)
	if err != nil {
		return Packet{}, err
	}
	attrs, err := nlattr.ParseAll(body[headerLen:])
	if err != nil {
		return Packet{}, fmt.Errorf("nflog: packet attrs: %w", err)
	}

	p := Packet{Header: h}
	for _, a := range attrs {
		switch a.Kind {
		case NFULA_PACKET_HDR:
			ph, err := parsePacketHdr(a.Value)
			if err != nil {
				return Packet{}, err
			}
			p.PacketHdr = &ph
		case NFULA_MARK:
			if len(a.Value) < 4 {
				return Packet{}, fmt.Errorf("nflog: NFULA_MARK: short value")
			}
			p.Mark = nlenc.Uint32BE(a.Value)
		case NFULA_TIMESTAMP:
			ts, err := parseTimeStamp(a.Value)
			if err != nil {
				return Packet{}, err
			}
			p.Timestamp = &ts
		case NFULA_IFINDEX_INDEV:
			if len(a.Value) < 4 {
				return Packet{}, fmt.Errorf("nflog: NFULA_IFINDEX_INDEV: short value")
			}
			p.InDevIdx = nlenc.Uint32BE(a.Value)
		case NFULA_IFINDEX_OUTDEV:
			if len(a.Value) < 4 {
				return Packet{}, fmt.Errorf("nflog: NFULA_IFINDEX_OUTDEV: short value")
			}
			p.OutDevIdx = nlenc.Uint32BE(a.Value)
		case NFULA_HWADDR:
			p.HwAddr = append([]byte(nil), a.Value...)
		case NFULA_PREFIX:
			p.Prefix = nlenc0Terminated(a.Value)
		case NFULA_PAYLOAD:
			p.Payload = append([]byte(nil), a.Value...)
		}
	}
	return p, nil
}

// EmitPacket encodes a Packet back into an NFULNL_MSG_PACKET message body
// (used by tests exercising round-trip decoding; the kernel is always the
// sender of real packet messages). Only the header, PacketHdr, Timestamp,
// Prefix and Payload are emitted; Mark, the interface indexes and HwAddr
// are not, so they do not survive a round trip.
func EmitPacket(p Packet) []byte {
	hdr := make([]byte, headerLen)
	p.Header.put(hdr)

	var ms []nlattr.Marshaler
	if p.PacketHdr != nil {
		b := make([]byte, 4)
		nlenc.PutUint16BE(b[0:2], p.PacketHdr.HwProtocol)
		b[2] = p.PacketHdr.Hook
		ms = append(ms, nlattr.Default{AttrKind: NFULA_PACKET_HDR, Raw: b})
	}
	if p.Timestamp != nil {
		ms = append(ms, nlattr.Default{AttrKind: NFULA_TIMESTAMP, Raw: emitTimeStamp(*p.Timestamp)})
	}
	if p.Prefix != "" {
		ms = append(ms, nlattr.Default{AttrKind: NFULA_PREFIX, Raw: append([]byte(p.Prefix), 0)})
	}
	if p.Payload != nil {
		ms = append(ms, nlattr.Default{AttrKind: NFULA_PAYLOAD, Raw: p.Payload})
	}

	dst := make([]byte, nlattr.TotalLen(ms))
	nlattr.EmitAll(dst, ms)
	return append(hdr, dst...)
}

// Config is the decoded content of an NFULNL_MSG_CONFIG message: the
// binding/buffering controls a userspace logger negotiates with the
// kernel before receiving Packet messages.
type Config struct {
	Header   Header
	Cmd      uint8
	Mode     uint8
	Range    uint32
	NlBufSiz uint32
	QThresh  uint32
}

// ParseConfig decodes an NFULNL_MSG_CONFIG message body.
func ParseConfig(body []byte) (Config, error) {
	h, err := parseHeader(body)
	if err != nil {
		return Config{}, err
	}
	attrs, err := nlattr.ParseAll(body[headerLen:])
	if err != nil {
		return Config{}, fmt.Errorf("nflog: config attrs: %w", err)
	}

	c := Config{Header: h}
	for _, a := range attrs {
		switch a.Kind {
		case NFULA_CFG_CMD:
			if len(a.Value) < 1 {
				return Config{}, fmt.Errorf("nflog: NFULA_CFG_CMD: short value")
			}
			c.Cmd = a.Value[0]
		case NFULA_CFG_MODE:
			if len(a.Value) < 8 {
				return Config{}, fmt.Errorf("nflog: NFULA_CFG_MODE: short value")
			}
			c.Mode = a.Value[0]
			c.Range = nlenc.Uint32BE(a.Value[4:8])
		case NFULA_CFG_NLBUFSIZ:
			if len(a.Value) < 4 {
				return Config{}, fmt.Errorf("nflog: NFULA_CFG_NLBUFSIZ: short value")
			}
			c.NlBufSiz = nlenc.Uint32BE(a.Value)
		case NFULA_CFG_QTHRESH:
			if len(a.Value) < 4 {
				return Config{}, fmt.Errorf("nflog: NFULA_CFG_QTHRESH: short value")
			}
			c.QThresh = nlenc.Uint32BE(a.Value)
		}
	}
	return c, nil
}

// EmitConfig encodes a Config as an NFULNL_MSG_CONFIG request body. It
// emits Cmd and the non-zero NlBufSiz and QThresh; Mode and Range are not
// emitted.
func EmitConfig(c Config) []byte {
	hdr := make([]byte, headerLen)
	c.Header.put(hdr)

	var ms []nlattr.Marshaler
	ms = append(ms, nlattr.Default{AttrKind: NFULA_CFG_CMD, Raw: []byte{c.Cmd}})
	if c.NlBufSiz != 0 {
		b := make([]byte, 4)
		nlenc.PutUint32BE(b, c.NlBufSiz)
		ms = append(ms, nlattr.Default{AttrKind: NFULA_CFG_NLBUFSIZ, Raw: b})
	}
	if c.QThresh != 0 {
		b := make([]byte, 4)
		nlenc.PutUint32BE(b, c.QThresh)
		ms = append(ms, nlattr.Default{AttrKind: NFULA_CFG_QTHRESH, Raw: b})
	}

	dst := make([]byte, nlattr.TotalLen(ms))
	nlattr.EmitAll(dst, ms)
	return append(hdr, dst...)
}

func nlenc0Terminated(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		return string(b[:n-1])
	}
	return string(b)
}
