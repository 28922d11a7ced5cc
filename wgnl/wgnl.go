// Package wgnl implements the WireGuard generic-netlink family: the
// WGDEVICE_A_*/WGPEER_A_*/WGALLOWEDIP_A_* attribute sets carried inside a
// genl.Payload whose family name is "wireguard" (spec.md's DOMAIN STACK:
// wgnl rides on genl the way netlink-packet-wireguard rides on
// netlink-packet-generic).
package wgnl

import (
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
)

// FamilyName is the genl controller family name this package resolves via
// CTRL_CMD_GETFAMILY.
const FamilyName = "wireguard"

// WG_CMD_* generic netlink commands.
const (
	CmdGetDevice = 0
	CmdSetDevice = 1
)

// WGDEVICE_A_* top-level device attribute kinds.
const (
	WGDEVICE_A_UNSPEC      = 0
	WGDEVICE_A_IFINDEX     = 1
	WGDEVICE_A_IFNAME      = 2
	WGDEVICE_A_PRIVATE_KEY = 3
	WGDEVICE_A_PUBLIC_KEY  = 4
	WGDEVICE_A_FLAGS       = 5
	WGDEVICE_A_LISTEN_PORT = 6
	WGDEVICE_A_FWMARK      = 7
	WGDEVICE_A_PEERS       = 8
)

// WGPEER_A_* attribute kinds, nested within one WGDEVICE_A_PEERS entry.
const (
	WGPEER_A_UNSPEC                         = 0
	WGPEER_A_PUBLIC_KEY                     = 1
	WGPEER_A_PRESHARED_KEY                  = 2
	WGPEER_A_FLAGS                          = 3
	WGPEER_A_ENDPOINT                       = 4
	WGPEER_A_PERSISTENT_KEEPALIVE_INTERVAL  = 5
	WGPEER_A_LAST_HANDSHAKE_TIME            = 6
	WGPEER_A_RX_BYTES                       = 7
	WGPEER_A_TX_BYTES                       = 8
	WGPEER_A_ALLOWEDIPS                     = 9
	WGPEER_A_PROTOCOL_VERSION               = 10
)

// WGALLOWEDIP_A_* attribute kinds, nested within one WGPEER_A_ALLOWEDIPS
// entry.
const (
	WGALLOWEDIP_A_UNSPEC     = 0
	WGALLOWEDIP_A_FAMILY     = 1
	WGALLOWEDIP_A_IPADDR     = 2
	WGALLOWEDIP_A_CIDR_MASK  = 3
)

// KeyLen is the byte length of a Curve25519 public/private/preshared key.
const KeyLen = 32

// AF_INET / AF_INET6, used in WGALLOWEDIP_A_FAMILY and embedded in the
// endpoint sockaddr.
const (
	AF_INET  = 2
	AF_INET6 = 10
)

// AllowedIP is one CIDR range a peer is allowed to route.
type AllowedIP struct {
	IPNet net.IPNet
}

func parseAllowedIP(value []byte) (AllowedIP, error) {
	attrs, err := nlattr.ParseAll(value)
	if err != nil {
		return AllowedIP{}, fmt.Errorf("wgnl: allowedip: %w", err)
	}
	var family uint16
	var ip net.IP
	var mask uint8
	for _, a := range attrs {
		switch a.Kind {
		case WGALLOWEDIP_A_FAMILY:
			if len(a.Value) < 2 {
				return AllowedIP{}, fmt.Errorf("wgnl: WGALLOWEDIP_A_FAMILY: short value")
			}
			family = nlenc.Uint16(a.Value)
		case WGALLOWEDIP_A_IPADDR:
			ip = net.IP(append([]byte(nil), a.Value...))
		case WGALLOWEDIP_A_CIDR_MASK:
			if len(a.Value) < 1 {
				return AllowedIP{}, fmt.Errorf("wgnl: WGALLOWEDIP_A_CIDR_MASK: short value")
			}
			mask = a.Value[0]
		}
	}
	bits := 32
	if family == AF_INET6 {
		bits = 128
	}
	return AllowedIP{IPNet: net.IPNet{IP: ip, Mask: net.CIDRMask(int(mask), bits)}}, nil
}

func emitAllowedIP(a AllowedIP) []byte {
	family := uint16(AF_INET)
	ip4 := a.IPNet.IP.To4()
	ipBytes := ip4
	if ip4 == nil {
		family = AF_INET6
		ipBytes = a.IPNet.IP.To16()
	}
	familyBytes := make([]byte, 2)
	nlenc.PutUint16(familyBytes, family)
	ones, _ := a.IPNet.Mask.Size()

	ms := []nlattr.Marshaler{
		nlattr.Default{AttrKind: WGALLOWEDIP_A_FAMILY, Raw: familyBytes},
		nlattr.Default{AttrKind: WGALLOWEDIP_A_IPADDR, Raw: ipBytes},
		nlattr.Default{AttrKind: WGALLOWEDIP_A_CIDR_MASK, Raw: []byte{byte(ones)}},
	}
	dst := make([]byte, nlattr.TotalLen(ms))
	nlattr.EmitAll(dst, ms)
	return dst
}

// Peer is one WGDEVICE_A_PEERS entry.
type Peer struct {
	PublicKey                   [KeyLen]byte
	PresharedKey                *[KeyLen]byte
	Endpoint                    *net.UDPAddr
	PersistentKeepaliveInterval uint16
	LastHandshakeTime           time.Time
	RxBytes, TxBytes            uint64
	AllowedIPs                  []AllowedIP
	ProtocolVersion             uint32
}

func parsePeer(value []byte) (Peer, error) {
	attrs, err := nlattr.ParseAll(value)
	if err != nil {
		return Peer{}, fmt.Errorf("wgnl: peer: %w", err)
	}

	var p Peer
	for _, a := range attrs {
		switch a.Kind {
		case WGPEER_A_PUBLIC_KEY:
			if len(a.Value) != KeyLen {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_PUBLIC_KEY: want %d bytes, got %d", KeyLen, len(a.Value))
			}
			copy(p.PublicKey[:], a.Value)
		case WGPEER_A_PRESHARED_KEY:
			if len(a.Value) != KeyLen {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_PRESHARED_KEY: want %d bytes, got %d", KeyLen, len(a.Value))
			}
			var k [KeyLen]byte
			copy(k[:], a.Value)
			p.PresharedKey = &k
		case WGPEER_A_ENDPOINT:
			ep, err := parseSockaddr(a.Value)
			if err != nil {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_ENDPOINT: %w", err)
			}
			p.Endpoint = ep
		case WGPEER_A_PERSISTENT_KEEPALIVE_INTERVAL:
			if len(a.Value) < 2 {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_PERSISTENT_KEEPALIVE_INTERVAL: short value")
			}
			p.PersistentKeepaliveInterval = nlenc.Uint16(a.Value)
		case WGPEER_A_LAST_HANDSHAKE_TIME:
			t, err := parseTimespec(a.Value)
			if err != nil {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_LAST_HANDSHAKE_TIME: %w", err)
			}
			p.LastHandshakeTime = t
		case WGPEER_A_RX_BYTES:
			if len(a.Value) < 8 {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_RX_BYTES: short value")
			}
			p.RxBytes = nlenc.Uint64(a.Value)
		case WGPEER_A_TX_BYTES:
			if len(a.Value) < 8 {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_TX_BYTES: short value")
			}
			p.TxBytes = nlenc.Uint64(a.Value)
		case WGPEER_A_PROTOCOL_VERSION:
			if len(a.Value) < 4 {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_PROTOCOL_VERSION: short value")
			}
			p.ProtocolVersion = nlenc.Uint32(a.Value)
		case WGPEER_A_ALLOWEDIPS:
			ipAttrs, err := nlattr.ParseAll(a.Value)
			if err != nil {
				return Peer{}, fmt.Errorf("wgnl: WGPEER_A_ALLOWEDIPS: %w", err)
			}
			for _, ipa := range ipAttrs {
				ip, err := parseAllowedIP(ipa.Value)
				if err != nil {
					return Peer{}, err
				}
				p.AllowedIPs = append(p.AllowedIPs, ip)
			}
		}
	}
	return p, nil
}

func emitPeer(p Peer) []byte {
	ms := []nlattr.Marshaler{
		nlattr.Default{AttrKind: WGPEER_A_PUBLIC_KEY, Raw: p.PublicKey[:]},
	}
	if p.PresharedKey != nil {
		ms = append(ms, nlattr.Default{AttrKind: WGPEER_A_PRESHARED_KEY, Raw: p.PresharedKey[:]})
	}
	if p.Endpoint != nil {
		ms = append(ms, nlattr.Default{AttrKind: WGPEER_A_ENDPOINT, Raw: emitSockaddr(p.Endpoint)})
	}
	keepalive := make([]byte, 2)
	nlenc.PutUint16(keepalive, p.PersistentKeepaliveInterval)
	ms = append(ms, nlattr.Default{AttrKind: WGPEER_A_PERSISTENT_KEEPALIVE_INTERVAL, Raw: keepalive})

	if len(p.AllowedIPs) > 0 {
		var ipMs []nlattr.Marshaler
		for _, ip := range p.AllowedIPs {
			ipMs = append(ipMs, nlattr.Default{AttrKind: WGALLOWEDIP_A_UNSPEC, Raw: emitAllowedIP(ip)})
		}
		ipDst := make([]byte, nlattr.TotalLen(ipMs))
		nlattr.EmitAll(ipDst, ipMs)
		ms = append(ms, nlattr.Default{AttrKind: WGPEER_A_ALLOWEDIPS, Raw: ipDst})
	}

	dst := make([]byte, nlattr.TotalLen(ms))
	nlattr.EmitAll(dst, ms)
	return dst
}

// Device is the decoded content of a WGDEVICE_A_PEERS-bearing genl
// message: a WireGuard interface's configuration and peer list.
type Device struct {
	IfIndex    uint32
	IfName     string
	PrivateKey *[KeyLen]byte
	PublicKey  *[KeyLen]byte
	ListenPort uint16
	FwMark     uint32
	Peers      []Peer
}

// Parse decodes a WireGuard genl payload's attribute set (the
// WGDEVICE_A_PEERS attribute, whose value is itself a sequence of
// per-peer nested attribute sets — the WireGuard analogue of rtnl's
// IFLA_LINKINFO nesting, though here there is no kind/data ordering
// dependency to track).
func Parse(attrs []nlattr.Attr) (Device, error) {
	var d Device
	for _, a := range attrs {
		switch a.Kind {
		case WGDEVICE_A_IFINDEX:
			if len(a.Value) < 4 {
				return Device{}, fmt.Errorf("wgnl: WGDEVICE_A_IFINDEX: short value")
			}
			d.IfIndex = nlenc.Uint32(a.Value)
		case WGDEVICE_A_IFNAME:
			d.IfName = nlenc0Terminated(a.Value)
		case WGDEVICE_A_PRIVATE_KEY:
			if len(a.Value) != KeyLen {
				return Device{}, fmt.Errorf("wgnl: WGDEVICE_A_PRIVATE_KEY: want %d bytes, got %d", KeyLen, len(a.Value))
			}
			var k [KeyLen]byte
			copy(k[:], a.Value)
			d.PrivateKey = &k
		case WGDEVICE_A_PUBLIC_KEY:
			if len(a.Value) != KeyLen {
				return Device{}, fmt.Errorf("wgnl: WGDEVICE_A_PUBLIC_KEY: want %d bytes, got %d", KeyLen, len(a.Value))
			}
			var k [KeyLen]byte
			copy(k[:], a.Value)
			d.PublicKey = &k
		case WGDEVICE_A_LISTEN_PORT:
			if len(a.Value) < 2 {
				return Device{}, fmt.Errorf("wgnl: WGDEVICE_A_LISTEN_PORT: short value")
			}
			d.ListenPort = nlenc.Uint16(a.Value)
		case WGDEVICE_A_FWMARK:
			if len(a.Value) < 4 {
				return Device{}, fmt.Errorf("wgnl: WGDEVICE_A_FWMARK: short value")
			}
			d.FwMark = nlenc.Uint32(a.Value)
		case WGDEVICE_A_PEERS:
			peerAttrs, err := nlattr.ParseAll(a.Value)
			if err != nil {
				return Device{}, fmt.Errorf("wgnl: WGDEVICE_A_PEERS: %w", err)
			}
			for _, pa := range peerAttrs {
				p, err := parsePeer(pa.Value)
				if err != nil {
					return Device{}, err
				}
				d.Peers = append(d.Peers, p)
			}
		}
	}
	return d, nil
}

// Emit encodes a Device's attribute set for a WGDEVICE_A_IFNAME-keyed
// CmdSetDevice request.
func Emit(d Device) []nlattr.Attr {
	var out []nlattr.Attr
	if d.IfName != "" {
		out = append(out, nlattr.Attr{Kind: WGDEVICE_A_IFNAME, Value: append([]byte(d.IfName), 0)})
	}
	if d.PrivateKey != nil {
		out = append(out, nlattr.Attr{Kind: WGDEVICE_A_PRIVATE_KEY, Value: d.PrivateKey[:]})
	}
	if d.ListenPort != 0 {
		b := make([]byte, 2)
		nlenc.PutUint16(b, d.ListenPort)
		out = append(out, nlattr.Attr{Kind: WGDEVICE_A_LISTEN_PORT, Value: b})
	}
	if len(d.Peers) > 0 {
		var ms []nlattr.Marshaler
		for _, p := range d.Peers {
			ms = append(ms, nlattr.Default{AttrKind: WGPEER_A_UNSPEC, Raw: emitPeer(p)})
		}
		dst := make([]byte, nlattr.TotalLen(ms))
		nlattr.EmitAll(dst, ms)
		out = append(out, nlattr.Attr{Kind: WGDEVICE_A_PEERS, Value: dst})
	}
	return out
}

func nlenc0Terminated(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		return string(b[:n-1])
	}
	return string(b)
}
