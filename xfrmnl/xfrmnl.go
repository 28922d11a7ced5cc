// Package xfrmnl implements the NETLINK_XFRM family's security-association
// (SA) and policy messages: XFRM_MSG_NEWSA/GETSA/DELSA and
// XFRM_MSG_NEWPOLICY/GETPOLICY/DELPOLICY, supplementing the distilled spec
// (IPsec xfrm is named in PURPOSE but never worked through) from
// original_source/netlink-packet-xfrm's sadinfo nlas module and the
// kernel's xfrm_usersa_info/xfrm_userpolicy_info layouts.
package xfrmnl

import (
	"fmt"
	"net"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
)

// XFRM_MSG_* message types.
const (
	XFRM_MSG_NEWSA     = 16
	XFRM_MSG_DELSA      = 17
	XFRM_MSG_GETSA      = 18
	XFRM_MSG_NEWPOLICY  = 19
	XFRM_MSG_DELPOLICY  = 20
	XFRM_MSG_GETPOLICY  = 21
)

// XFRMA_* attribute kinds relevant to SA messages.
const (
	XFRMA_ALG_AUTH = 1
	XFRMA_ALG_CRYPT = 2
	XFRMA_SAD_CNT  = 1
	XFRMA_SAD_HINFO = 2
)

// addrLen is sizeof(xfrm_address_t): a union big enough for either an
// IPv4 or IPv6 address, always carried as the full 16 bytes regardless of
// family (the low 4 are used for IPv4).
const addrLen = 16

func parseAddr(b []byte, family uint16) net.IP {
	if family == AF_INET {
		return net.IP(append([]byte(nil), b[:4]...))
	}
	return net.IP(append([]byte(nil), b[:16]...))
}

func putAddr(dst []byte, ip net.IP) {
	if v4 := ip.To4(); v4 != nil {
		copy(dst, v4)
		return
	}
	copy(dst, ip.To16())
}

// AF_INET / AF_INET6, as used in SelectorFamily.
const (
	AF_INET  = 2
	AF_INET6 = 10
)

// Selector: the traffic pattern an SA or policy applies to.
const selectorLen = 4*addrLen/2 + 2 + 2 + 2 + 2 + 2 + 1 + 1 + 1 + 3 + 4 + 4
// selectorLen spells out struct xfrm_selector's size in field order (the 3
// is the padding before ifindex) rather than being consulted directly;
// parseSelector/putSelector use xfrmSelectorLen, which has the same value.

// Selector is struct xfrm_selector.
type Selector struct {
	Daddr                net.IP
	Saddr                net.IP
	Dport, DportMask     uint16
	Sport, SportMask     uint16
	Family               uint16
	PrefixlenD, PrefixlenS uint8
	Proto                uint8
	Ifindex              int32
	User                 uint32
}

const xfrmSelectorLen = 16 + 16 + 2 + 2 + 2 + 2 + 2 + 1 + 1 + 1 + 3 + 4 + 4

func parseSelector(b []byte) (Selector, error) {
	if len(b) < xfrmSelectorLen {
		return Selector{}, fmt.Errorf("xfrmnl: selector: short value")
	}
	family := nlenc.Uint16(b[40:42])
	s := Selector{
		Daddr:      parseAddr(b[0:16], family),
		Saddr:      parseAddr(b[16:32], family),
		Dport:      nlenc.Uint16BE(b[32:34]),
		DportMask:  nlenc.Uint16BE(b[34:36]),
		Family:     family,
	}
	s.Sport = nlenc.Uint16BE(b[36:38])
	s.SportMask = nlenc.Uint16BE(b[38:40])
	s.PrefixlenD = b[42]
	s.PrefixlenS = b[43]
	s.Proto = b[44]
	s.Ifindex = nlenc.Int32(b[48:52])
	s.User = nlenc.Uint32(b[52:56])
	return s, nil
}

func putSelector(dst []byte, s Selector) {
	putAddr(dst[0:16], s.Daddr)
	putAddr(dst[16:32], s.Saddr)
	nlenc.PutUint16BE(dst[32:34], s.Dport)
	nlenc.PutUint16BE(dst[34:36], s.DportMask)
	nlenc.PutUint16BE(dst[36:38], s.Sport)
	nlenc.PutUint16BE(dst[38:40], s.SportMask)
	nlenc.PutUint16(dst[40:42], s.Family)
	dst[42] = s.PrefixlenD
	dst[43] = s.PrefixlenS
	dst[44] = s.Proto
	nlenc.PutInt32(dst[48:52], s.Ifindex)
	nlenc.PutUint32(dst[52:56], s.User)
}

// Lifetime limits (struct xfrm_lifetime_cfg / xfrm_lifetime_cur): all
// fields are host-native 64-bit counters and durations.
type LifetimeCfg struct {
	SoftByteLimit, HardByteLimit     uint64
	SoftPacketLimit, HardPacketLimit uint64
	SoftAddExpires, HardAddExpires   uint64
	SoftUseExpires, HardUseExpires   uint64
}

const lifetimeCfgLen = 8 * 8

func parseLifetimeCfg(b []byte) (LifetimeCfg, error) {
	if len(b) < lifetimeCfgLen {
		return LifetimeCfg{}, fmt.Errorf("xfrmnl: lifetime_cfg: short value")
	}
	return LifetimeCfg{
		SoftByteLimit:    nlenc.Uint64(b[0:8]),
		HardByteLimit:    nlenc.Uint64(b[8:16]),
		SoftPacketLimit:  nlenc.Uint64(b[16:24]),
		HardPacketLimit:  nlenc.Uint64(b[24:32]),
		SoftAddExpires:   nlenc.Uint64(b[32:40]),
		HardAddExpires:   nlenc.Uint64(b[40:48]),
		SoftUseExpires:   nlenc.Uint64(b[48:56]),
		HardUseExpires:   nlenc.Uint64(b[56:64]),
	}, nil
}

func putLifetimeCfg(dst []byte, c LifetimeCfg) {
	nlenc.PutUint64(dst[0:8], c.SoftByteLimit)
	nlenc.PutUint64(dst[8:16], c.HardByteLimit)
	nlenc.PutUint64(dst[16:24], c.SoftPacketLimit)
	nlenc.PutUint64(dst[24:32], c.HardPacketLimit)
	nlenc.PutUint64(dst[32:40], c.SoftAddExpires)
	nlenc.PutUint64(dst[40:48], c.HardAddExpires)
	nlenc.PutUint64(dst[48:56], c.SoftUseExpires)
	nlenc.PutUint64(dst[56:64], c.HardUseExpires)
}

// SAID identifies one security association: destination address, SPI,
// protocol, and address family (struct xfrm_id plus the family that
// disambiguates its address union).
type SAID struct {
	Daddr net.IP
	SPI   uint32
	Proto uint8
	Family uint16
}

const saidLen = 16 + 4 + 4

func parseSAID(b []byte, family uint16) (SAID, error) {
	if len(b) < saidLen {
		return SAID{}, fmt.Errorf("xfrmnl: id: short value")
	}
	return SAID{
		Daddr:  parseAddr(b[0:16], family),
		SPI:    nlenc.Uint32BE(b[16:20]),
		Proto:  b[20],
		Family: family,
	}, nil
}

func putSAID(dst []byte, id SAID) {
	putAddr(dst[0:16], id.Daddr)
	nlenc.PutUint32BE(dst[16:20], id.SPI)
	dst[20] = id.Proto
}

// SAInfo is struct xfrm_usersa_info, the XFRM_MSG_NEWSA/GETSA reply body's
// fixed header (trailing XFRMA_* attributes carry the actual algorithms).
type SAInfo struct {
	Sel      Selector
	ID       SAID
	Saddr    net.IP
	Lft      LifetimeCfg
	Reqid    uint32
	Family   uint16
	Mode     uint8
	ReplayWindow uint8
	Flags    uint8
}

const saInfoLen = xfrmSelectorLen + saidLen + addrLen + lifetimeCfgLen + 32 /*lifetime_cur*/ + 12 /*stats*/ + 4 /*seq*/ + 4 + 2 + 1 + 1 + 1 + 7 /*padding*/

// ParseSAInfo decodes an XFRM_MSG_NEWSA/GETSA message's fixed header. Only
// the fields this package's callers need (selector, id, lifetime
// configuration, mode, replay window) are decoded; the kernel's running
// statistics (xfrm_stats, xfrm_lifetime_cur) are skipped over rather than
// modeled, since nothing in this package writes them.
func ParseSAInfo(body []byte) (SAInfo, []nlattr.Attr, error) {
	if len(body) < xfrmSelectorLen+saidLen+addrLen {
		return SAInfo{}, nil, fmt.Errorf("xfrmnl: sa info: short message: %d bytes", len(body))
	}
	sel, err := parseSelector(body[0:xfrmSelectorLen])
	if err != nil {
		return SAInfo{}, nil, err
	}
	off := xfrmSelectorLen
	id, err := parseSAID(body[off:off+saidLen], sel.Family)
	if err != nil {
		return SAInfo{}, nil, err
	}
	off += saidLen
	saddr := parseAddr(body[off:off+addrLen], sel.Family)
	off += addrLen

	if len(body) < off+lifetimeCfgLen {
		return SAInfo{}, nil, fmt.Errorf("xfrmnl: sa info: short lifetime: %d bytes", len(body))
	}
	lft, err := parseLifetimeCfg(body[off : off+lifetimeCfgLen])
	if err != nil {
		return SAInfo{}, nil, err
	}

	info := SAInfo{Sel: sel, ID: id, Saddr: saddr, Lft: lft}
	if len(body) >= saInfoLen {
		tail := body[saInfoLen-4-2-1-1-1-7 : saInfoLen]
		info.Reqid = nlenc.Uint32(tail[0:4])
		info.Family = nlenc.Uint16(tail[4:6])
		info.Mode = tail[6]
		info.ReplayWindow = tail[7]
		info.Flags = tail[8]
	}

	var attrs []nlattr.Attr
	if len(body) > saInfoLen {
		attrs, err = nlattr.ParseAll(body[saInfoLen:])
		if err != nil {
			return SAInfo{}, nil, fmt.Errorf("xfrmnl: sa info attrs: %w", err)
		}
	}
	return info, attrs, nil
}

// PolicyInfo is struct xfrm_userpolicy_info, the
// XFRM_MSG_NEWPOLICY/GETPOLICY message's fixed header.
type PolicyInfo struct {
	Sel      Selector
	Lft      LifetimeCfg
	Priority uint32
	Index    uint32
	Dir      uint8
	Action   uint8
	Flags    uint8
	ShareFlag uint8
}

const policyInfoLen = xfrmSelectorLen + lifetimeCfgLen + 32 /*lifetime_cur, skipped*/ + 4 + 4 + 1 + 1 + 1 + 1 + 4 /*padding*/

// ParsePolicyInfo decodes an XFRM_MSG_NEWPOLICY/GETPOLICY message's fixed
// header, skipping the kernel's running xfrm_lifetime_cur the same way
// ParseSAInfo does.
func ParsePolicyInfo(body []byte) (PolicyInfo, []nlattr.Attr, error) {
	if len(body) < xfrmSelectorLen+lifetimeCfgLen {
		return PolicyInfo{}, nil, fmt.Errorf("xfrmnl: policy info: short message: %d bytes", len(body))
	}
	sel, err := parseSelector(body[0:xfrmSelectorLen])
	if err != nil {
		return PolicyInfo{}, nil, err
	}
	off := xfrmSelectorLen
	lft, err := parseLifetimeCfg(body[off : off+lifetimeCfgLen])
	if err != nil {
		return PolicyInfo{}, nil, err
	}

	info := PolicyInfo{Sel: sel, Lft: lft}
	if len(body) >= policyInfoLen {
		tail := body[policyInfoLen-4-4-1-1-1-1-4 : policyInfoLen]
		info.Priority = nlenc.Uint32(tail[0:4])
		info.Index = nlenc.Uint32(tail[4:8])
		info.Dir = tail[8]
		info.Action = tail[9]
		info.Flags = tail[10]
		info.ShareFlag = tail[11]
	}

	var attrs []nlattr.Attr
	if len(body) > policyInfoLen {
		attrs, err = nlattr.ParseAll(body[policyInfoLen:])
		if err != nil {
			return PolicyInfo{}, nil, fmt.Errorf("xfrmnl: policy info attrs: %w", err)
		}
	}
	return info, attrs, nil
}

// EmitPolicyID encodes just enough of a PolicyInfo (selector + index +
// dir) to serve as an XFRM_MSG_GETPOLICY/DELPOLICY request body, following
// struct xfrm_userpolicy_id.
func EmitPolicyID(sel Selector, index uint32, dir uint8) []byte {
	b := make([]byte, xfrmSelectorLen+4+4) // index, dir, 3 bytes padding
	putSelector(b[0:xfrmSelectorLen], sel)
	nlenc.PutUint32(b[xfrmSelectorLen:xfrmSelectorLen+4], index)
	b[xfrmSelectorLen+4] = dir
	return b
}

// SadHInfo is the XFRMA_SAD_HINFO attribute value: the SA hash table's
// bucket count and maximum, reported alongside XFRMA_SAD_CNT when querying
// aggregate SA statistics.
type SadHInfo struct {
	BucketCnt uint32
	IdxMax    uint32
}

// ParseSadInfoAttrs decodes the attribute set of an SA count/hash-info
// query reply (XFRMA_SAD_CNT, XFRMA_SAD_HINFO).
func ParseSadInfoAttrs(attrs []nlattr.Attr) (count uint32, hinfo *SadHInfo, err error) {
	for _, a := range attrs {
		switch a.Kind {
		case XFRMA_SAD_CNT:
			if len(a.Value) < 4 {
				return 0, nil, fmt.Errorf("xfrmnl: XFRMA_SAD_CNT: short value")
			}
			count = nlenc.Uint32(a.Value)
		case XFRMA_SAD_HINFO:
			if len(a.Value) < 8 {
				return 0, nil, fmt.Errorf("xfrmnl: XFRMA_SAD_HINFO: short value")
			}
			hinfo = &SadHInfo{BucketCnt: nlenc.Uint32(a.Value[0:4]), IdxMax: nlenc.Uint32(a.Value[4:8])}
		}
	}
	return count, hinfo, nil
}
