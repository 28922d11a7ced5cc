package rtnl

import (
	"fmt"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
)

// IFLA_VLAN_* attribute kinds, nested inside IFLA_INFO_DATA when
// IFLA_INFO_KIND is "vlan".
const (
	IFLA_VLAN_UNSPEC   = 0
	IFLA_VLAN_ID       = 1
	IFLA_VLAN_FLAGS    = 2
	IFLA_VLAN_PROTOCOL = 5
)

// InfoVlan is the IFLA_INFO_DATA payload for a VLAN link.
type InfoVlan struct {
	ID uint16

	// Protocol is the VLAN ethertype (e.g. 0x8100 for 802.1Q). The kernel
	// carries it big-endian on the wire, unlike almost every other
	// integer attribute in this family (spec.md §4.3 property 10).
	Protocol uint16
}

// ParseInfoVlan decodes a VLAN IFLA_INFO_DATA attribute set.
func ParseInfoVlan(value []byte) (InfoVlan, error) {
	attrs, err := nlattr.ParseAll(value)
	if err != nil {
		return InfoVlan{}, err
	}
	var v InfoVlan
	for _, a := range attrs {
		switch a.Kind {
		case IFLA_VLAN_ID:
			if len(a.Value) < 2 {
				return InfoVlan{}, fmt.Errorf("rtnl: IFLA_VLAN_ID: short value")
			}
			v.ID = nlenc.Uint16(a.Value)
		case IFLA_VLAN_PROTOCOL:
			if len(a.Value) < 2 {
				return InfoVlan{}, fmt.Errorf("rtnl: IFLA_VLAN_PROTOCOL: short value")
			}
			v.Protocol = nlenc.Uint16BE(a.Value)
		}
	}
	return v, nil
}

// EmitInfoVlan encodes v as an IFLA_INFO_DATA attribute value.
func EmitInfoVlan(v InfoVlan) []byte {
	id := make([]byte, 2)
	nlenc.PutUint16(id, v.ID)
	proto := make([]byte, 2)
	nlenc.PutUint16BE(proto, v.Protocol)

	ms := []nlattr.Marshaler{
		nlattr.Default{AttrKind: IFLA_VLAN_ID, Raw: id},
		nlattr.Default{AttrKind: IFLA_VLAN_PROTOCOL, Raw: proto},
	}
	dst := make([]byte, nlattr.TotalLen(ms))
	nlattr.EmitAll(dst, ms)
	return dst
}
