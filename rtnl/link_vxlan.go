package rtnl

import (
	"fmt"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
)

// IFLA_VXLAN_* attribute kinds, nested inside IFLA_INFO_DATA when
// IFLA_INFO_KIND is "vxlan".
const (
	IFLA_VXLAN_UNSPEC = 0
	IFLA_VXLAN_ID     = 1
	IFLA_VXLAN_GROUP  = 2
	IFLA_VXLAN_PORT   = 15
)

// InfoVxlan is the IFLA_INFO_DATA payload for a VXLAN link.
type InfoVxlan struct {
	ID uint32

	// Port is the UDP destination port VXLAN encapsulates onto, carried
	// big-endian on the wire (spec.md §4.3 property 10) since it mirrors
	// a UDP port field rather than a generic host-endian kernel integer.
	Port uint16
}

// ParseInfoVxlan decodes a VXLAN IFLA_INFO_DATA attribute set.
func ParseInfoVxlan(value []byte) (InfoVxlan, error) {
	attrs, err := nlattr.ParseAll(value)
	if err != nil {
		return InfoVxlan{}, err
	}
	var v InfoVxlan
	for _, a := range attrs {
		switch a.Kind {
		case IFLA_VXLAN_ID:
			if len(a.Value) < 4 {
				return InfoVxlan{}, fmt.Errorf("rtnl: IFLA_VXLAN_ID: short value")
			}
			v.ID = nlenc.Uint32(a.Value)
		case IFLA_VXLAN_PORT:
			if len(a.Value) < 2 {
				return InfoVxlan{}, fmt.Errorf("rtnl: IFLA_VXLAN_PORT: short value")
			}
			v.Port = nlenc.Uint16BE(a.Value)
		}
	}
	return v, nil
}

// EmitInfoVxlan encodes v as an IFLA_INFO_DATA attribute value.
func EmitInfoVxlan(v InfoVxlan) []byte {
	id := make([]byte, 4)
	nlenc.PutUint32(id, v.ID)
	port := make([]byte, 2)
	nlenc.PutUint16BE(port, v.Port)

	ms := []nlattr.Marshaler{
		nlattr.Default{AttrKind: IFLA_VXLAN_ID, Raw: id},
		nlattr.Default{AttrKind: IFLA_VXLAN_PORT, Raw: port},
	}
	dst := make([]byte, nlattr.TotalLen(ms))
	nlattr.EmitAll(dst, ms)
	return dst
}
