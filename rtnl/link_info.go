package rtnl

import (
	"errors"
	"fmt"

	"github.com/mdlayher/gonl/nlattr"
)

// ErrDataBeforeKind is returned by ParseLinkInfo when IFLA_INFO_DATA
// appears in the attribute stream before IFLA_INFO_KIND has been seen.
var ErrDataBeforeKind = errors.New("rtnl: IFLA_INFO_DATA is not preceded by an IFLA_INFO_KIND")

// Top-level link attribute kinds relevant to link-info parsing.
const (
	IFLA_ADDRESS  = 1
	IFLA_IFNAME   = 3
	IFLA_MTU      = 4
	IFLA_LINKINFO = 18
)

// IFLA_INFO_* nested attribute kinds carried inside IFLA_LINKINFO.
const (
	IFLA_INFO_UNSPEC     = 0
	IFLA_INFO_KIND       = 1
	IFLA_INFO_DATA       = 2
	IFLA_INFO_XSTATS     = 3
	IFLA_INFO_SLAVE_KIND = 4
	IFLA_INFO_SLAVE_DATA = 5
)

// LinkInfo is the decoded content of an IFLA_LINKINFO attribute: the kind
// string identifying the link type, and the kind-specific data attached to
// it (Vlan/Vxlan below; other kinds are preserved as opaque bytes in Raw).
type LinkInfo struct {
	Kind string
	Vlan *InfoVlan
	Vxlan *InfoVxlan
	Raw  []byte // IFLA_INFO_DATA bytes, present whenever Kind has no dedicated struct above
}

// ParseLinkInfo decodes the nested attribute set carried by IFLA_LINKINFO.
// This is the package's one stateful, single-pass walk with an order check
// (spec.md Design Notes §9, scenario E): IFLA_INFO_KIND must be parsed
// before IFLA_INFO_DATA can be interpreted, since the kind string selects
// DATA's layout. Every known kernel version emits KIND before DATA; this
// function enforces that order rather than merely relying on it, the same
// way the source errors on an out-of-order pair instead of silently
// accepting it.
func ParseLinkInfo(value []byte) (LinkInfo, error) {
	attrs, err := nlattr.ParseAll(value)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("rtnl: IFLA_LINKINFO: %w", err)
	}

	var info LinkInfo
	var dataValue []byte
	haveKind := false
	haveData := false

	for _, a := range attrs {
		switch a.Kind {
		case IFLA_INFO_KIND:
			info.Kind = nlenc0Terminated(a.Value)
			haveKind = true
		case IFLA_INFO_DATA:
			if !haveKind {
				return LinkInfo{}, ErrDataBeforeKind
			}
			dataValue = a.Value
			haveData = true
		}
	}

	if !haveData {
		return info, nil
	}
	return decodeInfoData(info, dataValue)
}

func decodeInfoData(info LinkInfo, value []byte) (LinkInfo, error) {
	switch info.Kind {
	case "vlan":
		v, err := ParseInfoVlan(value)
		if err != nil {
			return LinkInfo{}, fmt.Errorf("rtnl: IFLA_INFO_DATA (kind=vlan): %w", err)
		}
		info.Vlan = &v
	case "vxlan":
		v, err := ParseInfoVxlan(value)
		if err != nil {
			return LinkInfo{}, fmt.Errorf("rtnl: IFLA_INFO_DATA (kind=vxlan): %w", err)
		}
		info.Vxlan = &v
	default:
		raw := make([]byte, len(value))
		copy(raw, value)
		info.Raw = raw
	}
	return info, nil
}

// EmitLinkInfo encodes a LinkInfo back into an IFLA_LINKINFO attribute
// value (the nested IFLA_INFO_KIND/IFLA_INFO_DATA pair).
func EmitLinkInfo(info LinkInfo) []byte {
	var ms []nlattr.Marshaler
	kind := append([]byte(info.Kind), 0)
	ms = append(ms, nlattr.Default{AttrKind: IFLA_INFO_KIND, Raw: kind})

	switch {
	case info.Vlan != nil:
		ms = append(ms, nlattr.Default{AttrKind: IFLA_INFO_DATA, Raw: EmitInfoVlan(*info.Vlan)})
	case info.Vxlan != nil:
		ms = append(ms, nlattr.Default{AttrKind: IFLA_INFO_DATA, Raw: EmitInfoVxlan(*info.Vxlan)})
	case info.Raw != nil:
		ms = append(ms, nlattr.Default{AttrKind: IFLA_INFO_DATA, Raw: info.Raw})
	}

	dst := make([]byte, nlattr.TotalLen(ms))
	nlattr.EmitAll(dst, ms)
	return dst
}

// nlenc0Terminated trims a single trailing NUL byte off a string attribute
// value, the convention netlink uses for string attributes (spec.md
// scenario B).
func nlenc0Terminated(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		return string(b[:n-1])
	}
	return string(b)
}
