package rtnl_test

import (
	"errors"
	"testing"

	"github.com/go-test/deep"
	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/rtnl"
)

func TestLinkHeaderRoundTrip(t *testing.T) {
	h := rtnl.LinkHeader{Family: 0, Type: 1, Index: 3, Flags: 0x10043, Change: 0xffffffff}
	buf := make([]byte, 16)
	h.Put(buf)
	got, err := rtnl.ParseLinkHeader(buf)
	if err != nil {
		t.Fatalf("ParseLinkHeader: %v", err)
	}
	if diff := deep.Equal(got, h); diff != nil {
		t.Error(diff)
	}
}

func TestLinkInfoVlanRoundTrip(t *testing.T) {
	want := rtnl.InfoVlan{ID: 100, Protocol: 0x8100}
	encoded := rtnl.EmitInfoVlan(want)
	got, err := rtnl.ParseInfoVlan(encoded)
	if err != nil {
		t.Fatalf("ParseInfoVlan: %v", err)
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}

	// The protocol field must be big-endian on the wire: 0x8100 encodes as
	// bytes [0x81, 0x00], never [0x00, 0x81].
	raw, err := nlattr.ParseAll(encoded)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	for _, a := range raw {
		if a.Kind == rtnl.IFLA_VLAN_PROTOCOL {
			if a.Value[0] != 0x81 || a.Value[1] != 0x00 {
				t.Fatalf("IFLA_VLAN_PROTOCOL bytes = %v, want [0x81 0x00]", a.Value)
			}
		}
	}
}

func TestLinkInfoVxlanRoundTrip(t *testing.T) {
	want := rtnl.InfoVxlan{ID: 42, Port: 4789}
	encoded := rtnl.EmitInfoVxlan(want)
	got, err := rtnl.ParseInfoVxlan(encoded)
	if err != nil {
		t.Fatalf("ParseInfoVxlan: %v", err)
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

// TestLinkInfoKindThenDataDependency exercises scenario E: IFLA_INFO_DATA
// cannot be interpreted without having first seen IFLA_INFO_KIND, and the
// two attributes must be parsed together rather than independently.
func TestLinkInfoKindThenDataDependency(t *testing.T) {
	want := rtnl.LinkInfo{Kind: "vxlan", Vxlan: &rtnl.InfoVxlan{ID: 7, Port: 4789}}
	encoded := rtnl.EmitLinkInfo(want)

	got, err := rtnl.ParseLinkInfo(encoded)
	if err != nil {
		t.Fatalf("ParseLinkInfo: %v", err)
	}
	if got.Kind != "vxlan" {
		t.Fatalf("Kind = %q, want vxlan", got.Kind)
	}
	if got.Vxlan == nil {
		t.Fatal("Vxlan = nil, want a decoded InfoVxlan")
	}
	if diff := deep.Equal(*got.Vxlan, *want.Vxlan); diff != nil {
		t.Error(diff)
	}
}

// TestLinkInfoDataBeforeKindIsError exercises the other half of scenario
// E: swapping the wire order (IFLA_INFO_DATA before IFLA_INFO_KIND) must be
// a decode error, not a silent best-effort decode.
func TestLinkInfoDataBeforeKindIsError(t *testing.T) {
	data := rtnl.EmitInfoVxlan(rtnl.InfoVxlan{ID: 7, Port: 4789})
	kind := append([]byte("vxlan"), 0)

	ms := []nlattr.Marshaler{
		nlattr.Default{AttrKind: rtnl.IFLA_INFO_DATA, Raw: data},
		nlattr.Default{AttrKind: rtnl.IFLA_INFO_KIND, Raw: kind},
	}
	encoded := make([]byte, nlattr.TotalLen(ms))
	nlattr.EmitAll(encoded, ms)

	_, err := rtnl.ParseLinkInfo(encoded)
	if !errors.Is(err, rtnl.ErrDataBeforeKind) {
		t.Fatalf("ParseLinkInfo error = %v, want ErrDataBeforeKind", err)
	}
}

func TestLinkInfoUnknownKindPreservesRaw(t *testing.T) {
	want := rtnl.LinkInfo{Kind: "bridge", Raw: []byte{1, 2, 3, 4}}
	encoded := rtnl.EmitLinkInfo(want)

	got, err := rtnl.ParseLinkInfo(encoded)
	if err != nil {
		t.Fatalf("ParseLinkInfo: %v", err)
	}
	if got.Kind != "bridge" {
		t.Fatalf("Kind = %q, want bridge", got.Kind)
	}
	if diff := deep.Equal(got.Raw, want.Raw); diff != nil {
		t.Error(diff)
	}
}

func TestParsePayloadGetLinkRequest(t *testing.T) {
	h := rtnl.LinkHeader{Family: 0}
	hdr := make([]byte, 16)
	h.Put(hdr)

	nameAttr := make([]byte, nlattr.EncodedLen(5))
	nlattr.EmitOne(nameAttr, rtnl.IFLA_IFNAME, false, false, append([]byte("eth0"), 0))

	body := append(hdr, nameAttr...)
	p, err := rtnl.ParsePayload(rtnl.RTM_GETLINK, body)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(p.Attrs) != 1 || p.Attrs[0].Kind != rtnl.IFLA_IFNAME {
		t.Fatalf("got %+v", p.Attrs)
	}
}
