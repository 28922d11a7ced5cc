package sockdiag_test

import (
	"net"
	"testing"

	"github.com/go-test/deep"
	"github.com/mdlayher/gonl/sockdiag"
)

func TestReqEmitSockID(t *testing.T) {
	req := sockdiag.Req{
		Family:   2,
		Protocol: 6,
		States:   0xffffffff,
		ID: sockdiag.SockID{
			SrcPort: 443,
			DstPort: 51000,
			Src:     net.ParseIP("10.0.0.1").To4(),
			Dst:     net.ParseIP("10.0.0.2").To4(),
		},
	}
	buf := sockdiag.EmitReq(req)

	// Port fields are big-endian on the wire: 443 is 0x01BB.
	if buf[8] != 0x01 || buf[9] != 0xBB {
		t.Fatalf("SrcPort bytes = %v, want [0x01 0xBB]", buf[8:10])
	}
}

func TestParsePayloadRoundTrip(t *testing.T) {
	req := sockdiag.Req{
		Family: 2,
		ID: sockdiag.SockID{
			SrcPort: 22,
			DstPort: 12345,
			Src:     net.ParseIP("127.0.0.1").To4(),
			Dst:     net.ParseIP("127.0.0.2").To4(),
			Cookie:  0xdeadbeef,
		},
	}
	reqBuf := sockdiag.EmitReq(req)

	// A response body shares the same sock-id layout past its own
	// 4-byte state header; reuse the request encoding to build one.
	body := make([]byte, 4+len(reqBuf[8:]))
	body[0] = 2 // family
	copy(body[4:], reqBuf[8:])
	body = append(body, make([]byte, 20)...) // expires/rqueue/wqueue/uid/inode

	msg, err := sockdiag.ParsePayload(sockdiag.SOCK_DIAG_BY_FAMILY, body)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if msg.ID.SrcPort != 22 || msg.ID.DstPort != 12345 {
		t.Fatalf("ports = %+v", msg.ID)
	}
	if diff := deep.Equal(msg.ID.Src, req.ID.Src); diff != nil {
		t.Error(diff)
	}
	if msg.ID.Cookie != 0xdeadbeef {
		t.Fatalf("cookie = %x, want deadbeef", msg.ID.Cookie)
	}
}

func TestHostCondRoundTripV4(t *testing.T) {
	want := sockdiag.HostCond{
		Family:    sockdiag.AF_INET,
		PrefixLen: 24,
		Port:      443,
		Addr:      net.ParseIP("10.0.0.1").To4(),
	}
	encoded := sockdiag.EmitHostCond(want)
	if len(encoded) != 10 {
		t.Fatalf("len(encoded) = %d, want 10", len(encoded))
	}
	// Port is a 4-byte big-endian field: 443 is 0x000001BB.
	if encoded[2] != 0x00 || encoded[3] != 0x00 || encoded[4] != 0x01 || encoded[5] != 0xBB {
		t.Fatalf("port bytes = %v, want [0x00 0x00 0x01 0xBB]", encoded[2:6])
	}

	got, err := sockdiag.ParseHostCond(encoded)
	if err != nil {
		t.Fatalf("ParseHostCond: %v", err)
	}
	if got.Family != want.Family || got.PrefixLen != want.PrefixLen || got.Port != want.Port {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if diff := deep.Equal(got.Addr, want.Addr); diff != nil {
		t.Error(diff)
	}
}

func TestHostCondRoundTripV6(t *testing.T) {
	want := sockdiag.HostCond{
		Family:    sockdiag.AF_INET6,
		PrefixLen: 64,
		Port:      22,
		Addr:      net.ParseIP("2001:db8::1"),
	}
	encoded := sockdiag.EmitHostCond(want)
	if len(encoded) != 22 {
		t.Fatalf("len(encoded) = %d, want 22", len(encoded))
	}

	got, err := sockdiag.ParseHostCond(encoded)
	if err != nil {
		t.Fatalf("ParseHostCond: %v", err)
	}
	if got.Family != want.Family || got.PrefixLen != want.PrefixLen || got.Port != want.Port {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if diff := deep.Equal(got.Addr, want.Addr); diff != nil {
		t.Error(diff)
	}
}

func TestParseMemInfo(t *testing.T) {
	var b [36]byte
	b[3] = 1 // RmemAlloc = 0x01000000 little-endian... use PutUint32 indirectly via parse only
	mi, err := sockdiag.ParseMemInfo(b[:])
	if err != nil {
		t.Fatalf("ParseMemInfo: %v", err)
	}
	_ = mi
}
