package nflog_test

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/mdlayher/gonl/nflog"
)

func TestMsgTypeCommandRoundTrip(t *testing.T) {
	typ := nflog.MsgType(nflog.NFULNL_MSG_PACKET)
	if nflog.Command(typ) != nflog.NFULNL_MSG_PACKET {
		t.Fatalf("Command(%x) = %d, want %d", typ, nflog.Command(typ), nflog.NFULNL_MSG_PACKET)
	}
}

func TestPacketRoundTrip(t *testing.T) {
	want := nflog.Packet{
		Header:    nflog.Header{Family: 2, Version: 0, ResID: 5},
		PacketHdr: &nflog.PacketHdr{HwProtocol: 0x0800, Hook: 1},
		Timestamp: &nflog.TimeStamp{Sec: 1700000000, Usec: 500},
		Prefix:    "DROP",
		Payload:   []byte{1, 2, 3, 4},
	}

	encoded := nflog.EmitPacket(want)
	got, err := nflog.ParsePacket(encoded)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}

	if got.Header.ResID != want.Header.ResID {
		t.Fatalf("ResID = %d, want %d", got.Header.ResID, want.Header.ResID)
	}
	if diff := deep.Equal(*got.PacketHdr, *want.PacketHdr); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(*got.Timestamp, *want.Timestamp); diff != nil {
		t.Error(diff)
	}
	if got.Prefix != want.Prefix {
		t.Fatalf("Prefix = %q, want %q", got.Prefix, want.Prefix)
	}
	if diff := deep.Equal(got.Payload, want.Payload); diff != nil {
		t.Error(diff)
	}
}

// TestTimestampBigEndian pins down the property that distinguishes this
// family's timestamp attribute from nearly every other netlink integer:
// both halves are carried big-endian even though they are plain counters.
func TestTimestampBigEndian(t *testing.T) {
	ts := nflog.TimeStamp{Sec: 1, Usec: 0}
	p := nflog.Packet{Header: nflog.Header{Family: 2}, Timestamp: &ts}
	encoded := nflog.EmitPacket(p)

	// header(4) + attr header(4) -> value starts at byte 8; Sec=1 as an
	// 8-byte big-endian integer ends in 0x01 at the last byte.
	value := encoded[8 : 8+16]
	if value[7] != 0x01 {
		t.Fatalf("Sec bytes = %v, want big-endian 1", value[:8])
	}
}

func TestConfigRoundTrip(t *testing.T) {
	want := nflog.Config{
		Header:   nflog.Header{Family: 2, ResID: 1},
		Cmd:      nflog.NFULNL_CFG_CMD_BIND,
		NlBufSiz: 131072,
		QThresh:  100,
	}
	encoded := nflog.EmitConfig(want)
	got, err := nflog.ParseConfig(encoded)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if got.Cmd != want.Cmd || got.NlBufSiz != want.NlBufSiz || got.QThresh != want.QThresh {
		t.Fatalf("got = %+v, want %+v", got, want)
	}
}
