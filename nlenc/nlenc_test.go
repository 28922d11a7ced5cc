package nlenc_test

import (
	"testing"

	"github.com/mdlayher/gonl/nlenc"
)

func TestNativeEndianRoundTrip(t *testing.T) {
	b16 := make([]byte, 2)
	nlenc.PutUint16(b16, 0xABCD)
	if got := nlenc.Uint16(b16); got != 0xABCD {
		t.Fatalf("Uint16 = %#x, want 0xABCD", got)
	}

	b32 := make([]byte, 4)
	nlenc.PutUint32(b32, 0xDEADBEEF)
	if got := nlenc.Uint32(b32); got != 0xDEADBEEF {
		t.Fatalf("Uint32 = %#x, want 0xDEADBEEF", got)
	}

	b64 := make([]byte, 8)
	nlenc.PutUint64(b64, 0x0102030405060708)
	if got := nlenc.Uint64(b64); got != 0x0102030405060708 {
		t.Fatalf("Uint64 = %#x, want 0x0102030405060708", got)
	}

	bi32 := make([]byte, 4)
	nlenc.PutInt32(bi32, -1)
	if got := nlenc.Int32(bi32); got != -1 {
		t.Fatalf("Int32 = %d, want -1", got)
	}
}

func TestBigEndianRoundTrip(t *testing.T) {
	b16 := make([]byte, 2)
	nlenc.PutUint16BE(b16, 443)
	if b16[0] != 0x01 || b16[1] != 0xBB {
		t.Fatalf("PutUint16BE bytes = %#v, want [0x01 0xBB]", b16)
	}
	if got := nlenc.Uint16BE(b16); got != 443 {
		t.Fatalf("Uint16BE = %d, want 443", got)
	}

	b32 := make([]byte, 4)
	nlenc.PutUint32BE(b32, 0x01020304)
	if b32[0] != 0x01 || b32[3] != 0x04 {
		t.Fatalf("PutUint32BE bytes = %#v, want leading 0x01", b32)
	}
	if got := nlenc.Uint32BE(b32); got != 0x01020304 {
		t.Fatalf("Uint32BE = %#x, want 0x01020304", got)
	}

	b64 := make([]byte, 8)
	nlenc.PutUint64BE(b64, 1)
	if b64[7] != 0x01 {
		t.Fatalf("PutUint64BE bytes = %#v, want trailing 0x01", b64)
	}
	if got := nlenc.Uint64BE(b64); got != 1 {
		t.Fatalf("Uint64BE = %d, want 1", got)
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want int }{
		{0, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 4, 8},
		{17, 4, 20},
	}
	for _, c := range cases {
		if got := nlenc.AlignUp(c.n, c.align); got != c.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c.n, c.align, got, c.want)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	b := make([]byte, nlenc.StringLen("wg0"))
	nlenc.PutString(b, "wg0")
	if got := nlenc.String(b); got != "wg0" {
		t.Fatalf("String = %q, want %q", got, "wg0")
	}
}

func TestStringStopsAtFirstNUL(t *testing.T) {
	b := []byte{'e', 't', 'h', 0, 'x', 'x'}
	if got := nlenc.String(b); got != "eth" {
		t.Fatalf("String = %q, want %q", got, "eth")
	}
}

func TestNewBufferChecked(t *testing.T) {
	if _, err := nlenc.NewBufferChecked([]byte{1, 2, 3}, 4); err == nil {
		t.Fatal("expected ShortBufferError, got nil")
	}

	buf, err := nlenc.NewBufferChecked([]byte{1, 2, 3, 4}, 4)
	if err != nil {
		t.Fatalf("NewBufferChecked: %v", err)
	}
	if buf.Len() != 4 {
		t.Fatalf("Len = %d, want 4", buf.Len())
	}
	if got := buf.Slice(1, 3); got[0] != 2 || got[1] != 3 {
		t.Fatalf("Slice(1, 3) = %#v, want [2 3]", got)
	}
}
