package nlattr_test

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/mdlayher/gonl/nlattr"
)

func init() {
	deep.CompareUnexportedFields = true
}

// TestEmitOneNulTerminatedString reproduces the emit trace from scenario B
// of the testable-properties document: kind=3, value="qemu-br1\0".
func TestEmitOneNulTerminatedString(t *testing.T) {
	value := append([]byte("qemu-br1"), 0)
	dst := make([]byte, nlattr.EncodedLen(len(value)))
	n := nlattr.EmitOne(dst, 3, false, false, value)
	if n != 16 {
		t.Fatalf("wrote %d bytes, want 16", n)
	}
	want := []byte{
		0x0d, 0x00, 0x03, 0x00,
		'q', 'e', 'm', 'u', '-', 'b', 'r', '1', 0x00,
		0x00, 0x00, 0x00,
	}
	if diff := deep.Equal(dst, want); diff != nil {
		t.Error(diff)
	}
}

func TestIterRoundTrip(t *testing.T) {
	attrs := []nlattr.Attr{
		{Kind: 1, Value: []byte("veth0\x00")},
		{Kind: 2, Value: []byte{1, 2, 3, 4}},
	}
	var buf []byte
	for _, a := range attrs {
		tmp := make([]byte, nlattr.EncodedLen(len(a.Value)))
		nlattr.EmitOne(tmp, a.Kind, a.Nested, a.NetOrder, a.Value)
		buf = append(buf, tmp...)
	}

	got, err := nlattr.ParseAll(buf)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(got) != len(attrs) {
		t.Fatalf("got %d attrs, want %d", len(got), len(attrs))
	}
	for i := range attrs {
		if got[i].Kind != attrs[i].Kind {
			t.Errorf("attr %d: kind = %d, want %d", i, got[i].Kind, attrs[i].Kind)
		}
		if diff := deep.Equal(got[i].Value, attrs[i].Value); diff != nil {
			t.Errorf("attr %d: %v", i, diff)
		}
	}
}

func TestIterTerminatesOnMalformedLength(t *testing.T) {
	// length field (6) claims more bytes than remain.
	buf := []byte{0x06, 0x00, 0x01, 0x00}
	it := nlattr.NewIter(buf)
	if it.Next() {
		t.Fatal("Next() should not succeed on truncated attribute")
	}
	if it.Err() == nil {
		t.Fatal("expected a decode error")
	}
}

func TestIterStopsOnShortRemainder(t *testing.T) {
	// Only 3 bytes remain: shorter than a 4 byte header, so iteration ends
	// cleanly without an error (property 5: termination, not necessarily error).
	buf := []byte{0x00, 0x00, 0x00}
	it := nlattr.NewIter(buf)
	if it.Next() {
		t.Fatal("Next() should not succeed with fewer than 4 bytes remaining")
	}
	if it.Err() != nil {
		t.Fatalf("unexpected error: %v", it.Err())
	}
}

func TestAlignment(t *testing.T) {
	ms := []nlattr.Marshaler{
		nlattr.Default{AttrKind: 1, Raw: []byte{1}},
		nlattr.Default{AttrKind: 2, Raw: []byte{1, 2, 3, 4, 5}},
	}
	total := nlattr.TotalLen(ms)
	if total%4 != 0 {
		t.Fatalf("total length %d is not 4-byte aligned", total)
	}
	dst := make([]byte, total)
	n := nlattr.EmitAll(dst, ms)
	if n != total {
		t.Fatalf("EmitAll wrote %d, want %d", n, total)
	}

	got, err := nlattr.ParseAll(dst)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d attrs, want 2", len(got))
	}
	if got[1].Kind != 2 || string(got[1].Value) != "\x01\x02\x03\x04\x05" {
		t.Errorf("second attribute decoded wrong: %+v", got[1])
	}
}

func TestDefaultRoundTripsUnknownKind(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
	d := nlattr.Default{AttrKind: 99, Raw: raw}
	dst := make([]byte, nlattr.EncodedLen(d.ValueLen()))
	nlattr.Emit(dst, d)

	got, err := nlattr.ParseAll(dst)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d attrs, want 1", len(got))
	}
	reparsed := nlattr.ParseDefault(got[0])
	if diff := deep.Equal(reparsed, d); diff != nil {
		t.Error(diff)
	}
}
