package genl_test

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/mdlayher/gonl/genl"
	"github.com/mdlayher/gonl/nlattr"
)

func TestPayloadRoundTrip(t *testing.T) {
	attrs := []nlattr.Attr{
		{Kind: genl.CTRL_ATTR_FAMILY_NAME, Value: append([]byte("wireguard"), 0)},
	}
	p := genl.NewPayload(genl.ControllerFamilyID, genl.CTRL_CMD_GETFAMILY, 1, attrs)

	buf := make([]byte, p.Len())
	p.Emit(buf)

	got, err := genl.ParsePayload(genl.ControllerFamilyID, buf)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if got.Header.Command != genl.CTRL_CMD_GETFAMILY || got.Header.Version != 1 {
		t.Fatalf("header = %+v", got.Header)
	}
	if diff := deep.Equal(got.Attrs, attrs); diff != nil {
		t.Error(diff)
	}
}

func TestParseFamilyID(t *testing.T) {
	id := make([]byte, 2)
	id[0], id[1] = 0x10, 0x00
	attrs := []nlattr.Attr{{Kind: genl.CTRL_ATTR_FAMILY_ID, Value: id}}

	got, err := genl.ParseFamilyID(attrs)
	if err != nil {
		t.Fatalf("ParseFamilyID: %v", err)
	}
	if got != 0x10 {
		t.Fatalf("family id = %d, want 16", got)
	}
}

func TestParseFamilyIDMissing(t *testing.T) {
	if _, err := genl.ParseFamilyID(nil); err == nil {
		t.Fatal("expected error for missing CTRL_ATTR_FAMILY_ID")
	}
}
