package xfrmnl_test

import (
	"testing"

	"github.com/mdlayher/gonl/nlattr"
	"github.com/mdlayher/gonl/nlenc"
	"github.com/mdlayher/gonl/xfrmnl"
)

func TestParseSadInfoAttrs(t *testing.T) {
	cnt := make([]byte, 4)
	nlenc.PutUint32(cnt, 7)
	hinfo := make([]byte, 8)
	nlenc.PutUint32(hinfo[0:4], 128)
	nlenc.PutUint32(hinfo[4:8], 1024)

	attrs := []nlattr.Attr{
		{Kind: xfrmnl.XFRMA_SAD_CNT, Value: cnt},
		{Kind: xfrmnl.XFRMA_SAD_HINFO, Value: hinfo},
	}

	count, h, err := xfrmnl.ParseSadInfoAttrs(attrs)
	if err != nil {
		t.Fatalf("ParseSadInfoAttrs: %v", err)
	}
	if count != 7 {
		t.Fatalf("count = %d, want 7", count)
	}
	if h == nil || h.BucketCnt != 128 || h.IdxMax != 1024 {
		t.Fatalf("hinfo = %+v", h)
	}
}

func TestEmitPolicyID(t *testing.T) {
	sel := xfrmnl.Selector{Family: xfrmnl.AF_INET}
	buf := xfrmnl.EmitPolicyID(sel, 42, 0)
	if len(buf) == 0 {
		t.Fatal("EmitPolicyID returned empty buffer")
	}
}
