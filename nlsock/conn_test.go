package nlsock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mdlayher/gonl/nlmsg"
	"github.com/mdlayher/gonl/nlsock"
)

// fakeEndpoint is an in-memory Endpoint standing in for a real AF_NETLINK
// socket, the way the archival JSONL fixtures in the teacher package stand
// in for a live kernel during tests. SendTo deposits frames on outbox;
// ReceiveFrom blocks on inbox. Both unblock on Close.
type fakeEndpoint struct {
	local nlsock.Addr

	outbox chan []byte
	inbox  chan fakeFrame

	sendStarted chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

type fakeFrame struct {
	b    []byte
	from nlsock.Addr
}

// errFakeClosed is returned by the fake endpoint's blocking operations once
// Close has been called, standing in for the "unblocked by a closed fd"
// behavior of a real socket.
var errFakeClosed = errors.New("nlsock_test: fake endpoint closed")

func newFakeEndpoint(local nlsock.Addr) *fakeEndpoint {
	return &fakeEndpoint{
		local:       local,
		outbox:      make(chan []byte),
		inbox:       make(chan fakeFrame, 16),
		sendStarted: make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
}

func (f *fakeEndpoint) SendTo(b []byte, to nlsock.Addr) error {
	select {
	case f.sendStarted <- struct{}{}:
	default:
	}
	cp := append([]byte(nil), b...)
	select {
	case f.outbox <- cp:
		return nil
	case <-f.closed:
		return errFakeClosed
	}
}

func (f *fakeEndpoint) ReceiveFrom(b []byte) (n int, from nlsock.Addr, ok bool, err error) {
	select {
	case fr := <-f.inbox:
		n = copy(b, fr.b)
		return n, fr.from, true, nil
	case <-f.closed:
		return 0, nlsock.Addr{}, false, errFakeClosed
	}
}

func (f *fakeEndpoint) LocalAddr() nlsock.Addr { return f.local }

func (f *fakeEndpoint) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// deliver injects a reply frame as if it arrived from peer.
func (f *fakeEndpoint) deliver(peer nlsock.Addr, b []byte) {
	f.inbox <- fakeFrame{b: b, from: peer}
}

// rawPayload is the minimal Payload this test drives the multiplexer with.
type rawPayload struct {
	typ uint16
	b   []byte
}

func (p rawPayload) Len() int        { return len(p.b) }
func (p rawPayload) Emit(dst []byte) { copy(dst, p.b) }
func (p rawPayload) Type() uint16    { return p.typ }

func parseRaw(typ uint16, body []byte) (rawPayload, error) {
	cp := make([]byte, len(body))
	copy(cp, body)
	return rawPayload{typ: typ, b: cp}, nil
}

func encodeAck(seq uint32, to nlsock.Addr, errno int32) []byte {
	m := nlmsg.Message[rawPayload]{
		Header: nlmsg.Header{Sequence: seq, Port: to.Port},
		Control: nlmsg.Control{
			Kind:       nlmsg.KindAck,
			Code:       errno,
			HeaderEcho: make([]byte, nlmsg.HeaderLen),
		},
	}
	m.Header.Type = m.Control.Type()
	m.Header.Length = uint32(nlmsg.HeaderLen + m.Control.Len())
	buf := make([]byte, m.Header.Length)
	m.Header.Put(buf[:nlmsg.HeaderLen])
	m.Control.Emit(buf[nlmsg.HeaderLen:])
	return buf
}

func encodeFamilyFrame(seq uint32, typ uint16, multi bool, body []byte) []byte {
	flags := nlmsg.Flags(0)
	if multi {
		flags |= nlmsg.Multi
	}
	h := nlmsg.Header{
		Length:   uint32(nlmsg.HeaderLen + len(body)),
		Type:     typ,
		Flags:    flags,
		Sequence: seq,
	}
	buf := make([]byte, h.Length)
	h.Put(buf[:nlmsg.HeaderLen])
	copy(buf[nlmsg.HeaderLen:], body)
	return buf
}

func encodeDone(seq uint32) []byte {
	h := nlmsg.Header{
		Length:   nlmsg.HeaderLen,
		Type:     nlmsg.NLMSG_DONE,
		Flags:    nlmsg.Multi,
		Sequence: seq,
	}
	buf := make([]byte, h.Length)
	h.Put(buf)
	return buf
}

func TestRequestAckRoundTrip(t *testing.T) {
	ep := newFakeEndpoint(nlsock.Addr{Port: 1000})
	c := nlsock.NewConn[rawPayload](ep, "test", parseRaw)
	t.Cleanup(func() { c.Close() })

	go func() {
		raw := <-ep.outbox
		h, _, err := nlmsg.ParseHeaderAndBody(raw)
		if err != nil {
			t.Errorf("responder: ParseHeaderAndBody: %v", err)
			return
		}
		ep.deliver(nlsock.Kernel, encodeAck(h.Sequence, ep.local, 0))
	}()

	msg := nlmsg.NewRequest(rawPayload{typ: 16, b: []byte("hi")}, nlmsg.Ack)
	replies, err := c.Handle().Request(context.Background(), msg, nlsock.Kernel)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case r, ok := <-replies:
		if !ok {
			t.Fatal("reply channel closed with no reply")
		}
		if r.Err != nil {
			t.Fatalf("unexpected reply error: %v", r.Err)
		}
		if !r.Msg.IsControl() || r.Msg.Control.Kind != nlmsg.KindAck {
			t.Fatalf("got %+v, want an Ack", r.Msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	select {
	case _, ok := <-replies:
		if ok {
			t.Fatal("expected reply channel to be closed after the Ack")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply channel to close")
	}
}

func TestMultipartDumpTerminatesOnDone(t *testing.T) {
	ep := newFakeEndpoint(nlsock.Addr{Port: 2000})
	c := nlsock.NewConn[rawPayload](ep, "test", parseRaw)
	t.Cleanup(func() { c.Close() })

	go func() {
		raw := <-ep.outbox
		h, _, err := nlmsg.ParseHeaderAndBody(raw)
		if err != nil {
			t.Errorf("responder: ParseHeaderAndBody: %v", err)
			return
		}
		ep.deliver(nlsock.Kernel, encodeFamilyFrame(h.Sequence, 16, true, []byte("one")))
		ep.deliver(nlsock.Kernel, encodeFamilyFrame(h.Sequence, 16, true, []byte("two")))
		ep.deliver(nlsock.Kernel, encodeDone(h.Sequence))
	}()

	msg := nlmsg.NewRequest(rawPayload{typ: 18, b: nil}, nlmsg.Dump)
	replies, err := c.Handle().Request(context.Background(), msg, nlsock.Kernel)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	var got []string
	for r := range replies {
		if r.Err != nil {
			t.Fatalf("unexpected reply error: %v", r.Err)
		}
		if r.Msg.IsControl() {
			t.Fatalf("unexpected control frame delivered to caller: %+v", r.Msg.Control)
		}
		got = append(got, string(r.Msg.Payload.b))
	}

	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("got %v, want [one two]", got)
	}
}

func TestQueueFullRejectsSynchronously(t *testing.T) {
	ep := newFakeEndpoint(nlsock.Addr{Port: 3000})
	c := nlsock.NewConn[rawPayload](ep, "test", parseRaw, nlsock.WithRequestQueueLimit(1))
	t.Cleanup(func() { c.Close() })

	h := c.Handle()

	// Request A is submitted and its Send blocks forever, because nothing
	// ever drains ep.outbox in this test.
	go func() {
		_, _ = h.Request(context.Background(), nlmsg.NewRequest(rawPayload{typ: 16}, nlmsg.Ack), nlsock.Kernel)
	}()
	<-ep.sendStarted // the event loop is now blocked inside Send(A).

	// Request B fills the one remaining queue slot; give up waiting for its
	// result quickly, since the loop will never get back to it.
	bctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go func() { _, _ = h.Request(bctx, nlmsg.NewRequest(rawPayload{typ: 16}, nlmsg.Ack), nlsock.Kernel) }()
	time.Sleep(10 * time.Millisecond) // let B's synchronous enqueue happen.

	// Request C finds the queue full and must fail synchronously.
	_, err := h.Request(context.Background(), nlmsg.NewRequest(rawPayload{typ: 16}, nlmsg.Ack), nlsock.Kernel)
	if err != nlsock.ErrQueueFull {
		t.Fatalf("got err=%v, want ErrQueueFull", err)
	}
}
