package nlsock

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mdlayher/gonl/nlmsg"
	"github.com/mdlayher/gonl/nlsock/metrics"
)

// defaultMaxFrame is the receive buffer size: large enough to hold a full
// page of multipart dump output, matching the size the kernel itself uses
// as its netlink datagram chunk size.
const defaultMaxFrame = 1 << 16

// Received is one frame read off the wire, already split into its header
// (always valid, since a header-level decode failure is connection-fatal
// and never reaches this channel) and its parsed body. BodyErr is set, with
// Msg left nil, when the payload itself failed to parse (an unknown family
// quirk, a truncated attribute list) — the frame's header is still usable
// for routing the failure to the right pending request.
type Received[T nlmsg.Payload] struct {
	Header  nlmsg.Header
	From    Addr
	Msg     *nlmsg.Message[T]
	BodyErr error
}

// Framed turns an Endpoint's raw datagrams into a channel of parsed
// messages, plus a synchronous Send. It owns exactly one reader goroutine;
// the caller (Conn's event loop) is the only writer, so Send needs no
// internal queue of its own — the one "buffered outgoing frame" the design
// calls for is simply the caller's own single in-flight call to Send.
type Framed[T nlmsg.Payload] struct {
	ep            Endpoint
	parsePayload  func(typ uint16, body []byte) (T, error)
	family        string
	overrunPolicy OverrunPolicy

	recvc chan Received[T]
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	fatalErr error
}

// NewFramed starts a reader goroutine over ep and returns a Framed ready to
// use. family is a short label (e.g. "route", "generic") attached to
// metrics. policy governs what happens when ep.ReceiveFrom reports a
// receive buffer overrun (ENOBUFS): OverrunTerminate ends the reader loop
// (the Conn owning this Framed then fails every pending request);
// OverrunContinue logs and keeps reading.
func NewFramed[T nlmsg.Payload](ep Endpoint, family string, parsePayload func(typ uint16, body []byte) (T, error), policy OverrunPolicy) *Framed[T] {
	f := &Framed[T]{
		ep:            ep,
		parsePayload:  parsePayload,
		family:        family,
		overrunPolicy: policy,
		recvc:         make(chan Received[T]),
		done:          make(chan struct{}),
	}
	f.wg.Add(1)
	go f.readLoop()
	return f
}

// Recv returns the channel of parsed frames. It is closed once the
// underlying endpoint fails or is closed; callers should check Err()
// afterwards to distinguish a clean shutdown from a transport failure.
func (f *Framed[T]) Recv() <-chan Received[T] { return f.recvc }

// Err returns the fatal transport or header-decode error that ended the
// reader loop, or nil if Recv's channel closed because Close was called.
func (f *Framed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fatalErr
}

func (f *Framed[T]) setFatal(err error) {
	f.mu.Lock()
	f.fatalErr = err
	f.mu.Unlock()
}

func (f *Framed[T]) readLoop() {
	defer f.wg.Done()
	defer close(f.recvc)

	buf := make([]byte, defaultMaxFrame)
	for {
		start := time.Now()
		n, from, _, err := f.ep.ReceiveFrom(buf)
		metrics.SyscallLatencyHistogram.WithLabelValues("recv").Observe(time.Since(start).Seconds())
		if err != nil {
			if errors.Is(err, ErrOverrun) {
				metrics.OverrunTotal.WithLabelValues(f.family, overrunPolicyLabel(f.overrunPolicy)).Inc()
				if f.overrunPolicy == OverrunContinue {
					log.Printf("nlsock: %s: receive buffer overrun, continuing per policy", f.family)
					continue
				}
			}
			select {
			case <-f.done:
				// Close() caused this failure; not a real transport error.
			default:
				f.setFatal(err)
			}
			return
		}

		h, body, err := nlmsg.ParseHeaderAndBody(buf[:n])
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues(f.family, "header").Inc()
			f.setFatal(fmt.Errorf("nlsock: fatal header decode error: %w", err))
			return
		}

		msg, perr := nlmsg.ParseBody(h, body, f.parsePayload)
		if perr != nil {
			metrics.DecodeErrorsTotal.WithLabelValues(f.family, "body").Inc()
		}

		select {
		case f.recvc <- Received[T]{Header: h, From: from, Msg: msg, BodyErr: perr}:
		case <-f.done:
			return
		}
	}
}

// Send finalizes and writes msg to the given peer. It blocks until the
// kernel accepts the datagram.
func (f *Framed[T]) Send(msg *nlmsg.Message[T], to Addr) error {
	msg.Finalize()
	buf := make([]byte, msg.Header.Length)
	msg.Emit(buf)

	start := time.Now()
	err := f.ep.SendTo(buf, to)
	metrics.SyscallLatencyHistogram.WithLabelValues("send").Observe(time.Since(start).Seconds())
	return err
}

// Close unblocks the reader goroutine and releases the endpoint. It is safe
// to call more than once.
func (f *Framed[T]) Close() error {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	err := f.ep.Close()
	f.wg.Wait()
	return err
}
