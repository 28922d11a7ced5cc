package nlsock

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/mdlayher/gonl/nlmsg"
	"github.com/mdlayher/gonl/nlsock/metrics"
)

// Sentinel errors returned by Handle.Request and surfaced through a
// request's reply channel when a connection ends.
var (
	// ErrClosed is returned by Request, or delivered as a pending
	// request's terminal error, once the connection has been closed.
	ErrClosed = errors.New("nlsock: connection closed")

	// ErrQueueFull is returned synchronously by Request when the
	// buffered-request queue (see WithRequestQueueLimit) has no free slot.
	// The caller submitted nothing; it is free to retry.
	ErrQueueFull = errors.New("nlsock: buffered request queue is full")

	// ErrOverrun is delivered to every pending request when the overrun
	// policy is OverrunTerminate and the socket reports a receive buffer
	// overrun (ENOBUFS), or an explicit NLMSG_OVERRUN control frame
	// arrives. See WithOverrunPolicy.
	ErrOverrun = errors.New("nlsock: receive buffer overrun, a multipart dump or reply may be incomplete")
)

// OverrunPolicy selects what happens when the kernel reports that this
// socket's receive buffer overflowed and some messages were dropped before
// userspace could read them (spec.md §9, Open Question: overrun handling).
type OverrunPolicy int

const (
	// OverrunTerminate closes the connection and fails every pending
	// request with ErrOverrun. This is the safe default: after an
	// overrun, the multiplexer cannot know whether a dump it was midway
	// through delivering is missing frames.
	OverrunTerminate OverrunPolicy = iota

	// OverrunContinue logs the condition, increments a metric, and keeps
	// the connection alive. Pending requests are left untouched; a
	// caller relying on this policy accepts that a multipart dump may
	// silently be missing frames.
	OverrunContinue
)

// Config holds the tunables Conn accepts via Option. The zero Config is not
// valid; use NewConn, which applies DefaultRequestQueueLimit and
// OverrunTerminate before running the supplied options.
type Config struct {
	OverrunPolicy     OverrunPolicy
	RequestQueueLimit int
	NotifyBuffer      int
}

// DefaultRequestQueueLimit bounds the number of requests a Conn will accept
// ahead of the multiplexer's event loop before rejecting new submissions
// synchronously. It matches the capacity the connection this design is
// ported from reserves for its outgoing request queue.
const DefaultRequestQueueLimit = 1024

// DefaultNotifyBuffer bounds the channel of unsolicited (multicast group,
// or unmatched-sequence) messages delivered via Conn.Notifications.
const DefaultNotifyBuffer = 64

// Option configures a Conn at construction time.
type Option func(*Config)

// WithOverrunPolicy overrides the default (OverrunTerminate).
func WithOverrunPolicy(p OverrunPolicy) Option {
	return func(c *Config) { c.OverrunPolicy = p }
}

// WithRequestQueueLimit overrides DefaultRequestQueueLimit.
func WithRequestQueueLimit(n int) Option {
	return func(c *Config) { c.RequestQueueLimit = n }
}

// WithNotifyBuffer overrides DefaultNotifyBuffer.
func WithNotifyBuffer(n int) Option {
	return func(c *Config) { c.NotifyBuffer = n }
}

// Reply is one item delivered on a request's reply channel: either a
// decoded message, or a terminal error (a malformed body, an overrun, or
// the connection closing) after which the channel is closed.
type Reply[T nlmsg.Payload] struct {
	Msg *nlmsg.Message[T]
	Err error
}

type pendingKey struct {
	peer Addr
	seq  uint32
}

type pendingReq[T nlmsg.Payload] struct {
	out chan Reply[T]
}

// submission is how Handle.Request hands a message to the event loop: the
// loop owns sequence assignment and pending-table registration exclusively,
// so every other piece of state touches it only through this channel.
type submission[T nlmsg.Payload] struct {
	msg    *nlmsg.Message[T]
	to     Addr
	result chan submitResult[T]
}

type submitResult[T nlmsg.Payload] struct {
	reply <-chan Reply[T]
	err   error
}

// Conn is the asynchronous netlink connection multiplexer: a single event
// loop goroutine that owns the sequence counter and the pending-request
// table, reads frames from a Framed transport, and dispatches each one to
// the request that is awaiting it (or to the notifications channel, if
// none is). This is the Go rendering of the connection task described in
// the design this package ports from: where that design drives a
// hand-written futures state machine from a single poll() call, Go already
// gives every blocking operation its own goroutine, so the equivalent
// structure here is one loop goroutine fed by channels instead of a single
// function repeatedly polled.
type Conn[T nlmsg.Payload] struct {
	family string
	framed *Framed[T]
	local  Addr
	cfg    Config

	submitc chan *submission[T]
	notifyc chan *nlmsg.Message[T]
	closec  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	// seq is the request sequence counter. It is touched only by the
	// event loop goroutine (run, via handleSubmit), matching the
	// pending table's single-owner discipline.
	seq uint32
}

// nextSeq returns the next sequence number. Must only be called from the
// event loop goroutine.
func (c *Conn[T]) nextSeq() uint32 {
	c.seq++
	return c.seq
}

// NewConn starts a Conn over ep. parsePayload decodes family payloads out of
// non-control frames; family is a short label used in metrics and log
// lines (e.g. "route", "generic", "sock_diag").
func NewConn[T nlmsg.Payload](ep Endpoint, family string, parsePayload func(typ uint16, body []byte) (T, error), opts ...Option) *Conn[T] {
	cfg := Config{
		OverrunPolicy:     OverrunTerminate,
		RequestQueueLimit: DefaultRequestQueueLimit,
		NotifyBuffer:      DefaultNotifyBuffer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Conn[T]{
		family:  family,
		framed:  NewFramed[T](ep, family, parsePayload, cfg.OverrunPolicy),
		local:   ep.LocalAddr(),
		cfg:     cfg,
		submitc: make(chan *submission[T], cfg.RequestQueueLimit),
		notifyc: make(chan *nlmsg.Message[T], cfg.NotifyBuffer),
		closec:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// Handle returns a handle that submits requests to this connection. A
// Handle is cheap to copy and safe for concurrent use by many goroutines.
func (c *Conn[T]) Handle() Handle[T] { return Handle[T]{c: c} }

// Notifications returns the channel of messages that did not correspond to
// any pending request: multicast group deliveries, and replies whose
// sequence number matched nothing (which should not happen in practice, but
// is not treated as fatal).
func (c *Conn[T]) Notifications() <-chan *nlmsg.Message[T] { return c.notifyc }

// LocalAddr returns the address the underlying endpoint is bound to.
func (c *Conn[T]) LocalAddr() Addr { return c.local }

// Close stops the event loop, fails every pending request with ErrClosed,
// and closes the underlying transport. It is safe to call more than once;
// it blocks until the event loop goroutine has exited.
func (c *Conn[T]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closec)
		// Close the transport before waiting for the event loop: if it is
		// blocked inside a Send call (submitting a request), only closing
		// the underlying endpoint can unblock it so the loop can observe
		// closec and return.
		err = c.framed.Close()
	})
	c.wg.Wait()
	return err
}

func (c *Conn[T]) run() {
	defer c.wg.Done()

	pending := make(map[pendingKey]*pendingReq[T])
	failAll := func(err error) {
		for key, p := range pending {
			c.deliverAndClose(p, Reply[T]{Err: err})
			delete(pending, key)
		}
		metrics.PendingRequests.WithLabelValues(c.family).Set(0)
	}

	for {
		select {
		case <-c.closec:
			failAll(ErrClosed)
			return

		case sub := <-c.submitc:
			c.handleSubmit(pending, sub)

		case r, ok := <-c.framed.Recv():
			if !ok {
				err := c.framed.Err()
				if err == nil {
					err = ErrClosed
				}
				failAll(err)
				return
			}
			c.handleReceived(pending, r)
		}
	}
}

func (c *Conn[T]) handleSubmit(pending map[pendingKey]*pendingReq[T], sub *submission[T]) {
	seq := c.nextSeq()
	sub.msg.Header.Sequence = seq
	sub.msg.Header.Port = c.local.Port
	key := pendingKey{peer: sub.to, seq: seq}

	p := &pendingReq[T]{out: make(chan Reply[T], 16)}
	pending[key] = p
	metrics.PendingRequests.WithLabelValues(c.family).Inc()

	if err := c.framed.Send(sub.msg, sub.to); err != nil {
		delete(pending, key)
		metrics.PendingRequests.WithLabelValues(c.family).Dec()
		sub.result <- submitResult[T]{err: err}
		return
	}
	sub.result <- submitResult[T]{reply: p.out}
}

func (c *Conn[T]) handleReceived(pending map[pendingKey]*pendingReq[T], r Received[T]) {
	if r.BodyErr != nil {
		key := pendingKey{peer: r.From, seq: r.Header.Sequence}
		if p, ok := pending[key]; ok {
			c.deliverAndClose(p, Reply[T]{Err: r.BodyErr})
			delete(pending, key)
			metrics.PendingRequests.WithLabelValues(c.family).Dec()
			return
		}
		log.Printf("nlsock: %s: dropping unroutable malformed frame from %s seq=%d: %v",
			c.family, r.From, r.Header.Sequence, r.BodyErr)
		return
	}

	msg := r.Msg
	if msg.IsControl() && msg.Control.Kind == nlmsg.KindOverrun {
		metrics.OverrunTotal.WithLabelValues(c.family, overrunPolicyLabel(c.cfg.OverrunPolicy)).Inc()
		if c.cfg.OverrunPolicy == OverrunTerminate {
			for key, p := range pending {
				c.deliverAndClose(p, Reply[T]{Err: ErrOverrun})
				delete(pending, key)
			}
			metrics.PendingRequests.WithLabelValues(c.family).Set(0)
			// Close waits for this loop to exit, so it cannot run here.
			go c.Close()
		} else {
			log.Printf("nlsock: %s: overrun reported by kernel, continuing per policy", c.family)
		}
		return
	}

	key := pendingKey{peer: r.From, seq: r.Header.Sequence}
	p, ok := pending[key]
	if !ok {
		select {
		case c.notifyc <- msg:
		default:
			log.Printf("nlsock: %s: dropped unsolicited message from %s, notify channel full", c.family, r.From)
		}
		return
	}

	if msg.IsControl() {
		switch msg.Control.Kind {
		case nlmsg.KindNoop:
			return
		case nlmsg.KindDone:
			close(p.out)
			delete(pending, key)
			metrics.PendingRequests.WithLabelValues(c.family).Dec()
			return
		}
	}

	c.deliver(p, Reply[T]{Msg: msg})

	if isTerminal(msg) {
		close(p.out)
		delete(pending, key)
		metrics.PendingRequests.WithLabelValues(c.family).Dec()
	}
}

// isTerminal reports whether msg is the last delivery expected for its
// request. Noop and Done are handled before this is reached (Noop is
// dropped, Done closes the sink without a delivery), so this only decides
// between Ack/Error (always terminal) and a family reply (terminal unless
// it's part of a multipart dump).
func isTerminal[T nlmsg.Payload](msg *nlmsg.Message[T]) bool {
	if msg.IsControl() {
		switch msg.Control.Kind {
		case nlmsg.KindAck, nlmsg.KindError:
			return true
		default:
			return false
		}
	}
	return !nlmsg.IsMultipart(msg.Header)
}

func (c *Conn[T]) deliver(p *pendingReq[T], reply Reply[T]) {
	select {
	case p.out <- reply:
	default:
		log.Printf("nlsock: %s: dropped reply, consumer not keeping up with a pending request", c.family)
	}
}

func (c *Conn[T]) deliverAndClose(p *pendingReq[T], reply Reply[T]) {
	c.deliver(p, reply)
	close(p.out)
}

func overrunPolicyLabel(p OverrunPolicy) string {
	if p == OverrunContinue {
		return "continue"
	}
	return "terminate"
}

// Handle is the public submission API for a Conn. It is a thin value type
// so callers can pass it by value without sharing mutable state beyond the
// Conn pointer it wraps.
type Handle[T nlmsg.Payload] struct {
	c *Conn[T]
}

// Request submits msg to peer to and returns the channel its replies will
// arrive on. The channel receives zero or more Reply values (more than one
// for a multipart dump) and is closed after the terminal reply (Ack, Error,
// the final frame of a dump, or a connection failure) has been delivered.
//
// Request itself either enqueues synchronously or fails synchronously: it
// never blocks waiting for a reply. ErrQueueFull means the buffered-request
// queue (see WithRequestQueueLimit) had no room; ErrClosed means the
// connection is already shut down.
func (h Handle[T]) Request(ctx context.Context, msg *nlmsg.Message[T], to Addr) (<-chan Reply[T], error) {
	result := make(chan submitResult[T], 1)
	sub := &submission[T]{msg: msg, to: to, result: result}

	select {
	case h.c.submitc <- sub:
	case <-h.c.closec:
		return nil, ErrClosed
	default:
		metrics.RequestsRejectedTotal.WithLabelValues(h.c.family, "queue_full").Inc()
		return nil, ErrQueueFull
	}

	select {
	case res := <-result:
		if res.err != nil {
			return nil, res.err
		}
		return res.reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify submits msg and discards its replies, for fire-and-forget
// requests (NLM_F_ACK unset) where the caller only cares about the
// synchronous accept/reject outcome.
func (h Handle[T]) Notify(ctx context.Context, msg *nlmsg.Message[T], to Addr) error {
	replies, err := h.Request(ctx, msg, to)
	if err != nil {
		return err
	}
	go func() {
		for range replies {
		}
	}()
	return nil
}
