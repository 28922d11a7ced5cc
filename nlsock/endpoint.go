package nlsock

// Endpoint is the connected datagram transport a Conn multiplexes over. The
// production implementation (Socket, in socket_linux.go) wraps an
// AF_NETLINK socket; tests substitute an in-memory pipe so the multiplexer's
// sequencing and backpressure logic can be exercised without root or a real
// kernel.
type Endpoint interface {
	// SendTo writes b as a single datagram addressed to to. It blocks until
	// the kernel has accepted the whole datagram.
	SendTo(b []byte, to Addr) error

	// ReceiveFrom blocks until a datagram is available, copies it into b,
	// and returns its length and sender address. If b is too short for the
	// datagram, the implementation truncates per the platform's recvfrom
	// semantics and ok reports the truncation.
	ReceiveFrom(b []byte) (n int, from Addr, ok bool, err error)

	// LocalAddr returns the address the endpoint is bound to.
	LocalAddr() Addr

	// Close unblocks any pending ReceiveFrom/SendTo and releases the
	// underlying descriptor. It is safe to call more than once.
	Close() error
}
