package nlsock

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Socket is the production Endpoint: a connected AF_NETLINK SOCK_RAW (or
// SOCK_DGRAM) socket bound to a local port and optionally subscribed to one
// or more multicast groups.
type Socket struct {
	fd   int
	addr Addr
}

// Dial opens and binds a netlink socket for the given protocol family
// (e.g. unix.NETLINK_ROUTE, unix.NETLINK_GENERIC). groups is the multicast
// group subscription bitmask; pass 0 to receive only unicast replies to
// this process's own requests.
func Dial(protocol int, groups uint32) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, protocol)
	if err != nil {
		return nil, fmt.Errorf("nlsock: socket: %w", err)
	}

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: groups}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nlsock: bind: %w", err)
	}

	local, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nlsock: getsockname: %w", err)
	}
	nl, ok := local.(*unix.SockaddrNetlink)
	if !ok {
		unix.Close(fd)
		return nil, fmt.Errorf("nlsock: getsockname returned %T, want *unix.SockaddrNetlink", local)
	}

	// ENOBUFS is reported as a receive error rather than folded into a
	// successful read with a short buffer; surfacing it through
	// ReceiveFrom lets Conn apply its configured OverrunPolicy.
	if err := unix.SetsockoptInt(fd, unix.SOL_NETLINK, unix.NETLINK_NO_ENOBUFS, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nlsock: setsockopt NETLINK_NO_ENOBUFS: %w", err)
	}

	return &Socket{fd: fd, addr: Addr{Port: nl.Pid, Groups: nl.Groups}}, nil
}

func (s *Socket) SendTo(b []byte, to Addr) error {
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Pid: to.Port, Groups: to.Groups}
	if err := unix.Sendto(s.fd, b, 0, sa); err != nil {
		return fmt.Errorf("nlsock: sendto: %w", err)
	}
	return nil
}

func (s *Socket) ReceiveFrom(b []byte) (n int, from Addr, ok bool, err error) {
	nn, _, flags, sa, err := unix.Recvmsg(s.fd, b, nil, 0)
	if err != nil {
		if errors.Is(err, unix.ENOBUFS) {
			return 0, Addr{}, false, &overrunError{err: err}
		}
		return 0, Addr{}, false, fmt.Errorf("nlsock: recvmsg: %w", err)
	}
	truncated := flags&unix.MSG_TRUNC != 0
	nl, _ := sa.(*unix.SockaddrNetlink)
	var peer Addr
	if nl != nil {
		peer = Addr{Port: nl.Pid, Groups: nl.Groups}
	}
	return nn, peer, !truncated, nil
}

func (s *Socket) LocalAddr() Addr { return s.addr }

// overrunError wraps a recvmsg failure caused by ENOBUFS so it satisfies
// errors.Is against both ErrOverrun (for Conn/Framed's policy dispatch) and
// the underlying unix.ENOBUFS (for callers that care about the raw errno).
type overrunError struct{ err error }

func (e *overrunError) Error() string { return fmt.Sprintf("nlsock: recvmsg: %v", e.err) }
func (e *overrunError) Unwrap() error { return e.err }
func (e *overrunError) Is(target error) bool { return target == ErrOverrun }

func (s *Socket) Close() error {
	return unix.Close(s.fd)
}
