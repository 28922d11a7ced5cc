//go:build !linux

package nlsock

import "errors"

// ErrUnsupported is returned by Dial on platforms other than Linux, where
// AF_NETLINK does not exist. Tests on such platforms should construct a
// Conn over an in-memory Endpoint instead.
var ErrUnsupported = errors.New("nlsock: netlink sockets are only supported on linux")

// Socket is a stub on non-Linux platforms, present only so this package
// compiles there; Dial always fails.
type Socket struct{}

func Dial(protocol int, groups uint32) (*Socket, error) {
	return nil, ErrUnsupported
}

func (s *Socket) SendTo(b []byte, to Addr) error { return ErrUnsupported }

func (s *Socket) ReceiveFrom(b []byte) (n int, from Addr, ok bool, err error) {
	return 0, Addr{}, false, ErrUnsupported
}

func (s *Socket) LocalAddr() Addr { return Addr{} }

func (s *Socket) Close() error { return nil }
