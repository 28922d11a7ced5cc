package wgnl

import (
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/gonl/nlenc"
)

// WGPEER_A_ENDPOINT carries a raw struct sockaddr_in or sockaddr_in6 (the
// kernel UAPI layout: family, then a big-endian port, since the field
// mirrors a genuine BSD sockaddr rather than a generic attribute). Ported
// from netlink-packet-wireguard's raw.rs parse_socket_addr/emit_socket_addr.
const (
	sockaddrV4Len = 16
	sockaddrV6Len = 28
)

func parseSockaddr(b []byte) (*net.UDPAddr, error) {
	switch len(b) {
	case sockaddrV4Len:
		port := nlenc.Uint16BE(b[2:4])
		ip := net.IP(append([]byte(nil), b[4:8]...))
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	case sockaddrV6Len:
		port := nlenc.Uint16BE(b[2:4])
		ip := net.IP(append([]byte(nil), b[8:24]...))
		scopeID := nlenc.Uint32(b[24:28])
		return &net.UDPAddr{IP: ip, Port: int(port), Zone: fmt.Sprint(scopeID)}, nil
	default:
		return nil, fmt.Errorf("wgnl: sockaddr: want %d or %d bytes, got %d", sockaddrV4Len, sockaddrV6Len, len(b))
	}
}

func emitSockaddr(a *net.UDPAddr) []byte {
	if ip4 := a.IP.To4(); ip4 != nil {
		b := make([]byte, sockaddrV4Len)
		nlenc.PutUint16(b[0:2], AF_INET)
		nlenc.PutUint16BE(b[2:4], uint16(a.Port))
		copy(b[4:8], ip4)
		return b
	}
	b := make([]byte, sockaddrV6Len)
	nlenc.PutUint16(b[0:2], AF_INET6)
	nlenc.PutUint16BE(b[2:4], uint16(a.Port))
	copy(b[8:24], a.IP.To16())
	return b
}

// WGPEER_A_LAST_HANDSHAKE_TIME carries a struct timespec64: two
// native-endian int64 fields, seconds then nanoseconds.
const timespecLen = 16

func parseTimespec(b []byte) (time.Time, error) {
	if len(b) != timespecLen {
		return time.Time{}, fmt.Errorf("wgnl: timespec: want %d bytes, got %d", timespecLen, len(b))
	}
	sec := int64(nlenc.Uint64(b[0:8]))
	nsec := int64(nlenc.Uint64(b[8:16]))
	return time.Unix(sec, nsec), nil
}
