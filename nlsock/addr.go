// Package nlsock implements the asynchronous framing/multiplexing runtime
// that owns a netlink datagram socket: it correlates requests with replies
// by sequence number, carries multipart dumps, and surfaces unsolicited
// multicast messages on a separate channel. This is the Go rendering of
// the "netlink-proto"/"netlink-sys" connection described in the design
// this package is ported from.
package nlsock

import (
	"fmt"
	"log"
)

func init() {
	// Always prepend the filename and line number, matching the rest of
	// the pack's logging convention.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// Addr is a netlink socket address: a peer port id and multicast group
// bitmask. The kernel's own address is (0, 0).
type Addr struct {
	Port   uint32
	Groups uint32
}

// Kernel is the well-known address of the kernel side of a netlink
// socket.
var Kernel = Addr{Port: 0, Groups: 0}

func (a Addr) String() string {
	return fmt.Sprintf("port=%d groups=%#x", a.Port, a.Groups)
}
