// Package metrics defines the prometheus metric types the multiplexer uses
// to track socket I/O latency, pending-request occupancy, and error counts.
//
// When adding a new measurement, these are the values worth tracking:
//   - things entering or leaving the multiplexer: requests submitted, frames
//     read, frames written.
//   - the success or error status of any of the above.
//   - the distribution of latency between submission and reply.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestLatencyHistogram tracks the time between a request being
	// submitted to a connection and its final reply (Ack, Error, or the
	// last frame of a multipart dump) being delivered. nlsock does not
	// observe it; it stays empty unless another package records into it.
	RequestLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nlsock_request_latency_seconds",
			Help: "latency between request submission and final reply delivery",
			Buckets: []float64{
				0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
				0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
			},
		},
		[]string{"family"})

	// SyscallLatencyHistogram tracks the latency of individual
	// sendmsg/recvmsg syscalls against the underlying socket.
	SyscallLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nlsock_syscall_latency_seconds",
			Help: "netlink syscall latency distribution",
			Buckets: []float64{
				0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005,
				0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
			},
		},
		[]string{"op"})

	// PendingRequests tracks the number of requests awaiting a reply.
	PendingRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nlsock_pending_requests",
			Help: "number of requests awaiting a reply, keyed by connection family",
		},
		[]string{"family"})

	// BufferedRequests tracks the occupancy of the buffered-request FIFO
	// described in the concurrency design (spec.md §5): requests accepted
	// by the connection but not yet dispatched because the write side is
	// busy. nlsock does not set it; it stays at zero unless another
	// package updates it.
	BufferedRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nlsock_buffered_requests",
			Help: "number of requests queued behind an in-flight write",
		},
		[]string{"family"})

	// RequestsRejectedTotal counts requests rejected synchronously because
	// the buffered-request queue was full or the connection was closed.
	RequestsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsock_requests_rejected_total",
			Help: "requests rejected at submission time",
		},
		[]string{"family", "reason"})

	// OverrunTotal counts ENOBUFS / NLMSG_OVERRUN conditions observed on
	// the socket, keyed by the policy applied to them.
	OverrunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsock_overrun_total",
			Help: "overrun conditions observed, keyed by the policy applied",
		},
		[]string{"family", "policy"})

	// DecodeErrorsTotal counts frames that failed to parse, keyed by
	// whether the failure was connection-fatal (header-level) or scoped to
	// a single pending request (body-level).
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsock_decode_errors_total",
			Help: "frame decode failures",
		},
		[]string{"family", "scope"})
)

func init() {
	log.Println("prometheus metrics in nlsock/metrics are registered")
}
