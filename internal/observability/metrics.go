package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	linkConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "link",
			Name:      "connects_total",
			Help:      "Connection attempts that resolved, by outcome.",
		},
		[]string{"outcome"},
	)
	linkDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "link",
			Name:      "disconnects_total",
			Help:      "Established connections that closed.",
		},
	)
	linkKeepaliveDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "link",
			Name:      "keepalive_dropped_total",
			Help:      "Keep-alive frames dropped before the link settled.",
		},
	)
	wireFramesDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "wire",
			Name:      "frames_decoded_total",
			Help:      "Complete frames reassembled from the stream.",
		},
	)
	wireFramesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "wire",
			Name:      "frames_written_total",
			Help:      "Frames flushed to the socket.",
		},
	)
	wireBytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tetherctl",
			Subsystem: "wire",
			Name:      "bytes_read_total",
			Help:      "Raw bytes read from the socket.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			linkConnects,
			linkDisconnects,
			linkKeepaliveDropped,
			wireFramesDecoded,
			wireFramesWritten,
			wireBytesRead,
		)
	})
}

func RecordConnect(outcome string) {
	RegisterMetrics()
	linkConnects.WithLabelValues(outcome).Inc()
}

func RecordDisconnect() {
	RegisterMetrics()
	linkDisconnects.Inc()
}

func RecordKeepaliveDropped() {
	RegisterMetrics()
	linkKeepaliveDropped.Inc()
}

func RecordFramesDecoded(n int) {
	RegisterMetrics()
	wireFramesDecoded.Add(float64(n))
}

func RecordFramesWritten(n int) {
	RegisterMetrics()
	wireFramesWritten.Add(float64(n))
}

func RecordBytesRead(n int) {
	RegisterMetrics()
	wireBytesRead.Add(float64(n))
}
