package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rp1210test",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rp1210test",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	linkFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rp1210test",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Frames captured from the adapter and published to the bus.",
		},
		[]string{"adapter", "echo"},
	)
	linkDecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rp1210test",
			Subsystem: "link",
			Name:      "decode_errors_total",
			Help:      "Captures dropped because they could not be decoded.",
		},
		[]string{"adapter"},
	)
	linkSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rp1210test",
			Subsystem: "link",
			Name:      "sends_total",
			Help:      "Frames handed to the adapter driver.",
		},
		[]string{"adapter", "success"},
	)
	pingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rp1210test",
			Subsystem: "session",
			Name:      "ping_latency_ms",
			Help:      "Ping round trip time in adapter milliseconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"pgn"},
	)
	pingTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rp1210test",
			Subsystem: "session",
			Name:      "ping_timeouts_total",
			Help:      "Pings that got no response before the deadline.",
		},
		[]string{"pgn"},
	)
	sequenceMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rp1210test",
			Subsystem: "session",
			Name:      "sequence_mismatches_total",
			Help:      "Data frames received out of sequence.",
		},
		[]string{"pgn"},
	)
	throughput = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rp1210test",
			Subsystem: "session",
			Name:      "throughput_frames_per_second",
			Help:      "Last measured bulk transfer rate.",
		},
		[]string{"direction"},
	)
	trafficRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rp1210test",
			Subsystem: "session",
			Name:      "traffic_frames_per_second",
			Help:      "Frame rate measured by the traffic logger.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			linkFrames, linkDecodeErrors, linkSends,
			pingLatency, pingTimeouts, sequenceMismatches, throughput, trafficRate,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCapture(adapter string, echo bool) {
	RegisterMetrics()
	linkFrames.WithLabelValues(adapter, strconv.FormatBool(echo)).Inc()
}

func RecordDecodeError(adapter string) {
	RegisterMetrics()
	linkDecodeErrors.WithLabelValues(adapter).Inc()
}

func RecordSend(adapter string, success bool) {
	RegisterMetrics()
	linkSends.WithLabelValues(adapter, strconv.FormatBool(success)).Inc()
}

func RecordPing(pgn uint32, latencyMS float64) {
	RegisterMetrics()
	pingLatency.WithLabelValues(pgnLabel(pgn)).Observe(latencyMS)
}

func RecordPingTimeout(pgn uint32) {
	RegisterMetrics()
	pingTimeouts.WithLabelValues(pgnLabel(pgn)).Inc()
}

func RecordSequenceMismatch(pgn uint32) {
	RegisterMetrics()
	sequenceMismatches.WithLabelValues(pgnLabel(pgn)).Inc()
}

func RecordThroughput(direction string, framesPerSecond float64) {
	RegisterMetrics()
	throughput.WithLabelValues(direction).Set(framesPerSecond)
}

func RecordTrafficRate(framesPerSecond float64) {
	RegisterMetrics()
	trafficRate.Set(framesPerSecond)
}

func pgnLabel(pgn uint32) string {
	return strconv.FormatUint(uint64(pgn), 16)
}
