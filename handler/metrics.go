package handler

import (
	"io"
	"time"

	"github.com/hupe1980/sessionmesh/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsHandler records Prometheus metrics for every operation passing
// through it: a counter by operation and result, a latency histogram by
// operation, and a histogram of payload sizes.
//
// Close unregisters the metrics, so a later chain can register them again
// on the same Registerer.
type MetricsHandler struct {
	reg prometheus.Registerer

	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	payloadBytes *prometheus.HistogramVec
}

var (
	_ core.Handler = (*MetricsHandler)(nil)
	_ io.Closer    = (*MetricsHandler)(nil)
)

// NewMetricsHandler registers the session metrics on reg. A nil reg leaves
// them unregistered.
func NewMetricsHandler(reg prometheus.Registerer) *MetricsHandler {
	return &MetricsHandler{
		reg:        reg,
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionmesh_operations_total",
				Help: "Total number of session operations by operation and result",
			},
			[]string{"operation", "result"}, // result: "ok", "fail", "hit", "miss"
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sessionmesh_operation_duration_milliseconds",
				Help: "Duration of session operations through the rest of the chain in milliseconds",
				Buckets: []float64{
					0.1,  // 100us - memory stores
					0.5,  // 500us
					1,    // 1ms
					5,    // 5ms - local disk
					10,   // 10ms
					50,   // 50ms - remote stores
					100,  // 100ms
					500,  // 500ms
					1000, // 1s
				},
			},
			[]string{"operation"},
		),
		payloadBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sessionmesh_payload_bytes",
				Help:    "Distribution of session payload sizes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"operation"},
		),
	}
}

// Close unregisters the session metrics.
func (h *MetricsHandler) Close() error {
	if h.reg == nil {
		return nil
	}
	h.reg.Unregister(h.operations)
	h.reg.Unregister(h.duration)
	h.reg.Unregister(h.payloadBytes)
	return nil
}

func (h *MetricsHandler) observe(op core.Op, start time.Time, result string) {
	h.duration.WithLabelValues(op.String()).Observe(float64(time.Since(start).Microseconds()) / 1000)
	h.operations.WithLabelValues(op.String(), result).Inc()
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

// Create measures and delegates.
func (h *MetricsHandler) Create(path, name string, next core.CreateNext) bool {
	start := time.Now()
	ok := next.Create(path, name)
	h.observe(core.OpCreate, start, okLabel(ok))
	return ok
}

// Read measures and delegates; empty payloads count as misses.
func (h *MetricsHandler) Read(id string, next core.ReadNext) string {
	start := time.Now()
	data := next.Read(id)
	result := "hit"
	if data == "" {
		result = "miss"
	}
	h.observe(core.OpRead, start, result)
	h.payloadBytes.WithLabelValues(core.OpRead.String()).Observe(float64(len(data)))
	return data
}

// Write measures and delegates.
func (h *MetricsHandler) Write(id, data string, next core.WriteNext) bool {
	start := time.Now()
	ok := next.Write(id, data)
	h.observe(core.OpWrite, start, okLabel(ok))
	h.payloadBytes.WithLabelValues(core.OpWrite.String()).Observe(float64(len(data)))
	return ok
}

// Delete measures and delegates.
func (h *MetricsHandler) Delete(id string, next core.DeleteNext) bool {
	start := time.Now()
	ok := next.Delete(id)
	h.observe(core.OpDelete, start, okLabel(ok))
	return ok
}

// Clean measures and delegates.
func (h *MetricsHandler) Clean(maxLifetime int, next core.CleanNext) bool {
	start := time.Now()
	ok := next.Clean(maxLifetime)
	h.observe(core.OpClean, start, okLabel(ok))
	return ok
}
