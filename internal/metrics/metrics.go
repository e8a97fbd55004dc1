package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	movements      *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	cascadeWrites  prometheus.Counter
	movementTiming prometheus.Histogram
	httpRequests   *prometheus.CounterVec
}

// New registers the stock collectors on a private registry together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		movements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_movements_total",
			Help: "Committed movement calls by kind and item shape.",
		}, []string{"kind", "composite"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_movement_rejections_total",
			Help: "Movement calls rejected before commit, by reason.",
		}, []string{"reason"}),
		cascadeWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "stock_cascade_writes_total",
			Help: "Leaf quantity writes performed on behalf of a composite movement.",
		}),
		movementTiming: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stock_movement_duration_seconds",
			Help:    "Time spent applying a movement, including lock wait.",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) ObserveMovement(kind string, composite bool, cascadeWrites int, took time.Duration) {
	shape := "false"
	if composite {
		shape = "true"
	}
	m.movements.WithLabelValues(kind, shape).Inc()
	m.cascadeWrites.Add(float64(cascadeWrites))
	m.movementTiming.Observe(took.Seconds())
}

func (m *Metrics) ObserveRejection(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
