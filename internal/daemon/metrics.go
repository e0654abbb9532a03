package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paychat"

// metrics holds the relay's Prometheus collectors on a private registry so
// that multiple services (and tests) never collide on the global one.
type metrics struct {
	registry *prometheus.Registry

	exchangesTotal   *prometheus.CounterVec
	chargedUSDC      *prometheus.CounterVec
	refundedUSDC     *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	gatewayUp        prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &metrics{
		registry: reg,

		exchangesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "exchanges_total",
				Help:      "Total number of relayed exchanges",
			},
			[]string{"model", "status"},
		),
		chargedUSDC: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "charged_usdc_total",
				Help:      "USDC charged according to settlement receipts",
			},
			[]string{"model"},
		),
		refundedUSDC: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "refunded_usdc_total",
				Help:      "USDC refunded according to settlement receipts",
			},
			[]string{"model"},
		),
		exchangeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "exchange_duration_seconds",
				Help:      "Duration of relayed exchanges including payment",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		gatewayUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "up",
			Help:      "Whether the last gateway health check succeeded",
		}),

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeExchange(model string, ok bool, charged, refunded float64, d time.Duration) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.exchangesTotal.WithLabelValues(model, status).Inc()
	m.exchangeDuration.WithLabelValues(model).Observe(d.Seconds())
	if charged > 0 {
		m.chargedUSDC.WithLabelValues(model).Add(charged)
	}
	if refunded > 0 {
		m.refundedUSDC.WithLabelValues(model).Add(refunded)
	}
}

func (m *metrics) setGatewayUp(up bool) {
	if up {
		m.gatewayUp.Set(1)
	} else {
		m.gatewayUp.Set(0)
	}
}

// instrument records request counts and durations by route pattern.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
