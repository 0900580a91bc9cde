package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"storefront-chat/internal/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	gatherer prometheus.Gatherer
}

func newMetrics(reg *prometheus.Registry, listenAddr string, q *queue.RequestQueueManager) *metrics {
	labels := prometheus.Labels{"listen_addr": listenAddr}
	factory := promauto.With(reg)

	m := &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "storefront_chat_http_requests_total",
			Help:        "Total count of HTTP requests received.",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		// Upgraded websocket requests are counted but not timed.
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "storefront_chat_http_request_duration_seconds",
			Help:        "Latency of REST requests.",
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "storefront_chat_http_inflight_requests",
			Help:        "Number of requests currently being handled.",
			ConstLabels: labels,
		}),
		gatherer: reg,
	}

	if q != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "storefront_chat_request_queue_depth",
			Help:        "Jobs waiting in the request queue channel.",
			ConstLabels: labels,
		}, func() float64 {
			return float64(q.Depth())
		})
	}

	return m
}

// metricsHandler serves this server's registry merged with the process-wide collectors.
func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{m.gatherer, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	)
}

func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		normalizedPath := sanitizePath(r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start).Seconds()

		labels := []string{r.Method, normalizedPath, strconv.Itoa(rec.status)}
		m.requests.WithLabelValues(labels...).Inc()
		if !rec.hijacked {
			m.duration.WithLabelValues(labels...).Observe(elapsed)
		}
	})
}

// sanitizePath collapses session ids so the label set stays bounded.
func sanitizePath(p string) string {
	clean := path.Clean(p)
	if clean == "" || clean == "." {
		return "/"
	}

	segments := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	for i, seg := range segments {
		if i > 0 && segments[i-1] == "chat" && seg != "customer" && seg != "availability" && seg != "inbox" {
			segments[i] = ":id"
		}
	}
	if len(segments) > 5 {
		segments = append(segments[:5], "...")
	}

	return "/" + strings.Join(segments, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		sr.hijacked = true
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("statusRecorder: underlying ResponseWriter does not support hijacking")
}
