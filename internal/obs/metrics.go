package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tallybook.io/internal/ids"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tallybook_ready",
		Help: "1 when the last readiness probe succeeded.",
	})

	invoiceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tallybook_invoices_total",
			Help: "Invoice lifecycle transitions.",
		},
		[]string{"event"},
	)

	ledgerTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tallybook_ledger_transactions_total",
			Help: "Ledger rows written, by source kind.",
		},
		[]string{"kind"},
	)

	sessionRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tallybook_session_refresh_total",
			Help: "Outcomes of the session verify endpoint.",
		},
		[]string{"outcome"},
	)
)

// Init registers all collectors in the default registry. Safe to call repeatedly.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			ready, invoiceEvents, ledgerTransactions, sessionRefresh,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// InvoiceEvent counts a lifecycle transition such as "created", "paid" or "cancelled".
func InvoiceEvent(event string) { invoiceEvents.WithLabelValues(event).Inc() }

// LedgerTransaction counts a recorded ledger row of the given kind.
func LedgerTransaction(kind string) { ledgerTransactions.WithLabelValues(kind).Inc() }

// SessionRefresh counts a verify outcome.
func SessionRefresh(outcome string) { sessionRefresh.WithLabelValues(outcome).Inc() }

// Instrument records request count, latency and in-flight gauge per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath replaces identifier segments with ":id" to keep label cardinality bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if ids.Valid(p) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
