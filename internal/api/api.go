package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ndrandal/simbroker/internal/persist"
	"github.com/ndrandal/simbroker/internal/simbroker"
)

// Server provides read-only REST API endpoints over accounts, ledgers,
// symbol prices, and the audit log (§6.3). It never mutates simulator
// state: every trading action still goes through the WebSocket gateway.
type Server struct {
	broker  *simbroker.Client
	audit   persist.AuditReader
	startAt time.Time

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewServer creates a new API server.
func NewServer(broker *simbroker.Client, audit persist.AuditReader) *Server {
	return &Server{
		broker:  broker,
		audit:   audit,
		startAt: time.Now(),
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simbroker_api_requests_total",
			Help: "Total REST API requests by route and status class.",
		}, []string{"route", "status"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simbroker_api_request_duration_seconds",
			Help:    "REST API request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Register attaches API routes to the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/accounts", s.instrument("accounts", s.handleAccounts))
	mux.Handle("GET /api/accounts/{id}/ledger", s.instrument("accounts.ledger", s.handleLedger))
	mux.Handle("GET /api/symbols", s.instrument("symbols", s.handleSymbols))
	mux.Handle("GET /api/audit/{acct}", s.instrument("audit", s.handleAudit))
	mux.Handle("GET /api/stats", s.instrument("stats", s.handleStats))
}

// instrument wraps a handler with Prometheus request counters and a
// latency histogram, keyed by route.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		s.requests.WithLabelValues(route, statusClass(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// parseTimeParam parses an RFC3339 query parameter.
func parseTimeParam(r *http.Request, key string) *time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
