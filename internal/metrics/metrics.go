// Package metrics registers the Prometheus collectors exposed at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts requests by route pattern, method, and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportd_http_requests_total",
		Help: "HTTP requests processed, by route, method, and status code.",
	}, []string{"route", "method", "status"})

	// HTTPDuration observes request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportd_http_request_duration_seconds",
		Help:    "HTTP request latency, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// RateLimited counts requests rejected by the token buckets.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportd_rate_limited_total",
		Help: "Requests rejected by a rate-limit bucket.",
	}, []string{"bucket"})

	// JobsStarted counts ingestion jobs started, by outcome of the start.
	JobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportd_ingest_jobs_started_total",
		Help: "Ingestion jobs started via the API.",
	}, []string{"tenant"})

	// TicketsIngested counts tickets persisted by completed jobs.
	TicketsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportd_tickets_ingested_total",
		Help: "Tickets persisted by ingestion runs.",
	})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler { return promhttp.Handler() }
