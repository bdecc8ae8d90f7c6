// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperPagesTotal          *prometheus.CounterVec
	scraperListingsTotal       *prometheus.CounterVec
	scraperRateLimitedTotal    *prometheus.CounterVec
	scraperBackoffSeconds      prometheus.Histogram
	scraperRunsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Total number of listing and detail pages fetched, labeled by site, kind and status.",
			},
			[]string{"site", "kind", "status"},
		)

		scraperListingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_listings_total",
				Help: "Total number of pet records emitted, labeled by site and promoted flag.",
			},
			[]string{"site", "promoted"},
		)

		scraperRateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_rate_limited_total",
				Help: "Total number of HTTP 429 responses received, labeled by site.",
			},
			[]string{"site"},
		)

		scraperBackoffSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_backoff_seconds",
				Help:    "Histogram of waits spent backing off after rate limiting.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
			},
		)

		scraperRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total number of refresh runs, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts a fetched page. kind is "listing" or "detail".
func ObservePage(site, kind, status string) {
	Init()
	scraperPagesTotal.WithLabelValues(SanitizeSite(site), kind, status).Inc()
}

// ObserveListing counts an emitted record.
func ObserveListing(site string, promoted bool) {
	Init()
	scraperListingsTotal.WithLabelValues(SanitizeSite(site), strconv.FormatBool(promoted)).Inc()
}

// ObserveRateLimited counts a 429 response.
func ObserveRateLimited(site string) {
	Init()
	scraperRateLimitedTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveBackoff records the duration of a rate limit wait.
func ObserveBackoff(duration time.Duration) {
	Init()
	scraperBackoffSeconds.Observe(duration.Seconds())
}

// ObserveRun counts a refresh run for the given status.
func ObserveRun(status string) {
	Init()
	scraperRunsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
