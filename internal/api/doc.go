// Package api hosts the HTTP server, middleware, and REST handlers of the
// pet listings service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /update-data to re-scrape a category and replace the stored records.
//   - GET /pets and /pets/search for structured and natural-language queries.
//   - GET /build-url to compose a category URL for /update-data.
package api
