// Package cmd defines and implements the CLI commands for the petscraper executable.
//
// Architecture overview:
//   - Scrape pipeline: the colly fetcher is wrapped in the 429 retry controller, the listing crawler walks the
//     category page by page with fixed pacing, and every card is enriched from its detail page.
//   - Persistence & fanout: each refresh replaces the configured store (memory, MongoDB or Postgres), archives the
//     batch as JSON to the local disk or GCS when configured, and publishes a completion event to Pub/Sub.
//   - HTTP API: internal/api.Server exposes probes, Prometheus metrics, /update-data, /pets, /pets/search and
//     /build-url. Natural-language search asks Gemini for a filter and caches it in memory or Redis.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging.
//
// Quick checklist:
//   - Configure env vars: PETSCRAPER_SERVER_PORT, PETSCRAPER_STORE_PROVIDER, PETSCRAPER_STORE_MONGO_URI,
//     PETSCRAPER_GEMINI_API_KEY, PETSCRAPER_ARCHIVE_PROVIDER and friends.
//   - One-off scrape: petscraper scrape --url https://www.animalutul.ro/anunturi/animale/caini/
//   - Service: petscraper serve --config config.yaml; SIGINT/SIGTERM drain in-flight requests before exit.
package cmd
