// Package scraper crawls the paginated pet classifieds listing, follows every
// card to its detail page and emits normalized pet.Record values.
//
// All requests are issued sequentially through one Fetcher, paced by fixed
// delays and wrapped in a retry controller that backs off on HTTP 429.
package scraper
