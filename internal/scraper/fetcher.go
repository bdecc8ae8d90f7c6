package scraper

import (
	"context"
	"net/http"
	"time"
)

// Page is the result of a single GET, including the URL the server finally
// answered from after redirects.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx response.
func (p Page) OK() bool {
	return p.StatusCode >= http.StatusOK && p.StatusCode < http.StatusMultipleChoices
}

// Fetcher performs a plain GET. Non-2xx statuses are returned as pages, not
// errors; an error means no response was obtained.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}
