package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://WWW.Animalutul.ro/anunturi/animale/", "www.animalutul.ro"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := scraperPagesTotal
	Init()

	if scraperPagesTotal == nil || scraperPagesTotal != first {
		t.Fatal("Init() must build the collectors exactly once")
	}
}

func TestObserveScraperMetrics(t *testing.T) {
	ObservePage("https://pets.test/anunturi?pag=1", "listing", "ok")
	ObservePage("https://pets.test/anunturi?pag=2", "listing", "ok")
	ObserveListing("https://pets.test/anunt/1", true)
	ObserveRateLimited("https://pets.test/anunt/1")
	ObserveBackoff(500 * time.Millisecond)
	ObserveRun("succeeded")

	if val := testutil.ToFloat64(scraperPagesTotal.WithLabelValues("pets.test", "listing", "ok")); val != 2 {
		t.Errorf("expected 2 listing pages, got %f", val)
	}
	if val := testutil.ToFloat64(scraperListingsTotal.WithLabelValues("pets.test", "true")); val != 1 {
		t.Errorf("expected 1 promoted listing, got %f", val)
	}
	if val := testutil.ToFloat64(scraperRateLimitedTotal.WithLabelValues("pets.test")); val != 1 {
		t.Errorf("expected 1 rate limited response, got %f", val)
	}
	if val := testutil.CollectAndCount(scraperBackoffSeconds); val != 1 {
		t.Errorf("expected backoff histogram to be collected, got %d", val)
	}
	if val := testutil.ToFloat64(scraperRunsTotal.WithLabelValues("succeeded")); val != 1 {
		t.Errorf("expected 1 succeeded run, got %f", val)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
