package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pet-listings-scraper/internal/clock/system"
	"github.com/JakeFAU/pet-listings-scraper/internal/config"
	"github.com/JakeFAU/pet-listings-scraper/internal/ingest"
	"github.com/JakeFAU/pet-listings-scraper/internal/nlfilter"
	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
	"github.com/JakeFAU/pet-listings-scraper/internal/scraper"
	"github.com/JakeFAU/pet-listings-scraper/internal/storage/memory"
)

func TestServer_UpdateData_Succeeds(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{result: ingest.Result{IDs: []string{"a", "b"}, ArchiveURI: "memory://x.json"}}
	server := newTestServer(refresher, nil, nil)

	rec := serve(server, http.MethodPost, "/update-data", `{"url":"https://pets.test/caini/"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body updateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "success", body.Status)
	require.Equal(t, []string{"a", "b"}, body.InsertedIDs)
	require.Equal(t, []string{"https://pets.test/caini/"}, refresher.calls())
}

func TestServer_UpdateData_DefaultsToConfiguredURL(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{result: ingest.Result{IDs: []string{"a"}}}
	server := newTestServer(refresher, nil, nil)

	rec := serve(server, http.MethodPost, "/update-data", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"https://pets.test/default/"}, refresher.calls())
}

func TestServer_UpdateData_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"invalid json", "{nope", nil, http.StatusBadRequest, "invalid JSON"},
		{"nothing scraped", `{"url":"https://pets.test/"}`, scraper.ErrNothingScraped, http.StatusInternalServerError, "No data scraped"},
		{"invalid url", `{"url":"ftp://x"}`, fmt.Errorf("%w: ftp://x", ingest.ErrInvalidURL), http.StatusBadRequest, "invalid base url"},
		{"busy", `{"url":"https://pets.test/"}`, ingest.ErrBusy, http.StatusConflict, "already running"},
		{"store down", `{"url":"https://pets.test/"}`, errors.New("connection refused"), http.StatusInternalServerError, "refresh failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(&fakeRefresher{err: tt.err}, nil, nil)
			rec := serve(server, http.MethodPost, "/update-data", tt.body)
			require.Equal(t, tt.status, rec.Code)
			require.Contains(t, rec.Body.String(), tt.msg)
		})
	}
}

func TestServer_UpdateData_SurvivesClientDisconnect(t *testing.T) {
	t.Parallel()

	sc := newGatedScraper()
	store := seededStore(t)
	svc := ingest.New(sc, store, system.New(), ingest.Config{}, zap.NewNop())
	server := NewServer(svc, store, nil, testConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/update-data", bytes.NewReader([]byte(`{"url":"https://pets.test/caini/"}`))).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Handler().ServeHTTP(rec, req)
	}()

	<-sc.started
	cancel()
	close(sc.release)
	<-done

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := store.Find(context.Background(), pet.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "Ogar", pet.Value(stored[0].Title))
}

func TestServer_UpdateData_IgnoresRequestTimeout(t *testing.T) {
	t.Parallel()

	sc := newGatedScraper()
	store := seededStore(t)
	svc := ingest.New(sc, store, system.New(), ingest.Config{}, zap.NewNop())
	cfg := testConfig()
	cfg.Server.RequestTimeout = 1
	server := NewServer(svc, store, nil, cfg, zap.NewNop())

	go func() {
		<-sc.started
		time.Sleep(1500 * time.Millisecond)
		close(sc.release)
	}()
	rec := serve(server, http.MethodPost, "/update-data", `{"url":"https://pets.test/caini/"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := store.Find(context.Background(), pet.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestServer_ListPets_AppliesQueryFilter(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRefresher{}, seededStore(t), nil)

	rec := serve(server, http.MethodGet, "/pets?county=Cluj&max_price=600", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []pet.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	require.Equal(t, "Pisica", pet.Value(records[0].Title))

	rec = serve(server, http.MethodGet, "/pets?county=Iasi", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_ListPets_RejectsBadFilters(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRefresher{}, seededStore(t), nil)

	for _, path := range []string{
		"/pets?min_price=ieftin",
		"/pets?min_price=10&max_price=5",
		"/pets?description_regex=(",
	} {
		rec := serve(server, http.MethodGet, path, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestServer_SearchPets(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{configured: true, filter: pet.Filter{County: pet.String("Cluj")}}
	server := newTestServer(&fakeRefresher{}, seededStore(t), extractor)

	rec := serve(server, http.MethodGet, "/pets/search?prompt=pisici+in+Cluj", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Cluj", pet.Value(body.Filter.County))
	require.Len(t, body.Pets, 2)
	require.Equal(t, "pisici in Cluj", extractor.prompt)
}

func TestServer_SearchPets_Errors(t *testing.T) {
	t.Parallel()

	store := seededStore(t)

	rec := serve(newTestServer(&fakeRefresher{}, store, &fakeExtractor{configured: true}), http.MethodGet, "/pets/search", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(newTestServer(&fakeRefresher{}, store, nil), http.MethodGet, "/pets/search?prompt=caini", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(newTestServer(&fakeRefresher{}, store, &fakeExtractor{configured: false}), http.MethodGet, "/pets/search?prompt=caini", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	failing := &fakeExtractor{configured: true, err: nlfilter.ErrNoAnswer}
	rec = serve(newTestServer(&fakeRefresher{}, store, failing), http.MethodGet, "/pets/search?prompt=caini", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	invalid := &fakeExtractor{configured: true, err: fmt.Errorf("%w: bad regex", pet.ErrInvalidFilter)}
	rec = serve(newTestServer(&fakeRefresher{}, store, invalid), http.MethodGet, "/pets/search?prompt=caini", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServer_BuildURL(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRefresher{}, nil, nil)

	rec := serve(server, http.MethodGet, "/build-url?category=caini&county=cluj&city=cluj-napoca", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"url":"https://www.animalutul.ro/anunturi/animale/caini/cluj/cluj-napoca/"}`, rec.Body.String())

	rec = serve(server, http.MethodGet, "/build-url?category=caini&city=cluj-napoca", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(server, http.MethodGet, "/build-url", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ProbesAndMetrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRefresher{}, nil, &fakeExtractor{configured: true})

	rec := serve(server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(server, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready","nl_search":true}`, rec.Body.String())

	rec = serve(server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(&fakeRefresher{}, memory.NewPetStore(nil), nil, cfg, zap.NewNop())

	rec := serve(server, http.MethodGet, "/pets", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/pets", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, http.MethodGet, "/pets?api_key=secret", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.CORSOrigins = []string{"https://pets.example"}
	server := NewServer(&fakeRefresher{}, memory.NewPetStore(nil), nil, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodOptions, "/pets", nil)
	req.Header.Set("Origin", "https://pets.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, "https://pets.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRefresher{}, nil, nil)
	rec := serve(server, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

// --- helpers/fakes ---

type fakeRefresher struct {
	mu     sync.Mutex
	urls   []string
	result ingest.Result
	err    error
}

func (f *fakeRefresher) Refresh(_ context.Context, baseURL string) (ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, baseURL)
	return f.result, f.err
}

func (f *fakeRefresher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// gatedScraper holds one scraped record until release is closed, then reports
// whatever its context says, the way the crawler does on cancellation.
type gatedScraper struct {
	started chan struct{}
	release chan struct{}
}

func newGatedScraper() *gatedScraper {
	return &gatedScraper{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedScraper) Scrape(ctx context.Context, _ string) ([]pet.Record, error) {
	close(g.started)
	<-g.release
	return []pet.Record{{Title: pet.String("Ogar")}}, ctx.Err()
}

type fakeExtractor struct {
	configured bool
	filter     pet.Filter
	err        error
	prompt     string
}

func (f *fakeExtractor) Configured() bool { return f.configured }

func (f *fakeExtractor) Extract(_ context.Context, prompt string) (pet.Filter, error) {
	f.prompt = prompt
	return f.filter, f.err
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func seededStore(t *testing.T) *memory.PetStore {
	t.Helper()
	price := func(v float64) *float64 { return &v }
	store := memory.NewPetStore(nil)
	_, err := store.Insert(context.Background(), []pet.Record{
		{Title: pet.String("Pisica"), County: pet.String("Cluj"), Price: pet.Price{WithoutDiscount: price(500)}},
		{Title: pet.String("Caine"), County: pet.String("Cluj"), Price: pet.Price{AfterDiscount: price(900), BeforeDiscount: price(1200)}},
		{Title: pet.String("Papagal"), County: pet.String("Timis")},
	})
	require.NoError(t, err)
	return store
}

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeout: 30},
		Scraper: config.ScraperConfig{DefaultBaseURL: "https://pets.test/default/"},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 30, MaxAttempts: 4},
	}
}

func newTestServer(refresher Refresher, store pet.Store, filters FilterExtractor) *Server {
	if store == nil {
		store = memory.NewPetStore(nil)
	}
	return NewServer(refresher, store, filters, testConfig(), zap.NewNop())
}

func serve(server *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, target, reader)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}
