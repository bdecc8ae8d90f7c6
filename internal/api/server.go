package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/pet-listings-scraper/internal/config"
	"github.com/JakeFAU/pet-listings-scraper/internal/ingest"
	"github.com/JakeFAU/pet-listings-scraper/internal/metrics"
	"github.com/JakeFAU/pet-listings-scraper/internal/nlfilter"
	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
	"github.com/JakeFAU/pet-listings-scraper/internal/scraper"
	"github.com/JakeFAU/pet-listings-scraper/internal/siteurl"
)

// Refresher re-scrapes a category and replaces the stored records.
type Refresher interface {
	Refresh(ctx context.Context, baseURL string) (ingest.Result, error)
}

// FilterExtractor turns a free-text prompt into a structured filter.
type FilterExtractor interface {
	Configured() bool
	Extract(ctx context.Context, prompt string) (pet.Filter, error)
}

// Server wires HTTP handlers to the ingest service and the store.
type Server struct {
	router    chi.Router
	refresher Refresher
	store     pet.Store
	filters   FilterExtractor
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. filters may be nil,
// in which case /pets/search answers 503.
func NewServer(
	refresher Refresher,
	store pet.Store,
	filters FilterExtractor,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		refresher: refresher,
		store:     store,
		filters:   filters,
		cfg:       cfg,
		logger:    logger,
	}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger.Named("http")))
	r.Use(recoverMiddleware(logger.Named("http")))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(cfg.Server.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		// A refresh outlives the request timeout on large categories.
		r.Post("/update-data", s.updateData)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(timeout))
			r.Get("/pets", s.listPets)
			r.Get("/pets/search", s.searchPets)
			r.Get("/build-url", s.buildURL)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"nl_search": s.filters != nil && s.filters.Configured(),
	})
}

type updateRequest struct {
	URL string `json:"url"`
}

type updateResponse struct {
	Status      string   `json:"status"`
	InsertedIDs []string `json:"inserted_ids"`
	ArchiveURI  string   `json:"archive_uri,omitempty"`
}

func (s *Server) updateData(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	baseURL := strings.TrimSpace(req.URL)
	if baseURL == "" {
		baseURL = s.cfg.Scraper.DefaultBaseURL
	}

	// The store is replaced even if the client goes away mid-crawl.
	result, err := s.refresher.Refresh(context.WithoutCancel(r.Context()), baseURL)
	switch {
	case err == nil:
	case errors.Is(err, scraper.ErrNothingScraped):
		writeError(w, http.StatusInternalServerError, "No data scraped")
		return
	case errors.Is(err, ingest.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ingest.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		s.logger.Error("refresh failed", zap.String("url", baseURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Status:      "success",
		InsertedIDs: result.IDs,
		ArchiveURI:  result.ArchiveURI,
	})
}

func (s *Server) listPets(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.find(w, r, filter, nil)
}

type searchResponse struct {
	Filter pet.Filter   `json:"filter"`
	Pets   []pet.Record `json:"pets"`
}

func (s *Server) searchPets(w http.ResponseWriter, r *http.Request) {
	prompt := strings.TrimSpace(r.URL.Query().Get("prompt"))
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt required")
		return
	}
	if s.filters == nil || !s.filters.Configured() {
		writeError(w, http.StatusServiceUnavailable, "natural-language search is not configured")
		return
	}
	filter, err := s.filters.Extract(r.Context(), prompt)
	if err != nil {
		switch {
		case errors.Is(err, nlfilter.ErrEmptyPrompt):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, pet.ErrInvalidFilter):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.logger.Warn("filter extraction failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "could not interpret prompt")
		}
		return
	}
	s.find(w, r, filter, func(records []pet.Record) any {
		return searchResponse{Filter: filter, Pets: records}
	})
}

// find runs the query and writes either the records or wrap(records).
func (s *Server) find(w http.ResponseWriter, r *http.Request, filter pet.Filter, wrap func([]pet.Record) any) {
	records, err := s.store.Find(r.Context(), filter)
	if err != nil {
		if errors.Is(err, pet.ErrInvalidFilter) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("find failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if records == nil {
		records = []pet.Record{}
	}
	if wrap != nil {
		writeJSON(w, http.StatusOK, wrap(records))
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) buildURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	built, err := siteurl.Build(siteurl.Params{
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		County:      q.Get("county"),
		City:        q.Get("city"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": built})
}

func filterFromQuery(q url.Values) (pet.Filter, error) {
	filter := pet.Filter{
		County:           optional(q, "county"),
		City:             optional(q, "city"),
		Category:         optional(q, "category"),
		Breed:            optional(q, "breed"),
		DescriptionRegex: optional(q, "description_regex"),
	}
	var err error
	if filter.MinPrice, err = optionalFloat(q, "min_price"); err != nil {
		return pet.Filter{}, err
	}
	if filter.MaxPrice, err = optionalFloat(q, "max_price"); err != nil {
		return pet.Filter{}, err
	}
	if err := filter.Validate(); err != nil {
		return pet.Filter{}, err
	}
	return filter, nil
}

func optional(q url.Values, key string) *string {
	return pet.String(strings.TrimSpace(q.Get(key)))
}

func optionalFloat(q url.Values, key string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &v, nil
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
