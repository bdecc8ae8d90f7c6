// Package ingest runs a full refresh: scrape a listing tree, replace the
// stored records, archive the batch and announce completion.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pet-listings-scraper/internal/metrics"
	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
	"github.com/JakeFAU/pet-listings-scraper/internal/scraper"
)

var (
	// ErrInvalidURL is returned for base URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid base url")
	// ErrBusy is returned while another refresh holds the scraping session.
	ErrBusy = errors.New("a refresh is already running")
)

// Scraper produces the records of one crawl.
type Scraper interface {
	Scrape(ctx context.Context, baseURL string) ([]pet.Record, error)
}

// Config controls archive naming and the completion topic.
type Config struct {
	ArchivePrefix string
	Topic         string
}

// Event is published after a successful refresh.
type Event struct {
	BaseURL       string    `json:"base_url"`
	Count         int       `json:"count"`
	IDs           []string  `json:"ids"`
	ArchiveURI    string    `json:"archive_uri,omitempty"`
	ArchiveSHA256 string    `json:"archive_sha256,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Result describes a finished refresh.
type Result struct {
	IDs        []string
	ArchiveURI string
	EventID    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Service wires the scraper to the store. Archive and publisher are optional.
type Service struct {
	scraper   Scraper
	store     pet.Store
	archive   pet.BlobStore
	publisher pet.Publisher
	hasher    pet.Hasher
	clock     pet.Clock
	cfg       Config
	logger    *zap.Logger

	running sync.Mutex
}

// Option customizes a Service.
type Option func(*Service)

// WithArchive stores every scraped batch as JSON in blobs.
func WithArchive(blobs pet.BlobStore, hasher pet.Hasher) Option {
	return func(s *Service) {
		s.archive = blobs
		s.hasher = hasher
	}
}

// WithPublisher announces finished refreshes.
func WithPublisher(p pet.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// New constructs a Service.
func New(sc Scraper, store pet.Store, clock pet.Clock, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		scraper: sc,
		store:   store,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const tracerName = "github.com/JakeFAU/pet-listings-scraper/internal/ingest"

// Refresh scrapes baseURL and replaces the stored records with the result.
// Only one refresh runs at a time; concurrent calls fail with ErrBusy. Each
// run is one span, so the completion event carries its trace context.
func (s *Service) Refresh(ctx context.Context, baseURL string) (Result, error) {
	if err := validateBaseURL(baseURL); err != nil {
		return Result{}, err
	}
	if !s.running.TryLock() {
		return Result{}, ErrBusy
	}
	defer s.running.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest.Refresh",
		trace.WithAttributes(attribute.String("pets.base_url", baseURL)),
	)
	defer span.End()

	result, err := s.refresh(ctx, baseURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(attribute.Int("pets.records", len(result.IDs)))
	return result, nil
}

func (s *Service) refresh(ctx context.Context, baseURL string) (Result, error) {
	started := s.clock.Now()
	log := s.logger.With(zap.String("base_url", baseURL))
	log.Info("refresh started")

	records, err := s.scraper.Scrape(ctx, baseURL)
	if err != nil {
		if errors.Is(err, scraper.ErrNothingScraped) {
			metrics.ObserveRun("empty")
			log.Warn("refresh produced no records")
			return Result{}, err
		}
		metrics.ObserveRun("error")
		return Result{}, fmt.Errorf("scrape: %w", err)
	}

	ids, err := s.store.Replace(ctx, records)
	if err != nil {
		metrics.ObserveRun("error")
		return Result{}, fmt.Errorf("replace records: %w", err)
	}

	result := Result{IDs: ids, StartedAt: started}
	event := Event{BaseURL: baseURL, Count: len(ids), IDs: ids, StartedAt: started}
	result.ArchiveURI, event.ArchiveSHA256 = s.archiveBatch(ctx, log, started, records)
	event.ArchiveURI = result.ArchiveURI

	result.FinishedAt = s.clock.Now()
	event.FinishedAt = result.FinishedAt
	result.EventID = s.announce(ctx, log, event)

	metrics.ObserveRun("success")
	log.Info("refresh finished",
		zap.Int("records", len(ids)),
		zap.Duration("elapsed", result.FinishedAt.Sub(started)),
	)
	return result, nil
}

// archiveBatch is best effort: failures are logged and yield an empty URI.
func (s *Service) archiveBatch(ctx context.Context, log *zap.Logger, started time.Time, records []pet.Record) (string, string) {
	if s.archive == nil {
		return "", ""
	}
	data, err := json.Marshal(records)
	if err != nil {
		log.Error("archive encode failed", zap.Error(err))
		return "", ""
	}
	digest := ""
	if s.hasher != nil {
		digest = s.hasher.Hash(data)
	}
	uri, err := s.archive.PutObject(ctx, s.archivePath(started, digest), "application/json", bytes.NewReader(data))
	if err != nil {
		log.Error("archive upload failed", zap.Error(err))
		return "", ""
	}
	log.Debug("archived batch", zap.String("uri", uri))
	return uri, digest
}

func (s *Service) archivePath(started time.Time, digest string) string {
	name := started.UTC().Format("20060102T150405.000Z")
	if len(digest) >= 12 {
		name += "-" + digest[:12]
	}
	name = started.UTC().Format("2006/01/02/") + name + ".json"
	if prefix := strings.Trim(s.cfg.ArchivePrefix, "/"); prefix != "" {
		return prefix + "/" + name
	}
	return name
}

// announce is best effort: failures are logged and yield an empty id.
func (s *Service) announce(ctx context.Context, log *zap.Logger, event Event) string {
	if s.publisher == nil {
		return ""
	}
	id, err := s.publisher.Publish(ctx, s.cfg.Topic, event)
	if err != nil {
		log.Error("publish completion failed", zap.Error(err))
		return ""
	}
	return id
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
