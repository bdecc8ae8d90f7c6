package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/pet-listings-scraper/internal/metrics"
	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
)

// ErrNothingScraped is returned when a run produced no records at all.
var ErrNothingScraped = errors.New("no data scraped")

const defaultPageParam = "pag"

// Config tunes pacing and bounds of a scrape run.
type Config struct {
	// PageDelay is waited before every listing page request.
	PageDelay time.Duration
	// DetailDelay is waited before every detail page request.
	DetailDelay time.Duration
	// MaxPages stops the crawl after that many listing pages; 0 means no limit.
	MaxPages int
	// PageParam is the pagination query parameter, "pag" when empty.
	PageParam string
	Retry     RetryPolicy
}

// DefaultConfig returns the pacing used against the live site.
func DefaultConfig() Config {
	return Config{
		PageDelay:   2 * time.Second,
		DetailDelay: time.Second,
		PageParam:   defaultPageParam,
		Retry:       DefaultRetryPolicy(),
	}
}

// Scraper walks listing pages and their detail pages one request at a time.
type Scraper struct {
	fetcher Fetcher
	cfg     Config
	pause   pauseController
	logger  *zap.Logger
}

// New builds a Scraper. Every request made through fetcher is wrapped in the
// rate limit retry controller configured by cfg.Retry.
func New(fetcher Fetcher, cfg Config, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageParam == "" {
		cfg.PageParam = defaultPageParam
	}
	return &Scraper{
		fetcher: NewRetryingFetcher(fetcher, cfg.Retry, logger.Named("retry")),
		cfg:     cfg,
		pause:   timerPauseController{},
		logger:  logger,
	}
}

// Scrape runs the whole crawl and collects the records. It fails only when
// nothing could be scraped or the context ended the run.
func (s *Scraper) Scrape(ctx context.Context, baseURL string) ([]pet.Record, error) {
	var records []pet.Record
	for record := range s.Listings(ctx, baseURL) {
		records = append(records, record)
	}
	if err := ctx.Err(); err != nil {
		return records, fmt.Errorf("scrape %s: %w", baseURL, err)
	}
	if len(records) == 0 {
		return nil, ErrNothingScraped
	}
	return records, nil
}

// Listings lazily crawls baseURL page by page. The sequence ends at the first
// failed page, at the page the site redirects back to the base URL, or at a
// page without cards. It can be ranged over once.
func (s *Scraper) Listings(ctx context.Context, baseURL string) iter.Seq[pet.Record] {
	consumed := false
	return func(yield func(pet.Record) bool) {
		if consumed {
			s.logger.Warn("listing sequence already consumed", zap.String("base_url", baseURL))
			return
		}
		consumed = true

		base, err := url.Parse(baseURL)
		if err != nil {
			s.logger.Error("invalid base url", zap.String("base_url", baseURL), zap.Error(err))
			return
		}
		run := &crawlRun{
			base:     base,
			baseKey:  normalizeURL(baseURL),
			promoted: make(map[string]struct{}),
		}
		for pageNum := 1; s.cfg.MaxPages <= 0 || pageNum <= s.cfg.MaxPages; pageNum++ {
			if !s.crawlPage(ctx, run, pageNum, yield) {
				return
			}
		}
		s.logger.Info("page limit reached", zap.Int("max_pages", s.cfg.MaxPages))
	}
}

// crawlRun is the state of one Listings iteration.
type crawlRun struct {
	base    *url.URL
	baseKey string
	// promoted holds links of promoted records already emitted; featured
	// cards are re-shown on later pages and must only be counted once.
	promoted map[string]struct{}
}

// crawlPage processes one listing page and reports whether to continue.
func (s *Scraper) crawlPage(ctx context.Context, run *crawlRun, pageNum int, yield func(pet.Record) bool) bool {
	pageURL := s.pageURL(run.base, pageNum)
	if err := s.pause.Pause(ctx, s.cfg.PageDelay); err != nil {
		return false
	}
	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		s.logger.Warn("failed to retrieve page", zap.Int("page", pageNum), zap.Error(err))
		metrics.ObservePage(pageURL, "listing", "error")
		return false
	}
	if !page.OK() {
		s.logger.Warn("failed to retrieve page", zap.Int("page", pageNum), zap.Int("status", page.StatusCode))
		metrics.ObservePage(pageURL, "listing", strconv.Itoa(page.StatusCode))
		return false
	}
	metrics.ObservePage(pageURL, "listing", "ok")
	if normalizeURL(page.FinalURL) == run.baseKey {
		s.logger.Info("reached the last page", zap.String("url", pageURL))
		return false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		s.logger.Warn("listing page unparsable", zap.Int("page", pageNum), zap.Error(err))
		return false
	}
	cards := doc.Find("div.article-item")
	if cards.Length() == 0 {
		s.logger.Info("no listing cards found", zap.Int("page", pageNum))
		return false
	}
	s.logger.Info("scraping page", zap.Int("page", pageNum), zap.String("url", pageURL), zap.Int("cards", cards.Length()))

	resolveAgainst := run.base
	if final, err := url.Parse(page.FinalURL); err == nil && page.FinalURL != "" {
		resolveAgainst = final
	}

	more := true
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		record := parseCard(card, resolveAgainst)
		link := record.LinkValue()
		if record.Promoted && link != "" {
			if _, seen := run.promoted[link]; seen {
				return true
			}
		}
		if link != "" {
			s.Detail(ctx, link).Apply(&record)
		}
		if ctx.Err() != nil {
			more = false
			return false
		}
		if record.Promoted && link != "" {
			run.promoted[link] = struct{}{}
		}
		metrics.ObserveListing(pageURL, record.Promoted)
		if !yield(record) {
			more = false
			return false
		}
		return true
	})
	return more
}

// parseCard extracts the summary fields of one listing card.
func parseCard(card *goquery.Selection, pageURL *url.URL) pet.Record {
	var record pet.Record

	anchor := card.Find("h2.article-title a").First()
	if anchor.Length() > 0 {
		record.Title = pet.String(cleanText(anchor.Text()))
		if href, ok := anchor.Attr("href"); ok {
			record.Link = pet.String(resolveLink(pageURL, href))
		}
	}

	record.Promoted = card.Find("div.art-promoted").Length() > 0

	if src, ok := card.Find("img").First().Attr("src"); ok {
		record.ImageURL = pet.String(resolveLink(pageURL, src))
	}

	if container := card.Find("span.article-price").First(); container.Length() > 0 {
		if newPrice := container.Find("span.new-price").First(); newPrice.Length() > 0 {
			record.Price.AfterDiscount = NormalizePrice(newPrice.Text())
			if oldPrice := container.Find("span.old-price").First(); oldPrice.Length() > 0 {
				record.Price.BeforeDiscount = NormalizePrice(oldPrice.Text())
			}
		} else {
			record.Price.WithoutDiscount = NormalizePrice(container.Text())
		}
	}
	return record
}

func (s *Scraper) pageURL(base *url.URL, pageNum int) string {
	u := *base
	q := u.Query()
	q.Set(s.cfg.PageParam, strconv.Itoa(pageNum))
	u.RawQuery = q.Encode()
	return u.String()
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func normalizeURL(raw string) string {
	return strings.TrimRight(raw, "/")
}
