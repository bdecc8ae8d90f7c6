package scraper

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pet-listings-scraper/internal/metrics"
)

// RetryPolicy bounds how long a single fetch keeps retrying after HTTP 429.
type RetryPolicy struct {
	// MaxAttempts counts every request, the first one included.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy starts at half a second and doubles for up to four attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the wait before retry number attempt+1 (attempt is zero based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// delayFor prefers a longer Retry-After hint, still capped by MaxDelay.
func (p RetryPolicy) delayFor(attempt int, headers http.Header) time.Duration {
	delay := p.Backoff(attempt)
	hint := retryAfter(headers)
	if hint > delay {
		delay = hint
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func retryAfter(headers http.Header) time.Duration {
	if headers == nil {
		return 0
	}
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// pauseController abstracts how the scraper waits between requests.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RetryingFetcher wraps a Fetcher with exponential backoff on HTTP 429.
// Exhausted retries return the last 429 page; every other status is passed
// through untouched for the caller to interpret.
type RetryingFetcher struct {
	next   Fetcher
	policy RetryPolicy
	pause  pauseController
	logger *zap.Logger
}

// NewRetryingFetcher builds a RetryingFetcher around next.
func NewRetryingFetcher(next Fetcher, policy RetryPolicy, logger *zap.Logger) *RetryingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{
		next:   next,
		policy: policy,
		pause:  timerPauseController{},
		logger: logger,
	}
}

// Fetch performs the GET, retrying while the server answers 429.
func (f *RetryingFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	maxAttempts := f.policy.attempts()
	for attempt := 0; ; attempt++ {
		page, err := f.next.Fetch(ctx, rawURL)
		if err != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		if page.StatusCode != http.StatusTooManyRequests {
			return page, nil
		}

		metrics.ObserveRateLimited(rawURL)
		if attempt+1 >= maxAttempts {
			f.logger.Warn("rate limit retries exhausted",
				zap.String("url", rawURL),
				zap.Int("attempts", attempt+1),
			)
			return page, nil
		}

		delay := f.policy.delayFor(attempt, page.Headers)
		f.logger.Info("429 received, backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		metrics.ObserveBackoff(delay)
		if err := f.pause.Pause(ctx, delay); err != nil {
			return Page{}, err
		}
	}
}
