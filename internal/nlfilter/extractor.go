// Package nlfilter turns a free-text pet search into a pet.Filter using the
// Gemini generateContent API.
package nlfilter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
)

// DefaultBaseURL is the public Gemini REST endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel answers quickly enough for interactive search.
const DefaultModel = "gemini-2.0-flash"

var (
	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrNotConfigured is returned when no API key was provided.
	ErrNotConfigured = errors.New("gemini api key is not configured")
	// ErrNoAnswer is returned when the model produced no usable candidate.
	ErrNoAnswer = errors.New("model returned no filter")
)

// Config controls the Gemini client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Extractor converts prompts to filters, consulting the cache first.
type Extractor struct {
	client *resty.Client
	model  string
	cache  Cache
	logger *zap.Logger
}

// New builds an Extractor. A nil cache disables caching.
func New(cfg Config, cache Cache, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("x-goog-api-key", cfg.APIKey)
	}
	return &Extractor{
		client: client,
		model:  cfg.Model,
		cache:  cache,
		logger: logger,
	}
}

// Configured reports whether requests can be sent.
func (e *Extractor) Configured() bool {
	return e.client.Header.Get("x-goog-api-key") != ""
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
}

type generateRequest struct {
	SystemInstruction content          `json:"systemInstruction"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Extract returns the filter described by prompt.
func (e *Extractor) Extract(ctx context.Context, prompt string) (pet.Filter, error) {
	key := CacheKey(prompt)
	if key == "" {
		return pet.Filter{}, ErrEmptyPrompt
	}
	if e.cache != nil {
		filter, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("filter cache read failed", zap.Error(err))
		} else if ok {
			return filter, nil
		}
	}
	if !e.Configured() {
		return pet.Filter{}, ErrNotConfigured
	}

	filter, err := e.generate(ctx, prompt)
	if err != nil {
		return pet.Filter{}, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, key, filter); err != nil {
			e.logger.Warn("filter cache write failed", zap.Error(err))
		}
	}
	return filter, nil
}

func (e *Extractor) generate(ctx context.Context, prompt string) (pet.Filter, error) {
	var (
		out    generateResponse
		failed apiError
	)
	res, err := e.client.R().
		SetContext(ctx).
		SetPathParam("model", e.model).
		SetBody(generateRequest{
			SystemInstruction: content{Parts: []part{{Text: systemPrompt}}},
			Contents:          []content{{Role: "user", Parts: []part{{Text: prompt}}}},
			GenerationConfig: generationConfig{
				ResponseMIMEType: "application/json",
				ResponseSchema:   responseSchema,
			},
		}).
		SetResult(&out).
		SetError(&failed).
		Post("/models/{model}:generateContent")
	if err != nil {
		return pet.Filter{}, fmt.Errorf("call gemini: %w", err)
	}
	if res.IsError() {
		msg := failed.Error.Message
		if msg == "" {
			msg = res.Status()
		}
		return pet.Filter{}, fmt.Errorf("gemini returned %d: %s", res.StatusCode(), msg)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return pet.Filter{}, ErrNoAnswer
	}

	filter, err := ParseFilter(out.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return pet.Filter{}, err
	}
	e.logger.Debug("extracted filter", zap.String("prompt", prompt), zap.Any("filter", filter))
	return filter, nil
}

// ParseFilter decodes the model answer, tolerating a fenced code block, and
// drops empty strings so they do not constrain the query.
func ParseFilter(text string) (pet.Filter, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var filter pet.Filter
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &filter); err != nil {
		return pet.Filter{}, fmt.Errorf("%w: decode %q: %v", ErrNoAnswer, text, err)
	}
	for _, field := range []**string{&filter.County, &filter.City, &filter.Category, &filter.Breed, &filter.DescriptionRegex} {
		if *field != nil {
			*field = pet.String(strings.TrimSpace(**field))
		}
	}
	if err := filter.Validate(); err != nil {
		return pet.Filter{}, err
	}
	return filter, nil
}

// CacheKey normalizes a prompt: lowercased, whitespace collapsed.
func CacheKey(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}
