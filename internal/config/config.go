// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	collyfetcher "github.com/JakeFAU/pet-listings-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/pet-listings-scraper/internal/nlfilter"
	"github.com/JakeFAU/pet-listings-scraper/internal/scraper"
	"github.com/JakeFAU/pet-listings-scraper/internal/storage/mongo"
	"github.com/JakeFAU/pet-listings-scraper/internal/storage/postgres"
)

// Store providers.
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// Archive providers.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Cache providers for natural-language filters.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RequestTimeout int      `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs crawl pacing and bounds.
type ScraperConfig struct {
	UserAgent      string            `mapstructure:"user_agent"`
	PageDelayMs    int               `mapstructure:"page_delay_ms"`
	DetailDelayMs  int               `mapstructure:"detail_delay_ms"`
	MaxPages       int               `mapstructure:"max_pages"`
	MaxRedirects   int               `mapstructure:"max_redirects"`
	DefaultBaseURL string            `mapstructure:"default_base_url"`
	Headers        map[string]string `mapstructure:"headers"`
}

// HTTPConfig configures HTTP client timeout and 429 retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// StoreConfig selects where scraped records live.
type StoreConfig struct {
	Provider string         `mapstructure:"provider"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MongoConfig addresses the document store.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// PostgresConfig addresses the relational store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig sets where raw scrape batches are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// GeminiConfig configures the natural-language filter model.
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CacheConfig selects the natural-language filter cache.
type CacheConfig struct {
	Provider   string `mapstructure:"provider"`
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PETSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_seconds", 600)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("scraper.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("scraper.page_delay_ms", 2000)
	v.SetDefault("scraper.detail_delay_ms", 1000)
	v.SetDefault("scraper.max_pages", 0)
	v.SetDefault("scraper.max_redirects", 10)
	v.SetDefault("scraper.default_base_url", "https://www.animalutul.ro/anunturi/animale/caini/")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_attempts", 4)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 8000)
	v.SetDefault("store.provider", StoreMemory)
	v.SetDefault("store.mongo.database", "pets_db")
	v.SetDefault("store.mongo.collection", "pets")
	v.SetDefault("store.postgres.table", "pets")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("archive.provider", ArchiveNone)
	v.SetDefault("archive.prefix", "scrapes")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic_name", "pet-listings-refreshed")
	v.SetDefault("gemini.model", nlfilter.DefaultModel)
	v.SetDefault("gemini.base_url", nlfilter.DefaultBaseURL)
	v.SetDefault("gemini.timeout_seconds", 30)
	v.SetDefault("cache.provider", CacheMemory)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.Scraper.PageDelayMs < 0 || c.Scraper.DetailDelayMs < 0 {
		return fmt.Errorf("scraper delays must be >= 0")
	}
	if c.Scraper.MaxPages < 0 {
		return fmt.Errorf("scraper.max_pages must be >= 0")
	}

	switch c.Store.Provider {
	case StoreMemory:
	case StoreMongo:
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri must be set when store.provider is mongo")
		}
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set when store.provider is postgres")
		}
	default:
		return fmt.Errorf("store.provider %q is not one of memory, mongo, postgres", c.Store.Provider)
	}

	switch c.Archive.Provider {
	case ArchiveNone:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.provider is local")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider %q is not one of none, local, gcs", c.Archive.Provider)
	}

	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}

	switch c.Cache.Provider {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr must be set when cache.provider is redis")
		}
	default:
		return fmt.Errorf("cache.provider %q is not one of none, memory, redis", c.Cache.Provider)
	}
	return nil
}

// ScraperSettings converts pacing and retry knobs into scraper.Config.
func (c Config) ScraperSettings() scraper.Config {
	cfg := scraper.DefaultConfig()
	cfg.PageDelay = time.Duration(c.Scraper.PageDelayMs) * time.Millisecond
	cfg.DetailDelay = time.Duration(c.Scraper.DetailDelayMs) * time.Millisecond
	cfg.MaxPages = c.Scraper.MaxPages
	cfg.Retry = scraper.RetryPolicy{
		MaxAttempts:  c.HTTP.MaxAttempts,
		InitialDelay: time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		MaxDelay:     time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond,
	}
	return cfg
}

// FetcherSettings converts the HTTP session knobs into collyfetcher.Config.
func (c Config) FetcherSettings() collyfetcher.Config {
	headers := make(http.Header, len(c.Scraper.Headers))
	for k, v := range c.Scraper.Headers {
		headers.Set(k, v)
	}
	return collyfetcher.Config{
		UserAgent:    c.Scraper.UserAgent,
		Timeout:      time.Duration(c.HTTP.TimeoutSeconds) * time.Second,
		MaxRedirects: c.Scraper.MaxRedirects,
		Headers:      headers,
	}
}

// GeminiSettings converts the model knobs into nlfilter.Config.
func (c Config) GeminiSettings() nlfilter.Config {
	return nlfilter.Config{
		APIKey:  c.Gemini.APIKey,
		Model:   c.Gemini.Model,
		BaseURL: c.Gemini.BaseURL,
		Timeout: time.Duration(c.Gemini.TimeoutSeconds) * time.Second,
	}
}

// MongoSettings converts the document store section into mongo.Config.
func (c Config) MongoSettings() mongo.Config {
	return mongo.Config{
		URI:        c.Store.Mongo.URI,
		Database:   c.Store.Mongo.Database,
		Collection: c.Store.Mongo.Collection,
	}
}

// PostgresSettings converts the relational store section into postgres.Config.
func (c Config) PostgresSettings() postgres.Config {
	return postgres.Config{
		DSN:      c.Store.Postgres.DSN,
		Table:    c.Store.Postgres.Table,
		MaxConns: c.Store.Postgres.MaxConns,
	}
}

// CacheTTL returns the filter cache lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// RequestTimeout bounds one API request, refreshes included.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}
