// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/storage/gcs"
	"github.com/JakeFAU/sitekb-crawler/internal/storage/local"
)

// EnvPrefix prefixes environment overrides, e.g. SITEKB_SERVER_PORT.
const EnvPrefix = "SITEKB"

// Storage backends accepted in storage.backend.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	API      APIConfig      `mapstructure:"api"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ReadTimeoutSeconds     int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// CrawlerConfig governs traversal and politeness.
type CrawlerConfig struct {
	UserAgent            string  `mapstructure:"user_agent"`
	Concurrency          int     `mapstructure:"concurrency"`
	PageTimeoutSeconds   int     `mapstructure:"page_timeout_seconds"`
	BudgetSeconds        int     `mapstructure:"budget_seconds"`
	MaxBudgetSeconds     int     `mapstructure:"max_budget_seconds"`
	PerHostRPS           float64 `mapstructure:"per_host_rps"`
	PerHostBurst         int     `mapstructure:"per_host_burst"`
	RobotsTimeoutSeconds int     `mapstructure:"robots_timeout_seconds"`
	SitemapMaxURLs       int     `mapstructure:"sitemap_max_urls"`
	DedupWindowMinutes   int     `mapstructure:"dedup_window_minutes"`
	BoilerplateThreshold int     `mapstructure:"boilerplate_threshold"`
	BulkLimit            int     `mapstructure:"bulk_limit"`
	PreviewRender        bool    `mapstructure:"preview_render"`
}

// HTTPConfig configures the plain fetcher and its retries.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRedirects     int `mapstructure:"max_redirects"`
	MaxBodyBytes     int `mapstructure:"max_body_bytes"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the rendered and auto fetch strategies.
type HeadlessConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	SettleMs           int    `mapstructure:"settle_ms"`
	ExecPath           string `mapstructure:"exec_path"`
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
}

// ExtractConfig holds request defaults for extraction.
type ExtractConfig struct {
	MinTextChars        int  `mapstructure:"min_text_chars"`
	StripLinks          bool `mapstructure:"strip_links"`
	StripImages         bool `mapstructure:"strip_images"`
	ReadabilityFallback bool `mapstructure:"readability_fallback"`
}

// APIConfig holds request defaults, clamps and access control.
type APIConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BlockPrivateHosts bool   `mapstructure:"block_private_hosts"`
	DefaultMaxPages   int    `mapstructure:"default_max_pages"`
	DefaultMaxDepth   int    `mapstructure:"default_max_depth"`
	MaxPages          int    `mapstructure:"max_pages"`
	MaxDepth          int    `mapstructure:"max_depth"`
	MaxMinTextChars   int    `mapstructure:"max_min_text_chars"`
	RespectRobots     bool   `mapstructure:"respect_robots"`
	UseSitemap        bool   `mapstructure:"use_sitemap"`
	RenderMode        string `mapstructure:"render_mode"`
	MaxUploadMB       int    `mapstructure:"max_upload_mb"`
}

// StorageConfig selects where generated bundles are persisted.
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 660)
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("crawler.user_agent", "sitekb-crawler/0.1 (+https://github.com/JakeFAU/sitekb-crawler)")
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.page_timeout_seconds", 20)
	v.SetDefault("crawler.budget_seconds", 90)
	v.SetDefault("crawler.max_budget_seconds", 600)
	v.SetDefault("crawler.per_host_rps", 4.0)
	v.SetDefault("crawler.per_host_burst", 2)
	v.SetDefault("crawler.robots_timeout_seconds", 5)
	v.SetDefault("crawler.sitemap_max_urls", 1000)
	v.SetDefault("crawler.dedup_window_minutes", 30)
	v.SetDefault("crawler.boilerplate_threshold", 3)
	v.SetDefault("crawler.bulk_limit", 200)
	v.SetDefault("crawler.preview_render", false)

	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 4000)

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.settle_ms", 750)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.promotion_threshold", 400)

	v.SetDefault("extract.min_text_chars", 600)
	v.SetDefault("extract.strip_links", true)
	v.SetDefault("extract.strip_images", true)
	v.SetDefault("extract.readability_fallback", true)

	v.SetDefault("api.api_key", "")
	v.SetDefault("api.block_private_hosts", true)
	v.SetDefault("api.default_max_pages", 10)
	v.SetDefault("api.default_max_depth", 3)
	v.SetDefault("api.max_pages", 500)
	v.SetDefault("api.max_depth", 10)
	v.SetDefault("api.max_min_text_chars", 5000)
	v.SetDefault("api.respect_robots", true)
	v.SetDefault("api.use_sitemap", true)
	v.SetDefault("api.render_mode", string(crawler.RenderPlain))
	v.SetDefault("api.max_upload_mb", 32)

	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.local.base_dir", "outputs")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "sitekb")

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.page_timeout_seconds must be > 0")
	}
	if c.Crawler.BudgetSeconds <= 0 {
		return fmt.Errorf("crawler.budget_seconds must be > 0")
	}
	if c.Crawler.MaxBudgetSeconds < c.Crawler.BudgetSeconds {
		return fmt.Errorf("crawler.max_budget_seconds must be >= crawler.budget_seconds")
	}
	if c.Crawler.PerHostRPS < 0 {
		return fmt.Errorf("crawler.per_host_rps must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.API.MaxPages <= 0 || c.API.MaxDepth < 0 || c.API.MaxMinTextChars < 0 {
		return fmt.Errorf("api limits must be non-negative and api.max_pages > 0")
	}
	if c.API.DefaultMaxPages <= 0 || c.API.DefaultMaxPages > c.API.MaxPages {
		return fmt.Errorf("api.default_max_pages must be between 1 and api.max_pages")
	}
	if c.API.DefaultMaxDepth < 0 || c.API.DefaultMaxDepth > c.API.MaxDepth {
		return fmt.Errorf("api.default_max_depth must be between 0 and api.max_depth")
	}
	if c.API.MaxUploadMB <= 0 {
		return fmt.Errorf("api.max_upload_mb must be > 0")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case StorageGCS:
		if strings.TrimSpace(c.Storage.GCS.Bucket) == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// Limits converts the API clamps into request limits.
func (c Config) Limits() crawler.Limits {
	return crawler.Limits{
		MaxPages:     c.API.MaxPages,
		MaxDepth:     c.API.MaxDepth,
		MinTextChars: c.API.MaxMinTextChars,
		MaxBudget:    seconds(c.Crawler.MaxBudgetSeconds),
	}
}

// DefaultRequest returns a request carrying every configured default. The
// caller fills in the seed.
func (c Config) DefaultRequest() crawler.CrawlRequest {
	return crawler.CrawlRequest{
		MaxPages:            c.API.DefaultMaxPages,
		MaxDepth:            c.API.DefaultMaxDepth,
		RespectRobots:       c.API.RespectRobots,
		UseSitemap:          c.API.UseSitemap,
		StripLinks:          c.Extract.StripLinks,
		StripImages:         c.Extract.StripImages,
		ReadabilityFallback: c.Extract.ReadabilityFallback,
		MinTextChars:        c.Extract.MinTextChars,
		RenderMode:          crawler.ParseRenderMode(c.API.RenderMode),
		Budget:              seconds(c.Crawler.BudgetSeconds),
	}
}

// Budget returns the default run budget.
func (c Config) Budget() time.Duration {
	return seconds(c.Crawler.BudgetSeconds)
}

// RetryBackoff returns the initial and maximum retry delays.
func (c Config) RetryBackoff() (time.Duration, time.Duration) {
	return millis(c.HTTP.BackoffInitialMs), millis(c.HTTP.BackoffMaxMs)
}

// SettleDelay is how long rendered pages get to run scripts.
func (c Config) SettleDelay() time.Duration {
	return millis(c.Headless.SettleMs)
}

// ShutdownTimeout bounds graceful server shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return seconds(c.Server.ShutdownTimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
