// Package config loads wikiexplorer settings from defaults, an optional
// config file, WIKIEXPLORER_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. WIKIEXPLORER_LANGUAGE.
const EnvPrefix = "WIKIEXPLORER"

// Config holds the settings shared by every command.
type Config struct {
	Language      string   `mapstructure:"language"`
	Backend       string   `mapstructure:"backend"`
	MarkdownRoot  string   `mapstructure:"markdown_root"`
	MaxPathLength int      `mapstructure:"max_path_length"`
	Forbidden     []string `mapstructure:"forbidden"`
	NoNavBoxes    bool     `mapstructure:"no_nav_boxes"`

	Oracle         string `mapstructure:"oracle"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	OpenAIBaseURL  string `mapstructure:"openai_base_url"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	EmbeddingURL   string `mapstructure:"embedding_url"`

	Cache     string        `mapstructure:"cache"`
	CacheDir  string        `mapstructure:"cache_dir"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	RedisAddr string        `mapstructure:"redis_addr"`

	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	PrefetchWorkers   int           `mapstructure:"prefetch_workers"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`

	Addr             string        `mapstructure:"addr"`
	TLSCert          string        `mapstructure:"tls_cert"`
	TLSKey           string        `mapstructure:"tls_key"`
	SearchTimeout    time.Duration `mapstructure:"search_timeout"`
	APIRequestsPerIP float64       `mapstructure:"api_requests_per_ip"`
	TokensFile       string        `mapstructure:"tokens_file"`

	LogFormat string `mapstructure:"log_format"`
	LogLevel  string `mapstructure:"log_level"`
}

// Backends, oracles and caches understood by the explorer.
const (
	BackendWiki     = "wiki"
	BackendMarkdown = "markdown"

	OracleTokens  = "tokens"
	OracleOpenAI  = "openai"
	OracleService = "service"

	CacheNone   = "none"
	CacheFile   = "file"
	CacheBadger = "badger"
	CacheRedis  = "redis"
)

var defaults = map[string]any{
	"language":            "en",
	"backend":             BackendWiki,
	"markdown_root":       "",
	"max_path_length":     0,
	"forbidden":           []string{},
	"no_nav_boxes":        false,
	"oracle":              OracleTokens,
	"openai_api_key":      "",
	"openai_base_url":     "",
	"embedding_model":     "",
	"embedding_url":       "",
	"cache":               CacheNone,
	"cache_dir":           "",
	"cache_ttl":           7 * 24 * time.Hour,
	"redis_addr":          "",
	"requests_per_second": 10.0,
	"burst":               5,
	"prefetch_workers":    0,
	"http_timeout":        30 * time.Second,
	"addr":                ":8080",
	"tls_cert":            "",
	"tls_key":             "",
	"search_timeout":      time.Duration(0),
	"api_requests_per_ip": 0.0,
	"tokens_file":         "",
	"log_format":          "text",
	"log_level":           "info",
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"language":        "language",
	"backend":         "backend",
	"markdown-root":   "markdown_root",
	"max-path-length": "max_path_length",
	"forbidden":       "forbidden",
	"no-nav-boxes":    "no_nav_boxes",
	"oracle":          "oracle",
	"cache":           "cache",
	"cache-dir":       "cache_dir",
	"prefetch":        "prefetch_workers",
	"addr":            "addr",
	"tls-cert":        "tls_cert",
	"tls-key":         "tls_key",
	"search-timeout":  "search_timeout",
	"tokens-file":     "tokens_file",
	"log-format":      "log_format",
	"log-level":       "log_level",
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, if given, into v and decodes and validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if cfg.CacheDir == "" && (cfg.Cache == CacheFile || cfg.Cache == CacheBadger) {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locate cache directory: %w", err)
		}
		cfg.CacheDir = filepath.Join(dir, "wikiexplorer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Oracle = strings.ToLower(strings.TrimSpace(c.Oracle))
	c.Cache = strings.ToLower(strings.TrimSpace(c.Cache))

	forbidden := c.Forbidden[:0]
	for _, f := range c.Forbidden {
		if f = strings.TrimSpace(f); f != "" {
			forbidden = append(forbidden, f)
		}
	}
	c.Forbidden = forbidden
}

// Validate checks that the settings are consistent.
func (c *Config) Validate() error {
	var errs []error
	if c.Language != "en" && c.Language != "he" {
		errs = append(errs, fmt.Errorf("language must be en or he, got %q", c.Language))
	}
	switch c.Backend {
	case BackendWiki:
	case BackendMarkdown:
		if c.MarkdownRoot == "" {
			errs = append(errs, errors.New("markdown_root is required for the markdown backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	switch c.Oracle {
	case OracleTokens:
	case OracleOpenAI:
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("openai_api_key or openai_base_url is required for the openai oracle"))
		}
	case OracleService:
		if c.EmbeddingURL == "" {
			errs = append(errs, errors.New("embedding_url is required for the service oracle"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown oracle %q", c.Oracle))
	}
	switch c.Cache {
	case CacheNone, CacheFile, CacheBadger:
	case CacheRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache %q", c.Cache))
	}
	if c.MaxPathLength < 0 {
		errs = append(errs, errors.New("max_path_length must not be negative"))
	}
	if c.PrefetchWorkers < 0 {
		errs = append(errs, errors.New("prefetch_workers must not be negative"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	if c.SearchTimeout < 0 {
		errs = append(errs, errors.New("search_timeout must not be negative"))
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		errs = append(errs, errors.New("burst must be at least 1"))
	}
	return errors.Join(errs...)
}
