// Package config loads and validates all runtime configuration for the
// Gateway and Harness.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file.
//
// Only a closed environment-variable set is honored: LLM_PROVIDER,
// LLM_MODEL, LLM_TIMEOUT_SECONDS, LLM_MAX_RETRIES, CACHE_ENABLED,
// CACHE_TTL_SECONDS, CACHE_MAX_ENTRIES, RATE_LIMIT_QPS, RATE_LIMIT_TPM,
// PROMPT_VERSION, LOG_DIR, plus the ambient PORT/LOG_LEVEL/CORS_ORIGINS
// server knobs, the provider credential/Redis knobs needed to reach
// a remote model or a shared cache/rate-limit backend, and CACHE_BACKEND,
// CACHE_EXCLUDE_EXACT, CACHE_EXCLUDE_PATTERNS, RPM_LIMIT and
// PROMPT_REGISTRY_DIR.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed CORS origins. ["*"] allows any.
	CORSOrigins []string

	// LLM selects and configures the single active Provider.
	LLM LLMConfig

	// Cache controls the response cache.
	Cache CacheConfig

	// RateLimit controls the rate limiter.
	RateLimit RateLimitConfig

	// PromptRegistry controls the prompt registry.
	PromptRegistry PromptRegistryConfig

	// LogDir is the directory the audit log store writes
	// day-partitioned JSONL files into.
	LogDir string

	// Redis, when URL is set, backs the distributed RPM guard and/or the
	// response cache with a shared store instead of the in-process one.
	Redis RedisConfig
}

// LLMConfig configures the single Provider the Gateway wraps.
type LLMConfig struct {
	// Provider selects the Provider implementation: "mock" or "remote".
	// Default: "mock".
	Provider string

	// Model is the model name passed through to the Provider and used
	// for pricing lookups and cache-exclusion matching.
	Model string

	// APIKey / BaseURL configure the remote Provider. Unused by mock.
	APIKey  string
	BaseURL string

	// TimeoutSeconds is the per-attempt LLM Client timeout. Default: 30.
	TimeoutSeconds int

	// MaxRetries is the number of retries after the first attempt
	// (total attempts = MaxRetries+1). Default: 3.
	MaxRetries int
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Enabled toggles the cache entirely. Default: true.
	Enabled bool

	// TTLSeconds is the cache entry lifetime. Default: 3600.
	TTLSeconds int

	// MaxEntries bounds the in-process backend's size; 0 means unbounded.
	MaxEntries int

	// ExcludeExact / ExcludePatterns name models that must never be cached.
	ExcludeExact    []string
	ExcludePatterns []string

	// Backend selects the cache store: "memory" (default) or "redis".
	Backend string
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RateLimitConfig controls the token-bucket Rate Limiter.
type RateLimitConfig struct {
	// QPS is the max queries-per-second bucket capacity/refill rate.
	// 0 disables the QPS bucket.
	QPS float64

	// TPM is the max tokens-per-minute bucket capacity; refill rate is
	// TPM/60 per second. 0 disables the TPM bucket.
	TPM float64

	// RPMLimit, when > 0, layers the Redis-backed distributed RPM guard
	// in front of the in-process buckets (internal/ratelimit.RPMLimiter).
	RPMLimit int
}

// PromptRegistryConfig controls the Prompt Registry.
type PromptRegistryConfig struct {
	// Dir is the directory of *.yaml/*.yml prompt descriptors.
	Dir string

	// DefaultVersion is the version used when a request's requested
	// version is absent or unknown. Empty means "newest known version".
	DefaultVersion string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL string
}

// Load reads configuration from environment variables and (optionally)
// from config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	v.SetDefault("LLM_PROVIDER", "mock")
	v.SetDefault("LLM_MODEL", "mock-1")
	v.SetDefault("LLM_TIMEOUT_SECONDS", 30)
	v.SetDefault("LLM_MAX_RETRIES", 3)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL_SECONDS", 3600)
	v.SetDefault("CACHE_MAX_ENTRIES", 10_000)
	v.SetDefault("CACHE_BACKEND", "memory")

	v.SetDefault("RATE_LIMIT_QPS", 0)
	v.SetDefault("RATE_LIMIT_TPM", 0)
	v.SetDefault("RPM_LIMIT", 0)

	v.SetDefault("PROMPT_REGISTRY_DIR", "prompts")
	v.SetDefault("PROMPT_VERSION", "")

	v.SetDefault("LOG_DIR", "audit-logs")

	cfg := &Config{
		Port:        v.GetInt("PORT"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),

		LLM: LLMConfig{
			Provider:       strings.ToLower(v.GetString("LLM_PROVIDER")),
			Model:          v.GetString("LLM_MODEL"),
			APIKey:         v.GetString("OPENAI_API_KEY"),
			BaseURL:        v.GetString("OPENAI_BASE_URL"),
			TimeoutSeconds: v.GetInt("LLM_TIMEOUT_SECONDS"),
			MaxRetries:     v.GetInt("LLM_MAX_RETRIES"),
		},

		Cache: CacheConfig{
			Enabled:         v.GetBool("CACHE_ENABLED"),
			TTLSeconds:      v.GetInt("CACHE_TTL_SECONDS"),
			MaxEntries:      v.GetInt("CACHE_MAX_ENTRIES"),
			ExcludeExact:    v.GetStringSlice("CACHE_EXCLUDE_EXACT"),
			ExcludePatterns: v.GetStringSlice("CACHE_EXCLUDE_PATTERNS"),
			Backend:         strings.ToLower(v.GetString("CACHE_BACKEND")),
		},

		RateLimit: RateLimitConfig{
			QPS:      v.GetFloat64("RATE_LIMIT_QPS"),
			TPM:      v.GetFloat64("RATE_LIMIT_TPM"),
			RPMLimit: v.GetInt("RPM_LIMIT"),
		},

		PromptRegistry: PromptRegistryConfig{
			Dir:            v.GetString("PROMPT_REGISTRY_DIR"),
			DefaultVersion: v.GetString("PROMPT_VERSION"),
		},

		LogDir: v.GetString("LOG_DIR"),

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "mock", "remote":
	default:
		return fmt.Errorf("config: invalid LLM_PROVIDER %q; must be one of: mock, remote", c.LLM.Provider)
	}
	if c.LLM.Provider == "remote" && c.LLM.APIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required when LLM_PROVIDER=remote")
	}
	if c.LLM.TimeoutSeconds < 1 {
		return fmt.Errorf("config: LLM_TIMEOUT_SECONDS must be ≥ 1, got %d", c.LLM.TimeoutSeconds)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("config: LLM_MAX_RETRIES must be ≥ 0, got %d", c.LLM.MaxRetries)
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: invalid CACHE_BACKEND %q; must be one of: memory, redis", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("config: REDIS_URL is required when CACHE_BACKEND=redis")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.RateLimit.RPMLimit > 0 && c.Redis.URL == "" {
		return fmt.Errorf("config: REDIS_URL is required when RPM_LIMIT > 0 (distributed RPM guard)")
	}

	return nil
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
