// Package config loads and validates all runtime configuration for the
// funnel optimizer.
//
// Configuration is read from environment variables (preferred for containers)
// and from an optional config.yaml in the working directory. Environment
// variables take precedence over the YAML file. A .env file, when present,
// is loaded into the process environment first.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case. For example JWT_SECRET becomes jwt_secret
// in YAML. The model catalog (providers, models, services) lives only in
// the YAML file; see internal/catalog.
//
// JWT_SECRET is the only required setting. Without any provider the
// service still answers, from the simulation tier.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/marco-2806/OtimizaAds/internal/catalog"
	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/providers"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel is one of: debug, info, warn, error. Default: info.
	LogLevel string

	// ServiceName is the catalog service key analyses run under.
	// Default: funnel_analysis.
	ServiceName string

	Redis          RedisConfig
	Cache          CacheConfig
	Provider       ProviderConfig
	CircuitBreaker CircuitBreakerConfig
	Text           TextConfig
	Auth           AuthConfig
	Quota          QuotaConfig
	Usage          UsageConfig

	// SimulationDelay is slept before a simulated result is returned.
	// Default: 0.
	SimulationDelay time.Duration

	// CORSOrigins is the list of allowed CORS origins. Default: ["*"].
	CORSOrigins []string

	// HealthProbeInterval is the period of the background health probes.
	// Default: 30s.
	HealthProbeInterval time.Duration

	// Catalog is the model catalog from config.yaml, with a default model
	// derived from provider env keys when the file maps none.
	Catalog catalog.Spec
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. When set, quota counters live in
	// Redis; otherwise they are per-process.
	URL string
}

// CacheConfig controls the analysis result cache.
type CacheConfig struct {
	// Mode selects the backend:
	//   "redis": shared across replicas (requires REDIS_URL).
	//   "memory": in-process TTL map.
	//   "none": caching disabled.
	// Default: "memory".
	Mode string

	// TTL is how long a computed analysis stays servable. Default: 24h.
	TTL time.Duration

	// ExcludeExact and ExcludePatterns name services whose analyses are
	// never cached, by exact name or Go regular expression.
	ExcludeExact    []string
	ExcludePatterns []string
}

// ProviderConfig controls provider dispatch.
type ProviderConfig struct {
	// Timeout bounds each provider call unless the catalog entry overrides
	// it. Default: 45s.
	Timeout time.Duration
}

// CircuitBreakerConfig controls per-provider circuit breaker settings.
type CircuitBreakerConfig struct {
	// ErrorThreshold is the number of errors within TimeWindow that trip
	// the breaker. Default: 5.
	ErrorThreshold int

	// TimeWindow is the rolling window over which errors are counted.
	// Default: 60s.
	TimeWindow time.Duration

	// HalfOpenTimeout is how long the breaker stays open before allowing a
	// single probe request. Default: 30s.
	HalfOpenTimeout time.Duration
}

// TextConfig bounds the accepted ad and landing page text, in characters.
type TextConfig struct {
	MinLength int
	MaxLength int
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// JWTSecret is the HMAC secret tokens are signed with. Required.
	JWTSecret string
	// JWTIssuer, when set, must match the token's iss claim.
	JWTIssuer string
}

// QuotaConfig controls per-user allowances.
type QuotaConfig struct {
	// Limit is the number of analyses per user per calendar month.
	// 0 disables the limit. Default: 0.
	Limit int64

	// RPMLimit caps requests per user per minute. Requires REDIS_URL.
	// 0 disables it. Default: 0.
	RPMLimit int
}

// UsageConfig selects where usage and audit records go.
type UsageConfig struct {
	// ClickHouseDSN enables the ClickHouse sink when set. Records always
	// go to the structured log as well.
	ClickHouseDSN string
}

// Load reads configuration from .env, config.yaml and the environment in
// the current working directory.
func Load() (*Config, error) {
	return LoadDir(".")
}

// LoadDir is Load rooted at dir.
func LoadDir(dir string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config.yaml: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVICE_NAME", funnel.ServiceName)
	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "24h")
	v.SetDefault("PROVIDER_TIMEOUT", providers.DefaultTimeout.String())
	v.SetDefault("MIN_TEXT_LENGTH", funnel.DefaultMinTextLength)
	v.SetDefault("MAX_TEXT_LENGTH", funnel.DefaultMaxTextLength)
	v.SetDefault("QUOTA_LIMIT", 0)
	v.SetDefault("RPM_LIMIT", 0)
	v.SetDefault("SIMULATION_DELAY", "0s")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("HEALTH_PROBE_INTERVAL", "30s")

	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_TIME_WINDOW", "60s")
	v.SetDefault("CB_HALF_OPEN_TIMEOUT", "30s")

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:        v.GetInt("PORT"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		ServiceName: strings.TrimSpace(v.GetString("SERVICE_NAME")),

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Cache: CacheConfig{
			Mode:            strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:             v.GetDuration("CACHE_TTL"),
			ExcludeExact:    stringList(v, "CACHE_EXCLUDE_EXACT"),
			ExcludePatterns: stringList(v, "CACHE_EXCLUDE_PATTERNS"),
		},

		Provider: ProviderConfig{Timeout: v.GetDuration("PROVIDER_TIMEOUT")},

		CircuitBreaker: CircuitBreakerConfig{
			ErrorThreshold:  v.GetInt("CB_ERROR_THRESHOLD"),
			TimeWindow:      v.GetDuration("CB_TIME_WINDOW"),
			HalfOpenTimeout: v.GetDuration("CB_HALF_OPEN_TIMEOUT"),
		},

		Text: TextConfig{
			MinLength: v.GetInt("MIN_TEXT_LENGTH"),
			MaxLength: v.GetInt("MAX_TEXT_LENGTH"),
		},

		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			JWTIssuer: v.GetString("JWT_ISSUER"),
		},

		Quota: QuotaConfig{
			Limit:    v.GetInt64("QUOTA_LIMIT"),
			RPMLimit: v.GetInt("RPM_LIMIT"),
		},

		Usage: UsageConfig{ClickHouseDSN: v.GetString("CLICKHOUSE_DSN")},

		SimulationDelay:     v.GetDuration("SIMULATION_DELAY"),
		CORSOrigins:         stringList(v, "CORS_ORIGINS"),
		HealthProbeInterval: v.GetDuration("HEALTH_PROBE_INTERVAL"),
	}

	spec, err := catalog.Load(v)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Catalog = spec.WithEnvDefault(cfg.ServiceName, envProviders(v)...)

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envProviders lists the providers configured through API key variables.
// FUNNEL_PROVIDER moves the named kind to the front; FUNNEL_MODEL overrides
// that provider's default model.
func envProviders(v *viper.Viper) []catalog.EnvProvider {
	envs := []catalog.EnvProvider{
		{Kind: providers.KindOpenAI, APIKey: v.GetString("OPENAI_API_KEY"), Endpoint: v.GetString("OPENAI_BASE_URL")},
		{Kind: providers.KindAnthropic, APIKey: v.GetString("ANTHROPIC_API_KEY"), Endpoint: v.GetString("ANTHROPIC_BASE_URL")},
		{Kind: providers.KindGemini, APIKey: v.GetString("GOOGLE_API_KEY"), Endpoint: v.GetString("GEMINI_BASE_URL")},
	}

	preferred := strings.ToLower(strings.TrimSpace(v.GetString("FUNNEL_PROVIDER")))
	if preferred == "" {
		return envs
	}
	for i, e := range envs {
		if e.Kind != preferred {
			continue
		}
		e.Model = v.GetString("FUNNEL_MODEL")
		return append([]catalog.EnvProvider{e}, append(envs[:i:i], envs[i+1:]...)...)
	}
	return envs
}

// stringList reads key as a YAML list or as a comma-separated env value.
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	if s, ok := v.Get(key).(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = v.GetStringSlice(key)
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}

	if c.ServiceName == "" {
		return fmt.Errorf("config: SERVICE_NAME must not be empty")
	}

	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf(
			"config: invalid CACHE_MODE %q; must be one of: redis, memory, none",
			c.Cache.Mode,
		)
	}
	if c.Cache.Mode == "redis" && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when CACHE_MODE=redis; " +
				"set CACHE_MODE=memory to use the built-in in-process cache",
		)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be a positive duration")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	if c.Provider.Timeout < providers.MinTimeout || c.Provider.Timeout > providers.MaxTimeout {
		return fmt.Errorf("config: PROVIDER_TIMEOUT must be between %s and %s, got %s",
			providers.MinTimeout, providers.MaxTimeout, c.Provider.Timeout)
	}

	if c.Text.MinLength < 1 {
		return fmt.Errorf("config: MIN_TEXT_LENGTH must be ≥ 1, got %d", c.Text.MinLength)
	}
	if c.Text.MaxLength < c.Text.MinLength {
		return fmt.Errorf("config: MAX_TEXT_LENGTH (%d) must be ≥ MIN_TEXT_LENGTH (%d)",
			c.Text.MaxLength, c.Text.MinLength)
	}

	if c.Quota.Limit < 0 {
		return fmt.Errorf("config: QUOTA_LIMIT must be ≥ 0, got %d", c.Quota.Limit)
	}
	if c.Quota.RPMLimit < 0 {
		return fmt.Errorf("config: RPM_LIMIT must be ≥ 0, got %d", c.Quota.RPMLimit)
	}
	if c.Quota.RPMLimit > 0 && c.Redis.URL == "" {
		return fmt.Errorf("config: RPM_LIMIT requires REDIS_URL")
	}

	if c.SimulationDelay < 0 {
		return fmt.Errorf("config: SIMULATION_DELAY must not be negative")
	}

	if c.CircuitBreaker.ErrorThreshold < 1 {
		return fmt.Errorf("config: CB_ERROR_THRESHOLD must be ≥ 1, got %d", c.CircuitBreaker.ErrorThreshold)
	}
	if c.CircuitBreaker.TimeWindow <= 0 {
		return fmt.Errorf("config: CB_TIME_WINDOW must be a positive duration")
	}

	return nil
}

// Limits returns the text bounds in the form the request parser takes.
func (c *Config) Limits() funnel.Limits {
	return funnel.Limits{MinLength: c.Text.MinLength, MaxLength: c.Text.MaxLength}
}

// Breaker returns the circuit breaker settings for the provider registry.
func (c *Config) Breaker() providers.CBConfig {
	return providers.CBConfig{
		ErrorThreshold:  c.CircuitBreaker.ErrorThreshold,
		TimeWindow:      c.CircuitBreaker.TimeWindow,
		HalfOpenTimeout: c.CircuitBreaker.HalfOpenTimeout,
	}
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
