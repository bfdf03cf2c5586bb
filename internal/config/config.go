// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage. An empty DatabaseURL selects in-memory stores; an empty
	// RedisURL disables caching and shared rate limits.
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// SeedPath is a JSON fixture loaded into the in-memory stores when
	// DatabaseURL is empty. Ignored with a database.
	SeedPath string `koanf:"seed_path"`

	// JWT verification. JWTPreviousSecret is accepted during rotation.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Feed and ranking
	RankingCalibrationPath  string        `koanf:"ranking_calibration_path"`
	FeedCandidateLimit      int           `koanf:"feed_candidate_limit"`
	TrendingRefreshInterval time.Duration `koanf:"trending_refresh_interval"`
	TrendingCacheTTL        time.Duration `koanf:"trending_cache_ttl"`
	PreferenceCacheTTL      time.Duration `koanf:"preference_cache_ttl"`

	// Rate limiting for write routes. Feed reads get twice the budget.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret      = errors.New("JWT_SECRET is required")
	ErrInvalidPort           = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidNumber         = errors.New("value must be a valid number")
	ErrInvalidDuration       = errors.New("value must be a valid duration")
	ErrInvalidCandidateLimit = errors.New("FEED_CANDIDATE_LIMIT must be > 0")
	ErrInvalidRefresh        = errors.New("TRENDING_REFRESH_INTERVAL must be > 0")
	ErrInvalidCacheTTL       = errors.New("cache TTLs must be > 0")
	ErrInvalidRateLimit      = errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	ErrInvalidSampleRate     = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidExporter       = errors.New("TRACING_EXPORTER must be otlp-http or otlp-grpc")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultFeedCandidateLimit      = 200
	DefaultTrendingRefreshInterval = time.Minute
	DefaultTrendingCacheTTL        = 5 * time.Minute
	DefaultPreferenceCacheTTL      = 5 * time.Minute
	DefaultRateLimitRequests       = 60
	DefaultRateLimitWindow         = time.Minute
	DefaultTracingExporter         = "otlp-http"
	DefaultTracingSampleRate       = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// Try WANTLIST_PORT first, then PORT for platform compatibility
	port, err := getEnvIntOrDefaultMulti([]string{"WANTLIST_PORT", "PORT"}, k.Int("port"), DefaultPort)
	collect(err)

	candidateLimit, err := getEnvIntOrDefault("FEED_CANDIDATE_LIMIT", k.Int("feed_candidate_limit"), DefaultFeedCandidateLimit)
	collect(err)
	refreshInterval, err := getEnvDurationOrDefault("TRENDING_REFRESH_INTERVAL", k.Duration("trending_refresh_interval"), DefaultTrendingRefreshInterval)
	collect(err)
	trendingTTL, err := getEnvDurationOrDefault("TRENDING_CACHE_TTL", k.Duration("trending_cache_ttl"), DefaultTrendingCacheTTL)
	collect(err)
	preferenceTTL, err := getEnvDurationOrDefault("PREFERENCE_CACHE_TTL", k.Duration("preference_cache_ttl"), DefaultPreferenceCacheTTL)
	collect(err)

	rateLimitRequests, err := getEnvIntOrDefault("RATE_LIMIT_REQUESTS", k.Int("rate_limit_requests"), DefaultRateLimitRequests)
	collect(err)
	rateLimitWindow, err := getEnvDurationOrDefault("RATE_LIMIT_WINDOW", k.Duration("rate_limit_window"), DefaultRateLimitWindow)
	collect(err)

	sampleRate := DefaultTracingSampleRate
	if k.Exists("tracing_sample_rate") {
		sampleRate = k.Float64("tracing_sample_rate")
	}
	sampleRate, err = getEnvFloatOrDefault("TRACING_SAMPLE_RATE", sampleRate, sampleRate)
	collect(err)

	cfg := &Config{
		Port:                    port,
		Env:                     getEnvOrDefaultMulti([]string{"WANTLIST_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:             getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		SeedPath:                getEnvOrKoanf("SEED_PATH", k, "seed_path"),
		JWTSecret:               getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:       getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		RankingCalibrationPath:  getEnvOrKoanf("RANKING_CALIBRATION_PATH", k, "ranking_calibration_path"),
		FeedCandidateLimit:      candidateLimit,
		TrendingRefreshInterval: refreshInterval,
		TrendingCacheTTL:        trendingTTL,
		PreferenceCacheTTL:      preferenceTTL,
		RateLimitRequests:       rateLimitRequests,
		RateLimitWindow:         rateLimitWindow,
		TracingEnabled:          getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporter:         getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		OTLPEndpoint:            getEnvOrDefaultMulti([]string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTLP_ENDPOINT"}, k.String("otlp_endpoint"), ""),
		TracingSampleRate:       sampleRate,
		TracingInsecure:         getEnvBoolOrKoanf("TRACING_INSECURE", k, "tracing_insecure"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	return getEnvOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidNumber)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, ErrInvalidNumber)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault parses Go duration strings such as "90s" or "5m".
func getEnvDurationOrDefault(envKey string, koanfVal time.Duration, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a duration like 30s or 5m: %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrKoanf accepts true/1/yes/on and false/0/no/off from the
// environment; anything else leaves the file value in place.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	result := k.Bool(koanfKey)
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}

// Validate checks that all required configuration values are present and in range.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.FeedCandidateLimit <= 0 {
		errs = append(errs, ErrInvalidCandidateLimit)
	}
	if c.TrendingRefreshInterval <= 0 {
		errs = append(errs, ErrInvalidRefresh)
	}
	if c.TrendingCacheTTL <= 0 || c.PreferenceCacheTTL <= 0 {
		errs = append(errs, ErrInvalidCacheTTL)
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
		errs = append(errs, ErrInvalidExporter)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      strconv.Itoa(c.Port),
		"env":                       c.Env,
		"database_url":              maskURL(c.DatabaseURL),
		"redis_url":                 maskURL(c.RedisURL),
		"seed_path":                 c.SeedPath,
		"jwt_secret":                maskSecret(c.JWTSecret),
		"jwt_previous_secret":       maskSecret(c.JWTPreviousSecret),
		"ranking_calibration_path":  c.RankingCalibrationPath,
		"feed_candidate_limit":      strconv.Itoa(c.FeedCandidateLimit),
		"trending_refresh_interval": c.TrendingRefreshInterval.String(),
		"trending_cache_ttl":        c.TrendingCacheTTL.String(),
		"preference_cache_ttl":      c.PreferenceCacheTTL.String(),
		"rate_limit_requests":       strconv.Itoa(c.RateLimitRequests),
		"rate_limit_window":         c.RateLimitWindow.String(),
		"tracing_enabled":           strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":          c.TracingExporter,
		"otlp_endpoint":             c.OTLPEndpoint,
		"tracing_sample_rate":       strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL masks the password in a connection URL (postgres://, redis://, rediss://).
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
