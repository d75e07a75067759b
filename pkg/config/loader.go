package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader loads configuration with precedence flags > env > secrets file >
// config file > defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet

	v          *viper.Viper
	secretKeys []string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g. "LISTING")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load reads, merges, unmarshals and validates the configuration.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	secretsFile, err := l.discoverSecretsFile()
	if err != nil {
		return nil, err
	}
	l.secretKeys = nil
	if secretsFile != "" {
		sv := viper.New()
		sv.SetConfigFile(secretsFile)
		if err := sv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
		}
		if err := v.MergeConfigMap(sv.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to merge secrets: %w", err)
		}
		l.secretKeys = sv.AllKeys()
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)
	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	l.v = v
	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested keys
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	bindings := map[string]string{
		"service.name":        "SERVICE_NAME",
		"service.environment": "ENVIRONMENT",

		"http.port":             "HTTP_PORT",
		"http.read_timeout":     "HTTP_READ_TIMEOUT",
		"http.write_timeout":    "HTTP_WRITE_TIMEOUT",
		"http.idle_timeout":     "HTTP_IDLE_TIMEOUT",
		"http.max_request_size": "HTTP_MAX_REQUEST_SIZE",
		"http.max_query_length": "HTTP_MAX_QUERY_LENGTH",

		"management.enabled":       "MGMT_ENABLED",
		"management.port":          "MGMT_PORT",
		"management.read_timeout":  "MGMT_READ_TIMEOUT",
		"management.write_timeout": "MGMT_WRITE_TIMEOUT",

		"database.type":            "DB_TYPE",
		"database.url":             "DB_URL",
		"database.database_name":   "DB_NAME",
		"database.connect_timeout": "DB_CONNECT_TIMEOUT",
		"database.query_timeout":   "DB_QUERY_TIMEOUT",
		"database.max_pool_size":   "DB_MAX_POOL_SIZE",
		"database.seed_file":       "DB_SEED_FILE",

		"cache.type":              "CACHE_TYPE",
		"cache.url":               "CACHE_URL",
		"cache.max_conns":         "CACHE_MAX_CONNS",
		"cache.operation_timeout": "CACHE_OPERATION_TIMEOUT",
		"cache.capacity":          "CACHE_CAPACITY",
		"cache.num_shards":        "CACHE_NUM_SHARDS",
		"cache.breaker_failures":  "CACHE_BREAKER_FAILURES",
		"cache.breaker_cooldown":  "CACHE_BREAKER_COOLDOWN",

		"listing.cache_ttl":  "LISTING_CACHE_TTL",
		"listing.max_limit":  "LISTING_MAX_LIMIT",
		"listing.key_prefix": "LISTING_KEY_PREFIX",

		"auth.enabled":  "AUTH_ENABLED",
		"auth.secret":   "AUTH_SECRET",
		"auth.issuer":   "AUTH_ISSUER",
		"auth.audience": "AUTH_AUDIENCE",

		"rate_limit.enabled": "RATE_LIMIT_ENABLED",
		"rate_limit.backend": "RATE_LIMIT_BACKEND",
		"rate_limit.rps":     "RATE_LIMIT_RPS",
		"rate_limit.burst":   "RATE_LIMIT_BURST",

		"observability.log_level":           "LOG_LEVEL",
		"observability.log_format":          "LOG_FORMAT",
		"observability.tracing_enabled":     "TRACING_ENABLED",
		"observability.tracing_sample_rate": "TRACING_SAMPLE_RATE",
		"observability.tracing_endpoint":    "TRACING_ENDPOINT",
	}
	for key, suffix := range bindings {
		_ = v.BindEnv(key, l.prefixedEnv(suffix))
	}
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "LISTING"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.max_request_size", cfg.HTTP.MaxRequestSize)
	v.SetDefault("http.max_query_length", cfg.HTTP.MaxQueryLength)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)
	v.SetDefault("database.max_pool_size", cfg.Database.MaxPoolSize)
	v.SetDefault("database.seed_file", cfg.Database.SeedFile)

	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.url", cfg.Cache.URL)
	v.SetDefault("cache.max_conns", cfg.Cache.MaxConns)
	v.SetDefault("cache.operation_timeout", cfg.Cache.OperationTimeout)
	v.SetDefault("cache.capacity", cfg.Cache.Capacity)
	v.SetDefault("cache.num_shards", cfg.Cache.NumShards)
	v.SetDefault("cache.breaker_failures", cfg.Cache.BreakerFailures)
	v.SetDefault("cache.breaker_cooldown", cfg.Cache.BreakerCooldown)

	v.SetDefault("listing.cache_ttl", cfg.Listing.CacheTTL)
	v.SetDefault("listing.max_limit", cfg.Listing.MaxLimit)
	v.SetDefault("listing.key_prefix", cfg.Listing.KeyPrefix)

	v.SetDefault("auth.enabled", cfg.Auth.Enabled)
	v.SetDefault("auth.secret", cfg.Auth.Secret)
	v.SetDefault("auth.issuer", cfg.Auth.Issuer)
	v.SetDefault("auth.audience", cfg.Auth.Audience)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.backend", cfg.RateLimit.Backend)
	v.SetDefault("rate_limit.rps", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
}

// discoverSecretsFile resolves the optional secrets file:
// 1. <ENV_PREFIX>_SECRETS_FILE
// 2. secrets.<ext> next to the config file
func (l *ViperLoader) discoverSecretsFile() (string, error) {
	secretsEnv := l.prefixedEnv("SECRETS_FILE")
	if raw, ok := os.LookupEnv(secretsEnv); ok {
		secretsFile := strings.TrimSpace(raw)
		if secretsFile == "" {
			return "", fmt.Errorf("%s is set but empty", secretsEnv)
		}
		info, err := os.Stat(secretsFile)
		if err != nil {
			return "", fmt.Errorf("%s points to an inaccessible file %s: %w", secretsEnv, secretsFile, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s must point to a file, got directory %s", secretsEnv, secretsFile)
		}
		return secretsFile, nil
	}

	if l.configFile != "" {
		secretsFile := filepath.Join(filepath.Dir(l.configFile), "secrets"+filepath.Ext(l.configFile))
		if info, err := os.Stat(secretsFile); err == nil && !info.IsDir() {
			return secretsFile, nil
		}
	}
	return "", nil
}

// sensitiveKeys are always redacted by RedactedSettings.
var sensitiveKeys = []string{"auth.secret", "database.url", "cache.url"}

// RedactedSettings returns the effective settings of the last successful Load
// as a nested map, with secrets replaced by "***". Every key read from the
// secrets file counts as a secret.
func (l *ViperLoader) RedactedSettings() map[string]interface{} {
	if l.v == nil {
		return map[string]interface{}{}
	}
	settings := l.v.AllSettings()
	keys := append(append([]string{}, sensitiveKeys...), l.secretKeys...)
	sort.Strings(keys)
	for _, key := range keys {
		redactPath(settings, strings.Split(key, "."))
	}
	return settings
}

func redactPath(settings map[string]interface{}, path []string) {
	value, ok := settings[path[0]]
	if !ok {
		return
	}
	if len(path) > 1 {
		if child, isMap := value.(map[string]interface{}); isMap {
			redactPath(child, path[1:])
		}
		return
	}
	if s, isString := value.(string); isString && s == "" {
		return
	}
	settings[path[0]] = "***"
}

// Validate checks the configuration and returns every problem found
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	validPort := func(name string, port int) {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("invalid %s: %d (must be between 1 and 65535)", name, port))
		}
	}
	validPort("http.port", cfg.HTTP.Port)
	if cfg.HTTP.MaxRequestSize < 0 {
		errs = append(errs, errors.New("http.max_request_size cannot be negative"))
	}
	if cfg.HTTP.MaxQueryLength < 0 {
		errs = append(errs, errors.New("http.max_query_length cannot be negative"))
	}
	if cfg.Management.Enabled {
		validPort("management.port", cfg.Management.Port)
		if cfg.HTTP.Port == cfg.Management.Port {
			errs = append(errs, errors.New("http.port and management.port must be different"))
		}
	}

	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	switch cfg.Database.Type {
	case DatabaseTypeMongoDB:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for mongodb"))
		}
		if cfg.Database.DatabaseName == "" {
			errs = append(errs, errors.New("database.database_name is required for mongodb"))
		}
	case DatabaseTypeMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid database.type: %q (must be one of: mongodb, memory)", cfg.Database.Type))
	}
	if cfg.Database.QueryTimeout <= 0 {
		errs = append(errs, errors.New("database.query_timeout must be positive"))
	}

	cfg.Cache.Type = strings.ToLower(strings.TrimSpace(cfg.Cache.Type))
	switch cfg.Cache.Type {
	case CacheTypeRedis:
		if cfg.Cache.URL == "" {
			errs = append(errs, errors.New("cache.url is required for redis"))
		} else if _, err := url.Parse(cfg.Cache.URL); err != nil {
			errs = append(errs, fmt.Errorf("invalid cache.url: %w", err))
		}
	case CacheTypeMemory:
		if cfg.Cache.Capacity <= 0 || cfg.Cache.NumShards <= 0 {
			errs = append(errs, errors.New("cache.capacity and cache.num_shards must be positive for memory cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid cache.type: %q (must be one of: redis, memory)", cfg.Cache.Type))
	}
	if cfg.Cache.BreakerFailures <= 0 {
		errs = append(errs, errors.New("cache.breaker_failures must be positive"))
	}

	if cfg.Listing.CacheTTL <= 0 {
		errs = append(errs, errors.New("listing.cache_ttl must be positive"))
	}
	if cfg.Listing.MaxLimit <= 0 {
		errs = append(errs, errors.New("listing.max_limit must be positive"))
	}
	if strings.TrimSpace(cfg.Listing.KeyPrefix) == "" {
		errs = append(errs, errors.New("listing.key_prefix is required"))
	}
	for name, entity := range cfg.Listing.Entities {
		if strings.TrimSpace(entity.Collection) == "" {
			errs = append(errs, fmt.Errorf("listing.entities.%s.collection is required", name))
		}
	}

	if cfg.Auth.Enabled && len(cfg.Auth.Secret) < 32 {
		errs = append(errs, errors.New("auth.secret must be at least 32 bytes when auth is enabled"))
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit.rps and rate_limit.burst must be positive when rate limiting is enabled"))
	}
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	switch cfg.RateLimit.Backend {
	case RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if cfg.RateLimit.Enabled && cfg.Cache.Type != CacheTypeRedis {
			errs = append(errs, errors.New("rate_limit.backend redis requires cache.type redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid rate_limit.backend: %q (must be one of: memory, redis)", cfg.RateLimit.Backend))
	}

	if !contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %q", cfg.Observability.LogLevel))
	}
	if !contains([]string{"json", "text"}, strings.ToLower(strings.TrimSpace(cfg.Observability.LogFormat))) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %q", cfg.Observability.LogFormat))
	}
	if cfg.Observability.TracingEnabled && cfg.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
		errs = append(errs, errors.New("observability.tracing_sample_rate must be between 0 and 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
