package config

import "time"

// Database type constants
const (
	// DatabaseTypeMongoDB runs listing pipelines as MongoDB aggregations
	DatabaseTypeMongoDB = "mongodb"
	// DatabaseTypeMemory runs listing pipelines over in-process collections
	DatabaseTypeMemory = "memory"
)

// Cache type constants
const (
	CacheTypeRedis  = "redis"
	CacheTypeMemory = "memory"
)

// Config is the root configuration of the listing service
type Config struct {
	Service       ServiceConfig
	HTTP          HTTPConfig
	Management    ManagementConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Listing       ListingConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
	Observability ObservabilityConfig
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig configures the public API server
type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxRequestSize int64         `mapstructure:"max_request_size"`
	// MaxQueryLength bounds the raw query string of a listing request.
	MaxQueryLength int `mapstructure:"max_query_length"`
}

// ManagementConfig configures the management server
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig configures the document store
type DatabaseConfig struct {
	Type           string        `mapstructure:"type"` // mongodb, memory
	URL            string        `mapstructure:"url"`
	DatabaseName   string        `mapstructure:"database_name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	// SeedFile is a JSON object of collection name to documents, loaded into
	// the memory store at startup.
	SeedFile string `mapstructure:"seed_file"`
}

// CacheConfig configures the listing response cache
type CacheConfig struct {
	Type             string        `mapstructure:"type"` // redis, memory
	URL              string        `mapstructure:"url"`
	MaxConns         int           `mapstructure:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// Capacity and NumShards size the in-process store.
	Capacity        int           `mapstructure:"capacity"`
	NumShards       int           `mapstructure:"num_shards"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// ListingConfig configures the listing engine
type ListingConfig struct {
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	MaxLimit  int           `mapstructure:"max_limit"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	// Entities overrides built-in entity definitions or adds new ones, keyed by namespace.
	Entities map[string]EntityConfig `mapstructure:"entities"`
}

// EntityConfig declares one listable entity.
type EntityConfig struct {
	Collection  string         `mapstructure:"collection"`
	Searchable  []string       `mapstructure:"searchable"`
	Sortable    []string       `mapstructure:"sortable"`
	DefaultSort string         `mapstructure:"default_sort"`
	Include     []string       `mapstructure:"include"`
	Exclude     []string       `mapstructure:"exclude"`
	BaseFilter  []FilterConfig `mapstructure:"base_filter"`
	Joins       []JoinConfig   `mapstructure:"joins"`
}

// FilterConfig is one equality condition. A list is used instead of a map
// because viper lower-cases map keys.
type FilterConfig struct {
	Field string `mapstructure:"field"`
	Value string `mapstructure:"value"`
}

// JoinConfig declares a left join on another collection.
type JoinConfig struct {
	From         string `mapstructure:"from"`
	LocalField   string `mapstructure:"local_field"`
	ForeignField string `mapstructure:"foreign_field"`
	As           string `mapstructure:"as"`
	Flatten      bool   `mapstructure:"flatten"`
}

// AuthConfig configures bearer token verification on listing routes
type AuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// Rate limit backends
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// RateLimitConfig configures the rate limit middleware. The redis backend
// shares counters across replicas through cache.url.
type RateLimitConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Backend           string `mapstructure:"backend"` // memory, redis
	RequestsPerSecond int    `mapstructure:"rps"`
	Burst             int    `mapstructure:"burst"`
}

// ObservabilityConfig configures logging and tracing
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level"`
	LogFormat         string  `mapstructure:"log_format"` // json, text
	TracingEnabled    bool    `mapstructure:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint"`
}

// DefaultConfig returns the configuration used when nothing else is provided.
// It runs fully in-process: memory document store and memory cache.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "listing-service",
			Environment: "production",
		},
		HTTP: HTTPConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxRequestSize: 1 << 20,
			MaxQueryLength: 2048,
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Type:           DatabaseTypeMemory,
			ConnectTimeout: 10 * time.Second,
			QueryTimeout:   5 * time.Second,
			MaxPoolSize:    50,
		},
		Cache: CacheConfig{
			Type:             CacheTypeMemory,
			MaxConns:         10,
			OperationTimeout: 500 * time.Millisecond,
			Capacity:         10000,
			NumShards:        16,
			BreakerFailures:  5,
			BreakerCooldown:  10 * time.Second,
		},
		Listing: ListingConfig{
			CacheTTL:  30 * time.Second,
			MaxLimit:  100,
			KeyPrefix: "listing:v1",
		},
		RateLimit: RateLimitConfig{
			Backend:           RateLimitBackendMemory,
			RequestsPerSecond: 100,
			Burst:             200,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingSampleRate: 0.1,
		},
	}
}
