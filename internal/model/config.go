package model

import "time"

// Config is the complete riskwatch configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	CORS        CORSConfig        `yaml:"cors" mapstructure:"cors"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Rules       RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Reference   ReferenceConfig   `yaml:"reference" mapstructure:"reference"`
	Engine      EngineConfig      `yaml:"engine" mapstructure:"engine"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	History     HistoryConfig     `yaml:"history" mapstructure:"history"`
	Redis       RedisConfig       `yaml:"redis" mapstructure:"redis"`
	Logger      LoggerConfig      `yaml:"logger" mapstructure:"logger"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	AdminToken      string        `yaml:"admin_token" mapstructure:"admin_token"`
}

// CORSConfig is passed to the CORS middleware
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" mapstructure:"max_age"`
}

// RateLimitConfig controls per-client request limiting
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`

	// Overrides give individual client addresses their own rate
	Overrides []RateLimitOverride `yaml:"overrides,omitempty" mapstructure:"overrides"`
}

// RateLimitOverride is a per-client rate. RequestsPerSecond <= 0 means unlimited.
type RateLimitOverride struct {
	Client            string  `yaml:"client" mapstructure:"client"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// RulesConfig locates the rule catalog
type RulesConfig struct {
	Path  string        `yaml:"path" mapstructure:"path"`   // File path or http(s) URL; empty means the embedded default rule set
	Watch bool          `yaml:"watch" mapstructure:"watch"` // Reload on file change
	Poll  time.Duration `yaml:"poll" mapstructure:"poll"`   // Re-fetch interval for URL rule sets; 0 disables

	HTTPProxy  string `yaml:"http_proxy" mapstructure:"http_proxy"` // Proxies for URL rule sets; empty uses the environment
	HTTPSProxy string `yaml:"https_proxy" mapstructure:"https_proxy"`
}

// ReferenceConfig locates the reference tables
type ReferenceConfig struct {
	AdvisorsPath string `yaml:"advisors_path" mapstructure:"advisors_path"`
	DomainsPath  string `yaml:"domains_path" mapstructure:"domains_path"`
	PostgresDSN  string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	AsOf         string `yaml:"as_of" mapstructure:"as_of"` // YYYY-MM-DD; empty means load date
}

// EngineConfig bounds per-request work
type EngineConfig struct {
	MaxTextBytes int `yaml:"max_text_bytes" mapstructure:"max_text_bytes"`
}

// CacheConfig controls the assessment cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend string        `yaml:"backend" mapstructure:"backend"` // memory, redis or layered
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// HistoryConfig selects the assessment history backend
type HistoryConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"` // memory or redis
	Capacity int    `yaml:"capacity" mapstructure:"capacity"`
}

// RedisConfig holds Redis connection settings shared by the cache and history backends
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// LoggerConfig controls log output
type LoggerConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console or json
}

// ConcurrencyConfig controls batch workers
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    16 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Request-ID"},
			MaxAge:         300,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		Engine: EngineConfig{
			MaxTextBytes: 1 << 20,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
			TTL:     10 * time.Minute,
		},
		History: HistoryConfig{
			Backend:  "memory",
			Capacity: 200,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "riskwatch:",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
	}
}
