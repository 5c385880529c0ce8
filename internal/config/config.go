// Package config defines the configuration structures for the royalty
// platform. No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"` // 0 disables per-client limiting
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig selects the rule store backend and holds PostgreSQL
// connection parameters.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "memory" | "postgres"
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"` // empty uses the embedded migrations
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis parameters for the extraction cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds producer parameters for royalty events.
type KafkaConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Brokers          []string      `mapstructure:"brokers"`
	Acks             string        `mapstructure:"acks"`
	ProducerRetries  int           `mapstructure:"producer_retries"`
	BatchSize        int           `mapstructure:"batch_size"`
	BatchTimeout     time.Duration `mapstructure:"batch_timeout"`
	CompressionCodec string        `mapstructure:"compression_codec"`
}

// MinIOConfig holds object-storage parameters for the contract archive.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig holds Prometheus collector parameters.
type MetricsConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	Namespace            string `mapstructure:"namespace"`
	Path                 string `mapstructure:"path"`
	EnableProcessMetrics bool   `mapstructure:"enable_process_metrics"`
	EnableGoMetrics      bool   `mapstructure:"enable_go_metrics"`
}

// ProviderConfig configures one OpenAI-compatible chat completion backend.
type ProviderConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
}

// ProvidersConfig holds the primary and secondary AI backends.
type ProvidersConfig struct {
	Groq   ProviderConfig `mapstructure:"groq"`
	OpenAI ProviderConfig `mapstructure:"openai"`
}

// BreakerConfig holds the primary provider circuit breaker thresholds.
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// ExtractionConfig holds rule extraction parameters.
type ExtractionConfig struct {
	// ReviewThreshold is nil when unset; 0 activates every extracted rule.
	ReviewThreshold *float64      `mapstructure:"review_threshold"`
	FilterMinLength int           `mapstructure:"filter_min_length"`
	FallbackLength  int           `mapstructure:"fallback_length"`
	ContextLines    int           `mapstructure:"context_lines"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// ValidationConfig holds LLM match validation parameters.
type ValidationConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FallbackDelay time.Duration `mapstructure:"fallback_delay"`
	// ItemTimeout bounds one match validation, fallback included.
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
}

// CalculationConfig holds calculation engine parameters.
type CalculationConfig struct {
	Workers         int    `mapstructure:"workers"`
	TieBreakPolicy  string `mapstructure:"tie_break_policy"` // "first_extracted" | "lowest_id"
	MoneyScale      int32  `mapstructure:"money_scale"`
	AggregateVolume bool   `mapstructure:"aggregate_volume"`
}

// AuthConfig guards the /api/v1 routes. A bearer token is accepted when it
// equals one of APIKeys or is an HS256 JWT signed with JWTSecret.
type AuthConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	APIKeys   []string `mapstructure:"api_keys"`
	JWTSecret string   `mapstructure:"jwt_secret"`
	JWTIssuer string   `mapstructure:"jwt_issuer"` // empty skips the iss check
}

// PreviewConfig holds formula preview parameters.
type PreviewConfig struct {
	PerCategory int `mapstructure:"per_category"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Extraction  ExtractionConfig  `mapstructure:"extraction"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Calculation CalculationConfig `mapstructure:"calculation"`
	Preview     PreviewConfig     `mapstructure:"preview"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first error encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required")
		}
	default:
		return fmt.Errorf("config: database.driver %q is invalid; expected memory|postgres", c.Database.Driver)
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.api_keys or auth.jwt_secret is required when auth is enabled")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
	}

	for _, np := range []struct {
		name string
		p    ProviderConfig
	}{{"groq", c.Providers.Groq}, {"openai", c.Providers.OpenAI}} {
		name, p := np.name, np.p
		if p.BaseURL == "" || p.Model == "" {
			return fmt.Errorf("config: providers.%s.base_url and model are required", name)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("config: providers.%s.temperature %.2f is out of range [0, 2]", name, p.Temperature)
		}
		if p.MaxRetries < 0 {
			return fmt.Errorf("config: providers.%s.max_retries must be ≥ 0", name)
		}
	}

	if c.Breaker.MaxFailures < 1 {
		return fmt.Errorf("config: breaker.max_failures must be ≥ 1, got %d", c.Breaker.MaxFailures)
	}
	if c.Breaker.Cooldown <= 0 {
		return fmt.Errorf("config: breaker.cooldown must be positive")
	}

	if t := c.Extraction.ReviewThreshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("config: extraction.review_threshold %.2f is out of range [0, 1]", *t)
	}
	if c.Extraction.FallbackLength < c.Extraction.FilterMinLength {
		return fmt.Errorf("config: extraction.fallback_length must be ≥ filter_min_length")
	}
	if c.Validation.BatchSize < 1 {
		return fmt.Errorf("config: validation.batch_size must be ≥ 1, got %d", c.Validation.BatchSize)
	}
	if c.Validation.ItemTimeout < 0 {
		return fmt.Errorf("config: validation.item_timeout must not be negative")
	}

	if c.Calculation.Workers < 1 {
		return fmt.Errorf("config: calculation.workers must be ≥ 1, got %d", c.Calculation.Workers)
	}
	switch c.Calculation.TieBreakPolicy {
	case "first_extracted", "lowest_id":
	default:
		return fmt.Errorf("config: calculation.tie_break_policy %q is invalid; expected first_extracted|lowest_id", c.Calculation.TieBreakPolicy)
	}
	if c.Calculation.MoneyScale < 0 || c.Calculation.MoneyScale > 8 {
		return fmt.Errorf("config: calculation.money_scale %d is out of range [0, 8]", c.Calculation.MoneyScale)
	}
	if c.Preview.PerCategory < 1 {
		return fmt.Errorf("config: preview.per_category must be ≥ 1, got %d", c.Preview.PerCategory)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
