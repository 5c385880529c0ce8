package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBDriver   = "memory"
	DefaultDBPort     = 5432
	DefaultDBName     = "licenseiq"
	DefaultDBMaxConns = 25

	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisPrefix = "licenseiq:"

	DefaultKafkaBroker = "localhost:9092"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "licenseiq-contracts"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "licenseiq"
	DefaultMetricsPath      = "/metrics"

	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	DefaultGroqModel     = "llama-3.1-8b-instant"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-3.5-turbo"
	DefaultTemperature   = 0.1
	DefaultMaxTokens     = 4000
	DefaultProviderRetry = 3

	DefaultBreakerMaxFailures = 3
	DefaultBreakerCooldown    = 5 * time.Minute

	DefaultReviewThreshold = 0.7
	DefaultFilterMinLength = 1000
	DefaultFallbackLength  = 8000
	DefaultContextLines    = 2

	DefaultValidationBatchSize = 5
	DefaultFallbackDelay       = 100 * time.Millisecond
	DefaultValidationTimeout   = 30 * time.Second

	DefaultCalculationWorkers = 8
	DefaultTieBreakPolicy     = "first_extracted"
	DefaultMoneyScale         = 2

	DefaultPreviewPerCategory = 3
)

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Explicitly set fields are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// extraction may wait on two provider round trips
		cfg.Server.WriteTimeout = 3 * time.Minute
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 10 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = int(cfg.Server.RateLimitRPS*2) + 1
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDBDriver
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisPrefix
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 24 * time.Hour
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Acks == "" {
		cfg.Kafka.Acks = "one"
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Log / Metrics ─────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	applyProviderDefaults(&cfg.Providers.Groq, DefaultGroqBaseURL, DefaultGroqModel)
	applyProviderDefaults(&cfg.Providers.OpenAI, DefaultOpenAIBaseURL, DefaultOpenAIModel)

	// ── Breaker ───────────────────────────────────────────────────────────────
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = DefaultBreakerMaxFailures
	}
	if cfg.Breaker.Cooldown == 0 {
		cfg.Breaker.Cooldown = DefaultBreakerCooldown
	}

	// ── Extraction / Validation ───────────────────────────────────────────────
	if cfg.Extraction.ReviewThreshold == nil {
		t := DefaultReviewThreshold
		cfg.Extraction.ReviewThreshold = &t
	}
	if cfg.Extraction.FilterMinLength == 0 {
		cfg.Extraction.FilterMinLength = DefaultFilterMinLength
	}
	if cfg.Extraction.FallbackLength == 0 {
		cfg.Extraction.FallbackLength = DefaultFallbackLength
	}
	if cfg.Extraction.ContextLines == 0 {
		cfg.Extraction.ContextLines = DefaultContextLines
	}
	if cfg.Extraction.CacheTTL == 0 {
		cfg.Extraction.CacheTTL = 24 * time.Hour
	}
	if cfg.Validation.BatchSize == 0 {
		cfg.Validation.BatchSize = DefaultValidationBatchSize
	}
	if cfg.Validation.FallbackDelay == 0 {
		cfg.Validation.FallbackDelay = DefaultFallbackDelay
	}
	if cfg.Validation.ItemTimeout == 0 {
		cfg.Validation.ItemTimeout = DefaultValidationTimeout
	}

	// ── Calculation / Preview ─────────────────────────────────────────────────
	if cfg.Calculation.Workers == 0 {
		cfg.Calculation.Workers = DefaultCalculationWorkers
	}
	if cfg.Calculation.TieBreakPolicy == "" {
		cfg.Calculation.TieBreakPolicy = DefaultTieBreakPolicy
	}
	if cfg.Calculation.MoneyScale == 0 {
		cfg.Calculation.MoneyScale = DefaultMoneyScale
	}
	if cfg.Preview.PerCategory == 0 {
		cfg.Preview.PerCategory = DefaultPreviewPerCategory
	}
}

func applyProviderDefaults(p *ProviderConfig, baseURL, model string) {
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.Model == "" {
		p.Model = model
	}
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Timeout == 0 {
		p.Timeout = 60 * time.Second
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultProviderRetry
	}
	if p.RetryBase == 0 {
		p.RetryBase = time.Second
	}
}
