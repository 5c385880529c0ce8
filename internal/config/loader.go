package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all platform settings.
const envPrefix = "LICENSEIQ"

// envKeys lists the nested keys that may be supplied from the environment
// without a config file. viper only resolves AutomaticEnv for keys it already
// knows about.
var envKeys = []string{
	"server.port", "server.mode",
	"auth.enabled", "auth.jwt_secret", "auth.jwt_issuer",
	"database.driver", "database.host", "database.port", "database.user", "database.password", "database.db_name", "database.ssl_mode",
	"redis.enabled", "redis.addr", "redis.password", "redis.db",
	"kafka.enabled", "kafka.brokers",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket",
	"log.level", "log.format",
	"metrics.enabled",
	"providers.groq.api_key", "providers.groq.base_url", "providers.groq.model",
	"providers.openai.api_key", "providers.openai.base_url", "providers.openai.model",
	"breaker.max_failures", "breaker.cooldown",
	"extraction.review_threshold",
	"calculation.workers", "calculation.tie_break_policy",
}

// newViper builds a Viper instance with YAML file type, LICENSEIQ_ env prefix,
// automatic env binding and a "." → "_" key replacer so that nested keys like
// "providers.groq.api_key" resolve to LICENSEIQ_PROVIDERS_GROQ_API_KEY.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the YAML file at configPath, merges LICENSEIQ_* overrides,
// applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from LICENSEIQ_* environment variables
// and defaults.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the re-parsed Config on
// every write. Invalid intermediate states are reported to onError, if set,
// and never reach onChange. Watch is non-blocking.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad wraps Load and panics on error. For use in main().
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
