package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LicenseIQ-Royalty/internal/config"
)

// validConfig returns a Config that passes Validate().
func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"port out of range", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad mode", func(c *config.Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "sqlite" }, "database.driver"},
		{"postgres without user", func(c *config.Config) {
			c.Database.Driver = "postgres"
			c.Database.Host = "db"
		}, "database.user"},
		{"auth enabled without credentials", func(c *config.Config) { c.Auth.Enabled = true }, "auth.api_keys"},
		{"redis enabled without addr", func(c *config.Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"kafka enabled without brokers", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, "kafka.brokers"},
		{"provider temperature", func(c *config.Config) { c.Providers.OpenAI.Temperature = 3 }, "providers.openai.temperature"},
		{"breaker failures", func(c *config.Config) { c.Breaker.MaxFailures = -1 }, "breaker.max_failures"},
		{"review threshold", func(c *config.Config) { v := 1.5; c.Extraction.ReviewThreshold = &v }, "review_threshold"},
		{"fallback shorter than min", func(c *config.Config) { c.Extraction.FallbackLength = 10 }, "fallback_length"},
		{"tie break", func(c *config.Config) { c.Calculation.TieBreakPolicy = "random" }, "tie_break_policy"},
		{"money scale", func(c *config.Config) { c.Calculation.MoneyScale = 12 }, "money_scale"},
		{"log level", func(c *config.Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "text" }, "log.format"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_Validate_PostgresComplete(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.Driver = "postgres"
	cfg.Database.Host = "db"
	cfg.Database.User = "royalty"
	assert.NoError(t, cfg.Validate())
}
