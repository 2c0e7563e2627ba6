package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRateEngineConfig(t *testing.T) {
	cfg := DefaultRateEngineConfig()

	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.CacheLockTimeout)
	assert.Equal(t, 60*time.Second, cfg.CacheLockLease)
	assert.Equal(t, "ltl", cfg.DefaultSkidBracket)
	assert.True(t, cfg.UseNewEngine)
	assert.False(t, cfg.DebugMode)
	assert.Equal(t, []string{"city", "postal_code", "province"}, cfg.GeoMatchPrecedence)
	assert.Empty(t, ValidateRateEngineConfig(cfg))
}

func TestGetEnvSeconds(t *testing.T) {
	t.Setenv("TEST_SECONDS_PLAIN", "42")
	t.Setenv("TEST_SECONDS_DURATION", "1m30s")
	t.Setenv("TEST_SECONDS_GARBAGE", "soon")

	assert.Equal(t, 42*time.Second, getEnvSeconds("TEST_SECONDS_PLAIN", time.Second))
	assert.Equal(t, 90*time.Second, getEnvSeconds("TEST_SECONDS_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvSeconds("TEST_SECONDS_GARBAGE", time.Second))
	assert.Equal(t, 7*time.Second, getEnvSeconds("TEST_SECONDS_MISSING", 7*time.Second))
}

func TestApplyRateSheetYAML(t *testing.T) {
	cfg := &ProductionConfig{RateEngine: DefaultRateEngineConfig()}
	cfg.Logging.Enabled = true
	cfg.Logging.Level = "info"

	data := []byte(`
cache_ttl: 120
debug_mode: true
default_skid_bracket: skid_1
geo_match_precedence: [postal_code, province]
logging:
  level: warning
  log_rate_calculations: true
`)

	require.NoError(t, ApplyRateSheetYAML(cfg, data))

	assert.Equal(t, 120*time.Second, cfg.RateEngine.CacheTTL)
	assert.True(t, cfg.RateEngine.DebugMode)
	assert.Equal(t, "skid_1", cfg.RateEngine.DefaultSkidBracket)
	assert.Equal(t, []string{"postal_code", "province"}, cfg.RateEngine.GeoMatchPrecedence)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.RateEngine.CacheLockTimeout)
	assert.True(t, cfg.RateEngine.UseNewEngine)
	assert.True(t, cfg.Logging.Enabled)
	assert.Equal(t, "warning", cfg.Logging.Level)
	assert.True(t, cfg.Logging.LogRateCalculations)
}

func TestApplyRateSheetYAMLRejectsMalformed(t *testing.T) {
	cfg := &ProductionConfig{RateEngine: DefaultRateEngineConfig()}
	err := ApplyRateSheetYAML(cfg, []byte("cache_ttl: [not, a, number"))
	assert.Error(t, err)
}

func TestValidateRateEngineConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RateEngineConfig)
		want   string
	}{
		{"zero ttl", func(c *RateEngineConfig) { c.CacheTTL = 0 }, "RATESHEET_CACHE_TTL"},
		{"zero lock timeout", func(c *RateEngineConfig) { c.CacheLockTimeout = 0 }, "RATESHEET_CACHE_LOCK_TIMEOUT"},
		{"lease shorter than wait", func(c *RateEngineConfig) { c.CacheLockLease = c.CacheLockTimeout / 2 }, "RATESHEET_CACHE_LOCK_LEASE"},
		{"blank bracket", func(c *RateEngineConfig) { c.DefaultSkidBracket = "  " }, "RATESHEET_DEFAULT_SKID_BRACKET"},
		{"unknown geo key", func(c *RateEngineConfig) { c.GeoMatchPrecedence = []string{"country"} }, "unknown key"},
		{"bad store", func(c *RateEngineConfig) { c.CacheStore = "disk" }, "RATESHEET_CACHE_STORE"},
		{"bad lock", func(c *RateEngineConfig) { c.LockProvider = "etcd" }, "RATESHEET_LOCK_PROVIDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRateEngineConfig()
			tt.mutate(&cfg)
			errs := ValidateRateEngineConfig(cfg)
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestLoadToolConfigSkipsServerSecurity(t *testing.T) {
	t.Setenv("ENV_FILE", t.TempDir()+"/missing.env")
	t.Setenv("REQUIRE_API_KEY", "true")
	t.Setenv("ALLOWED_API_KEYS", "")
	t.Setenv("RATESHEET_CACHE_TTL", "90")
	t.Setenv("RATESHEET_CONFIG_FILE", "")

	_, err := LoadProductionConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOWED_API_KEYS")

	cfg, err := LoadToolConfig()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.RateEngine.CacheTTL)
}

func TestLoadToolConfigRejectsBadEngine(t *testing.T) {
	t.Setenv("ENV_FILE", t.TempDir()+"/missing.env")
	t.Setenv("RATESHEET_CACHE_STORE", "disk")
	t.Setenv("RATESHEET_CONFIG_FILE", "")

	_, err := LoadToolConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATESHEET_CACHE_STORE")
}
