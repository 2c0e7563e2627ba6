package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// rateSheetFile is the on-disk layout of the rate sheet engine settings.
// Pointer fields distinguish "absent" from zero values so the file only
// overrides what it names.
type rateSheetFile struct {
	CacheTTL           *int     `yaml:"cache_ttl"`
	UseNewEngine       *bool    `yaml:"use_new_engine"`
	DebugMode          *bool    `yaml:"debug_mode"`
	DefaultSkidBracket *string  `yaml:"default_skid_bracket"`
	CacheLockTimeout   *int     `yaml:"cache_lock_timeout"`
	CacheLockLease     *int     `yaml:"cache_lock_lease"`
	AtomicBatches      *bool    `yaml:"atomic_batches"`
	GeoMatchPrecedence []string `yaml:"geo_match_precedence"`
	CacheSweepInterval *int     `yaml:"cache_sweep_interval"`
	CacheStaleGrace    *int     `yaml:"cache_stale_grace"`
	CacheStore         *string  `yaml:"cache_store"`
	LockProvider       *string  `yaml:"lock_provider"`

	Logging *struct {
		Enabled             *bool   `yaml:"enabled"`
		Level               *string `yaml:"level"`
		LogCacheBuilds      *bool   `yaml:"log_cache_builds"`
		LogRateCalculations *bool   `yaml:"log_rate_calculations"`
	} `yaml:"logging"`
}

// ApplyRateSheetFile overlays a YAML rate sheet settings file onto cfg.
func ApplyRateSheetFile(cfg *ProductionConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rate sheet config: %w", err)
	}
	return ApplyRateSheetYAML(cfg, data)
}

// ApplyRateSheetYAML overlays raw YAML onto cfg.
func ApplyRateSheetYAML(cfg *ProductionConfig, data []byte) error {
	var raw rateSheetFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing rate sheet config: %w", err)
	}

	engine := &cfg.RateEngine
	if raw.CacheTTL != nil {
		engine.CacheTTL = seconds(*raw.CacheTTL)
	}
	if raw.UseNewEngine != nil {
		engine.UseNewEngine = *raw.UseNewEngine
	}
	if raw.DebugMode != nil {
		engine.DebugMode = *raw.DebugMode
	}
	if raw.DefaultSkidBracket != nil {
		engine.DefaultSkidBracket = *raw.DefaultSkidBracket
	}
	if raw.CacheLockTimeout != nil {
		engine.CacheLockTimeout = seconds(*raw.CacheLockTimeout)
	}
	if raw.CacheLockLease != nil {
		engine.CacheLockLease = seconds(*raw.CacheLockLease)
	}
	if raw.AtomicBatches != nil {
		engine.AtomicBatches = *raw.AtomicBatches
	}
	if len(raw.GeoMatchPrecedence) > 0 {
		engine.GeoMatchPrecedence = raw.GeoMatchPrecedence
	}
	if raw.CacheSweepInterval != nil {
		engine.CacheSweepInterval = seconds(*raw.CacheSweepInterval)
	}
	if raw.CacheStaleGrace != nil {
		engine.CacheStaleGrace = seconds(*raw.CacheStaleGrace)
	}
	if raw.CacheStore != nil {
		engine.CacheStore = *raw.CacheStore
	}
	if raw.LockProvider != nil {
		engine.LockProvider = *raw.LockProvider
	}

	if raw.Logging != nil {
		if raw.Logging.Enabled != nil {
			cfg.Logging.Enabled = *raw.Logging.Enabled
		}
		if raw.Logging.Level != nil {
			cfg.Logging.Level = *raw.Logging.Level
		}
		if raw.Logging.LogCacheBuilds != nil {
			cfg.Logging.LogCacheBuilds = *raw.Logging.LogCacheBuilds
		}
		if raw.Logging.LogRateCalculations != nil {
			cfg.Logging.LogRateCalculations = *raw.Logging.LogRateCalculations
		}
	}

	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
