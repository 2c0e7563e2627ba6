// Package config provides configuration management and environment variable handling for the application
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Deployment DeploymentConfig `json:"deployment"`
	RateEngine RateEngineConfig `json:"rate_engine"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	BodyLimit         int           `json:"body_limit"`
	EnableMetrics     bool          `json:"enable_metrics"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// API Security
	RequireAPIKey  bool     `json:"require_api_key"`
	APIKeyHeader   string   `json:"api_key_header"`
	AllowedAPIKeys []string `json:"allowed_api_keys"`
}

type LoggingConfig struct {
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	Level            string `json:"level" yaml:"level"`   // debug, info, warning, error
	Format           string `json:"format" yaml:"format"` // json, console
	Output           string `json:"output" yaml:"output"` // stdout, file, both
	FilePath         string `json:"file_path" yaml:"file_path"`
	MaxSize          int    `json:"max_size" yaml:"max_size"` // MB
	MaxBackups       int    `json:"max_backups" yaml:"max_backups"`
	MaxAge           int    `json:"max_age" yaml:"max_age"` // days
	Compress         bool   `json:"compress" yaml:"compress"`
	EnableCaller     bool   `json:"enable_caller" yaml:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace" yaml:"enable_stacktrace"`

	LogCacheBuilds      bool `json:"log_cache_builds" yaml:"log_cache_builds"`
	LogRateCalculations bool `json:"log_rate_calculations" yaml:"log_rate_calculations"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	Provider    string        `json:"provider"` // redis, memory
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DialTimeout time.Duration `json:"dial_timeout"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// RateEngineConfig mirrors the rate sheet engine options. Durations are whole
// seconds in the environment and YAML file.
type RateEngineConfig struct {
	CacheTTL           time.Duration `json:"cache_ttl"`
	UseNewEngine       bool          `json:"use_new_engine"`
	DebugMode          bool          `json:"debug_mode"`
	DefaultSkidBracket string        `json:"default_skid_bracket"`
	CacheLockTimeout   time.Duration `json:"cache_lock_timeout"`
	// CacheLockLease is how long a shared rebuild lock outlives a holder
	// that never released it. It must cover a full rebuild.
	CacheLockLease time.Duration `json:"cache_lock_lease"`

	AtomicBatches      bool          `json:"atomic_batches"`
	GeoMatchPrecedence []string      `json:"geo_match_precedence"`
	CacheSweepInterval time.Duration `json:"cache_sweep_interval"`
	CacheStaleGrace    time.Duration `json:"cache_stale_grace"`
	CacheStore         string        `json:"cache_store"`   // memory, redis
	LockProvider       string        `json:"lock_provider"` // local, redis
	MaxUploadRows      int           `json:"max_upload_rows"`
}

// Geography match keys accepted in GeoMatchPrecedence.
const (
	GeoMatchCity       = "city"
	GeoMatchPostalCode = "postal_code"
	GeoMatchProvince   = "province"
)

// Backends accepted in CacheStore and LockProvider.
const (
	CacheStoreMemory  = "memory"
	CacheStoreRedis   = "redis"
	LockProviderLocal = "local"
	LockProviderRedis = "redis"
)

// DefaultRateEngineConfig returns the engine defaults used when nothing is configured.
func DefaultRateEngineConfig() RateEngineConfig {
	return RateEngineConfig{
		CacheTTL:           3600 * time.Second,
		UseNewEngine:       true,
		DebugMode:          false,
		DefaultSkidBracket: "ltl",
		CacheLockTimeout:   10 * time.Second,
		CacheLockLease:     60 * time.Second,
		AtomicBatches:      false,
		GeoMatchPrecedence: []string{GeoMatchCity, GeoMatchPostalCode, GeoMatchProvince},
		CacheSweepInterval: 5 * time.Minute,
		CacheStaleGrace:    10 * time.Minute,
		CacheStore:         CacheStoreMemory,
		LockProvider:       LockProviderLocal,
		MaxUploadRows:      50000,
	}
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadToolConfig loads the same configuration for command line tools, which
// only need the database, cache and engine sections to be valid.
func LoadToolConfig() (*ProductionConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	errs := validateDatabaseConfig(cfg.Database)
	errs = append(errs, ValidateRateEngineConfig(cfg.RateEngine)...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func loadConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	engineDefaults := DefaultRateEngineConfig()

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:    getEnvDuration("SERVER_REQUEST_TIMEOUT", 2*time.Minute),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 16*1024*1024), // 16MB, rate sheets can be large
			EnableMetrics:     getEnvBool("SERVER_ENABLE_METRICS", true),
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-API-Key"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			RequireAPIKey:    getEnvBool("REQUIRE_API_KEY", true),
			APIKeyHeader:     getEnvString("API_KEY_HEADER", "X-API-Key"),
			AllowedAPIKeys:   getEnvStringSlice("ALLOWED_API_KEYS", []string{}),
		},
		Logging: LoggingConfig{
			Enabled:             getEnvBool("LOG_ENABLED", true),
			Level:               getEnvString("LOG_LEVEL", "info"),
			Format:              getEnvString("LOG_FORMAT", "json"),
			Output:              getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:            getEnvString("LOG_FILE_PATH", "/var/log/freightdesk/app.log"),
			MaxSize:             getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:          getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:              getEnvInt("LOG_MAX_AGE", 30),
			Compress:            getEnvBool("LOG_COMPRESS", true),
			EnableCaller:        getEnvBool("LOG_ENABLE_CALLER", true),
			EnableStacktrace:    getEnvBool("LOG_ENABLE_STACKTRACE", false),
			LogCacheBuilds:      getEnvBool("LOG_CACHE_BUILDS", true),
			LogRateCalculations: getEnvBool("LOG_RATE_CALCULATIONS", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", false),
			Provider:    getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "freightdesk:"),
			DialTimeout: getEnvDuration("CACHE_DIAL_TIMEOUT", 5*time.Second),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
		RateEngine: RateEngineConfig{
			CacheTTL:           getEnvSeconds("RATESHEET_CACHE_TTL", engineDefaults.CacheTTL),
			UseNewEngine:       getEnvBool("RATESHEET_USE_NEW_ENGINE", engineDefaults.UseNewEngine),
			DebugMode:          getEnvBool("RATESHEET_DEBUG", engineDefaults.DebugMode),
			DefaultSkidBracket: getEnvString("RATESHEET_DEFAULT_SKID_BRACKET", engineDefaults.DefaultSkidBracket),
			CacheLockTimeout:   getEnvSeconds("RATESHEET_CACHE_LOCK_TIMEOUT", engineDefaults.CacheLockTimeout),
			CacheLockLease:     getEnvSeconds("RATESHEET_CACHE_LOCK_LEASE", engineDefaults.CacheLockLease),
			AtomicBatches:      getEnvBool("RATESHEET_ATOMIC_BATCHES", engineDefaults.AtomicBatches),
			GeoMatchPrecedence: getEnvStringSlice("RATESHEET_GEO_MATCH_PRECEDENCE", engineDefaults.GeoMatchPrecedence),
			CacheSweepInterval: getEnvSeconds("RATESHEET_CACHE_SWEEP_INTERVAL", engineDefaults.CacheSweepInterval),
			CacheStaleGrace:    getEnvSeconds("RATESHEET_CACHE_STALE_GRACE", engineDefaults.CacheStaleGrace),
			CacheStore:         getEnvString("RATESHEET_CACHE_STORE", engineDefaults.CacheStore),
			LockProvider:       getEnvString("RATESHEET_LOCK_PROVIDER", engineDefaults.LockProvider),
			MaxUploadRows:      getEnvInt("RATESHEET_MAX_UPLOAD_ROWS", engineDefaults.MaxUploadRows),
		},
	}

	if path := os.Getenv("RATESHEET_CONFIG_FILE"); path != "" {
		if err := ApplyRateSheetFile(cfg, path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
// Variables already present in the environment win.
func loadEnvFile() error {
	envFile := getEnvString("ENV_FILE", ".env")

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	return godotenv.Load(envFile)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSeconds accepts either a bare number of seconds or a Go duration string.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateRateEngineConfig checks the engine section on its own so the CLI can
// validate without the HTTP server settings.
func ValidateRateEngineConfig(cfg RateEngineConfig) []string {
	var errors []string

	if cfg.CacheTTL <= 0 {
		errors = append(errors, "RATESHEET_CACHE_TTL must be positive")
	}
	if cfg.CacheLockTimeout <= 0 {
		errors = append(errors, "RATESHEET_CACHE_LOCK_TIMEOUT must be positive")
	}
	if cfg.CacheLockLease < cfg.CacheLockTimeout {
		errors = append(errors, "RATESHEET_CACHE_LOCK_LEASE must not be shorter than RATESHEET_CACHE_LOCK_TIMEOUT")
	}
	if strings.TrimSpace(cfg.DefaultSkidBracket) == "" {
		errors = append(errors, "RATESHEET_DEFAULT_SKID_BRACKET is required")
	}
	if len(cfg.GeoMatchPrecedence) == 0 {
		errors = append(errors, "RATESHEET_GEO_MATCH_PRECEDENCE must list at least one of city, postal_code, province")
	}
	for _, key := range cfg.GeoMatchPrecedence {
		if key != GeoMatchCity && key != GeoMatchPostalCode && key != GeoMatchProvince {
			errors = append(errors, fmt.Sprintf("RATESHEET_GEO_MATCH_PRECEDENCE has unknown key %q", key))
		}
	}
	if cfg.CacheStore != CacheStoreMemory && cfg.CacheStore != CacheStoreRedis {
		errors = append(errors, "RATESHEET_CACHE_STORE must be memory or redis")
	}
	if cfg.LockProvider != LockProviderLocal && cfg.LockProvider != LockProviderRedis {
		errors = append(errors, "RATESHEET_LOCK_PROVIDER must be local or redis")
	}
	if cfg.MaxUploadRows <= 0 {
		errors = append(errors, "RATESHEET_MAX_UPLOAD_ROWS must be positive")
	}

	return errors
}

func validateDatabaseConfig(cfg DatabaseConfig) []string {
	var errors []string
	if cfg.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	return errors
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	errors = append(errors, validateDatabaseConfig(cfg.Database)...)

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	if cfg.Security.RequireAPIKey && len(cfg.Security.AllowedAPIKeys) == 0 {
		errors = append(errors, "ALLOWED_API_KEYS is required when REQUIRE_API_KEY is enabled")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warning", "warn", "error"}
		if !slices.Contains(validLevels, cfg.Logging.Level) {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	errors = append(errors, ValidateRateEngineConfig(cfg.RateEngine)...)
	if !cfg.Cache.Enabled && (cfg.RateEngine.CacheStore == CacheStoreRedis || cfg.RateEngine.LockProvider == LockProviderRedis) {
		errors = append(errors, "CACHE_ENABLED must be true when the rate engine uses redis")
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
