package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docsentry/docsentry/pkg/frontendcache"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration (CMS mirror store, S3, redis)
	Storage storage.Config

	// Frontend cache configuration
	FrontendCache FrontendCacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Shared token the CMS must present on event posts. Empty disables auth.
	EventToken string
}

// FrontendCacheConfig holds the cache-invalidator backend map. Backends come
// from a YAML file so operators can edit them without redeploying; the file
// is optional and its absence means "no frontend cache configured".
type FrontendCacheConfig struct {
	// Path of the backends YAML file ("" = no frontend cache).
	BackendsFile string

	// Parsed backend map, keyed by backend name.
	Backends map[string]frontendcache.BackendConfig
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
	}

	fc, err := loadFrontendCacheConfig()
	if err != nil {
		return nil, err
	}
	cfg.FrontendCache = fc

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("DOCSENTRY_HOST", "0.0.0.0"),
		Port:            getEnv("DOCSENTRY_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DOCSENTRY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DOCSENTRY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("DOCSENTRY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DOCSENTRY_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("DOCSENTRY_HEALTH_PORT", "9090"),
		EventToken:      getEnv("DOCSENTRY_EVENT_TOKEN", ""),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// Store backend
	if storeType := getEnv("DOCSENTRY_STORE_TYPE", ""); storeType != "" {
		cfg.Type = storeType
	}
	if sqlitePath := getEnv("DOCSENTRY_SQLITE_PATH", ""); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}

	// PostgreSQL config
	if pgURL := getEnv("DOCSENTRY_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("DOCSENTRY_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("DOCSENTRY_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("DOCSENTRY_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config. The backend identifier gates every ACL handler: anything
	// other than "s3" disables them.
	cfg.S3Backend = getEnv("DOCSENTRY_STORAGE_BACKEND", "")
	if s3Endpoint := getEnv("DOCSENTRY_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("DOCSENTRY_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("DOCSENTRY_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("DOCSENTRY_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("DOCSENTRY_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("DOCSENTRY_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	// Redis config
	if redisURL := getEnv("DOCSENTRY_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("DOCSENTRY_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("DOCSENTRY_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("DOCSENTRY_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("DOCSENTRY_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	if cacheEnabled := getEnv("DOCSENTRY_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if cacheTTL := getEnvDuration("DOCSENTRY_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.CacheTTL = cacheTTL
	}
	if l1Size := getEnvInt("DOCSENTRY_L1_CACHE_SIZE", 0); l1Size > 0 {
		cfg.L1CacheSize = l1Size
	}

	return cfg
}

// loadFrontendCacheConfig loads the cache-invalidator backend map. A missing
// file path or an empty map degrades to "frontend cache not configured"; a
// present but malformed file is a startup error.
func loadFrontendCacheConfig() (FrontendCacheConfig, error) {
	cfg := FrontendCacheConfig{
		BackendsFile: getEnv("DOCSENTRY_FRONTEND_CACHE_FILE", ""),
		Backends:     map[string]frontendcache.BackendConfig{},
	}

	if cfg.BackendsFile == "" {
		return cfg, nil
	}

	backends, err := LoadFrontendCacheBackends(cfg.BackendsFile)
	if err != nil {
		return cfg, err
	}
	cfg.Backends = backends
	return cfg, nil
}

// LoadFrontendCacheBackends parses the backends YAML file. Also used by the
// hot-reload watcher.
func LoadFrontendCacheBackends(path string) (map[string]frontendcache.BackendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Absent file means the feature is disabled, not broken.
			return map[string]frontendcache.BackendConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read frontend cache config: %w", err)
	}

	var backends map[string]frontendcache.BackendConfig
	if err := yaml.Unmarshal(data, &backends); err != nil {
		return nil, fmt.Errorf("failed to parse frontend cache config: %w", err)
	}
	if backends == nil {
		backends = map[string]frontendcache.BackendConfig{}
	}
	return backends, nil
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("DOCSENTRY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("DOCSENTRY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("DOCSENTRY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("DOCSENTRY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("DOCSENTRY_OTEL_SERVICE_NAME", "docsentry"),
		OTelServiceVersion: getEnv("DOCSENTRY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("DOCSENTRY_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate store config based on type
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite store")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be sqlite or postgres)", c.Storage.Type)
	}

	// The S3 backend identifier gates ACL handlers rather than failing
	// validation, but if S3 is in use the bucket must be known.
	if c.Storage.S3InUse() && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when the S3 storage backend is in use")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
