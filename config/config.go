// Package config provides the configuration structures for the document statistics service.
// Values come from an optional YAML file, then defaults, then DOCSTATS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// AppConfig is the root configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Statistics StatisticsConfig `yaml:"statistics"`
	Upload     UploadConfig     `yaml:"upload"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// StorageConfig selects the document store.
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, redis or postgres
	DataDir string `yaml:"data_dir"` // memory backend snapshot directory; empty disables snapshots
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns a lib/pq-compatible data source name. An empty password is left out.
func (p PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s", p.Host, p.Port, p.User)
	if p.Password != "" {
		dsn += " password=" + p.Password
	}
	return dsn + fmt.Sprintf(" dbname=%s sslmode=%s", p.Database, p.SSLMode)
}

// StatisticsConfig tunes term statistics.
type StatisticsConfig struct {
	TopK int `yaml:"top_k"` // terms kept per document
}

// UploadConfig restricts accepted uploads.
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{Metrics: MetricsConfig{Enabled: true}}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads an optional YAML file, applies defaults and DOCSTATS_* overrides, and validates.
// A missing file at path is treated as an empty configuration.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{Metrics: MetricsConfig{Enabled: true}}
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from the command line
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	if conflicts := cfg.Validate(); len(conflicts) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(conflicts, "; "))
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process environment.
// Missing files are ignored; existing variables are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyDefaults fills zero values with defaults.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 10 << 20
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "docstats"
	}

	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = "docstats"
	}
	if c.Postgres.User == "" {
		c.Postgres.User = "docstats"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 25
	}
	if c.Postgres.MaxIdleConns == 0 {
		c.Postgres.MaxIdleConns = 5
	}
	if c.Postgres.ConnMaxLifetime == 0 {
		c.Postgres.ConnMaxLifetime = 5 * time.Minute
	}

	if c.Statistics.TopK == 0 {
		c.Statistics.TopK = 50
	}

	if c.Upload.AllowedExtensions == nil {
		c.Upload.AllowedExtensions = []string{".txt"}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate returns one message per problem found; an empty result means the configuration is usable.
func (c *AppConfig) Validate() []string {
	var conflicts []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		conflicts = append(conflicts, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.MaxBodyBytes < 0 {
		conflicts = append(conflicts, "server.max_body_bytes cannot be negative")
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		conflicts = append(conflicts, fmt.Sprintf("storage.backend %q must be one of memory, redis, postgres", c.Storage.Backend))
	}

	if c.Statistics.TopK < 1 {
		conflicts = append(conflicts, "statistics.top_k must be positive")
	}

	for _, ext := range c.Upload.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			conflicts = append(conflicts, fmt.Sprintf("upload.allowed_extensions entry %q must look like \".txt\"", ext))
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		conflicts = append(conflicts, fmt.Sprintf("logging.level %q is not recognized", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		conflicts = append(conflicts, fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}

	return conflicts
}

// applyEnvOverrides reads DOCSTATS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("DOCSTATS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DOCSTATS_SERVER_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("DOCSTATS_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("DOCSTATS_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("DOCSTATS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DOCSTATS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DOCSTATS_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("DOCSTATS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DOCSTATS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DOCSTATS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DOCSTATS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DOCSTATS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DOCSTATS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("DOCSTATS_STATISTICS_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Statistics.TopK = k
		}
	}
	if v := os.Getenv("DOCSTATS_UPLOAD_ALLOWED_EXTENSIONS"); v != "" {
		exts := strings.Split(v, ",")
		for i := range exts {
			exts[i] = strings.TrimSpace(exts[i])
		}
		cfg.Upload.AllowedExtensions = exts
	}
	if v := os.Getenv("DOCSTATS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCSTATS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DOCSTATS_METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = enabled
		}
	}
}
