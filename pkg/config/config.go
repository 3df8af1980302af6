// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Catalog, Resolver, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Resolver ResolverConfig `yaml:"resolver"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// AllowedOrigins lists the CORS origins of the browsing UI; empty allows any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
	// RateLimit is the number of requests per minute allowed per client IP;
	// zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// PostgresConfig holds PostgreSQL connection parameters. The database only
// ever holds a mirror of the transcript lookup table, so it is disabled by
// default.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexBuilt      string `yaml:"indexBuilt"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CatalogConfig locates the catalog source, the transcript pool and the
// published artefacts.
type CatalogConfig struct {
	SourceCSV      string `yaml:"sourceCsv"`
	TranscriptsDir string `yaml:"transcriptsDir"`
	PublicDir      string `yaml:"publicDir"`
	Parser         string `yaml:"parser"`
}

// PublishedCSV is where the indexer copies the catalog for the searcher.
func (c CatalogConfig) PublishedCSV() string {
	return c.PublicDir + "/data/episodes.csv"
}

// IndexPath is where the indexer writes the guest→transcript lookup.
func (c CatalogConfig) IndexPath() string {
	return c.PublicDir + "/data/index.json"
}

// PublishedTranscriptsDir is where resolved transcripts are staged.
func (c CatalogConfig) PublishedTranscriptsDir() string {
	return c.PublicDir + "/transcripts"
}

// ResolverConfig controls the entity-resolution pass of the indexer.
type ResolverConfig struct {
	Threshold     float64 `yaml:"threshold"`
	TranscriptExt string  `yaml:"transcriptExt"`
	Workers       int     `yaml:"workers"`
	// FoldSeparators compares '-' and '_' in file names as spaces.
	FoldSeparators bool `yaml:"foldSeparators"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxQueryLength int           `yaml:"maxQueryLength"`
	MaxTranscript  int64         `yaml:"maxTranscriptBytes"`
	ReloadTimeout  time.Duration `yaml:"reloadTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Resolver.Threshold <= 0 || c.Resolver.Threshold > 1 {
		return fmt.Errorf("resolver.threshold must be in (0, 1], got %v", c.Resolver.Threshold)
	}
	switch c.Catalog.Parser {
	case "lenient", "strict":
	default:
		return fmt.Errorf("catalog.parser must be \"lenient\" or \"strict\", got %q", c.Catalog.Parser)
	}
	if !strings.HasPrefix(c.Resolver.TranscriptExt, ".") {
		return fmt.Errorf("resolver.transcriptExt must start with a dot, got %q", c.Resolver.TranscriptExt)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "productatlas",
			User:            "productatlas",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "productatlas-analytics",
			Topics: KafkaTopics{
				IndexBuilt:      "index.built",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Catalog: CatalogConfig{
			SourceCSV:      "data/episodes.csv",
			TranscriptsDir: "transcripts_raw",
			PublicDir:      "public",
			Parser:         "lenient",
		},
		Resolver: ResolverConfig{
			Threshold:      0.8,
			TranscriptExt:  ".txt",
			Workers:        1,
			FoldSeparators: true,
		},
		Search: SearchConfig{
			MaxQueryLength: 256,
			MaxTranscript:  8 << 20,
			ReloadTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads ATLAS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATLAS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATLAS_SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("ATLAS_SERVER_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = limit
		}
	}
	if v := os.Getenv("ATLAS_POSTGRES_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = enabled
		}
	}
	if v := os.Getenv("ATLAS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("ATLAS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("ATLAS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("ATLAS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("ATLAS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("ATLAS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("ATLAS_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("ATLAS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ATLAS_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("ATLAS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ATLAS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ATLAS_CATALOG_SOURCE_CSV"); v != "" {
		cfg.Catalog.SourceCSV = v
	}
	if v := os.Getenv("ATLAS_CATALOG_TRANSCRIPTS_DIR"); v != "" {
		cfg.Catalog.TranscriptsDir = v
	}
	if v := os.Getenv("ATLAS_CATALOG_PUBLIC_DIR"); v != "" {
		cfg.Catalog.PublicDir = v
	}
	if v := os.Getenv("ATLAS_CATALOG_PARSER"); v != "" {
		cfg.Catalog.Parser = v
	}
	if v := os.Getenv("ATLAS_RESOLVER_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Resolver.Threshold = threshold
		}
	}
	if v := os.Getenv("ATLAS_RESOLVER_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			cfg.Resolver.Workers = workers
		}
	}
	if v := os.Getenv("ATLAS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ATLAS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
