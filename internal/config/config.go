// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName    = "support-search"
	defaultServiceVersion = "1.0.0"
	defaultServicePort    = 8092
	defaultESURL          = "http://localhost:9200"
	defaultESMaxRetries   = 3
	defaultESTimeout      = 30 * time.Second
	defaultIndexPrefix    = "support"
	defaultChunkSize      = 500
	defaultBulkWorkers    = 2
	defaultBulkTimeout    = 10 * time.Minute
	defaultLogLevel       = "info"
)

// Config holds the application configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Database      DatabaseConfig      `yaml:"database"`
	Indexing      IndexingConfig      `yaml:"indexing"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServiceConfig holds service configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"SUPPORT_SEARCH_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"           yaml:"debug"`
}

// ElasticsearchConfig holds cluster connection configuration.
//
// Version selects the client protocol major version (7 or 8). When zero the
// version is resolved by probing the cluster once at startup.
type ElasticsearchConfig struct {
	URLs        []string      `env:"ELASTICSEARCH_URLS"     yaml:"urls"`
	CloudID     string        `env:"ELASTICSEARCH_CLOUD_ID" yaml:"cloud_id"`
	Username    string        `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password    string        `env:"ELASTICSEARCH_PASSWORD" yaml:"password"`
	Version     int           `env:"ELASTICSEARCH_VERSION"  yaml:"version"`
	VerifyCerts bool          `yaml:"verify_certs"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// DatabaseConfig holds the relational store connection configuration.
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	Database        string        `env:"DB_NAME"     yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// IndexingConfig holds index naming and sync behavior configuration.
type IndexingConfig struct {
	// Prefix is prepended to every index and alias name.
	Prefix string `env:"SEARCH_INDEX_PREFIX" yaml:"prefix"`
	// LiveIndexing enables synchronous indexing on entity lifecycle events.
	LiveIndexing bool `env:"SEARCH_LIVE_INDEXING" yaml:"live_indexing"`
	// TestMode changes index naming and forces refresh on writes.
	TestMode bool `env:"SEARCH_TEST_MODE" yaml:"test_mode"`
	// ChunkSize is the number of documents per bulk request.
	ChunkSize int `yaml:"chunk_size"`
	// BulkWorkers is the number of concurrent bulk flush workers.
	BulkWorkers int `yaml:"bulk_workers"`
	// BulkTimeout bounds a full bulk reindex call.
	BulkTimeout time.Duration `yaml:"bulk_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `env:"LOG_LEVEL" yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load loads configuration from a YAML file, applying defaults and
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.setDefaults()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot be defaulted.
func (c *Config) Validate() error {
	if v := c.Elasticsearch.Version; v != 0 && v != 7 && v != 8 {
		return fmt.Errorf("unsupported elasticsearch version %d", v)
	}
	if len(c.Elasticsearch.URLs) == 0 && c.Elasticsearch.CloudID == "" {
		return errors.New("elasticsearch urls or cloud_id required")
	}
	if c.Indexing.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = defaultServiceName
	}
	if c.Service.Version == "" {
		c.Service.Version = defaultServiceVersion
	}
	if c.Service.Port == 0 {
		c.Service.Port = defaultServicePort
	}
	if len(c.Elasticsearch.URLs) == 0 && c.Elasticsearch.CloudID == "" {
		c.Elasticsearch.URLs = []string{defaultESURL}
	}
	if c.Elasticsearch.Timeout == 0 {
		c.Elasticsearch.Timeout = defaultESTimeout
	}
	if c.Elasticsearch.MaxRetries == 0 {
		c.Elasticsearch.MaxRetries = defaultESMaxRetries
	}
	if c.Indexing.Prefix == "" {
		c.Indexing.Prefix = defaultIndexPrefix
	}
	if c.Indexing.ChunkSize == 0 {
		c.Indexing.ChunkSize = defaultChunkSize
	}
	if c.Indexing.BulkWorkers == 0 {
		c.Indexing.BulkWorkers = defaultBulkWorkers
	}
	if c.Indexing.BulkTimeout == 0 {
		c.Indexing.BulkTimeout = defaultBulkTimeout
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
