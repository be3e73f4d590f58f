// Package config provides configuration loading for docchatd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides (DOCCHAT_ prefix). Every section has validated, production-ready
// defaults so a minimal deployment only needs credentials and endpoints.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/docchatd/internal/logging"
)

// Config holds the complete docchatd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Storage    StorageConfig    `koanf:"storage"`
	Answer     AnswerConfig     `koanf:"answer"`
	Auth       AuthConfig       `koanf:"auth"`
	Retention  RetentionConfig  `koanf:"retention"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL configuration for the metadata store.
type DatabaseConfig struct {
	DSN            Secret        `koanf:"dsn"`
	MaxConns       int32         `koanf:"max_conns"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// QdrantConfig holds vector store connection configuration.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	APIKey         Secret `koanf:"api_key"`
	UseTLS         bool   `koanf:"use_tls"`
	Collection     string `koanf:"collection"`
	VectorSize     uint64 `koanf:"vector_size"`
	MaxMessageSize int    `koanf:"max_message_size"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	BaseURL    string        `koanf:"base_url"`
	Model      string        `koanf:"model"`
	APIKey     Secret        `koanf:"api_key"`
	Timeout    time.Duration `koanf:"timeout"`
	BatchSize  int           `koanf:"batch_size"`
	MaxRetries int           `koanf:"max_retries"`
}

// StorageConfig holds local file store configuration.
type StorageConfig struct {
	RootDir      string `koanf:"root_dir"`
	MaxFileBytes int64  `koanf:"max_file_bytes"`
}

// AnswerConfig holds answer generation (LLM) configuration.
type AnswerConfig struct {
	Enabled    bool          `koanf:"enabled"`
	BaseURL    string        `koanf:"base_url"`
	Model      string        `koanf:"model"`
	APIKey     Secret        `koanf:"api_key"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// AuthConfig holds bearer token verification configuration.
type AuthConfig struct {
	Enabled   bool   `koanf:"enabled"`
	JWTSecret Secret `koanf:"jwt_secret"`
	// DevTenant is the tenant assigned to every request when auth is
	// disabled. Only for local development.
	DevTenant string `koanf:"dev_tenant"`
}

// RetentionConfig holds the retention sweeper configuration.
type RetentionConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Window   time.Duration `koanf:"window"`
	Interval time.Duration `koanf:"interval"`
}

// IngestConfig holds chunking and batching configuration for ingestion.
type IngestConfig struct {
	ChunkSize      int `koanf:"chunk_size"`
	ChunkOverlap   int `koanf:"chunk_overlap"`
	MinChunkLength int `koanf:"min_chunk_length"`
	EmbedBatchSize int `koanf:"embed_batch_size"`
}

// TelemetryConfig holds OTLP trace and metric export configuration.
// Disabled by default; deployments without a collector need no changes.
type TelemetryConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Endpoint       string        `koanf:"endpoint"`
	Protocol       string        `koanf:"protocol"`
	Insecure       bool          `koanf:"insecure"`
	SampleRate     float64       `koanf:"sample_rate"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

// collectionPattern restricts collection names to what Qdrant accepts
// without escaping.
var collectionPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server shutdown timeout must be positive")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if !c.Database.DSN.IsSet() {
		return errors.New("database dsn is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	if c.Qdrant.Host == "" {
		return errors.New("qdrant host is required")
	}
	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port)
	}
	if !collectionPattern.MatchString(c.Qdrant.Collection) {
		return fmt.Errorf("invalid qdrant collection %q (must match %s)", c.Qdrant.Collection, collectionPattern)
	}
	if c.Qdrant.VectorSize == 0 {
		return errors.New("qdrant vector_size must be > 0")
	}

	if c.Embeddings.BaseURL == "" {
		return errors.New("embeddings base_url is required")
	}
	if c.Embeddings.Model == "" {
		return errors.New("embeddings model is required")
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings batch_size must be >= 1, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.MaxRetries < 1 {
		return fmt.Errorf("embeddings max_retries must be >= 1, got %d", c.Embeddings.MaxRetries)
	}

	if c.Storage.RootDir == "" {
		return errors.New("storage root_dir is required")
	}
	if c.Storage.MaxFileBytes <= 0 {
		return errors.New("storage max_file_bytes must be > 0")
	}

	if c.Answer.Enabled {
		if c.Answer.BaseURL == "" {
			return errors.New("answer base_url is required when answer generation is enabled")
		}
		if c.Answer.Model == "" {
			return errors.New("answer model is required when answer generation is enabled")
		}
		if !c.Answer.APIKey.IsSet() {
			return errors.New("answer api_key is required when answer generation is enabled")
		}
	}

	if c.Auth.Enabled && !c.Auth.JWTSecret.IsSet() {
		return errors.New("auth jwt_secret is required when auth is enabled")
	}
	if !c.Auth.Enabled && c.Auth.DevTenant == "" {
		return errors.New("auth dev_tenant is required when auth is disabled")
	}

	if c.Retention.Enabled {
		if c.Retention.Window <= 0 {
			return errors.New("retention window must be positive")
		}
		if c.Retention.Interval <= 0 {
			return errors.New("retention interval must be positive")
		}
	}

	if c.Ingest.ChunkSize < 1 {
		return fmt.Errorf("ingest chunk_size must be >= 1, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	}
	if c.Ingest.MinChunkLength < 0 {
		return fmt.Errorf("ingest min_chunk_length must be >= 0, got %d", c.Ingest.MinChunkLength)
	}
	if c.Ingest.EmbedBatchSize < 1 {
		return fmt.Errorf("ingest embed_batch_size must be >= 1, got %d", c.Ingest.EmbedBatchSize)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry sample_rate must be in [0, 1], got %g", c.Telemetry.SampleRate)
		}
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging = *logging.NewDefaultConfig()
	}

	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 5 * time.Second
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "documents"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api-inference.huggingface.co"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 30 * time.Second
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 10
	}
	if cfg.Embeddings.MaxRetries == 0 {
		cfg.Embeddings.MaxRetries = 3
	}

	if cfg.Storage.RootDir == "" {
		cfg.Storage.RootDir = "./data/uploads"
	}
	if cfg.Storage.MaxFileBytes == 0 {
		cfg.Storage.MaxFileBytes = 50 << 20 // 50 MiB
	}

	if cfg.Answer.BaseURL == "" {
		cfg.Answer.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "gemini-1.5-flash-8b"
	}
	if cfg.Answer.Timeout == 0 {
		cfg.Answer.Timeout = 2 * time.Minute
	}
	if cfg.Answer.MaxRetries == 0 {
		cfg.Answer.MaxRetries = 3
	}

	if cfg.Retention.Window == 0 {
		cfg.Retention.Window = 72 * time.Hour
	}
	if cfg.Retention.Interval == 0 {
		cfg.Retention.Interval = 24 * time.Hour
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.MinChunkLength == 0 {
		cfg.Ingest.MinChunkLength = 50
	}
	if cfg.Ingest.EmbedBatchSize == 0 {
		cfg.Ingest.EmbedBatchSize = 10
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.MetricInterval == 0 {
		cfg.Telemetry.MetricInterval = 15 * time.Second
	}
}
