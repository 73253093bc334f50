// Package config provides configuration management for the research assistant service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the research assistant service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains LLM client settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Embedding contains embedding provider settings.
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	// Chunking contains semantic chunker settings.
	Chunking ChunkingConfig `mapstructure:"chunking"`
	// Review contains literature review scheduler settings.
	Review ReviewConfig `mapstructure:"review"`
	// ArXiv contains arXiv paper source settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// PDF contains PDF download and text extraction settings.
	PDF PDFConfig `mapstructure:"pdf"`
	// Qdrant contains Qdrant vector store settings.
	Qdrant QdrantConfig `mapstructure:"qdrant"`
	// Kafka contains Kafka event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading the request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxUploadBytes caps the accepted size of uploaded PDFs.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Provider is the LLM provider (openai, anthropic, ollama).
	Provider string `mapstructure:"provider"`
	// Temperature is the LLM temperature setting.
	Temperature float64 `mapstructure:"temperature"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	// Ollama contains Ollama-specific settings.
	Ollama OllamaConfig `mapstructure:"ollama"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from RESEARCHAI_LLM_OPENAI_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from RESEARCHAI_LLM_ANTHROPIC_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// OllamaConfig holds Ollama-specific settings.
type OllamaConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string `mapstructure:"base_url"`
	// Model is the chat model name.
	Model string `mapstructure:"model"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	// Provider is the embedding provider (openai, ollama).
	Provider string `mapstructure:"provider"`
	// Model is the embedding model name.
	Model string `mapstructure:"model"`
	// Dimension is the embedding vector dimension (must match the model).
	Dimension int `mapstructure:"dimension"`
	// Timeout is the timeout for embedding API calls.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ChunkingConfig holds semantic chunker configuration.
type ChunkingConfig struct {
	// SimilarityThreshold is the adjacent-sentence cosine similarity below
	// which a chunk boundary occurs (0.0-1.0).
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	// SentenceOverlap is the number of trailing sentences duplicated across
	// chunk boundaries.
	SentenceOverlap int `mapstructure:"sentence_overlap"`
	// MaxSentenceChars is the sentence length above which the fallback
	// splitter takes over.
	MaxSentenceChars int `mapstructure:"max_sentence_chars"`
	// FallbackChunkSize is the fallback splitter window size in characters.
	FallbackChunkSize int `mapstructure:"fallback_chunk_size"`
	// FallbackChunkOverlap is the character overlap between fallback windows.
	FallbackChunkOverlap int `mapstructure:"fallback_chunk_overlap"`
}

// ReviewConfig holds literature review scheduler configuration.
type ReviewConfig struct {
	// CandidatePoolSize is how many papers to fetch from search before filtering.
	CandidatePoolSize int `mapstructure:"candidate_pool_size"`
	// MaxPapers is the target number of papers after LLM relevance filtering.
	MaxPapers int `mapstructure:"max_papers"`
	// BatchSize is the number of papers processed concurrently per batch.
	// Provider-specific; tune to the LLM provider's rate limits.
	BatchSize int `mapstructure:"batch_size"`
	// BatchCooldown is the mandatory pause between batches.
	BatchCooldown time.Duration `mapstructure:"batch_cooldown"`
}

// ArXivConfig holds arXiv paper source configuration.
type ArXivConfig struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// PDFConfig holds PDF download and text extraction settings.
type PDFConfig struct {
	// TikaAddress is the base URL of the Apache Tika server used for text extraction.
	TikaAddress string `mapstructure:"tika_address"`
	// ExtractTimeout is the timeout for a single extraction call.
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	// DownloadTimeout is the timeout for a single PDF download.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// MaxDownloadBytes caps the size of downloaded PDFs.
	MaxDownloadBytes int64 `mapstructure:"max_download_bytes"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Address is the Qdrant gRPC address.
	Address string `mapstructure:"address"`
	// CollectionName is the name of the collection for chunk embeddings.
	CollectionName string `mapstructure:"collection_name"`
	// VectorSize is the embedding dimension (must match the embedding model).
	VectorSize uint64 `mapstructure:"vector_size"`
}

// KafkaConfig holds Kafka event publisher settings.
type KafkaConfig struct {
	// Enabled controls whether lifecycle event publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic lifecycle events are published to.
	Topic string `mapstructure:"topic"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RESEARCHAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/research-assistant-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets are loaded exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv("RESEARCHAI_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("RESEARCHAI_LLM_ANTHROPIC_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_upload_bytes", 50*1024*1024)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "researchai")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "research_assistant")
	// Default to "require" for production security. Use RESEARCHAI_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.ollama.base_url", "http://localhost:11434")
	v.SetDefault("llm.ollama.model", "llama3.1")

	// Embedding defaults (all-MiniLM-class local model, 384 dimensions)
	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.timeout", "30s")

	// Chunking defaults
	v.SetDefault("chunking.similarity_threshold", 0.5)
	v.SetDefault("chunking.sentence_overlap", 1)
	v.SetDefault("chunking.max_sentence_chars", 1000)
	v.SetDefault("chunking.fallback_chunk_size", 400)
	v.SetDefault("chunking.fallback_chunk_overlap", 80)

	// Review defaults. Batch size and cooldown accommodate the LLM
	// provider's rate limits and are deliberately configurable.
	v.SetDefault("review.candidate_pool_size", 20)
	v.SetDefault("review.max_papers", 5)
	v.SetDefault("review.batch_size", 5)
	v.SetDefault("review.batch_cooldown", "60s")

	// arXiv defaults (arXiv recommends max 3 req/sec)
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("arxiv.timeout", "30s")
	v.SetDefault("arxiv.rate_limit", 3.0)
	v.SetDefault("arxiv.max_results", 100)

	// PDF defaults
	v.SetDefault("pdf.tika_address", "http://localhost:9998")
	v.SetDefault("pdf.extract_timeout", "120s")
	v.SetDefault("pdf.download_timeout", "60s")
	v.SetDefault("pdf.max_download_bytes", 100*1024*1024)

	// Qdrant defaults
	v.SetDefault("qdrant.address", "localhost:6334")
	v.SetDefault("qdrant.collection_name", "chunk_embeddings")
	v.SetDefault("qdrant.vector_size", 384)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.research_assistant_service")
	v.SetDefault("kafka.batch_timeout", "10ms")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Chunking.SimilarityThreshold < 0 || c.Chunking.SimilarityThreshold > 1 {
		return fmt.Errorf("chunking similarity threshold must be between 0 and 1")
	}
	if c.Chunking.SentenceOverlap < 0 {
		return fmt.Errorf("chunking sentence overlap must be >= 0")
	}
	if c.Chunking.FallbackChunkOverlap >= c.Chunking.FallbackChunkSize {
		return fmt.Errorf("fallback chunk overlap (%d) must be smaller than fallback chunk size (%d)",
			c.Chunking.FallbackChunkOverlap, c.Chunking.FallbackChunkSize)
	}

	if c.Review.BatchSize <= 0 {
		return fmt.Errorf("review batch size must be positive")
	}
	if c.Review.MaxPapers <= 0 {
		return fmt.Errorf("review max papers must be positive")
	}
	if c.Review.CandidatePoolSize < c.Review.MaxPapers {
		return fmt.Errorf("review candidate pool size (%d) must be >= max papers (%d)",
			c.Review.CandidatePoolSize, c.Review.MaxPapers)
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if uint64(c.Embedding.Dimension) != c.Qdrant.VectorSize {
		return fmt.Errorf("qdrant vector size (%d) must match embedding dimension (%d)",
			c.Qdrant.VectorSize, c.Embedding.Dimension)
	}

	// Validate that the configured LLM provider has its required API key set.
	// Ollama is a local server and requires no key.
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires RESEARCHAI_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires RESEARCHAI_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	case "ollama":
		// Local provider; no API key required.
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	return nil
}
