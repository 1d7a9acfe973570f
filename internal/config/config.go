// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is built once at
// startup and passed to constructors; nothing mutates it afterwards.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Blob       BlobConfig       `yaml:"blob"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Chat       ChatConfig       `yaml:"chat"`
	Inbox      InboxConfig      `yaml:"inbox"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	OwnerHeader     string        `yaml:"owner_header"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	SSEHeartbeat    time.Duration `yaml:"sse_heartbeat"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig holds the relational store location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// BlobConfig selects where uploaded files are kept.
type BlobConfig struct {
	Type    string        `yaml:"type"` // "disk" or "minio"
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
	Minio   MinioConfig   `yaml:"minio"`
}

// MinioConfig holds S3-compatible object storage settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// EmbeddingConfig holds embedding provider and gateway settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // "openai" or "mock"
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Dimensions        int           `yaml:"dimensions"`
	BatchSize         int           `yaml:"batch_size"`
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
}

// VectorConfig selects and tunes the vector index.
type VectorConfig struct {
	Type     string        `yaml:"type"` // "memory" or "qdrant"
	MinScore *float64      `yaml:"min_score"`
	Timeout  time.Duration `yaml:"timeout"`
	Qdrant   QdrantConfig  `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// GenerationConfig holds chat model settings.
type GenerationConfig struct {
	Provider          string        `yaml:"provider"` // "openai" or "mock"
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	ContextBudget     int           `yaml:"context_budget"` // prompt tokens, excluding the answer
	Timeout           time.Duration `yaml:"timeout"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// ChunkingConfig holds chunk window settings, in runes.
type ChunkingConfig struct {
	ChunkSize    int  `yaml:"chunk_size"`
	ChunkOverlap *int `yaml:"chunk_overlap"`
}

// OverlapOrDefault returns the configured overlap; defaults to 200 when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return 200
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	BatchSize    int `yaml:"batch_size"`
	Workers      int `yaml:"workers"`
	ChunkRetries int `yaml:"chunk_retries"`
}

// ChatConfig tunes the chat orchestrator.
type ChatConfig struct {
	TopK            int           `yaml:"top_k"`
	HistoryMessages int           `yaml:"history_messages"`
	SystemPreamble  string        `yaml:"system_preamble"`
	LockWait        time.Duration `yaml:"lock_wait"`
}

// InboxConfig holds directory auto-import settings.
type InboxConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	OwnerID     string   `yaml:"owner_id"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *InboxConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults and
// environment overrides, expands paths, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Blob.Path = expandPath(cfg.Blob.Path, configDir)
	for i := range cfg.Inbox.Directories {
		cfg.Inbox.Directories[i] = expandPath(cfg.Inbox.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunking.chunk_size must be positive"))
	}
	if o := c.Chunking.OverlapOrDefault(); o < 0 || o >= c.Chunking.ChunkSize {
		errs = append(errs, fmt.Errorf("chunking.chunk_overlap %d must be in [0, chunk_size)", o))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive"))
	}
	if c.Embedding.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("embedding.max_attempts must be positive"))
	}
	switch c.Embedding.Provider {
	case "openai", "mock":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider))
	}
	switch c.Generation.Provider {
	case "openai", "mock":
	default:
		errs = append(errs, fmt.Errorf("generation.provider %q is not supported", c.Generation.Provider))
	}
	switch c.Vector.Type {
	case "memory", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("vector.type %q is not supported", c.Vector.Type))
	}
	switch c.Blob.Type {
	case "disk":
	case "minio":
		if c.Blob.Minio.Endpoint == "" || c.Blob.Minio.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.minio.endpoint and blob.minio.bucket are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.type %q is not supported", c.Blob.Type))
	}
	if c.Generation.ContextBudget <= 0 {
		errs = append(errs, fmt.Errorf("generation.context_budget must be positive"))
	}
	if c.Vector.MinScore != nil && (*c.Vector.MinScore < -1 || *c.Vector.MinScore > 1) {
		errs = append(errs, fmt.Errorf("vector.min_score must be in [-1, 1]"))
	}
	if len(c.Inbox.Directories) > 0 && c.Inbox.OwnerID == "" {
		errs = append(errs, fmt.Errorf("inbox.owner_id is required when inbox.directories is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
