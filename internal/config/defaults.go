package config

import "time"

// DefaultSystemPreamble instructs the model to stay grounded in the supplied excerpts.
const DefaultSystemPreamble = `You are a helpful assistant that answers questions using the user's documents.
Use the numbered document excerpts below when they are relevant and cite them as [n].
If the excerpts do not contain the answer, say that the documents do not cover it instead of guessing.`

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.OwnerHeader == "" {
		cfg.Server.OwnerHeader = "X-User-ID"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.SSEHeartbeat == 0 {
		cfg.Server.SSEHeartbeat = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/kotae.db"
	}
	if cfg.Blob.Type == "" {
		cfg.Blob.Type = "disk"
	}
	if cfg.Blob.Path == "" {
		cfg.Blob.Path = "/usr/local/var/kotae/data/blobs"
	}
	if cfg.Blob.Timeout == 0 {
		cfg.Blob.Timeout = 30 * time.Second
	}
	if cfg.Blob.Minio.Bucket == "" {
		cfg.Blob.Minio.Bucket = "documents"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.MaxAttempts == 0 {
		cfg.Embedding.MaxAttempts = 5
	}
	if cfg.Embedding.InitialBackoff == 0 {
		cfg.Embedding.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Embedding.MaxBackoff == 0 {
		cfg.Embedding.MaxBackoff = 10 * time.Second
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 5
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "memory"
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = 10 * time.Second
	}
	if cfg.Vector.Qdrant.Host == "" {
		cfg.Vector.Qdrant.Host = "localhost"
	}
	if cfg.Vector.Qdrant.Port == 0 {
		cfg.Vector.Qdrant.Port = 6334
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "kotae_chunks"
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.7
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1000
	}
	if cfg.Generation.ContextBudget == 0 {
		cfg.Generation.ContextBudget = 6000
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 2 * time.Minute
	}
	if cfg.Generation.MaxConcurrent == 0 {
		cfg.Generation.MaxConcurrent = 8
	}
	if cfg.Generation.RequestsPerMinute == 0 {
		cfg.Generation.RequestsPerMinute = 60
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 32
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.ChunkRetries == 0 {
		cfg.Ingest.ChunkRetries = 2
	}
	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 5
	}
	if cfg.Chat.HistoryMessages == 0 {
		cfg.Chat.HistoryMessages = 10
	}
	if cfg.Chat.SystemPreamble == "" {
		cfg.Chat.SystemPreamble = DefaultSystemPreamble
	}
	if cfg.Chat.LockWait == 0 {
		cfg.Chat.LockWait = 30 * time.Second
	}
	if cfg.Inbox.Extensions == nil {
		cfg.Inbox.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods", ".rtf"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Inbox.Directories) > 0 && cfg.Inbox.Recursive == nil {
		t := true
		cfg.Inbox.Recursive = &t
	}
}
