package config

import "os"

// Environment variables that override secrets in the config file.
const (
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvEmbeddingAPIKey  = "KOTAE_EMBEDDING_API_KEY"
	EnvGenerationAPIKey = "KOTAE_GENERATION_API_KEY"
	EnvMinioAccessKey   = "KOTAE_MINIO_ACCESS_KEY"
	EnvMinioSecretKey   = "KOTAE_MINIO_SECRET_KEY"
	EnvQdrantAPIKey     = "KOTAE_QDRANT_API_KEY"
)

// ApplyEnv fills secrets from the environment. Specific variables win over
// OPENAI_API_KEY, which is used for both providers when nothing else is set.
func ApplyEnv(cfg *Config) {
	shared := os.Getenv(EnvOpenAIKey)
	cfg.Embedding.APIKey = firstNonEmpty(os.Getenv(EnvEmbeddingAPIKey), cfg.Embedding.APIKey, shared)
	cfg.Generation.APIKey = firstNonEmpty(os.Getenv(EnvGenerationAPIKey), cfg.Generation.APIKey, shared)
	cfg.Blob.Minio.AccessKey = firstNonEmpty(os.Getenv(EnvMinioAccessKey), cfg.Blob.Minio.AccessKey)
	cfg.Blob.Minio.SecretKey = firstNonEmpty(os.Getenv(EnvMinioSecretKey), cfg.Blob.Minio.SecretKey)
	cfg.Vector.Qdrant.APIKey = firstNonEmpty(os.Getenv(EnvQdrantAPIKey), cfg.Vector.Qdrant.APIKey)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
