package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config collects every tunable the tutor reads from the environment.
// A .env file in the working directory is loaded first when present.
type Config struct {
	// LLM provider: "ollama" (default), "openai", "anthropic" or "gemini".
	Provider string
	Model    string

	// Embedding provider: "ollama", "openai", "gemini", "fastembed" or
	// "dummy". Empty selects automatically from available credentials.
	EmbedProvider string
	EmbedModel    string

	OllamaHost string

	// Chunking.
	ChunkSize    int // words per chunk
	ChunkOverlap int // words shared between consecutive chunks
	TopK         int

	// Upload limits.
	MaxUploadBytes int64
	MaxTextBytes   int
	MinTextRunes   int

	// Generation retry policy.
	LLMAttempts int
	LLMBackoff  time.Duration

	// Persistence. Empty DSNs select the in-memory backends.
	SQLitePath  string
	PostgresDSN string
	MongoURI    string

	DataDir string

	SessionMinutes      int
	QuestionsPerSession int

	EmbedWorkers int
}

// Load reads configuration from the environment, applying defaults that
// mirror a fully local deployment (Ollama + embedded SQLite).
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := &Config{
		Provider:            getenv("TUTOR_PROVIDER", "ollama"),
		Model:               getenv("TUTOR_MODEL", "llama3.2"),
		EmbedProvider:       os.Getenv("TUTOR_EMBED_PROVIDER"),
		EmbedModel:          os.Getenv("TUTOR_EMBED_MODEL"),
		OllamaHost:          getenv("OLLAMA_HOST", "http://localhost:11434"),
		SQLitePath:          os.Getenv("TUTOR_SQLITE_PATH"),
		PostgresDSN:         os.Getenv("TUTOR_POSTGRES_DSN"),
		MongoURI:            os.Getenv("TUTOR_MONGO_URI"),
		DataDir:             getenv("TUTOR_DATA_DIR", "data"),
		ChunkSize:           500,
		ChunkOverlap:        50,
		TopK:                3,
		MaxUploadBytes:      100 << 20, // 100 MiB
		MaxTextBytes:        10 << 20,  // 10 MiB of extracted text
		MinTextRunes:        10,
		LLMAttempts:         3,
		LLMBackoff:          2 * time.Second,
		SessionMinutes:      30,
		QuestionsPerSession: 15,
		EmbedWorkers:        4,
	}

	var err error
	if cfg.ChunkSize, err = getint("TUTOR_CHUNK_SIZE", cfg.ChunkSize); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getint("TUTOR_CHUNK_OVERLAP", cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.TopK, err = getint("TUTOR_TOP_K", cfg.TopK); err != nil {
		return nil, err
	}
	if cfg.LLMAttempts, err = getint("TUTOR_LLM_ATTEMPTS", cfg.LLMAttempts); err != nil {
		return nil, err
	}
	if cfg.EmbedWorkers, err = getint("TUTOR_EMBED_WORKERS", cfg.EmbedWorkers); err != nil {
		return nil, err
	}
	if v := os.Getenv("TUTOR_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TUTOR_MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		cfg.MaxUploadBytes = n
	}
	if v := os.Getenv("TUTOR_LLM_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TUTOR_LLM_BACKOFF %q: %w", v, err)
		}
		cfg.LLMBackoff = d
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
