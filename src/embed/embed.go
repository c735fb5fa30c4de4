package embed

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
)

// Embedder turns text into a fixed-length vector. Every chunk of an ingested
// document and every retrieval query goes through the same Embedder, so the
// vectors stay comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that cannot produce embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// ---------- Dummy (fallback) ----------

// DummyEmbedder is a deterministic, dependency-free embedder for tests and
// offline runs. Vectors are byte-histogram projections, not semantic.
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding projects text into a 768-dim vector.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, 768)
	for i, ch := range []byte(text) {
		vec[i%768] += float32(ch) / 255.0
	}
	return vec
}

// AutoEmbedder builds the named provider ("ollama", "openai", "gemini",
// "fastembed" or "dummy"). An empty provider infers one from available
// credentials, falling back to the deterministic dummy.
func AutoEmbedder(provider, model, ollamaHost string) Embedder {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)

	switch provider {
	case "dummy":
		return DummyEmbedder{}
	case "ollama":
		if e, err := NewOllamaEmbedder(ollamaHost, model); err == nil {
			return e
		}
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "gemini", "google":
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	case "fastembed":
		if opts := defaultFastEmbedOptions(); opts != nil {
			if e, err := NewFastEmbedder(context.Background(), opts); err == nil {
				return e
			}
		}
	}

	if os.Getenv("OLLAMA_HOST") != "" {
		if e, err := NewOllamaEmbedder(ollamaHost, model); err == nil {
			return e
		}
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	}

	log.Printf("AutoEmbedder: falling back to DummyEmbedder")
	return DummyEmbedder{}
}
