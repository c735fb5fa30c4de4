package models

import (
	"context"
	"fmt"
)

// NewProvider returns a concrete Agent for the named provider.
// ollamaHost only matters for the ollama provider; pass "" for default.
func NewProvider(ctx context.Context, provider, model, ollamaHost string) (Agent, error) {
	switch provider {
	case "ollama", "":
		return NewOllamaLLM(ollamaHost, model)
	case "openai":
		return NewOpenAILLM(model), nil
	case "anthropic", "claude":
		return NewAnthropicLLM(model), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
