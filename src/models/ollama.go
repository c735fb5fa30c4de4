package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaLLM talks to a local Ollama server. This is the tutor's default
// provider: everything runs on the learner's own machine.
type OllamaLLM struct {
	Client *ollama.Client
	Model  string
}

// NewOllamaLLM connects to an Ollama server. An empty host falls back to
// OLLAMA_HOST and then localhost.
func NewOllamaLLM(host, model string) (*OllamaLLM, error) {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	httpClient := &http.Client{Timeout: 120 * time.Second}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaLLM{Client: ollama.NewClient(u, httpClient), Model: model}, nil
}

func (o *OllamaLLM) Generate(ctx context.Context, req Request) (string, error) {
	msgs := make([]ollama.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, ollama.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, ollama.Message{Role: "user", Content: req.Prompt})

	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}

	stream := false
	var text strings.Builder
	err := o.Client.Chat(ctx, &ollama.ChatRequest{
		Model:    o.Model,
		Messages: msgs,
		Options:  opts,
		Stream:   &stream,
	}, func(resp ollama.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text.String(), nil
}
