package models

import "context"

// Request is a single-turn completion request. System sets the tutor
// persona, Temperature and MaxTokens bound the generation.
type Request struct {
	Prompt      string
	System      string
	Temperature float32
	MaxTokens   int
}

// Agent is a text-completion provider. Implementations return the raw
// response text or an error; they never substitute fallback text.
type Agent interface {
	Generate(ctx context.Context, req Request) (string, error)
}
