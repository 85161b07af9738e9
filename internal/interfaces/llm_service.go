package interfaces

import (
	"context"
)

// Message is one turn of an LLM conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// GenerateOptions bound a text generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
}

// LLMService abstracts the hosted model used for classification fallback
// and answer synthesis. Implementations exist for Gemini, Claude and the
// plain remote HTTP service.
type LLMService interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Chat(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// EmbeddingService turns text into dense vectors.
type EmbeddingService interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
	IsAvailable(ctx context.Context) bool
}
