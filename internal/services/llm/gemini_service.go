package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiService implements the LLMService interface using the Google genai
// SDK. It also exposes embedding generation for the vector pipeline.
type GeminiService struct {
	config    *common.GeminiConfig
	embedding *common.EmbeddingConfig
	logger    arbor.ILogger
	client    *genai.Client
	timeout   time.Duration
}

// convertMessagesToGemini converts []interfaces.Message to Gemini Content
// format. System messages are extracted separately for SystemInstruction.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		var geminiRole string
		switch msg.Role {
		case "assistant":
			geminiRole = genai.RoleModel
		default:
			geminiRole = genai.RoleUser
		}

		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	return contents, systemText, nil
}

// NewGeminiService creates a new Gemini LLM service instance.
//
// Initialization resolves the API key from configuration (VIGIA_GEMINI_API_KEY
// overrides the file), applies model defaults and builds the genai client.
func NewGeminiService(geminiConfig *common.GeminiConfig, embeddingConfig *common.EmbeddingConfig, logger arbor.ILogger) (*GeminiService, error) {
	if geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for Gemini service (set VIGIA_GEMINI_API_KEY or gemini.api_key in config)")
	}

	if geminiConfig.Model == "" {
		geminiConfig.Model = "gemini-2.0-flash"
	}
	if embeddingConfig.Model == "" {
		embeddingConfig.Model = "gemini-embedding-001"
	}
	if embeddingConfig.Dimension <= 0 {
		embeddingConfig.Dimension = 768
	}

	timeout := common.ParseDurationOr(geminiConfig.Timeout, 30*time.Second)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:    geminiConfig,
		embedding: embeddingConfig,
		logger:    logger,
		client:    client,
		timeout:   timeout,
	}

	logger.Info().
		Str("chat_model", geminiConfig.Model).
		Str("embed_model", embeddingConfig.Model).
		Int("embed_dimension", embeddingConfig.Dimension).
		Dur("timeout", timeout).
		Msg("Gemini LLM service initialized successfully")

	return service, nil
}

// Generate produces a completion for a single prompt.
func (s *GeminiService) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	return s.Chat(ctx, []interfaces.Message{{Role: "user", Content: prompt}}, opts)
}

// Chat generates a completion response based on the conversation history.
func (s *GeminiService) Chat(ctx context.Context, messages []interfaces.Message, opts interfaces.GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Int("message_count", len(messages)).
		Msg("Starting chat completion")

	response, err := s.generateCompletion(timeoutCtx, messages, opts)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("message_count", len(messages)).
			Msg("Chat completion failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Chat completion completed successfully")

	return response, nil
}

// GenerateEmbedding generates an embedding vector for the given text using
// the configured embedding model and output dimensionality.
func (s *GeminiService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outputDim := int32(s.embedding.Dimension)
	result, err := s.client.Models.EmbedContent(timeoutCtx, s.embedding.Model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &outputDim})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	if len(embedding) != s.embedding.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.embedding.Dimension, len(embedding))
	}

	return embedding, nil
}

// Dimension returns the configured embedding dimensionality.
func (s *GeminiService) Dimension() int {
	return s.embedding.Dimension
}

// ModelName returns the embedding model identifier.
func (s *GeminiService) ModelName() string {
	return s.embedding.Model
}

// IsAvailable reports whether the embedding side of the service is usable.
func (s *GeminiService) IsAvailable(ctx context.Context) bool {
	return s.client != nil
}

// HealthCheck verifies the service is operational by probing both models.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	s.logger.Debug().Msg("Running Gemini LLM service health check")

	if s.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	embedding, err := s.GenerateEmbedding(probeCtx, "health check probe")
	if err != nil {
		s.logger.Error().Err(err).Msg("Embedding model health check failed")
		return fmt.Errorf("embedding model health check failed: %w", err)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("embedding probe returned empty vector")
	}

	response, err := s.generateCompletion(probeCtx, []interfaces.Message{{Role: "user", Content: "ping"}}, interfaces.GenerateOptions{MaxTokens: 16})
	if err != nil {
		s.logger.Error().Err(err).Msg("Chat model health check failed")
		return fmt.Errorf("chat model health check failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("chat probe returned empty response")
	}

	s.logger.Info().
		Str("chat_model", s.config.Model).
		Str("embed_model", s.embedding.Model).
		Msg("Gemini LLM service health check passed")

	return nil
}

// Close releases resources. The genai client does not require explicit
// cleanup beyond clearing the reference.
func (s *GeminiService) Close() error {
	s.logger.Info().Msg("Closing Gemini LLM service")
	s.client = nil
	return nil
}

// generateCompletion encapsulates the genai GenerateContent call.
func (s *GeminiService) generateCompletion(ctx context.Context, messages []interfaces.Message, opts interfaces.GenerateOptions) (string, error) {
	geminiContents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to Gemini format: %w", err)
	}

	temperature := s.config.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.config.Model, geminiContents, config)
	if err != nil {
		return "", fmt.Errorf("chat generation failed: %w", err)
	}

	var response strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from chat model")
	}

	return response.String(), nil
}

var _ interfaces.LLMService = (*GeminiService)(nil)
var _ interfaces.EmbeddingService = (*GeminiService)(nil)
