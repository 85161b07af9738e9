package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// Service implements EmbeddingService against a remote HTTP embedding
// endpoint. When no endpoint is configured the Gemini service is used
// directly, since it implements EmbeddingService itself.
type Service struct {
	serviceURL string
	model      string
	dimension  int
	httpClient *http.Client
	logger     arbor.ILogger
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedReply struct {
	Embedding []float32 `json:"embedding"`
}

// NewService creates a remote embedding service client.
func NewService(cfg *common.EmbeddingConfig, logger arbor.ILogger) (*Service, error) {
	if cfg.ServiceURL == "" {
		return nil, fmt.Errorf("embedding service URL is required (set VIGIA_EMBED_SERVICE_URL or embedding.service_url in config)")
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = 768
	}

	return &Service{
		serviceURL: strings.TrimRight(cfg.ServiceURL, "/"),
		model:      cfg.Model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: common.ParseDurationOr(cfg.Timeout, 30*time.Second)},
		logger:     logger,
	}, nil
}

// GenerateEmbedding creates a vector embedding for text.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	payload, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serviceURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var reply embedReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("invalid embedding response: %w", err)
	}
	if len(reply.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}
	if len(reply.Embedding) != s.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dimension, len(reply.Embedding))
	}

	s.logger.Debug().
		Int("embedding_dim", len(reply.Embedding)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return reply.Embedding, nil
}

// Dimension returns the embedding dimension.
func (s *Service) Dimension() int {
	return s.dimension
}

// ModelName returns the embedding model identifier.
func (s *Service) ModelName() string {
	return s.model
}

// IsAvailable probes the embedding endpoint with a short request.
func (s *Service) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.GenerateEmbedding(probeCtx, "ping")
	return err == nil
}

// PrepareDocumentText builds the text fed to the embedding model for an
// event: title plus body, truncated to the summary limit.
func PrepareDocumentText(event *models.Event) string {
	text := strings.TrimSpace(event.Title + "\n" + event.Text)
	if len(text) > models.MaxTextSummaryLen {
		text = text[:models.MaxTextSummaryLen]
	}
	return text
}

var _ interfaces.EmbeddingService = (*Service)(nil)
