package llm

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
)

// RemoteService implements the LLMService interface against a plain HTTP
// generation endpoint. It is the fallback provider when no cloud API key is
// configured.
type RemoteService struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     arbor.ILogger
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

type generateReply struct {
	Text string `json:"text"`
}

// NewRemoteService creates a service client for the HTTP generation endpoint.
func NewRemoteService(llmConfig *common.LLMConfig, logger arbor.ILogger) (*RemoteService, error) {
	if llmConfig.GenerateURL == "" {
		return nil, fmt.Errorf("generate URL is required for remote LLM service (set VIGIA_LLM_GENERATE_URL or llm.generate_url in config)")
	}

	timeout := common.ParseDurationOr(llmConfig.Timeout, 30*time.Second)
	maxRetries := llmConfig.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	service := &RemoteService{
		baseURL:    strings.TrimRight(llmConfig.GenerateURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     logger,
	}

	logger.Debug().
		Str("url", service.baseURL).
		Dur("timeout", timeout).
		Int("max_retries", maxRetries).
		Msg("Remote LLM service initialized")

	return service, nil
}

// Generate sends the prompt to the generation endpoint and returns the text.
// Transient failures are retried with exponential backoff.
func (s *RemoteService) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	payload, err := json.Marshal(generateRequest{
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generate request: %w", err)
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, retryable, err := s.post(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		s.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("Remote generate attempt failed")
	}

	return "", fmt.Errorf("remote generation failed: %w", lastErr)
}

// Chat flattens the conversation into a single prompt. The remote endpoint
// has no multi-turn contract.
func (s *RemoteService) Chat(ctx context.Context, messages []interfaces.Message, opts interfaces.GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	var prompt strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n\n")
		case "assistant":
			prompt.WriteString("Assistant: ")
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		default:
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		}
	}

	return s.Generate(ctx, prompt.String(), opts)
}

// HealthCheck probes the endpoint with a minimal prompt.
func (s *RemoteService) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	text, err := s.Generate(probeCtx, "ping", interfaces.GenerateOptions{MaxTokens: 8})
	if err != nil {
		return fmt.Errorf("remote LLM health check failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("remote LLM probe returned empty response")
	}
	return nil
}

// Close is a no-op for the HTTP client.
func (s *RemoteService) Close() error {
	return nil
}

// post performs one request. The second return value reports whether the
// failure is worth retrying: 5xx and 429 are, schema errors and other 4xx
// are not.
func (s *RemoteService) post(ctx context.Context, payload []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var reply generateReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", false, fmt.Errorf("invalid response body: %w", err)
	}
	if reply.Text == "" {
		return "", false, fmt.Errorf("empty text in response")
	}

	return reply.Text, false, nil
}

var _ interfaces.LLMService = (*RemoteService)(nil)
