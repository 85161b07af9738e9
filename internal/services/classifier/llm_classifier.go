package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

const (
	// DefaultClassifyTimeout bounds one remote classification call.
	DefaultClassifyTimeout = 30 * time.Second

	// DefaultMaxRetries is the transient-failure retry budget.
	DefaultMaxRetries = 3

	initialBackoff = 500 * time.Millisecond
)

// classifyRequest is the wire body for the remote classify service.
type classifyRequest struct {
	Text    string `json:"text"`
	Title   string `json:"title"`
	Source  string `json:"source"`
	Section string `json:"section"`
}

// classifyReply is the strict reply contract. Anything that fails label or
// confidence validation is a schema error and is never retried.
type classifyReply struct {
	Label      string  `json:"label"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

func (r *classifyReply) toClassification() (*models.Classification, error) {
	label := models.RiskLabel(r.Label)
	if !label.Valid() {
		return nil, fmt.Errorf("%w: unknown label %q", interfaces.ErrInvalidReply, r.Label)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %f out of range", interfaces.ErrInvalidReply, r.Confidence)
	}
	method := models.ClassificationMethod(r.Method)
	if method == "" {
		method = models.MethodHybridLLM
	}
	return &models.Classification{
		Label:      label,
		Confidence: r.Confidence,
		Method:     method,
		Rationale:  r.Reason,
	}, nil
}

// ServiceClassifier calls the hosted classify endpoint. Transient failures
// (network, 5xx) are retried with exponential backoff; 4xx and schema
// errors are permanent.
type ServiceClassifier struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     arbor.ILogger
}

// ServiceClassifierOption configures the ServiceClassifier.
type ServiceClassifierOption func(*ServiceClassifier)

// WithClassifyHTTPClient sets a custom HTTP client.
func WithClassifyHTTPClient(client *http.Client) ServiceClassifierOption {
	return func(c *ServiceClassifier) {
		c.httpClient = client
	}
}

// WithClassifyRetries sets the transient retry budget.
func WithClassifyRetries(n int) ServiceClassifierOption {
	return func(c *ServiceClassifier) {
		c.maxRetries = n
	}
}

// NewServiceClassifier creates a classifier over the remote classify service.
func NewServiceClassifier(baseURL string, logger arbor.ILogger, opts ...ServiceClassifierOption) *ServiceClassifier {
	c := &ServiceClassifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultClassifyTimeout},
		maxRetries: DefaultMaxRetries,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify posts one document and validates the reply.
func (c *ServiceClassifier) Classify(ctx context.Context, input interfaces.ClassifyInput) (*models.Classification, error) {
	body, err := json.Marshal(classifyRequest{
		Text:    input.Text,
		Title:   input.Title,
		Source:  string(input.Source),
		Section: input.Section,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		reply, retryable, err := c.post(ctx, body)
		if err == nil {
			return reply.toClassification()
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("Classify call failed, retrying")
	}

	return nil, fmt.Errorf("classify failed after %d attempts: %w", c.maxRetries, lastErr)
}

// ClassifyBatch sends the documents one by one. Order is preserved; a nil
// entry marks a document whose call failed permanently.
func (c *ServiceClassifier) ClassifyBatch(ctx context.Context, inputs []interfaces.ClassifyInput) ([]*models.Classification, error) {
	results := make([]*models.Classification, len(inputs))
	for i, input := range inputs {
		result, err := c.Classify(ctx, input)
		if err != nil {
			c.logger.Warn().Err(err).Int("index", i).Msg("Batch classify entry failed")
			continue
		}
		results[i] = result
	}
	return results, nil
}

// post performs one request. The bool reports whether the failure is
// transient and worth retrying.
func (c *ServiceClassifier) post(ctx context.Context, body []byte) (*classifyReply, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read classify reply: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("classify service returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("classify service rejected request with %d", resp.StatusCode)
	}

	var reply classifyReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, false, fmt.Errorf("%w: %v", interfaces.ErrInvalidReply, err)
	}
	return &reply, false, nil
}

var _ interfaces.LLMClassifier = (*ServiceClassifier)(nil)
