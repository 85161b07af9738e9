package vector

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
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// RemoteBackend talks to an external vector service over HTTP. The service
// returns distances; they are converted to similarities (1 - d) before the
// hits leave this backend.
type RemoteBackend struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewRemoteBackend creates the remote vector service backend.
func NewRemoteBackend(baseURL string, timeout time.Duration, logger arbor.ILogger) *RemoteBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name identifies the backend in logs and merge diagnostics.
func (b *RemoteBackend) Name() string {
	return "remote"
}

type remoteAddRequest struct {
	ID       string                 `json:"id"`
	Vector   []float32              `json:"vector"`
	Document string                 `json:"document"`
	Metadata map[string]interface{} `json:"metadata"`
}

type remoteSearchRequest struct {
	Vector []float32         `json:"vector"`
	K      int               `json:"k"`
	Where  map[string]string `json:"where,omitempty"`
}

type remoteSearchReply struct {
	Results []struct {
		ID       string                 `json:"id"`
		Distance float64                `json:"distance"`
		Document string                 `json:"document"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"results"`
}

// Add pushes the record to the remote service.
func (b *RemoteBackend) Add(ctx context.Context, record *models.VectorRecord) error {
	payload := remoteAddRequest{
		ID:       record.EventID,
		Vector:   record.Vector,
		Document: record.TextSummary,
		Metadata: map[string]interface{}{
			"company_name":     record.CompanyName,
			"risk_level":       record.RiskLevel,
			"publication_date": record.PublicationDate,
			"source":           string(record.Source),
			"title":            record.Title,
		},
	}

	var reply json.RawMessage
	return b.post(ctx, "/add", payload, &reply)
}

// Search queries the remote service and converts distances to similarities.
func (b *RemoteBackend) Search(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error) {
	where := map[string]string{}
	if filter.CompanyName != "" {
		where["company_name"] = filter.CompanyName
	}
	if filter.RiskLevel != "" {
		where["risk_level"] = filter.RiskLevel
	}
	if filter.Source != "" {
		where["source"] = filter.Source
	}

	var reply remoteSearchReply
	if err := b.post(ctx, "/search", remoteSearchRequest{Vector: queryVector, K: k, Where: where}, &reply); err != nil {
		return nil, err
	}

	hits := make([]models.VectorHit, 0, len(reply.Results))
	for _, result := range reply.Results {
		hits = append(hits, models.VectorHit{
			ID:       result.ID,
			Score:    1 - result.Distance,
			Document: result.Document,
			Metadata: result.Metadata,
		})
	}
	return hits, nil
}

// post sends one JSON request to the remote service.
func (b *RemoteBackend) post(ctx context.Context, path string, payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vector service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read vector service response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("invalid vector service response: %w", err)
	}
	return nil
}

var _ interfaces.VectorBackend = (*RemoteBackend)(nil)
