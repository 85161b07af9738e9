package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultNewsAPIBaseURL is the NewsAPI v2 endpoint.
	DefaultNewsAPIBaseURL = "https://newsapi.org/v2"

	// maxNewsAPIWindowDays is the provider's lookback limit on the free plan.
	maxNewsAPIWindowDays = 30
)

// NewsAPIAdapter searches the NewsAPI "everything" endpoint with a single
// windowed query. Windows wider than the provider limit are clamped and the
// clamp is surfaced in the summary errors.
type NewsAPIAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewsAPIOption configures the NewsAPIAdapter.
type NewsAPIOption func(*NewsAPIAdapter)

// WithNewsAPIHTTPClient sets a custom HTTP client.
func WithNewsAPIHTTPClient(httpClient *http.Client) NewsAPIOption {
	return func(a *NewsAPIAdapter) {
		a.httpClient = httpClient
	}
}

// WithNewsAPIRateLimit sets a custom rate limit in requests per second.
func WithNewsAPIRateLimit(requestsPerSecond int) NewsAPIOption {
	return func(a *NewsAPIAdapter) {
		a.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewNewsAPIAdapter creates a NewsAPI adapter.
func NewNewsAPIAdapter(baseURL, apiKey string, logger arbor.ILogger, opts ...NewsAPIOption) *NewsAPIAdapter {
	if baseURL == "" {
		baseURL = DefaultNewsAPIBaseURL
	}
	a := &NewsAPIAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source returns the adapter identity tag.
func (a *NewsAPIAdapter) Source() models.Source {
	return models.SourceNewsAPI
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	TotalResults int              `json:"totalResults"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Search runs a single windowed query against the everything endpoint.
func (a *NewsAPIAdapter) Search(ctx context.Context, query string, window common.DateWindow) *models.SourceResult {
	result := models.NewSourceResult(models.SourceNewsAPI, query)

	if a.apiKey == "" {
		result.AddError("newsapi key is not configured")
		return result
	}

	// The provider rejects lookbacks beyond its limit; clamp instead of
	// failing and tell the caller the window was narrowed.
	start := window.Start
	if window.Days() > maxNewsAPIWindowDays {
		start = window.End.AddDate(0, 0, -(maxNewsAPIWindowDays - 1))
		result.AddError(fmt.Sprintf("window of %d days exceeds the %d-day limit, clamped to %s..%s",
			window.Days(), maxNewsAPIWindowDays, start.Format("2006-01-02"), window.EndDate()))
	}

	if err := a.limiter.Wait(ctx); err != nil {
		result.AddError(fmt.Sprintf("rate limiter: %v", err))
		return result
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("from", start.Format("2006-01-02"))
	params.Set("to", window.EndDate())
	params.Set("language", "es")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", "100")

	reqURL := a.baseURL + "/everything?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to create request: %v", err))
		return result
	}
	req.Header.Set("X-Api-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		result.AddError(fmt.Sprintf("request failed: %v", err))
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		result.AddError(fmt.Sprintf("failed to read response: %v", err))
		return result
	}

	var payload newsAPIResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		result.AddError(fmt.Sprintf("failed to decode response: %v", err))
		return result
	}
	if payload.Status != "ok" {
		result.AddError(fmt.Sprintf("newsapi error %s: %s", payload.Code, payload.Message))
		return result
	}

	for _, article := range payload.Articles {
		text := article.Content
		if text == "" {
			text = article.Description
		}
		record := models.SourceRecord{
			Title:       article.Title,
			Text:        text,
			URL:         article.URL,
			PublishedAt: article.PublishedAt,
			Extra: map[string]interface{}{
				"outlet":      article.Source.Name,
				"description": article.Description,
			},
		}
		if t, ok := common.ParseFlexibleDate(article.PublishedAt); ok {
			record.PubDate = &t
		} else {
			record.DateParseError = true
		}
		result.Records = append(result.Records, record)
	}

	result.Summary.TotalResults = len(result.Records)
	a.logger.Debug().
		Str("query", query).
		Int("results", len(result.Records)).
		Msg("NewsAPI search completed")

	return result
}

var _ interfaces.SourceAdapter = (*NewsAPIAdapter)(nil)
