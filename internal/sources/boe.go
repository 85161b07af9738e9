package sources

import (
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
	"golang.org/x/time/rate"
)

const (
	// DefaultBOEBaseURL is the open-data API of the Spanish state gazette.
	DefaultBOEBaseURL = "https://www.boe.es"

	boeSummaryPath = "/datosabiertos/api/boe/sumario/"
)

// BOEAdapter searches the daily summaries of the Boletín Oficial del Estado.
// The API is keyed by publication day, so a window search fans out into one
// request per day. Missing days (weekends, holidays) respond 404 and are
// skipped silently.
type BOEAdapter struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// BOEOption configures the BOEAdapter.
type BOEOption func(*BOEAdapter)

// WithBOEHTTPClient sets a custom HTTP client.
func WithBOEHTTPClient(httpClient *http.Client) BOEOption {
	return func(a *BOEAdapter) {
		a.httpClient = httpClient
	}
}

// WithBOERateLimit sets a custom rate limit in requests per second.
func WithBOERateLimit(requestsPerSecond int) BOEOption {
	return func(a *BOEAdapter) {
		a.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewBOEAdapter creates a BOE gazette adapter.
func NewBOEAdapter(baseURL string, logger arbor.ILogger, opts ...BOEOption) *BOEAdapter {
	if baseURL == "" {
		baseURL = DefaultBOEBaseURL
	}
	a := &BOEAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source returns the adapter identity tag.
func (a *BOEAdapter) Source() models.Source {
	return models.SourceBOE
}

// boeSummary mirrors the nested shape of the BOE open-data summary response.
type boeSummary struct {
	Data struct {
		Sumario struct {
			Diario []struct {
				Seccion []boeSection `json:"seccion"`
			} `json:"diario"`
		} `json:"sumario"`
	} `json:"data"`
}

type boeSection struct {
	Codigo       string `json:"codigo"`
	Nombre       string `json:"nombre"`
	Departamento []struct {
		Nombre   string `json:"nombre"`
		Epigrafe []struct {
			Nombre string    `json:"nombre"`
			Item   []boeItem `json:"item"`
		} `json:"epigrafe"`
		Item []boeItem `json:"item"`
	} `json:"departamento"`
}

type boeItem struct {
	Identificador string `json:"identificador"`
	Titulo        string `json:"titulo"`
	URLHTML       string `json:"url_html"`
	URLPDF        struct {
		Texto string `json:"texto"`
	} `json:"url_pdf"`
}

// Search fans the window out into one summary fetch per day and keeps the
// items whose title matches any whitespace-split term of the query.
func (a *BOEAdapter) Search(ctx context.Context, query string, window common.DateWindow) *models.SourceResult {
	result := models.NewSourceResult(models.SourceBOE, query)
	terms := queryTerms(query)

	for day := window.Start; !day.After(window.End); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			result.AddError(fmt.Sprintf("search cancelled: %v", ctx.Err()))
			return result
		default:
		}

		records, err := a.fetchDay(ctx, day, terms)
		if err != nil {
			result.AddError(fmt.Sprintf("day %s: %v", day.Format("2006-01-02"), err))
			continue
		}
		result.Records = append(result.Records, records...)
	}

	result.Summary.TotalResults = len(result.Records)
	a.logger.Debug().
		Str("query", query).
		Int("days", window.Days()).
		Int("results", len(result.Records)).
		Int("errors", len(result.Summary.Errors)).
		Msg("BOE search completed")

	return result
}

// fetchDay retrieves one daily summary. A 404 means no gazette was published
// that day and yields an empty slice with no error.
func (a *BOEAdapter) fetchDay(ctx context.Context, day time.Time, terms []string) ([]models.SourceRecord, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := a.baseURL + boeSummaryPath + day.Format("20060102")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var summary boeSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}

	published := day.Format("2006-01-02")
	var records []models.SourceRecord
	for _, diario := range summary.Data.Sumario.Diario {
		for _, seccion := range diario.Seccion {
			for _, dept := range seccion.Departamento {
				items := dept.Item
				for _, epigrafe := range dept.Epigrafe {
					items = append(items, epigrafe.Item...)
				}
				for _, item := range items {
					if !matchesAnyTerm(item.Titulo, terms) {
						continue
					}
					pubDate := day
					records = append(records, models.SourceRecord{
						Title:       item.Titulo,
						Text:        item.Titulo,
						URL:         item.URLHTML,
						PublishedAt: published,
						PubDate:     &pubDate,
						Section:     seccion.Codigo,
						Extra: map[string]interface{}{
							"identificador":    item.Identificador,
							"titulo":           item.Titulo,
							"fechaPublicacion": published,
							"url_html":         item.URLHTML,
							"seccion_codigo":   seccion.Codigo,
							"seccion_nombre":   seccion.Nombre,
							"departamento":     dept.Nombre,
						},
					})
				}
			}
		}
	}

	return records, nil
}

var _ interfaces.SourceAdapter = (*BOEAdapter)(nil)
