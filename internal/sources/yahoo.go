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
	// DefaultYahooBaseURL is the Yahoo Finance query endpoint.
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

	// fuzzyMatchThreshold is the minimum normalized name similarity for a
	// curated-table fuzzy match.
	fuzzyMatchThreshold = 0.8
)

// curatedTickers maps normalized Spanish company names to their Madrid
// exchange tickers. The table covers the IBEX constituents this pipeline is
// most often asked about.
var curatedTickers = map[string]string{
	"banco santander":      "SAN.MC",
	"santander":            "SAN.MC",
	"bbva":                 "BBVA.MC",
	"caixabank":            "CABK.MC",
	"banco sabadell":       "SAB.MC",
	"bankinter":            "BKT.MC",
	"telefonica":           "TEF.MC",
	"iberdrola":            "IBE.MC",
	"endesa":               "ELE.MC",
	"naturgy":              "NTGY.MC",
	"repsol":               "REP.MC",
	"inditex":              "ITX.MC",
	"industria de diseno textil": "ITX.MC",
	"ferrovial":            "FER.MC",
	"acs":                  "ACS.MC",
	"acciona":              "ANA.MC",
	"aena":                 "AENA.MC",
	"amadeus":              "AMS.MC",
	"cellnex":              "CLNX.MC",
	"grifols":              "GRF.MC",
	"mapfre":               "MAP.MC",
	"telefonica sa":        "TEF.MC",
	"indra":                "IDR.MC",
	"sacyr":                "SCYR.MC",
	"ohla":                 "OHLA.MC",
}

// YahooAdapter resolves a company name to a ticker and emits a single
// financial-indicator record computed from recent price history and revenue.
type YahooAdapter struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	llm        interfaces.LLMService
	logger     arbor.ILogger
}

// YahooOption configures the YahooAdapter.
type YahooOption func(*YahooAdapter)

// WithYahooHTTPClient sets a custom HTTP client.
func WithYahooHTTPClient(httpClient *http.Client) YahooOption {
	return func(a *YahooAdapter) {
		a.httpClient = httpClient
	}
}

// WithYahooLLMResolver enables the LLM step of the ticker resolution chain.
func WithYahooLLMResolver(llm interfaces.LLMService) YahooOption {
	return func(a *YahooAdapter) {
		a.llm = llm
	}
}

// WithYahooRateLimit sets a custom rate limit in requests per second.
func WithYahooRateLimit(requestsPerSecond int) YahooOption {
	return func(a *YahooAdapter) {
		a.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewYahooAdapter creates a Yahoo Finance adapter.
func NewYahooAdapter(baseURL string, logger arbor.ILogger, opts ...YahooOption) *YahooAdapter {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	a := &YahooAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
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
func (a *YahooAdapter) Source() models.Source {
	return models.SourceYahoo
}

// Search resolves the company to a ticker, fetches price and revenue data
// and emits one record carrying the computed risk indicators.
func (a *YahooAdapter) Search(ctx context.Context, query string, window common.DateWindow) *models.SourceResult {
	result := models.NewSourceResult(models.SourceYahoo, query)

	ticker, how, err := a.ResolveTicker(ctx, query)
	if err != nil {
		result.AddError(fmt.Sprintf("ticker resolution failed: %v", err))
		return result
	}

	priceChange, err := a.priceChange7d(ctx, ticker)
	if err != nil {
		result.AddError(fmt.Sprintf("price history for %s: %v", ticker, err))
		return result
	}

	revenueChange, revErr := a.revenueChangeYoY(ctx, ticker)
	if revErr != nil {
		// Revenue data is missing for many listings; degrade to the price
		// indicators alone.
		result.AddError(fmt.Sprintf("revenue for %s: %v", ticker, revErr))
	}

	indicators, riskLevel := FinancialIndicators(priceChange, revenueChange, revErr == nil)

	now := time.Now()
	extra := map[string]interface{}{
		"ticker":            ticker,
		"resolution_method": how,
		"price_change_7d":   priceChange,
		"indicators":        indicators,
		"risk_level":        riskLevel,
	}
	if revErr == nil {
		extra["revenue_change_yoy"] = revenueChange
	}

	result.Records = append(result.Records, models.SourceRecord{
		Title:       fmt.Sprintf("Indicadores financieros de %s (%s)", query, ticker),
		Text:        fmt.Sprintf("Variación de cotización 7 días: %.2f%%. Nivel de riesgo financiero: %s.", priceChange, riskLevel),
		URL:         fmt.Sprintf("https://finance.yahoo.com/quote/%s", ticker),
		PublishedAt: now.Format(time.RFC3339),
		PubDate:     &now,
		Extra:       extra,
	})
	result.Summary.TotalResults = 1

	a.logger.Debug().
		Str("query", query).
		Str("ticker", ticker).
		Str("risk_level", riskLevel).
		Msg("Yahoo Finance search completed")

	return result
}

// ResolveTicker runs the resolution chain: curated table, fuzzy match over
// the table, optional LLM resolve, live provider search. The second return
// names the step that succeeded.
func (a *YahooAdapter) ResolveTicker(ctx context.Context, company string) (string, string, error) {
	normalized := NormalizeCompanyName(company)
	if normalized == "" {
		return "", "", fmt.Errorf("empty company name")
	}

	if ticker, ok := curatedTickers[normalized]; ok {
		return ticker, "curated", nil
	}

	if ticker, score := fuzzyLookup(normalized); score >= fuzzyMatchThreshold {
		return ticker, "fuzzy", nil
	}

	if a.llm != nil {
		if ticker, err := a.llmResolve(ctx, company); err == nil && ticker != "" {
			return ticker, "llm", nil
		}
	}

	ticker, err := a.liveSearch(ctx, company)
	if err != nil {
		return "", "", err
	}
	return ticker, "live_search", nil
}

// llmResolve asks the LLM for the ticker symbol. Replies that do not look
// like a ticker are discarded.
func (a *YahooAdapter) llmResolve(ctx context.Context, company string) (string, error) {
	prompt := fmt.Sprintf("Give only the Yahoo Finance ticker symbol for the Spanish company %q (for example SAN.MC). Reply with the ticker alone, or NONE if unknown.", company)
	reply, err := a.llm.Generate(ctx, prompt, interfaces.GenerateOptions{MaxTokens: 16, Temperature: 0})
	if err != nil {
		return "", err
	}
	ticker := strings.ToUpper(strings.TrimSpace(reply))
	if ticker == "" || ticker == "NONE" || len(ticker) > 12 || strings.ContainsAny(ticker, " \n\t") {
		return "", fmt.Errorf("unusable LLM reply %q", reply)
	}
	return ticker, nil
}

type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

// liveSearch queries the provider's symbol search and takes the first equity.
func (a *YahooAdapter) liveSearch(ctx context.Context, company string) (string, error) {
	var payload yahooSearchResponse
	params := url.Values{}
	params.Set("q", company)
	params.Set("quotesCount", "5")
	if err := a.get(ctx, "/v1/finance/search", params, &payload); err != nil {
		return "", err
	}

	for _, quote := range payload.Quotes {
		if quote.QuoteType == "EQUITY" && quote.Symbol != "" {
			return quote.Symbol, nil
		}
	}
	return "", fmt.Errorf("no equity found for %q", company)
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// priceChange7d returns the percentage change over the last 7 days of daily
// closes.
func (a *YahooAdapter) priceChange7d(ctx context.Context, ticker string) (float64, error) {
	var payload yahooChartResponse
	params := url.Values{}
	params.Set("range", "7d")
	params.Set("interval", "1d")
	if err := a.get(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), params, &payload); err != nil {
		return 0, err
	}
	if payload.Chart.Error != nil {
		return 0, fmt.Errorf("chart error: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return 0, fmt.Errorf("empty chart response")
	}

	var closes []float64
	for _, c := range payload.Chart.Result[0].Indicators.Quote[0].Close {
		if c != nil {
			closes = append(closes, *c)
		}
	}
	if len(closes) < 2 {
		return 0, fmt.Errorf("not enough price points")
	}

	first, last := closes[0], closes[len(closes)-1]
	if first == 0 {
		return 0, fmt.Errorf("zero opening price")
	}
	return (last - first) / first * 100, nil
}

type yahooSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			IncomeStatementHistory struct {
				Statements []struct {
					TotalRevenue struct {
						Raw float64 `json:"raw"`
					} `json:"totalRevenue"`
				} `json:"incomeStatementHistory"`
			} `json:"incomeStatementHistory"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// revenueChangeYoY returns the year-over-year percentage change of total
// revenue from the two most recent annual statements.
func (a *YahooAdapter) revenueChangeYoY(ctx context.Context, ticker string) (float64, error) {
	var payload yahooSummaryResponse
	params := url.Values{}
	params.Set("modules", "incomeStatementHistory")
	if err := a.get(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(ticker), params, &payload); err != nil {
		return 0, err
	}
	if len(payload.QuoteSummary.Result) == 0 {
		return 0, fmt.Errorf("empty summary response")
	}

	statements := payload.QuoteSummary.Result[0].IncomeStatementHistory.Statements
	if len(statements) < 2 {
		return 0, fmt.Errorf("not enough income statements")
	}

	latest := statements[0].TotalRevenue.Raw
	previous := statements[1].TotalRevenue.Raw
	if previous == 0 {
		return 0, fmt.Errorf("zero prior-year revenue")
	}
	return (latest - previous) / previous * 100, nil
}

// get performs a rate-limited GET against the provider.
func (a *YahooAdapter) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := a.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "vigia/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// FinancialIndicators derives the indicator list and composite risk level
// from the price and revenue changes. Severity sums: each high indicator
// counts 2, each normal one counts 1; a sum of 3 or more is High, 1 or 2 is
// Medium, 0 is Low.
func FinancialIndicators(priceChange7d, revenueChangeYoY float64, hasRevenue bool) ([]string, string) {
	var indicators []string
	severity := 0

	if priceChange7d < -10 {
		indicators = append(indicators, "share_price_drop_high")
		severity += 2
	} else if priceChange7d < -5 {
		indicators = append(indicators, "share_price_drop")
		severity++
	}

	if hasRevenue {
		if revenueChangeYoY < -20 {
			indicators = append(indicators, "revenue_decline_high")
			severity += 2
		} else if revenueChangeYoY < -10 {
			indicators = append(indicators, "revenue_decline")
			severity++
		}
	}

	switch {
	case severity >= 3:
		return indicators, "High"
	case severity >= 1:
		return indicators, "Medium"
	default:
		return indicators, "Low"
	}
}

var _ interfaces.SourceAdapter = (*YahooAdapter)(nil)
