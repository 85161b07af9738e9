package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// asciiDeclRe matches an XML declaration claiming us-ascii encoding. Several
// of the newspaper feeds declare us-ascii while actually serving UTF-8
// bytes, which makes encoding/xml reject the document.
var asciiDeclRe = regexp.MustCompile(`(?i)encoding=["']us-ascii["']`)

// RSSAdapter fetches one newspaper feed and filters its entries against the
// query. Each outlet gets its own adapter instance with its own source tag.
type RSSAdapter struct {
	outlet     string
	feedURL    string
	httpClient *http.Client
	converter  *md.Converter
	logger     arbor.ILogger
	now        func() time.Time
}

// RSSOption configures the RSSAdapter.
type RSSOption func(*RSSAdapter)

// WithRSSHTTPClient sets a custom HTTP client.
func WithRSSHTTPClient(httpClient *http.Client) RSSOption {
	return func(a *RSSAdapter) {
		a.httpClient = httpClient
	}
}

// WithRSSClock overrides the clock used for unparseable entry dates.
func WithRSSClock(now func() time.Time) RSSOption {
	return func(a *RSSAdapter) {
		a.now = now
	}
}

// NewRSSAdapter creates an adapter for one newspaper feed.
func NewRSSAdapter(outlet, feedURL string, logger arbor.ILogger, opts ...RSSOption) *RSSAdapter {
	a := &RSSAdapter{
		outlet:     outlet,
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		converter:  md.NewConverter("", true, nil),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source returns the adapter identity tag, e.g. RSS_ELPAIS.
func (a *RSSAdapter) Source() models.Source {
	return models.RSSSource(a.outlet)
}

type rssFeed struct {
	Channel struct {
		Item []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Search fetches the feed and keeps the entries whose title or description
// contains any whitespace-split term of the query. Entries whose date cannot
// be parsed fall back to "now" and are flagged.
func (a *RSSAdapter) Search(ctx context.Context, query string, window common.DateWindow) *models.SourceResult {
	source := a.Source()
	result := models.NewSourceResult(source, query)
	terms := queryTerms(query)

	body, err := a.fetchFeed(ctx)
	if err != nil {
		result.AddError(err.Error())
		return result
	}

	body = FixEncodingDeclaration(body)

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		result.AddError(fmt.Sprintf("failed to parse feed: %v", err))
		return result
	}

	for _, item := range feed.Channel.Item {
		if !matchesAnyTerm(item.Title, terms) && !matchesAnyTerm(item.Description, terms) {
			continue
		}

		record := models.SourceRecord{
			Title:       strings.TrimSpace(item.Title),
			Text:        a.cleanHTML(item.Description),
			URL:         strings.TrimSpace(item.Link),
			PublishedAt: item.PubDate,
			Extra:       map[string]interface{}{"outlet": a.outlet},
		}

		if t, ok := common.ParseFlexibleDate(strings.TrimSpace(item.PubDate)); ok {
			record.PubDate = &t
			// The feeds only carry recent entries; drop the ones that
			// clearly predate the window.
			if t.Before(window.Start.AddDate(0, 0, -1)) {
				continue
			}
		} else {
			now := a.now()
			record.PubDate = &now
			record.DateParseError = true
		}

		result.Records = append(result.Records, record)
	}

	result.Summary.TotalResults = len(result.Records)
	a.logger.Debug().
		Str("outlet", a.outlet).
		Str("query", query).
		Int("results", len(result.Records)).
		Msg("RSS search completed")

	return result
}

// fetchFeed downloads the raw feed bytes.
func (a *RSSAdapter) fetchFeed(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "vigia/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	return body, nil
}

// cleanHTML strips markup from a feed description. goquery extracts the text
// when the description is an HTML fragment; the markdown converter handles
// fragments goquery cannot parse into a document.
func (a *RSSAdapter) cleanHTML(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || !strings.Contains(fragment, "<") {
		return fragment
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err == nil {
		if text := strings.TrimSpace(doc.Text()); text != "" {
			return text
		}
	}

	if markdown, err := a.converter.ConvertString(fragment); err == nil {
		return strings.TrimSpace(markdown)
	}
	return fragment
}

// FixEncodingDeclaration rewrites a lying us-ascii XML declaration to utf-8
// so encoding/xml accepts the UTF-8 bytes the feeds actually serve.
func FixEncodingDeclaration(body []byte) []byte {
	head := body
	if len(head) > 256 {
		head = head[:256]
	}
	if !asciiDeclRe.Match(head) {
		return body
	}
	fixed := asciiDeclRe.ReplaceAll(head, []byte(`encoding="utf-8"`))
	return append(fixed, body[len(head):]...)
}

var _ interfaces.SourceAdapter = (*RSSAdapter)(nil)
