package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

type fakeOrchestrator struct {
	results     map[models.Source]*models.SourceResult
	lastSources []models.Source
	calls       int
}

func (f *fakeOrchestrator) SearchAll(ctx context.Context, query string, window common.DateWindow, activeSources []models.Source) map[models.Source]*models.SourceResult {
	f.calls++
	f.lastSources = activeSources
	return f.results
}

func (f *fakeOrchestrator) Sources() []models.Source {
	return []models.Source{models.SourceBOE, models.SourceNewsAPI, models.RSSSource("elpais"), models.SourceYahoo}
}

// labelClassifier assigns a fixed label, and optionally method, per title.
type labelClassifier struct {
	labels  map[string]models.RiskLabel
	methods map[string]models.ClassificationMethod
}

func (c *labelClassifier) classify(input interfaces.ClassifyInput) models.Classification {
	label, ok := c.labels[input.Title]
	if !ok {
		label = models.RiskNoLegal
	}
	method, ok := c.methods[input.Title]
	if !ok {
		method = models.MethodKeywordSection
	}
	return models.Classification{
		Label:      label,
		Confidence: 0.9,
		Method:     method,
	}
}

func (c *labelClassifier) ClassifyDocument(ctx context.Context, input interfaces.ClassifyInput) models.Classification {
	return c.classify(input)
}

func (c *labelClassifier) ClassifyDocumentsBatch(ctx context.Context, inputs []interfaces.ClassifyInput) []models.Classification {
	out := make([]models.Classification, len(inputs))
	for i, input := range inputs {
		out[i] = c.classify(input)
	}
	return out
}

func (c *labelClassifier) Stats() interfaces.ClassifierStats { return interfaces.ClassifierStats{} }

type fakeCache struct {
	hit     *interfaces.CachedSearch
	setKeys []string
	getKeys []string
}

func (f *fakeCache) Get(ctx context.Context, key, company string) (*interfaces.CachedSearch, bool) {
	f.getKeys = append(f.getKeys, key)
	if f.hit == nil {
		return nil, false
	}
	return f.hit, true
}

func (f *fakeCache) Set(ctx context.Context, key string, envelope *models.SearchEnvelope) {
	f.setKeys = append(f.setKeys, key)
}

func (f *fakeCache) Invalidate(ctx context.Context, key string) {}

type fakeQueue struct {
	requests []*models.WriteRequest
}

func (f *fakeQueue) Enqueue(req *models.WriteRequest) error {
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeQueue) Status() models.QueueStatus { return models.QueueStatus{} }

func (f *fakeQueue) Flush(ctx context.Context) int { return 0 }

func (f *fakeQueue) Stop() {}

func (f *fakeQueue) byTable(table string) *models.WriteRequest {
	for _, req := range f.requests {
		if req.Table == table {
			return req
		}
	}
	return nil
}

func record(title, text, published string, pubDate *time.Time) models.SourceRecord {
	return models.SourceRecord{
		Title:       title,
		Text:        text,
		URL:         "https://example.com/" + title,
		PublishedAt: published,
		PubDate:     pubDate,
	}
}

func sourceResult(source models.Source, records ...models.SourceRecord) *models.SourceResult {
	result := models.NewSourceResult(source, "Acme")
	result.Records = records
	result.Summary.TotalResults = len(records)
	return result
}

func newTestService(orch *fakeOrchestrator, cache *fakeCache, queue *fakeQueue, labels map[string]models.RiskLabel) *Service {
	return NewService(
		orch,
		&labelClassifier{labels: labels},
		cache,
		queue,
		nil,
		nil,
		&common.PipelineConfig{EnableEmbedding: false},
		7,
		arbor.NewLogger(),
	)
}

func TestSearch_LiveEndToEnd(t *testing.T) {
	older := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{
		models.SourceBOE: sourceResult(models.SourceBOE,
			record("Auto de procesamiento", "El juzgado dicta auto de procesamiento.", "2026-03-10", &older),
		),
		models.SourceNewsAPI: sourceResult(models.SourceNewsAPI,
			record("Nombramiento", "La junta aprueba un nombramiento.", "2026-03-14", &newer),
		),
	}}
	cache := &fakeCache{}
	queue := &fakeQueue{}
	svc := newTestService(orch, cache, queue, map[string]models.RiskLabel{
		"Auto de procesamiento": models.RiskHighLegal,
		"Nombramiento":          models.RiskLowOperational,
	})

	envelope, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	require.Len(t, envelope.Results, 2)
	// Sorted by publication date descending.
	assert.Equal(t, "Nombramiento", envelope.Results[0].Title)
	assert.Equal(t, "Auto de procesamiento", envelope.Results[1].Title)

	assert.Equal(t, models.ColorRed, envelope.OverallRisk)
	assert.Equal(t, 1, envelope.RiskSummary[string(models.RiskHighLegal)])
	assert.Equal(t, 1, envelope.RiskSummary[string(models.RiskLowOperational)])
	assert.Equal(t, "live", envelope.CacheInfo.SearchMethod)
	assert.Contains(t, envelope.Metadata, "BOE")
	assert.Contains(t, envelope.Metadata, "NEWSAPI")

	// Raw documents at low priority, events at normal.
	rawReq := queue.byTable("raw_docs")
	require.NotNil(t, rawReq)
	assert.Equal(t, models.PriorityLow, rawReq.Priority)
	assert.Equal(t, models.OpUpsert, rawReq.Operation)
	assert.Len(t, rawReq.Rows, 2)

	eventReq := queue.byTable("events")
	require.NotNil(t, eventReq)
	assert.Equal(t, models.PriorityNormal, eventReq.Priority)
	assert.Len(t, eventReq.Rows, 2)
	assert.Equal(t, "Acme", eventReq.Rows[0]["company_name"])

	companyReq := queue.byTable("companies")
	require.NotNil(t, companyReq)
	assert.Equal(t, "acme", companyReq.Rows[0]["name"])
	assert.Equal(t, string(models.ColorRed), companyReq.Rows[0]["last_risk"])

	// The live result was written back to the cache.
	assert.Len(t, cache.setKeys, 1)
	assert.Equal(t, 2, envelope.DatabaseStats.RawDocsQueued)
	assert.Equal(t, 2, envelope.DatabaseStats.EventsQueued)
}

func TestSearch_PersistsSearchCacheRow(t *testing.T) {
	pub := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{
		models.SourceNewsAPI: sourceResult(models.SourceNewsAPI,
			record("Multa CNMV", "La CNMV impone una multa.", "2026-03-12", &pub),
		),
	}}
	cache := &fakeCache{}
	queue := &fakeQueue{}
	svc := newTestService(orch, cache, queue, nil)

	_, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	req := queue.byTable("search_cache")
	require.NotNil(t, req)
	assert.Equal(t, models.PriorityLow, req.Priority)
	require.Len(t, req.Rows, 1)

	row := req.Rows[0]
	require.Len(t, cache.setKeys, 1)
	assert.Equal(t, cache.setKeys[0], row["cache_key"])
	assert.Equal(t, "Acme", row["company_name"])
	assert.NotEmpty(t, row["envelope"])
}

func TestSearch_QueuesFinancialMetrics(t *testing.T) {
	pub := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	yahooRecord := record("Indicadores financieros de Acme (ACM.MC)",
		"Variación de cotización 7 días: -12.40%.", "2026-03-12", &pub)
	yahooRecord.Extra = map[string]interface{}{
		"ticker":             "ACM.MC",
		"resolution_method":  "curated",
		"price_change_7d":    -12.4,
		"revenue_change_yoy": -8.1,
		"indicators":         []string{"price_drop_7d_gt_10pct"},
		"risk_level":         "high",
	}

	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{
		models.SourceYahoo: sourceResult(models.SourceYahoo, yahooRecord),
	}}
	queue := &fakeQueue{}
	svc := newTestService(orch, &fakeCache{}, queue, nil)

	_, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	req := queue.byTable("financial_metrics")
	require.NotNil(t, req)
	require.Len(t, req.Rows, 1)

	row := req.Rows[0]
	assert.NotEmpty(t, row["metric_id"])
	assert.Equal(t, "Acme", row["company_name"])
	assert.Equal(t, "ACM.MC", row["ticker"])
	assert.Equal(t, -12.4, row["price_change_7d"])
	assert.Equal(t, -8.1, row["revenue_change_yoy"])
	assert.Equal(t, "high", row["risk_level"])
}

func TestSearch_ClassifierErrorFallbackMarksRawDocError(t *testing.T) {
	pub := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{
		models.SourceNewsAPI: sourceResult(models.SourceNewsAPI,
			record("Revisión en curso", "El expediente sigue abierto.", "2026-03-12", &pub),
			record("Nombramiento", "La junta aprueba un nombramiento.", "2026-03-12", &pub),
		),
	}}
	queue := &fakeQueue{}
	svc := NewService(
		orch,
		&labelClassifier{methods: map[string]models.ClassificationMethod{
			"Revisión en curso": models.MethodErrorFallback,
		}},
		&fakeCache{},
		queue,
		nil,
		nil,
		&common.PipelineConfig{EnableEmbedding: false},
		7,
		arbor.NewLogger(),
	)

	_, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	rawReq := queue.byTable("raw_docs")
	require.NotNil(t, rawReq)
	require.Len(t, rawReq.Rows, 2)

	statuses := map[string]int{}
	for _, row := range rawReq.Rows {
		statuses[row["status"].(string)]++
	}
	assert.Equal(t, 1, statuses[string(models.RawDocError)])
	assert.Equal(t, 1, statuses[string(models.RawDocParsed)])
}

func TestSearch_DeduplicatesIdenticalRecords(t *testing.T) {
	pub := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	dup := record("Multa CNMV", "La CNMV impone una multa.", "2026-03-12", &pub)

	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{
		models.SourceNewsAPI: sourceResult(models.SourceNewsAPI, dup, dup),
	}}
	queue := &fakeQueue{}
	svc := newTestService(orch, &fakeCache{}, queue, nil)

	envelope, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	assert.Len(t, envelope.Results, 1)
	assert.Equal(t, 1, envelope.DatabaseStats.Deduplicated)
	assert.Len(t, queue.byTable("events").Rows, 1)
}

func TestSearch_CacheHitSkipsSources(t *testing.T) {
	cached := &interfaces.CachedSearch{
		Envelope: &models.SearchEnvelope{
			CompanyName: "Acme",
			OverallRisk: models.ColorOrange,
		},
		CachedAt: "2026-03-14T10:00:00Z",
		Tier:     "l2_redis",
	}
	orch := &fakeOrchestrator{}
	cache := &fakeCache{hit: cached}
	svc := newTestService(orch, cache, &fakeQueue{}, nil)

	envelope, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, 0, orch.calls)
	assert.Equal(t, "cached", envelope.CacheInfo.SearchMethod)
	assert.Equal(t, "l2_redis", envelope.CacheInfo.CacheTier)
	assert.Equal(t, "2026-03-14T10:00:00Z", envelope.CacheInfo.CachedAt)
}

func TestSearch_ForceRefreshBypassesCache(t *testing.T) {
	cached := &interfaces.CachedSearch{Envelope: &models.SearchEnvelope{CompanyName: "Acme"}}
	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{}}
	cache := &fakeCache{hit: cached}
	svc := newTestService(orch, cache, &fakeQueue{}, nil)

	envelope, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme", ForceRefresh: true})
	require.NoError(t, err)

	assert.Empty(t, cache.getKeys)
	assert.Equal(t, 1, orch.calls)
	assert.Equal(t, "live", envelope.CacheInfo.SearchMethod)
}

func TestSearch_IncludeFlagsSelectSources(t *testing.T) {
	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{}}
	svc := newTestService(orch, &fakeCache{}, &fakeQueue{}, nil)

	off := false
	_, err := svc.Search(context.Background(), &SearchRequest{
		CompanyName:  "Acme",
		IncludeRSS:   &off,
		IncludeYahoo: &off,
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []models.Source{models.SourceBOE, models.SourceNewsAPI}, orch.lastSources)
}

func TestSearch_InvalidWindow(t *testing.T) {
	svc := newTestService(&fakeOrchestrator{}, &fakeCache{}, &fakeQueue{}, nil)

	_, err := svc.Search(context.Background(), &SearchRequest{
		CompanyName: "Acme",
		StartDate:   "2026-03-15",
		EndDate:     "2026-03-01",
	})
	require.Error(t, err)
}

func TestSearch_NilPubDatesSortLast(t *testing.T) {
	pub := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{
		models.SourceNewsAPI: sourceResult(models.SourceNewsAPI,
			record("sin fecha", "Texto uno.", "mañana", nil),
			record("con fecha", "Texto dos.", "2026-03-12", &pub),
		),
	}}
	svc := newTestService(orch, &fakeCache{}, &fakeQueue{}, nil)

	envelope, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	require.Len(t, envelope.Results, 2)
	assert.Equal(t, "con fecha", envelope.Results[0].Title)
	assert.Equal(t, "sin fecha", envelope.Results[1].Title)
}

// stubVectorStore and countingEmbedder drive the embedding cap test.
type stubVectorStore struct {
	added []string
}

func (s *stubVectorStore) Add(ctx context.Context, record *models.VectorRecord) error {
	s.added = append(s.added, record.EventID)
	return nil
}

func (s *stubVectorStore) Search(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error) {
	return nil, nil
}

func (s *stubVectorStore) Migrate(ctx context.Context) (*models.MigrateResult, error) {
	return nil, nil
}

func (s *stubVectorStore) Backends() []string { return []string{"warehouse"} }

type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{1, 0}, nil
}

func (e *countingEmbedder) Dimension() int { return 2 }

func (e *countingEmbedder) ModelName() string { return "gemini-embedding-001" }

func (e *countingEmbedder) IsAvailable(ctx context.Context) bool { return true }

func TestSearch_EmbedsRiskRelevantEventsUpToCap(t *testing.T) {
	pub := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	orch := &fakeOrchestrator{results: map[models.Source]*models.SourceResult{
		models.SourceBOE: sourceResult(models.SourceBOE,
			record("alto-1", "Primer auto judicial.", "2026-03-12", &pub),
			record("alto-2", "Segundo auto judicial.", "2026-03-12", &pub),
			record("ruido", "Noticia deportiva.", "2026-03-12", &pub),
		),
	}}
	embedder := &countingEmbedder{}
	store := &stubVectorStore{}
	svc := NewService(
		orch,
		&labelClassifier{labels: map[string]models.RiskLabel{
			"alto-1": models.RiskHighLegal,
			"alto-2": models.RiskHighFinancial,
		}},
		&fakeCache{},
		&fakeQueue{},
		embedder,
		store,
		&common.PipelineConfig{EnableEmbedding: true, MaxDocumentsToEmbed: 1},
		7,
		arbor.NewLogger(),
	)

	envelope, err := svc.Search(context.Background(), &SearchRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	// One embed allowed by the cap, No-Legal noise never considered.
	assert.Equal(t, 1, envelope.DatabaseStats.Embedded)
	assert.Equal(t, 1, embedder.calls)
	assert.Len(t, store.added, 1)
}
