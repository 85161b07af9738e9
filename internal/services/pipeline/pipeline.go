package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// SearchRequest is the resolved input for one company risk search.
type SearchRequest struct {
	CompanyName   string `json:"company_name" validate:"required,min=2"`
	StartDate     string `json:"start_date,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
	DaysBack      int    `json:"days_back,omitempty"`
	IncludeBOE    *bool  `json:"include_boe,omitempty"`
	IncludeNews   *bool  `json:"include_news,omitempty"`
	IncludeRSS    *bool  `json:"include_rss,omitempty"`
	IncludeYahoo  *bool  `json:"include_yahoo,omitempty"`
	ForceRefresh  bool   `json:"force_refresh,omitempty"`
	CacheAgeHours int    `json:"cache_age_hours,omitempty"`
}

// pendingDoc pairs a raw document with the event extracted from it while a
// search is being processed.
type pendingDoc struct {
	raw   *models.RawDoc
	event *models.Event
}

// Service runs the end-to-end ingest: cache check, source fan-out,
// classification, persistence through the write queue, optional embedding,
// envelope assembly.
type Service struct {
	orchestrator interfaces.Orchestrator
	classifier   interfaces.HybridClassifier
	cache        interfaces.SearchCache
	queue        interfaces.WriteQueue
	embedder     interfaces.EmbeddingService // may be nil
	vectors      interfaces.VectorStore      // may be nil
	config       *common.PipelineConfig
	defaultDays  int
	logger       arbor.ILogger
}

// NewService wires the pipeline.
func NewService(
	orchestrator interfaces.Orchestrator,
	classifier interfaces.HybridClassifier,
	cache interfaces.SearchCache,
	queue interfaces.WriteQueue,
	embedder interfaces.EmbeddingService,
	vectors interfaces.VectorStore,
	config *common.PipelineConfig,
	defaultDays int,
	logger arbor.ILogger,
) *Service {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &Service{
		orchestrator: orchestrator,
		classifier:   classifier,
		cache:        cache,
		queue:        queue,
		embedder:     embedder,
		vectors:      vectors,
		config:       config,
		defaultDays:  defaultDays,
		logger:       logger,
	}
}

// activeSources resolves the include flags into source tags. A nil flag
// means enabled.
func (s *Service) activeSources(req *SearchRequest) []models.Source {
	enabled := func(flag *bool) bool { return flag == nil || *flag }

	var sources []models.Source
	for _, source := range s.orchestrator.Sources() {
		switch {
		case source == models.SourceBOE:
			if enabled(req.IncludeBOE) {
				sources = append(sources, source)
			}
		case source == models.SourceNewsAPI:
			if enabled(req.IncludeNews) {
				sources = append(sources, source)
			}
		case source.IsRSS():
			if enabled(req.IncludeRSS) {
				sources = append(sources, source)
			}
		case source == models.SourceYahoo:
			if enabled(req.IncludeYahoo) {
				sources = append(sources, source)
			}
		}
	}
	return sources
}

// Search runs one company risk search end to end.
func (s *Service) Search(ctx context.Context, req *SearchRequest) (*models.SearchEnvelope, error) {
	start := time.Now()

	window, err := common.ResolveWindow(req.StartDate, req.EndDate, req.DaysBack, s.defaultDays, time.Now())
	if err != nil {
		return nil, err
	}

	sources := s.activeSources(req)
	sourceNames := make([]string, len(sources))
	for i, source := range sources {
		sourceNames[i] = string(source)
	}

	cacheKey := common.SearchCacheKey(req.CompanyName, window.StartDate(), window.EndDate(), req.DaysBack, sourceNames)

	if !req.ForceRefresh {
		if cached, ok := s.cache.Get(ctx, cacheKey, req.CompanyName); ok {
			envelope := cached.Envelope
			envelope.CacheInfo = models.CacheInfo{
				SearchMethod: string(models.MethodCached),
				CacheTier:    cached.Tier,
				CachedAt:     cached.CachedAt,
			}
			envelope.Performance.TotalTimeSeconds = time.Since(start).Seconds()
			s.logger.Info().
				Str("company", req.CompanyName).
				Str("tier", cached.Tier).
				Msg("Search served from cache")
			return envelope, nil
		}
	}

	sourceStart := time.Now()
	results := s.orchestrator.SearchAll(ctx, req.CompanyName, window, sources)
	sourceTime := time.Since(sourceStart)

	envelope, err := s.processResults(ctx, req.CompanyName, window, results)
	if err != nil {
		return nil, err
	}

	envelope.Performance.TotalTimeSeconds = time.Since(start).Seconds()
	envelope.Performance.SourceTimeSeconds = sourceTime.Seconds()
	envelope.CacheInfo = models.CacheInfo{SearchMethod: "live"}

	s.cache.Set(ctx, cacheKey, envelope)
	s.enqueueSearchCache(cacheKey, req.CompanyName, envelope)
	s.enqueueCompany(req.CompanyName, envelope)

	return envelope, nil
}

// processResults converts raw source results into classified events, queues
// the persistence writes and builds the envelope.
func (s *Service) processResults(ctx context.Context, company string, window common.DateWindow, results map[models.Source]*models.SourceResult) (*models.SearchEnvelope, error) {
	var (
		docs     []pendingDoc
		inputs   []interfaces.ClassifyInput
		finRows  []map[string]interface{}
		seen     = map[string]bool{}
		metadata = map[string]*models.SourceSummary{}
		dedup    int
		now      = time.Now()
	)

	for source, result := range results {
		summary := result.Summary
		metadata[string(source)] = &summary

		for i := range result.Records {
			record := &result.Records[i]

			payload, err := common.CanonicalJSON(record)
			if err != nil {
				s.logger.Warn().Err(err).Str("source", string(source)).Msg("Failed to canonicalize record, skipping")
				continue
			}
			rawID := common.Fingerprint(payload)
			if seen[rawID] {
				dedup++
				continue
			}
			seen[rawID] = true

			raw := &models.RawDoc{
				RawID:     rawID,
				Source:    source,
				Payload:   payload,
				Meta:      map[string]string{"company": company, "url": record.URL},
				FetchedAt: now,
			}

			if source == models.SourceYahoo && record.Extra != nil {
				finRows = append(finRows, financialMetricsRow(company, rawID, now, record.Extra))
			}

			event := &models.Event{
				EventID:        models.NewEventID(source, rawID),
				Title:          record.Title,
				Text:           record.Text,
				Section:        record.Section,
				URL:            record.URL,
				PubDate:        record.PubDate,
				DateParseError: record.DateParseError,
				Source:         source,
			}

			docs = append(docs, pendingDoc{raw: raw, event: event})
			inputs = append(inputs, interfaces.ClassifyInput{
				Text:    record.Text,
				Title:   record.Title,
				Source:  source,
				Section: record.Section,
			})
		}
	}

	classifyStart := time.Now()
	classifications := s.classifier.ClassifyDocumentsBatch(ctx, inputs)
	classifyTime := time.Since(classifyStart)

	classifierTS := time.Now()
	for i, doc := range docs {
		doc.event.ApplyClassification(classifications[i], classifierTS)
		if classifications[i].Method == models.MethodErrorFallback {
			doc.raw.MarkError()
		} else {
			doc.raw.MarkParsed()
		}
	}

	stats := s.persist(company, docs)
	stats.Deduplicated = dedup
	s.enqueueFinancialMetrics(company, finRows)
	stats.Embedded = s.embedDocuments(ctx, company, docs)

	envelope := s.buildEnvelope(company, window, docs, metadata)
	envelope.DatabaseStats = stats
	envelope.Performance.ClassifyTimeMs = classifyTime.Milliseconds()
	return envelope, nil
}

// persist enqueues the raw documents and events. Writes survive request
// cancellation because the queue owns them from here.
func (s *Service) persist(company string, docs []pendingDoc) models.DatabaseStats {
	stats := models.DatabaseStats{}
	if len(docs) == 0 {
		return stats
	}

	rawRows := make([]map[string]interface{}, 0, len(docs))
	eventRows := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		rawRows = append(rawRows, map[string]interface{}{
			"raw_id":     doc.raw.RawID,
			"source":     string(doc.raw.Source),
			"payload":    json.RawMessage(doc.raw.Payload),
			"meta":       doc.raw.Meta,
			"fetched_at": doc.raw.FetchedAt,
			"retries":    doc.raw.Retries,
			"status":     string(doc.raw.Status),
		})

		e := doc.event
		confidence := 0.0
		if e.Confidence != nil {
			confidence = *e.Confidence
		}
		eventRows = append(eventRows, map[string]interface{}{
			"event_id":              e.EventID,
			"company_name":          company,
			"title":                 e.Title,
			"text":                  e.Text,
			"section":               e.Section,
			"url":                   e.URL,
			"pub_date":              e.PubDate,
			"date_parse_error":      e.DateParseError,
			"source":                string(e.Source),
			"risk_label":            string(e.RiskLabel),
			"confidence":            confidence,
			"rationale":             e.Rationale,
			"classification_method": string(e.ClassificationMethod),
			"classifier_ts":         e.ClassifierTS,
			"alerted":               e.Alerted,
		})
	}

	if err := s.queue.Enqueue(&models.WriteRequest{
		Table:     "raw_docs",
		Rows:      rawRows,
		Operation: models.OpUpsert,
		Priority:  models.PriorityLow,
	}); err != nil {
		s.logger.Warn().Err(err).Int("rows", len(rawRows)).Msg("Failed to enqueue raw documents")
	} else {
		stats.RawDocsQueued = len(rawRows)
	}

	if err := s.queue.Enqueue(&models.WriteRequest{
		Table:     "events",
		Rows:      eventRows,
		Operation: models.OpUpsert,
		Priority:  models.PriorityNormal,
	}); err != nil {
		s.logger.Warn().Err(err).Int("rows", len(eventRows)).Msg("Failed to enqueue events")
	} else {
		stats.EventsQueued = len(eventRows)
	}

	return stats
}

// enqueueSearchCache persists the live envelope under its cache key so the
// L3 tier can serve the same search after the volatile tiers expire.
func (s *Service) enqueueSearchCache(key, company string, envelope *models.SearchEnvelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		s.logger.Warn().Err(err).Str("company", company).Msg("Failed to encode envelope for search cache")
		return
	}
	row := map[string]interface{}{
		"cache_key":    key,
		"company_name": company,
		"envelope":     json.RawMessage(payload),
		"cached_at":    time.Now(),
	}
	if err := s.queue.Enqueue(&models.WriteRequest{
		Table:     "search_cache",
		Rows:      []map[string]interface{}{row},
		Operation: models.OpUpsert,
		Priority:  models.PriorityLow,
	}); err != nil {
		s.logger.Warn().Err(err).Str("company", company).Msg("Failed to enqueue search cache row")
	}
}

// financialMetricsRow flattens a Yahoo indicator record into a
// financial_metrics upsert row.
func financialMetricsRow(company, rawID string, capturedAt time.Time, extra map[string]interface{}) map[string]interface{} {
	row := map[string]interface{}{
		"metric_id":    rawID,
		"company_name": company,
		"captured_at":  capturedAt,
	}
	if v, ok := extra["ticker"].(string); ok {
		row["ticker"] = v
	}
	if v, ok := extra["price_change_7d"].(float64); ok {
		row["price_change_7d"] = v
	}
	if v, ok := extra["revenue_change_yoy"].(float64); ok {
		row["revenue_change_yoy"] = v
	}
	if v, ok := extra["risk_level"].(string); ok {
		row["risk_level"] = v
	}
	if v, ok := extra["indicators"]; ok {
		row["indicators"] = v
	}
	return row
}

// enqueueFinancialMetrics queues the indicator snapshot rows collected from
// the financial source.
func (s *Service) enqueueFinancialMetrics(company string, rows []map[string]interface{}) {
	if len(rows) == 0 {
		return
	}
	if err := s.queue.Enqueue(&models.WriteRequest{
		Table:     "financial_metrics",
		Rows:      rows,
		Operation: models.OpUpsert,
		Priority:  models.PriorityLow,
	}); err != nil {
		s.logger.Warn().Err(err).Str("company", company).Msg("Failed to enqueue financial metrics")
	}
}

// enqueueCompany upserts the company registry row with the latest verdict.
func (s *Service) enqueueCompany(company string, envelope *models.SearchEnvelope) {
	row := map[string]interface{}{
		"name":        strings.ToLower(strings.TrimSpace(company)),
		"last_risk":   string(envelope.OverallRisk),
		"last_search": time.Now(),
		"event_count": len(envelope.Results),
	}
	if err := s.queue.Enqueue(&models.WriteRequest{
		Table:     "companies",
		Rows:      []map[string]interface{}{row},
		Operation: models.OpUpsert,
		Priority:  models.PriorityNormal,
	}); err != nil {
		s.logger.Warn().Err(err).Str("company", company).Msg("Failed to enqueue company registry update")
	}
}

// embedDocuments vectorises the risk-relevant events, capped by config.
// No-Legal and Unknown events carry no retrieval value and are skipped.
func (s *Service) embedDocuments(ctx context.Context, company string, docs []pendingDoc) int {
	if s.embedder == nil || s.vectors == nil || !s.config.EnableEmbedding {
		return 0
	}

	limit := s.config.MaxDocumentsToEmbed
	if limit <= 0 {
		limit = 20
	}

	embedded := 0
	for _, doc := range docs {
		if embedded >= limit {
			break
		}
		e := doc.event
		if e.RiskLabel == models.RiskNoLegal || e.RiskLabel == models.RiskUnknown || e.RiskLabel == "" {
			continue
		}

		text := strings.TrimSpace(e.Title + "\n" + e.Text)
		vector, err := s.embedder.GenerateEmbedding(ctx, text)
		if err != nil {
			s.logger.Warn().Err(err).Str("event_id", e.EventID).Msg("Embedding failed for event")
			continue
		}

		summary := text
		if len(summary) > models.MaxTextSummaryLen {
			summary = summary[:models.MaxTextSummaryLen]
		}
		pubDate := ""
		if e.PubDate != nil {
			pubDate = e.PubDate.Format("2006-01-02")
		}

		record := &models.VectorRecord{
			EventID:         e.EventID,
			Vector:          vector,
			Dimension:       s.embedder.Dimension(),
			EmbeddingModel:  s.embedder.ModelName(),
			CreatedAt:       time.Now(),
			IsActive:        true,
			CompanyName:     company,
			RiskLevel:       string(e.RiskLabel),
			PublicationDate: pubDate,
			Source:          e.Source,
			Title:           e.Title,
			TextSummary:     summary,
		}
		if err := s.vectors.Add(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("event_id", e.EventID).Msg("Vector store write failed")
			continue
		}

		e.EmbeddingStatus = models.EmbeddingVectorised
		e.EmbeddingModel = record.EmbeddingModel
		embedded++
	}
	return embedded
}

// buildEnvelope assembles the response, results sorted by publication date
// descending.
func (s *Service) buildEnvelope(company string, window common.DateWindow, docs []pendingDoc, metadata map[string]*models.SourceSummary) *models.SearchEnvelope {
	results := make([]models.ResultItem, 0, len(docs))
	riskSummary := map[string]int{}
	overall := models.ColorGreen

	for _, doc := range docs {
		e := doc.event
		confidence := 0.0
		if e.Confidence != nil {
			confidence = *e.Confidence
		}
		color := e.RiskColor()
		results = append(results, models.ResultItem{
			EventID:    e.EventID,
			Source:     e.Source,
			Title:      e.Title,
			Text:       e.Text,
			URL:        e.URL,
			Section:    e.Section,
			PubDate:    e.PubDate,
			RiskLabel:  e.RiskLabel,
			RiskColor:  color,
			Confidence: confidence,
			Rationale:  e.Rationale,
			Method:     e.ClassificationMethod,
		})
		riskSummary[string(e.RiskLabel)]++
		overall = models.WorseColor(overall, color)
	}

	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := results[i].PubDate, results[j].PubDate
		if pi == nil {
			return false
		}
		if pj == nil {
			return true
		}
		return pi.After(*pj)
	})

	return &models.SearchEnvelope{
		CompanyName: company,
		SearchDate:  time.Now().Format(time.RFC3339),
		DateRange: map[string]string{
			"start": window.StartDate(),
			"end":   window.EndDate(),
		},
		Results:     results,
		Metadata:    metadata,
		OverallRisk: overall,
		RiskSummary: riskSummary,
	}
}
