package models

import (
	"time"
)

// ResultItem is one classified event as presented in the search envelope.
// RiskColor is always present per the UI contract.
type ResultItem struct {
	EventID    string     `json:"event_id"`
	Source     Source     `json:"source"`
	Title      string     `json:"title"`
	Text       string     `json:"text"`
	URL        string     `json:"url"`
	Section    string     `json:"section,omitempty"`
	PubDate    *time.Time `json:"pub_date,omitempty"`
	RiskLabel  RiskLabel  `json:"risk_label"`
	RiskColor  RiskColor  `json:"risk_color"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale,omitempty"`
	Method     ClassificationMethod `json:"classification_method"`
}

// SearchPerformance carries request timing for the envelope.
type SearchPerformance struct {
	TotalTimeSeconds  float64 `json:"total_time_seconds"`
	SourceTimeSeconds float64 `json:"source_time_seconds"`
	ClassifyTimeMs    int64   `json:"classify_time_ms"`
}

// CacheInfo describes how the envelope was produced.
type CacheInfo struct {
	SearchMethod string `json:"search_method"` // "live" or "cached"
	CacheTier    string `json:"cache_tier,omitempty"`
	CachedAt     string `json:"cached_at,omitempty"`
}

// DatabaseStats summarizes what the search pushed toward persistence.
type DatabaseStats struct {
	RawDocsQueued int `json:"raw_docs_queued"`
	EventsQueued  int `json:"events_queued"`
	Embedded      int `json:"embedded"`
	Deduplicated  int `json:"deduplicated"`
}

// SearchEnvelope is the full response for one company search.
type SearchEnvelope struct {
	CompanyName   string                    `json:"company_name"`
	SearchDate    string                    `json:"search_date"`
	DateRange     map[string]string         `json:"date_range"`
	Results       []ResultItem              `json:"results"`
	Metadata      map[string]*SourceSummary `json:"metadata"`
	Performance   SearchPerformance         `json:"performance"`
	CacheInfo     CacheInfo                 `json:"cache_info"`
	DatabaseStats DatabaseStats             `json:"database_stats"`
	OverallRisk   RiskColor                 `json:"overall_risk"`
	RiskSummary   map[string]int            `json:"risk_summary"`
}

// Answer is the response envelope for a natural-language question.
type Answer struct {
	Question       string         `json:"question"`
	Answer         string         `json:"answer"`
	Sources        []AnswerSource `json:"sources"`
	Confidence     float64        `json:"confidence"`
	Methodology    string         `json:"methodology"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	Timestamp      string         `json:"timestamp"`
}

// AnswerSource is one retrieved document reference backing an answer.
type AnswerSource struct {
	EventID   string  `json:"event_id"`
	Company   string  `json:"company"`
	Title     string  `json:"title"`
	Relevance float64 `json:"relevance"`
	Source    string  `json:"source"`
}
