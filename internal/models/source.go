package models

import (
	"strings"
	"time"
)

// Source identifies the origin of a raw document.
type Source string

const (
	SourceBOE     Source = "BOE"
	SourceNewsAPI Source = "NEWSAPI"
	SourceYahoo   Source = "YAHOO_FINANCE"
)

// RSSSource builds the source tag for one of the fixed newspaper feeds,
// e.g. RSS_ELPAIS.
func RSSSource(outlet string) Source {
	return Source("RSS_" + strings.ToUpper(outlet))
}

// IsRSS reports whether the source is one of the newspaper feeds.
func (s Source) IsRSS() bool {
	return strings.HasPrefix(string(s), "RSS_")
}

// IsPress reports whether the source is a press outlet (news API or RSS),
// used by the assessment press score.
func (s Source) IsPress() bool {
	return s == SourceNewsAPI || s.IsRSS()
}

// SourceRecord is one normalized item returned by a source adapter. Every
// adapter fills Title, Text, URL and PublishedAt; the Extra map carries
// source-specific fields such as BOE section codes or financial indicators.
type SourceRecord struct {
	Title          string                 `json:"title"`
	Text           string                 `json:"text"`
	URL            string                 `json:"url"`
	PublishedAt    string                 `json:"published_at"` // raw source date string
	PubDate        *time.Time             `json:"pub_date,omitempty"`
	DateParseError bool                   `json:"date_parse_error,omitempty"`
	Section        string                 `json:"section,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// SourceSummary describes the outcome of one adapter search.
type SourceSummary struct {
	Query        string   `json:"query"`
	Source       Source   `json:"source"`
	TotalResults int      `json:"total_results"`
	Errors       []string `json:"errors"`
}

// SourceResult is the uniform envelope every adapter returns. Adapter
// failures never escape Search; they are appended to Summary.Errors and the
// record list stays empty.
type SourceResult struct {
	Summary SourceSummary  `json:"summary"`
	Records []SourceRecord `json:"records"`
}

// NewSourceResult builds an empty result for a source and query.
func NewSourceResult(source Source, query string) *SourceResult {
	return &SourceResult{
		Summary: SourceSummary{Query: query, Source: source, Errors: []string{}},
		Records: []SourceRecord{},
	}
}

// AddError appends a failure note to the summary.
func (r *SourceResult) AddError(msg string) {
	r.Summary.Errors = append(r.Summary.Errors, msg)
}
