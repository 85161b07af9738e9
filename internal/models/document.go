package models

import (
	"time"
)

// RawDocStatus tracks the parse lifecycle of a raw document.
// The empty string means unparsed.
type RawDocStatus string

const (
	RawDocUnparsed RawDocStatus = ""
	RawDocParsed   RawDocStatus = "parsed"
	RawDocError    RawDocStatus = "error"
	RawDocDLQ      RawDocStatus = "dlq"
)

// MaxRawDocRetries is the retry budget before a raw document goes to the
// dead-letter disposition.
const MaxRawDocRetries = 5

// RawDoc is an immutable source record. RawID is the SHA-256 fingerprint of
// the canonical payload and doubles as the dedup key. Only Status and
// Retries advance after creation.
type RawDoc struct {
	RawID     string            `json:"raw_id"`
	Source    Source            `json:"source"`
	Payload   []byte            `json:"payload"`
	Meta      map[string]string `json:"meta"`
	FetchedAt time.Time         `json:"fetched_at"`
	Retries   int               `json:"retries"`
	Status    RawDocStatus      `json:"status"`
}

// MarkParsed advances the status machine after successful event creation.
func (d *RawDoc) MarkParsed() {
	d.Status = RawDocParsed
}

// MarkError records a transient parse failure, moving to the dead-letter
// disposition once the retry budget is exhausted.
func (d *RawDoc) MarkError() {
	d.Retries++
	if d.Retries >= MaxRawDocRetries {
		d.Status = RawDocDLQ
	} else {
		d.Status = RawDocError
	}
}

// EmbeddingStatus tracks whether an event has been vectorised.
type EmbeddingStatus string

const (
	EmbeddingNone       EmbeddingStatus = ""
	EmbeddingVectorised EmbeddingStatus = "vectorised"
)

// Event is a normalized, classifiable unit extracted from a RawDoc.
// EventID is "<SOURCE>:<raw_id>".
type Event struct {
	EventID              string               `json:"event_id"`
	Title                string               `json:"title"`
	Text                 string               `json:"text"`
	Section              string               `json:"section"`
	URL                  string               `json:"url"`
	PubDate              *time.Time           `json:"pub_date,omitempty"`
	DateParseError       bool                 `json:"date_parse_error,omitempty"`
	Source               Source               `json:"source"`
	RiskLabel            RiskLabel            `json:"risk_label,omitempty"`
	Confidence           *float64             `json:"confidence,omitempty"`
	Rationale            string               `json:"rationale,omitempty"`
	ClassificationMethod ClassificationMethod `json:"classification_method,omitempty"`
	ClassifierTS         *time.Time           `json:"classifier_ts,omitempty"`
	EmbeddingStatus      EmbeddingStatus      `json:"embedding_status,omitempty"`
	EmbeddingModel       string               `json:"embedding_model,omitempty"`
	Alerted              bool                 `json:"alerted"`
}

// NewEventID composes the event primary key from source and raw fingerprint.
func NewEventID(source Source, rawID string) string {
	return string(source) + ":" + rawID
}

// ApplyClassification stamps a classification result onto the event.
func (e *Event) ApplyClassification(c Classification, ts time.Time) {
	conf := c.Confidence
	e.RiskLabel = c.Label
	e.Confidence = &conf
	e.Rationale = c.Rationale
	e.ClassificationMethod = c.Method
	e.ClassifierTS = &ts
}

// RiskColor returns the UI color for the event's label.
func (e *Event) RiskColor() RiskColor {
	return e.RiskLabel.Color()
}

// Company is a company identity plus last-known risk summary, keyed by name.
type Company struct {
	Name        string    `json:"name"`
	VAT         string    `json:"vat,omitempty"`
	LastRisk    RiskColor `json:"last_risk,omitempty"`
	LastSearch  time.Time `json:"last_search,omitempty"`
	EventCount  int       `json:"event_count"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
}
