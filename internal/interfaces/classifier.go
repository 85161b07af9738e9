package interfaces

import (
	"context"

	"github.com/ternarybob/vigia/internal/models"
)

// ClassifyInput carries one document into the classifier stage.
type ClassifyInput struct {
	Text    string
	Title   string
	Source  models.Source
	Section string
}

// LLMClassifier sends ambiguous documents to a remote model under a strict
// JSON reply contract.
type LLMClassifier interface {
	Classify(ctx context.Context, input ClassifyInput) (*models.Classification, error)
	ClassifyBatch(ctx context.Context, inputs []ClassifyInput) ([]*models.Classification, error)
}

// ClassifierStats is a read-only snapshot of the hybrid classifier counters.
type ClassifierStats struct {
	Total       int64 `json:"total"`
	KeywordHits int64 `json:"keyword_hits"`
	LLMCalls    int64 `json:"llm_calls"`
}

// HybridClassifier composes the deterministic keyword gate with the LLM
// fallback.
type HybridClassifier interface {
	ClassifyDocument(ctx context.Context, input ClassifyInput) models.Classification
	ClassifyDocumentsBatch(ctx context.Context, inputs []ClassifyInput) []models.Classification
	Stats() ClassifierStats
}
