package classifier

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// escalationMinLength is the minimum text length worth an LLM call.
const escalationMinLength = 50

// routineCutoff is the length under which routine boilerplate skips the LLM
// even when a legal indicator is present elsewhere in the gate flow.
const routineCutoff = 200

// Hybrid composes the keyword gate with the LLM fallback. Counters are
// struct-owned and exposed only as snapshots.
type Hybrid struct {
	gate              *KeywordGate
	llm               interfaces.LLMClassifier
	enhanceConfidence bool
	logger            arbor.ILogger

	total       atomic.Int64
	keywordHits atomic.Int64
	llmCalls    atomic.Int64
}

// HybridOption configures the hybrid classifier.
type HybridOption func(*Hybrid)

// WithConfidenceEnhancement enables the second-opinion LLM query for
// low-confidence keyword results.
func WithConfidenceEnhancement() HybridOption {
	return func(h *Hybrid) {
		h.enhanceConfidence = true
	}
}

// NewHybrid creates the hybrid classifier. llm may be nil, in which case
// every ambiguous document falls back to the default result.
func NewHybrid(gate *KeywordGate, llm interfaces.LLMClassifier, logger arbor.ILogger, opts ...HybridOption) *Hybrid {
	h := &Hybrid{gate: gate, llm: llm, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// defaultResult is emitted when neither stage can commit to a label.
func defaultResult(rationale string) models.Classification {
	if rationale == "" {
		rationale = "No legal indicators detected"
	}
	return models.Classification{
		Label:      models.RiskNoLegal,
		Confidence: 0.8,
		Method:     models.MethodHybridDefault,
		Rationale:  rationale,
	}
}

// errorFallbackResult is emitted when an escalated document could not be
// classified because the LLM call failed. The distinct method lets the
// pipeline park the raw document for reprocessing.
func errorFallbackResult() models.Classification {
	return models.Classification{
		Label:      models.RiskNoLegal,
		Confidence: 0.8,
		Method:     models.MethodErrorFallback,
		Rationale:  "LLM unavailable",
	}
}

// shouldEscalate is the predicate deciding whether an ambiguous document is
// worth a remote call: it must carry a legal indicator, be long enough to
// say something, and not be short routine boilerplate.
func shouldEscalate(text string) bool {
	if len(text) < escalationMinLength {
		return false
	}
	if !ContainsLegalIndicator(text) {
		return false
	}
	if len(text) < routineCutoff && IsRoutinePattern(text) {
		return false
	}
	return true
}

// ClassifyDocument runs the gate first and escalates only the ambiguous
// residue. It never returns an error; LLM failures degrade to the default
// result so one document cannot abort ingest.
func (h *Hybrid) ClassifyDocument(ctx context.Context, input interfaces.ClassifyInput) models.Classification {
	h.total.Add(1)

	if hit := h.gate.Classify(input.Text, input.Title, input.Section); hit != nil {
		h.keywordHits.Add(1)
		if h.enhanceConfidence && hit.Confidence < 0.8 && h.llm != nil {
			return h.enhance(ctx, input, *hit)
		}
		return *hit
	}

	if !shouldEscalate(input.Text) || h.llm == nil {
		return defaultResult("")
	}

	h.llmCalls.Add(1)
	result, err := h.llm.Classify(ctx, input)
	if err != nil {
		h.logger.Warn().Err(err).Str("title", input.Title).Msg("LLM classification failed, using error fallback")
		return errorFallbackResult()
	}
	result.Method = models.MethodHybridLLM
	return *result
}

// enhance queries the LLM for a second opinion on a low-confidence keyword
// hit and combines both results: agreement keeps the label at the higher
// confidence, disagreement takes the LLM label at a weighted blend.
func (h *Hybrid) enhance(ctx context.Context, input interfaces.ClassifyInput, keyword models.Classification) models.Classification {
	h.llmCalls.Add(1)
	llmResult, err := h.llm.Classify(ctx, input)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Confidence enhancement call failed, keeping keyword result")
		return keyword
	}

	if llmResult.Label == keyword.Label {
		conf := keyword.Confidence
		if llmResult.Confidence > conf {
			conf = llmResult.Confidence
		}
		return models.Classification{
			Label:      keyword.Label,
			Confidence: conf,
			Method:     keyword.Method,
			Rationale:  fmt.Sprintf("keyword and LLM agree (%s; %s)", keyword.Rationale, llmResult.Rationale),
		}
	}

	return models.Classification{
		Label:      llmResult.Label,
		Confidence: 0.7*llmResult.Confidence + 0.3*keyword.Confidence,
		Method:     models.MethodHybridLLM,
		Rationale: fmt.Sprintf("LLM override of keyword %s (keyword: %s; llm: %s)",
			keyword.Label, keyword.Rationale, llmResult.Rationale),
	}
}

// ClassifyDocumentsBatch runs the gate over every document, groups the
// escalatable residue into one batched LLM request and stitches the replies
// back by index, preserving input order.
func (h *Hybrid) ClassifyDocumentsBatch(ctx context.Context, inputs []interfaces.ClassifyInput) []models.Classification {
	results := make([]models.Classification, len(inputs))
	var pendingIdx []int
	var pending []interfaces.ClassifyInput

	for i, input := range inputs {
		h.total.Add(1)
		if hit := h.gate.Classify(input.Text, input.Title, input.Section); hit != nil {
			h.keywordHits.Add(1)
			results[i] = *hit
			continue
		}
		if !shouldEscalate(input.Text) || h.llm == nil {
			results[i] = defaultResult("")
			continue
		}
		pendingIdx = append(pendingIdx, i)
		pending = append(pending, input)
	}

	if len(pending) == 0 {
		return results
	}

	h.llmCalls.Add(int64(len(pending)))
	llmResults, err := h.llm.ClassifyBatch(ctx, pending)
	if err != nil {
		h.logger.Warn().Err(err).Int("count", len(pending)).Msg("Batch LLM classification failed, using error fallback")
		for _, idx := range pendingIdx {
			results[idx] = errorFallbackResult()
		}
		return results
	}

	for j, idx := range pendingIdx {
		if j < len(llmResults) && llmResults[j] != nil {
			r := *llmResults[j]
			r.Method = models.MethodHybridLLM
			results[idx] = r
		} else {
			results[idx] = errorFallbackResult()
		}
	}
	return results
}

// Stats returns a read-only snapshot of the classifier counters.
func (h *Hybrid) Stats() interfaces.ClassifierStats {
	return interfaces.ClassifierStats{
		Total:       h.total.Load(),
		KeywordHits: h.keywordHits.Load(),
		LLMCalls:    h.llmCalls.Load(),
	}
}

var _ interfaces.HybridClassifier = (*Hybrid)(nil)
