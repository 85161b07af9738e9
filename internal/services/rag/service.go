package rag

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

const (
	// Methodology identifies how answers are produced.
	Methodology = "rag_vector_gemini"

	answerMaxTokens   = 800
	answerTemperature = 0.2
	embedBudget       = 30 * time.Second

	// MinDocuments and MaxDocuments bound the retrieval k.
	MinDocuments = 1
	MaxDocuments = 10
)

var (
	boldMarkerRe = regexp.MustCompile(`\*+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// apologies are the provider-down answers per language.
var apologies = map[string]string{
	"es": "Lo siento, no he podido generar una respuesta en este momento. Por favor, inténtelo de nuevo más tarde.",
	"en": "Sorry, I could not generate an answer at this time. Please try again later.",
}

// Service answers natural-language questions about company risk by
// retrieving vector-matched events and synthesizing a grounded answer.
type Service struct {
	embedder interfaces.EmbeddingService
	store    interfaces.VectorStore
	llm      interfaces.LLMService
	logger   arbor.ILogger
}

// NewService creates the question-answering service.
func NewService(embedder interfaces.EmbeddingService, store interfaces.VectorStore, llm interfaces.LLMService, logger arbor.ILogger) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
		llm:      llm,
		logger:   logger,
	}
}

// Ask retrieves the top documents for the question, grounds a prompt on
// them, and synthesizes an answer. An embedding failure is a hard error; an
// LLM failure degrades to a localized apology with zero confidence.
func (s *Service) Ask(ctx context.Context, question, company string, maxDocuments int, language string) (*models.Answer, error) {
	start := time.Now()

	if maxDocuments < MinDocuments {
		maxDocuments = 5
	}
	if maxDocuments > MaxDocuments {
		maxDocuments = MaxDocuments
	}
	if language != "en" {
		language = "es"
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedBudget)
	queryVector, err := s.embedder.GenerateEmbedding(embedCtx, question)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	filter := models.VectorFilter{CompanyName: company}
	hits, err := s.store.Search(ctx, queryVector, maxDocuments, filter)
	if err != nil {
		s.logger.Warn().Err(err).Str("company", company).Msg("Vector search failed, answering without context")
		hits = nil
	}

	prompt := buildPrompt(question, company, hits, language)
	answerText, llmErr := s.llm.Generate(ctx, prompt, interfaces.GenerateOptions{
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	})

	answer := &models.Answer{
		Question:    question,
		Sources:     answerSources(hits),
		Methodology: Methodology,
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	if llmErr != nil {
		s.logger.Error().Err(llmErr).Msg("Answer synthesis failed")
		answer.Answer = apologies[language]
		answer.Confidence = 0
	} else {
		answer.Answer = CleanAnswer(answerText)
		answer.Confidence = confidenceFromHits(hits)
	}

	answer.ResponseTimeMs = time.Since(start).Milliseconds()
	s.logger.Info().
		Str("company", company).
		Int("documents", len(hits)).
		Float64("confidence", answer.Confidence).
		Int64("response_time_ms", answer.ResponseTimeMs).
		Msg("Question answered")

	return answer, nil
}

// buildPrompt assembles the grounded prompt with numbered document blocks.
func buildPrompt(question, company string, hits []models.VectorHit, language string) string {
	var b strings.Builder

	if language == "en" {
		b.WriteString("You are a corporate risk analyst. Answer the question using ONLY the context documents below. ")
		b.WriteString("If the context does not contain the answer, say so explicitly. Answer in English.\n\n")
	} else {
		b.WriteString("Eres un analista de riesgo corporativo. Responde a la pregunta usando SOLO los documentos de contexto siguientes. ")
		b.WriteString("Si el contexto no contiene la respuesta, dilo explícitamente. Responde en español.\n\n")
	}

	if len(hits) == 0 {
		if language == "en" {
			b.WriteString("No context documents were found.\n\n")
		} else {
			b.WriteString("No se encontraron documentos de contexto.\n\n")
		}
	} else {
		b.WriteString("CONTEXTO:\n")
		for i, hit := range hits {
			hitCompany := metadataString(hit.Metadata, "company_name")
			if hitCompany == "" {
				hitCompany = company
			}
			fmt.Fprintf(&b, "DOCUMENTO %d (Relevancia: %.2f, Empresa: %s): %s\n\n",
				i+1, hit.Score, hitCompany, hit.Document)
		}
	}

	if language == "en" {
		fmt.Fprintf(&b, "QUESTION: %s\n", question)
	} else {
		fmt.Fprintf(&b, "PREGUNTA: %s\n", question)
	}
	return b.String()
}

// CleanAnswer removes markdown emphasis markers and collapses runs of blank
// lines left by the model.
func CleanAnswer(text string) string {
	text = boldMarkerRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// confidenceFromHits maps the mean retrieval score onto a 0..100 scale,
// rounded to one decimal. No hits means no grounding, confidence 0.
func confidenceFromHits(hits []models.VectorHit) float64 {
	if len(hits) == 0 {
		return 0
	}
	sum := 0.0
	for _, hit := range hits {
		sum += hit.Score
	}
	confidence := 100 * sum / float64(len(hits))
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}
	return math.Round(confidence*10) / 10
}

// answerSources converts hits into the answer source references.
func answerSources(hits []models.VectorHit) []models.AnswerSource {
	sources := make([]models.AnswerSource, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, models.AnswerSource{
			EventID:   hit.ID,
			Company:   metadataString(hit.Metadata, "company_name"),
			Title:     metadataString(hit.Metadata, "title"),
			Relevance: math.Round(hit.Score*100) / 100,
			Source:    metadataString(hit.Metadata, "source"),
		})
	}
	return sources
}

func metadataString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}
