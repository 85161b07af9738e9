package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// classifySystemPrompt instructs the model to emit the strict JSON reply
// contract for D&O risk classification of Spanish corporate documents.
const classifySystemPrompt = `Eres un clasificador de riesgo Directors & Officers (D&O) para documentos corporativos españoles.
Clasifica cada documento en exactamente una de estas etiquetas:
High-Legal, High-Financial, High-Regulatory, Medium-Legal, Medium-Operational, Low-Legal, Low-Operational, No-Legal, Unknown.

Responde SOLO con JSON válido, sin texto adicional ni marcado markdown.
Para un documento: {"label": "...", "reason": "...", "confidence": 0.0-1.0, "method": "hybrid_llm"}
Para varios documentos: un array JSON en el mismo orden de entrada.`

// PromptClassifier drives classification through an LLM provider (Gemini or
// Claude) using the same strict JSON contract as the remote service. The
// batch variant packs all documents into a single model request.
type PromptClassifier struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewPromptClassifier creates a provider-backed classifier.
func NewPromptClassifier(llm interfaces.LLMService, logger arbor.ILogger) *PromptClassifier {
	return &PromptClassifier{llm: llm, logger: logger}
}

func formatDoc(i int, input interfaces.ClassifyInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DOCUMENTO %d\n", i+1)
	fmt.Fprintf(&b, "Fuente: %s\n", input.Source)
	if input.Section != "" {
		fmt.Fprintf(&b, "Sección: %s\n", input.Section)
	}
	fmt.Fprintf(&b, "Título: %s\n", input.Title)
	fmt.Fprintf(&b, "Texto: %s\n", input.Text)
	return b.String()
}

// stripJSONFences removes markdown code fences some models wrap around JSON.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Classify sends one document to the model and validates the JSON reply.
func (c *PromptClassifier) Classify(ctx context.Context, input interfaces.ClassifyInput) (*models.Classification, error) {
	messages := []interfaces.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: formatDoc(0, input)},
	}

	text, err := c.llm.Chat(ctx, messages, interfaces.GenerateOptions{MaxTokens: 256, Temperature: 0.1})
	if err != nil {
		return nil, fmt.Errorf("LLM classify failed: %w", err)
	}

	var reply classifyReply
	if err := json.Unmarshal([]byte(stripJSONFences(text)), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidReply, err)
	}
	return reply.toClassification()
}

// ClassifyBatch packs every document into one model request and stitches
// the replies back by index. A nil entry marks a document the model could
// not classify.
func (c *PromptClassifier) ClassifyBatch(ctx context.Context, inputs []interfaces.ClassifyInput) ([]*models.Classification, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if len(inputs) == 1 {
		result, err := c.Classify(ctx, inputs[0])
		if err != nil {
			return nil, err
		}
		return []*models.Classification{result}, nil
	}

	var b strings.Builder
	for i, input := range inputs {
		b.WriteString(formatDoc(i, input))
		b.WriteString("\n")
	}

	messages := []interfaces.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: b.String()},
	}

	text, err := c.llm.Chat(ctx, messages, interfaces.GenerateOptions{MaxTokens: 128 * len(inputs), Temperature: 0.1})
	if err != nil {
		return nil, fmt.Errorf("LLM batch classify failed: %w", err)
	}

	var replies []classifyReply
	if err := json.Unmarshal([]byte(stripJSONFences(text)), &replies); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidReply, err)
	}

	results := make([]*models.Classification, len(inputs))
	for i := range replies {
		if i >= len(inputs) {
			break
		}
		result, convErr := replies[i].toClassification()
		if convErr != nil {
			c.logger.Warn().Err(convErr).Int("index", i).Msg("Dropping invalid batch reply entry")
			continue
		}
		results[i] = result
	}
	return results, nil
}

var _ interfaces.LLMClassifier = (*PromptClassifier)(nil)
