package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
)

// NewLLMService creates the appropriate LLM service implementation based on
// configuration. The default provider is Gemini; Claude and the plain remote
// HTTP service can be selected explicitly.
func NewLLMService(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	provider := cfg.LLM.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderGemini
	}

	logger.Info().Str("provider", string(provider)).Msg("Initializing LLM service")

	switch provider {
	case common.LLMProviderGemini:
		return NewGeminiService(&cfg.Gemini, &cfg.Embedding, logger)

	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.Claude, logger)

	case common.LLMProviderRemote:
		return NewRemoteService(&cfg.LLM, logger)

	default:
		return nil, fmt.Errorf("unsupported LLM provider '%s': must be 'gemini', 'claude' or 'remote'", provider)
	}
}
