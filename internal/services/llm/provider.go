package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
)

// defaultSystemPrompt is applied when the conversation does not carry its
// own system message.
const defaultSystemPrompt = "You are a helpful AI assistant for program portfolio management."

// NewProvider creates the configured LLM provider. Construction fails fast
// on missing credentials so misconfiguration surfaces at startup, not on
// the first query.
func NewProvider(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMProvider, error) {
	logger.Info().Str("provider", string(cfg.LLM.Provider)).Msg("Initializing LLM provider")

	switch cfg.LLM.Provider {
	case common.LLMProviderClaude:
		return NewClaudeProvider(&cfg.Claude, logger)
	case common.LLMProviderGemini:
		return NewGeminiProvider(&cfg.Gemini, logger)
	default:
		return nil, fmt.Errorf("invalid LLM provider '%s': must be 'claude' or 'gemini'", cfg.LLM.Provider)
	}
}
