// Package llm implements the language-model capability behind llm_query
// steps. Two providers are supported: OpenAI-compatible chat completion
// endpoints and the Anthropic Messages API.
package llm

import (
	"fmt"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/plugins"
)

// New builds the configured provider client.
func New(cfg config.LLMConfig) (plugins.LLMClient, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg)
	case "anthropic":
		return NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
