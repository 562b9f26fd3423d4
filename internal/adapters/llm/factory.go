package llm

import (
	"fmt"
	"time"

	"github.com/0xcro3dile/shodobot-go/internal/config"
	"github.com/0xcro3dile/shodobot-go/internal/domain/ports"
)

// New builds the completion service selected by cfg.Provider.
func New(cfg config.LLMConfig, timeout time.Duration) (ports.CompletionService, error) {
	switch cfg.Provider {
	case "groq", "openai", "":
		return NewOpenAIChatAdapter(OpenAIOptions{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
			MaxRetries:  2,
		}), nil
	case "ollama":
		base := cfg.BaseURL
		if base == config.DefaultConfig().LLM.BaseURL {
			base = ""
		}
		return NewOllamaChatAdapter(base, cfg.Model, cfg.Temperature, cfg.MaxTokens, timeout), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
