package nl2sql

import (
	"strings"

	"golang.org/x/time/rate"

	"github.com/querymind/querymind/internal/config"
)

// New builds the configured translator. It returns ErrNotConfigured when no
// API key is available.
func New(cfg config.AIConfig) (Translator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	var (
		translator Translator
		err        error
	)
	switch cfg.Provider {
	case config.AIProviderOpenAI:
		translator, err = NewOpenAITranslator(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.ResolvedModel(),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		translator, err = NewAnthropicTranslator(AnthropicConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.ResolvedModel(),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			MaxRetries:  2,
		})
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		translator = RateLimited(translator, rate.NewLimiter(rate.Limit(cfg.RateLimit), burst))
	}
	return translator, nil
}
