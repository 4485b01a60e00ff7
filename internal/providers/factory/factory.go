// Package factory wires the concrete adapters from configuration.
package factory

import (
	"net/http"
	"time"

	"shotlate/internal/infra"
	"shotlate/internal/providers"
	"shotlate/internal/providers/anthropic"
	"shotlate/internal/providers/gemini"
	"shotlate/internal/providers/openai"
)

// NewRegistry builds a registry holding every supported backend.
func NewRegistry(cfg *infra.Config, logger *infra.Logger) *providers.Registry {
	timeout := 90 * time.Second
	var settings infra.Config
	if cfg != nil {
		settings = *cfg
		if cfg.ProviderTimeout > 0 {
			timeout = cfg.ProviderTimeout
		}
	}
	client := &http.Client{Timeout: timeout}
	logger = infra.LoggerOrDiscard(logger)

	return providers.NewRegistry(
		gemini.New(gemini.Options{
			BaseURL:      settings.Gemini.BaseURL,
			DefaultModel: settings.Gemini.Model,
			HTTPClient:   client,
			Logger:       logger,
		}),
		openai.New(openai.Options{
			BaseURL:      settings.OpenAI.BaseURL,
			DefaultModel: settings.OpenAI.Model,
			HTTPClient:   client,
			Logger:       logger,
		}),
		openai.NewXAI(openai.Options{
			BaseURL:      settings.XAI.BaseURL,
			DefaultModel: settings.XAI.Model,
			HTTPClient:   client,
			Logger:       logger,
		}),
		anthropic.New(anthropic.Options{
			BaseURL:      settings.Anthropic.BaseURL,
			DefaultModel: settings.Anthropic.Model,
			HTTPClient:   client,
			Logger:       logger,
		}),
	)
}
