package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
)

// Providers accepted by NewFromConfig.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewFromConfig creates the client selected by cfg.Provider.
// Returns LLMClient interface to enable dependency injection of mocks.
func NewFromConfig(cfg config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	clientCfg := &Config{
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		client, err := NewClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		// The OpenAI default endpoint is meaningless here.
		if clientCfg.Endpoint == "https://api.openai.com/v1" {
			clientCfg.Endpoint = ""
		}
		client, err := NewAnthropicClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
