package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient creates a Messages API client. cfg.Endpoint overrides the
// default base URL when set.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger.Named("llm.anthropic"),
	}, nil
}

// GenerateResponse sends the prompt as a single user message.
func (c *AnthropicClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
) (*GenerateResponseResult, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()
	temp := float32(temperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      systemMessage,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := classifyAnthropicError(err)
		llmErr.Model = c.model
		llmErr.Endpoint = c.endpoint
		return nil, llmErr
	}

	text := extractText(resp)
	if text == "" {
		return nil, NewErrorWithContext(ErrorTypeUnknown, "no text in response", false, nil, c.model, c.endpoint, 0)
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResponseResult{
		Content:          text,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}

func extractText(resp anthropic.MessagesResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return b.String()
}

// classifyAnthropicError maps the SDK's typed errors before falling back to
// message matching.
func classifyAnthropicError(err error) *Error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch string(apiErr.Type) {
		case "authentication_error", "permission_error":
			return NewError(ErrorTypeAuth, "authentication failed", false, err)
		case "not_found_error":
			return NewError(ErrorTypeModel, "model not found", false, err)
		case "rate_limit_error":
			return NewError(ErrorTypeRateLimit, "rate limited", true, err)
		case "overloaded_error", "api_error":
			return NewError(ErrorTypeEndpoint, "server error", true, err)
		case "invalid_request_error":
			return NewError(ErrorTypeUnknown, "invalid request", false, err)
		}
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode > 0 {
		e := ClassifyError(fmt.Errorf("HTTP %d: %w", reqErr.StatusCode, err))
		e.Cause = err
		e.StatusCode = reqErr.StatusCode
		return e
	}

	return ClassifyError(err)
}
