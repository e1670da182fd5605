package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
)

func TestClient_GenerateResponse(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "SELECT 1"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL + "/v1/", Model: "gpt-4o", APIKey: "test-key", MaxTokens: 500}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.GenerateResponse(context.Background(), "count accounts", "You are a SQL expert.", 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", result.Content)
	assert.Equal(t, 15, result.TotalTokens)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, 500, body["max_tokens"])
	messages, _ := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestClient_GenerateResponse_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "busy", "type": "server_error"}}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "gpt-4o"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "q", "s", 0)
	require.Error(t, err)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.True(t, llmErr.Retryable)
	assert.Equal(t, "gpt-4o", llmErr.Model)
}

func TestClient_GenerateResponse_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "gpt-4o"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "q", "s", 0)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrorTypeAuth, llmErr.Type)
	assert.False(t, IsRetryable(err))
}

func TestAnthropicClient_GenerateResponse(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "SELECT COUNT(*) FROM accounts"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 8}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&Config{Endpoint: server.URL + "/v1", Model: "claude-sonnet-4-5", APIKey: "test-key", MaxTokens: 500}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.GenerateResponse(context.Background(), "count accounts", "You are a SQL expert.", 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM accounts", result.Content)
	assert.Equal(t, 28, result.TotalTokens)
	assert.Contains(t, fmt.Sprint(body["system"]), "You are a SQL expert.")
}

func TestAnthropicClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&Config{Endpoint: server.URL + "/v1", Model: "claude-sonnet-4-5", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "q", "s", 0)
	require.Error(t, err)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrorTypeRateLimit, llmErr.Type)
	assert.True(t, IsRetryable(err))
}

func TestNewFromConfig(t *testing.T) {
	c, err := NewFromConfig(config.LLMConfig{Provider: "openai", Endpoint: "http://localhost:8000/v1", Model: "m"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Client{}, c)

	c, err = NewFromConfig(config.LLMConfig{Provider: "anthropic", Endpoint: "https://api.openai.com/v1", Model: "claude", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)
	assert.Empty(t, c.GetEndpoint())

	_, err = NewFromConfig(config.LLMConfig{Provider: "anthropic", Model: "claude"}, zap.NewNop())
	assert.ErrorContains(t, err, "api key is required")

	_, err = NewFromConfig(config.LLMConfig{Provider: "vertex", Model: "m"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestMockLLMClient(t *testing.T) {
	m := NewMockLLMClient()
	m.Response = "SELECT 2"

	r, err := m.GenerateResponse(context.Background(), "p", "s", 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", r.Content)
	assert.Equal(t, 1, m.Calls())
	assert.Equal(t, "p", m.LastPrompt)

	m.Reset()
	assert.Equal(t, 0, m.Calls())
}
