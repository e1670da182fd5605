package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrorType indicates which part of the LLM configuration caused the error.
type ErrorType string

const (
	ErrorTypeNone      ErrorType = ""
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface. The endpoint is reduced to its host.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured LLM error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	// Caller gave up; retrying would ignore that.
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeUnknown, "request canceled", false, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeEndpoint, "request timeout", true, err)
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	classify := func(t ErrorType, msg string, retryable bool) *Error {
		e := NewError(t, msg, retryable, err)
		e.StatusCode = statusCode
		return e
	}

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return classify(ErrorTypeAuth, "authentication failed", false)

	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return classify(ErrorTypeModel, "model not found", false)

	case strings.Contains(errStr, "404"):
		return classify(ErrorTypeEndpoint, "endpoint not found", false)

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset"):
		return classify(ErrorTypeEndpoint, "connection failed", true)

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return classify(ErrorTypeEndpoint, "request timeout", true)

	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit"):
		return classify(ErrorTypeRateLimit, "rate limited", true)

	case strings.Contains(lower, "overloaded") || strings.Contains(errStr, "529"):
		return classify(ErrorTypeEndpoint, "provider overloaded", true)

	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return classify(ErrorTypeEndpoint, "server error", true)
	}

	return classify(ErrorTypeUnknown, "llm error", false)
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
