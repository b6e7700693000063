// Package llm wraps the model-provider SDKs behind small clients: a
// structured-output chat client (OpenAI-compatible) and a plain-text
// messages client (Anthropic). Backend selection is a configuration choice
// made once at startup.
package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one ordered entry of conversational context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces structured responses conforming to a JSON schema.
type Client interface {
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	Model() string
}

// TextClient produces free-form text from ordered chat context.
type TextClient interface {
	Complete(ctx context.Context, req Request) (string, *Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	Messages     []ChatMessage
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default
}

type Response struct {
	PromptTokens     int
	CompletionTokens int
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GenerateSchema reflects a strict JSON schema for structured outputs.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// IsRetryable reports whether a provider error is worth retrying: rate
// limits and server errors are, client errors and cancelled contexts are not,
// and bare network errors are assumed transient.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return retryableStatus(ctx, oaiErr.StatusCode)
	}

	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return retryableStatus(ctx, antErr.StatusCode)
	}

	// Network errors with no API response are generally retryable.
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}

func retryableStatus(ctx context.Context, status int) bool {
	switch {
	case status == 429:
		slog.WarnContext(ctx, "llm rate limited, will retry", "status_code", status)
		return true
	case status >= 500:
		slog.WarnContext(ctx, "llm server error, will retry", "status_code", status)
		return true
	default:
		slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", status)
		return false
	}
}
