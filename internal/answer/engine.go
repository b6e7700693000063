// Package answer turns a rendered conversation thread into reply text via a
// configured model provider.
package answer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"quillbird.app/bot/common/llm"
	"quillbird.app/bot/core/config"
	"quillbird.app/bot/internal/model"
)

// Engine generates a reply for an ordered conversation. The final message is
// the prompt being answered; earlier messages are thread context.
type Engine interface {
	Generate(ctx context.Context, msgs []llm.ChatMessage) (string, error)
}

// New builds the provider-specific engine from configuration.
func New(cfg config.LLMConfig) (Engine, error) {
	llmCfg := llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	}

	switch cfg.Provider {
	case "openai":
		client, err := llm.NewOpenAI(llmCfg)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		return newOpenAIEngine(client, cfg.MaxTokens), nil
	case "anthropic":
		client, err := llm.NewAnthropic(llmCfg)
		if err != nil {
			return nil, fmt.Errorf("creating anthropic client: %w", err)
		}
		return newAnthropicEngine(client, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown answer provider %q", cfg.Provider)
	}
}

const systemPrompt = `You are Quillbird, a helpful assistant that replies to mentions on Twitter/X.

You are given a conversation thread, oldest post first. The last message is the
one addressed to you. Reply to it directly.

Rules:
- Be concise. Replies must fit in a single post.
- Be substantive: answer the question asked, do not restate it.
- No hashtags, no emoji padding, no self-promotion.
- If the thread gives no answerable question, respond with a brief, relevant remark.`

// TruncateReply trims text to the platform character budget on a rune
// boundary, preferring to cut at the last whitespace and appending an
// ellipsis when anything was dropped.
func TruncateReply(text string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}

	runes := []rune(text)
	cut := budget - 1 // room for the ellipsis rune
	trimmed := string(runes[:cut])
	if idx := strings.LastIndexAny(trimmed, " \n\t"); idx > budget/2 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimRight(trimmed, " \n\t") + "…"
}

func wrapEngineErr(err error, retryable bool) error {
	return model.NewPipelineError(model.ErrorTypeAnswerEngine, !retryable, err)
}
