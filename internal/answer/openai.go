package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quillbird.app/bot/common/llm"
)

// ReplyResponse is the structured output contract for reply generation.
type ReplyResponse struct {
	Reply string `json:"reply" jsonschema_description:"The reply text to post, fitting in a single tweet"`
}

var replySchema = llm.GenerateSchema[ReplyResponse]()

type openaiEngine struct {
	llm       llm.Client
	maxTokens int
}

func newOpenAIEngine(client llm.Client, maxTokens int) Engine {
	return &openaiEngine{llm: client, maxTokens: maxTokens}
}

func (e *openaiEngine) Generate(ctx context.Context, msgs []llm.ChatMessage) (string, error) {
	var response ReplyResponse
	start := time.Now()

	// Retry with exponential backoff (1s, 2s, 4s) to ride out transient rate
	// limits. A candidate that still fails is surfaced as retryable and comes
	// back on a later batch.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		_, err = e.llm.Chat(ctx, llm.Request{
			SystemPrompt: systemPrompt,
			Messages:     msgs,
			SchemaName:   "reply_response",
			Schema:       replySchema,
			MaxTokens:    e.maxTokens,
			Temperature:  llm.Temp(0.7),
		}, &response)

		if err == nil {
			break
		}
		if !llm.IsRetryable(ctx, err) {
			return "", wrapEngineErr(fmt.Errorf("generating reply: %w", err), false)
		}
		slog.WarnContext(ctx, "reply generation retry",
			"attempt", attempt+1,
			"error", err)
		time.Sleep(time.Duration(1<<attempt) * time.Second)
	}
	if err != nil {
		return "", wrapEngineErr(fmt.Errorf("generating reply after 3 attempts: %w", err), true)
	}

	reply := strings.TrimSpace(response.Reply)
	if reply == "" {
		return "", wrapEngineErr(fmt.Errorf("model returned empty reply"), false)
	}

	slog.InfoContext(ctx, "reply generated",
		"model", e.llm.Model(),
		"latency_ms", time.Since(start).Milliseconds(),
		"reply_len", len(reply))

	return reply, nil
}
