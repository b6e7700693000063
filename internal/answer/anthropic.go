package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quillbird.app/bot/common/llm"
)

type anthropicEngine struct {
	llm       llm.TextClient
	maxTokens int
}

func newAnthropicEngine(client llm.TextClient, maxTokens int) Engine {
	return &anthropicEngine{llm: client, maxTokens: maxTokens}
}

func (e *anthropicEngine) Generate(ctx context.Context, msgs []llm.ChatMessage) (string, error) {
	start := time.Now()

	var reply string
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		reply, _, err = e.llm.Complete(ctx, llm.Request{
			SystemPrompt: systemPrompt,
			Messages:     msgs,
			MaxTokens:    e.maxTokens,
			Temperature:  llm.Temp(0.7),
		})

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

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", wrapEngineErr(fmt.Errorf("model returned empty reply"), false)
	}

	slog.InfoContext(ctx, "reply generated",
		"model", e.llm.Model(),
		"latency_ms", time.Since(start).Milliseconds(),
		"reply_len", len(reply))

	return reply, nil
}
