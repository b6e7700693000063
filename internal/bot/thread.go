package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"quillbird.app/bot/common/llm"
	"quillbird.app/bot/internal/model"
	"quillbird.app/bot/internal/store"
	"quillbird.app/bot/internal/twitter"
)

// Chain walks are bounded so a cyclic or absurdly deep reply chain cannot
// spin the resolver.
const maxThreadDepth = 20

// ThreadResolver reconstructs the conversation leading up to a mention as
// ordered chat context: remote ancestors the bot never participated in,
// then the bot-tracked turns, oldest first.
type ThreadResolver struct {
	messages  store.MessageStore
	tweets    store.TweetStore
	twitter   twitter.Client
	botUserID string
}

func NewThreadResolver(messages store.MessageStore, tweets store.TweetStore, tw twitter.Client, botUserID string) *ThreadResolver {
	return &ThreadResolver{messages: messages, tweets: tweets, twitter: tw, botUserID: botUserID}
}

// Resolve renders the thread ending at leaf. The leaf's own response is never
// included; it is what the caller is about to generate. Non-leaf turns that
// failed without ever being responded to are dropped from the context.
//
// When includeExternal is set, the reply chain above the oldest bot-tracked
// turn is walked live through the platform API. Missing or forbidden tweets
// end the walk silently; a partially reconstructed thread is still a thread.
func (r *ThreadResolver) Resolve(ctx context.Context, leaf *model.Message, includeExternal bool) ([]llm.ChatMessage, error) {
	chain, err := r.localChain(ctx, leaf)
	if err != nil {
		return nil, err
	}

	var msgs []llm.ChatMessage
	if includeExternal {
		oldest := chain[len(chain)-1]
		msgs = r.externalContext(ctx, oldest)
	}

	// chain is leaf-first; render oldest-first.
	for i := len(chain) - 1; i >= 0; i-- {
		m := chain[i]
		isLeaf := i == 0

		if !isLeaf && m.Error != nil && !m.Responded() {
			continue
		}

		msgs = append(msgs, llm.ChatMessage{Role: llm.RoleUser, Content: m.PromptText})
		if !isLeaf && m.ResponseText != nil && *m.ResponseText != "" {
			msgs = append(msgs, llm.ChatMessage{Role: llm.RoleAssistant, Content: *m.ResponseText})
		}
	}

	slog.DebugContext(ctx, "thread resolved",
		"leaf_id", leaf.ID,
		"turns", len(chain),
		"context_messages", len(msgs))

	return msgs, nil
}

// localChain collects leaf and its stored ancestors, leaf first.
func (r *ThreadResolver) localChain(ctx context.Context, leaf *model.Message) ([]*model.Message, error) {
	chain := []*model.Message{leaf}

	current := leaf
	for depth := 0; depth < maxThreadDepth && current.ParentMessageID != nil; depth++ {
		parent, err := r.messages.GetByID(ctx, *current.ParentMessageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("walking thread parent %s: %w", *current.ParentMessageID, err)
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

// externalContext walks the reply chain above the oldest bot-tracked turn and
// renders it oldest-first. Lookups are always live: a cached copy cannot tell
// a deleted tweet from a stale one.
func (r *ThreadResolver) externalContext(ctx context.Context, oldest *model.Message) []llm.ChatMessage {
	tweet, err := r.lookupTweet(ctx, oldest.PromptTweetID)
	if err != nil || tweet == nil {
		return nil
	}

	// Collected child-to-parent, so ancestors[0] is the nearest ancestor.
	var ancestors []*model.Tweet
	current := tweet
	for depth := 0; depth < maxThreadDepth && current.InReplyToTweetID != nil; depth++ {
		parent, err := r.twitter.GetTweet(ctx, *current.InReplyToTweetID)
		if err != nil {
			slog.DebugContext(ctx, "external thread walk stopped",
				"tweet_id", *current.InReplyToTweetID,
				"class", twitter.ErrorClass(err),
				"error", err)
			break
		}
		if parent.AuthorID == r.botUserID {
			// An own post above the local chain means its turn record is
			// missing; rendering it as user context would have the bot
			// quoting itself.
			break
		}
		ancestors = append(ancestors, parent)
		current = parent
	}

	msgs := make([]llm.ChatMessage, 0, len(ancestors))
	for i := len(ancestors) - 1; i >= 0; i-- {
		msgs = append(msgs, llm.ChatMessage{Role: llm.RoleUser, Content: ancestors[i].Text})
	}
	return msgs
}

// lookupTweet prefers the durable copy and falls back to a live fetch.
func (r *ThreadResolver) lookupTweet(ctx context.Context, id string) (*model.Tweet, error) {
	tweet, err := r.tweets.GetByID(ctx, id)
	if err == nil {
		return tweet, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return r.twitter.GetTweet(ctx, id)
}
