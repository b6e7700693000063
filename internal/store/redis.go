package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"quillbird.app/bot/internal/model"
)

// Redis-backed coordination state: the mention cursor and the fetched-page
// cache. Record data lives in Postgres; this is the cheap, contended state.

type redisCursorStore struct {
	client *redis.Client
}

func NewRedisCursorStore(client *redis.Client) CursorStore {
	return &redisCursorStore{client: client}
}

func cursorKey(accountID string) string {
	return "cursor:" + accountID
}

func (s *redisCursorStore) Get(ctx context.Context, accountID string) (string, error) {
	val, err := s.client.Get(ctx, cursorKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("reading cursor: %w", err)
	}
	return val, nil
}

// Advance is read-merge-write: re-read the stored value, take the max with
// the candidate, write back. A lost update under a concurrent writer is
// tolerated; a regressed cursor is not.
func (s *redisCursorStore) Advance(ctx context.Context, accountID, sinceID string) (string, error) {
	stored, err := s.Get(ctx, accountID)
	if err != nil {
		return "", err
	}

	merged := model.MaxTweetID(stored, sinceID)
	if merged == stored {
		return stored, nil
	}

	if err := s.client.Set(ctx, cursorKey(accountID), merged, 0).Err(); err != nil {
		return "", fmt.Errorf("writing cursor: %w", err)
	}

	slog.DebugContext(ctx, "cursor advanced",
		"account_id", accountID,
		"from", stored,
		"to", merged)
	return merged, nil
}

type redisMentionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMentionCache(client *redis.Client, ttl time.Duration) MentionCache {
	return &redisMentionCache{client: client, ttl: ttl}
}

func mentionCacheKey(accountID, sinceID string) string {
	if sinceID == "" {
		sinceID = "0"
	}
	return "mentions:" + accountID + ":" + sinceID
}

func (c *redisMentionCache) Get(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error) {
	data, err := c.client.Get(ctx, mentionCacheKey(accountID, sinceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading mention cache: %w", err)
	}

	var result model.MentionFetchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding mention cache: %w", err)
	}
	return &result, nil
}

func (c *redisMentionCache) Put(ctx context.Context, accountID, sinceID string, result *model.MentionFetchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding mention cache: %w", err)
	}
	if err := c.client.Set(ctx, mentionCacheKey(accountID, sinceID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing mention cache: %w", err)
	}
	return nil
}
