package store

import (
	"context"
	"errors"

	"quillbird.app/bot/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// TweetStore reads the durable tweet copies written by the mention flush.
type TweetStore interface {
	GetByID(ctx context.Context, id string) (*model.Tweet, error)
}

// UserStore reads the durable author profiles written by the mention flush.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.TwitterUser, error)
}

// MentionFlusher persists everything one fetch observed. Writes are
// idempotent upserts keyed by the platform ID and land in a single
// transaction, so retried batch steps re-derive equivalent state and a
// crashed flush leaves no half-written window.
type MentionFlusher interface {
	FlushMentions(ctx context.Context, tweets []*model.Tweet, users []*model.TwitterUser) error
}

// MessageStore persists conversation turns.
type MessageStore interface {
	Upsert(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// GetByResponseTweetID finds the turn whose posted reply is the given
	// tweet, used to link a new mention back into bot-known history.
	GetByResponseTweetID(ctx context.Context, tweetID string) (*model.Message, error)
}

// BatchRunStore records per-iteration outcome summaries.
type BatchRunStore interface {
	Create(ctx context.Context, run *model.BatchRun) error
}

// CursorStore persists the per-account mention high-water mark.
type CursorStore interface {
	// Get returns the stored cursor, or "" when none exists.
	Get(ctx context.Context, accountID string) (string, error)
	// Advance writes max(stored, sinceID) and returns the persisted value.
	// Read-merge-write: tolerates concurrent writers without regressing.
	Advance(ctx context.Context, accountID, sinceID string) (string, error)
}

// MentionCache stores fetched mention pages keyed by (account, sinceID) so a
// restarted or re-run fetch does not pay the remote API again.
type MentionCache interface {
	Get(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error)
	Put(ctx context.Context, accountID, sinceID string, result *model.MentionFetchResult) error
}
