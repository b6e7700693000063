package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quillbird.app/bot/internal/model"
)

const upsertTweetSQL = `
INSERT INTO tweets (id, author_id, text, conversation_id, in_reply_to_tweet_id, quoted_tweet_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    author_id = EXCLUDED.author_id,
    text = EXCLUDED.text,
    conversation_id = EXCLUDED.conversation_id,
    in_reply_to_tweet_id = EXCLUDED.in_reply_to_tweet_id,
    quoted_tweet_id = EXCLUDED.quoted_tweet_id,
    created_at = EXCLUDED.created_at`

const getTweetSQL = `
SELECT id, author_id, text, conversation_id, in_reply_to_tweet_id, quoted_tweet_id, created_at
FROM tweets WHERE id = $1`

type tweetStore struct {
	pool *pgxpool.Pool
}

func newTweetStore(pool *pgxpool.Pool) TweetStore {
	return &tweetStore{pool: pool}
}

// batchSender is satisfied by both *pgxpool.Pool and pgx.Tx, so the batch
// upserts run standalone or inside a transaction.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func upsertTweets(ctx context.Context, q batchSender, tweets []*model.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range tweets {
		batch.Queue(upsertTweetSQL,
			t.ID, t.AuthorID, t.Text,
			t.ConversationID, t.InReplyToTweetID, t.QuotedTweetID, t.CreatedAt)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()
	for range tweets {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting tweet batch: %w", err)
		}
	}
	return nil
}

func (s *tweetStore) GetByID(ctx context.Context, id string) (*model.Tweet, error) {
	var t model.Tweet
	err := s.pool.QueryRow(ctx, getTweetSQL, id).Scan(
		&t.ID, &t.AuthorID, &t.Text,
		&t.ConversationID, &t.InReplyToTweetID, &t.QuotedTweetID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting tweet %s: %w", id, err)
	}
	return &t, nil
}
