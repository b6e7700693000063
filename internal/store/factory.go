package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"quillbird.app/bot/core/db"
	"quillbird.app/bot/internal/model"
)

// Stores bundles the Postgres-backed record stores.
type Stores struct {
	Tweets    TweetStore
	Users     UserStore
	Messages  MessageStore
	BatchRuns BatchRunStore

	db *db.DB
}

func NewStores(database *db.DB) *Stores {
	pool := database.Pool()
	return &Stores{
		Tweets:    newTweetStore(pool),
		Users:     newUserStore(pool),
		Messages:  newMessageStore(pool),
		BatchRuns: newBatchRunStore(pool),
		db:        database,
	}
}

// FlushMentions writes a fetched window's tweets and users in one
// transaction.
func (s *Stores) FlushMentions(ctx context.Context, tweets []*model.Tweet, users []*model.TwitterUser) error {
	if len(tweets) == 0 && len(users) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := upsertTweets(ctx, tx, tweets); err != nil {
			return err
		}
		return upsertUsers(ctx, tx, users)
	})
}
