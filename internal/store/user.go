package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quillbird.app/bot/internal/model"
)

const upsertUserSQL = `
INSERT INTO twitter_users (id, username, name, followers_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
    username = EXCLUDED.username,
    name = EXCLUDED.name,
    followers_count = EXCLUDED.followers_count`

const getUserSQL = `
SELECT id, username, name, followers_count
FROM twitter_users WHERE id = $1`

type userStore struct {
	pool *pgxpool.Pool
}

func newUserStore(pool *pgxpool.Pool) UserStore {
	return &userStore{pool: pool}
}

func upsertUsers(ctx context.Context, q batchSender, users []*model.TwitterUser) error {
	if len(users) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range users {
		batch.Queue(upsertUserSQL, u.ID, u.Username, u.Name, u.FollowersCount)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()
	for range users {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting user batch: %w", err)
		}
	}
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id string) (*model.TwitterUser, error) {
	var u model.TwitterUser
	err := s.pool.QueryRow(ctx, getUserSQL, id).Scan(
		&u.ID, &u.Username, &u.Name, &u.FollowersCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return &u, nil
}
