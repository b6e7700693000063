package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quillbird.app/bot/internal/model"
)

const upsertMessageSQL = `
INSERT INTO messages (
    id, role, prompt_text, prompt_tweet_id, prompt_user_id, prompt_username,
    response_text, response_tweet_id, parent_message_id,
    error, error_type, is_error_final, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
    role = EXCLUDED.role,
    prompt_text = EXCLUDED.prompt_text,
    prompt_tweet_id = EXCLUDED.prompt_tweet_id,
    prompt_user_id = EXCLUDED.prompt_user_id,
    prompt_username = EXCLUDED.prompt_username,
    response_text = EXCLUDED.response_text,
    response_tweet_id = EXCLUDED.response_tweet_id,
    parent_message_id = EXCLUDED.parent_message_id,
    error = EXCLUDED.error,
    error_type = EXCLUDED.error_type,
    is_error_final = EXCLUDED.is_error_final,
    updated_at = EXCLUDED.updated_at`

const selectMessageColumns = `
SELECT id, role, prompt_text, prompt_tweet_id, prompt_user_id, prompt_username,
       response_text, response_tweet_id, parent_message_id,
       error, error_type, is_error_final, created_at, updated_at
FROM messages`

type messageStore struct {
	pool *pgxpool.Pool
}

func newMessageStore(pool *pgxpool.Pool) MessageStore {
	return &messageStore{pool: pool}
}

func (s *messageStore) Upsert(ctx context.Context, msg *model.Message) error {
	now := time.Now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now

	var errType *string
	if msg.ErrorType != nil {
		t := string(*msg.ErrorType)
		errType = &t
	}

	_, err := s.pool.Exec(ctx, upsertMessageSQL,
		msg.ID, string(msg.Role), msg.PromptText, msg.PromptTweetID,
		msg.PromptUserID, msg.PromptUsername,
		msg.ResponseText, msg.ResponseTweetID, msg.ParentMessageID,
		msg.Error, errType, msg.IsErrorFinal, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *messageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	row := s.pool.QueryRow(ctx, selectMessageColumns+` WHERE id = $1`, id)
	return scanMessage(row)
}

func (s *messageStore) GetByResponseTweetID(ctx context.Context, tweetID string) (*model.Message, error) {
	row := s.pool.QueryRow(ctx, selectMessageColumns+` WHERE response_tweet_id = $1`, tweetID)
	return scanMessage(row)
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var role string
	var errType *string

	err := row.Scan(
		&m.ID, &role, &m.PromptText, &m.PromptTweetID,
		&m.PromptUserID, &m.PromptUsername,
		&m.ResponseText, &m.ResponseTweetID, &m.ParentMessageID,
		&m.Error, &errType, &m.IsErrorFinal, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	m.Role = model.MessageRole(role)
	if errType != nil {
		t := model.ErrorType(*errType)
		m.ErrorType = &t
	}
	return &m, nil
}
