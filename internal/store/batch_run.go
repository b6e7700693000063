package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"quillbird.app/bot/internal/model"
)

const insertBatchRunSQL = `
INSERT INTO batch_runs (
    id, account_id, started_at, finished_at,
    candidate_count, replied_count, error_count, postponed_count,
    since_id, max_processed_id,
    has_rate_limit_error, has_auth_error, has_network_error
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`

type batchRunStore struct {
	pool *pgxpool.Pool
}

func newBatchRunStore(pool *pgxpool.Pool) BatchRunStore {
	return &batchRunStore{pool: pool}
}

func (s *batchRunStore) Create(ctx context.Context, run *model.BatchRun) error {
	_, err := s.pool.Exec(ctx, insertBatchRunSQL,
		run.ID, run.AccountID, run.StartedAt, run.FinishedAt,
		run.CandidateCount, run.RepliedCount, run.ErrorCount, run.PostponedCount,
		run.SinceID, run.MaxProcessedID,
		run.HasTwitterRateLimitError, run.HasTwitterAuthError, run.HasNetworkError)
	if err != nil {
		return fmt.Errorf("creating batch run %d: %w", run.ID, err)
	}
	return nil
}
