package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quillbird.app/bot/common/id"
	"quillbird.app/bot/common/logger"
	"quillbird.app/bot/core/config"
	"quillbird.app/bot/internal/model"
	"quillbird.app/bot/internal/store"
	"quillbird.app/bot/internal/twitter"
)

type batchProcessor interface {
	ProcessBatch(ctx context.Context, sinceID string) (*model.BatchResult, error)
}

// SleepFunc pauses for d or until ctx is done. Injectable so loop tests run
// with zero real delay.
type SleepFunc func(ctx context.Context, d time.Duration)

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Loop drives batches until the context is cancelled. One bad batch never
// takes the process down; only an unresolvable identity at startup is fatal,
// and that happens before the loop is constructed.
type Loop struct {
	cfg       config.Config
	accountID string
	processor batchProcessor
	cursor    store.CursorStore
	batchRuns store.BatchRunStore
	twitter   twitter.Client
	sleep     SleepFunc
}

func NewLoop(
	cfg config.Config,
	accountID string,
	processor batchProcessor,
	cursor store.CursorStore,
	batchRuns store.BatchRunStore,
	tw twitter.Client,
	sleep SleepFunc,
) *Loop {
	if sleep == nil {
		sleep = sleepWithContext
	}
	return &Loop{
		cfg:       cfg,
		accountID: accountID,
		processor: processor,
		cursor:    cursor,
		batchRuns: batchRuns,
		twitter:   tw,
		sleep:     sleep,
	}
}

// Run executes batches until ctx is cancelled or a single-batch mode
// (EarlyExit, DebugTweetIDs) completes its one pass.
func (l *Loop) Run(ctx context.Context) error {
	debugRun := len(l.cfg.Bot.DebugTweetIDs) > 0

	sinceID := ""
	if !debugRun {
		stored, err := l.cursor.Get(ctx, l.accountID)
		if err != nil {
			slog.WarnContext(ctx, "cursor read failed, starting from timeline head", "error", err)
		} else {
			sinceID = stored
		}
	}

	slog.InfoContext(ctx, "bot loop started",
		"account_id", l.accountID,
		"since_id", sinceID,
		"dry_run", l.cfg.Bot.DryRun,
		"debug_run", debugRun)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "bot loop stopping", "reason", ctx.Err())
			return nil
		default:
		}

		batchCtx := contextWithBatch(ctx, l.accountID)
		start := time.Now()
		result, err := l.runBatchSafe(batchCtx, sinceID)
		l.recordRun(batchCtx, result, sinceID, start)

		if err != nil {
			slog.ErrorContext(batchCtx, "batch failed", "error", err)
		}

		sinceID = l.settleCursor(batchCtx, result, sinceID, debugRun)
		l.mitigate(batchCtx, result)

		if debugRun || l.cfg.Bot.EarlyExit {
			slog.InfoContext(batchCtx, "single-batch mode, terminating")
			return nil
		}

		if err != nil {
			// Whatever escaped is treated as transient: short sleep, fresh
			// credentials, try again.
			l.sleep(ctx, l.cfg.Loop.CrashDelay)
			if rerr := l.twitter.Reauth(ctx); rerr != nil {
				slog.ErrorContext(batchCtx, "reauth after failed batch failed", "error", rerr)
			}
			continue
		}
		if result != nil && len(result.Candidates) == 0 {
			l.sleep(ctx, l.cfg.Loop.IdleDelay)
		}
	}
}

// runBatchSafe contains panics from a batch so one poisoned mention cannot
// crash-loop the process.
func (l *Loop) runBatchSafe(ctx context.Context, sinceID string) (result *model.BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic during batch", "panic", r)
			err = fmt.Errorf("batch panicked: %v", r)
		}
	}()

	start := time.Now()
	result, err = l.processor.ProcessBatch(ctx, sinceID)
	if result != nil {
		slog.InfoContext(ctx, "batch finished",
			"duration_ms", time.Since(start).Milliseconds(),
			"replied", result.RepliedCount(),
			"errors", result.ErrorCount())
	}
	return result, err
}

// settleCursor persists the batch watermark and returns the cursor for the
// next iteration. Debug and dry runs never move the persisted cursor, so a
// replayed or rehearsed batch leaves real state untouched.
func (l *Loop) settleCursor(ctx context.Context, result *model.BatchResult, sinceID string, debugRun bool) string {
	if result == nil || result.MaxProcessedID == "" || debugRun || l.cfg.Bot.DryRun {
		return sinceID
	}

	persisted, err := l.cursor.Advance(ctx, l.accountID, result.MaxProcessedID)
	if err != nil {
		// Keep the old in-memory cursor: the same mentions come back next
		// batch and the idempotent upserts absorb the replay.
		slog.WarnContext(ctx, "cursor advance failed", "error", err)
		return sinceID
	}
	return model.MaxTweetID(sinceID, persisted)
}

// mitigate applies the per-class recoveries. The conditions are independent;
// a batch that hit all three gets all three.
func (l *Loop) mitigate(ctx context.Context, result *model.BatchResult) {
	if result == nil {
		return
	}

	if result.HasNetworkError {
		slog.WarnContext(ctx, "network errors in batch, backing off", "delay", l.cfg.Loop.NetworkDelay)
		l.sleep(ctx, l.cfg.Loop.NetworkDelay)
	}
	if result.HasTwitterRateLimitError {
		slog.WarnContext(ctx, "rate limited, backing off", "delay", l.cfg.Loop.RateLimitDelay)
		l.sleep(ctx, l.cfg.Loop.RateLimitDelay)
	}
	if result.HasTwitterAuthError {
		slog.WarnContext(ctx, "auth errors in batch, re-establishing credentials")
		if err := l.twitter.Reauth(ctx); err != nil {
			slog.ErrorContext(ctx, "reauth failed", "error", err)
		}
	}
}

// recordRun persists the batch summary row. Observability only; failures are
// logged and swallowed.
func (l *Loop) recordRun(ctx context.Context, result *model.BatchResult, sinceID string, start time.Time) {
	if result == nil || l.cfg.Bot.DryRun {
		return
	}

	run := &model.BatchRun{
		ID:             id.New(),
		AccountID:      l.accountID,
		StartedAt:      start,
		FinishedAt:     time.Now(),
		CandidateCount: len(result.Candidates),
		RepliedCount:   result.RepliedCount(),
		ErrorCount:     result.ErrorCount(),
		PostponedCount: result.NumFollowups,
		SinceID:        sinceID,
		MaxProcessedID: result.MaxProcessedID,

		HasTwitterRateLimitError: result.HasTwitterRateLimitError,
		HasTwitterAuthError:      result.HasTwitterAuthError,
		HasNetworkError:          result.HasNetworkError,
	}

	if err := l.batchRuns.Create(ctx, run); err != nil {
		slog.ErrorContext(ctx, "persisting batch run failed", "error", err)
	}
}

// contextWithBatch tags the context so every log line in the batch carries
// the batch and account identifiers.
func contextWithBatch(ctx context.Context, accountID string) context.Context {
	batchID := id.New()
	return logger.WithLogFields(ctx, logger.LogFields{
		Component: "bot",
		BatchID:   &batchID,
		AccountID: &accountID,
	})
}
