package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"quillbird.app/bot/internal/model"
	"quillbird.app/bot/internal/store"
	"quillbird.app/bot/internal/twitter"
)

// Below this many new mentions in a fully paginated fetch, the fetcher stops
// re-polling and hands the batch over. ResolveAllMentions disables the
// threshold and drains the timeline exhaustively.
const refetchThreshold = 5

// Fetcher gathers mentions newer than a cursor, merging the Redis page cache
// with live timeline pages and flushing everything observed to durable
// storage.
type Fetcher struct {
	twitter twitter.Client
	flusher store.MentionFlusher
	cache   store.MentionCache

	noCache    bool
	resolveAll bool
}

func NewFetcher(tw twitter.Client, flusher store.MentionFlusher, cache store.MentionCache, noCache, resolveAll bool) *Fetcher {
	return &Fetcher{
		twitter:    tw,
		flusher:    flusher,
		cache:      cache,
		noCache:    noCache,
		resolveAll: resolveAll,
	}
}

// Fetch accumulates mentions for accountID strictly newer than sinceID.
//
// On remote failure with mentions already accumulated it returns the partial
// result alongside the error; the caller decides whether partial is enough.
// The returned SinceID never regresses below the input and always equals the
// true max ID across cached and live results.
func (f *Fetcher) Fetch(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error) {
	result := model.NewMentionFetchResult(sinceID)

	if !f.noCache {
		cached, err := f.cache.Get(ctx, accountID, sinceID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "mention cache read failed, fetching live", "error", err)
		}
		if cached != nil {
			result.Merge(cached)
			slog.DebugContext(ctx, "mention cache seeded",
				"cached_mentions", len(cached.Mentions),
				"since_id", result.SinceID)
		}
	}

	fetchErr := f.fetchLive(ctx, accountID, result)
	if fetchErr != nil && len(result.Mentions) == 0 {
		return nil, fetchErr
	}

	if err := f.flush(ctx, result); err != nil {
		return nil, err
	}

	if !f.noCache && len(result.Mentions) > 0 {
		// Cached under the original cursor so a restart from the same point
		// replays this work for free.
		if err := f.cache.Put(ctx, accountID, sinceID, result); err != nil {
			slog.WarnContext(ctx, "mention cache write failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "mentions fetched",
		"account_id", accountID,
		"mentions", len(result.Mentions),
		"since_id", result.SinceID,
		"partial", fetchErr != nil)

	return result, fetchErr
}

// fetchLive repeatedly drains the paginated timeline from the working cursor
// until a full pass yields fewer than refetchThreshold new mentions.
func (f *Fetcher) fetchLive(ctx context.Context, accountID string, result *model.MentionFetchResult) error {
	for {
		pass := model.NewMentionFetchResult(result.SinceID)

		// The query window is pinned for the whole pass. Raising since_id
		// between pages would filter the remaining, older pages out of the
		// window and drop their mentions for good once the cursor advances.
		start := pass.SinceID

		token := ""
		for {
			page, err := f.twitter.Mentions(ctx, accountID, start, token)
			if err != nil {
				result.Merge(pass)
				return fmt.Errorf("mention timeline: %w", err)
			}

			for _, t := range page.Tweets {
				pass.Mentions = append(pass.Mentions, t)
				pass.Tweets[t.ID] = t
				pass.SinceID = model.MaxTweetID(pass.SinceID, t.ID)
			}
			for id, u := range page.Users {
				pass.Users[id] = u
			}
			for id, t := range page.Included {
				pass.Tweets[id] = t
			}
			pass.SinceID = model.MaxTweetID(pass.SinceID, page.NewestID)

			if page.NextToken == "" {
				break
			}
			token = page.NextToken
		}

		newMentions := len(pass.Mentions)
		result.Merge(pass)

		if newMentions == 0 {
			return nil
		}
		if !f.resolveAll && newMentions < refetchThreshold {
			return nil
		}
		// Enough arrived during the pass that more may be waiting; go again
		// from the raised cursor.
	}
}

// flush durably upserts everything observed, in one transaction so a crashed
// flush leaves no half-written window. Idempotent: re-fetching the same window
// rewrites identical rows.
func (f *Fetcher) flush(ctx context.Context, result *model.MentionFetchResult) error {
	tweets := make([]*model.Tweet, 0, len(result.Tweets))
	for _, t := range result.Tweets {
		tweets = append(tweets, t)
	}
	users := make([]*model.TwitterUser, 0, len(result.Users))
	for _, u := range result.Users {
		users = append(users, u)
	}

	if err := f.flusher.FlushMentions(ctx, tweets, users); err != nil {
		return fmt.Errorf("flushing mention window: %w", err)
	}
	return nil
}
