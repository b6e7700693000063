package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"quillbird.app/bot/common/llm"
	"quillbird.app/bot/common/logger"
	"quillbird.app/bot/core/config"
	"quillbird.app/bot/internal/answer"
	"quillbird.app/bot/internal/model"
	"quillbird.app/bot/internal/store"
	"quillbird.app/bot/internal/twitter"
)

type mentionFetcher interface {
	Fetch(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error)
}

type threadResolver interface {
	Resolve(ctx context.Context, leaf *model.Message, includeExternal bool) ([]llm.ChatMessage, error)
}

// Processor runs one batch: fetch, filter, rank, cap, then reply to each
// admitted candidate. All side effects are upserts keyed by tweet ID, so a
// re-run of the same window converges instead of duplicating.
type Processor struct {
	cfg      config.BotConfig
	identity *model.TwitterUser
	twitter  twitter.Client
	messages store.MessageStore
	users    store.UserStore
	fetcher  mentionFetcher
	resolver threadResolver
	engine   answer.Engine
	score    ScoreFunc
}

func NewProcessor(
	cfg config.BotConfig,
	identity *model.TwitterUser,
	tw twitter.Client,
	messages store.MessageStore,
	users store.UserStore,
	fetcher mentionFetcher,
	resolver threadResolver,
	engine answer.Engine,
	score ScoreFunc,
) *Processor {
	if score == nil {
		score = DefaultScore
	}
	return &Processor{
		cfg:      cfg,
		identity: identity,
		twitter:  tw,
		messages: messages,
		users:    users,
		fetcher:  fetcher,
		resolver: resolver,
		engine:   engine,
		score:    score,
	}
}

// ProcessBatch runs one pass from sinceID. A failing candidate never aborts
// the rest of the batch; its classified error lands on the batch flags and on
// the candidate's persisted turn.
func (p *Processor) ProcessBatch(ctx context.Context, sinceID string) (*model.BatchResult, error) {
	result := model.NewBatchResult(sinceID)

	fetched, err := p.gather(ctx, sinceID, result)
	if err != nil {
		return result, err
	}
	for id, t := range fetched.Tweets {
		result.Tweets[id] = t
	}
	for id, u := range fetched.Users {
		result.Users[id] = u
	}

	candidates := p.selectCandidates(ctx, fetched, result)

	rankCandidates(candidates)
	admitted := candidates
	if len(admitted) > p.cfg.MaxMentionsPerBatch {
		admitted = admitted[:p.cfg.MaxMentionsPerBatch]
		result.NumFollowups = len(candidates) - len(admitted)
		slog.InfoContext(ctx, "batch capped",
			"eligible", len(candidates),
			"admitted", len(admitted),
			"postponed", result.NumFollowups)
	}
	result.Candidates = admitted

	for _, c := range admitted {
		p.processCandidate(ctx, c, result)
	}

	slog.InfoContext(ctx, "batch processed",
		"candidates", len(admitted),
		"replied", result.RepliedCount(),
		"errors", result.ErrorCount(),
		"postponed", result.NumFollowups,
		"max_processed_id", result.MaxProcessedID)

	return result, nil
}

// gather fetches the batch input, either the cursor-bounded timeline or an
// explicit replay set when DebugTweetIDs is configured.
func (p *Processor) gather(ctx context.Context, sinceID string, result *model.BatchResult) (*model.MentionFetchResult, error) {
	if len(p.cfg.DebugTweetIDs) > 0 {
		return p.gatherDebug(ctx), nil
	}

	fetched, err := p.fetcher.Fetch(ctx, p.identity.ID, sinceID)
	if err != nil {
		result.RecordError(twitter.ErrorClass(err))
		if fetched == nil || len(fetched.Mentions) == 0 {
			return nil, fmt.Errorf("fetching batch: %w", err)
		}
		slog.WarnContext(ctx, "continuing with partial fetch",
			"mentions", len(fetched.Mentions),
			"error", err)
	}
	return fetched, nil
}

// gatherDebug replays explicit tweet IDs through the pipeline, bypassing the
// cursor entirely. Lookup failures skip the ID; a replay set should never
// block on one bad entry.
func (p *Processor) gatherDebug(ctx context.Context) *model.MentionFetchResult {
	fetched := model.NewMentionFetchResult("")

	for _, id := range p.cfg.DebugTweetIDs {
		tweet, err := p.twitter.GetTweet(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "debug tweet lookup failed", "tweet_id", id, "error", err)
			continue
		}
		fetched.Mentions = append(fetched.Mentions, tweet)
		fetched.Tweets[tweet.ID] = tweet

		if _, ok := fetched.Users[tweet.AuthorID]; !ok {
			user, err := p.twitter.GetUser(ctx, tweet.AuthorID)
			if err != nil {
				slog.WarnContext(ctx, "debug author lookup failed", "user_id", tweet.AuthorID, "error", err)
				continue
			}
			fetched.Users[user.ID] = user
		}
	}

	slog.InfoContext(ctx, "debug replay set gathered",
		"requested", len(p.cfg.DebugTweetIDs),
		"resolved", len(fetched.Mentions))
	return fetched
}

// selectCandidates filters fetched mentions down to processable candidates.
// Exclusions are recorded as persisted turns, never silently dropped.
func (p *Processor) selectCandidates(ctx context.Context, fetched *model.MentionFetchResult, result *model.BatchResult) []*model.MentionCandidate {
	var candidates []*model.MentionCandidate

	for _, t := range fetched.Mentions {
		if t.AuthorID == p.identity.ID {
			continue
		}

		existing, err := p.messages.GetByID(ctx, t.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "turn lookup failed", "tweet_id", t.ID, "error", err)
			continue
		}
		if existing != nil {
			if existing.Responded() {
				continue
			}
			if existing.Error != nil && !existing.Retryable() {
				continue
			}
		}

		author := fetched.Users[t.AuthorID]
		if author == nil {
			// The fetched page can omit an author the flush already stored.
			if stored, err := p.users.GetByID(ctx, t.AuthorID); err == nil {
				author = stored
			}
		}
		if author == nil {
			author, err = p.twitter.GetUser(ctx, t.AuthorID)
			if err != nil {
				class := twitter.ErrorClass(err)
				p.closeTurn(ctx, t, result,
					fmt.Sprintf("author lookup failed: %v", err),
					class, class == model.ErrorTypeNotFound)
				result.RecordError(class)
				continue
			}
		}

		if IsLikelyBot(author.Username) && !p.cfg.ForceReply {
			p.closeTurn(ctx, t, result, "author classified as bot noise", model.ErrorTypeUnknown, true)
			continue
		}

		prompt := NormalizePrompt(t.Text)
		if prompt == "" {
			p.closeTurn(ctx, t, result, "mention has no prompt text", model.ErrorTypeUnknown, true)
			continue
		}

		c := &model.MentionCandidate{
			Tweet:          t,
			Author:         author,
			Prompt:         prompt,
			MentionDepth:   CountMentions(t.Text),
			FollowersCount: author.FollowersCount,
			URL:            fmt.Sprintf("https://x.com/%s/status/%s", author.Username, t.ID),
			IsReply:        t.InReplyToTweetID != nil,
		}
		c.Priority = p.score(c)
		candidates = append(candidates, c)
	}

	return candidates
}

// closeTurn persists a terminal (or retryable) exclusion so the mention never
// reappears as unexplained work. Final closures settle the cursor watermark.
func (p *Processor) closeTurn(ctx context.Context, t *model.Tweet, result *model.BatchResult, reason string, class model.ErrorType, final bool) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{TweetID: &t.ID})
	msg := &model.Message{
		ID:            t.ID,
		Role:          model.MessageRoleUser,
		PromptText:    NormalizePrompt(t.Text),
		PromptTweetID: t.ID,
		PromptUserID:  t.AuthorID,
	}
	msg.SetError(reason, class, final)

	if !p.cfg.DryRun {
		if err := p.messages.Upsert(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "persisting excluded turn failed", "error", err)
			return
		}
	}
	result.Messages = append(result.Messages, msg)
	if final {
		result.RecordSuccess(t.ID)
	}

	slog.InfoContext(ctx, "mention excluded",
		"reason", reason,
		"final", final)
}

// processCandidate resolves context, generates and posts one reply. Every
// outcome lands on the candidate's turn; errors stay contained here.
func (p *Processor) processCandidate(ctx context.Context, c *model.MentionCandidate, result *model.BatchResult) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{TweetID: &c.Tweet.ID})
	msg := &model.Message{
		ID:             c.Tweet.ID,
		Role:           model.MessageRoleUser,
		PromptText:     c.Prompt,
		PromptTweetID:  c.Tweet.ID,
		PromptUserID:   c.Author.ID,
		PromptUsername: c.Author.Username,
	}

	if c.Tweet.InReplyToTweetID != nil {
		parent, err := p.messages.GetByResponseTweetID(ctx, *c.Tweet.InReplyToTweetID)
		if err == nil {
			msg.ParentMessageID = &parent.ID
		} else if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "parent turn lookup failed", "error", err)
		}
	}

	thread, err := p.resolver.Resolve(ctx, msg, true)
	if err != nil {
		p.failCandidate(ctx, msg, result, fmt.Errorf("resolving thread: %w", err))
		return
	}
	if len(thread) == 0 {
		thread = []llm.ChatMessage{{Role: llm.RoleUser, Content: c.Prompt}}
	}

	reply, err := p.engine.Generate(ctx, thread)
	if err != nil {
		p.failCandidate(ctx, msg, result, err)
		return
	}
	reply = answer.TruncateReply(reply, p.cfg.ReplyBudget)

	if p.cfg.DryRun {
		slog.InfoContext(ctx, "dry run, reply suppressed", "reply", reply)
		msg.ResponseText = &reply
		result.Messages = append(result.Messages, msg)
		return
	}

	replyID, err := p.twitter.PostReply(ctx, c.Tweet.ID, reply)
	if err != nil {
		class := twitter.ErrorClass(err)
		p.failCandidate(ctx, msg, result, model.NewPipelineError(class, class == model.ErrorTypeNotFound, err))
		return
	}

	msg.ResponseText = &reply
	msg.ResponseTweetID = &replyID
	if err := p.messages.Upsert(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "persisting replied turn failed", "error", err)
	}
	result.Messages = append(result.Messages, msg)
	result.RecordSuccess(c.Tweet.ID)
}

// failCandidate classifies err onto the turn and the batch flags.
func (p *Processor) failCandidate(ctx context.Context, msg *model.Message, result *model.BatchResult, err error) {
	class := model.ClassOf(err)
	final := model.IsFinal(err)
	msg.SetError(err.Error(), class, final)
	result.RecordError(class)

	if !p.cfg.DryRun {
		if upsertErr := p.messages.Upsert(ctx, msg); upsertErr != nil {
			slog.ErrorContext(ctx, "persisting failed turn failed", "error", upsertErr)
		}
	}
	result.Messages = append(result.Messages, msg)
	if final {
		result.RecordSuccess(msg.ID)
	}

	slog.ErrorContext(ctx, "candidate failed",
		"class", class,
		"final", final,
		"error", err)
}
